package initialize

import (
	"context"
	"fmt"
	"time"

	"fleet-bridge/app/controllers"
	"fleet-bridge/app/db"
	jwtutil "fleet-bridge/app/jwt"
	"fleet-bridge/app/models"
	"fleet-bridge/app/repo"
	"fleet-bridge/app/services"
	"fleet-bridge/app/socket"
	"fleet-bridge/config"
	"fleet-bridge/global"
	"fleet-bridge/server"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Cfg      *config.Config
	DB       *gorm.DB
	Hub      *socket.Hub
	Protocol *controllers.ProtocolController
	Monitor  *server.Monitor
	Commands *services.CommandService
	Configs  *services.ConfigService
	Status   *services.StatusService
}

func Build(configPath string) (*App, error) {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	global.Config = cfg

	// Connect DB
	gdb, err := db.Connect(db.Config{
		Host: cfg.DB.Host, Port: cfg.DB.Port, User: cfg.DB.User,
		Password: cfg.DB.Pass, DBName: cfg.DB.Name, SSLMode: cfg.DB.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	global.Mdb = gdb

	// Migrate. device_activations is owned elsewhere but migrated here so
	// a fresh dev database works out of the box.
	if err := gdb.AutoMigrate(&models.Command{}, &models.RobotConfig{}, &models.DeviceStatus{}, &models.DeviceActivation{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional: without it the status mirror is skipped.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			global.Logger.Warn().Err(err).Msg("redis unreachable, status mirror disabled")
			rdb = nil
		}
		cancel()
	}
	global.Rdb = rdb

	// Services
	cmdRepo := repo.NewCommandRepository(gdb)
	cfgRepo := repo.NewConfigRepository(gdb)
	statusRepo := repo.NewStatusRepository(gdb)
	actRepo := repo.NewActivationRepository(gdb)
	cmdSvc := services.NewCommandService(cmdRepo)
	cfgSvc := services.NewConfigService(cfgRepo)
	statusSvc := services.NewStatusService(statusRepo, rdb)

	// Dispatcher
	verifier := &jwtutil.Verifier{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer}
	hub := socket.NewHub()
	ctrl := controllers.NewProtocolController(hub, cmdSvc, cfgSvc, statusSvc, actRepo, verifier)
	ctrl.MaxConnections = cfg.Server.MaxConnections
	ctrl.AuthTimeout = cfg.Protocol.AuthTimeout
	ctrl.StatusQueryTimeout = cfg.Protocol.StatusQueryTimeout

	monitor := server.NewMonitor(hub, cmdSvc,
		cfg.Protocol.HeartbeatInterval,
		cfg.Protocol.HeartbeatTimeout,
		cfg.Protocol.CleanInterval,
		cfg.Protocol.CommandRetention,
	)

	return &App{
		Cfg:      cfg,
		DB:       gdb,
		Hub:      hub,
		Protocol: ctrl,
		Monitor:  monitor,
		Commands: cmdSvc,
		Configs:  cfgSvc,
		Status:   statusSvc,
	}, nil
}
