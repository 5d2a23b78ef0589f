package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Server struct {
	Host           string
	Port           int
	Path           string
	MaxConnections int
}

type DB struct {
	Host    string
	Port    int
	User    string
	Pass    string
	Name    string
	SSLMode string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Protocol struct {
	AuthTimeout        time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
	StatusQueryTimeout time.Duration
	CommandRetention   time.Duration
	CleanInterval      time.Duration
}

type Config struct {
	Server   Server
	DB       DB
	Redis    Redis
	Protocol Protocol
	JWT      struct {
		Secret string
		Issuer string
	}
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9300)
	v.SetDefault("server.path", "/ws")
	v.SetDefault("server.max_connections", 1000)
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.pass", "")
	v.SetDefault("db.name", "fleet_bridge")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("protocol.auth_timeout", "30s")
	v.SetDefault("protocol.heartbeat_interval", "30s")
	v.SetDefault("protocol.heartbeat_timeout", "60s")
	v.SetDefault("protocol.status_query_timeout", "5s")
	v.SetDefault("protocol.command_retention", "10m")
	v.SetDefault("protocol.clean_interval", "10m")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		Server: Server{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			Path:           v.GetString("server.path"),
			MaxConnections: v.GetInt("server.max_connections"),
		},
		DB: DB{
			Host:    v.GetString("db.host"),
			Port:    v.GetInt("db.port"),
			User:    v.GetString("db.user"),
			Pass:    v.GetString("db.pass"),
			Name:    v.GetString("db.name"),
			SSLMode: v.GetString("db.sslmode"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Protocol: Protocol{
			AuthTimeout:        v.GetDuration("protocol.auth_timeout"),
			HeartbeatInterval:  v.GetDuration("protocol.heartbeat_interval"),
			HeartbeatTimeout:   v.GetDuration("protocol.heartbeat_timeout"),
			StatusQueryTimeout: v.GetDuration("protocol.status_query_timeout"),
			CommandRetention:   v.GetDuration("protocol.command_retention"),
			CleanInterval:      v.GetDuration("protocol.clean_interval"),
		},
	}
	cfg.JWT.Secret = v.GetString("jwt.secret")
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "dev-secret"
	}
	cfg.JWT.Issuer = v.GetString("jwt.issuer")
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "fleet-bridge"
	}
	return cfg, nil
}
