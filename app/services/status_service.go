package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleet-bridge/app/dto"
	"fleet-bridge/app/models"
	"fleet-bridge/app/repo"
	"fleet-bridge/global"

	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPattern = "robot_status:%s"
	statusMirrorTTL  = 5 * time.Minute
	redisOpTimeout   = 2 * time.Second
)

// StatusService maintains the per-robot device_status row and mirrors it
// into redis under robot_status:<robotId>. Both writes are best-effort;
// the heartbeat handler never fails because the status record could not
// be stored.
type StatusService struct {
	repo *repo.StatusRepository
	rdb  *redis.Client // nil when redis is not configured
}

func NewStatusService(r *repo.StatusRepository, rdb *redis.Client) *StatusService {
	return &StatusService{repo: r, rdb: rdb}
}

func statusKey(robotID string) string {
	return fmt.Sprintf(statusKeyPattern, robotID)
}

// UpsertFromHeartbeat folds a heartbeat frame into the status record.
func (s *StatusService) UpsertFromHeartbeat(robotID string, hb dto.HeartbeatRequest) error {
	now := time.Now()
	status := hb.Status
	if status == "" {
		status = "idle"
	}
	st := &models.DeviceStatus{
		RobotID:         robotID,
		Status:          status,
		Battery:         hb.Battery,
		Signal:          hb.Signal,
		MemoryUsage:     hb.MemoryUsage,
		CPUUsage:        hb.CPUUsage,
		NetworkType:     hb.NetworkType,
		LastHeartbeatAt: &now,
		LastUpdatedAt:   now,
	}
	if err := s.repo.Upsert(st); err != nil {
		return fmt.Errorf("upsert device status: %w", err)
	}
	s.mirror(st)
	return nil
}

// Get prefers the redis mirror and falls back to the store.
func (s *StatusService) Get(robotID string) (*models.DeviceStatus, error) {
	if s.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		raw, err := s.rdb.Get(ctx, statusKey(robotID)).Bytes()
		cancel()
		if err == nil {
			var st models.DeviceStatus
			if jsonErr := json.Unmarshal(raw, &st); jsonErr == nil {
				return &st, nil
			}
		}
	}
	st, err := s.repo.Find(robotID)
	if err != nil {
		return nil, err
	}
	s.mirror(st)
	return st, nil
}

func (s *StatusService) mirror(st *models.DeviceStatus) {
	if s.rdb == nil {
		return
	}
	b, err := json.Marshal(st)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.rdb.Set(ctx, statusKey(st.RobotID), b, statusMirrorTTL).Err(); err != nil {
		global.Logger.Warn().Err(err).Str("robot", st.RobotID).Msg("redis status mirror failed")
	}
}
