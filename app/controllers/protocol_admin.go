package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleet-bridge/app/dto"
	"fleet-bridge/app/models"
	"fleet-bridge/global"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Control-plane surface. The admin layer calls these directly; none of
// them touch socket I/O except through the hub.

// EnqueueCommand persists a new pending command and returns its id. The
// command is delivered on the robot's next (re)authentication.
func (c *ProtocolController) EnqueueCommand(robotID, commandType string, params json.RawMessage, priority models.CommandPriority) (string, error) {
	cmd, err := c.Commands.Enqueue(robotID, commandType, "", params, priority)
	if err != nil {
		return "", err
	}
	return cmd.ID, nil
}

// PushCommand enqueues and then attempts immediate delivery. Reports
// whether the command went out on an open authenticated channel now; a
// false return still leaves the command queued.
func (c *ProtocolController) PushCommand(robotID, commandType string, params json.RawMessage, priority models.CommandPriority) (bool, error) {
	cmd, err := c.Commands.Enqueue(robotID, commandType, "", params, priority)
	if err != nil {
		return false, err
	}
	conn := c.Hub.Get(robotID)
	if conn == nil || !conn.Authenticated {
		return false, nil
	}
	if err := c.pushCommand(conn, cmd); err != nil {
		global.Logger.Warn().Err(err).Str("robot", robotID).Str("command", cmd.ID).Msg("immediate push failed, left queued")
		return false, nil
	}
	return true, nil
}

// PushConfig delivers config to the connected robot. A non-nil payload
// is validated and saved first, bumping the version; a nil payload pushes
// the stored row, or the category default at version 0 when none exists.
// Fire-and-forget: with no authenticated connection it returns false and
// nothing is queued for later (a non-nil payload is still saved).
func (c *ProtocolController) PushConfig(robotID, configType string, payload json.RawMessage) (bool, error) {
	if payload != nil {
		if _, err := c.Configs.Save(robotID, configType, payload); err != nil {
			return false, err
		}
	}
	conn := c.Hub.Get(robotID)
	if conn == nil || !conn.Authenticated {
		return false, nil
	}
	cfg, err := c.Configs.Get(robotID, configType)
	if err != nil {
		return false, err
	}
	version := 0
	body := c.Configs.Default(configType)
	if cfg != nil {
		version = cfg.Version
		body = json.RawMessage(cfg.Config)
	}
	frame, err := dto.NewFrame(dto.FrameConfigPush, dto.ConfigPush{
		RobotID:    robotID,
		ConfigType: configType,
		Version:    version,
		Config:     body,
	})
	if err != nil {
		return false, err
	}
	// The config read may have hit the store; re-check the binding before
	// writing.
	if cur := c.Hub.Get(robotID); cur == nil || cur.Handle != conn.Handle {
		return false, nil
	}
	if err := conn.Channel.Send(frame); err != nil {
		global.Logger.Warn().Err(err).Str("robot", robotID).Str("config_type", configType).Msg("config push failed")
		return false, nil
	}
	return true, nil
}

// QueryDeviceStatus asks a connected robot for fresh status and waits up
// to the query timeout for its reply. Offline robots are served the last
// persisted record.
func (c *ProtocolController) QueryDeviceStatus(robotID string) (*dto.StatusResponse, error) {
	conn := c.Hub.Get(robotID)
	if conn == nil || !conn.Authenticated {
		st, err := c.Status.Get(robotID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("robot %s offline and no status record", robotID)
			}
			return nil, err
		}
		info, _ := json.Marshal(st)
		return &dto.StatusResponse{Status: st.Status, DeviceInfo: info}, nil
	}

	queryID := uuid.NewString()
	waiter := make(chan dto.StatusResponse, 1)
	c.mu.Lock()
	c.statusWaiters[queryID] = waiter
	c.mu.Unlock()

	frame, err := dto.NewFrame(dto.FrameStatusQuery, dto.StatusQueryRequest{QueryID: queryID})
	if err == nil {
		err = conn.Channel.Send(frame)
	}
	if err != nil {
		c.mu.Lock()
		delete(c.statusWaiters, queryID)
		c.mu.Unlock()
		return nil, fmt.Errorf("send status query: %w", err)
	}

	select {
	case resp := <-waiter:
		return &resp, nil
	case <-time.After(c.StatusQueryTimeout):
		c.mu.Lock()
		delete(c.statusWaiters, queryID)
		c.mu.Unlock()
		return nil, fmt.Errorf("status query to %s timed out", robotID)
	}
}

// CommandHistory returns the robot's persisted command audit trail,
// newest first. A limit of 0 means no limit.
func (c *ProtocolController) CommandHistory(robotID string, limit int) ([]models.Command, error) {
	return c.Commands.History(robotID, limit)
}

func (c *ProtocolController) OnlineRobots() []string {
	return c.Hub.OnlineRobots()
}

func (c *ProtocolController) ConnectionCount() int {
	return c.Hub.Count()
}

// Broadcast sends a frame to every authenticated robot except the
// excluded ids; returns the delivered count.
func (c *ProtocolController) Broadcast(kind string, payload any, excludeRobotIDs []string) (int, error) {
	frame, err := dto.NewFrame(kind, payload)
	if err != nil {
		return 0, err
	}
	return c.Hub.Broadcast(frame, excludeRobotIDs), nil
}

func (c *ProtocolController) QueueStats() dto.QueueStats {
	return c.Commands.Stats()
}
