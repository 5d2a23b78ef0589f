package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"fleet-bridge/app/dto"
	"fleet-bridge/app/socket"
	"fleet-bridge/global"

	"gorm.io/gorm"
)

func (c *ProtocolController) handleHeartbeat(conn *socket.Conn, payload json.RawMessage) {
	var hb dto.HeartbeatRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &hb); err != nil {
			c.sendError(conn, 400, "invalid heartbeat payload", err.Error())
			return
		}
	}
	c.Hub.Touch(conn.Handle)
	// Status persistence is best-effort; a failed write never fails the
	// heartbeat.
	if err := c.Status.UpsertFromHeartbeat(conn.RobotID, hb); err != nil {
		global.Logger.Error().Err(err).Str("robot", conn.RobotID).Msg("heartbeat status upsert failed")
	}
}

func (c *ProtocolController) handleResult(conn *socket.Conn, payload json.RawMessage) {
	var req dto.ResultRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(conn, 400, "invalid result payload", err.Error())
		return
	}
	if req.CommandID == "" {
		c.sendError(conn, 400, "missing commandId", "")
		return
	}
	executedAt := time.Now()
	if req.ExecutedAt > 0 {
		executedAt = time.UnixMilli(req.ExecutedAt)
	}
	var err error
	if req.Status == "success" {
		err = c.Commands.MarkSuccess(req.CommandID, req.Result, executedAt)
	} else {
		err = c.Commands.MarkFailed(req.CommandID, req.ErrorMessage, executedAt)
	}
	if err != nil {
		c.sendError(conn, 404, "result rejected", err.Error())
		global.Logger.Warn().Err(err).Str("robot", conn.RobotID).Str("command", req.CommandID).Msg("result rejected")
		return
	}
	global.Logger.Info().Str("robot", conn.RobotID).Str("command", req.CommandID).Str("status", req.Status).Msg("command result recorded")
}

// handleStatusQuery answers a device asking for its own stored status
// record.
func (c *ProtocolController) handleStatusQuery(conn *socket.Conn, payload json.RawMessage) {
	var req dto.StatusQueryRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			c.sendError(conn, 400, "invalid status query payload", err.Error())
			return
		}
	}
	st, err := c.Status.Get(conn.RobotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.sendError(conn, 404, "no status record", "")
		} else {
			c.sendError(conn, 500, "status lookup failed", "")
			global.Logger.Error().Err(err).Str("robot", conn.RobotID).Msg("status lookup failed")
		}
		return
	}
	info, _ := json.Marshal(st)
	c.sendFrame(conn, dto.FrameStatusResponse, dto.StatusResponse{
		QueryID:    req.QueryID,
		Status:     st.Status,
		DeviceInfo: info,
	})
}

// handleStatusResponse resolves a server-initiated status query (see
// QueryDeviceStatus). Responses with no waiter are stale and dropped.
func (c *ProtocolController) handleStatusResponse(payload json.RawMessage) {
	var resp dto.StatusResponse
	if err := json.Unmarshal(payload, &resp); err != nil || resp.QueryID == "" {
		return
	}
	c.mu.Lock()
	waiter, ok := c.statusWaiters[resp.QueryID]
	if ok {
		delete(c.statusWaiters, resp.QueryID)
	}
	c.mu.Unlock()
	if ok {
		waiter <- resp
	}
}
