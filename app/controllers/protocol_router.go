package controllers

import (
	"encoding/json"

	"fleet-bridge/app/dto"
	"fleet-bridge/app/socket"
	"fleet-bridge/global"
)

// HandleMessage processes one inbound frame. Each connection's read loop
// calls this sequentially, so frames from one robot are handled in
// arrival order. Panics inside a handler are converted into a generic
// error frame instead of killing the connection.
func (c *ProtocolController) HandleMessage(conn *socket.Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			global.Logger.Error().Interface("panic", r).Uint64("handle", conn.Handle).Msg("handler panic")
			c.sendError(conn, 500, "internal error", "")
		}
	}()

	var frame dto.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendError(conn, 400, "malformed frame", err.Error())
		return
	}

	log := global.Logger.With().Uint64("handle", conn.Handle).Str("robot", conn.RobotID).Str("type", frame.Type).Logger()
	log.Debug().Int("payload_len", len(frame.Data)).Msg("frame received")

	switch frame.Type {
	case dto.FrameAuthenticate:
		c.handleAuthenticate(conn, frame.Data)
	case dto.FrameHeartbeat:
		if !c.requireAuth(conn) {
			return
		}
		c.handleHeartbeat(conn, frame.Data)
	case dto.FramePing:
		// Legacy liveness probe, kept for old firmware: no auth required,
		// still refreshes the heartbeat clock.
		c.Hub.Touch(conn.Handle)
		c.sendFrame(conn, dto.FramePong, nil)
	case dto.FrameResult:
		if !c.requireAuth(conn) {
			return
		}
		c.handleResult(conn, frame.Data)
	case dto.FrameStatusQuery:
		if !c.requireAuth(conn) {
			return
		}
		c.handleStatusQuery(conn, frame.Data)
	case dto.FrameStatusResponse:
		if !c.requireAuth(conn) {
			return
		}
		c.handleStatusResponse(frame.Data)
	default:
		log.Warn().Msg("unknown frame type")
		c.sendError(conn, 500, "unknown message type", frame.Type)
	}
}

func (c *ProtocolController) requireAuth(conn *socket.Conn) bool {
	if conn.Authenticated {
		return true
	}
	c.sendError(conn, 401, "not authenticated", "")
	return false
}
