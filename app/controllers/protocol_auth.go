package controllers

import (
	"encoding/json"
	"errors"

	"fleet-bridge/app/dto"
	jwtutil "fleet-bridge/app/jwt"
	"fleet-bridge/app/models"
	"fleet-bridge/app/socket"
	"fleet-bridge/global"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// handleAuthenticate runs the authentication sequence: token signature,
// claim/frame robot id match, active device activation. On success the
// robot id is bound (superseding any prior channel for that robot) and
// every pending command is flushed.
func (c *ProtocolController) handleAuthenticate(conn *socket.Conn, payload json.RawMessage) {
	var req dto.AuthenticateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(conn, 401, "invalid authenticate payload", err.Error())
		return
	}
	if req.RobotID == "" || req.Token == "" {
		c.sendError(conn, 401, "missing robotId or token", "")
		return
	}

	claims, err := c.Verifier.Parse(req.Token)
	if err != nil {
		// Expired tokens are reported distinctly so devices can refresh
		// instead of re-provisioning.
		if errors.Is(err, jwtutil.ErrTokenExpired) {
			c.sendError(conn, 401, "token expired", "")
		} else {
			c.sendError(conn, 401, "invalid token", "")
		}
		global.Logger.Warn().Err(err).Str("robot", req.RobotID).Msg("authenticate token rejected")
		return
	}
	if claims.RobotID != req.RobotID {
		c.sendError(conn, 403, "robot id mismatch", "")
		global.Logger.Warn().Str("claim_robot", claims.RobotID).Str("frame_robot", req.RobotID).Msg("authenticate robot mismatch")
		return
	}

	act, err := c.Activations.FindActive(req.RobotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.sendError(conn, 404, "device not activated", "")
		} else {
			c.sendError(conn, 500, "activation lookup failed", "")
			global.Logger.Error().Err(err).Str("robot", req.RobotID).Msg("activation lookup failed")
		}
		return
	}

	// The activation lookup suspended on the store; the channel may have
	// closed in the meantime.
	if c.Hub.GetByHandle(conn.Handle) == nil {
		return
	}

	deviceID := claims.DeviceID
	if deviceID == "" {
		deviceID = act.DeviceID
	}
	userID := claims.UserID
	if userID == 0 {
		userID = act.UserID
	}

	superseded := c.Hub.BindRobot(conn.Handle, req.RobotID, deviceID, userID)
	c.stopAuthTimer(conn.Handle)
	if superseded != nil {
		global.Logger.Info().Str("robot", req.RobotID).Uint64("old_handle", superseded.Handle).Msg("superseding previous connection")
		_ = superseded.Channel.Close(websocket.CloseNormalClosure, "superseded by new connection")
	}

	c.sendFrame(conn, dto.FrameAuthenticated, dto.AuthenticatedResponse{
		Authenticated: true,
		RobotID:       req.RobotID,
		DeviceID:      deviceID,
		UserID:        userID,
	})
	global.Logger.Info().Str("robot", req.RobotID).Str("device", deviceID).Msg("robot authenticated")

	c.flushPending(conn)
}

// flushPending drains every pending command for the robot in one pass.
// Dispatch is optimistic: each command is marked executing as soon as the
// push is written, no device acknowledgement required.
func (c *ProtocolController) flushPending(conn *socket.Conn) {
	pending := c.Commands.Pending(conn.RobotID)
	for _, cmd := range pending {
		// The connection may drop mid-flush; stop and leave the remainder
		// pending for the next authentication.
		if c.Hub.GetByHandle(conn.Handle) == nil {
			return
		}
		if err := c.pushCommand(conn, cmd); err != nil {
			global.Logger.Warn().Err(err).Str("robot", conn.RobotID).Str("command", cmd.ID).Msg("command flush interrupted")
			return
		}
	}
	if len(pending) > 0 {
		global.Logger.Info().Str("robot", conn.RobotID).Int("count", len(pending)).Msg("flushed pending commands")
	}
}

func (c *ProtocolController) pushCommand(conn *socket.Conn, cmd *models.Command) error {
	frame, err := dto.NewFrame(dto.FrameCommandPush, dto.CommandPush{
		CommandID:   cmd.ID,
		RobotID:     cmd.RobotID,
		CommandType: cmd.CommandType,
		CommandCode: cmd.CommandCode,
		Target:      cmd.Target,
		Params:      json.RawMessage(cmd.Params),
		Priority:    int(cmd.Priority),
		CreatedAt:   cmd.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := conn.Channel.Send(frame); err != nil {
		return err
	}
	if err := c.Commands.MarkExecuting(cmd.ID); err != nil {
		global.Logger.Warn().Err(err).Str("command", cmd.ID).Msg("mark executing after push failed")
	}
	return nil
}
