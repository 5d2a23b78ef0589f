package controllers

import (
	"sync"
	"time"

	"fleet-bridge/app/dto"
	jwtutil "fleet-bridge/app/jwt"
	"fleet-bridge/app/repo"
	"fleet-bridge/app/services"
	"fleet-bridge/app/socket"
	"fleet-bridge/global"
)

// ProtocolController owns the per-connection authentication state machine
// and routes every inbound frame. It is the only component touching both
// the hub and the queue/config stores.
type ProtocolController struct {
	Hub         *socket.Hub
	Commands    *services.CommandService
	Configs     *services.ConfigService
	Status      *services.StatusService
	Activations *repo.ActivationRepository
	Verifier    *jwtutil.Verifier

	MaxConnections     int
	AuthTimeout        time.Duration
	StatusQueryTimeout time.Duration

	mu            sync.Mutex
	authTimers    map[uint64]*time.Timer
	statusWaiters map[string]chan dto.StatusResponse // queryId -> waiter
}

func NewProtocolController(h *socket.Hub, cmds *services.CommandService, cfgs *services.ConfigService, status *services.StatusService, acts *repo.ActivationRepository, verifier *jwtutil.Verifier) *ProtocolController {
	return &ProtocolController{
		Hub:                h,
		Commands:           cmds,
		Configs:            cfgs,
		Status:             status,
		Activations:        acts,
		Verifier:           verifier,
		MaxConnections:     1000,
		AuthTimeout:        30 * time.Second,
		StatusQueryTimeout: 5 * time.Second,
		authTimers:         make(map[uint64]*time.Timer),
		statusWaiters:      make(map[string]chan dto.StatusResponse),
	}
}

// HandleOpen admits a new channel: capacity check first, then registration
// and the authentication deadline. Returns nil when the channel was
// rejected and closed.
func (c *ProtocolController) HandleOpen(ch socket.Channel) *socket.Conn {
	if c.MaxConnections > 0 && c.Hub.Count() >= c.MaxConnections {
		c.sendErrorTo(ch, socket.CloseConnectionLimit, "connection limit reached", "", "")
		_ = ch.Close(socket.CloseConnectionLimit, "connection limit reached")
		global.Logger.Warn().Str("remote", ch.RemoteAddr()).Msg("connection rejected: limit reached")
		return nil
	}
	conn := c.Hub.Add(ch)
	global.Logger.Info().Uint64("handle", conn.Handle).Str("remote", ch.RemoteAddr()).Msg("connection opened")

	handle := conn.Handle
	timer := time.AfterFunc(c.AuthTimeout, func() {
		// The connection may have authenticated or closed while the timer
		// was pending; the hub decides under its own lock.
		cur := c.Hub.EvictUnauthenticated(handle)
		if cur == nil {
			return
		}
		global.Logger.Warn().Uint64("handle", handle).Msg("auth timeout, closing connection")
		_ = cur.Channel.Close(socket.CloseAuthTimeout, "auth timeout")
	})
	c.mu.Lock()
	c.authTimers[handle] = timer
	c.mu.Unlock()
	return conn
}

// HandleClose runs from the transport close hook and evicts the
// connection immediately.
func (c *ProtocolController) HandleClose(conn *socket.Conn) {
	c.stopAuthTimer(conn.Handle)
	c.Hub.Remove(conn.Handle)
	global.Logger.Info().Uint64("handle", conn.Handle).Str("robot", conn.RobotID).Msg("connection closed")
}

func (c *ProtocolController) stopAuthTimer(handle uint64) {
	c.mu.Lock()
	if t, ok := c.authTimers[handle]; ok {
		t.Stop()
		delete(c.authTimers, handle)
	}
	c.mu.Unlock()
}

func (c *ProtocolController) sendFrame(conn *socket.Conn, kind string, payload any) {
	c.sendFrameTo(conn.Channel, kind, payload)
}

func (c *ProtocolController) sendFrameTo(ch socket.Channel, kind string, payload any) {
	frame, err := dto.NewFrame(kind, payload)
	if err != nil {
		global.Logger.Error().Err(err).Str("kind", kind).Msg("marshal outbound frame failed")
		return
	}
	if err := ch.Send(frame); err != nil {
		global.Logger.Warn().Err(err).Str("kind", kind).Msg("send frame failed (likely client disconnected)")
	}
}

func (c *ProtocolController) sendError(conn *socket.Conn, code int, message, details string) {
	c.sendErrorTo(conn.Channel, code, message, details, conn.RobotID)
}

func (c *ProtocolController) sendErrorTo(ch socket.Channel, code int, message, details, robotID string) {
	c.sendFrameTo(ch, dto.FrameError, dto.ErrorPayload{Code: code, Message: message, Details: details, RobotID: robotID})
}
