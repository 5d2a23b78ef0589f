package socket

import (
	"sync"
	"time"

	"fleet-bridge/app/dto"
	"fleet-bridge/global"
)

// Heartbeat-age buckets for fleet health. A connection older than the
// warning threshold but younger than the timeout is "warning".
const (
	HeartbeatWarnAge    = 50 * time.Second
	HeartbeatTimeoutAge = 60 * time.Second
)

// Conn is one live channel tracked by the hub. RobotID stays empty until
// the connection authenticates. All fields are mutated only under the hub
// lock; handlers on the connection's own read loop may read them freely.
type Conn struct {
	Handle          uint64
	Channel         Channel
	RobotID         string
	DeviceID        string
	UserID          uint
	Authenticated   bool
	ConnectedAt     time.Time
	LastHeartbeatAt time.Time
}

// HeartbeatStats buckets authenticated connections by heartbeat age.
type HeartbeatStats struct {
	Active  int
	Warning int
	Timeout int
}

// Hub tracks live channels by connection handle and, once authenticated,
// by robot id. Process-local only; nothing here is persisted.
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	byHandle map[uint64]*Conn
	byRobot  map[string]*Conn
}

func NewHub() *Hub {
	return &Hub{
		byHandle: make(map[uint64]*Conn),
		byRobot:  make(map[string]*Conn),
	}
}

func (h *Hub) Add(ch Channel) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	now := time.Now()
	c := &Conn{
		Handle:          h.nextID,
		Channel:         ch,
		ConnectedAt:     now,
		LastHeartbeatAt: now,
	}
	h.byHandle[c.Handle] = c
	return c
}

func (h *Hub) Remove(handle uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byHandle[handle]
	if !ok {
		return
	}
	delete(h.byHandle, handle)
	if c.RobotID != "" {
		if cur, ok := h.byRobot[c.RobotID]; ok && cur.Handle == handle {
			delete(h.byRobot, c.RobotID)
		}
	}
}

// BindRobot marks the connection authenticated and binds it to robotID.
// If another connection already holds that robot id it is unbound and
// returned so the caller can close it; at most one authenticated
// connection per robot.
func (h *Hub) BindRobot(handle uint64, robotID, deviceID string, userID uint) (superseded *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byHandle[handle]
	if !ok {
		return nil
	}
	if prev, ok := h.byRobot[robotID]; ok && prev.Handle != handle {
		superseded = prev
		delete(h.byHandle, prev.Handle)
	}
	c.RobotID = robotID
	c.DeviceID = deviceID
	c.UserID = userID
	c.Authenticated = true
	c.LastHeartbeatAt = time.Now()
	h.byRobot[robotID] = c
	return superseded
}

// EvictUnauthenticated removes the connection only if it is still
// registered and never authenticated, returning it so the caller can
// close the channel off the lock. Returns nil when the handle is gone or
// has since authenticated. Used by the auth deadline timer, which runs
// off the connection's read loop.
func (h *Hub) EvictUnauthenticated(handle uint64) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byHandle[handle]
	if !ok || c.Authenticated {
		return nil
	}
	delete(h.byHandle, handle)
	return c
}

func (h *Hub) Get(robotID string) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byRobot[robotID]
}

func (h *Hub) GetByHandle(handle uint64) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byHandle[handle]
}

func (h *Hub) All() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.byHandle))
	for _, c := range h.byHandle {
		out = append(out, c)
	}
	return out
}

// Touch refreshes the heartbeat clock for a connection.
func (h *Hub) Touch(handle uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.byHandle[handle]; ok {
		c.LastHeartbeatAt = time.Now()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byHandle)
}

// OnlineRobots lists robot ids with an authenticated connection.
func (h *Hub) OnlineRobots() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byRobot))
	for id := range h.byRobot {
		out = append(out, id)
	}
	return out
}

// Broadcast sends frame to every authenticated connection except the
// excluded robot ids. Returns how many sends succeeded.
func (h *Hub) Broadcast(frame dto.Frame, excludeRobotIDs []string) int {
	excluded := make(map[string]struct{}, len(excludeRobotIDs))
	for _, id := range excludeRobotIDs {
		excluded[id] = struct{}{}
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.byRobot))
	for id, c := range h.byRobot {
		if _, skip := excluded[id]; skip {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.Channel.Send(frame); err != nil {
			global.Logger.Warn().Err(err).Str("robot", c.RobotID).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	return sent
}

// CleanupTimedOut unregisters every authenticated connection whose
// heartbeat age exceeds timeout and returns them; the caller owns closing
// the channels (never done under the hub lock).
func (h *Hub) CleanupTimedOut(timeout time.Duration) []*Conn {
	now := time.Now()
	h.mu.Lock()
	var evicted []*Conn
	for handle, c := range h.byHandle {
		if !c.Authenticated {
			continue
		}
		if now.Sub(c.LastHeartbeatAt) <= timeout {
			continue
		}
		delete(h.byHandle, handle)
		if cur, ok := h.byRobot[c.RobotID]; ok && cur.Handle == handle {
			delete(h.byRobot, c.RobotID)
		}
		evicted = append(evicted, c)
	}
	h.mu.Unlock()
	return evicted
}

// Stats buckets authenticated connections by heartbeat age: under 50s is
// active, 50-60s is warning, beyond 60s is timeout (due for eviction on
// the next sweep).
func (h *Hub) Stats() HeartbeatStats {
	now := time.Now()
	h.mu.RLock()
	defer h.mu.RUnlock()
	var s HeartbeatStats
	for _, c := range h.byRobot {
		age := now.Sub(c.LastHeartbeatAt)
		switch {
		case age > HeartbeatTimeoutAge:
			s.Timeout++
		case age > HeartbeatWarnAge:
			s.Warning++
		default:
			s.Active++
		}
	}
	return s
}
