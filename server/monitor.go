package server

import (
	"time"

	"fleet-bridge/app/services"
	"fleet-bridge/app/socket"
	"fleet-bridge/global"

	"github.com/gorilla/websocket"
)

// Monitor owns the periodic sweeps: stale-connection eviction on the
// heartbeat interval and terminal-command reaping on the clean interval.
type Monitor struct {
	Hub      *socket.Hub
	Commands *services.CommandService

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	CleanInterval     time.Duration
	CommandRetention  time.Duration

	stop chan struct{}
}

func NewMonitor(h *socket.Hub, cmds *services.CommandService, heartbeatInterval, heartbeatTimeout, cleanInterval, retention time.Duration) *Monitor {
	return &Monitor{
		Hub:               h,
		Commands:          cmds,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		CleanInterval:     cleanInterval,
		CommandRetention:  retention,
		stop:              make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) Stop() {
	close(m.stop)
}

func (m *Monitor) run() {
	sweep := time.NewTicker(m.HeartbeatInterval)
	clean := time.NewTicker(m.CleanInterval)
	defer sweep.Stop()
	defer clean.Stop()
	for {
		select {
		case <-sweep.C:
			m.Sweep()
		case <-clean.C:
			reaped := m.Commands.CleanCompleted(m.CommandRetention)
			if reaped > 0 {
				global.Logger.Info().Int("reaped", reaped).Msg("completed commands cleaned")
			}
		case <-m.stop:
			return
		}
	}
}

// Sweep evicts every authenticated connection whose heartbeat age passed
// the timeout and logs the fleet-health buckets.
func (m *Monitor) Sweep() {
	evicted := m.Hub.CleanupTimedOut(m.HeartbeatTimeout)
	for _, conn := range evicted {
		global.Logger.Warn().Str("robot", conn.RobotID).Time("last_heartbeat", conn.LastHeartbeatAt).Msg("evicting timed out connection")
		_ = conn.Channel.Close(websocket.CloseNormalClosure, "Connection timeout")
	}
	stats := m.Hub.Stats()
	global.Logger.Debug().
		Int("active", stats.Active).
		Int("warning", stats.Warning).
		Int("timeout", stats.Timeout).
		Int("evicted", len(evicted)).
		Msg("heartbeat sweep")
}
