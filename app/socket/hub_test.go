package socket

import (
	"sync"
	"testing"
	"time"

	"fleet-bridge/app/dto"
	"fleet-bridge/global"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	global.Logger = zerolog.Nop()
	m.Run()
}

type fakeChannel struct {
	mu       sync.Mutex
	frames   []dto.Frame
	closed   bool
	code     int
	reason   string
	failSend bool
}

func (f *fakeChannel) Send(frame dto.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return assert.AnError
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeChannel) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.code = code
	f.reason = reason
	return nil
}

func (f *fakeChannel) RemoteAddr() string { return "test" }

func (f *fakeChannel) sent() []dto.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.Frame(nil), f.frames...)
}

func TestHubAddRemove(t *testing.T) {
	h := NewHub()
	c1 := h.Add(&fakeChannel{})
	c2 := h.Add(&fakeChannel{})
	require.NotEqual(t, c1.Handle, c2.Handle)
	assert.Equal(t, 2, h.Count())

	h.Remove(c1.Handle)
	assert.Equal(t, 1, h.Count())
	assert.Nil(t, h.GetByHandle(c1.Handle))
	assert.NotNil(t, h.GetByHandle(c2.Handle))
}

func TestHubBindRobot(t *testing.T) {
	h := NewHub()
	c := h.Add(&fakeChannel{})
	superseded := h.BindRobot(c.Handle, "r1", "d1", 7)
	require.Nil(t, superseded)

	got := h.Get("r1")
	require.NotNil(t, got)
	assert.Equal(t, c.Handle, got.Handle)
	assert.True(t, got.Authenticated)
	assert.Equal(t, "d1", got.DeviceID)
	assert.Equal(t, uint(7), got.UserID)
	assert.ElementsMatch(t, []string{"r1"}, h.OnlineRobots())
}

func TestHubBindRobotSupersedes(t *testing.T) {
	h := NewHub()
	old := h.Add(&fakeChannel{})
	require.Nil(t, h.BindRobot(old.Handle, "r1", "d1", 1))

	next := h.Add(&fakeChannel{})
	superseded := h.BindRobot(next.Handle, "r1", "d1", 1)
	require.NotNil(t, superseded)
	assert.Equal(t, old.Handle, superseded.Handle)

	// Only the new binding survives, and the old handle is gone.
	assert.Equal(t, next.Handle, h.Get("r1").Handle)
	assert.Nil(t, h.GetByHandle(old.Handle))
	assert.Equal(t, 1, h.Count())
}

func TestHubRemoveKeepsNewerBinding(t *testing.T) {
	h := NewHub()
	old := h.Add(&fakeChannel{})
	h.BindRobot(old.Handle, "r1", "d1", 1)
	next := h.Add(&fakeChannel{})
	h.BindRobot(next.Handle, "r1", "d1", 1)

	// A late close hook for the superseded handle must not unbind the
	// newer connection.
	h.Remove(old.Handle)
	require.NotNil(t, h.Get("r1"))
	assert.Equal(t, next.Handle, h.Get("r1").Handle)
}

func TestHubBroadcastExcludes(t *testing.T) {
	h := NewHub()
	ch1, ch2, ch3 := &fakeChannel{}, &fakeChannel{}, &fakeChannel{}
	h.BindRobot(h.Add(ch1).Handle, "r1", "", 0)
	h.BindRobot(h.Add(ch2).Handle, "r2", "", 0)
	h.BindRobot(h.Add(ch3).Handle, "r3", "", 0)
	// unauthenticated connections never receive broadcasts
	ch4 := &fakeChannel{}
	h.Add(ch4)

	frame, err := dto.NewFrame(dto.FrameConfigPush, map[string]string{"k": "v"})
	require.NoError(t, err)
	sent := h.Broadcast(frame, []string{"r2"})
	assert.Equal(t, 2, sent)
	assert.Len(t, ch1.sent(), 1)
	assert.Len(t, ch2.sent(), 0)
	assert.Len(t, ch3.sent(), 1)
	assert.Len(t, ch4.sent(), 0)
}

func TestHubBroadcastCountsOnlyDelivered(t *testing.T) {
	h := NewHub()
	ok, broken := &fakeChannel{}, &fakeChannel{failSend: true}
	h.BindRobot(h.Add(ok).Handle, "r1", "", 0)
	h.BindRobot(h.Add(broken).Handle, "r2", "", 0)

	frame, err := dto.NewFrame(dto.FramePong, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Broadcast(frame, nil))
}

func TestHubEvictUnauthenticated(t *testing.T) {
	h := NewHub()
	unauth := h.Add(&fakeChannel{})
	authed := h.Add(&fakeChannel{})
	h.BindRobot(authed.Handle, "r1", "", 0)

	got := h.EvictUnauthenticated(unauth.Handle)
	require.NotNil(t, got)
	assert.Equal(t, unauth.Handle, got.Handle)
	assert.Nil(t, h.GetByHandle(unauth.Handle))

	// authenticated and already-removed handles are left alone
	assert.Nil(t, h.EvictUnauthenticated(authed.Handle))
	assert.NotNil(t, h.Get("r1"))
	assert.Nil(t, h.EvictUnauthenticated(unauth.Handle))
}

func TestHubCleanupTimedOut(t *testing.T) {
	h := NewHub()
	stale := h.Add(&fakeChannel{})
	h.BindRobot(stale.Handle, "r1", "", 0)
	fresh := h.Add(&fakeChannel{})
	h.BindRobot(fresh.Handle, "r2", "", 0)
	unauth := h.Add(&fakeChannel{})

	stale.LastHeartbeatAt = time.Now().Add(-61 * time.Second)
	unauth.LastHeartbeatAt = time.Now().Add(-5 * time.Minute)

	evicted := h.CleanupTimedOut(60 * time.Second)
	require.Len(t, evicted, 1)
	assert.Equal(t, "r1", evicted[0].RobotID)
	assert.Nil(t, h.Get("r1"))
	assert.NotNil(t, h.Get("r2"))
	// connections that never authenticated are the auth timer's problem,
	// not the heartbeat sweep's
	assert.NotNil(t, h.GetByHandle(unauth.Handle))
	assert.NotContains(t, h.OnlineRobots(), "r1")
}

func TestHubStatsBuckets(t *testing.T) {
	h := NewHub()
	active := h.Add(&fakeChannel{})
	h.BindRobot(active.Handle, "r1", "", 0)
	warning := h.Add(&fakeChannel{})
	h.BindRobot(warning.Handle, "r2", "", 0)
	timedOut := h.Add(&fakeChannel{})
	h.BindRobot(timedOut.Handle, "r3", "", 0)

	warning.LastHeartbeatAt = time.Now().Add(-55 * time.Second)
	timedOut.LastHeartbeatAt = time.Now().Add(-65 * time.Second)

	s := h.Stats()
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.Warning)
	assert.Equal(t, 1, s.Timeout)
}

func TestHubTouch(t *testing.T) {
	h := NewHub()
	c := h.Add(&fakeChannel{})
	h.BindRobot(c.Handle, "r1", "", 0)
	c.LastHeartbeatAt = time.Now().Add(-time.Minute)
	h.Touch(c.Handle)
	assert.WithinDuration(t, time.Now(), c.LastHeartbeatAt, time.Second)
}
