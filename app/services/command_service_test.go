package services

import (
	"encoding/json"
	"testing"
	"time"

	"fleet-bridge/app/models"
	"fleet-bridge/app/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommandService(t *testing.T) (*CommandService, *repo.CommandRepository) {
	t.Helper()
	r := repo.NewCommandRepository(newTestDB(t))
	return NewCommandService(r), r
}

func TestEnqueuePersistsPending(t *testing.T) {
	s, r := newCommandService(t)
	cmd, err := s.Enqueue("r1", "send_message", "friend-1", json.RawMessage(`{"text":"hi"}`), models.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, models.CommandPending, cmd.Status)
	assert.Equal(t, 1001, cmd.CommandCode)

	stored, err := r.Find(cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandPending, stored.Status)
	assert.Equal(t, "r1", stored.RobotID)
}

func TestGetNextPriorityOrder(t *testing.T) {
	s, _ := newCommandService(t)
	low, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityLow)
	require.NoError(t, err)
	urgent, err := s.Enqueue("r1", "restart", "", nil, models.PriorityUrgent)
	require.NoError(t, err)
	normal, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)

	// Higher priority wins regardless of enqueue order.
	pending := s.Pending("r1")
	require.Len(t, pending, 3)
	assert.Equal(t, urgent.ID, pending[0].ID)
	assert.Equal(t, normal.ID, pending[1].ID)
	assert.Equal(t, low.ID, pending[2].ID)
	assert.Equal(t, urgent.ID, s.GetNext("r1").ID)
}

func TestGetNextFIFOWithinPriority(t *testing.T) {
	s, _ := newCommandService(t)
	first, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)
	second, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)

	pending := s.Pending("r1")
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestGetNextFiltersByRobot(t *testing.T) {
	s, _ := newCommandService(t)
	_, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityUrgent)
	require.NoError(t, err)
	other, err := s.Enqueue("r2", "send_message", "", nil, models.PriorityLow)
	require.NoError(t, err)

	got := s.GetNext("r2")
	require.NotNil(t, got)
	assert.Equal(t, other.ID, got.ID)
	assert.Nil(t, s.GetNext("r3"))
}

func TestMarkExecutingRemovesFromSelection(t *testing.T) {
	s, _ := newCommandService(t)
	cmd, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, s.MarkExecuting(cmd.ID))

	assert.Nil(t, s.GetNext("r1"))
	assert.Equal(t, models.CommandExecuting, s.Get(cmd.ID).Status)

	// executing -> executing is not a legal move
	assert.Error(t, s.MarkExecuting(cmd.ID))
}

func TestResultTransitions(t *testing.T) {
	s, r := newCommandService(t)
	cmd, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, s.MarkExecuting(cmd.ID))
	require.NoError(t, s.MarkSuccess(cmd.ID, json.RawMessage(`{"ok":true}`), time.Now()))

	assert.Equal(t, models.CommandSuccess, s.Get(cmd.ID).Status)
	stored, err := r.Find(cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandSuccess, stored.Status)
	require.NotNil(t, stored.ExecutedAt)

	// terminal commands reject further transitions
	assert.Error(t, s.MarkFailed(cmd.ID, "late failure", time.Now()))
	assert.Error(t, s.MarkSuccess("no-such-id", nil, time.Now()))
}

func TestPendingCanFailDirectly(t *testing.T) {
	s, _ := newCommandService(t)
	cmd, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(cmd.ID, "channel dropped", time.Now()))
	assert.Equal(t, models.CommandFailed, s.Get(cmd.ID).Status)
}

func TestCleanCompletedReapsOldTerminal(t *testing.T) {
	s, _ := newCommandService(t)
	old, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, s.MarkExecuting(old.ID))
	require.NoError(t, s.MarkSuccess(old.ID, nil, time.Now().Add(-11*time.Minute)))

	recent, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, s.MarkExecuting(recent.ID))
	require.NoError(t, s.MarkSuccess(recent.ID, nil, time.Now()))

	pending, err := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	require.NoError(t, err)

	reaped := s.CleanCompleted(10 * time.Minute)
	assert.Equal(t, 1, reaped)
	assert.Nil(t, s.Get(old.ID))
	assert.NotNil(t, s.Get(recent.ID))
	assert.NotNil(t, s.Get(pending.ID))
}

func TestStats(t *testing.T) {
	s, _ := newCommandService(t)
	a, _ := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	b, _ := s.Enqueue("r1", "send_message", "", nil, models.PriorityNormal)
	c, _ := s.Enqueue("r2", "restart", "", nil, models.PriorityHigh)
	require.NoError(t, s.MarkExecuting(a.ID))
	require.NoError(t, s.MarkExecuting(b.ID))
	require.NoError(t, s.MarkSuccess(b.ID, nil, time.Now()))
	require.NoError(t, s.MarkFailed(c.ID, "boom", time.Now()))

	st := s.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 0, st.Pending)
	assert.Equal(t, 1, st.Executing)
	assert.Equal(t, 1, st.Success)
	assert.Equal(t, 1, st.Failed)
}

func TestQueueWarmsFromStore(t *testing.T) {
	gdb := newTestDB(t)
	r := repo.NewCommandRepository(gdb)
	s1 := NewCommandService(r)
	cmd, err := s1.Enqueue("r1", "send_message", "", nil, models.PriorityHigh)
	require.NoError(t, err)

	// A fresh service over the same store sees the queued work.
	s2 := NewCommandService(r)
	got := s2.GetNext("r1")
	require.NotNil(t, got)
	assert.Equal(t, cmd.ID, got.ID)
}
