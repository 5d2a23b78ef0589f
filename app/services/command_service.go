package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-bridge/app/dto"
	"fleet-bridge/app/models"
	"fleet-bridge/app/repo"
	"fleet-bridge/global"

	"github.com/google/uuid"
)

// CommandService is the durable outbound command queue. Rows are persisted
// through the repository; selection and the in-flight set live in memory.
// The in-memory view is warmed from non-terminal rows on construction so
// queued work survives a restart.
type CommandService struct {
	repo *repo.CommandRepository

	mu       sync.Mutex
	commands map[string]*models.Command
	inflight map[string]struct{}
	nextSeq  uint64
}

func NewCommandService(r *repo.CommandRepository) *CommandService {
	s := &CommandService{
		repo:     r,
		commands: make(map[string]*models.Command),
		inflight: make(map[string]struct{}),
	}
	active, err := r.ListActive()
	if err != nil {
		global.Logger.Error().Err(err).Msg("warm command queue from store failed")
		return s
	}
	for i := range active {
		cmd := active[i]
		s.nextSeq++
		cmd.Seq = s.nextSeq
		// Commands stuck in executing across a restart stay executing; there
		// is deliberately no execution watchdog.
		if cmd.Status == models.CommandExecuting {
			s.inflight[cmd.ID] = struct{}{}
		}
		s.commands[cmd.ID] = &cmd
	}
	return s
}

// Enqueue persists a new pending command and returns it. Persistence here
// is synchronous: a command the store never saw must not enter the queue.
func (s *CommandService) Enqueue(robotID, commandType, target string, params json.RawMessage, priority models.CommandPriority) (*models.Command, error) {
	if robotID == "" {
		return nil, fmt.Errorf("robot id required")
	}
	cmd := &models.Command{
		ID:          uuid.NewString(),
		RobotID:     robotID,
		CommandType: commandType,
		CommandCode: models.CommandCodeFor(commandType),
		Target:      target,
		Params:      string(params),
		Priority:    priority,
		Status:      models.CommandPending,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(cmd); err != nil {
		return nil, fmt.Errorf("persist command: %w", err)
	}
	s.mu.Lock()
	s.nextSeq++
	cmd.Seq = s.nextSeq
	s.commands[cmd.ID] = cmd
	s.mu.Unlock()
	return cmd, nil
}

// GetNext returns the head of the robot's pending queue: highest priority
// first, oldest first within the same priority. Commands already in flight
// are skipped.
func (s *CommandService) GetNext(robotID string) *models.Command {
	pending := s.Pending(robotID)
	if len(pending) == 0 {
		return nil
	}
	return pending[0]
}

// Pending returns every dispatchable command for the robot in dispatch
// order. Used on (re)authentication to drain the whole queue in one pass.
func (s *CommandService) Pending(robotID string) []*models.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Command
	for id, cmd := range s.commands {
		if cmd.RobotID != robotID || cmd.Status != models.CommandPending {
			continue
		}
		if _, busy := s.inflight[id]; busy {
			continue
		}
		out = append(out, cmd)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (s *CommandService) Get(id string) *models.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands[id]
}

// MarkExecuting transitions pending -> executing. The row update is
// best-effort: a failed write is logged and the in-memory transition
// stands.
func (s *CommandService) MarkExecuting(id string) error {
	s.mu.Lock()
	cmd, ok := s.commands[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown command %s", id)
	}
	if !models.CanTransition(cmd.Status, models.CommandExecuting) {
		s.mu.Unlock()
		return fmt.Errorf("command %s is %s, cannot start executing", id, cmd.Status)
	}
	cmd.Status = models.CommandExecuting
	cmd.UpdatedAt = time.Now()
	s.inflight[id] = struct{}{}
	s.mu.Unlock()

	if err := s.repo.UpdateStatus(id, models.CommandExecuting); err != nil {
		global.Logger.Error().Err(err).Str("command", id).Msg("persist executing status failed")
	}
	return nil
}

// MarkSuccess records the device-reported success and releases the
// in-flight slot.
func (s *CommandService) MarkSuccess(id string, result json.RawMessage, executedAt time.Time) error {
	return s.finish(id, models.CommandSuccess, string(result), "", executedAt)
}

// MarkFailed records the device-reported failure and releases the
// in-flight slot. Pending commands may also fail directly (e.g. the
// channel dropped mid-push).
func (s *CommandService) MarkFailed(id, errorMessage string, executedAt time.Time) error {
	return s.finish(id, models.CommandFailed, "", errorMessage, executedAt)
}

func (s *CommandService) finish(id string, status models.CommandStatus, result, errMsg string, executedAt time.Time) error {
	if executedAt.IsZero() {
		executedAt = time.Now()
	}
	s.mu.Lock()
	cmd, ok := s.commands[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown command %s", id)
	}
	if !models.CanTransition(cmd.Status, status) {
		s.mu.Unlock()
		return fmt.Errorf("command %s is %s, cannot move to %s", id, cmd.Status, status)
	}
	cmd.Status = status
	cmd.Result = result
	cmd.ErrorMessage = errMsg
	at := executedAt
	cmd.ExecutedAt = &at
	cmd.UpdatedAt = time.Now()
	delete(s.inflight, id)
	s.mu.Unlock()

	if err := s.repo.MarkFinished(id, status, result, errMsg, executedAt); err != nil {
		global.Logger.Error().Err(err).Str("command", id).Msg("persist command result failed")
	}
	return nil
}

// CleanCompleted drops terminal commands older than maxAge past execution
// from memory. Persisted rows stay for audit. Returns how many were
// reaped.
func (s *CommandService) CleanCompleted(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	reaped := 0
	for id, cmd := range s.commands {
		if !cmd.Status.Terminal() {
			continue
		}
		at := cmd.UpdatedAt
		if cmd.ExecutedAt != nil {
			at = *cmd.ExecutedAt
		}
		if at.Before(cutoff) {
			delete(s.commands, id)
			reaped++
		}
	}
	return reaped
}

func (s *CommandService) Stats() dto.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st dto.QueueStats
	for _, cmd := range s.commands {
		st.Total++
		switch cmd.Status {
		case models.CommandPending:
			st.Pending++
		case models.CommandExecuting:
			st.Executing++
		case models.CommandSuccess:
			st.Success++
		case models.CommandFailed:
			st.Failed++
		}
	}
	return st
}

// History reads the persisted audit trail straight from the store.
func (s *CommandService) History(robotID string, limit int) ([]models.Command, error) {
	return s.repo.ListByRobot(robotID, limit)
}
