package models

import "time"

type CommandPriority int

const (
	PriorityLow    CommandPriority = 0
	PriorityNormal CommandPriority = 1
	PriorityHigh   CommandPriority = 2
	PriorityUrgent CommandPriority = 3
)

type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandExecuting CommandStatus = "executing"
	CommandSuccess   CommandStatus = "success"
	CommandFailed    CommandStatus = "failed"
)

// commandCodes maps a command type to its numeric wire code. Unknown types
// get code 0 and are still deliverable; the device decides what to do.
var commandCodes = map[string]int{
	"send_message":   1001,
	"add_contact":    1002,
	"sync_contacts":  1003,
	"fetch_moments":  1004,
	"execute_script": 1005,
	"restart":        1006,
}

func CommandCodeFor(commandType string) int {
	return commandCodes[commandType]
}

// Command is one durable instruction queued for a robot.
type Command struct {
	ID           string          `gorm:"primaryKey;size:64"`
	RobotID      string          `gorm:"size:191;index"`
	CommandType  string          `gorm:"size:64"`
	CommandCode  int             `gorm:"default:0"`
	Target       string          `gorm:"size:191"`
	Params       string          `gorm:"type:jsonb"` // JSON payload
	Priority     CommandPriority `gorm:"default:0"`
	Status       CommandStatus   `gorm:"size:32;index;default:pending"`
	Result       string          `gorm:"type:jsonb"`
	ErrorMessage string          `gorm:"type:text"`
	CreatedAt    time.Time       `gorm:"autoCreateTime"`
	ExecutedAt   *time.Time
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	// Seq breaks creation-time ties for FIFO ordering inside one process.
	Seq uint64 `gorm:"-" json:"-"`
}

func (Command) TableName() string { return "commands" }

func (s CommandStatus) Terminal() bool {
	return s == CommandSuccess || s == CommandFailed
}

// CanTransition validates a command lifecycle move.
func CanTransition(from, to CommandStatus) bool {
	switch from {
	case CommandPending:
		return to == CommandExecuting || to == CommandFailed
	case CommandExecuting:
		return to == CommandSuccess || to == CommandFailed
	default:
		return false
	}
}
