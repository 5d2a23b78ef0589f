package repo

import (
	"time"

	"fleet-bridge/app/models"

	"gorm.io/gorm"
)

type CommandRepository struct {
	db *gorm.DB
}

func NewCommandRepository(db *gorm.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

func (r *CommandRepository) Create(cmd *models.Command) error {
	return r.db.Create(cmd).Error
}

func (r *CommandRepository) Find(id string) (*models.Command, error) {
	var cmd models.Command
	if err := r.db.Where("id = ?", id).First(&cmd).Error; err != nil {
		return nil, err
	}
	return &cmd, nil
}

// UpdateStatus moves a command to a non-terminal status.
func (r *CommandRepository) UpdateStatus(id string, status models.CommandStatus) error {
	return r.db.Model(&models.Command{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status)}).Error
}

// MarkFinished records the terminal outcome reported by the device.
func (r *CommandRepository) MarkFinished(id string, status models.CommandStatus, result, errMsg string, executedAt time.Time) error {
	return r.db.Model(&models.Command{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"result":        result,
			"error_message": errMsg,
			"executed_at":   executedAt,
		}).Error
}

// ListActive returns every non-terminal command, oldest first. Used to warm
// the in-memory queue on boot so queued work survives a restart.
func (r *CommandRepository) ListActive() ([]models.Command, error) {
	var cmds []models.Command
	err := r.db.
		Where("status IN ?", []models.CommandStatus{models.CommandPending, models.CommandExecuting}).
		Order("created_at ASC").
		Find(&cmds).Error
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

// ListByRobot returns the full audit trail for one robot, newest first.
func (r *CommandRepository) ListByRobot(robotID string, limit int) ([]models.Command, error) {
	q := r.db.Where("robot_id = ?", robotID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var cmds []models.Command
	if err := q.Find(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}
