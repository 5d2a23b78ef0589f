package repo

import (
	"fleet-bridge/app/models"

	"gorm.io/gorm"
)

// ActivationRepository reads the external device_activations table. This
// subsystem never writes it.
type ActivationRepository struct {
	db *gorm.DB
}

func NewActivationRepository(db *gorm.DB) *ActivationRepository {
	return &ActivationRepository{db: db}
}

// FindActive returns the active activation for a robot, or
// gorm.ErrRecordNotFound when the robot is not licensed.
func (r *ActivationRepository) FindActive(robotID string) (*models.DeviceActivation, error) {
	var act models.DeviceActivation
	err := r.db.Where("robot_id = ? AND status = ?", robotID, "active").First(&act).Error
	if err != nil {
		return nil, err
	}
	return &act, nil
}
