package repo

import (
	"fleet-bridge/app/models"

	"gorm.io/gorm"
)

type StatusRepository struct {
	db *gorm.DB
}

func NewStatusRepository(db *gorm.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

func (r *StatusRepository) Find(robotID string) (*models.DeviceStatus, error) {
	var st models.DeviceStatus
	if err := r.db.Where("robot_id = ?", robotID).First(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *StatusRepository) Upsert(st *models.DeviceStatus) error {
	var existing models.DeviceStatus
	if err := r.db.Where("robot_id = ?", st.RobotID).First(&existing).Error; err == nil {
		st.ID = existing.ID
		return r.db.Save(st).Error
	}
	return r.db.Create(st).Error
}
