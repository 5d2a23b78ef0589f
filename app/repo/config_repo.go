package repo

import (
	"fleet-bridge/app/models"

	"gorm.io/gorm"
)

type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Find(robotID, configType string) (*models.RobotConfig, error) {
	var cfg models.RobotConfig
	err := r.db.Where("robot_id = ? AND config_type = ?", robotID, configType).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert saves by primary key when the row exists, otherwise creates it.
func (r *ConfigRepository) Upsert(cfg *models.RobotConfig) error {
	var existing models.RobotConfig
	err := r.db.Where("robot_id = ? AND config_type = ?", cfg.RobotID, cfg.ConfigType).First(&existing).Error
	if err == nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		return r.db.Save(cfg).Error
	}
	return r.db.Create(cfg).Error
}

// Delete removes the row; reports whether anything was deleted.
func (r *ConfigRepository) Delete(robotID, configType string) (bool, error) {
	res := r.db.Where("robot_id = ? AND config_type = ?", robotID, configType).Delete(&models.RobotConfig{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
