package models

import "time"

// DeviceActivation is the external proof that a robot/device pair is
// licensed. This subsystem only reads it during authentication.
type DeviceActivation struct {
	ID          uint   `gorm:"primaryKey"`
	RobotID     string `gorm:"size:191;index;not null"`
	DeviceID    string `gorm:"size:191"`
	UserID      uint   `gorm:"index"`
	Status      string `gorm:"size:32;default:active"`
	ActivatedAt time.Time
}

func (DeviceActivation) TableName() string { return "device_activations" }
