package models

import "time"

// DeviceStatus is the latest reported state of one robot's device,
// upserted from heartbeat frames.
type DeviceStatus struct {
	ID              uint   `gorm:"primaryKey"`
	RobotID         string `gorm:"uniqueIndex;size:191;not null"`
	Status          string `gorm:"size:32;default:idle"`
	DeviceInfo      string `gorm:"type:jsonb"`
	Battery         int
	Signal          int
	MemoryUsage     int
	CPUUsage        int    `gorm:"column:cpu_usage"`
	NetworkType     string `gorm:"size:32"`
	LastHeartbeatAt *time.Time
	LastUpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (DeviceStatus) TableName() string { return "device_status" }
