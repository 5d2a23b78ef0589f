package models

import "time"

const (
	ConfigRiskControl     = "RISK_CONTROL"
	ConfigReplyTemplate   = "REPLY_TEMPLATE"
	ConfigBehaviorPattern = "BEHAVIOR_PATTERN"
	ConfigKeywordFilter   = "KEYWORD_FILTER"
)

func KnownConfigType(t string) bool {
	switch t {
	case ConfigRiskControl, ConfigReplyTemplate, ConfigBehaviorPattern, ConfigKeywordFilter:
		return true
	}
	return false
}

// RobotConfig holds one versioned config category for one robot.
type RobotConfig struct {
	ID         uint   `gorm:"primaryKey"`
	RobotID    string `gorm:"size:191;uniqueIndex:idx_robot_config;not null"`
	ConfigType string `gorm:"size:64;uniqueIndex:idx_robot_config;not null"`
	Config     string `gorm:"type:jsonb"` // JSON payload, shape depends on ConfigType
	Version    int    `gorm:"default:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (RobotConfig) TableName() string { return "robot_configs" }
