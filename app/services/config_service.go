package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleet-bridge/app/models"
	"fleet-bridge/app/repo"

	"gorm.io/gorm"
)

// ValidationError names the specific constraint a config payload violated.
type ValidationError struct {
	ConfigType string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s config: %s", e.ConfigType, e.Constraint)
}

// RiskControlConfig is the only category with active validation rules.
type RiskControlConfig struct {
	MaxMessagesPerMinute int `json:"maxMessagesPerMinute"`
	ReplyDelayMin        int `json:"replyDelayMin"`
	ReplyDelayMax        int `json:"replyDelayMax"`
}

// ConfigService is the versioned per-robot config store: an in-memory
// cache in front of the robot_configs table. Version starts at 1 and
// increments by exactly 1 on every save.
type ConfigService struct {
	repo *repo.ConfigRepository

	mu    sync.RWMutex
	cache map[string]map[string]*models.RobotConfig // robotID -> configType -> row
}

func NewConfigService(r *repo.ConfigRepository) *ConfigService {
	return &ConfigService{
		repo:  r,
		cache: make(map[string]map[string]*models.RobotConfig),
	}
}

func validate(configType string, payload json.RawMessage) error {
	if !models.KnownConfigType(configType) {
		return &ValidationError{ConfigType: configType, Constraint: "unknown config type"}
	}
	if configType != models.ConfigRiskControl {
		return nil
	}
	var rc RiskControlConfig
	if err := json.Unmarshal(payload, &rc); err != nil {
		return &ValidationError{ConfigType: configType, Constraint: "payload is not a risk control object"}
	}
	switch {
	case rc.MaxMessagesPerMinute <= 0:
		return &ValidationError{ConfigType: configType, Constraint: "maxMessagesPerMinute must be > 0"}
	case rc.ReplyDelayMin < 0:
		return &ValidationError{ConfigType: configType, Constraint: "replyDelayMin must be >= 0"}
	case rc.ReplyDelayMax < 0:
		return &ValidationError{ConfigType: configType, Constraint: "replyDelayMax must be >= 0"}
	case rc.ReplyDelayMin > rc.ReplyDelayMax:
		return &ValidationError{ConfigType: configType, Constraint: "replyDelayMin must be <= replyDelayMax"}
	}
	return nil
}

// Save validates, bumps the version by one and upserts the row. The cache
// entry is replaced only after the write succeeds.
func (s *ConfigService) Save(robotID, configType string, payload json.RawMessage) (*models.RobotConfig, error) {
	if robotID == "" {
		return nil, errors.New("robot id required")
	}
	if err := validate(configType, payload); err != nil {
		return nil, err
	}

	// A failed prior read must abort the save: defaulting to version 1
	// here would overwrite the row and regress its version.
	prior, err := s.Get(robotID, configType)
	if err != nil {
		return nil, fmt.Errorf("read prior config: %w", err)
	}
	version := 1
	if prior != nil {
		version = prior.Version + 1
	}

	cfg := &models.RobotConfig{
		RobotID:    robotID,
		ConfigType: configType,
		Config:     string(payload),
		Version:    version,
		UpdatedAt:  time.Now(),
	}
	if err := s.repo.Upsert(cfg); err != nil {
		return nil, fmt.Errorf("persist config: %w", err)
	}

	s.mu.Lock()
	byType, ok := s.cache[robotID]
	if !ok {
		byType = make(map[string]*models.RobotConfig)
		s.cache[robotID] = byType
	}
	byType[configType] = cfg
	s.mu.Unlock()
	return cfg, nil
}

// Get serves from cache when possible; a miss reads the store and
// populates the cache. Returns (nil, nil) when no row exists.
func (s *ConfigService) Get(robotID, configType string) (*models.RobotConfig, error) {
	s.mu.RLock()
	if byType, ok := s.cache[robotID]; ok {
		if cfg, ok := byType[configType]; ok {
			s.mu.RUnlock()
			return cfg, nil
		}
	}
	s.mu.RUnlock()

	cfg, err := s.repo.Find(robotID, configType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s.mu.Lock()
	byType, ok := s.cache[robotID]
	if !ok {
		byType = make(map[string]*models.RobotConfig)
		s.cache[robotID] = byType
	}
	byType[configType] = cfg
	s.mu.Unlock()
	return cfg, nil
}

// Delete removes the persisted row and invalidates the cache entry.
func (s *ConfigService) Delete(robotID, configType string) (bool, error) {
	deleted, err := s.repo.Delete(robotID, configType)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if byType, ok := s.cache[robotID]; ok {
		delete(byType, configType)
		if len(byType) == 0 {
			delete(s.cache, robotID)
		}
	}
	s.mu.Unlock()
	return deleted, nil
}

// Default returns the category-specific skeleton used before any row
// exists for the key.
func (s *ConfigService) Default(configType string) json.RawMessage {
	switch configType {
	case models.ConfigRiskControl:
		return json.RawMessage(`{"maxMessagesPerMinute":20,"replyDelayMin":1,"replyDelayMax":5}`)
	case models.ConfigReplyTemplate:
		return json.RawMessage(`{"templates":[]}`)
	case models.ConfigBehaviorPattern:
		return json.RawMessage(`{"autoReply":true,"typingSimulation":true,"activeHours":{"start":"08:00","end":"23:00"}}`)
	case models.ConfigKeywordFilter:
		return json.RawMessage(`{"enabled":false,"keywords":[]}`)
	}
	return json.RawMessage(`{}`)
}
