// Package config loads tally settings from viper and validates them.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-tally/internal/common"
	"github.com/Veraticus/spice-tally/internal/learning"
	"github.com/Veraticus/spice-tally/internal/lifecycle"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultDatabasePath is used when database.path is not set.
const DefaultDatabasePath = "$HOME/.local/share/tally/tally.db"

// Settings is the full configuration tree.
type Settings struct {
	Logging   LoggingSettings   `mapstructure:"logging"`
	Database  DatabaseSettings  `mapstructure:"database"`
	Keywords  KeywordSettings   `mapstructure:"keywords"`
	Inference InferenceSettings `mapstructure:"inference"`
	Lifecycle LifecycleSettings `mapstructure:"lifecycle"`
	Learning  LearningSettings  `mapstructure:"learning"`
	Decay     DecaySettings     `mapstructure:"decay"`
}

// LoggingSettings configures slog.
type LoggingSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseSettings selects and configures the storage backend.
type DatabaseSettings struct {
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	DSN         string `mapstructure:"dsn"`
	MaxPoolSize int    `mapstructure:"max_pool_size"`
}

// KeywordSettings points at an optional seed file replacing the embedded one.
type KeywordSettings struct {
	Path string `mapstructure:"path"`
}

// InferenceSettings configures the category engine. Confidence is s/(s+k),
// so with the default k of 1.0 a message matching a single keyword tops out
// at 0.75 (seed 1 plus a learned weight capped at 2) and never reaches the
// default auto-confirm threshold of 0.85. Lower smoothing_k to let
// well-learned single keywords auto-confirm.
type InferenceSettings struct {
	DefaultCategory string  `mapstructure:"default_category"`
	SmoothingK      float64 `mapstructure:"smoothing_k"`
	Alternatives    int     `mapstructure:"alternatives"`
}

// LifecycleSettings configures the confirmation thresholds.
type LifecycleSettings struct {
	DefaultCurrency      string  `mapstructure:"default_currency"`
	AutoConfirmThreshold float64 `mapstructure:"auto_confirm_threshold"`
	ReviewFloor          float64 `mapstructure:"review_floor"`
}

// LearningSettings configures reinforcement and penalties.
type LearningSettings struct {
	InitialWeight   float64 `mapstructure:"initial_weight"`
	MaxWeight       float64 `mapstructure:"max_weight"`
	ReinforceStep   float64 `mapstructure:"reinforce_step"`
	PenaltyStep     float64 `mapstructure:"penalty_step"`
	PenaltyFloor    float64 `mapstructure:"penalty_floor"`
	MaxWriteRetries int     `mapstructure:"max_write_retries"`
}

// DecaySettings configures the idle-weight sweep.
type DecaySettings struct {
	Policy      string        `mapstructure:"policy"`
	Rate        float64       `mapstructure:"rate"`
	Floor       float64       `mapstructure:"floor"`
	IdleAfter   time.Duration `mapstructure:"idle_after"`
	Concurrency int           `mapstructure:"concurrency"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	learn := learning.DefaultConfig()
	decay := learning.DefaultDecayConfig()
	life := lifecycle.DefaultConfig()

	return Settings{
		Logging: LoggingSettings{Level: "info", Format: "console"},
		Database: DatabaseSettings{
			Driver:      DriverSQLite,
			Path:        DefaultDatabasePath,
			MaxPoolSize: 10,
		},
		Inference: InferenceSettings{
			DefaultCategory: "uncategorized",
			SmoothingK:      1.0,
			Alternatives:    3,
		},
		Lifecycle: LifecycleSettings{
			DefaultCurrency:      life.DefaultCurrency,
			AutoConfirmThreshold: life.AutoConfirmThreshold,
			ReviewFloor:          life.ReviewFloor,
		},
		Learning: LearningSettings{
			InitialWeight:   learn.InitialWeight,
			MaxWeight:       learn.MaxWeight,
			ReinforceStep:   learn.ReinforceStep,
			PenaltyStep:     learn.PenaltyStep,
			PenaltyFloor:    learn.PenaltyFloor,
			MaxWriteRetries: learn.MaxWriteRetries,
		},
		Decay: DecaySettings{
			Policy:      string(decay.Policy),
			Rate:        decay.Rate,
			Floor:       decay.Floor,
			IdleAfter:   decay.IdleAfter,
			Concurrency: decay.Concurrency,
		},
	}
}

// SetDefaults registers every default with v so env vars and config files
// only need to name what they change.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	defaults := map[string]any{
		"logging.level":                    d.Logging.Level,
		"logging.format":                   d.Logging.Format,
		"database.driver":                  d.Database.Driver,
		"database.path":                    d.Database.Path,
		"database.dsn":                     d.Database.DSN,
		"database.max_pool_size":           d.Database.MaxPoolSize,
		"keywords.path":                    d.Keywords.Path,
		"inference.default_category":       d.Inference.DefaultCategory,
		"inference.smoothing_k":            d.Inference.SmoothingK,
		"inference.alternatives":           d.Inference.Alternatives,
		"lifecycle.default_currency":       d.Lifecycle.DefaultCurrency,
		"lifecycle.auto_confirm_threshold": d.Lifecycle.AutoConfirmThreshold,
		"lifecycle.review_floor":           d.Lifecycle.ReviewFloor,
		"learning.initial_weight":          d.Learning.InitialWeight,
		"learning.max_weight":              d.Learning.MaxWeight,
		"learning.reinforce_step":          d.Learning.ReinforceStep,
		"learning.penalty_step":            d.Learning.PenaltyStep,
		"learning.penalty_floor":           d.Learning.PenaltyFloor,
		"learning.max_write_retries":       d.Learning.MaxWriteRetries,
		"decay.policy":                     d.Decay.Policy,
		"decay.rate":                       d.Decay.Rate,
		"decay.floor":                      d.Decay.Floor,
		"decay.idle_after":                 d.Decay.IdleAfter,
		"decay.concurrency":                d.Decay.Concurrency,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load decodes v into Settings and validates the result.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks every section.
func (s Settings) Validate() error {
	if _, err := common.ParseLevel(s.Logging.Level); err != nil {
		return err
	}

	switch strings.ToLower(s.Database.Driver) {
	case DriverSQLite:
		if s.Database.Path == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	case DriverPostgres:
		if s.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", common.ErrInvalidConfig, s.Database.Driver)
	}

	if s.Inference.SmoothingK <= 0 {
		return fmt.Errorf("%w: inference.smoothing_k must be positive, got %v", common.ErrInvalidConfig, s.Inference.SmoothingK)
	}
	if s.Inference.DefaultCategory == "" {
		return fmt.Errorf("%w: inference.default_category", common.ErrMissingConfig)
	}

	if err := s.LifecycleConfig().Validate(); err != nil {
		return err
	}
	if err := s.LearningConfig().Validate(); err != nil {
		return err
	}
	return s.DecayConfig().Validate()
}

// DatabasePath returns the expanded SQLite path.
func (s Settings) DatabasePath() string {
	return ExpandPath(s.Database.Path)
}

// LifecycleConfig converts the lifecycle section.
func (s Settings) LifecycleConfig() lifecycle.Config {
	return lifecycle.Config{
		DefaultCurrency:      s.Lifecycle.DefaultCurrency,
		AutoConfirmThreshold: s.Lifecycle.AutoConfirmThreshold,
		ReviewFloor:          s.Lifecycle.ReviewFloor,
	}
}

// LearningConfig converts the learning section.
func (s Settings) LearningConfig() learning.Config {
	cfg := learning.DefaultConfig()
	cfg.InitialWeight = s.Learning.InitialWeight
	cfg.MaxWeight = s.Learning.MaxWeight
	cfg.ReinforceStep = s.Learning.ReinforceStep
	cfg.PenaltyStep = s.Learning.PenaltyStep
	cfg.PenaltyFloor = s.Learning.PenaltyFloor
	cfg.MaxWriteRetries = s.Learning.MaxWriteRetries
	return cfg
}

// DecayConfig converts the decay section.
func (s Settings) DecayConfig() learning.DecayConfig {
	return learning.DecayConfig{
		Policy:      learning.DecayPolicy(strings.ToLower(s.Decay.Policy)),
		Rate:        s.Decay.Rate,
		Floor:       s.Decay.Floor,
		IdleAfter:   s.Decay.IdleAfter,
		Concurrency: s.Decay.Concurrency,
	}
}
