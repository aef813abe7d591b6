package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// RetryConfig bounds the retry handler wrapping storage transactions.
// Zero values fall back to the engine's built-in defaults.
type RetryConfig struct {
	MaxAttempts   int `yaml:"maxAttempts,omitempty" validate:"omitempty,min=1"`
	BaseBackoffMS int `yaml:"baseBackoffMS,omitempty" validate:"omitempty,min=1"`
	MaxBackoffMS  int `yaml:"maxBackoffMS,omitempty" validate:"omitempty,min=1"`
}

// HTTPConfig configures the on-demand trigger API
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"`
	// AuthToken, when set, is required as a bearer token on every API request
	AuthToken      string   `yaml:"authToken,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// TimerConfig configures the timer-driven console job
type TimerConfig struct {
	// Schedule is a standard cron expression (minute granularity)
	Schedule string `yaml:"schedule,omitempty"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL        string      `yaml:"databaseURL" validate:"required"`
	AdvanceDays        int         `yaml:"advanceDays" validate:"required,min=1,max=366"`
	MonthlyMonthsAhead int         `yaml:"monthlyMonthsAhead" validate:"required,min=1,max=24"`
	Retry              RetryConfig `yaml:"retry,omitempty"`
	HTTP               HTTPConfig  `yaml:"http,omitempty"`
	Timer              TimerConfig `yaml:"timer,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from shiftgen.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	configPath, err := findConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct and checks the timer cron syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Timer.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Timer.Schedule); err != nil {
			return fmt.Errorf("invalid cron expression in timer.schedule: %w", err)
		}
	}

	return nil
}

// BaseBackoff returns the configured base backoff as a duration (0 when unset)
func (r RetryConfig) BaseBackoff() time.Duration {
	return time.Duration(r.BaseBackoffMS) * time.Millisecond
}

// MaxBackoff returns the configured max backoff as a duration (0 when unset)
func (r RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

// findConfigFile searches for shiftgen.yaml in current directory and home directory
func findConfigFile() (string, error) {
	configFileName := "shiftgen.yaml"

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
