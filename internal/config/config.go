// Package config handles configuration loading and management for Conductor.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Conductor.
type Config struct {
	Storage      StorageConfig      `mapstructure:"storage"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Bus          BusConfig          `mapstructure:"bus"`
}

// StorageConfig holds filesystem and database locations.
type StorageConfig struct {
	// StateDir is the root for execution state and checkpoint documents.
	StateDir string `mapstructure:"state_dir"`
	// RecordsDB is the path to the execution records database.
	RecordsDB string `mapstructure:"records_db"`
	// DefinitionsDir is where workflow and skill workflow YAML documents live.
	DefinitionsDir string `mapstructure:"definitions_dir"`
	// WorkspaceDir is the root under which stage outputs are produced.
	WorkspaceDir string `mapstructure:"workspace_dir"`
}

// OrchestratorConfig holds coordinator defaults.
type OrchestratorConfig struct {
	// MaxParallel caps logically concurrent units in the coordinator.
	MaxParallel int `mapstructure:"max_parallel"`
	// CheckpointStages brackets each stage with a checkpoint before and after.
	CheckpointStages bool `mapstructure:"checkpoint_stages"`
	// DebugLog is the path of the orchestrator debug log. Empty disables it.
	DebugLog string `mapstructure:"debug_log"`
}

// RetryConfig holds default retry policy settings applied to steps that
// enable retry without carrying their own policy fields.
type RetryConfig struct {
	// Strategy is exponential_backoff, linear_backoff, or fixed_delay.
	Strategy string `mapstructure:"strategy"`
	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// MaxRetries is the default retry cap for steps without one.
	MaxRetries int `mapstructure:"max_retries"`
}

// BusConfig holds message bus settings.
type BusConfig struct {
	// Persist enables per-message file persistence.
	Persist bool `mapstructure:"persist"`
	// MessageDir is where persisted messages are written.
	MessageDir string `mapstructure:"message_dir"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			StateDir:       ".conductor/state",
			RecordsDB:      ".conductor/records.db",
			DefinitionsDir: ".conductor/workflows",
			WorkspaceDir:   ".",
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel:      4,
			CheckpointStages: true,
		},
		Retry: RetryConfig{
			Strategy:   "exponential_backoff",
			BaseDelay:  time.Second,
			MaxDelay:   time.Minute,
			MaxRetries: 3,
		},
		Bus: BusConfig{
			Persist:    false,
			MessageDir: ".conductor/messages",
		},
	}
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CONDUCTOR_*)
// 2. Project config (.conductor.yaml in the project root or a parent)
// 3. User config (~/.config/conductor/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("CONDUCTOR")
	v.AutomaticEnv()
	v.BindEnv("storage.state_dir", "CONDUCTOR_STATE_DIR")
	v.BindEnv("storage.records_db", "CONDUCTOR_RECORDS_DB")
	v.BindEnv("orchestrator.debug_log", "CONDUCTOR_DEBUG_LOG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.state_dir", ".conductor/state")
	v.SetDefault("storage.records_db", ".conductor/records.db")
	v.SetDefault("storage.definitions_dir", ".conductor/workflows")
	v.SetDefault("storage.workspace_dir", ".")

	v.SetDefault("orchestrator.max_parallel", 4)
	v.SetDefault("orchestrator.checkpoint_stages", true)
	v.SetDefault("orchestrator.debug_log", "")

	v.SetDefault("retry.strategy", "exponential_backoff")
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "1m")
	v.SetDefault("retry.max_retries", 3)

	v.SetDefault("bus.persist", false)
	v.SetDefault("bus.message_dir", ".conductor/messages")
}

// getUserConfigDir returns the XDG config directory for Conductor.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}

	// Fall back to ~/.config/conductor
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
