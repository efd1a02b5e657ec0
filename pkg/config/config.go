// Package config provides configuration loading and validation for layerlens.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers     = errors.New("analysis workers must be positive")
	ErrInvalidParallelism = errors.New("coverage parallelism must be positive")
	ErrInvalidTimeout     = errors.New("coverage timeout must be positive")
	ErrInvalidLogLevel    = errors.New("unknown log level")
	ErrInvalidLogFormat   = errors.New("unknown log format")
)

// Default configuration values.
const (
	defaultWorkers     = 4
	defaultParallelism = 2
)

// Config holds all configuration for layerlens.
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Coverage CoverageConfig `mapstructure:"coverage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AnalysisConfig holds discovery and classification settings.
type AnalysisConfig struct {
	// RulesFile is an optional YAML rule-set file overriding the built-in
	// classification patterns.
	RulesFile string `mapstructure:"rules_file"`

	// ExcludeGlobs are repository-relative glob patterns skipped by discovery.
	ExcludeGlobs []string `mapstructure:"exclude_globs"`

	// Workers is the classification worker-pool size.
	Workers int `mapstructure:"workers"`
}

// CoverageConfig holds coverage orchestration settings.
type CoverageConfig struct {
	ReportTimeout time.Duration `mapstructure:"report_timeout"`
	TestTimeout   time.Duration `mapstructure:"test_timeout"`
	SetupTimeout  time.Duration `mapstructure:"setup_timeout"`
	Parallelism   int           `mapstructure:"parallelism"`
	Enabled       bool          `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel maps the validated level string to its slog level.
func (lc LoggingConfig) SlogLevel() slog.Level {
	switch lc.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from an optional file and LAYERLENS_* environment
// variables. A missing config file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("layerlens")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/layerlens")
	}

	viperCfg.SetEnvPrefix("LAYERLENS")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validate(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	// Analysis defaults.
	viperCfg.SetDefault("analysis.workers", defaultWorkers)
	viperCfg.SetDefault("analysis.exclude_globs", []string{})

	// Coverage defaults.
	viperCfg.SetDefault("coverage.enabled", true)
	viperCfg.SetDefault("coverage.parallelism", defaultParallelism)
	viperCfg.SetDefault("coverage.report_timeout", "30s")
	viperCfg.SetDefault("coverage.test_timeout", "5m")
	viperCfg.SetDefault("coverage.setup_timeout", "10m")

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
}

func validate(config *Config) error {
	if config.Analysis.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Analysis.Workers)
	}

	if config.Coverage.Parallelism <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidParallelism, config.Coverage.Parallelism)
	}

	for _, timeout := range []time.Duration{
		config.Coverage.ReportTimeout,
		config.Coverage.TestTimeout,
		config.Coverage.SetupTimeout,
	} {
		if timeout <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
		}
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}
