// Package config provides configuration loading and validation for the
// hyperanf tool.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPrecision = errors.New("sketch precision must be in [4, 16]")
	ErrInvalidWorkers   = errors.New("workers must be non-negative")
	ErrInvalidMaxRounds = errors.New("max rounds must be non-negative")
	ErrInvalidFraction  = errors.New("effective diameter fraction must be in (0, 1]")
)

// Default configuration values.
const (
	// DefaultPrecision gives 2^10 = 1024 registers per node sketch.
	DefaultPrecision = 10

	minPrecision = 4
	maxPrecision = 16

	defaultFraction = 0.9

	defaultOutput = "out.csv"
)

// Config holds all configuration for a propagation run.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RunConfig holds propagation parameters.
type RunConfig struct {
	Precision int `mapstructure:"precision"`
	Workers   int `mapstructure:"workers"`
	MaxRounds int `mapstructure:"max_rounds"`
}

// OutputConfig holds result destination and summary parameters.
type OutputConfig struct {
	Path                      string  `mapstructure:"path"`
	EffectiveDiameterFraction float64 `mapstructure:"effective_diameter_fraction"`
	MetricsAddr               string  `mapstructure:"metrics_addr"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from file and environment variables.
// The config file is optional; defaults cover every value.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("hyperanf")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/hyperanf")
	}

	viperCfg.SetEnvPrefix("HYPERANF")
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

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("run.precision", DefaultPrecision)
	viperCfg.SetDefault("run.workers", 0)
	viperCfg.SetDefault("run.max_rounds", 0)

	viperCfg.SetDefault("output.path", defaultOutput)
	viperCfg.SetDefault("output.effective_diameter_fraction", defaultFraction)
	viperCfg.SetDefault("output.metrics_addr", "")

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Run.Precision < minPrecision || config.Run.Precision > maxPrecision {
		return fmt.Errorf("%w: %d", ErrInvalidPrecision, config.Run.Precision)
	}

	if config.Run.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Run.Workers)
	}

	if config.Run.MaxRounds < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRounds, config.Run.MaxRounds)
	}

	fraction := config.Output.EffectiveDiameterFraction
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidFraction, fraction)
	}

	return nil
}
