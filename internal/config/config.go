// Package config provides configuration management for qmd using Viper for
// flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the QMD_ prefix. It carries the resolved path to the
// Quarkdown compiler JAR, the temp-directory root, subprocess limits, and
// preview/batch/validator settings.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Compiler  CompilerConfig  `yaml:"compiler" mapstructure:"compiler"`
	Preview   PreviewConfig   `yaml:"preview" mapstructure:"preview"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Validator ValidatorConfig `yaml:"validator" mapstructure:"validator"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// CompilerConfig describes how to reach and bound the external Quarkdown
// compiler.
type CompilerConfig struct {
	JavaBin        string   `yaml:"java_bin" mapstructure:"java_bin"`
	JarPath        string   `yaml:"jar_path" mapstructure:"jar_path"`
	TempDir        string   `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSeconds int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxOutputBytes int      `yaml:"max_output_bytes" mapstructure:"max_output_bytes"`
	ErrorTokens    []string `yaml:"error_tokens" mapstructure:"error_tokens"`
}

// Timeout returns the per-invocation subprocess deadline.
func (c CompilerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Command returns the argv prefix used to start the compiler.
func (c CompilerConfig) Command() []string {
	return []string{c.JavaBin, "-jar", c.JarPath}
}

type PreviewConfig struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	DebounceMillis int      `yaml:"debounce_millis" mapstructure:"debounce_millis"`
}

// Debounce returns the watch-event settle interval.
func (c PreviewConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

type BatchConfig struct {
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`
}

type ValidatorConfig struct {
	AllowNetwork       bool `yaml:"allow_network" mapstructure:"allow_network"`
	LinkTimeoutSeconds int  `yaml:"link_timeout_seconds" mapstructure:"link_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load builds a Config from viper's merged sources and validates it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle values set via viper directly (workaround for viper's
	// handling of slices and booleans set by env vars).
	if viper.IsSet("compiler.error_tokens") && len(config.Compiler.ErrorTokens) == 0 {
		config.Compiler.ErrorTokens = viper.GetStringSlice("compiler.error_tokens")
	}
	if viper.IsSet("preview.allowed_origins") && len(config.Preview.AllowedOrigins) == 0 {
		config.Preview.AllowedOrigins = viper.GetStringSlice("preview.allowed_origins")
	}
	if viper.IsSet("validator.allow_network") {
		config.Validator.AllowNetwork = viper.GetBool("validator.allow_network")
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the built-in configuration used when no file or
// environment overrides exist. Tests construct their configs from this.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Compiler.JavaBin == "" {
		config.Compiler.JavaBin = "java"
	}
	if config.Compiler.JarPath == "" {
		config.Compiler.JarPath = "quarkdown.jar"
	}
	if config.Compiler.TimeoutSeconds <= 0 {
		config.Compiler.TimeoutSeconds = 30
	}
	if config.Compiler.MaxOutputBytes <= 0 {
		config.Compiler.MaxOutputBytes = 1 << 20 // 1MiB per stream
	}

	if config.Preview.Host == "" {
		config.Preview.Host = "localhost"
	}
	if config.Preview.Port == 0 {
		config.Preview.Port = 8080
	}
	if config.Preview.DebounceMillis <= 0 {
		config.Preview.DebounceMillis = 300
	}

	if config.Batch.MaxWorkers <= 0 {
		config.Batch.MaxWorkers = 4
	}

	if config.Validator.LinkTimeoutSeconds <= 0 {
		config.Validator.LinkTimeoutSeconds = 5
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateCompilerConfig(&config.Compiler); err != nil {
		return fmt.Errorf("compiler config: %w", err)
	}

	if err := validatePreviewConfig(&config.Preview); err != nil {
		return fmt.Errorf("preview config: %w", err)
	}

	if config.Batch.MaxWorkers < 1 || config.Batch.MaxWorkers > 64 {
		return fmt.Errorf("batch config: max_workers %d is not in valid range 1-64", config.Batch.MaxWorkers)
	}

	return nil
}

func validateCompilerConfig(config *CompilerConfig) error {
	if config.JarPath == "" {
		return fmt.Errorf("jar_path is required")
	}

	if config.TempDir != "" {
		cleanPath := filepath.Clean(config.TempDir)
		if strings.Contains(cleanPath, "..") {
			return fmt.Errorf("temp_dir contains path traversal: %s", config.TempDir)
		}
	}

	return nil
}

func validatePreviewConfig(config *PreviewConfig) error {
	// Allow 0 for system-assigned ports in testing.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}
