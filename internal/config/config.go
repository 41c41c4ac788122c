// Package config loads lookervault's operational settings.
//
// Settings come from lookervault.toml (an explicit --config path, the
// working directory, or the user config dir), LOOKERVAULT_* environment
// variables, and finally built-in defaults; flags override all of them at
// the command layer. Looker credentials are not configuration: they are
// read from LOOKERSDK_* environment variables by the looker package and
// never written to disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// MaxWorkers caps the worker count. The repository has a single writer,
// so workers past this point only queue on the write lock.
const MaxWorkers = 16

// Config is the operational configuration shared by every command.
type Config struct {
	Database           string `mapstructure:"database" toml:"database" json:"database"`
	Workers            int    `mapstructure:"workers" toml:"workers" json:"workers"`
	PageSize           int    `mapstructure:"page_size" toml:"page_size" json:"page_size"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval" toml:"checkpoint_interval" json:"checkpoint_interval"`
	MaxRetries         int    `mapstructure:"max_retries" toml:"max_retries" json:"max_retries"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	RateLimitPerSecond int    `mapstructure:"rate_limit_per_second" toml:"rate_limit_per_second" json:"rate_limit_per_second"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:           "lookervault.db",
		Workers:            8,
		PageSize:           100,
		CheckpointInterval: 100,
		MaxRetries:         3,
		RateLimitPerMinute: 300,
		RateLimitPerSecond: 10,
		TimeoutSeconds:     30,
	}
}

// Timeout returns the per-request API timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from path (or the search locations when path
// is empty) merged with LOOKERVAULT_* environment overrides. A missing
// file in the search locations is fine; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	def := Default()
	v.SetDefault("database", def.Database)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("page_size", def.PageSize)
	v.SetDefault("checkpoint_interval", def.CheckpointInterval)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("rate_limit_per_minute", def.RateLimitPerMinute)
	v.SetDefault("rate_limit_per_second", def.RateLimitPerSecond)
	v.SetDefault("timeout_seconds", def.TimeoutSeconds)

	v.SetEnvPrefix("LOOKERVAULT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("lookervault")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "lookervault"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize clamps the worker count into [1, MaxWorkers], logging when a
// configured value is reduced.
func (c *Config) Normalize() {
	if c.Workers > MaxWorkers {
		log.WithFields(log.Fields{
			"configured": c.Workers,
			"max":        MaxWorkers,
		}).Warn("worker count clamped")
		c.Workers = MaxWorkers
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
}

// Validate rejects values that cannot be clamped into something safe.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database path must not be empty")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("config: page_size must be positive, got %d", c.PageSize)
	}
	if c.CheckpointInterval < 1 {
		return fmt.Errorf("config: checkpoint_interval must be positive, got %d", c.CheckpointInterval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("config: rate_limit_per_minute must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.RateLimitPerSecond < 1 {
		return fmt.Errorf("config: rate_limit_per_second must be positive, got %d", c.RateLimitPerSecond)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("config: timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	return nil
}
