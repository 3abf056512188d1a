// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the metastore service configuration with the
// priority env > file > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
//
// Thread Safety: safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Store contains storage engine settings.
	Store StoreConfig `yaml:"store"`

	// Cache contains read cache settings.
	Cache CacheConfig `yaml:"cache"`

	// Log contains logging settings.
	Log LogConfig `yaml:"log"`
}

// StoreConfig contains storage engine settings.
type StoreConfig struct {
	// Path is the on-disk database directory. Ignored when InMemory is
	// set.
	Path string `yaml:"path" validate:"required_unless=InMemory true"`

	// InMemory runs the store without persistence. Intended for tests
	// and local experiments.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites forces fsync on every commit.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// CacheConfig contains read cache settings.
type CacheConfig struct {
	// Enabled switches the read cache on.
	Enabled bool `yaml:"enabled"`

	// MaxEntries bounds the cache size.
	MaxEntries int `yaml:"max_entries" validate:"gte=0"`

	// TTL is how long an entry may be served after it was stored.
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables file logging to the given directory when non-empty.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

var configValidate = validator.New()

// Default returns the default configuration: a persistent store under
// ~/.metastore, a 1000-entry cache with a 10 second TTL, and info-level
// text logging.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Path:       "~/.metastore/data",
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 1000,
			TTL:        10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, overlaid by the
// YAML file at path (if it exists), overlaid by environment variables,
// then validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	return configValidate.Struct(c)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("METASTORE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("METASTORE_STORE_IN_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Store.InMemory = b
		}
	}
	if v := os.Getenv("METASTORE_STORE_SYNC_WRITES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Store.SyncWrites = b
		}
	}
	if v := os.Getenv("METASTORE_STORE_GC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.GCInterval = d
		}
	}
	if v := os.Getenv("METASTORE_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("METASTORE_CACHE_MAX_ENTRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = i
		}
	}
	if v := os.Getenv("METASTORE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("METASTORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("METASTORE_LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	if v := os.Getenv("METASTORE_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = b
		}
	}
}
