package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied for fields left empty in the config file.
const (
	DefaultAddr          = ":4000"
	DefaultDBPath        = "hivewatch.db"
	DefaultSweepInterval = time.Hour
)

// Config is the server configuration. Retention of zero keeps events forever.
type Config struct {
	Addr          string        `yaml:"addr"`
	SocketPath    string        `yaml:"socket_path"`
	DBPath        string        `yaml:"db_path"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func Default() Config {
	return Config{
		Addr:          DefaultAddr,
		DBPath:        DefaultDBPath,
		SweepInterval: DefaultSweepInterval,
	}
}

// Load reads the config file at path, falling back to defaults for a missing
// file or missing fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return cfg, nil
}

// Init writes a starter config file with defaults. Refuses to overwrite an
// existing file.
func Init(path string) error {
	if path == "" {
		return fmt.Errorf("config file path required")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
