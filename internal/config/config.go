package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all saferoute configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Scoring ScoringConfig `yaml:"scoring"`
	Graph   GraphConfig   `yaml:"graph"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // "json" or "sqlite"
	Path    string `yaml:"path"`    // empty: ~/.saferoute/ratings.{json,db}
}

type ScoringConfig struct {
	DecayDays float64 `yaml:"decay_days"`
	Schedule  string  `yaml:"schedule"` // cron expression for serve, e.g. "@every 1h"
}

type GraphConfig struct {
	NodesPath       string `yaml:"nodes_path"`       // {"nodes":[...]} from the map loader
	AnnotationsPath string `yaml:"annotations_path"` // where score writes {"nodes":{id:safety}}
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Store: StoreConfig{
			Backend: "json",
			Path:    "", // resolved at runtime via store.DefaultFilePath / DefaultDBPath
		},
		Scoring: ScoringConfig{
			DecayDays: 30,
			Schedule:  "@every 1h",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.saferoute/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".saferoute", "config.yaml"), nil
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.Store.Backend = getEnv("SAFEROUTE_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = getEnv("SAFEROUTE_STORE_PATH", cfg.Store.Path)
	cfg.Scoring.DecayDays = getEnvFloat("SAFEROUTE_DECAY_DAYS", cfg.Scoring.DecayDays)
	cfg.Log.Level = getEnv("SAFEROUTE_LOG_LEVEL", cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("store.backend must be json or sqlite, got %q", c.Store.Backend)
	}
	if !(c.Scoring.DecayDays > 0) {
		return fmt.Errorf("scoring.decay_days must be positive, got %v", c.Scoring.DecayDays)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Scoring.Schedule != "" {
		if _, err := cron.ParseStandard(c.Scoring.Schedule); err != nil {
			return fmt.Errorf("scoring.schedule: %w", err)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
