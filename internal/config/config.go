// Package config loads and persists the user-scoped settings file
// described in the CLI surface: max_retries, backoff_base, db_path,
// worker_poll_interval, and job_timeout.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"queuectl/internal/model"
)

// Config is the application's persisted, process-wide settings.
// Workers snapshot it at startup; runtime changes made via `config set`
// do not propagate to already-running workers.
type Config struct {
	DataDir            string  `json:"db_path"`
	MaxRetries         int     `json:"max_retries"`
	BackoffBase        float64 `json:"backoff_base"`
	WorkerPollInterval float64 `json:"worker_poll_interval"`
	JobTimeout         int     `json:"job_timeout"`
}

const configFileName = "config.json"

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		DataDir:            "./db",
		MaxRetries:         3,
		BackoffBase:        2.0,
		WorkerPollInterval: 1.0,
		JobTimeout:         300,
	}
}

// DBPath returns the path to the durable store file under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "queue.db")
}

func configPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	appConfigDir := filepath.Join(configDir, "queuectl")
	if err := os.MkdirAll(appConfigDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(appConfigDir, configFileName), nil
}

// Load reads the config file, applying defaults for any missing field.
// If the file does not yet exist, defaults are saved and returned so the
// next load sees a consistent file on disk.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	cfg := New()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, Save(cfg)
		}
		return nil, err
	}
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists cfg to the user-scoped config file.
func Save(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Get returns the value of a named config key as a string, or a
// ValidationError if the key is unknown.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "max_retries":
		return fmt.Sprintf("%d", c.MaxRetries), nil
	case "backoff_base":
		return fmt.Sprintf("%g", c.BackoffBase), nil
	case "db_path":
		return c.DataDir, nil
	case "worker_poll_interval":
		return fmt.Sprintf("%g", c.WorkerPollInterval), nil
	case "job_timeout":
		return fmt.Sprintf("%d", c.JobTimeout), nil
	default:
		return "", &model.ValidationError{Field: key, Reason: "unknown configuration key"}
	}
}

// Set updates a named config key from its string form and persists the
// change. Returns a ValidationError if the key is unknown or the value
// cannot be parsed for that key's type.
func (c *Config) Set(key, value string) error {
	switch key {
	case "max_retries":
		n, err := parseInt(value)
		if err != nil {
			return &model.ValidationError{Field: key, Reason: "must be an integer"}
		}
		c.MaxRetries = n
	case "backoff_base":
		f, err := parseFloat(value)
		if err != nil {
			return &model.ValidationError{Field: key, Reason: "must be a number"}
		}
		c.BackoffBase = f
	case "db_path":
		c.DataDir = value
	case "worker_poll_interval":
		f, err := parseFloat(value)
		if err != nil {
			return &model.ValidationError{Field: key, Reason: "must be a number"}
		}
		c.WorkerPollInterval = f
	case "job_timeout":
		n, err := parseInt(value)
		if err != nil {
			return &model.ValidationError{Field: key, Reason: "must be an integer"}
		}
		c.JobTimeout = n
	default:
		return &model.ValidationError{Field: key, Reason: "unknown configuration key"}
	}
	return Save(c)
}
