package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Printers  PrintersConfig  `yaml:"printers"`
	Connector ConnectorConfig `yaml:"connector"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StoreConfig struct {
	MaxJobs         int           `yaml:"max_jobs"`
	MaxPrinters     int           `yaml:"max_printers"`
	ExpirationGrace time.Duration `yaml:"expiration_grace"`
}

type PrintersConfig struct {
	// Endpoints maps a printer name to a "host:port" address, consulted
	// only when Connector.Kind is "tcp".
	Endpoints map[string]string `yaml:"endpoints"`
}

type ConnectorConfig struct {
	Kind        string        `yaml:"kind"` // "file" or "tcp"
	SpoolDir    string        `yaml:"spool_dir"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type WebhookConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	Secret      string        `yaml:"secret"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	WorkerCount int           `yaml:"worker_count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Store: StoreConfig{
			MaxJobs:         256,
			MaxPrinters:     32,
			ExpirationGrace: 10 * time.Second,
		},
		Printers: PrintersConfig{
			Endpoints: map[string]string{},
		},
		Connector: ConnectorConfig{
			Kind:        "file",
			SpoolDir:    "./data/spool",
			DialTimeout: 5 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "./data/archive.db",
		},
		Webhook: WebhookConfig{
			Enabled:     false,
			MaxRetries:  3,
			RetryDelay:  10 * time.Second,
			WorkerCount: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()

	if v := os.Getenv("SPOOL_MAX_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxJobs = n
		}
	}

	if v := os.Getenv("SPOOL_MAX_PRINTERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxPrinters = n
		}
	}

	if v := os.Getenv("SPOOL_CONNECTOR_KIND"); v != "" {
		cfg.Connector.Kind = v
	}

	if v := os.Getenv("SPOOL_SPOOL_DIR"); v != "" {
		cfg.Connector.SpoolDir = v
	}

	if v := os.Getenv("SPOOL_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}

	if v := os.Getenv("SPOOL_WEBHOOK_URL"); v != "" {
		cfg.Webhook.Enabled = true
		cfg.Webhook.URL = v
	}

	if v := os.Getenv("SPOOL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.Store.MaxJobs < 1 {
		return fmt.Errorf("store max_jobs must be at least 1, got %d", c.Store.MaxJobs)
	}

	if c.Store.MaxPrinters < 1 {
		return fmt.Errorf("store max_printers must be at least 1, got %d", c.Store.MaxPrinters)
	}

	if c.Store.ExpirationGrace < 0 {
		return fmt.Errorf("store expiration_grace must be non-negative")
	}

	switch c.Connector.Kind {
	case "file", "tcp":
	default:
		return fmt.Errorf("connector kind must be \"file\" or \"tcp\", got %q", c.Connector.Kind)
	}

	if c.Connector.Kind == "file" && c.Connector.SpoolDir == "" {
		return fmt.Errorf("connector spool_dir is required for the file connector")
	}

	if c.Connector.DialTimeout < 0 {
		return fmt.Errorf("connector dial_timeout must be non-negative")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive path is required when archive is enabled")
	}

	if c.Webhook.Enabled {
		if c.Webhook.URL == "" {
			return fmt.Errorf("webhook url is required when webhook is enabled")
		}
		if c.Webhook.MaxRetries < 0 {
			return fmt.Errorf("webhook max_retries must be non-negative")
		}
		if c.Webhook.RetryDelay < 0 {
			return fmt.Errorf("webhook retry_delay must be non-negative")
		}
		if c.Webhook.WorkerCount < 1 {
			return fmt.Errorf("webhook worker_count must be at least 1")
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	return nil
}
