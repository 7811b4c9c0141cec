// Package config loads lexis configuration from TOML files and LEXIS_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/lexis/pkg/database"
	"github.com/JaimeStill/lexis/pkg/queue"
	"github.com/JaimeStill/lexis/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvLexisEnv             = "LEXIS_ENV"
	EnvLexisConfig          = "LEXIS_CONFIG"
	EnvLexisShutdownTimeout = "LEXIS_SHUTDOWN_TIMEOUT"
	EnvLexisVersion         = "LEXIS_VERSION"
)

var databaseEnv = &database.Env{
	Host:             "LEXIS_DB_HOST",
	Port:             "LEXIS_DB_PORT",
	Name:             "LEXIS_DB_NAME",
	User:             "LEXIS_DB_USER",
	Password:         "LEXIS_DB_PASSWORD",
	SSLMode:          "LEXIS_DB_SSL_MODE",
	MaxOpenConns:     "LEXIS_DB_MAX_OPEN_CONNS",
	MaxIdleConns:     "LEXIS_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime:  "LEXIS_DB_CONN_MAX_LIFETIME",
	ConnTimeout:      "LEXIS_DB_CONN_TIMEOUT",
	StatementTimeout: "LEXIS_DB_STATEMENT_TIMEOUT",
}

var storageEnv = &storage.Env{
	ConnectionString: "LEXIS_STORAGE_CONNECTION_STRING",
	AccountURL:       "LEXIS_STORAGE_ACCOUNT_URL",
	Buckets:          "LEXIS_STORAGE_BUCKETS",
}

var queueEnv = &queue.Env{
	Addr:        "LEXIS_QUEUE_ADDR",
	Password:    "LEXIS_QUEUE_PASSWORD",
	DB:          "LEXIS_QUEUE_DB",
	Key:         "LEXIS_QUEUE_KEY",
	DialTimeout: "LEXIS_QUEUE_DIAL_TIMEOUT",
	PopTimeout:  "LEXIS_QUEUE_POP_TIMEOUT",
}

// Config is the root configuration shared by the server, worker, and CLI.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	Queue           queue.Config    `toml:"queue"`
	API             APIConfig       `toml:"api"`
	Index           IndexConfig     `toml:"index"`
	Services        ServicesConfig  `toml:"services"`
	Pipeline        PipelineConfig  `toml:"pipeline"`
	Graph           GraphConfig     `toml:"graph"`
	Tracing         TracingConfig   `toml:"tracing"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the LEXIS_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvLexisEnv); env != "" {
		return env
	}
	return "local"
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config file (LEXIS_CONFIG or config.toml) when present,
// applies the LEXIS_ENV overlay, and finalizes every section. Without a
// config file, defaults and environment variables supply everything.
func Load() (*Config, error) {
	cfg := &Config{}

	base := BaseConfigFile
	if v := os.Getenv(EnvLexisConfig); v != "" {
		base = v
	}

	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sections.
func (c *Config) Merge(overlay *Config) {
	mergeString(&c.ShutdownTimeout, overlay.ShutdownTimeout)
	mergeString(&c.Version, overlay.Version)
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Queue.Merge(&overlay.Queue)
	c.API.Merge(&overlay.API)
	c.Index.Merge(&overlay.Index)
	c.Services.Merge(&overlay.Services)
	c.Pipeline.Merge(&overlay.Pipeline)
	c.Graph.Merge(&overlay.Graph)
	c.Tracing.Merge(&overlay.Tracing)
}

func (c *Config) finalize() error {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	envString(EnvLexisShutdownTimeout, &c.ShutdownTimeout)
	envString(EnvLexisVersion, &c.Version)

	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}

	sections := []struct {
		name     string
		finalize func() error
	}{
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"queue", func() error { return c.Queue.Finalize(queueEnv) }},
		{"api", c.API.Finalize},
		{"index", c.Index.Finalize},
		{"services", c.Services.Finalize},
		{"pipeline", c.Pipeline.Finalize},
		{"graph", c.Graph.Finalize},
		{"tracing", c.Tracing.Finalize},
	}
	for _, s := range sections {
		if err := s.finalize(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvLexisEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
