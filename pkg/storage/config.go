package storage

import (
	"fmt"
	"os"
	"strings"
)

// Config holds Azure Blob Storage connection parameters. Either
// ConnectionString or AccountURL must be set; AccountURL authenticates
// with the ambient Azure credential chain.
type Config struct {
	ConnectionString string   `toml:"connection_string"`
	AccountURL       string   `toml:"account_url"`
	Buckets          []string `toml:"buckets"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	ConnectionString string
	AccountURL       string
	Buckets          string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.AccountURL != "" {
		c.AccountURL = overlay.AccountURL
	}
	if overlay.Buckets != nil {
		c.Buckets = overlay.Buckets
	}
}

func (c *Config) loadDefaults() {
	if len(c.Buckets) == 0 {
		c.Buckets = []string{BucketArtifacts, BucketObligationsHTML, BucketCrawlerItems}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.ConnectionString != "" {
		if v := os.Getenv(env.ConnectionString); v != "" {
			c.ConnectionString = v
		}
	}
	if env.AccountURL != "" {
		if v := os.Getenv(env.AccountURL); v != "" {
			c.AccountURL = v
		}
	}
	if env.Buckets != "" {
		if v := os.Getenv(env.Buckets); v != "" {
			buckets := strings.Split(v, ",")
			c.Buckets = make([]string, 0, len(buckets))
			for _, b := range buckets {
				if trimmed := strings.TrimSpace(b); trimmed != "" {
					c.Buckets = append(c.Buckets, trimmed)
				}
			}
		}
	}
}

func (c *Config) validate() error {
	if c.ConnectionString == "" && c.AccountURL == "" {
		return fmt.Errorf("connection_string or account_url required")
	}
	if len(c.Buckets) == 0 {
		return fmt.Errorf("at least one bucket required")
	}
	return nil
}
