package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	EnvIndexURL        = "LEXIS_INDEX_URL"
	EnvIndexCollection = "LEXIS_INDEX_COLLECTION"
	EnvIndexPageSize   = "LEXIS_INDEX_PAGE_SIZE"
	EnvIndexTimeout    = "LEXIS_INDEX_TIMEOUT"
	EnvIndexRateLimit  = "LEXIS_INDEX_RATE_LIMIT"
)

// IndexConfig locates the full-text search index.
type IndexConfig struct {
	URL        string  `toml:"url"`
	Collection string  `toml:"collection"`
	PageSize   int     `toml:"page_size"`
	Timeout    string  `toml:"timeout"`
	RateLimit  float64 `toml:"rate_limit"`
	Burst      int     `toml:"burst"`
}

func (c *IndexConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

func (c *IndexConfig) Finalize() error {
	if c.Collection == "" {
		c.Collection = "documents"
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}

	envString(EnvIndexURL, &c.URL)
	envString(EnvIndexCollection, &c.Collection)
	envInt(EnvIndexPageSize, &c.PageSize)
	envString(EnvIndexTimeout, &c.Timeout)
	envFloat(EnvIndexRateLimit, &c.RateLimit)

	if c.URL == "" {
		return fmt.Errorf("url required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

func (c *IndexConfig) Merge(overlay *IndexConfig) {
	mergeString(&c.URL, overlay.URL)
	mergeString(&c.Collection, overlay.Collection)
	mergeString(&c.Timeout, overlay.Timeout)
	if overlay.PageSize != 0 {
		c.PageSize = overlay.PageSize
	}
	if overlay.RateLimit != 0 {
		c.RateLimit = overlay.RateLimit
	}
	if overlay.Burst != 0 {
		c.Burst = overlay.Burst
	}
}
