package config

import (
	"fmt"
	"time"
)

const (
	EnvServicesConvert     = "LEXIS_SERVICES_CONVERT_URL"
	EnvServicesSegment     = "LEXIS_SERVICES_SEGMENT_URL"
	EnvServicesDefinitions = "LEXIS_SERVICES_DEFINITIONS_URL"
	EnvServicesTerms       = "LEXIS_SERVICES_TERMS_URL"
	EnvServicesObligations = "LEXIS_SERVICES_OBLIGATIONS_URL"
	EnvServicesClassify    = "LEXIS_SERVICES_CLASSIFY_URL"
	EnvServicesCrawler     = "LEXIS_SERVICES_CRAWLER_URL"
	EnvServicesTimeout     = "LEXIS_SERVICES_TIMEOUT"
	EnvServicesRateLimit   = "LEXIS_SERVICES_RATE_LIMIT"
)

// ServicesConfig holds the endpoints of the external NLP services and the
// crawler trigger, plus the shared request budget.
type ServicesConfig struct {
	Convert     string  `toml:"convert_url"`
	Segment     string  `toml:"segment_url"`
	Definitions string  `toml:"definitions_url"`
	Terms       string  `toml:"terms_url"`
	Obligations string  `toml:"obligations_url"`
	Classify    string  `toml:"classify_url"`
	Crawler     string  `toml:"crawler_url"`
	Timeout     string  `toml:"timeout"`
	RateLimit   float64 `toml:"rate_limit"`
	Burst       int     `toml:"burst"`
}

func (c *ServicesConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

func (c *ServicesConfig) Finalize() error {
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.Burst <= 0 {
		c.Burst = 2
	}

	envString(EnvServicesConvert, &c.Convert)
	envString(EnvServicesSegment, &c.Segment)
	envString(EnvServicesDefinitions, &c.Definitions)
	envString(EnvServicesTerms, &c.Terms)
	envString(EnvServicesObligations, &c.Obligations)
	envString(EnvServicesClassify, &c.Classify)
	envString(EnvServicesCrawler, &c.Crawler)
	envString(EnvServicesTimeout, &c.Timeout)
	envFloat(EnvServicesRateLimit, &c.RateLimit)

	required := []struct{ name, value string }{
		{"convert_url", c.Convert},
		{"segment_url", c.Segment},
		{"definitions_url", c.Definitions},
		{"terms_url", c.Terms},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s required", r.name)
		}
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

func (c *ServicesConfig) Merge(overlay *ServicesConfig) {
	mergeString(&c.Convert, overlay.Convert)
	mergeString(&c.Segment, overlay.Segment)
	mergeString(&c.Definitions, overlay.Definitions)
	mergeString(&c.Terms, overlay.Terms)
	mergeString(&c.Obligations, overlay.Obligations)
	mergeString(&c.Classify, overlay.Classify)
	mergeString(&c.Crawler, overlay.Crawler)
	mergeString(&c.Timeout, overlay.Timeout)
	if overlay.RateLimit != 0 {
		c.RateLimit = overlay.RateLimit
	}
	if overlay.Burst != 0 {
		c.Burst = overlay.Burst
	}
}
