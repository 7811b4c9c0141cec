package config

import "fmt"

const (
	EnvTracingEnabled     = "LEXIS_TRACING_ENABLED"
	EnvTracingEndpoint    = "LEXIS_TRACING_ENDPOINT"
	EnvTracingInsecure    = "LEXIS_TRACING_INSECURE"
	EnvTracingSampleRatio = "LEXIS_TRACING_SAMPLE_RATIO"
)

// TracingConfig controls OpenTelemetry trace export. With no endpoint,
// spans are written to stdout.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	SampleRatio float64 `toml:"sample_ratio"`
}

func (c *TracingConfig) Finalize() error {
	if c.SampleRatio == 0 {
		c.SampleRatio = 0.1
	}
	envBool(EnvTracingEnabled, &c.Enabled)
	envString(EnvTracingEndpoint, &c.Endpoint)
	envBool(EnvTracingInsecure, &c.Insecure)
	envFloat(EnvTracingSampleRatio, &c.SampleRatio)

	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be within [0, 1]: %v", c.SampleRatio)
	}
	return nil
}

func (c *TracingConfig) Merge(overlay *TracingConfig) {
	if overlay.Enabled {
		c.Enabled = true
	}
	if overlay.Insecure {
		c.Insecure = true
	}
	mergeString(&c.Endpoint, overlay.Endpoint)
	if overlay.SampleRatio != 0 {
		c.SampleRatio = overlay.SampleRatio
	}
}
