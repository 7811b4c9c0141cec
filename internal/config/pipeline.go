package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JaimeStill/lexis/pkg/formatting"
)

const (
	EnvPipelineExtractorVersion = "LEXIS_PIPELINE_EXTRACTOR_VERSION"
	EnvPipelineMaxContentSize   = "LEXIS_PIPELINE_MAX_CONTENT_SIZE"
	EnvPipelineStaleness        = "LEXIS_PIPELINE_STALENESS"
	EnvPipelineWorkers          = "LEXIS_PIPELINE_WORKERS"
	EnvPipelineExport           = "LEXIS_PIPELINE_EXPORT"
	EnvPipelineSchedule         = "LEXIS_PIPELINE_SCHEDULE"
	EnvPipelineStageTimeout     = "LEXIS_PIPELINE_STAGE_TIMEOUT"
	EnvPipelineConsumers        = "LEXIS_PIPELINE_CONSUMERS"
)

// PipelineConfig controls annotation policy and stage execution.
type PipelineConfig struct {
	ExtractorVersion  string `toml:"extractor_version"`
	MaxContentSize    string `toml:"max_content_size"`
	MaxDefinitionSize string `toml:"max_definition_size"`
	MaxNameLength     int    `toml:"max_name_length"`
	Staleness         string `toml:"staleness"`
	Workers           int    `toml:"workers"`
	Consumers         int    `toml:"consumers"`
	Export            bool   `toml:"export"`
	Schedule          string `toml:"schedule"`
	StageTimeout      string `toml:"stage_timeout"`
	LockTTL           string `toml:"lock_ttl"`
}

// MaxContentBytes returns the content ceiling above which documents are not annotated.
func (c *PipelineConfig) MaxContentBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxContentSize)
	return n
}

// MaxDefinitionBytes returns the ceiling above which definitions are dropped.
func (c *PipelineConfig) MaxDefinitionBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxDefinitionSize)
	return n
}

func (c *PipelineConfig) StalenessDuration() time.Duration {
	d, _ := time.ParseDuration(c.Staleness)
	return d
}

func (c *PipelineConfig) StageTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StageTimeout)
	return d
}

func (c *PipelineConfig) LockTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.LockTTL)
	return d
}

func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()

	envString(EnvPipelineExtractorVersion, &c.ExtractorVersion)
	envString(EnvPipelineMaxContentSize, &c.MaxContentSize)
	envString(EnvPipelineStaleness, &c.Staleness)
	envInt(EnvPipelineWorkers, &c.Workers)
	envInt(EnvPipelineConsumers, &c.Consumers)
	envBool(EnvPipelineExport, &c.Export)
	envString(EnvPipelineSchedule, &c.Schedule)
	envString(EnvPipelineStageTimeout, &c.StageTimeout)

	return c.validate()
}

func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	mergeString(&c.ExtractorVersion, overlay.ExtractorVersion)
	mergeString(&c.MaxContentSize, overlay.MaxContentSize)
	mergeString(&c.MaxDefinitionSize, overlay.MaxDefinitionSize)
	mergeString(&c.Staleness, overlay.Staleness)
	mergeString(&c.Schedule, overlay.Schedule)
	mergeString(&c.StageTimeout, overlay.StageTimeout)
	mergeString(&c.LockTTL, overlay.LockTTL)
	if overlay.MaxNameLength != 0 {
		c.MaxNameLength = overlay.MaxNameLength
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.Consumers != 0 {
		c.Consumers = overlay.Consumers
	}
	if overlay.Export {
		c.Export = true
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.ExtractorVersion == "" {
		c.ExtractorVersion = "v1"
	}
	if c.MaxContentSize == "" {
		c.MaxContentSize = "2MB"
	}
	if c.MaxDefinitionSize == "" {
		c.MaxDefinitionSize = "10KB"
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = 200
	}
	if c.Staleness == "" {
		c.Staleness = "720h"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Consumers <= 0 {
		c.Consumers = 1
	}
	if c.Schedule == "" {
		c.Schedule = "0 2 * * *"
	}
	if c.StageTimeout == "" {
		c.StageTimeout = "2h"
	}
	if c.LockTTL == "" {
		c.LockTTL = "6h"
	}
}

func (c *PipelineConfig) validate() error {
	if _, err := formatting.ParseBytes(c.MaxContentSize); err != nil {
		return fmt.Errorf("invalid max_content_size: %w", err)
	}
	if _, err := formatting.ParseBytes(c.MaxDefinitionSize); err != nil {
		return fmt.Errorf("invalid max_definition_size: %w", err)
	}
	for name, v := range map[string]string{
		"staleness":     c.Staleness,
		"stage_timeout": c.StageTimeout,
		"lock_ttl":      c.LockTTL,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	return nil
}
