package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JaimeStill/lexis/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("LEXIS_DB_NAME", "lexis")
	t.Setenv("LEXIS_DB_USER", "lexis")
	t.Setenv("LEXIS_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("LEXIS_INDEX_URL", "http://localhost:8983/solr")
	t.Setenv("LEXIS_SERVICES_CONVERT_URL", "http://nlp/convert")
	t.Setenv("LEXIS_SERVICES_SEGMENT_URL", "http://nlp/segment")
	t.Setenv("LEXIS_SERVICES_DEFINITIONS_URL", "http://nlp/definitions")
	t.Setenv("LEXIS_SERVICES_TERMS_URL", "http://nlp/terms")
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Pipeline.ExtractorVersion != "v1" {
		t.Errorf("extractor version = %q, want v1", cfg.Pipeline.ExtractorVersion)
	}
	if got := cfg.Pipeline.MaxContentBytes(); got != 2*1024*1024 {
		t.Errorf("max content bytes = %d, want 2MB", got)
	}
	if got := cfg.Pipeline.MaxDefinitionBytes(); got != 10*1024 {
		t.Errorf("max definition bytes = %d, want 10KB", got)
	}
	if got := cfg.Pipeline.StalenessDuration().Hours(); got != 720 {
		t.Errorf("staleness = %vh, want 720h", got)
	}
	if cfg.Graph.Enabled() {
		t.Error("graph should be disabled without a uri")
	}
	if cfg.Env() != "local" {
		t.Errorf("env = %q, want local", cfg.Env())
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequired(t)

	base := `
version = "1.2.0"

[pipeline]
extractor_version = "v2"
workers = 8

[server]
port = 9000
`
	overlay := `
[pipeline]
export = true
max_content_size = "512KB"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.staging.toml"), []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEXIS_ENV", "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Version != "1.2.0" {
		t.Errorf("version = %q", cfg.Version)
	}
	if cfg.Pipeline.ExtractorVersion != "v2" || cfg.Pipeline.Workers != 8 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if !cfg.Pipeline.Export {
		t.Error("overlay export not applied")
	}
	if got := cfg.Pipeline.MaxContentBytes(); got != 512*1024 {
		t.Errorf("max content bytes = %d, want 512KB", got)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad schedule", map[string]string{"LEXIS_PIPELINE_SCHEDULE": "every day"}, "invalid schedule"},
		{"bad content size", map[string]string{"LEXIS_PIPELINE_MAX_CONTENT_SIZE": "lots"}, "max_content_size"},
		{"missing index", map[string]string{"LEXIS_INDEX_URL": ""}, "index"},
		{"bad sample ratio", map[string]string{"LEXIS_TRACING_SAMPLE_RATIO": "2"}, "sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
