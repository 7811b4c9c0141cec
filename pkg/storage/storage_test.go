package storage_test

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/JaimeStill/lexis/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=lexisstore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/lexisstore;"

func TestNewReturnsSystem(t *testing.T) {
	cfg := &storage.Config{
		ConnectionString: azuriteConnString,
		Buckets:          []string{storage.BucketArtifacts},
	}

	sys, err := storage.New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sys == nil {
		t.Fatal("New() returned nil system")
	}
}

func TestNewInvalidConnectionString(t *testing.T) {
	cfg := &storage.Config{
		ConnectionString: "not-a-connection-string",
		Buckets:          []string{storage.BucketArtifacts},
	}

	if _, err := storage.New(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for invalid connection string, got nil")
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"", storage.ErrEmptyKey},
		{"../escape", storage.ErrInvalidKey},
		{"a/../b", storage.ErrInvalidKey},
		{"0b4c-v1.json.gz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := storage.ValidateKey(tt.key); !errors.Is(got, tt.want) {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", storage.ErrNotFound, http.StatusNotFound},
		{"existing artifact", fmt.Errorf("%w: cas-files/a-v1.json.gz", storage.ErrExists), http.StatusConflict},
		{"empty key", storage.ErrEmptyKey, http.StatusBadRequest},
		{"invalid key", storage.ErrInvalidKey, http.StatusBadRequest},
		{"unknown bucket", fmt.Errorf("%w: x", storage.ErrUnknownBucket), http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("op: %w", storage.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storage.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults buckets", func(t *testing.T) {
		cfg := &storage.Config{ConnectionString: azuriteConnString}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("Finalize() error = %v", err)
		}
		if len(cfg.Buckets) != 3 {
			t.Errorf("Buckets = %v, want 3 defaults", cfg.Buckets)
		}
	})

	t.Run("requires a credential source", func(t *testing.T) {
		cfg := &storage.Config{}
		if err := cfg.Finalize(nil); err == nil {
			t.Error("expected error without connection string or account url")
		}
	})

	t.Run("bucket list from env", func(t *testing.T) {
		t.Setenv("TEST_STORAGE_BUCKETS", "cas-files, ro-html-output ,")
		cfg := &storage.Config{AccountURL: "https://acct.blob.core.windows.net"}
		if err := cfg.Finalize(&storage.Env{Buckets: "TEST_STORAGE_BUCKETS"}); err != nil {
			t.Fatalf("Finalize() error = %v", err)
		}
		if len(cfg.Buckets) != 2 || cfg.Buckets[1] != "ro-html-output" {
			t.Errorf("Buckets = %v", cfg.Buckets)
		}
	})
}
