package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadinessHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp 127.0.0.1:6379: connection refused") }

	tests := []struct {
		name       string
		started    bool
		checks     map[string]dependencyCheck
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "starting",
			started:    false,
			checks:     map[string]dependencyCheck{"postgres": ok},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "starting",
		},
		{
			name:       "all dependencies up",
			started:    true,
			checks:     map[string]dependencyCheck{"postgres": ok, "redis": ok},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			started:    true,
			checks:     map[string]dependencyCheck{"postgres": ok, "redis": down},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantChecks: map[string]string{
				"postgres": "ok",
				"redis":    "dial tcp 127.0.0.1:6379: connection refused",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := readinessHandler(func() bool { return tt.started }, tt.checks)
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}

			var got readinessReport
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if len(got.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", got.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if got.Checks[name] != want {
					t.Errorf("checks[%s] = %q, want %q", name, got.Checks[name], want)
				}
			}
		})
	}
}

func TestReadinessHandlerBoundsChecks(t *testing.T) {
	var deadline bool
	check := func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	}

	handler := readinessHandler(func() bool { return true }, map[string]dependencyCheck{"neo4j": check})
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if !deadline {
		t.Error("dependency check ran without a deadline")
	}
}
