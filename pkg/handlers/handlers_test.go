package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/lexis/pkg/handlers"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	handlers.RespondJSON(rec, http.StatusCreated, map[string]int{"n": 1})

	if rec.Code != http.StatusCreated {
		t.Errorf("status: got %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q", ct)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"n":1}` {
		t.Errorf("body: got %s", body)
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		err     error
		wantMsg string
	}{
		{"client error keeps message", http.StatusNotFound, errors.New("concept not found"), "concept not found"},
		{"server error masked", http.StatusInternalServerError, errors.New("pq: connection refused"), "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handlers.RespondError(rec, discard(), tt.status, tt.err)

			var body handlers.ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantMsg || body.Status != tt.status {
				t.Errorf("body: got %+v", body)
			}
		})
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	type verdict struct {
		State string `json:"state"`
	}

	req := httptest.NewRequest("PUT", "/", strings.NewReader(`{"state":"accepted","extra":1}`))
	if _, err := handlers.DecodeJSON[verdict](req); err == nil {
		t.Error("expected error for unknown field")
	}

	req = httptest.NewRequest("PUT", "/", strings.NewReader(`{"state":"accepted"}`))
	v, err := handlers.DecodeJSON[verdict](req)
	if err != nil || v.State != "accepted" {
		t.Errorf("decode: got %+v, %v", v, err)
	}
}
