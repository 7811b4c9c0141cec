package runs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/runs"
	"github.com/JaimeStill/lexis/pkg/pagination"
	"github.com/JaimeStill/lexis/pkg/routes"
)

func TestStageComplete(t *testing.T) {
	at := time.Now()
	tests := []struct {
		name   string
		failed int
		err    error
		want   runs.Status
	}{
		{"clean", 0, nil, runs.StatusSuccess},
		{"document failures", 2, nil, runs.StatusPartial},
		{"stage error", 0, errors.New("store unreachable"), runs.StatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := runs.StageReport{Name: "sync", Failed: tt.failed}
			s.Complete(tt.err, at)
			if s.Status != tt.want {
				t.Errorf("status = %s, want %s", s.Status, tt.want)
			}
			if tt.err != nil && s.Error != tt.err.Error() {
				t.Errorf("error = %q", s.Error)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		stages []runs.Status
		want   runs.Status
	}{
		{"empty", nil, runs.StatusSuccess},
		{"all success", []runs.Status{runs.StatusSuccess, runs.StatusSuccess}, runs.StatusSuccess},
		{"one partial", []runs.Status{runs.StatusSuccess, runs.StatusPartial}, runs.StatusPartial},
		{"failure wins", []runs.Status{runs.StatusPartial, runs.StatusFailure, runs.StatusSkipped}, runs.StatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stages []runs.StageReport
			for _, s := range tt.stages {
				stages = append(stages, runs.StageReport{Status: s})
			}
			if got := runs.Summarize(stages); got != tt.want {
				t.Errorf("Summarize = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunTotals(t *testing.T) {
	r := runs.Run{Stages: []runs.StageReport{
		{Processed: 3, Skipped: 1, Failed: 0},
		{Processed: 2, Skipped: 4, Failed: 1},
	}}
	if r.Processed() != 5 || r.Skipped() != 5 || r.Failed() != 1 {
		t.Errorf("totals = %d/%d/%d", r.Processed(), r.Skipped(), r.Failed())
	}
}

type fakeSystem struct {
	runs.System
	run runs.Run
}

func (f *fakeSystem) Find(_ context.Context, id uuid.UUID) (*runs.Run, error) {
	if id != f.run.ID {
		return nil, runs.ErrNotFound
	}
	return &f.run, nil
}

type fakeDispatcher struct {
	busy    map[uuid.UUID]bool
	trigger string
}

func (f *fakeDispatcher) Enqueue(_ context.Context, websiteID uuid.UUID, trigger string) (uuid.UUID, error) {
	if f.busy[websiteID] {
		return uuid.Nil, runs.ErrBusy
	}
	f.trigger = trigger
	return uuid.New(), nil
}

func TestHandler(t *testing.T) {
	run := runs.Run{ID: uuid.New(), Status: runs.StatusSuccess}
	busy := uuid.New()
	dispatch := &fakeDispatcher{busy: map[uuid.UUID]bool{busy: true}}
	h := runs.NewHandler(&fakeSystem{run: run}, dispatch, slog.New(slog.NewTextHandler(io.Discard, nil)), pagination.Config{DefaultPageSize: 10, MaxPageSize: 50})

	mux := http.NewServeMux()
	patterns := routes.Register(mux, h.Routes())
	if len(patterns) != 3 {
		t.Fatalf("patterns = %v", patterns)
	}

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"find", http.MethodGet, "/runs/" + run.ID.String(), http.StatusOK},
		{"find missing", http.MethodGet, "/runs/" + uuid.NewString(), http.StatusNotFound},
		{"enqueue", http.MethodPost, "/websites/" + uuid.NewString() + "/runs", http.StatusAccepted},
		{"enqueue busy", http.MethodPost, "/websites/" + busy.String() + "/runs", http.StatusConflict},
		{"enqueue malformed", http.MethodPost, "/websites/x/runs", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if dispatch.trigger != "api" {
		t.Errorf("trigger = %q", dispatch.trigger)
	}
}
