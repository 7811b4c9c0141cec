// Package runs records pipeline run reports: one row per run of a website's
// stages, with per-stage document counts and an overall status.
package runs

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("run not found")
	ErrDuplicate = errors.New("run already exists")
	ErrInvalidID = errors.New("invalid id")
	ErrBusy      = errors.New("website already has a run in progress")
	// ErrWebsite indicates a run requested for an unknown website.
	ErrWebsite = errors.New("website not found")
)

// MapHTTPStatus maps run errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrWebsite):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Status is the outcome of a run or stage.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	// StatusPartial marks completed work with per-document failures.
	StatusPartial Status = "partial"
	// StatusFailure marks a stage that aborted, or a run containing one.
	StatusFailure Status = "failure"
	// StatusSkipped marks a stage not run because an earlier stage failed.
	StatusSkipped Status = "skipped"
)

// StageReport counts one stage's documents.
type StageReport struct {
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Processed  int        `json:"processed"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Complete sets the stage status from its counts and err.
func (s *StageReport) Complete(err error, at time.Time) {
	s.FinishedAt = &at
	switch {
	case err != nil:
		s.Status = StatusFailure
		s.Error = err.Error()
	case s.Failed > 0:
		s.Status = StatusPartial
	default:
		s.Status = StatusSuccess
	}
}

// Run is one pipeline run of a website.
type Run struct {
	ID         uuid.UUID     `json:"id"`
	WebsiteID  uuid.UUID     `json:"website_id"`
	Status     Status        `json:"status"`
	Trigger    string        `json:"trigger"`
	Stages     []StageReport `json:"stages"`
	Error      *string       `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Processed sums processed documents over all stages.
func (r *Run) Processed() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Processed
	}
	return n
}

// Skipped sums skipped documents over all stages.
func (r *Run) Skipped() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Skipped
	}
	return n
}

// Failed sums failed documents over all stages.
func (r *Run) Failed() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Failed
	}
	return n
}

// Summarize derives a run status from its stages: failure if any stage
// failed, partial if any stage lost documents, success otherwise.
func Summarize(stages []StageReport) Status {
	status := StatusSuccess
	for _, s := range stages {
		switch s.Status {
		case StatusFailure:
			return StatusFailure
		case StatusPartial:
			status = StatusPartial
		case StatusRunning:
			return StatusRunning
		}
	}
	return status
}
