// Package concepts resolves extracted terms into deduplicated concepts and
// persists the annotation graph of a document: definitions, occurrences,
// co-definition links, reporting obligations, their worklog, and the
// acceptance verdicts attached to them.
package concepts

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
)

// MaxNameLength is the rune cap on concept names. Longer terms are skipped.
const MaxNameLength = 200

var (
	ErrNotFound       = errors.New("concept not found")
	ErrDuplicate      = errors.New("concept already exists")
	ErrNameTooLong    = errors.New("concept name exceeds length cap")
	ErrEmptyName      = errors.New("concept name is empty")
	ErrInvalidVerdict = errors.New("invalid acceptance verdict")
	ErrInvalidID      = errors.New("invalid concept id")
)

// MapHTTPStatus maps concept errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidVerdict), errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Concept is a named term, unique per normalized name and extractor version.
type Concept struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	NormalizedName   string    `json:"normalized_name"`
	Lemma            string    `json:"lemma"`
	Definition       string    `json:"definition"`
	ExtractorVersion string    `json:"extractor_version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ConceptInput is a sighting of a concept to insert or refresh.
type ConceptInput struct {
	Name             string
	NormalizedName   string
	Lemma            string
	Definition       string
	ExtractorVersion string
}

// Defined binds a concept to the document span that defines it.
type Defined struct {
	ConceptID  uuid.UUID
	DocumentID uuid.UUID
	Span       annotation.Span
	Context    annotation.Span
	Definition string
	Score      float64
}

// Occurrence binds a concept to a span where it is used.
type Occurrence struct {
	ConceptID  uuid.UUID
	DocumentID uuid.UUID
	Span       annotation.Span
	Score      float64
}

// ObligationInput is a detected reporting obligation to persist.
type ObligationInput struct {
	DocumentID       uuid.UUID
	Span             annotation.Span
	Text             string
	Score            float64
	ExtractorVersion string
}

// WorklogEntry audits the creation of exactly one defined or occurrence record.
type WorklogEntry struct {
	DefinedID *uuid.UUID
	OccursID  *uuid.UUID
	Actor     string
	Action    string
}

// Verdict is a validation outcome.
type Verdict string

const (
	Unvalidated Verdict = "unvalidated"
	Accepted    Verdict = "accepted"
	Rejected    Verdict = "rejected"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case Unvalidated, Accepted, Rejected:
		return true
	}
	return false
}

// Entity identifies the target of an acceptance state: exactly one of
// ConceptID and ObligationID is set.
type Entity struct {
	ConceptID    *uuid.UUID `json:"concept_id,omitempty"`
	ObligationID *uuid.UUID `json:"obligation_id,omitempty"`
}

// Acceptance is an automated verdict keyed by probability model.
type Acceptance struct {
	Entity
	Model       string
	Probability float64
}

// UserVerdict is a human verdict keyed by user.
type UserVerdict struct {
	Entity
	UserID  string  `json:"user_id"`
	Verdict Verdict `json:"verdict"`
}

// AcceptanceState is a stored verdict from a user or a model.
type AcceptanceState struct {
	ID               uuid.UUID  `json:"id"`
	ConceptID        *uuid.UUID `json:"concept_id,omitempty"`
	ObligationID     *uuid.UUID `json:"obligation_id,omitempty"`
	UserID           *string    `json:"user_id,omitempty"`
	ProbabilityModel *string    `json:"probability_model,omitempty"`
	Verdict          Verdict    `json:"verdict"`
	Probability      float64    `json:"probability"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Link is a symmetric co-definition edge, stored with A < B.
type Link struct {
	A uuid.UUID `json:"a"`
	B uuid.UUID `json:"b"`
}

// NewLink orders a pair into a Link. The second result is false for a
// self-edge.
func NewLink(x, y uuid.UUID) (Link, bool) {
	switch c := bytes.Compare(x[:], y[:]); {
	case c < 0:
		return Link{A: x, B: y}, true
	case c > 0:
		return Link{A: y, B: x}, true
	}
	return Link{}, false
}

func isPolicy(err error) bool {
	return errors.Is(err, ErrNameTooLong) || errors.Is(err, ErrEmptyName)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
