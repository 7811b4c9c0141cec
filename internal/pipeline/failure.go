package pipeline

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/concepts"
	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/internal/nlp"
	"github.com/JaimeStill/lexis/pkg/align"
	"github.com/JaimeStill/lexis/pkg/database"
)

// Failure is the class of a per-document error.
type Failure int

const (
	// FailureNone means the document was processed.
	FailureNone Failure = iota
	// FailureTransient is an external service or index failure. The
	// document is skipped and retried on the next run.
	FailureTransient
	// FailurePolicy is a deliberate skip, such as oversized content or an
	// overlong name. Never escalated.
	FailurePolicy
	// FailureIntegrity is a record that violates a key or offset invariant.
	// It fails alone.
	FailureIntegrity
	// FailureStage means the stage cannot continue, such as an unreachable
	// store or a cancelled run.
	FailureStage
)

var failureNames = [...]string{
	FailureNone:      "none",
	FailureTransient: "transient",
	FailurePolicy:    "policy",
	FailureIntegrity: "integrity",
	FailureStage:     "stage",
}

func (f Failure) String() string {
	if f < 0 || int(f) >= len(failureNames) {
		return "unknown"
	}
	return failureNames[f]
}

// Classify places err in the failure taxonomy. Errors it does not
// recognize are treated as transient.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}

	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, database.ErrNotReady),
		errors.As(err, &connErr):
		return FailureStage

	case errors.Is(err, annotation.ErrOversized),
		errors.Is(err, concepts.ErrNameTooLong),
		errors.Is(err, concepts.ErrEmptyName),
		errors.Is(err, nlp.ErrNotConfigured),
		errors.Is(err, ErrCorruptPDF),
		errors.Is(err, ErrNoContent):
		return FailurePolicy

	case errors.Is(err, annotation.ErrInvalidSpan),
		errors.Is(err, align.ErrUnsorted),
		errors.Is(err, documents.ErrDuplicate),
		errors.Is(err, documents.ErrReference),
		errors.Is(err, documents.ErrInvalidID),
		errors.Is(err, concepts.ErrDuplicate),
		errors.Is(err, ErrMalformedItem):
		return FailureIntegrity

	case errors.Is(err, nlp.ErrServiceFailed),
		errors.Is(err, annotation.ErrEmptyPayload),
		errors.Is(err, index.ErrRequestFailed),
		errors.Is(err, context.DeadlineExceeded):
		return FailureTransient
	}
	return FailureTransient
}
