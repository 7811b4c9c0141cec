package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// State is a document's position in the extraction state machine.
// Transitions are strictly forward.
type State int

const (
	StateRaw State = iota
	StateConverted
	StateSegmented
	StateDefinitionsFound
	StateTermsFound
	StatePersisted
)

var stateNames = [...]string{
	StateRaw:              "raw",
	StateConverted:        "converted",
	StateSegmented:        "segmented",
	StateDefinitionsFound: "definitions_found",
	StateTermsFound:       "terms_found",
	StatePersisted:        "persisted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

var (
	// ErrOversized indicates content above the size ceiling. Oversized
	// documents are skipped, not retried.
	ErrOversized = errors.New("content exceeds size ceiling")
	// ErrEmptyPayload indicates a service returned nothing usable.
	ErrEmptyPayload = errors.New("empty payload")
)

// StageError reports the state a document was in when extraction halted.
type StageError struct {
	DocumentID string
	State      State
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("document %s halted at %s: %v", e.DocumentID, e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
