// Package annotation holds the offset primitives shared by every annotation
// record and the per-document extraction state machine that produces them.
//
// Offsets count characters (runes) of a document's canonical plaintext, not
// bytes, so spans survive re-encoding and render correctly over the text.
package annotation

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidSpan indicates a span outside 0 <= begin < end <= len(text).
var ErrInvalidSpan = errors.New("invalid span")

// Span is a half-open [Begin, End) character range.
type Span struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// Len returns the number of characters covered.
func (s Span) Len() int {
	return s.End - s.Begin
}

// Validate checks s against a text of n characters.
func (s Span) Validate(n int) error {
	if s.Begin < 0 || s.Begin >= s.End || s.End > n {
		return fmt.Errorf("%w: [%d,%d) over %d chars", ErrInvalidSpan, s.Begin, s.End, n)
	}
	return nil
}

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool {
	return o.Begin >= s.Begin && o.End <= s.End
}

// Overlaps reports whether s and o share at least one character.
func (s Span) Overlaps(o Span) bool {
	return s.Begin < o.End && o.Begin < s.End
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Begin, s.End)
}

// Compare orders spans by Begin, then End.
func Compare(a, b Span) int {
	if c := cmp.Compare(a.Begin, b.Begin); c != 0 {
		return c
	}
	return cmp.Compare(a.End, b.End)
}

// Sorted returns a sorted copy of spans with duplicates removed.
func Sorted(spans []Span) []Span {
	out := slices.Clone(spans)
	slices.SortFunc(out, Compare)
	return slices.Compact(out)
}
