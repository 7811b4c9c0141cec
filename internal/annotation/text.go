package annotation

import "unicode/utf8"

// Text is a document's canonical plaintext indexed by character.
type Text struct {
	s     string
	runes []rune
}

// NewText wraps s.
func NewText(s string) Text {
	return Text{s: s, runes: []rune(s)}
}

// Len returns the length in characters.
func (t Text) Len() int {
	return len(t.runes)
}

func (t Text) String() string {
	return t.s
}

// Slice returns the characters covered by sp. sp must be valid for t.
func (t Text) Slice(sp Span) string {
	return string(t.runes[sp.Begin:sp.End])
}

// ByteLen returns the UTF-8 encoded size of the characters covered by sp.
func (t Text) ByteLen(sp Span) int {
	n := 0
	for _, r := range t.runes[sp.Begin:sp.End] {
		n += utf8.RuneLen(r)
	}
	return n
}
