// Package documents implements the relational side of the document store.
// Records are created and updated by the sync stage from index payloads,
// enriched with derived fields by later stages, and removed only through
// Delete, which also clears the index and blob storage copies.
package documents

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/formatting"
)

// Column limits applied on write. Longer values are truncated, not rejected.
const (
	MaxTitle       = 1024
	MaxURL         = 2048
	MaxStatus      = 32
	MaxLanguage    = 16
	MaxContentType = 128
)

// Document is a stored document without its content columns.
type Document struct {
	ID               uuid.UUID  `json:"id"`
	WebsiteID        uuid.UUID  `json:"website_id"`
	ParentID         *uuid.UUID `json:"parent_id,omitempty"`
	Title            *string    `json:"title"`
	URL              *string    `json:"url"`
	Date             *time.Time `json:"date"`
	Status           *string    `json:"status"`
	Language         *string    `json:"language"`
	ContentType      *string    `json:"content_type"`
	PageCount        *int       `json:"page_count"`
	Score            *float64   `json:"score"`
	AnnotatedVersion *string    `json:"annotated_version"`
	AnnotatedAt      *time.Time `json:"annotated_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ExpiredAt        *time.Time `json:"expired_at,omitempty"`
}

// Content carries the text columns the annotation stages read.
type Content struct {
	ID          uuid.UUID
	ContentType *string
	Content     *string
	ContentHTML *string
	Plaintext   *string
}

// Fields is a set of index-sourced columns. A nil field is absent: creates
// store NULL and updates leave the column untouched.
type Fields struct {
	ParentID    *uuid.UUID
	Title       *string
	URL         *string
	Date        *time.Time
	Status      *string
	Language    *string
	ContentType *string
	Content     *string
	ContentHTML *string
	Plaintext   *string
	PageCount   *int
	// ContentHash fingerprints the text payload (content, html, plaintext)
	// last applied, so unchanged text is detected without loading it.
	ContentHash *string
}

// CreateCommand inserts a document under a website.
type CreateCommand struct {
	ID        uuid.UUID
	WebsiteID uuid.UUID
	Fields
}

// SyncState is the slice of a stored document the sync stage compares
// against the index.
type SyncState struct {
	ID          uuid.UUID
	ParentID    *uuid.UUID
	Title       *string
	URL         *string
	Date        *time.Time
	Status      *string
	Language    *string
	ContentType *string
	PageCount   *int
	ContentHash *string
	Score       *float64
	UpdatedAt   time.Time
	ExpiredAt   *time.Time
}

// Need selects documents awaiting a derived-field stage.
type Need int

const (
	// NeedScore selects active documents with plaintext and no score.
	NeedScore Need = iota
	// NeedAnnotation selects active documents not yet annotated by the
	// requested extractor version, or changed since.
	NeedAnnotation
	// NeedExport selects active documents annotated by the requested
	// extractor version.
	NeedExport
)

// HashContent fingerprints a text payload. It returns nil when every part
// is absent.
func HashContent(parts ...*string) *string {
	h := sha256.New()
	present := false
	for _, p := range parts {
		if p != nil {
			present = true
			h.Write([]byte{1})
			h.Write([]byte(*p))
		} else {
			h.Write([]byte{0})
		}
	}
	if !present {
		return nil
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return &sum
}

// Truncate applies the column limits in place and returns the names of the
// fields it shortened.
func (f *Fields) Truncate() []string {
	var cut []string
	limits := []struct {
		name  string
		value **string
		max   int
	}{
		{"title", &f.Title, MaxTitle},
		{"url", &f.URL, MaxURL},
		{"status", &f.Status, MaxStatus},
		{"language", &f.Language, MaxLanguage},
		{"content_type", &f.ContentType, MaxContentType},
	}
	for _, l := range limits {
		if *l.value == nil {
			continue
		}
		if s, ok := formatting.Truncate(**l.value, l.max); ok {
			*l.value = &s
			cut = append(cut, l.name)
		}
	}
	return cut
}

// Diff returns the present fields of f whose values differ from s. Text
// columns are compared through ContentHash and travel together.
func (f Fields) Diff(s SyncState) Fields {
	var d Fields
	if f.ParentID != nil && (s.ParentID == nil || *f.ParentID != *s.ParentID) {
		d.ParentID = f.ParentID
	}
	d.Title = changed(f.Title, s.Title)
	d.URL = changed(f.URL, s.URL)
	d.Status = changed(f.Status, s.Status)
	d.Language = changed(f.Language, s.Language)
	d.ContentType = changed(f.ContentType, s.ContentType)
	d.PageCount = changed(f.PageCount, s.PageCount)
	if f.Date != nil && (s.Date == nil || !f.Date.Equal(*s.Date)) {
		d.Date = f.Date
	}
	if f.ContentHash != nil && (s.ContentHash == nil || *f.ContentHash != *s.ContentHash) {
		d.Content = f.Content
		d.ContentHTML = f.ContentHTML
		d.Plaintext = f.Plaintext
		d.ContentHash = f.ContentHash
	}
	return d
}

// Empty reports whether no field is present.
func (f Fields) Empty() bool {
	return f == Fields{}
}

func changed[T comparable](next, cur *T) *T {
	if next == nil {
		return nil
	}
	if cur != nil && *next == *cur {
		return nil
	}
	return next
}
