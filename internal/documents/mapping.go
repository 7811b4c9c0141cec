package documents

import (
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/query"
	"github.com/JaimeStill/lexis/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "documents", "d").
	Project("id", "ID").
	Project("website_id", "WebsiteID").
	Project("parent_id", "ParentID").
	Project("title", "Title").
	Project("url", "URL").
	Project("date", "Date").
	Project("status", "Status").
	Project("language", "Language").
	Project("content_type", "ContentType").
	Project("page_count", "PageCount").
	Project("score", "Score").
	Project("annotated_version", "AnnotatedVersion").
	Project("annotated_at", "AnnotatedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Project("expired_at", "ExpiredAt")

var defaultSort = query.SortField{
	Field:      "UpdatedAt",
	Descending: true,
}

// Filters narrows document listings. Nil fields are ignored.
type Filters struct {
	WebsiteID   *uuid.UUID `json:"website_id,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Language    *string    `json:"language,omitempty"`
	ContentType *string    `json:"content_type,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Expired     *bool      `json:"expired,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	var active *bool
	if f.Expired != nil {
		v := !*f.Expired
		active = &v
	}
	return b.
		WhereEquals("WebsiteID", f.WebsiteID).
		WhereEquals("ParentID", f.ParentID).
		WhereEquals("Status", f.Status).
		WhereEquals("Language", f.Language).
		WhereEquals("ContentType", f.ContentType).
		WhereContains("Title", f.Title).
		WhereNull("ExpiredAt", active)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Malformed ids and booleans are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if id, err := uuid.Parse(values.Get("website_id")); err == nil {
		f.WebsiteID = &id
	}
	if id, err := uuid.Parse(values.Get("parent_id")); err == nil {
		f.ParentID = &id
	}
	if s := values.Get("status"); s != "" {
		f.Status = &s
	}
	if l := values.Get("language"); l != "" {
		f.Language = &l
	}
	if ct := values.Get("content_type"); ct != "" {
		f.ContentType = &ct
	}
	if t := values.Get("title"); t != "" {
		f.Title = &t
	}
	if e, err := strconv.ParseBool(values.Get("expired")); err == nil {
		f.Expired = &e
	}

	return f
}

func scanDocument(s repository.Scanner) (Document, error) {
	var d Document
	err := s.Scan(
		&d.ID,
		&d.WebsiteID,
		&d.ParentID,
		&d.Title,
		&d.URL,
		&d.Date,
		&d.Status,
		&d.Language,
		&d.ContentType,
		&d.PageCount,
		&d.Score,
		&d.AnnotatedVersion,
		&d.AnnotatedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.ExpiredAt,
	)
	return d, err
}

func scanSyncState(s repository.Scanner) (SyncState, error) {
	var st SyncState
	err := s.Scan(
		&st.ID,
		&st.ParentID,
		&st.Title,
		&st.URL,
		&st.Date,
		&st.Status,
		&st.Language,
		&st.ContentType,
		&st.PageCount,
		&st.ContentHash,
		&st.Score,
		&st.UpdatedAt,
		&st.ExpiredAt,
	)
	return st, err
}

func scanContent(s repository.Scanner) (Content, error) {
	var c Content
	err := s.Scan(&c.ID, &c.ContentType, &c.Content, &c.ContentHTML, &c.Plaintext)
	return c, err
}

func scanID(s repository.Scanner) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.Scan(&id)
	return id, err
}

// columns lists the present fields of f as column/value pairs in a fixed
// order, for INSERT and UPDATE statements.
func columns(f Fields) ([]string, []any) {
	var cols []string
	var vals []any
	add := func(col string, present bool, v any) {
		if present {
			cols = append(cols, col)
			vals = append(vals, v)
		}
	}
	add("parent_id", f.ParentID != nil, f.ParentID)
	add("title", f.Title != nil, f.Title)
	add("url", f.URL != nil, f.URL)
	add("date", f.Date != nil, f.Date)
	add("status", f.Status != nil, f.Status)
	add("language", f.Language != nil, f.Language)
	add("content_type", f.ContentType != nil, f.ContentType)
	add("content", f.Content != nil, f.Content)
	add("content_html", f.ContentHTML != nil, f.ContentHTML)
	add("plaintext", f.Plaintext != nil, f.Plaintext)
	add("page_count", f.PageCount != nil, f.PageCount)
	add("content_hash", f.ContentHash != nil, f.ContentHash)
	return cols, vals
}
