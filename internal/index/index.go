// Package index is the client for the full-text search index. The index
// speaks the Solr JSON API: cursor-paginated select, real-time get, and
// JSON update commands with atomic "set" for partial updates.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrNotFound indicates the index holds no document with the id.
	ErrNotFound = errors.New("index document not found")
	// ErrRequestFailed indicates a non-200 response or transport failure.
	ErrRequestFailed = errors.New("index request failed")
)

// Document is a document as the crawler indexed it. Pointer fields are
// optional: the index does not always carry the full record.
type Document struct {
	ID          string     `json:"id"`
	Website     string     `json:"website"`
	ParentID    *string    `json:"parent_id,omitempty"`
	URL         *string    `json:"url,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Language    *string    `json:"language,omitempty"`
	ContentType *string    `json:"content_type,omitempty"`
	Content     *string    `json:"content,omitempty"`
	ContentHTML *string    `json:"content_html,omitempty"`
	Plaintext   *string    `json:"plaintext,omitempty"`
	PageCount   *int       `json:"page_count,omitempty"`
}

// Missing is a filter query matching documents that lack field.
func Missing(field string) string {
	return "-" + field + ":[* TO *]"
}

// Fields is a partial update: field name to new value.
type Fields map[string]any

// Client talks to one index collection.
type Client struct {
	http     *http.Client
	base     string
	pageSize int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Client for baseURL/collection.
func New(baseURL, collection string, pageSize int, timeout time.Duration, rps float64, burst int, logger *slog.Logger) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		base:     strings.TrimRight(baseURL, "/") + "/" + collection,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		logger:   logger.With("system", "index"),
	}
}

// Cursor walks a result set page by page. Check Err after ranging All.
type Cursor struct {
	c       *Client
	ctx     context.Context
	website string
	filters []string
	err     error
}

// Scan returns a cursor over a website's documents sorted by id ascending.
// Each filter is sent as a filter query (fq) narrowing the result set.
func (c *Client) Scan(ctx context.Context, website string, filters ...string) *Cursor {
	return &Cursor{c: c, ctx: ctx, website: website, filters: filters}
}

// All yields documents lazily, fetching pages as needed.
func (cur *Cursor) All() iter.Seq[Document] {
	return func(yield func(Document) bool) {
		mark := "*"
		for {
			page, next, err := cur.c.page(cur.ctx, cur.website, cur.filters, mark)
			if err != nil {
				cur.err = err
				return
			}
			for _, d := range page {
				if !yield(d) {
					return
				}
			}
			if next == mark || len(page) == 0 {
				return
			}
			mark = next
		}
	}
}

// Err returns the first error encountered by All.
func (cur *Cursor) Err() error {
	return cur.err
}

func (c *Client) page(ctx context.Context, website string, filters []string, mark string) ([]Document, string, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf(`website:"%s"`, escape(website)))
	for _, fq := range filters {
		q.Add("fq", fq)
	}
	q.Set("sort", "id asc")
	q.Set("rows", strconv.Itoa(c.pageSize))
	q.Set("cursorMark", mark)
	q.Set("wt", "json")

	var resp struct {
		Response struct {
			Docs []Document `json:"docs"`
		} `json:"response"`
		NextCursorMark string `json:"nextCursorMark"`
	}
	if err := c.do(ctx, http.MethodGet, "/select?"+q.Encode(), nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Response.Docs, resp.NextCursorMark, nil
}

// Get fetches one document by id.
func (c *Client) Get(ctx context.Context, id string) (*Document, error) {
	var resp struct {
		Doc *Document `json:"doc"`
	}
	if err := c.do(ctx, http.MethodGet, "/get?id="+url.QueryEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return resp.Doc, nil
}

// Add indexes or replaces documents.
func (c *Client) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/update", docs, nil)
}

// Update sets fields on an existing document, leaving other fields untouched.
func (c *Client) Update(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	doc := map[string]any{"id": id}
	for k, v := range fields {
		doc[k] = map[string]any{"set": v}
	}
	return c.do(ctx, http.MethodPost, "/update", []any{doc}, nil)
}

// Delete removes a document by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	cmd := map[string]any{"delete": map[string]string{"id": id}}
	return c.do(ctx, http.MethodPost, "/update", cmd, nil)
}

// Commit makes pending updates visible to searches.
func (c *Client) Commit(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/update", map[string]any{"commit": map[string]any{}}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRequestFailed, method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrRequestFailed, err)
	}
	return nil
}

// escape quotes a value for use inside a double-quoted query term.
func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
