// Package nlp is the HTTP client for the external conversion, segmentation,
// definition, term, obligation, and classification services, and for the
// crawler trigger. Every request is paced by a shared rate limiter.
package nlp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/JaimeStill/lexis/internal/annotation"
)

// ErrServiceFailed indicates a non-200 response or transport failure.
var ErrServiceFailed = errors.New("service request failed")

// ErrNotConfigured indicates the endpoint for an optional service is unset.
var ErrNotConfigured = errors.New("service not configured")

// Endpoints are the service URLs. Obligations, Classify, and Crawler are optional.
type Endpoints struct {
	Convert     string
	Segment     string
	Definitions string
	Terms       string
	Obligations string
	Classify    string
	Crawler     string
}

// Client calls the NLP services. It satisfies annotation.Services.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Client with the given per-request timeout and pacing.
func New(endpoints Endpoints, timeout time.Duration, rps float64, burst int, logger *slog.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		endpoints: endpoints,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		logger:    logger.With("system", "nlp"),
	}
}

type request struct {
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	Encoding    string            `json:"encoding,omitempty"`
	Sentences   []annotation.Span `json:"sentences,omitempty"`
}

func textRequest(text string) request {
	return request{Content: text, ContentType: "text/plain"}
}

// Convert returns the canonical plaintext of raw HTML or PDF content.
func (c *Client) Convert(ctx context.Context, content []byte, contentType string) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	req := request{
		Content:     base64.StdEncoding.EncodeToString(content),
		ContentType: contentType,
		Encoding:    "base64",
	}
	if err := c.post(ctx, c.endpoints.Convert, req, &resp); err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", annotation.ErrEmptyPayload
	}
	return resp.Text, nil
}

// Segment partitions text into paragraphs and sentences.
func (c *Client) Segment(ctx context.Context, text string) (annotation.Segmentation, error) {
	var seg annotation.Segmentation
	if err := c.post(ctx, c.endpoints.Segment, textRequest(text), &seg); err != nil {
		return seg, err
	}
	if len(seg.Paragraphs) == 0 {
		return seg, annotation.ErrEmptyPayload
	}
	n := utf8.RuneCountInString(text)
	if err := validate(n, seg.Paragraphs); err != nil {
		return seg, err
	}
	return seg, validate(n, seg.Sentences)
}

// Definitions classifies sentences, returning those that are definitions.
func (c *Client) Definitions(ctx context.Context, text string, sentences []annotation.Span) ([]annotation.Scored, error) {
	var resp struct {
		Definitions []annotation.Scored `json:"definitions"`
	}
	req := textRequest(text)
	req.Sentences = sentences
	if err := c.post(ctx, c.endpoints.Definitions, req, &resp); err != nil {
		return nil, err
	}
	return resp.Definitions, validateScored(utf8.RuneCountInString(text), resp.Definitions)
}

// Terms tokenizes text and annotates term relevance.
func (c *Client) Terms(ctx context.Context, text string) (annotation.TermAnalysis, error) {
	var a annotation.TermAnalysis
	if err := c.post(ctx, c.endpoints.Terms, textRequest(text), &a); err != nil {
		return a, err
	}
	if len(a.Tokens) == 0 {
		return a, annotation.ErrEmptyPayload
	}
	n := utf8.RuneCountInString(text)
	for _, tk := range a.Tokens {
		if err := tk.Span.Validate(n); err != nil {
			return a, err
		}
	}
	return a, validateScored(n, a.Relevance)
}

// Obligations detects reporting obligations.
func (c *Client) Obligations(ctx context.Context, text string) ([]annotation.Scored, error) {
	if c.endpoints.Obligations == "" {
		return nil, fmt.Errorf("obligations: %w", ErrNotConfigured)
	}
	var resp struct {
		Obligations []annotation.Scored `json:"obligations"`
	}
	if err := c.post(ctx, c.endpoints.Obligations, textRequest(text), &resp); err != nil {
		return nil, err
	}
	return resp.Obligations, validateScored(utf8.RuneCountInString(text), resp.Obligations)
}

// ObligationFinder returns c when the obligations service is configured,
// otherwise nil.
func (c *Client) ObligationFinder() annotation.ObligationFinder {
	if c.endpoints.Obligations == "" {
		return nil
	}
	return c
}

// Classify scores a document's relevance in [0, 1].
func (c *Client) Classify(ctx context.Context, text string) (float64, error) {
	if c.endpoints.Classify == "" {
		return 0, fmt.Errorf("classify: %w", ErrNotConfigured)
	}
	var resp struct {
		Score *float64 `json:"score"`
	}
	if err := c.post(ctx, c.endpoints.Classify, textRequest(text), &resp); err != nil {
		return 0, err
	}
	if resp.Score == nil {
		return 0, annotation.ErrEmptyPayload
	}
	return *resp.Score, nil
}

// Crawl asks the crawler to scrape a website and returns its job id.
func (c *Client) Crawl(ctx context.Context, website, url string) (string, error) {
	if c.endpoints.Crawler == "" {
		return "", fmt.Errorf("crawl: %w", ErrNotConfigured)
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	req := map[string]string{"website": website, "url": url}
	if err := c.post(ctx, c.endpoints.Crawler, req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrServiceFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: status %d: %s", ErrServiceFailed, url, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return annotation.ErrEmptyPayload
		}
		return fmt.Errorf("%w: %s: decode: %v", ErrServiceFailed, url, err)
	}

	c.logger.Debug("service call", "url", url, "duration", time.Since(start))
	return nil
}

func validate(n int, spans []annotation.Span) error {
	for _, sp := range spans {
		if err := sp.Validate(n); err != nil {
			return err
		}
	}
	return nil
}

func validateScored(n int, scored []annotation.Scored) error {
	for _, s := range scored {
		if err := s.Span.Validate(n); err != nil {
			return err
		}
	}
	return nil
}
