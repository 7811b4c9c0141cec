package nlp_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/nlp"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captured struct {
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	Encoding    string            `json:"encoding"`
	Sentences   []annotation.Span `json:"sentences"`
}

func newServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, nlp.Endpoints) {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc("POST "+path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, nlp.Endpoints{
		Convert:     srv.URL + "/convert",
		Segment:     srv.URL + "/segment",
		Definitions: srv.URL + "/definitions",
		Terms:       srv.URL + "/terms",
		Obligations: srv.URL + "/obligations",
		Classify:    srv.URL + "/classify",
		Crawler:     srv.URL + "/crawl",
	}
}

func newClient(endpoints nlp.Endpoints) *nlp.Client {
	return nlp.New(endpoints, 5*time.Second, 1000, 10, discard())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestConvertSendsBase64(t *testing.T) {
	var got captured
	_, endpoints := newServer(t, map[string]http.HandlerFunc{
		"/convert": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, map[string]string{"text": "A widget is a small device."})
		},
	})

	text, err := newClient(endpoints).Convert(context.Background(), []byte("<p>hi</p>"), "text/html")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if text != "A widget is a small device." {
		t.Errorf("text = %q", text)
	}
	raw, _ := base64.StdEncoding.DecodeString(got.Content)
	if string(raw) != "<p>hi</p>" || got.Encoding != "base64" || got.ContentType != "text/html" {
		t.Errorf("request = %+v", got)
	}
}

func TestNon200IsServiceFailure(t *testing.T) {
	_, endpoints := newServer(t, map[string]http.HandlerFunc{
		"/segment": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		},
	})

	_, err := newClient(endpoints).Segment(context.Background(), "text")
	if !errors.Is(err, nlp.ErrServiceFailed) {
		t.Errorf("error = %v, want ErrServiceFailed", err)
	}
}

func TestSegmentValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		wantErr error
	}{
		{"empty payload", map[string]any{"paragraphs": []any{}}, annotation.ErrEmptyPayload},
		{"offset past end", map[string]any{"paragraphs": []annotation.Span{{Begin: 0, End: 50}}}, annotation.ErrInvalidSpan},
		{"ok", map[string]any{"paragraphs": []annotation.Span{{Begin: 0, End: 4}}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, endpoints := newServer(t, map[string]http.HandlerFunc{
				"/segment": func(w http.ResponseWriter, r *http.Request) { writeJSON(w, tt.body) },
			})

			_, err := newClient(endpoints).Segment(context.Background(), "text")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefinitionsSendsSentences(t *testing.T) {
	var got captured
	_, endpoints := newServer(t, map[string]http.HandlerFunc{
		"/definitions": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, map[string]any{
				"definitions": []annotation.Scored{{Span: annotation.Span{Begin: 0, End: 4}, Score: 0.9}},
			})
		},
	})

	sentences := []annotation.Span{{Begin: 0, End: 4}}
	defs, err := newClient(endpoints).Definitions(context.Background(), "text", sentences)
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if len(got.Sentences) != 1 || got.Sentences[0] != sentences[0] {
		t.Errorf("sentences sent = %v", got.Sentences)
	}
	if len(defs) != 1 || defs[0].Score != 0.9 {
		t.Errorf("definitions = %+v", defs)
	}
}

func TestTermsCharacterOffsets(t *testing.T) {
	_, endpoints := newServer(t, map[string]http.HandlerFunc{
		"/terms": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, annotation.TermAnalysis{
				Tokens:    []annotation.Token{{Span: annotation.Span{Begin: 0, End: 5}, Lemma: "größe"}},
				Relevance: []annotation.Scored{{Span: annotation.Span{Begin: 0, End: 5}, Score: 1}},
			})
		},
	})

	// five characters, seven bytes
	a, err := newClient(endpoints).Terms(context.Background(), "Größe")
	if err != nil {
		t.Fatalf("Terms: %v", err)
	}
	if len(a.Tokens) != 1 {
		t.Errorf("tokens = %+v", a.Tokens)
	}
}

func TestOptionalServices(t *testing.T) {
	c := newClient(nlp.Endpoints{})

	if c.ObligationFinder() != nil {
		t.Error("ObligationFinder should be nil without an endpoint")
	}
	if _, err := c.Classify(context.Background(), "x"); !errors.Is(err, nlp.ErrNotConfigured) {
		t.Errorf("Classify error = %v", err)
	}
	if _, err := c.Crawl(context.Background(), "site", "http://site"); !errors.Is(err, nlp.ErrNotConfigured) {
		t.Errorf("Crawl error = %v", err)
	}
}

func TestClassifyAndCrawl(t *testing.T) {
	_, endpoints := newServer(t, map[string]http.HandlerFunc{
		"/classify": func(w http.ResponseWriter, r *http.Request) { writeJSON(w, map[string]float64{"score": 0.42}) },
		"/crawl":    func(w http.ResponseWriter, r *http.Request) { writeJSON(w, map[string]string{"job_id": "job-7"}) },
	})
	c := newClient(endpoints)

	score, err := c.Classify(context.Background(), "x")
	if err != nil || score != 0.42 {
		t.Errorf("Classify = %v, %v", score, err)
	}
	job, err := c.Crawl(context.Background(), "site", "http://site")
	if err != nil || job != "job-7" {
		t.Errorf("Crawl = %v, %v", job, err)
	}
}
