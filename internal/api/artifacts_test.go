package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/artifacts"
	"github.com/JaimeStill/lexis/pkg/routes"
	"github.com/JaimeStill/lexis/pkg/storage"
)

type memBlobs map[string][]byte

func (m memBlobs) Upload(_ context.Context, bucket, key string, r io.Reader, _ string) error {
	data, err := io.ReadAll(r)
	m[bucket+"/"+key] = data
	return err
}

func (m memBlobs) Download(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := m[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m memBlobs) Create(ctx context.Context, bucket, key string, r io.Reader, contentType string) error {
	if _, ok := m[bucket+"/"+key]; ok {
		return storage.ErrExists
	}
	return m.Upload(ctx, bucket, key, r, contentType)
}

func newArtifactsMux(t *testing.T, blobs memBlobs) (*http.ServeMux, *artifacts.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := artifacts.New(blobs, logger)
	mux := http.NewServeMux()
	routes.Register(mux, newArtifactsHandler(store, blobs, "v1", logger).routes())
	return mux, store
}

func TestArtifactsSnapshot(t *testing.T) {
	blobs := memBlobs{}
	mux, store := newArtifactsMux(t, blobs)

	id := uuid.New()
	res := &annotation.Result{Text: annotation.NewText("A widget.")}
	if _, err := store.Save(context.Background(), artifacts.NewSnapshot(id, "v1", res, time.Now())); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"default version", "/documents/" + id.String() + "/artifact", http.StatusOK},
		{"explicit version", "/documents/" + id.String() + "/artifact?version=v1", http.StatusOK},
		{"missing version", "/documents/" + id.String() + "/artifact?version=v9", http.StatusNotFound},
		{"bad id", "/documents/nope/artifact", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if tt.status != http.StatusOK {
				return
			}
			var snap artifacts.Snapshot
			if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
				t.Fatal(err)
			}
			if snap.Text != "A widget." || snap.DocumentID != id {
				t.Errorf("snapshot = %+v", snap)
			}
		})
	}
}

func TestArtifactsExport(t *testing.T) {
	blobs := memBlobs{}
	mux, store := newArtifactsMux(t, blobs)

	id := uuid.New()
	if err := store.Export(context.Background(), id, "v1", "Directive", "Member States shall report.", []annotation.Span{{Begin: 0, End: 26}}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/"+id.String()+"/export?download=true", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, artifacts.Key(id, "v1", "html")) {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "Directive") {
		t.Errorf("body missing title: %s", rec.Body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString()+"/export", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing export status = %d", rec.Code)
	}
}
