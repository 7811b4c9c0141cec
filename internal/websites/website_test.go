package websites_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/websites"
	"github.com/JaimeStill/lexis/pkg/routes"
)

type fakeSystem struct {
	websites.System
	sites []websites.Website
}

func (f *fakeSystem) List(context.Context) ([]websites.Website, error) {
	return f.sites, nil
}

func (f *fakeSystem) Find(_ context.Context, id uuid.UUID) (*websites.Website, error) {
	for _, s := range f.sites {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, websites.ErrNotFound
}

func TestHandler(t *testing.T) {
	site := websites.Website{ID: uuid.New(), Name: "eur-lex", URL: "https://eur-lex.europa.eu", Enabled: true}
	h := websites.NewHandler(&fakeSystem{sites: []websites.Website{site}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	routes.Register(mux, h.Routes())

	tests := []struct {
		name string
		path string
		want int
	}{
		{"list", "/websites", http.StatusOK},
		{"find", "/websites/" + site.ID.String(), http.StatusOK},
		{"missing", "/websites/" + uuid.NewString(), http.StatusNotFound},
		{"malformed", "/websites/x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	if got := websites.MapHTTPStatus(websites.ErrDuplicate); got != http.StatusConflict {
		t.Errorf("duplicate = %d", got)
	}
	if got := websites.MapHTTPStatus(context.Canceled); got != http.StatusInternalServerError {
		t.Errorf("other = %d", got)
	}
}
