package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/artifacts"
	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/pkg/handlers"
	"github.com/JaimeStill/lexis/pkg/routes"
	"github.com/JaimeStill/lexis/pkg/storage"
)

// Downloader reads stored blobs.
type Downloader interface {
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// artifactsHandler serves a document's annotation snapshot and its
// obligations export.
type artifactsHandler struct {
	store   *artifacts.Store
	blobs   Downloader
	version string
	logger  *slog.Logger
}

func newArtifactsHandler(store *artifacts.Store, blobs Downloader, version string, logger *slog.Logger) *artifactsHandler {
	return &artifactsHandler{
		store:   store,
		blobs:   blobs,
		version: version,
		logger:  logger.With("handler", "artifacts"),
	}
}

func (h *artifactsHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/documents/{id}",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/artifact", Handler: h.snapshot},
			{Method: "GET", Pattern: "/export", Handler: h.export},
		},
	}
}

func (h *artifactsHandler) params(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, documents.ErrInvalidID)
		return uuid.Nil, "", false
	}
	version := r.URL.Query().Get("version")
	if version == "" {
		version = h.version
	}
	return id, version, true
}

func (h *artifactsHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	id, version, ok := h.params(w, r)
	if !ok {
		return
	}

	snap, err := h.store.Load(r.Context(), id, version)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, snap)
}

func (h *artifactsHandler) export(w http.ResponseWriter, r *http.Request) {
	id, version, ok := h.params(w, r)
	if !ok {
		return
	}

	key := artifacts.Key(id, version, "html")
	body, err := h.blobs.Download(r.Context(), storage.BucketObligationsHTML, key)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Query().Get("download") == "true" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", key))
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, body)
}
