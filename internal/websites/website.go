// Package websites reads the admin-managed source groupings documents
// belong to, along with each website's pipeline schedule.
package websites

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/handlers"
	"github.com/JaimeStill/lexis/pkg/routes"
)

var (
	ErrNotFound  = errors.New("website not found")
	ErrDuplicate = errors.New("website already exists")
	ErrInvalidID = errors.New("invalid website id")
)

// Website is a named document source.
type Website struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Schedule  *string   `json:"schedule,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCommand registers a website.
type CreateCommand struct {
	Name     string
	URL      string
	Schedule *string
}

// System defines the public contract for website operations.
type System interface {
	Handler() *Handler
	List(ctx context.Context) ([]Website, error)
	Find(ctx context.Context, id uuid.UUID) (*Website, error)
	FindByName(ctx context.Context, name string) (*Website, error)
	Create(ctx context.Context, cmd CreateCommand) (*Website, error)
}

// MapHTTPStatus maps website errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Handler serves the read-only website listing.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{sys: sys, logger: logger.With("handler", "websites")}
}

// Routes returns the route group definition for website endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/websites",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.sys.List(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, sites)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return
	}

	site, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, site)
}
