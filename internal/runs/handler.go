package runs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/handlers"
	"github.com/JaimeStill/lexis/pkg/pagination"
	"github.com/JaimeStill/lexis/pkg/routes"
)

// Dispatcher queues a pipeline run for a website and returns its id.
type Dispatcher interface {
	Enqueue(ctx context.Context, websiteID uuid.UUID, trigger string) (uuid.UUID, error)
}

// Accepted is the response to a queued run.
type Accepted struct {
	RunID     uuid.UUID `json:"run_id"`
	WebsiteID uuid.UUID `json:"website_id"`
}

// Handler provides HTTP endpoints for run reports.
type Handler struct {
	sys        System
	dispatch   Dispatcher
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler.
func NewHandler(sys System, dispatch Dispatcher, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		dispatch:   dispatch,
		logger:     logger.With("handler", "runs"),
		pagination: pagination,
	}
}

// Routes returns run listing under /runs and run dispatch under
// /websites/{id}/runs.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Children: []routes.Group{
			{
				Prefix: "/runs",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "", Handler: h.List},
					{Method: "GET", Pattern: "/{id}", Handler: h.Find},
				},
			},
			{
				Prefix: "/websites/{id}/runs",
				Routes: []routes.Route{
					{Method: "POST", Pattern: "", Handler: h.Enqueue},
				},
			},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), page, FiltersFromQuery(r.URL.Query()))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return
	}

	run, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, run)
}

// Enqueue queues a run of every stage for the website.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	websiteID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return
	}

	runID, err := h.dispatch.Enqueue(r.Context(), websiteID, "api")
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusAccepted, Accepted{RunID: runID, WebsiteID: websiteID})
}
