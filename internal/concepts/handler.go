package concepts

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/handlers"
	"github.com/JaimeStill/lexis/pkg/pagination"
	"github.com/JaimeStill/lexis/pkg/routes"
)

// Handler provides HTTP endpoints for concepts and their verdicts.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// VerdictRequest is the body of a verdict update.
type VerdictRequest struct {
	UserID  string  `json:"user_id"`
	Verdict Verdict `json:"verdict"`
}

// NewHandler creates a Handler.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "concepts"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for concept endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/concepts",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "GET", Pattern: "/{id}/acceptance", Handler: h.Acceptance},
			{Method: "PUT", Pattern: "/{id}/acceptance", Handler: h.SetVerdict},
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
	id, ok := h.conceptID(w, r)
	if !ok {
		return
	}

	c, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, c)
}

// Acceptance lists every verdict on a concept, human and automated.
func (h *Handler) Acceptance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conceptID(w, r)
	if !ok {
		return
	}

	states, err := h.sys.Acceptance(r.Context(), Entity{ConceptID: &id})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, states)
}

// SetVerdict records a user's verdict on a concept.
func (h *Handler) SetVerdict(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conceptID(w, r)
	if !ok {
		return
	}

	req, err := handlers.DecodeJSON[VerdictRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	state, err := h.sys.SetVerdict(r.Context(), UserVerdict{
		Entity:  Entity{ConceptID: &id},
		UserID:  req.UserID,
		Verdict: req.Verdict,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) conceptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
