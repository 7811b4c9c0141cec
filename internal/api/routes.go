package api

import (
	"net/http"

	"github.com/JaimeStill/lexis/internal/scheduler"
	"github.com/JaimeStill/lexis/pkg/handlers"
	"github.com/JaimeStill/lexis/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, runtime *Runtime) {
	routes.Register(
		mux,
		domain.Websites.Handler().Routes(),
		domain.Documents.Handler().Routes(),
		domain.Concepts.Handler().Routes(),
		domain.Runs.Handler(domain.Pipeline).Routes(),
		newArtifactsHandler(
			domain.Artifacts,
			runtime.Storage,
			runtime.Pipeline.ExtractorVersion,
			runtime.Logger,
		).routes(),
		scheduleRoutes(domain.Scheduler),
	)
}

func scheduleRoutes(s *scheduler.Scheduler) routes.Group {
	return routes.Group{
		Prefix: "/schedule",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: func(w http.ResponseWriter, r *http.Request) {
				handlers.RespondJSON(w, http.StatusOK, s.Entries())
			}},
		},
	}
}
