package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/JaimeStill/lexis/internal/api"
	"github.com/JaimeStill/lexis/internal/config"
	"github.com/JaimeStill/lexis/internal/infrastructure"
	"github.com/JaimeStill/lexis/pkg/module"
)

const readinessTimeout = 2 * time.Second

type Modules struct {
	API *module.Module
}

func NewModules(cfg *config.Config, runtime *api.Runtime, domain *api.Domain) *Modules {
	return &Modules{
		API: api.NewModule(cfg, runtime, domain),
	}
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

// dependencyCheck reports whether one backing store answers.
type dependencyCheck func(ctx context.Context) error

type readinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// readinessHandler answers 200 only once startup hooks finished and every
// dependency check passes within readinessTimeout.
func readinessHandler(started func() bool, checks map[string]dependencyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !started() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(readinessReport{Status: "starting"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		report := readinessReport{Status: "ready", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				report.Checks[name] = err.Error()
				report.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			report.Checks[name] = "ok"
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(report)
	}
}

func dependencyChecks(infra *infrastructure.Infrastructure) map[string]dependencyCheck {
	checks := map[string]dependencyCheck{
		"postgres": infra.Database.Ping,
		"redis":    infra.Queue.Ping,
	}
	if infra.Graph != nil {
		checks["neo4j"] = infra.Graph.Ping
	}
	return checks
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	router.HandleNative("GET /readyz", readinessHandler(infra.Lifecycle.Ready, dependencyChecks(infra)))

	return router
}
