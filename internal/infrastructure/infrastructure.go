// Package infrastructure provides core service initialization for application startup.
// It assembles the shared dependencies (logging, database, storage, queue,
// search index, NLP services, graph store) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/lexis/internal/config"
	"github.com/JaimeStill/lexis/internal/graph"
	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/internal/nlp"
	"github.com/JaimeStill/lexis/internal/observability"
	"github.com/JaimeStill/lexis/pkg/database"
	"github.com/JaimeStill/lexis/pkg/lifecycle"
	"github.com/JaimeStill/lexis/pkg/queue"
	"github.com/JaimeStill/lexis/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Queue     queue.System
	Index     *index.Client
	Services  *nlp.Client
	// Graph is nil when no graph store is configured.
	Graph *graph.Projector

	tracing config.TracingConfig
	service observability.Service
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	projector, err := graph.New(&cfg.Graph, logger)
	if err != nil {
		return nil, fmt.Errorf("graph init failed: %w", err)
	}

	idx := index.New(
		cfg.Index.URL,
		cfg.Index.Collection,
		cfg.Index.PageSize,
		cfg.Index.TimeoutDuration(),
		cfg.Index.RateLimit,
		cfg.Index.Burst,
		logger,
	)

	services := nlp.New(
		nlp.Endpoints{
			Convert:     cfg.Services.Convert,
			Segment:     cfg.Services.Segment,
			Definitions: cfg.Services.Definitions,
			Terms:       cfg.Services.Terms,
			Obligations: cfg.Services.Obligations,
			Classify:    cfg.Services.Classify,
			Crawler:     cfg.Services.Crawler,
		},
		cfg.Services.TimeoutDuration(),
		cfg.Services.RateLimit,
		cfg.Services.Burst,
		logger,
	)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Queue:     queue.New(&cfg.Queue, logger),
		Index:     idx,
		Services:  services,
		Graph:     projector,
		tracing:   cfg.Tracing,
		service: observability.Service{
			Name:        "lexis",
			Version:     cfg.Version,
			Environment: cfg.Env(),
		},
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator
// and installs tracing.
func (i *Infrastructure) Start() error {
	if err := observability.Init(i.Lifecycle.Context(), &i.tracing, i.service, i.Lifecycle, i.Logger); err != nil {
		return fmt.Errorf("tracing start failed: %w", err)
	}
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Queue.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("queue start failed: %w", err)
	}
	if i.Graph != nil {
		if err := i.Graph.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("graph start failed: %w", err)
		}
	}
	return nil
}
