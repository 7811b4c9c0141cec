package api

import (
	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/artifacts"
	"github.com/JaimeStill/lexis/internal/concepts"
	"github.com/JaimeStill/lexis/internal/docsync"
	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/pipeline"
	"github.com/JaimeStill/lexis/internal/runs"
	"github.com/JaimeStill/lexis/internal/scheduler"
	"github.com/JaimeStill/lexis/internal/websites"
)

// pipelineActor is recorded in the worklog for records the pipeline creates.
const pipelineActor = "pipeline"

// Domain holds all domain systems that comprise the API, plus the pipeline
// that writes to them.
type Domain struct {
	Websites  websites.System
	Documents documents.System
	Concepts  concepts.System
	Runs      runs.System
	Artifacts *artifacts.Store
	Pipeline  *pipeline.Orchestrator
	Scheduler *scheduler.Scheduler
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	websitesSystem := websites.New(db, runtime.Logger)
	docsSystem := documents.New(db, runtime.Storage, runtime.Index, runtime.Logger, runtime.Pagination)
	conceptsSystem := concepts.New(db, runtime.Logger, runtime.Pagination)
	runsSystem := runs.New(db, runtime.Logger, runtime.Pagination)
	artifactStore := artifacts.New(runtime.Storage, runtime.Logger)

	cfg := runtime.Pipeline
	rt := &pipeline.Runtime{
		Documents: docsSystem,
		Index:     runtime.Index,
		Services:  runtime.Services,
		Blobs:     runtime.Storage,
		Extractor: annotation.NewExtractor(
			runtime.Services,
			runtime.Services.ObligationFinder(),
			annotation.Options{
				MaxContentBytes:    cfg.MaxContentBytes(),
				MaxDefinitionBytes: cfg.MaxDefinitionBytes(),
			},
			runtime.Logger,
		),
		Resolver: concepts.NewResolver(conceptsSystem, concepts.Options{
			ExtractorVersion: cfg.ExtractorVersion,
			MaxNameLength:    cfg.MaxNameLength,
			Actor:            pipelineActor,
		}, runtime.Logger),
		Artifacts: artifactStore,
		Concepts:  conceptsSystem,
		Sync: docsync.New(docsSystem, runtime.Index, docsync.Options{
			Staleness: cfg.StalenessDuration(),
		}, runtime.Logger),
		Settings: pipeline.Settings{
			ExtractorVersion: cfg.ExtractorVersion,
			Workers:          cfg.Workers,
			StageTimeout:     cfg.StageTimeoutDuration(),
			Export:           cfg.Export,
		},
		Logger: runtime.Logger,
	}
	if runtime.Graph != nil {
		rt.Graph = runtime.Graph
	}

	orchestrator := pipeline.NewOrchestrator(
		pipeline.Stages(rt),
		runsSystem,
		websitesSystem,
		runtime.Queue,
		pipeline.Options{
			LockTTL:      cfg.LockTTLDuration(),
			StageTimeout: cfg.StageTimeoutDuration(),
		},
		runtime.Logger,
	)

	return &Domain{
		Websites:  websitesSystem,
		Documents: docsSystem,
		Concepts:  conceptsSystem,
		Runs:      runsSystem,
		Artifacts: artifactStore,
		Pipeline:  orchestrator,
		Scheduler: scheduler.New(websitesSystem, orchestrator, cfg.Schedule, runtime.Logger),
	}
}
