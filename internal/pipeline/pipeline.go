// Package pipeline runs a website's batch stages in fixed order:
// scrape, index, plaintext, sync, score, annotate, and optionally export.
//
// Stages share no memory. Each reads what the previous one left in the
// index or the relational store, so any stage can be rerun on its own.
// Documents inside a stage are processed concurrently and fail alone; a
// stage that fails as a whole ends the run and later stages are skipped.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/JaimeStill/lexis/internal/websites"
)

// Stage names in run order.
const (
	StageScrape    = "scrape"
	StageIndex     = "index"
	StagePlaintext = "plaintext"
	StageSync      = "sync"
	StageScore     = "score"
	StageAnnotate  = "annotate"
	StageExport    = "export"
)

var (
	// ErrUnknownStage indicates a task names a stage the pipeline lacks.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrMalformedItem indicates a crawler item that does not decode.
	ErrMalformedItem = errors.New("malformed crawler item")
	// ErrCorruptPDF indicates a PDF the parser rejects. Such documents are
	// skipped rather than sent for conversion.
	ErrCorruptPDF = errors.New("corrupt pdf")
	// ErrNoContent indicates a document with nothing to convert.
	ErrNoContent = errors.New("document has no content")
)

// Tally counts one stage's documents.
type Tally struct {
	Processed int
	Skipped   int
	Failed    int
}

// Stage is one unit of a website's run.
type Stage interface {
	Name() string
	Run(ctx context.Context, site websites.Website) (Tally, error)
}

type stage struct {
	name string
	run  func(ctx context.Context, site websites.Website) (Tally, error)
}

func (s stage) Name() string { return s.name }

func (s stage) Run(ctx context.Context, site websites.Website) (Tally, error) {
	return s.run(ctx, site)
}

// NewStage wraps fn as a Stage.
func NewStage(name string, fn func(ctx context.Context, site websites.Website) (Tally, error)) Stage {
	return stage{name: name, run: fn}
}

// Stages builds the pipeline's stages over rt in run order. Export is
// included only when rt.Settings.Export is set.
func Stages(rt *Runtime) []Stage {
	s := &stages{rt: rt, logger: rt.Logger.With("system", "pipeline")}
	list := []Stage{
		NewStage(StageScrape, s.scrape),
		NewStage(StageIndex, s.ingest),
		NewStage(StagePlaintext, s.plaintext),
		NewStage(StageSync, s.sync),
		NewStage(StageScore, s.score),
		NewStage(StageAnnotate, s.annotate),
	}
	if rt.Settings.Export {
		list = append(list, NewStage(StageExport, s.export))
	}
	return list
}

type stages struct {
	rt     *Runtime
	logger *slog.Logger
}

func (s *stages) stageLogger(name string, site websites.Website) *slog.Logger {
	return s.logger.With("stage", name, "website", site.Name)
}
