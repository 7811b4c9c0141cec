package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/pagination"
	"github.com/JaimeStill/lexis/pkg/query"
	"github.com/JaimeStill/lexis/pkg/repository"
)

// System defines the public contract for run reports.
type System interface {
	Handler(dispatch Dispatcher) *Handler

	// Begin records a new run in the running state.
	Begin(ctx context.Context, id, websiteID uuid.UUID, trigger string) (*Run, error)
	// Save stores the stages reported so far without finishing the run.
	Save(ctx context.Context, run *Run) error
	// Finish stores the final stages, status, and error of a run.
	Finish(ctx context.Context, run *Run) error
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Run], error)
	Find(ctx context.Context, id uuid.UUID) (*Run, error)
	// Latest returns the most recent run of each website.
	Latest(ctx context.Context) ([]Run, error)
}

// Filters narrows run listings.
type Filters struct {
	WebsiteID *uuid.UUID `json:"website_id,omitempty"`
	Status    *Status    `json:"status,omitempty"`
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if id, err := uuid.Parse(values.Get("website_id")); err == nil {
		f.WebsiteID = &id
	}
	if s := values.Get("status"); s != "" {
		st := Status(s)
		f.Status = &st
	}
	return f
}

var projection = query.
	NewProjectionMap("public", "pipeline_runs", "r").
	Project("id", "ID").
	Project("website_id", "WebsiteID").
	Project("status", "Status").
	Project("trigger", "Trigger").
	Project("stages", "Stages").
	Project("error", "Error").
	Project("started_at", "StartedAt").
	Project("finished_at", "FinishedAt")

var defaultSort = query.SortField{Field: "StartedAt", Descending: true}

func scanRun(s repository.Scanner) (Run, error) {
	var r Run
	var stages []byte
	if err := s.Scan(&r.ID, &r.WebsiteID, &r.Status, &r.Trigger, &stages, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return r, err
	}
	if err := json.Unmarshal(stages, &r.Stages); err != nil {
		return r, fmt.Errorf("decode stages of run %s: %w", r.ID, err)
	}
	return r, nil
}

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a run repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "runs"),
		pagination: pagination,
	}
}

func (r *repo) Handler(dispatch Dispatcher) *Handler {
	return NewHandler(r, dispatch, r.logger, r.pagination)
}

func (r *repo) Begin(ctx context.Context, id, websiteID uuid.UUID, trigger string) (*Run, error) {
	const q = `
		INSERT INTO pipeline_runs (id, website_id, status, trigger)
		VALUES ($1, $2, $3, $4)
		RETURNING id, website_id, status, trigger, stages, error, started_at, finished_at`

	run, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Run, error) {
		return repository.QueryOne(ctx, tx, q, []any{id, websiteID, StatusRunning, trigger}, scanRun)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &run, nil
}

func (r *repo) Save(ctx context.Context, run *Run) error {
	stages, err := json.Marshal(run.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}

	err = repository.ExecExpectOne(ctx, r.db, `
		UPDATE pipeline_runs SET stages = $2 WHERE id = $1`,
		run.ID, stages,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) Finish(ctx context.Context, run *Run) error {
	stages, err := json.Marshal(run.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	err = repository.ExecExpectOne(ctx, r.db, `
		UPDATE pipeline_runs
		SET status = $2, stages = $3, error = $4, finished_at = $5
		WHERE id = $1`,
		run.ID, run.Status, stages, run.Error, run.FinishedAt,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Run], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("WebsiteID", filters.WebsiteID).
		WhereEquals("Status", filters.Status)

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	pageSQL, pageArgs := page.Apply(qb)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanRun)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Run, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)
	run, err := repository.QueryOne(ctx, r.db, q, args, scanRun)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &run, nil
}

func (r *repo) Latest(ctx context.Context) ([]Run, error) {
	q := fmt.Sprintf(`
		SELECT DISTINCT ON (r.website_id) %s
		FROM %s
		ORDER BY r.website_id, r.started_at DESC`,
		projection.Columns(), projection.From())

	items, err := repository.QueryMany(ctx, r.db, q, nil, scanRun)
	if err != nil {
		return nil, fmt.Errorf("query latest runs: %w", err)
	}
	return items, nil
}
