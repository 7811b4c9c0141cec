package websites

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/query"
	"github.com/JaimeStill/lexis/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "websites", "w").
	Project("id", "ID").
	Project("name", "Name").
	Project("url", "URL").
	Project("schedule", "Schedule").
	Project("enabled", "Enabled").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

func scanWebsite(s repository.Scanner) (Website, error) {
	var w Website
	err := s.Scan(&w.ID, &w.Name, &w.URL, &w.Schedule, &w.Enabled, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a website repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{db: db, logger: logger.With("system", "websites")}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) List(ctx context.Context) ([]Website, error) {
	q, args := query.NewBuilder(projection, query.SortField{Field: "Name"}).Build()
	sites, err := repository.QueryMany(ctx, r.db, q, args, scanWebsite)
	if err != nil {
		return nil, fmt.Errorf("query websites: %w", err)
	}
	return sites, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Website, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)
	w, err := repository.QueryOne(ctx, r.db, q, args, scanWebsite)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &w, nil
}

func (r *repo) FindByName(ctx context.Context, name string) (*Website, error) {
	q, args := query.NewBuilder(projection).BuildSingle("Name", name)
	w, err := repository.QueryOne(ctx, r.db, q, args, scanWebsite)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &w, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Website, error) {
	const q = `
		INSERT INTO websites (name, url, schedule)
		VALUES ($1, $2, $3)
		RETURNING id, name, url, schedule, enabled, created_at, updated_at`

	w, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Website, error) {
		return repository.QueryOne(ctx, tx, q, []any{cmd.Name, cmd.URL, cmd.Schedule}, scanWebsite)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("website created", "id", w.ID, "name", w.Name)
	return &w, nil
}
