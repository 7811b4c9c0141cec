package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/pagination"
	"github.com/JaimeStill/lexis/pkg/query"
	"github.com/JaimeStill/lexis/pkg/repository"
	"github.com/JaimeStill/lexis/pkg/storage"
)

// artifactBuckets hold objects named "{document_id}-{suffix}", either
// versioned artifacts or the crawler's raw source file.
var artifactBuckets = []string{
	storage.BucketArtifacts,
	storage.BucketObligationsHTML,
	storage.BucketCrawlerItems,
}

type repo struct {
	db         *sql.DB
	storage    storage.System
	index      IndexRemover
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a document repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	index IndexRemover,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		index:      index,
		logger:     logger.With("system", "documents"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Document], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Title", "URL")

	filters.Apply(qb)

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	pageSQL, pageArgs := page.Apply(qb)
	docs, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	result := pagination.NewPageResult(docs, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Document, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	d, err := repository.QueryOne(ctx, r.db, q, args, scanDocument)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &d, nil
}

func (r *repo) Content(ctx context.Context, id uuid.UUID) (*Content, error) {
	const q = `
		SELECT id, content_type, content, content_html, plaintext
		FROM documents
		WHERE id = $1`

	c, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanContent)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) SyncStates(ctx context.Context, websiteID uuid.UUID) ([]SyncState, error) {
	const q = `
		SELECT id, parent_id, title, url, date, status, language, content_type,
		       page_count, content_hash, score, updated_at, expired_at
		FROM documents
		WHERE website_id = $1
		ORDER BY id`

	states, err := repository.QueryMany(ctx, r.db, q, []any{websiteID}, scanSyncState)
	if err != nil {
		return nil, fmt.Errorf("query sync states: %w", err)
	}
	return states, nil
}

func (r *repo) Pending(ctx context.Context, websiteID uuid.UUID, need Need, version string) ([]uuid.UUID, error) {
	var q string
	args := []any{websiteID}

	switch need {
	case NeedScore:
		q = `
			SELECT id FROM documents
			WHERE website_id = $1 AND expired_at IS NULL
			  AND plaintext IS NOT NULL AND score IS NULL
			ORDER BY id`
	case NeedAnnotation:
		q = `
			SELECT id FROM documents
			WHERE website_id = $1 AND expired_at IS NULL
			  AND (plaintext IS NOT NULL OR content IS NOT NULL OR content_html IS NOT NULL)
			  AND (annotated_version IS DISTINCT FROM $2 OR annotated_at < updated_at)
			ORDER BY id`
		args = append(args, version)
	case NeedExport:
		q = `
			SELECT id FROM documents
			WHERE website_id = $1 AND expired_at IS NULL
			  AND annotated_version = $2
			ORDER BY id`
		args = append(args, version)
	default:
		return nil, fmt.Errorf("unknown need %d", need)
	}

	ids, err := repository.QueryMany(ctx, r.db, q, args, scanID)
	if err != nil {
		return nil, fmt.Errorf("query pending documents: %w", err)
	}
	return ids, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) error {
	cols, vals := columns(cmd.Fields)
	cols = append([]string{"id", "website_id"}, cols...)
	vals = append([]any{cmd.ID, cmd.WebsiteID}, vals...)

	q := fmt.Sprintf(
		"INSERT INTO documents (%s) VALUES (%s)",
		strings.Join(cols, ", "),
		placeholders(1, len(cols)),
	)

	err := repository.InTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, q, vals...)
		return err
	})
	if repository.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: document %s", ErrReference, cmd.ID)
	}
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) Update(ctx context.Context, id uuid.UUID, patch Fields, revive bool) error {
	cols, vals := columns(patch)

	sets := make([]string, 0, len(cols)+2)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+2))
	}
	sets = append(sets, "updated_at = now()")
	if revive {
		sets = append(sets, "expired_at = NULL")
	}

	q := fmt.Sprintf("UPDATE documents SET %s WHERE id = $1", strings.Join(sets, ", "))
	args := append([]any{id}, vals...)

	err := repository.InTx(ctx, r.db, func(tx *sql.Tx) error {
		return repository.ExecExpectOne(ctx, tx, q, args...)
	})
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) Expire(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := repository.ExecAffected(
		ctx, r.db,
		"UPDATE documents SET expired_at = $2 WHERE id = $1 AND expired_at IS NULL",
		id, at,
	)
	if err != nil {
		return fmt.Errorf("expire document %s: %w", id, err)
	}
	return nil
}

func (r *repo) SetScore(ctx context.Context, id uuid.UUID, score float64) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		"UPDATE documents SET score = $2 WHERE id = $1",
		id, score,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.Find(ctx, id); err != nil {
		return err
	}

	children, err := repository.QueryMany(
		ctx, r.db,
		"SELECT id FROM documents WHERE parent_id = $1",
		[]any{id}, scanID,
	)
	if err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}
	for _, child := range children {
		if err := r.Delete(ctx, child); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete attachment %s: %w", child, err)
		}
	}

	if err := r.index.Delete(ctx, id.String()); err != nil {
		return fmt.Errorf("delete index document: %w", err)
	}
	if err := r.deleteBlobs(ctx, id); err != nil {
		return err
	}

	err = repository.InTx(ctx, r.db, func(tx *sql.Tx) error {
		return repository.ExecExpectOne(ctx, tx, "DELETE FROM documents WHERE id = $1", id)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("document deleted", "id", id, "attachments", len(children))
	return nil
}

func (r *repo) deleteBlobs(ctx context.Context, id uuid.UUID) error {
	prefix := id.String() + "-"
	for _, bucket := range artifactBuckets {
		objects, err := r.storage.List(ctx, bucket, prefix)
		if err != nil {
			return fmt.Errorf("list %s artifacts: %w", bucket, err)
		}
		for _, obj := range objects {
			err := r.storage.Delete(ctx, bucket, obj.Key)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("delete %s/%s: %w", bucket, obj.Key, err)
			}
		}
	}
	return nil
}

func placeholders(start, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(p, ", ")
}
