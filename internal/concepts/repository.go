package concepts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/pkg/pagination"
	"github.com/JaimeStill/lexis/pkg/query"
	"github.com/JaimeStill/lexis/pkg/repository"
)

// Obligation is a stored reporting obligation.
type Obligation struct {
	ID               uuid.UUID       `json:"id"`
	DocumentID       uuid.UUID       `json:"document_id"`
	Span             annotation.Span `json:"span"`
	Text             string          `json:"text"`
	Score            float64         `json:"score"`
	ExtractorVersion string          `json:"extractor_version"`
}

// Filters narrows concept listings.
type Filters struct {
	ExtractorVersion *string `json:"extractor_version,omitempty"`
	Name             *string `json:"name,omitempty"`
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if v := values.Get("extractor_version"); v != "" {
		f.ExtractorVersion = &v
	}
	if n := values.Get("name"); n != "" {
		f.Name = &n
	}
	return f
}

// System defines the public contract for concept operations.
type System interface {
	Store
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Concept], error)
	Find(ctx context.Context, id uuid.UUID) (*Concept, error)
	// Graph returns the concepts and co-definition links of a version.
	Graph(ctx context.Context, version string) ([]Concept, []Link, error)
	Obligations(ctx context.Context, documentID uuid.UUID, version string) ([]Obligation, error)
	Acceptance(ctx context.Context, e Entity) ([]AcceptanceState, error)
	// SetVerdict records a user's verdict, replacing any earlier one.
	SetVerdict(ctx context.Context, v UserVerdict) (*AcceptanceState, error)
}

var projection = query.
	NewProjectionMap("public", "concepts", "c").
	Project("id", "ID").
	Project("name", "Name").
	Project("normalized_name", "NormalizedName").
	Project("lemma", "Lemma").
	Project("definition", "Definition").
	Project("extractor_version", "ExtractorVersion").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

const conceptColumns = "id, name, normalized_name, lemma, definition, extractor_version, created_at, updated_at"

func scanConcept(s repository.Scanner) (Concept, error) {
	var c Concept
	err := s.Scan(&c.ID, &c.Name, &c.NormalizedName, &c.Lemma, &c.Definition, &c.ExtractorVersion, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanAcceptance(s repository.Scanner) (AcceptanceState, error) {
	var a AcceptanceState
	err := s.Scan(&a.ID, &a.ConceptID, &a.ObligationID, &a.UserID, &a.ProbabilityModel, &a.Verdict, &a.Probability, &a.UpdatedAt)
	return a, err
}

func scanObligation(s repository.Scanner) (Obligation, error) {
	var o Obligation
	err := s.Scan(&o.ID, &o.DocumentID, &o.Span.Begin, &o.Span.End, &o.Text, &o.Score, &o.ExtractorVersion)
	return o, err
}

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a concept repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "concepts"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) InTx(ctx context.Context, fn func(Tx) error) error {
	return repository.InTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Concept], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, query.SortField{Field: "NormalizedName"}).
		WhereSearch(page.Search, "Name", "Definition").
		WhereEquals("ExtractorVersion", filters.ExtractorVersion).
		WhereContains("Name", filters.Name)

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count concepts: %w", err)
	}

	pageSQL, pageArgs := page.Apply(qb)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanConcept)
	if err != nil {
		return nil, fmt.Errorf("query concepts: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Concept, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)
	c, err := repository.QueryOne(ctx, r.db, q, args, scanConcept)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) Graph(ctx context.Context, version string) ([]Concept, []Link, error) {
	q, args := query.NewBuilder(projection).WhereEquals("ExtractorVersion", version).Build()
	nodes, err := repository.QueryMany(ctx, r.db, q, args, scanConcept)
	if err != nil {
		return nil, nil, fmt.Errorf("query concepts: %w", err)
	}

	const linksSQL = `
		SELECT l.concept_a, l.concept_b
		FROM concept_links l
		JOIN concepts a ON a.id = l.concept_a
		WHERE a.extractor_version = $1`
	edges, err := repository.QueryMany(ctx, r.db, linksSQL, []any{version}, func(s repository.Scanner) (Link, error) {
		var l Link
		err := s.Scan(&l.A, &l.B)
		return l, err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("query links: %w", err)
	}
	return nodes, edges, nil
}

func (r *repo) Obligations(ctx context.Context, documentID uuid.UUID, version string) ([]Obligation, error) {
	const q = `
		SELECT id, document_id, begin_pos, end_pos, text, score, extractor_version
		FROM obligations
		WHERE document_id = $1 AND extractor_version = $2
		ORDER BY begin_pos, end_pos`
	obs, err := repository.QueryMany(ctx, r.db, q, []any{documentID, version}, scanObligation)
	if err != nil {
		return nil, fmt.Errorf("query obligations: %w", err)
	}
	return obs, nil
}

func (r *repo) Acceptance(ctx context.Context, e Entity) ([]AcceptanceState, error) {
	const q = `
		SELECT id, concept_id, obligation_id, user_id, probability_model, verdict, probability, updated_at
		FROM acceptance_states
		WHERE concept_id IS NOT DISTINCT FROM $1 AND obligation_id IS NOT DISTINCT FROM $2
		ORDER BY updated_at DESC`
	states, err := repository.QueryMany(ctx, r.db, q, []any{e.ConceptID, e.ObligationID}, scanAcceptance)
	if err != nil {
		return nil, fmt.Errorf("query acceptance: %w", err)
	}
	return states, nil
}

func (r *repo) SetVerdict(ctx context.Context, v UserVerdict) (*AcceptanceState, error) {
	if !v.Verdict.Valid() || v.UserID == "" || (v.ConceptID == nil) == (v.ObligationID == nil) {
		return nil, ErrInvalidVerdict
	}

	const q = `
		INSERT INTO acceptance_states (concept_id, obligation_id, user_id, verdict)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (concept_id, obligation_id, user_id, probability_model)
		DO UPDATE SET verdict = EXCLUDED.verdict, updated_at = now()
		RETURNING id, concept_id, obligation_id, user_id, probability_model, verdict, probability, updated_at`

	a, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (AcceptanceState, error) {
		return repository.QueryOne(ctx, tx, q, []any{v.ConceptID, v.ObligationID, v.UserID, v.Verdict}, scanAcceptance)
	})
	if repository.IsForeignKeyViolation(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("verdict recorded", "id", a.ID, "user_id", v.UserID, "verdict", v.Verdict)
	return &a, nil
}

// pgTx implements Tx over one database transaction.
type pgTx struct {
	tx *sql.Tx
}

// created reports inserts: xmax is zero for a row version that was not
// produced by the DO UPDATE branch of an upsert.
const created = "(xmax = 0)"

func (t *pgTx) UpsertConcept(ctx context.Context, in ConceptInput) (Concept, bool, error) {
	q := `
		INSERT INTO concepts (name, normalized_name, lemma, definition, extractor_version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (normalized_name, extractor_version)
		DO UPDATE SET lemma = EXCLUDED.lemma, definition = EXCLUDED.definition, updated_at = now()
		RETURNING ` + conceptColumns + `, ` + created

	var c Concept
	var inserted bool
	err := t.tx.QueryRowContext(ctx, q, in.Name, in.NormalizedName, in.Lemma, in.Definition, in.ExtractorVersion).
		Scan(&c.ID, &c.Name, &c.NormalizedName, &c.Lemma, &c.Definition, &c.ExtractorVersion, &c.CreatedAt, &c.UpdatedAt, &inserted)
	if err != nil {
		return Concept{}, false, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return c, inserted, nil
}

func (t *pgTx) FindConcept(ctx context.Context, normalizedName, version string) (*Concept, error) {
	q := "SELECT " + conceptColumns + " FROM concepts WHERE normalized_name = $1 AND extractor_version = $2"
	c, err := repository.QueryOne(ctx, t.tx, q, []any{normalizedName, version}, scanConcept)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (t *pgTx) UpsertDefined(ctx context.Context, d Defined) (uuid.UUID, bool, error) {
	q := `
		INSERT INTO concept_defined (concept_id, document_id, begin_pos, end_pos, def_begin, def_end, definition, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (concept_id, document_id)
		DO UPDATE SET begin_pos = EXCLUDED.begin_pos, end_pos = EXCLUDED.end_pos,
		              def_begin = EXCLUDED.def_begin, def_end = EXCLUDED.def_end,
		              definition = EXCLUDED.definition, score = EXCLUDED.score, updated_at = now()
		RETURNING id, ` + created
	return t.upsertID(ctx, q, d.ConceptID, d.DocumentID, d.Span.Begin, d.Span.End, d.Context.Begin, d.Context.End, d.Definition, d.Score)
}

func (t *pgTx) UpsertOccurrence(ctx context.Context, o Occurrence) (uuid.UUID, bool, error) {
	q := `
		INSERT INTO concept_occurs (concept_id, document_id, begin_pos, end_pos, score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (concept_id, document_id)
		DO UPDATE SET begin_pos = EXCLUDED.begin_pos, end_pos = EXCLUDED.end_pos,
		              score = EXCLUDED.score, updated_at = now()
		RETURNING id, ` + created
	return t.upsertID(ctx, q, o.ConceptID, o.DocumentID, o.Span.Begin, o.Span.End, o.Score)
}

func (t *pgTx) upsertID(ctx context.Context, q string, args ...any) (uuid.UUID, bool, error) {
	var id uuid.UUID
	var inserted bool
	if err := t.tx.QueryRowContext(ctx, q, args...).Scan(&id, &inserted); err != nil {
		return uuid.Nil, false, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return id, inserted, nil
}

func (t *pgTx) Link(ctx context.Context, l Link) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO concept_links (concept_a, concept_b) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		l.A, l.B,
	)
	return err
}

func (t *pgTx) Worklog(ctx context.Context, e WorklogEntry) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO annotation_worklog (defined_id, occurs_id, actor, action) VALUES ($1, $2, $3, $4)",
		e.DefinedID, e.OccursID, e.Actor, e.Action,
	)
	return err
}

func (t *pgTx) Accept(ctx context.Context, a Acceptance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO acceptance_states (concept_id, obligation_id, probability_model, probability)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (concept_id, obligation_id, user_id, probability_model)
		DO UPDATE SET probability = EXCLUDED.probability, updated_at = now()`,
		a.ConceptID, a.ObligationID, a.Model, a.Probability,
	)
	return err
}

func (t *pgTx) UpsertObligation(ctx context.Context, o ObligationInput) (uuid.UUID, error) {
	q := `
		INSERT INTO obligations (document_id, begin_pos, end_pos, text, score, extractor_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, begin_pos, end_pos, extractor_version)
		DO UPDATE SET text = EXCLUDED.text, score = EXCLUDED.score, updated_at = now()
		RETURNING id, ` + created
	id, _, err := t.upsertID(ctx, q, o.DocumentID, o.Span.Begin, o.Span.End, o.Text, o.Score, o.ExtractorVersion)
	return id, err
}

func (t *pgTx) MarkAnnotated(ctx context.Context, documentID uuid.UUID, version string) error {
	return repository.ExecExpectOne(ctx, t.tx,
		"UPDATE documents SET annotated_version = $2, annotated_at = now() WHERE id = $1",
		documentID, version,
	)
}
