package concepts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/pkg/formatting"
)

// Tx is the set of writes that persist one document's annotations. All of
// them commit or roll back together.
type Tx interface {
	// UpsertConcept inserts a concept or refreshes its lemma and definition.
	// The bool reports whether the concept was created.
	UpsertConcept(ctx context.Context, in ConceptInput) (Concept, bool, error)
	// FindConcept looks a concept up by normalized name and version.
	FindConcept(ctx context.Context, normalizedName, version string) (*Concept, error)
	UpsertDefined(ctx context.Context, d Defined) (uuid.UUID, bool, error)
	UpsertOccurrence(ctx context.Context, o Occurrence) (uuid.UUID, bool, error)
	Link(ctx context.Context, l Link) error
	Worklog(ctx context.Context, e WorklogEntry) error
	Accept(ctx context.Context, a Acceptance) error
	UpsertObligation(ctx context.Context, o ObligationInput) (uuid.UUID, error)
	MarkAnnotated(ctx context.Context, documentID uuid.UUID, version string) error
}

// Store runs fn inside a transaction.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Options configure a Resolver.
type Options struct {
	ExtractorVersion string
	// MaxNameLength caps concept names in runes. Zero means MaxNameLength.
	MaxNameLength int
	// Actor is recorded in the worklog for records the pipeline creates.
	Actor string
}

// Summary counts what Persist wrote for one document.
type Summary struct {
	Concepts    int `json:"concepts"`
	Created     int `json:"created"`
	Defined     int `json:"defined"`
	Occurrences int `json:"occurrences"`
	Links       int `json:"links"`
	Obligations int `json:"obligations"`
	Skipped     int `json:"skipped"`
}

// Resolver maps extracted terms to concepts and persists a document's
// annotation graph.
type Resolver struct {
	store   Store
	version string
	maxName int
	actor   string
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store Store, opts Options, logger *slog.Logger) *Resolver {
	maxName := opts.MaxNameLength
	if maxName <= 0 {
		maxName = MaxNameLength
	}
	actor := opts.Actor
	if actor == "" {
		actor = "extractor"
	}
	return &Resolver{
		store:   store,
		version: opts.ExtractorVersion,
		maxName: maxName,
		actor:   actor,
		logger:  logger.With("system", "concepts"),
	}
}

// Version returns the extractor version concepts are scoped to.
func (r *Resolver) Version() string {
	return r.version
}

// Resolve returns the concept named by term under the resolver's extractor
// version, creating it on first sighting and otherwise refreshing its lemma
// and definition. Names over the cap are rejected with ErrNameTooLong and
// never truncated.
func (r *Resolver) Resolve(ctx context.Context, tx Tx, term annotation.Term, definition string) (Concept, bool, error) {
	name := strings.TrimSpace(term.Name)
	if utf8.RuneCountInString(name) > r.maxName {
		return Concept{}, false, fmt.Errorf("%w: %d runes", ErrNameTooLong, utf8.RuneCountInString(name))
	}
	normalized := formatting.NormalizeName(name)
	if normalized == "" {
		return Concept{}, false, ErrEmptyName
	}

	return tx.UpsertConcept(ctx, ConceptInput{
		Name:             name,
		NormalizedName:   normalized,
		Lemma:            term.Lemma,
		Definition:       definition,
		ExtractorVersion: r.version,
	})
}

// Persist writes res for documentID in one transaction: concepts and their
// definitions, co-definition links, occurrences of known concepts,
// obligations, automated acceptance states, and the document's annotated
// version. Terms rejected by policy are skipped; any store error rolls the
// whole document back.
func (r *Resolver) Persist(ctx context.Context, documentID uuid.UUID, res *annotation.Result) (Summary, error) {
	var sum Summary

	err := r.store.InTx(ctx, func(tx Tx) error {
		sum = Summary{}
		seen := map[uuid.UUID]bool{}

		for _, def := range res.Definitions {
			ids, err := r.define(ctx, tx, documentID, def, &sum)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if !seen[id] {
					seen[id] = true
					sum.Concepts++
				}
			}
			if err := r.link(ctx, tx, ids, &sum); err != nil {
				return err
			}
		}

		if err := r.occurrences(ctx, tx, documentID, res.Occurrences, &sum); err != nil {
			return err
		}

		for _, ob := range res.Obligations {
			id, err := tx.UpsertObligation(ctx, ObligationInput{
				DocumentID:       documentID,
				Span:             ob.Span,
				Text:             ob.Text,
				Score:            ob.Score,
				ExtractorVersion: r.version,
			})
			if err != nil {
				return fmt.Errorf("upsert obligation %s: %w", ob.Span, err)
			}
			if err := tx.Accept(ctx, Acceptance{
				Entity:      Entity{ObligationID: &id},
				Model:       r.version,
				Probability: ob.Score,
			}); err != nil {
				return fmt.Errorf("accept obligation %s: %w", id, err)
			}
			sum.Obligations++
		}

		return tx.MarkAnnotated(ctx, documentID, r.version)
	})
	if err != nil {
		return Summary{}, err
	}

	res.State = annotation.StatePersisted
	r.logger.Info("annotations persisted",
		"document_id", documentID,
		"concepts", sum.Concepts,
		"created", sum.Created,
		"links", sum.Links,
		"skipped", sum.Skipped,
	)
	return sum, nil
}

// define resolves every term of def and records where each is defined.
// It returns the resolved concept ids in span order.
func (r *Resolver) define(ctx context.Context, tx Tx, documentID uuid.UUID, def annotation.Definition, sum *Summary) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, term := range def.Terms {
		if !def.Span.Contains(term.Span) {
			return nil, fmt.Errorf("%w: term %s outside definition %s", annotation.ErrInvalidSpan, term.Span, def.Span)
		}

		c, created, err := r.Resolve(ctx, tx, term, def.Text)
		if err != nil {
			if isPolicy(err) {
				sum.Skipped++
				r.logger.Warn("term skipped",
					"document_id", documentID,
					"span", term.Span.String(),
					"error", err,
				)
				continue
			}
			return nil, fmt.Errorf("resolve %q: %w", term.Name, err)
		}
		if created {
			sum.Created++
		}

		definedID, inserted, err := tx.UpsertDefined(ctx, Defined{
			ConceptID:  c.ID,
			DocumentID: documentID,
			Span:       term.Span,
			Context:    def.Span,
			Definition: def.Text,
			Score:      def.Score,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert definition of %s: %w", c.ID, err)
		}
		sum.Defined++

		if inserted {
			if err := tx.Worklog(ctx, WorklogEntry{DefinedID: &definedID, Actor: r.actor, Action: "created"}); err != nil {
				return nil, fmt.Errorf("worklog definition %s: %w", definedID, err)
			}
		}
		if err := tx.Accept(ctx, Acceptance{
			Entity:      Entity{ConceptID: &c.ID},
			Model:       r.version,
			Probability: term.Score,
		}); err != nil {
			return nil, fmt.Errorf("accept concept %s: %w", c.ID, err)
		}

		ids = append(ids, c.ID)
	}
	return ids, nil
}

// link adds one co-definition edge per unordered pair of distinct concepts.
func (r *Resolver) link(ctx context.Context, tx Tx, ids []uuid.UUID, sum *Summary) error {
	done := map[Link]bool{}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			l, ok := NewLink(ids[i], ids[j])
			if !ok || done[l] {
				continue
			}
			if err := tx.Link(ctx, l); err != nil {
				return fmt.Errorf("link %s-%s: %w", l.A, l.B, err)
			}
			done[l] = true
			sum.Links++
		}
	}
	return nil
}

// occurrences records the first use of each known concept in the document.
// Terms naming no concept of this version are ignored.
func (r *Resolver) occurrences(ctx context.Context, tx Tx, documentID uuid.UUID, terms []annotation.Term, sum *Summary) error {
	seen := map[uuid.UUID]bool{}
	for _, term := range terms {
		normalized := formatting.NormalizeName(term.Name)
		if normalized == "" || utf8.RuneCountInString(strings.TrimSpace(term.Name)) > r.maxName {
			continue
		}

		c, err := tx.FindConcept(ctx, normalized, r.version)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("find concept %q: %w", normalized, err)
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		occursID, inserted, err := tx.UpsertOccurrence(ctx, Occurrence{
			ConceptID:  c.ID,
			DocumentID: documentID,
			Span:       term.Span,
			Score:      term.Score,
		})
		if err != nil {
			return fmt.Errorf("upsert occurrence of %s: %w", c.ID, err)
		}
		if inserted {
			if err := tx.Worklog(ctx, WorklogEntry{OccursID: &occursID, Actor: r.actor, Action: "created"}); err != nil {
				return fmt.Errorf("worklog occurrence %s: %w", occursID, err)
			}
		}
		sum.Occurrences++
	}
	return nil
}
