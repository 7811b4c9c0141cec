// Package docsync reconciles a website's documents between the search index
// and the relational store.
//
// Index documents and stored records are merge-joined by id. Index-only
// documents are created, documents on both sides receive a partial update of
// the fields that changed, and store-only records are soft-expired once they
// have gone unchanged for longer than the staleness window. Every write is
// followed by a push of derived fields back to the index.
package docsync

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/pkg/align"
)

// Store is the relational side of the reconciliation.
type Store interface {
	Create(ctx context.Context, cmd documents.CreateCommand) error
	Update(ctx context.Context, id uuid.UUID, patch documents.Fields, revive bool) error
	Expire(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Index receives derived fields after each relational write.
type Index interface {
	Update(ctx context.Context, id string, fields index.Fields) error
}

// Report counts the outcome of one reconciliation.
type Report struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Expired   int `json:"expired"`
	Retained  int `json:"retained"`
	Failed    int `json:"failed"`
}

// Processed counts documents that caused a relational write.
func (r Report) Processed() int {
	return r.Created + r.Updated + r.Expired
}

// Skipped counts documents left untouched: unchanged, or missing from the
// index but still inside the staleness window.
func (r Report) Skipped() int {
	return r.Unchanged + r.Retained
}

// Options tune a Sync.
type Options struct {
	// Staleness is how long a record missing from the index must have gone
	// without an update before it is expired.
	Staleness time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Sync reconciles documents for one website at a time.
type Sync struct {
	store     Store
	index     Index
	staleness time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Sync.
func New(store Store, idx Index, opts Options, logger *slog.Logger) *Sync {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sync{
		store:     store,
		index:     idx,
		staleness: opts.Staleness,
		now:       now,
		logger:    logger.With("system", "docsync"),
	}
}

// Reconcile aligns docs, which must be sorted by id, with states, the
// website's stored records sorted by id. A failure on one document is
// logged and counted; only a broken precondition (unsorted input) or a
// cancelled context ends the pass early, returning the report so far.
//
// Expiry waits until the whole index sequence has been merged: a store id
// is only known to be missing from the index once every index id has been
// seen in order, so an early return never expires anything.
func (s *Sync) Reconcile(
	ctx context.Context,
	websiteID uuid.UUID,
	docs iter.Seq[index.Document],
	states []documents.SyncState,
) (Report, error) {
	var report Report
	byKey := make(map[string]documents.SyncState, len(states))
	for _, st := range states {
		byKey[st.ID.String()] = st
	}

	var (
		attachments []index.Document
		missing     []documents.SyncState
	)

	for pair, err := range align.Join(docs, Key, storeKeys(states)) {
		if err != nil {
			return report, fmt.Errorf("align website %s: %w", websiteID, err)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		switch pair.Action() {
		case align.Create:
			if pair.Item.ParentID != nil {
				attachments = append(attachments, pair.Item)
				continue
			}
			s.create(ctx, websiteID, pair.Item, &report)
		case align.Update:
			s.update(ctx, pair.Item, byKey[pair.StoreKey], &report)
		case align.Remove:
			missing = append(missing, byKey[pair.StoreKey])
		}
	}

	for _, state := range missing {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.expire(ctx, state, &report)
	}

	for _, doc := range attachments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.create(ctx, websiteID, doc, &report)
	}

	s.logger.Info("website reconciled",
		"website_id", websiteID,
		"created", report.Created,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"expired", report.Expired,
		"retained", report.Retained,
		"failed", report.Failed,
	)
	return report, nil
}

// Key is the join key of an index document. Stored ids render as lowercase
// UUIDs. An index mixing upper and lower case ids no longer sorts the same
// way once lowercased and is rejected as unsorted.
func Key(d index.Document) string {
	return strings.ToLower(d.ID)
}

func storeKeys(states []documents.SyncState) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, st := range states {
			if !yield(st.ID.String()) {
				return
			}
		}
	}
}

func (s *Sync) create(ctx context.Context, websiteID uuid.UUID, doc index.Document, report *Report) {
	id, fields, err := FieldsFrom(doc)
	if err != nil {
		s.fail(report, doc.ID, "create", err)
		return
	}

	if cut := fields.Truncate(); len(cut) > 0 {
		s.logger.Warn("fields truncated", "document_id", id, "fields", cut)
	}

	cmd := documents.CreateCommand{ID: id, WebsiteID: websiteID, Fields: fields}
	if err := s.store.Create(ctx, cmd); err != nil {
		s.fail(report, doc.ID, "create", err)
		return
	}

	if err := s.push(ctx, doc.ID, nil); err != nil {
		s.fail(report, doc.ID, "push", err)
		return
	}
	report.Created++
}

func (s *Sync) update(ctx context.Context, doc index.Document, state documents.SyncState, report *Report) {
	_, fields, err := FieldsFrom(doc)
	if err != nil {
		s.fail(report, doc.ID, "update", err)
		return
	}

	if cut := fields.Truncate(); len(cut) > 0 {
		s.logger.Warn("fields truncated", "document_id", state.ID, "fields", cut)
	}

	patch := fields.Diff(state)
	revive := state.ExpiredAt != nil
	if patch.Empty() && !revive {
		report.Unchanged++
		return
	}

	if err := s.store.Update(ctx, state.ID, patch, revive); err != nil {
		s.fail(report, doc.ID, "update", err)
		return
	}

	if err := s.push(ctx, doc.ID, state.Score); err != nil {
		s.fail(report, doc.ID, "push", err)
		return
	}
	report.Updated++
}

func (s *Sync) expire(ctx context.Context, state documents.SyncState, report *Report) {
	if state.ExpiredAt != nil {
		report.Unchanged++
		return
	}

	now := s.now()
	if now.Sub(state.UpdatedAt) <= s.staleness {
		report.Retained++
		return
	}

	if err := s.store.Expire(ctx, state.ID, now); err != nil {
		s.fail(report, state.ID.String(), "expire", err)
		return
	}
	s.logger.Info("document expired", "document_id", state.ID, "last_updated", state.UpdatedAt)
	report.Expired++
}

// push writes the relational-side derived fields back to the index.
func (s *Sync) push(ctx context.Context, id string, score *float64) error {
	fields := index.Fields{"synced_at": s.now().UTC().Format(time.RFC3339)}
	if score != nil {
		fields["score"] = *score
	}
	return s.index.Update(ctx, id, fields)
}

func (s *Sync) fail(report *Report, id, op string, err error) {
	report.Failed++
	s.logger.Error("document sync failed",
		"document_id", id,
		"stage", "sync",
		"op", op,
		"error", err,
	)
}

// FieldsFrom converts an index document to relational fields. Fields the
// index omits stay absent.
func FieldsFrom(doc index.Document) (uuid.UUID, documents.Fields, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return uuid.Nil, documents.Fields{}, fmt.Errorf("%w: %q", documents.ErrInvalidID, doc.ID)
	}

	f := documents.Fields{
		Title:       doc.Title,
		URL:         doc.URL,
		Date:        doc.Date,
		Status:      doc.Status,
		Language:    doc.Language,
		ContentType: doc.ContentType,
		Content:     doc.Content,
		ContentHTML: doc.ContentHTML,
		Plaintext:   doc.Plaintext,
		PageCount:   doc.PageCount,
		ContentHash: documents.HashContent(doc.Content, doc.ContentHTML, doc.Plaintext),
	}

	if doc.ParentID != nil {
		parent, err := uuid.Parse(*doc.ParentID)
		if err != nil {
			return uuid.Nil, documents.Fields{}, fmt.Errorf("%w: parent %q", documents.ErrInvalidID, *doc.ParentID)
		}
		f.ParentID = &parent
	}

	return id, f, nil
}
