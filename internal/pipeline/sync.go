package pipeline

import (
	"context"
	"fmt"

	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/internal/websites"
)

// sync reconciles the website's index documents with its stored records.
// A scan that breaks midway cancels the pass, so documents the cursor never
// reached are not mistaken for deletions.
func (s *stages) sync(ctx context.Context, site websites.Website) (Tally, error) {
	states, err := s.rt.Documents.SyncStates(ctx, site.ID)
	if err != nil {
		return Tally{}, fmt.Errorf("load stored documents: %w", err)
	}

	scanCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	cur := s.rt.Index.Scan(scanCtx, site.Name)
	docs := func(yield func(index.Document) bool) {
		for d := range cur.All() {
			if !yield(d) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			cancel(err)
		}
	}

	report, err := s.rt.Sync.Reconcile(scanCtx, site.ID, docs, states)
	tally := Tally{
		Processed: report.Processed(),
		Skipped:   report.Skipped(),
		Failed:    report.Failed,
	}
	if scanErr := cur.Err(); scanErr != nil {
		return tally, fmt.Errorf("scan index: %w", scanErr)
	}
	if err != nil {
		return tally, err
	}
	return tally, nil
}
