package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/internal/websites"
)

// score classifies the relevance of documents that have plaintext but no
// score, storing the score and pushing it to the index.
func (s *stages) score(ctx context.Context, site websites.Website) (Tally, error) {
	logger := s.stageLogger(StageScore, site)

	ids, err := s.rt.Documents.Pending(ctx, site.ID, documents.NeedScore, "")
	if err != nil {
		return Tally{}, fmt.Errorf("pending documents: %w", err)
	}

	return each(ctx, logger, s.rt.Settings.Workers, ids, uuid.UUID.String,
		func(ctx context.Context, id uuid.UUID) error {
			content, err := s.rt.Documents.Content(ctx, id)
			if err != nil {
				return fmt.Errorf("load content: %w", err)
			}
			if content.Plaintext == nil || *content.Plaintext == "" {
				return fmt.Errorf("%w: %s", ErrNoContent, id)
			}

			score, err := s.rt.Services.Classify(ctx, *content.Plaintext)
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}
			if err := s.rt.Documents.SetScore(ctx, id, score); err != nil {
				return fmt.Errorf("store score: %w", err)
			}
			if err := s.rt.Index.Update(ctx, id.String(), index.Fields{"score": score}); err != nil {
				return fmt.Errorf("push score: %w", err)
			}
			return nil
		},
	)
}
