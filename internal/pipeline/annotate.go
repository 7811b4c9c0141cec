package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/artifacts"
	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/websites"
)

// annotate runs documents not yet annotated by the current extractor
// version through extraction, writes the versioned artifact, and persists
// the annotation graph. The artifact is written first so a failed persist
// is retried against the same snapshot.
func (s *stages) annotate(ctx context.Context, site websites.Website) (Tally, error) {
	logger := s.stageLogger(StageAnnotate, site)
	version := s.rt.Settings.ExtractorVersion

	ids, err := s.rt.Documents.Pending(ctx, site.ID, documents.NeedAnnotation, version)
	if err != nil {
		return Tally{}, fmt.Errorf("pending documents: %w", err)
	}

	return each(ctx, logger, s.rt.Settings.Workers, ids, uuid.UUID.String,
		func(ctx context.Context, id uuid.UUID) error {
			content, err := s.rt.Documents.Content(ctx, id)
			if err != nil {
				return fmt.Errorf("load content: %w", err)
			}

			in, err := extractInput(content)
			if err != nil {
				return err
			}

			res, err := s.rt.Extractor.Extract(ctx, in)
			if err != nil {
				return err
			}

			snap := artifacts.NewSnapshot(id, version, res, time.Now())
			if _, err := s.rt.Artifacts.Save(ctx, snap); err != nil {
				return fmt.Errorf("save artifact: %w", err)
			}

			summary, err := s.rt.Resolver.Persist(ctx, id, res)
			if err != nil {
				return fmt.Errorf("persist annotations: %w", err)
			}

			logger.Info("document annotated",
				"document_id", id,
				"concepts", summary.Concepts,
				"defined", summary.Defined,
				"occurrences", summary.Occurrences,
				"links", summary.Links,
				"obligations", summary.Obligations,
				"skipped_terms", summary.Skipped,
			)
			return nil
		},
	)
}

// extractInput prefers stored plaintext. Without it the raw payload is
// handed to the extractor for conversion.
func extractInput(c *documents.Content) (annotation.Input, error) {
	in := annotation.Input{DocumentID: c.ID.String()}

	switch {
	case c.Plaintext != nil && *c.Plaintext != "":
		in.Plaintext = *c.Plaintext
	case c.ContentHTML != nil && *c.ContentHTML != "":
		in.Content = []byte(*c.ContentHTML)
		in.ContentType = "text/html"
	case c.Content != nil && *c.Content != "":
		in.Content = []byte(*c.Content)
		in.ContentType = "text/plain"
		if c.ContentType != nil && *c.ContentType != "" {
			in.ContentType = *c.ContentType
		}
	default:
		return in, fmt.Errorf("%w: %s", ErrNoContent, c.ID)
	}
	return in, nil
}
