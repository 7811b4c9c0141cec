package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/websites"
)

// export renders obligation-highlighted HTML for every document annotated
// by the current extractor version, then projects the version's concept
// graph when a graph store is configured.
func (s *stages) export(ctx context.Context, site websites.Website) (Tally, error) {
	logger := s.stageLogger(StageExport, site)
	version := s.rt.Settings.ExtractorVersion

	ids, err := s.rt.Documents.Pending(ctx, site.ID, documents.NeedExport, version)
	if err != nil {
		return Tally{}, fmt.Errorf("pending documents: %w", err)
	}

	tally, err := each(ctx, logger, s.rt.Settings.Workers, ids, uuid.UUID.String,
		func(ctx context.Context, id uuid.UUID) error {
			doc, err := s.rt.Documents.Find(ctx, id)
			if err != nil {
				return fmt.Errorf("load document: %w", err)
			}

			snap, err := s.rt.Artifacts.Load(ctx, id, version)
			if err != nil {
				return fmt.Errorf("load artifact: %w", err)
			}

			obligations, err := s.rt.Concepts.Obligations(ctx, id, version)
			if err != nil {
				return fmt.Errorf("load obligations: %w", err)
			}
			spans := make([]annotation.Span, len(obligations))
			for i, o := range obligations {
				spans[i] = o.Span
			}

			title := id.String()
			if doc.Title != nil && *doc.Title != "" {
				title = *doc.Title
			}
			return s.rt.Artifacts.Export(ctx, id, version, title, snap.Text, spans)
		},
	)
	if err != nil {
		return tally, err
	}

	if s.rt.Graph == nil {
		return tally, nil
	}

	nodes, links, err := s.rt.Concepts.Graph(ctx, version)
	if err != nil {
		return tally, fmt.Errorf("load concept graph: %w", err)
	}
	if err := s.rt.Graph.Project(ctx, version, nodes, links); err != nil {
		return tally, fmt.Errorf("project concept graph: %w", err)
	}

	logger.Info("concept graph projected", "concepts", len(nodes), "links", len(links))
	return tally, nil
}
