package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/internal/websites"
	"github.com/JaimeStill/lexis/pkg/storage"
)

const contentTypePDF = "application/pdf"

// plaintext converts indexed documents that lack plaintext and writes the
// text, plus the page count of PDFs, back to the index. The sync stage
// carries both into the relational store.
func (s *stages) plaintext(ctx context.Context, site websites.Website) (Tally, error) {
	logger := s.stageLogger(StagePlaintext, site)

	cur := s.rt.Index.Scan(ctx, site.Name, index.Missing("plaintext"))
	docs := slices.Collect(cur.All())
	if err := cur.Err(); err != nil {
		return Tally{}, fmt.Errorf("scan index: %w", err)
	}

	tally, err := each(ctx, logger, s.rt.Settings.Workers, docs,
		func(d index.Document) string { return d.ID },
		func(ctx context.Context, doc index.Document) error {
			fields, err := s.convert(ctx, doc)
			if err != nil {
				return err
			}
			if err := s.rt.Index.Update(ctx, doc.ID, fields); err != nil {
				return fmt.Errorf("update index %s: %w", doc.ID, err)
			}
			return nil
		},
	)
	if err != nil {
		return tally, err
	}

	if tally.Processed > 0 {
		if err := s.rt.Index.Commit(ctx); err != nil {
			return tally, fmt.Errorf("commit index: %w", err)
		}
	}
	return tally, nil
}

func (s *stages) convert(ctx context.Context, doc index.Document) (index.Fields, error) {
	if isPDF(doc.ContentType) {
		data, err := s.source(ctx, doc.ID, "pdf")
		if err != nil {
			return nil, err
		}

		pages, err := api.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPDF, doc.ID, err)
		}

		text, err := s.rt.Services.Convert(ctx, data, contentTypePDF)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", doc.ID, err)
		}
		return index.Fields{"plaintext": text, "page_count": pages}, nil
	}

	body, contentType := markup(doc)
	if body == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, doc.ID)
	}

	text, err := s.rt.Services.Convert(ctx, []byte(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", doc.ID, err)
	}
	return index.Fields{"plaintext": text}, nil
}

func (s *stages) source(ctx context.Context, id, ext string) ([]byte, error) {
	key := SourceKey(id, ext)
	rc, err := s.rt.Blobs.Download(ctx, storage.BucketCrawlerItems, key)
	if err != nil {
		return nil, fmt.Errorf("download source %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", key, err)
	}
	return data, nil
}

// markup picks the richest text payload of an index document: its HTML
// when present, else its raw content.
func markup(doc index.Document) (string, string) {
	if doc.ContentHTML != nil && *doc.ContentHTML != "" {
		return *doc.ContentHTML, "text/html"
	}
	if doc.Content != nil && *doc.Content != "" {
		contentType := "text/plain"
		if doc.ContentType != nil && *doc.ContentType != "" {
			contentType = *doc.ContentType
		}
		return *doc.Content, contentType
	}
	return "", ""
}

func isPDF(contentType *string) bool {
	return contentType != nil && strings.HasPrefix(strings.ToLower(*contentType), contentTypePDF)
}
