package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/internal/nlp"
	"github.com/JaimeStill/lexis/internal/websites"
	"github.com/JaimeStill/lexis/pkg/storage"
)

// SourceKey names the raw file a crawler stored for a document in the
// crawler-items bucket.
func SourceKey(documentID, ext string) string {
	return fmt.Sprintf("%s-source.%s", strings.ToLower(documentID), ext)
}

// ItemPrefix is the crawler-items prefix holding a website's pending items.
func ItemPrefix(website string) string {
	return website + "/"
}

// scrape asks the crawler to refresh the website. Without a crawler
// endpoint the stage is a no-op.
func (s *stages) scrape(ctx context.Context, site websites.Website) (Tally, error) {
	logger := s.stageLogger(StageScrape, site)

	job, err := s.rt.Services.Crawl(ctx, site.Name, site.URL)
	if errors.Is(err, nlp.ErrNotConfigured) {
		logger.Info("crawler not configured, skipping scrape")
		return Tally{Skipped: 1}, nil
	}
	if err != nil {
		return Tally{}, fmt.Errorf("crawl %s: %w", site.Name, err)
	}

	logger.Info("crawl requested", "job_id", job)
	return Tally{Processed: 1}, nil
}

// ingest pushes the crawler's pending items for the website into the
// index. Each item is a JSON index document; it is removed from the bucket
// once indexed.
func (s *stages) ingest(ctx context.Context, site websites.Website) (Tally, error) {
	logger := s.stageLogger(StageIndex, site)

	objects, err := s.rt.Blobs.List(ctx, storage.BucketCrawlerItems, ItemPrefix(site.Name))
	if err != nil {
		return Tally{}, fmt.Errorf("list crawler items: %w", err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if path.Ext(obj.Key) == ".json" {
			keys = append(keys, obj.Key)
		}
	}

	tally, err := each(ctx, logger, s.rt.Settings.Workers, keys,
		func(k string) string { return k },
		func(ctx context.Context, key string) error {
			doc, err := s.readItem(ctx, key)
			if err != nil {
				return err
			}
			doc.Website = site.Name

			if err := s.rt.Index.Add(ctx, doc); err != nil {
				return fmt.Errorf("index %s: %w", doc.ID, err)
			}
			if err := s.rt.Blobs.Delete(ctx, storage.BucketCrawlerItems, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("consume %s: %w", key, err)
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

	logger.Info("crawler items indexed", "indexed", tally.Processed, "failed", tally.Failed)
	return tally, nil
}

func (s *stages) readItem(ctx context.Context, key string) (index.Document, error) {
	rc, err := s.rt.Blobs.Download(ctx, storage.BucketCrawlerItems, key)
	if err != nil {
		return index.Document{}, fmt.Errorf("download %s: %w", key, err)
	}
	defer rc.Close()

	var doc index.Document
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return index.Document{}, fmt.Errorf("%w: %s: %v", ErrMalformedItem, key, err)
	}
	if doc.ID == "" {
		return index.Document{}, fmt.Errorf("%w: %s: missing id", ErrMalformedItem, key)
	}
	return doc, nil
}
