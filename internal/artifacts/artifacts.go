// Package artifacts stores versioned snapshots of a document's annotation
// graph and renders obligation-highlighted HTML exports.
//
// Objects are named "{document_id}-{extractor_version}.{ext}". Snapshots are
// written once per version and never overwritten; a later extractor version
// writes a new object beside the old one.
package artifacts

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/pkg/storage"
)

// Blobs is the subset of storage.System artifacts need.
type Blobs interface {
	Upload(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Create(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error
}

// Snapshot is the persisted form of an annotation result.
type Snapshot struct {
	DocumentID       uuid.UUID               `json:"document_id"`
	ExtractorVersion string                  `json:"extractor_version"`
	Text             string                  `json:"text"`
	Paragraphs       []annotation.Span       `json:"paragraphs"`
	Definitions      []annotation.Definition `json:"definitions"`
	Occurrences      []annotation.Term       `json:"occurrences"`
	Obligations      []annotation.Obligation `json:"obligations"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NewSnapshot captures res for documentID under version.
func NewSnapshot(documentID uuid.UUID, version string, res *annotation.Result, at time.Time) Snapshot {
	return Snapshot{
		DocumentID:       documentID,
		ExtractorVersion: version,
		Text:             res.Text.String(),
		Paragraphs:       res.Paragraphs,
		Definitions:      res.Definitions,
		Occurrences:      res.Occurrences,
		Obligations:      res.Obligations,
		CreatedAt:        at.UTC(),
	}
}

// Key names the object for a document, version, and extension.
func Key(documentID uuid.UUID, version, ext string) string {
	return fmt.Sprintf("%s-%s.%s", documentID, version, ext)
}

// Store reads and writes artifacts in blob storage.
type Store struct {
	blobs  Blobs
	logger *slog.Logger
}

// New creates a Store.
func New(blobs Blobs, logger *slog.Logger) *Store {
	return &Store{blobs: blobs, logger: logger.With("system", "artifacts")}
}

// Save writes snap as gzip-compressed JSON unless an artifact for the same
// document and version exists. It reports whether it wrote.
func (s *Store) Save(ctx context.Context, snap Snapshot) (bool, error) {
	key := Key(snap.DocumentID, snap.ExtractorVersion, "json.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return false, fmt.Errorf("encode artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return false, fmt.Errorf("compress artifact: %w", err)
	}

	err := s.blobs.Create(ctx, storage.BucketArtifacts, key, &buf, "application/gzip")
	if errors.Is(err, storage.ErrExists) {
		s.logger.Debug("artifact exists", "key", key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upload artifact %s: %w", key, err)
	}

	s.logger.Info("artifact written", "key", key)
	return true, nil
}

// Load reads the snapshot of a document at version.
func (s *Store) Load(ctx context.Context, documentID uuid.UUID, version string) (*Snapshot, error) {
	key := Key(documentID, version, "json.gz")

	rc, err := s.blobs.Download(ctx, storage.BucketArtifacts, key)
	if err != nil {
		return nil, fmt.Errorf("download artifact %s: %w", key, err)
	}
	defer rc.Close()

	zr, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("decompress artifact %s: %w", key, err)
	}
	defer zr.Close()

	var snap Snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return &snap, nil
}

// Export renders text with obligations highlighted and uploads it,
// replacing any earlier export of the same version.
func (s *Store) Export(ctx context.Context, documentID uuid.UUID, version, title, text string, obligations []annotation.Span) error {
	page, err := RenderHTML(title, text, obligations)
	if err != nil {
		return err
	}

	key := Key(documentID, version, "html")
	if err := s.blobs.Upload(ctx, storage.BucketObligationsHTML, key, bytes.NewReader(page), "text/html; charset=utf-8"); err != nil {
		return fmt.Errorf("upload export %s: %w", key, err)
	}

	s.logger.Info("export written", "key", key, "obligations", len(obligations))
	return nil
}
