package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/artifacts"
	"github.com/JaimeStill/lexis/internal/concepts"
	"github.com/JaimeStill/lexis/internal/docsync"
	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/pkg/storage"
)

// Documents is the relational document store the stages read and enrich.
type Documents interface {
	docsync.Store
	Find(ctx context.Context, id uuid.UUID) (*documents.Document, error)
	Content(ctx context.Context, id uuid.UUID) (*documents.Content, error)
	SyncStates(ctx context.Context, websiteID uuid.UUID) ([]documents.SyncState, error)
	Pending(ctx context.Context, websiteID uuid.UUID, need documents.Need, version string) ([]uuid.UUID, error)
	SetScore(ctx context.Context, id uuid.UUID, score float64) error
}

// Index is the search index side of the pipeline.
type Index interface {
	Scan(ctx context.Context, website string, filters ...string) *index.Cursor
	Add(ctx context.Context, docs ...index.Document) error
	Update(ctx context.Context, id string, fields index.Fields) error
	Commit(ctx context.Context) error
}

// Services are the external endpoints beyond the extractor's own.
type Services interface {
	Convert(ctx context.Context, content []byte, contentType string) (string, error)
	Classify(ctx context.Context, text string) (float64, error)
	Crawl(ctx context.Context, website, url string) (string, error)
}

// Blobs reads crawler output.
type Blobs interface {
	List(ctx context.Context, bucket, prefix string) ([]storage.Object, error)
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Concepts reads persisted annotations for export.
type Concepts interface {
	Obligations(ctx context.Context, documentID uuid.UUID, version string) ([]concepts.Obligation, error)
	Graph(ctx context.Context, version string) ([]concepts.Concept, []concepts.Link, error)
}

// Graph receives the concept graph of an extractor version.
type Graph interface {
	Project(ctx context.Context, version string, nodes []concepts.Concept, links []concepts.Link) error
}

// Settings tune stage execution.
type Settings struct {
	ExtractorVersion string
	// Workers bounds concurrent documents within a stage.
	Workers int
	// StageTimeout bounds one stage. Zero means no bound.
	StageTimeout time.Duration
	Export       bool
}

// Runtime bundles the dependencies stages require. It is built by the
// composition root from the infrastructure and domain systems.
type Runtime struct {
	Documents Documents
	Index     Index
	Services  Services
	Blobs     Blobs
	Extractor *annotation.Extractor
	Resolver  *concepts.Resolver
	Artifacts *artifacts.Store
	Concepts  Concepts
	// Graph is optional; without it export writes only HTML.
	Graph    Graph
	Sync     *docsync.Sync
	Settings Settings
	Logger   *slog.Logger
}
