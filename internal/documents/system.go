package documents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/pkg/pagination"
)

// System defines the public contract for document domain operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Document], error)

	Find(ctx context.Context, id uuid.UUID) (*Document, error)
	Content(ctx context.Context, id uuid.UUID) (*Content, error)

	// SyncStates returns every document of a website ordered by id.
	SyncStates(ctx context.Context, websiteID uuid.UUID) ([]SyncState, error)
	// Pending returns ids of a website's documents awaiting a stage.
	// version is only consulted by NeedAnnotation.
	Pending(ctx context.Context, websiteID uuid.UUID, need Need, version string) ([]uuid.UUID, error)

	Create(ctx context.Context, cmd CreateCommand) error
	// Update writes the present fields of patch. revive clears expired_at.
	Update(ctx context.Context, id uuid.UUID, patch Fields, revive bool) error
	// Expire soft-deletes a document. Already expired documents are left as is.
	Expire(ctx context.Context, id uuid.UUID, at time.Time) error
	SetScore(ctx context.Context, id uuid.UUID, score float64) error

	// Delete removes a document and its attachments from the index, blob
	// storage, and the relational store. Annotations cascade.
	Delete(ctx context.Context, id uuid.UUID) error
}

// IndexRemover deletes documents from the search index.
type IndexRemover interface {
	Delete(ctx context.Context, id string) error
}
