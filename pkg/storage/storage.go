// Package storage provides namespaced blob storage with an Azure Blob Storage
// implementation. Each bucket maps to one container and holds one artifact kind.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JaimeStill/lexis/pkg/lifecycle"
)

// Well-known buckets.
const (
	BucketArtifacts       = "cas-files"
	BucketObligationsHTML = "ro-html-output"
	BucketCrawlerItems    = "crawler-items"
)

// Object describes a stored blob.
type Object struct {
	Bucket        string    `json:"bucket"`
	Key           string    `json:"key"`
	ContentType   string    `json:"content_type"`
	ContentLength int64     `json:"content_length"`
	LastModified  time.Time `json:"last_modified"`
}

// System manages blob storage operations and lifecycle coordination.
type System interface {
	// Start registers a startup hook that creates every configured bucket.
	Start(lc *lifecycle.Coordinator) error
	// Upload streams data to key in bucket, creating or overwriting the object.
	Upload(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error
	// Download returns a stream for the object. The caller must close the reader.
	// Returns ErrNotFound if the object does not exist.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Delete removes the object. Returns ErrNotFound if the object does not exist.
	Delete(ctx context.Context, bucket, key string) error
	// Create writes a new object and returns ErrExists if key is taken.
	// Versioned artifacts are written this way so a version is never replaced.
	Create(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error
	// List returns all objects in bucket whose key starts with prefix.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
}

type azure struct {
	client  *azblob.Client
	buckets []string
	logger  *slog.Logger
}

// New creates a storage system from the given configuration.
// It creates the Azure client but does not contact the service until Start is called.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:  client,
		buckets: cfg.Buckets,
		logger:  logger.With("system", "storage"),
	}, nil
}

func newClient(cfg *Config) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve azure credential: %w", err)
	}
	return azblob.NewClient(cfg.AccountURL, cred, nil)
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	a.logger.Info("starting storage system", "buckets", a.buckets)

	lc.OnStartup("storage", func() error {
		for _, bucket := range a.buckets {
			_, err := a.client.CreateContainer(lc.Context(), bucket, nil)
			if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
				a.logger.Error("bucket initialization failed", "bucket", bucket, "error", err)
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}

		a.logger.Info("storage buckets ready")
		return nil
	})

	return nil
}

func (a *azure) Upload(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error {
	if err := a.validate(bucket, key); err != nil {
		return err
	}

	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}

	if _, err := a.client.UploadStream(ctx, bucket, key, reader, opts); err != nil {
		return fmt.Errorf("upload blob %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (a *azure) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := a.validate(bucket, key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, bucket, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s/%s: %w", bucket, key, err)
	}

	return resp.Body, nil
}

func (a *azure) Delete(ctx context.Context, bucket, key string) error {
	if err := a.validate(bucket, key); err != nil {
		return err
	}

	if _, err := a.client.DeleteBlob(ctx, bucket, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (a *azure) Create(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error {
	if err := a.validate(bucket, key); err != nil {
		return err
	}

	absent := azcore.ETagAny
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: &absent},
		},
	}

	if _, err := a.client.UploadStream(ctx, bucket, key, reader, opts); err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return fmt.Errorf("%w: %s/%s", ErrExists, bucket, key)
		}
		return fmt.Errorf("create blob %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (a *azure) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	if !slices.Contains(a.buckets, bucket) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}

	pager := a.client.NewListBlobsFlatPager(bucket, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	objects := make([]Object, 0)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs %s/%s: %w", bucket, prefix, err)
		}

		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			obj := Object{Bucket: bucket, Key: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentType != nil {
					obj.ContentType = *p.ContentType
				}
				if p.ContentLength != nil {
					obj.ContentLength = *p.ContentLength
				}
				if p.LastModified != nil {
					obj.LastModified = *p.LastModified
				}
			}
			objects = append(objects, obj)
		}
	}

	return objects, nil
}

func (a *azure) validate(bucket, key string) error {
	if !slices.Contains(a.buckets, bucket) {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	return ValidateKey(key)
}

// ValidateKey rejects empty keys and keys containing path traversal segments.
func ValidateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
