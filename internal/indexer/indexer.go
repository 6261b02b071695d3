// Package indexer records object metadata on the record that owns an
// uploaded attachment.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/ddb"
	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/s3io"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// Objects reads object metadata. *s3io.Store satisfies it.
type Objects interface {
	Head(ctx context.Context, key string) (s3io.ObjectMeta, error)
}

// Records updates attachment metadata. *ddb.Repo satisfies it.
type Records interface {
	SetAttachmentMeta(ctx context.Context, kind models.Kind, id string, size int64, etag, uploadedAt string) error
}

// Indexer handles S3 ObjectCreated events.
type Indexer struct {
	Objects Objects
	Records Records
	Log     *zap.Logger
	Now     func() time.Time
}

// Handle processes every record of ev. Failures are logged per object and
// never fail the batch, so S3 does not redeliver objects already indexed.
func (ix *Indexer) Handle(ctx context.Context, ev events.S3Event) error {
	for _, rec := range ev.Records {
		if err := ix.Process(ctx, rec.S3.Object.Key); err != nil {
			ix.Log.Warn("index failed", zap.String("key", rec.S3.Object.Key), zap.Error(err))
		}
	}
	return nil
}

// Process indexes the object at the (URL-escaped) key.
func (ix *Indexer) Process(ctx context.Context, escapedKey string) error {
	key, err := url.QueryUnescape(escapedKey)
	if err != nil {
		return fmt.Errorf("unescape: %w", err)
	}
	kind, id, _, ok := s3io.ParseKey(key)
	if !ok {
		ix.Log.Info("skipping unrecognized key", zap.String("key", key))
		return nil
	}

	meta, err := ix.Objects.Head(ctx, key)
	if err != nil {
		return fmt.Errorf("head %s: %w", key, err)
	}
	// Prefer the id written at upload time over the one parsed from the path.
	if rid := strings.TrimSpace(meta.Meta["record_id"]); rid != "" {
		if k, ok := models.KindFromID(rid); ok {
			kind, id = k, rid
		}
	}

	now := time.Now
	if ix.Now != nil {
		now = ix.Now
	}
	err = ix.Records.SetAttachmentMeta(ctx, kind, id, meta.Size, meta.ETag, now().UTC().Format(time.RFC3339))
	switch {
	case errors.Is(err, ddb.ErrNotFound), errors.Is(err, ddb.ErrConditionFailed):
		ix.Log.Warn("no attachment reference for object", zap.String("key", key), zap.String("id", id))
		return nil
	case err != nil:
		return fmt.Errorf("update %s: %w", id, err)
	}

	ix.Log.Info("attachment indexed",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.Int64("size", meta.Size),
		zap.String("etag", meta.ETag),
		zap.String("content_type", meta.ContentType),
	)
	return nil
}
