package devserver

import (
	"context"
	"time"

	"momofeed/internal/moderation"
)

// ObjectInfo is the listing view of a stored image.
type ObjectInfo struct {
	Key          string
	ETag         string
	LastModified time.Time
}

// Backend abstracts the object store the emulator fronts. The minio
// implementation talks to a real bucket; the memory one keeps
// everything in-process for tests and offline development.
//
// Moderation verdicts live in object tags, exactly as the production
// pipeline leaves them.
type Backend interface {
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	List(ctx context.Context) ([]ObjectInfo, error)
	// Stat returns (nil, nil) when the object does not exist.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// Tags returns empty status for an object the pipeline has not
	// tagged yet. A missing object is an error.
	Tags(ctx context.Context, key string) (moderation.Status, moderation.Reason, error)
	SetTags(ctx context.Context, key string, status moderation.Status, reason moderation.Reason) error
}
