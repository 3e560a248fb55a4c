package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals a missing object.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Store is the byte-blob interface every later component builds on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the object's bytes, or ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Exists reports whether the object is present without fetching it.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Put writes the object with the given content type.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error

	// List returns every object under prefix, following pagination
	// internally.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// Copy duplicates srcKey to dstKey within the bucket.
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error

	// DeleteMany removes the given keys, batching as the backend requires.
	DeleteMany(ctx context.Context, bucket string, keys []string) error

	// PresignPut issues a scoped, time-limited upload URL for key.
	PresignPut(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}
