// Package storage is the thin object-storage facade. The real backends
// (S3-compatible, filesystem) live behind the BlobStore interface; the bus
// and domain services only ever deal in opaque keys.
package storage

import (
	"context"
	"time"
)

// Blob is one stored object.
type Blob struct {
	Key         string
	ContentType string
	Data        []byte
	Size        int64
	UploadedAt  time.Time
}

// BlobStore is interface-driven to keep the domain logic testable and to
// allow swapping in-memory, file-based, or external persistence without
// rewiring business code.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) (Blob, error)
	Delete(ctx context.Context, key string) error
}
