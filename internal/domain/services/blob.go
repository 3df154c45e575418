package services

import (
	"context"
	"io"
)

// BlobStore persists uploaded file bytes under an opaque key.
// The structure core records the key as a node's file_path and never
// interprets it.
type BlobStore interface {
	// Put stores size bytes read from r under key
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Delete removes the blob stored under key
	Delete(ctx context.Context, key string) error
}
