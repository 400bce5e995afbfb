// Package storage archives original image blobs in S3-compatible object
// storage. The archive is optional: the index itself only ever needs the
// persisted signatures.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the operations the archive needs.
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object exists under key.
	Exists(ctx context.Context, key string) (bool, error)
}
