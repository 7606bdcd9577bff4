// Package storage keeps small documents on a local disk or in an S3 bucket.
//
// Paths are forward-slash separated and relative to the store root. Missing
// documents are reported with errors wrapping fs.ErrNotExist on every
// backend.
package storage

import "context"

// FileStore reads and writes whole documents.
type FileStore interface {
	// Get returns the document at path.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put replaces the document at path.
	Put(ctx context.Context, path string, data []byte) error

	// Delete removes path. Missing documents are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of documents directly under dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)
}
