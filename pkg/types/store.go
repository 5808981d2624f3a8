package types

import "context"

// MetadataStore reads and writes metadata files at object-store paths.
// Paths are the path component of a metadata location URL. Get returns an
// error wrapping ErrNotFound for a missing object.
type MetadataStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
}
