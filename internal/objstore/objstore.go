// Package objstore provides the metadata stores the catalog reads and writes
// metadata files through: an in-memory map, a local directory tree, and an
// S3 bucket. Paths are the path component of a metadata location; a missing
// object is reported as types.ErrNotFound.
package objstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

var (
	_ types.MetadataStore = (*Memory)(nil)
	_ types.MetadataStore = (*Local)(nil)
	_ types.MetadataStore = (*S3)(nil)
)

// Memory keeps objects in a map. Stored bytes are copied on Put and Get.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Get returns a copy of the object at path.
func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", types.ErrNotFound, path)
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data at path, replacing any existing object.
func (m *Memory) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), data...)
	return nil
}

// Delete removes the object at path if present.
func (m *Memory) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
