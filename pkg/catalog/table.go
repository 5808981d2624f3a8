package catalog

import (
	"context"
	"sync"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// Table is a client-side handle on a table: its identifier, the metadata
// location it was last seen at, and the parsed metadata found there. The
// catalog service remains authoritative; a handle only changes when a
// transaction opened from it commits.
//
// Reads are safe from multiple goroutines. Do not commit two transactions
// from the same handle at once.
type Table struct {
	catalog    *Catalog
	identifier types.TableIdentifier

	mu       sync.RWMutex
	location string
	path     string
	metadata *types.TableMetadata
}

func newTable(c *Catalog, id types.TableIdentifier, location, path string, m *types.TableMetadata) *Table {
	return &Table{
		catalog:    c,
		identifier: id,
		location:   location,
		path:       path,
		metadata:   m,
	}
}

// Identifier returns the table's identifier.
func (t *Table) Identifier() types.TableIdentifier {
	return t.identifier
}

// MetadataLocation returns the pointer value this handle was loaded from.
// It is the precondition of the next commit.
func (t *Table) MetadataLocation() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.location
}

// MetadataPath returns the object-store path of the metadata file.
func (t *Table) MetadataPath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

// Metadata returns the parsed metadata. The value is shared; do not modify it.
func (t *Table) Metadata() *types.TableMetadata {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metadata
}

// Location returns the table's base storage location.
func (t *Table) Location() string {
	return t.Metadata().Location
}

// Catalog returns the catalog that produced the handle.
func (t *Table) Catalog() *Catalog {
	return t.catalog
}

// Refresh reloads the handle from the catalog.
func (t *Table) Refresh(ctx context.Context) error {
	fresh, err := t.catalog.LoadTable(ctx, t.identifier)
	if err != nil {
		return err
	}
	t.replace(fresh)
	return nil
}

// NewTransaction opens a transaction that will commit against the handle's
// current metadata location.
func (t *Table) NewTransaction() *Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Transaction{
		table:            t,
		previousLocation: t.location,
		base:             t.metadata,
	}
}

// replace adopts the state of a freshly loaded handle.
func (t *Table) replace(fresh *Table) {
	fresh.mu.RLock()
	location, path, m := fresh.location, fresh.path, fresh.metadata
	fresh.mu.RUnlock()

	t.mu.Lock()
	t.location = location
	t.path = path
	t.metadata = m
	t.mu.Unlock()
}
