package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// Transaction buffers metadata changes for one table and commits them as a
// single pointer swap. It remembers the metadata location of the handle at
// the time it was opened; the commit succeeds only if the table still points
// there. A transaction can be committed once.
type Transaction struct {
	table            *Table
	previousLocation string
	base             *types.TableMetadata
	updates          []types.Update
	committed        atomic.Bool
}

// PreviousLocation returns the metadata location the commit will require.
func (tx *Transaction) PreviousLocation() string {
	return tx.previousLocation
}

// Updates returns the pending updates.
func (tx *Transaction) Updates() []types.Update {
	return append([]types.Update(nil), tx.updates...)
}

// AddUpdate appends raw updates.
func (tx *Transaction) AddUpdate(u ...types.Update) *Transaction {
	tx.updates = append(tx.updates, u...)
	return tx
}

// AddSchema adds a schema and makes it current.
func (tx *Transaction) AddSchema(s types.Schema) *Transaction {
	return tx.AddUpdate(types.AddSchema(s), types.SetCurrentSchema(types.LastAdded))
}

// SetCurrentSchema selects an existing schema.
func (tx *Transaction) SetCurrentSchema(id int) *Transaction {
	return tx.AddUpdate(types.SetCurrentSchema(id))
}

// AddPartitionSpec adds a partition spec and makes it the default.
func (tx *Transaction) AddPartitionSpec(p types.PartitionSpec) *Transaction {
	return tx.AddUpdate(types.AddPartitionSpec(p), types.SetDefaultSpec(types.LastAdded))
}

// SetDefaultSpec selects an existing partition spec.
func (tx *Transaction) SetDefaultSpec(id int) *Transaction {
	return tx.AddUpdate(types.SetDefaultSpec(id))
}

// AddSortOrder adds a sort order and makes it the default.
func (tx *Transaction) AddSortOrder(o types.SortOrder) *Transaction {
	return tx.AddUpdate(types.AddSortOrder(o), types.SetDefaultSortOrder(types.LastAdded))
}

// AppendSnapshot adds a snapshot and points the main branch at it. A zero
// SnapshotID is replaced by a random id; a nil parent defaults to the
// current snapshot.
func (tx *Transaction) AppendSnapshot(s types.Snapshot) *Transaction {
	if s.SnapshotID == 0 {
		s.SnapshotID = generateSnapshotID()
	}
	if s.ParentSnapshotID == nil && tx.base.CurrentSnapshotID != types.NoSnapshot {
		parent := tx.base.CurrentSnapshotID
		s.ParentSnapshotID = &parent
	}
	return tx.AddUpdate(types.AddSnapshot(s), types.SetSnapshotRef(types.MainBranch, s.SnapshotID))
}

// SetProperties upserts table properties.
func (tx *Transaction) SetProperties(props map[string]string) *Transaction {
	return tx.AddUpdate(types.SetProperties(props))
}

// RemoveProperties deletes table properties.
func (tx *Transaction) RemoveProperties(keys ...string) *Transaction {
	return tx.AddUpdate(types.RemoveProperties(keys...))
}

// SetLocation moves the table's base location. Later metadata files are
// written under the new location.
func (tx *Transaction) SetLocation(location string) *Transaction {
	return tx.AddUpdate(types.SetLocation(location))
}

// Commit applies the pending updates, writes a new metadata file and swaps
// the table's pointer to it. On success the originating handle is refreshed
// and returned. On ErrConcurrentModification nothing changes except that an
// unreferenced metadata file may remain; reload the table and rebuild the
// transaction to retry.
func (tx *Transaction) Commit(ctx context.Context) (*Table, error) {
	if !tx.committed.CompareAndSwap(false, true) {
		return nil, types.ErrTransactionCommitted
	}
	t := tx.table
	c := t.catalog

	next, err := types.Apply(tx.base, tx.previousLocation, tx.updates, c.now())
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", t.identifier, err)
	}

	location := metadataFileLocation(next.Location, len(next.MetadataLog))
	path, err := LocationPath(location)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", t.identifier, err)
	}
	if err := c.writeMetadata(ctx, location, next); err != nil {
		return nil, fmt.Errorf("commit %s: %w", t.identifier, err)
	}

	if err := c.swapPointer(ctx, t.identifier, location, tx.previousLocation); err != nil {
		return nil, err
	}

	// The pointer names the file just written; no re-read.
	if c.config().CacheMetadata {
		c.cache.put(t.identifier, location, next)
	}
	t.replace(newTable(c, t.identifier, location, path, next))
	return t, nil
}

// metadataFileLocation names a new metadata file under the table location.
// The version prefix orders files for humans; the UUID keeps concurrent
// writers from colliding.
func metadataFileLocation(tableLocation string, version int) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s/metadata/%05d-%s.metadata.json", trimSlash(tableLocation), version, id)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// generateSnapshotID produces a random positive snapshot id.
func generateSnapshotID() int64 {
	return rand.Int64N(1<<62) + 1
}
