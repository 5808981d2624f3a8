package catalog

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// TableBuilder assembles the initial metadata of a new table. Commit writes
// the first metadata file and registers it with the catalog service.
type TableBuilder struct {
	catalog    *Catalog
	identifier types.TableIdentifier
	schema     types.Schema
	location   string
	spec       types.PartitionSpec
	sortOrder  types.SortOrder
	properties map[string]string
	committed  atomic.Bool
}

// BuilderOption customizes a TableBuilder.
type BuilderOption func(*TableBuilder)

// WithPartitionSpec sets the initial partition spec.
func WithPartitionSpec(p types.PartitionSpec) BuilderOption {
	return func(b *TableBuilder) { b.spec = p }
}

// WithSortOrder sets the initial sort order.
func WithSortOrder(o types.SortOrder) BuilderOption {
	return func(b *TableBuilder) { b.sortOrder = o }
}

// WithProperties sets initial table properties.
func WithProperties(props map[string]string) BuilderOption {
	return func(b *TableBuilder) {
		for k, v := range props {
			b.properties[k] = v
		}
	}
}

// WithLocation overrides the derived table location.
func WithLocation(location string) BuilderOption {
	return func(b *TableBuilder) { b.location = location }
}

// Identifier returns the identifier the table will be created under.
func (b *TableBuilder) Identifier() types.TableIdentifier {
	return b.identifier
}

// Location returns the table's base location.
func (b *TableBuilder) Location() string {
	return b.location
}

// Metadata returns the metadata Commit would write, without side effects.
func (b *TableBuilder) Metadata() *types.TableMetadata {
	return b.newMetadata()
}

// Commit writes the initial metadata file and creates the catalog entry. It
// fails if the identifier already exists; the service never overwrites an
// existing pointer on create.
func (b *TableBuilder) Commit(ctx context.Context) (*Table, error) {
	if !b.committed.CompareAndSwap(false, true) {
		return nil, types.ErrTransactionCommitted
	}
	id := b.identifier
	if _, err := types.FromParts(id.Namespace, id.Name); err != nil {
		return nil, err
	}
	if _, err := LocationPath(b.location); err != nil {
		return nil, err
	}
	c := b.catalog

	m := b.newMetadata()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("create table %s: %w: %w", id, types.ErrInvalidUpdate, err)
	}
	location := metadataFileLocation(b.location, 0)
	path, err := LocationPath(location)
	if err != nil {
		return nil, err
	}
	if err := c.writeMetadata(ctx, location, m); err != nil {
		return nil, fmt.Errorf("create table %s: %w", id, err)
	}

	schema := m.Schemas[0]
	req := types.CreateTableRequest{
		Name:             id.Name,
		Schema:           &schema,
		Location:         b.location,
		MetadataLocation: location,
		Properties:       m.Properties,
		Requirements:     []types.Requirement{types.AssertCreate()},
	}
	if _, err := c.transport.CreateTable(ctx, id.Namespace, req); err != nil {
		return nil, transportError("create table "+id.String(), err)
	}
	c.logger.Info("table created", "table", id.String(), "location", location)
	if c.config().CacheMetadata {
		c.cache.put(id, location, m)
	}
	return newTable(c, id, location, path, m), nil
}

func (b *TableBuilder) newMetadata() *types.TableMetadata {
	schema := b.schema
	schema.Fields = append([]types.Field{}, b.schema.Fields...)
	spec := b.spec
	spec.Fields = append([]types.PartitionField{}, b.spec.Fields...)
	order := b.sortOrder
	order.Fields = append([]types.SortField{}, b.sortOrder.Fields...)

	props := make(map[string]string, len(b.properties))
	for k, v := range b.properties {
		props[k] = v
	}
	return &types.TableMetadata{
		FormatVersion:      types.FormatVersionV2,
		TableUUID:          uuid.NewString(),
		Location:           trimSlash(b.location),
		LastSequenceNumber: 0,
		LastUpdatedMS:      b.catalog.now().UnixMilli(),
		LastColumnID:       schema.LastFieldID(),
		Schemas:            []types.Schema{schema},
		CurrentSchemaID:    schema.SchemaID,
		PartitionSpecs:     []types.PartitionSpec{spec},
		DefaultSpecID:      spec.SpecID,
		LastPartitionID:    spec.LastFieldID(),
		SortOrders:         []types.SortOrder{order},
		DefaultSortOrderID: order.OrderID,
		CurrentSnapshotID:  types.NoSnapshot,
		Snapshots:          []types.Snapshot{},
		SnapshotLog:        []types.SnapshotLogEntry{},
		MetadataLog:        []types.MetadataLogEntry{},
		Properties:         props,
	}
}
