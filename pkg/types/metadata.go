// Table metadata model as persisted in metadata files (table format v2).
package types

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Format versions accepted when reading metadata files.
const (
	FormatVersionV1 = 1
	FormatVersionV2 = 2
)

// NoSnapshot is the current-snapshot-id of a table without snapshots.
const NoSnapshot int64 = -1

// MainBranch is the only snapshot reference this client maintains.
const MainBranch = "main"

// InitialPartitionFieldID is one below the first id assigned to partition fields.
const InitialPartitionFieldID = 999

// TableMetadata is the content of a metadata file. Values are treated as
// immutable; Apply returns a modified copy.
type TableMetadata struct {
	FormatVersion      int                `json:"format-version"`
	TableUUID          string             `json:"table-uuid"`
	Location           string             `json:"location"`
	LastSequenceNumber int64              `json:"last-sequence-number"`
	LastUpdatedMS      int64              `json:"last-updated-ms"`
	LastColumnID       int                `json:"last-column-id"`
	Schemas            []Schema           `json:"schemas"`
	CurrentSchemaID    int                `json:"current-schema-id"`
	PartitionSpecs     []PartitionSpec    `json:"partition-specs"`
	DefaultSpecID      int                `json:"default-spec-id"`
	LastPartitionID    int                `json:"last-partition-id"`
	SortOrders         []SortOrder        `json:"sort-orders"`
	DefaultSortOrderID int                `json:"default-sort-order-id"`
	CurrentSnapshotID  int64              `json:"current-snapshot-id"`
	Snapshots          []Snapshot         `json:"snapshots"`
	SnapshotLog        []SnapshotLogEntry `json:"snapshot-log"`
	MetadataLog        []MetadataLogEntry `json:"metadata-log"`
	Properties         map[string]string  `json:"properties,omitempty"`
}

// Schema defines the columns of a table.
type Schema struct {
	SchemaID int     `json:"schema-id"`
	Type     string  `json:"type,omitempty"`
	Fields   []Field `json:"fields"`
}

// Field is a single column in a schema.
type Field struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Doc      string `json:"doc,omitempty"`
}

// PartitionSpec defines how data is partitioned.
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// PartitionField maps a source column to a partition transform.
type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// SortOrder defines how data is sorted within files.
type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

// SortField is a single sort column.
type SortField struct {
	SourceID  int    `json:"source-id"`
	Transform string `json:"transform"`
	Direction string `json:"direction"`
	NullOrder string `json:"null-order"`
}

// Snapshot records a point-in-time state of the table's data.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMS      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
	SchemaID         *int              `json:"schema-id,omitempty"`
}

// SnapshotLogEntry records when a snapshot became current.
type SnapshotLogEntry struct {
	TimestampMS int64 `json:"timestamp-ms"`
	SnapshotID  int64 `json:"snapshot-id"`
}

// MetadataLogEntry records a previous metadata file of the table.
type MetadataLogEntry struct {
	TimestampMS  int64  `json:"timestamp-ms"`
	MetadataFile string `json:"metadata-file"`
}

// CurrentSchema returns the schema selected by CurrentSchemaID.
func (m *TableMetadata) CurrentSchema() (Schema, bool) {
	for _, s := range m.Schemas {
		if s.SchemaID == m.CurrentSchemaID {
			return s, true
		}
	}
	return Schema{}, false
}

// CurrentSnapshot returns the current snapshot, if any.
func (m *TableMetadata) CurrentSnapshot() (Snapshot, bool) {
	if m.CurrentSnapshotID == NoSnapshot {
		return Snapshot{}, false
	}
	return m.SnapshotByID(m.CurrentSnapshotID)
}

// SnapshotByID finds a snapshot by id.
func (m *TableMetadata) SnapshotByID(id int64) (Snapshot, bool) {
	for _, s := range m.Snapshots {
		if s.SnapshotID == id {
			return s, true
		}
	}
	return Snapshot{}, false
}

// Validate checks the structural invariants a metadata file must satisfy
// before it is handed to callers.
func (m *TableMetadata) Validate() error {
	if m.FormatVersion != FormatVersionV1 && m.FormatVersion != FormatVersionV2 {
		return fmt.Errorf("unsupported format-version %d", m.FormatVersion)
	}
	if m.Location == "" {
		return fmt.Errorf("missing location")
	}
	if len(m.Schemas) == 0 {
		return fmt.Errorf("no schemas")
	}
	if _, ok := m.CurrentSchema(); !ok {
		return fmt.Errorf("current-schema-id %d not in schemas", m.CurrentSchemaID)
	}
	if len(m.PartitionSpecs) > 0 && !m.hasSpec(m.DefaultSpecID) {
		return fmt.Errorf("default-spec-id %d not in partition-specs", m.DefaultSpecID)
	}
	if m.CurrentSnapshotID != NoSnapshot {
		if _, ok := m.CurrentSnapshot(); !ok {
			return fmt.Errorf("current-snapshot-id %d not in snapshots", m.CurrentSnapshotID)
		}
	}
	return nil
}

func (m *TableMetadata) hasSpec(id int) bool {
	for _, s := range m.PartitionSpecs {
		if s.SpecID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so that updates never alias the original.
func (m *TableMetadata) Clone() *TableMetadata {
	out := *m
	out.Schemas = make([]Schema, len(m.Schemas))
	for i, s := range m.Schemas {
		s.Fields = append([]Field(nil), s.Fields...)
		out.Schemas[i] = s
	}
	out.PartitionSpecs = make([]PartitionSpec, len(m.PartitionSpecs))
	for i, s := range m.PartitionSpecs {
		s.Fields = append([]PartitionField(nil), s.Fields...)
		out.PartitionSpecs[i] = s
	}
	out.SortOrders = make([]SortOrder, len(m.SortOrders))
	for i, s := range m.SortOrders {
		s.Fields = append([]SortField(nil), s.Fields...)
		out.SortOrders[i] = s
	}
	out.Snapshots = make([]Snapshot, len(m.Snapshots))
	for i, s := range m.Snapshots {
		s.Summary = cloneStringMap(s.Summary)
		out.Snapshots[i] = s
	}
	out.SnapshotLog = append([]SnapshotLogEntry{}, m.SnapshotLog...)
	out.MetadataLog = append([]MetadataLogEntry{}, m.MetadataLog...)
	out.Properties = cloneStringMap(m.Properties)
	return &out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MarshalMetadata serializes metadata as indented JSON.
func MarshalMetadata(m *TableMetadata) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// ParseMetadata decodes and validates a metadata file. Bytes that are not
// valid UTF-8, not JSON, or structurally invalid yield ErrCorruptMetadata.
func ParseMetadata(data []byte) (*TableMetadata, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrCorruptMetadata)
	}
	var m TableMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptMetadata, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptMetadata, err)
	}
	return &m, nil
}

// LastFieldID returns the highest field id in the schema.
func (s Schema) LastFieldID() int {
	max := 0
	for _, f := range s.Fields {
		if f.ID > max {
			max = f.ID
		}
	}
	return max
}

// LastFieldID returns the highest partition field id, or
// InitialPartitionFieldID for an unpartitioned spec.
func (p PartitionSpec) LastFieldID() int {
	max := InitialPartitionFieldID
	for _, f := range p.Fields {
		if f.FieldID > max {
			max = f.FieldID
		}
	}
	return max
}
