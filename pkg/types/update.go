// Update and requirement records exchanged in commit requests, and the pure
// function that applies updates to table metadata.
package types

import (
	"fmt"
	"time"
)

// Update actions.
const (
	ActionAssignUUID           = "assign-uuid"
	ActionUpgradeFormatVersion = "upgrade-format-version"
	ActionAddSchema            = "add-schema"
	ActionSetCurrentSchema     = "set-current-schema"
	ActionAddSpec              = "add-spec"
	ActionSetDefaultSpec       = "set-default-spec"
	ActionAddSortOrder         = "add-sort-order"
	ActionSetDefaultSortOrder  = "set-default-sort-order"
	ActionAddSnapshot          = "add-snapshot"
	ActionSetSnapshotRef       = "set-snapshot-ref"
	ActionSetLocation          = "set-location"
	ActionSetProperties        = "set-properties"
	ActionRemoveProperties     = "remove-properties"
	ActionSetMetadataLocation  = "set-metadata-location"
)

// Requirement types.
const (
	RequireCreate           = "assert-create"
	RequireMetadataLocation = "assert-metadata-location"
)

// LastAdded selects the schema, spec or sort order added earlier in the same
// set of updates.
const LastAdded = -1

// Update is a single structural change. Action selects which fields are used.
type Update struct {
	Action           string            `json:"action"`
	UUID             string            `json:"uuid,omitempty"`
	FormatVersion    int               `json:"format-version,omitempty"`
	Schema           *Schema           `json:"schema,omitempty"`
	SchemaID         *int              `json:"schema-id,omitempty"`
	Spec             *PartitionSpec    `json:"spec,omitempty"`
	SpecID           *int              `json:"spec-id,omitempty"`
	SortOrder        *SortOrder        `json:"sort-order,omitempty"`
	SortOrderID      *int              `json:"sort-order-id,omitempty"`
	Snapshot         *Snapshot         `json:"snapshot,omitempty"`
	RefName          string            `json:"ref-name,omitempty"`
	SnapshotID       *int64            `json:"snapshot-id,omitempty"`
	Location         string            `json:"location,omitempty"`
	Updates          map[string]string `json:"updates,omitempty"`
	Removals         []string          `json:"removals,omitempty"`
	MetadataLocation string            `json:"metadata-location,omitempty"`
}

// Requirement is a precondition the catalog service checks before applying
// a commit.
type Requirement struct {
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
}

// AssertCreate requires that the table does not exist yet.
func AssertCreate() Requirement {
	return Requirement{Type: RequireCreate}
}

// AssertMetadataLocation requires the table's current pointer to equal location.
func AssertMetadataLocation(location string) Requirement {
	return Requirement{Type: RequireMetadataLocation, Location: location}
}

// SetMetadataLocation advances the table's pointer.
func SetMetadataLocation(location string) Update {
	return Update{Action: ActionSetMetadataLocation, MetadataLocation: location}
}

// AssignUUID sets the table uuid.
func AssignUUID(uuid string) Update {
	return Update{Action: ActionAssignUUID, UUID: uuid}
}

// UpgradeFormatVersion raises the metadata format version.
func UpgradeFormatVersion(v int) Update {
	return Update{Action: ActionUpgradeFormatVersion, FormatVersion: v}
}

// AddSchema registers a new schema.
func AddSchema(s Schema) Update {
	return Update{Action: ActionAddSchema, Schema: &s}
}

// SetCurrentSchema selects the current schema; LastAdded picks the schema
// added by a preceding AddSchema.
func SetCurrentSchema(id int) Update {
	return Update{Action: ActionSetCurrentSchema, SchemaID: &id}
}

// AddPartitionSpec registers a partition spec.
func AddPartitionSpec(p PartitionSpec) Update {
	return Update{Action: ActionAddSpec, Spec: &p}
}

// SetDefaultSpec selects the default partition spec.
func SetDefaultSpec(id int) Update {
	return Update{Action: ActionSetDefaultSpec, SpecID: &id}
}

// AddSortOrder registers a sort order.
func AddSortOrder(o SortOrder) Update {
	return Update{Action: ActionAddSortOrder, SortOrder: &o}
}

// SetDefaultSortOrder selects the default sort order.
func SetDefaultSortOrder(id int) Update {
	return Update{Action: ActionSetDefaultSortOrder, SortOrderID: &id}
}

// AddSnapshot appends a snapshot.
func AddSnapshot(s Snapshot) Update {
	return Update{Action: ActionAddSnapshot, Snapshot: &s}
}

// SetSnapshotRef points a branch at a snapshot.
func SetSnapshotRef(ref string, snapshotID int64) Update {
	return Update{Action: ActionSetSnapshotRef, RefName: ref, SnapshotID: &snapshotID}
}

// SetLocation changes the table's base location.
func SetLocation(location string) Update {
	return Update{Action: ActionSetLocation, Location: location}
}

// SetProperties upserts table properties.
func SetProperties(props map[string]string) Update {
	return Update{Action: ActionSetProperties, Updates: cloneStringMap(props)}
}

// RemoveProperties deletes table properties.
func RemoveProperties(keys ...string) Update {
	return Update{Action: ActionRemoveProperties, Removals: append([]string(nil), keys...)}
}

// applyState tracks ids added earlier in the same Apply call.
type applyState struct {
	lastSchemaID    *int
	lastSpecID      *int
	lastSortOrderID *int
}

// Apply returns a copy of base with updates applied. When previousLocation
// is non-empty it is recorded in the metadata log. last-updated-ms is set to
// now. base is never modified.
func Apply(base *TableMetadata, previousLocation string, updates []Update, now time.Time) (*TableMetadata, error) {
	m := base.Clone()
	var st applyState
	for i, u := range updates {
		if err := applyOne(m, &st, u, now); err != nil {
			return nil, fmt.Errorf("%w: update %d (%s): %w", ErrInvalidUpdate, i, u.Action, err)
		}
	}
	if previousLocation != "" {
		m.MetadataLog = append(m.MetadataLog, MetadataLogEntry{
			TimestampMS:  base.LastUpdatedMS,
			MetadataFile: previousLocation,
		})
	}
	m.LastUpdatedMS = now.UnixMilli()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}
	return m, nil
}

func applyOne(m *TableMetadata, st *applyState, u Update, now time.Time) error {
	switch u.Action {
	case ActionAssignUUID:
		if u.UUID == "" {
			return fmt.Errorf("empty uuid")
		}
		m.TableUUID = u.UUID

	case ActionUpgradeFormatVersion:
		if u.FormatVersion < m.FormatVersion {
			return fmt.Errorf("cannot downgrade format-version %d to %d", m.FormatVersion, u.FormatVersion)
		}
		if u.FormatVersion > FormatVersionV2 {
			return fmt.Errorf("unsupported format-version %d", u.FormatVersion)
		}
		m.FormatVersion = u.FormatVersion

	case ActionAddSchema:
		if u.Schema == nil {
			return fmt.Errorf("missing schema")
		}
		s := *u.Schema
		s.Fields = append([]Field(nil), s.Fields...)
		s.SchemaID = nextSchemaID(m, s.SchemaID)
		m.Schemas = append(m.Schemas, s)
		if last := s.LastFieldID(); last > m.LastColumnID {
			m.LastColumnID = last
		}
		id := s.SchemaID
		st.lastSchemaID = &id

	case ActionSetCurrentSchema:
		id, err := resolveID(u.SchemaID, st.lastSchemaID, "schema")
		if err != nil {
			return err
		}
		if !hasSchema(m, id) {
			return fmt.Errorf("schema %d not found", id)
		}
		m.CurrentSchemaID = id

	case ActionAddSpec:
		if u.Spec == nil {
			return fmt.Errorf("missing spec")
		}
		p := *u.Spec
		p.Fields = append([]PartitionField(nil), p.Fields...)
		p.SpecID = nextSpecID(m, p.SpecID)
		m.PartitionSpecs = append(m.PartitionSpecs, p)
		if last := p.LastFieldID(); last > m.LastPartitionID {
			m.LastPartitionID = last
		}
		id := p.SpecID
		st.lastSpecID = &id

	case ActionSetDefaultSpec:
		id, err := resolveID(u.SpecID, st.lastSpecID, "spec")
		if err != nil {
			return err
		}
		if !m.hasSpec(id) {
			return fmt.Errorf("partition spec %d not found", id)
		}
		m.DefaultSpecID = id

	case ActionAddSortOrder:
		if u.SortOrder == nil {
			return fmt.Errorf("missing sort order")
		}
		o := *u.SortOrder
		o.Fields = append([]SortField(nil), o.Fields...)
		o.OrderID = nextSortOrderID(m, o.OrderID)
		m.SortOrders = append(m.SortOrders, o)
		id := o.OrderID
		st.lastSortOrderID = &id

	case ActionSetDefaultSortOrder:
		id, err := resolveID(u.SortOrderID, st.lastSortOrderID, "sort order")
		if err != nil {
			return err
		}
		if !hasSortOrder(m, id) {
			return fmt.Errorf("sort order %d not found", id)
		}
		m.DefaultSortOrderID = id

	case ActionAddSnapshot:
		if u.Snapshot == nil {
			return fmt.Errorf("missing snapshot")
		}
		s := *u.Snapshot
		if _, ok := m.SnapshotByID(s.SnapshotID); ok {
			return fmt.Errorf("snapshot %d already exists", s.SnapshotID)
		}
		if s.SequenceNumber == 0 {
			s.SequenceNumber = m.LastSequenceNumber + 1
		}
		if s.SequenceNumber <= m.LastSequenceNumber && m.FormatVersion >= FormatVersionV2 {
			return fmt.Errorf("sequence number %d is not newer than %d", s.SequenceNumber, m.LastSequenceNumber)
		}
		if s.TimestampMS == 0 {
			s.TimestampMS = now.UnixMilli()
		}
		s.Summary = cloneStringMap(s.Summary)
		m.Snapshots = append(m.Snapshots, s)
		if s.SequenceNumber > m.LastSequenceNumber {
			m.LastSequenceNumber = s.SequenceNumber
		}

	case ActionSetSnapshotRef:
		if u.RefName != MainBranch {
			return fmt.Errorf("unsupported ref %q", u.RefName)
		}
		if u.SnapshotID == nil {
			return fmt.Errorf("missing snapshot-id")
		}
		s, ok := m.SnapshotByID(*u.SnapshotID)
		if !ok {
			return fmt.Errorf("snapshot %d not found", *u.SnapshotID)
		}
		m.CurrentSnapshotID = s.SnapshotID
		m.SnapshotLog = append(m.SnapshotLog, SnapshotLogEntry{
			TimestampMS: s.TimestampMS,
			SnapshotID:  s.SnapshotID,
		})

	case ActionSetLocation:
		if u.Location == "" {
			return fmt.Errorf("empty location")
		}
		m.Location = u.Location

	case ActionSetProperties:
		if m.Properties == nil {
			m.Properties = make(map[string]string, len(u.Updates))
		}
		for k, v := range u.Updates {
			m.Properties[k] = v
		}

	case ActionRemoveProperties:
		for _, k := range u.Removals {
			delete(m.Properties, k)
		}

	case ActionSetMetadataLocation:
		// Pointer updates are handled by the catalog service, not the file.

	default:
		return fmt.Errorf("unknown action %q", u.Action)
	}
	return nil
}

func resolveID(id, last *int, what string) (int, error) {
	if id == nil {
		return 0, fmt.Errorf("missing %s id", what)
	}
	if *id != LastAdded {
		return *id, nil
	}
	if last == nil {
		return 0, fmt.Errorf("no %s added in this commit", what)
	}
	return *last, nil
}

func hasSchema(m *TableMetadata, id int) bool {
	for _, s := range m.Schemas {
		if s.SchemaID == id {
			return true
		}
	}
	return false
}

func hasSortOrder(m *TableMetadata, id int) bool {
	for _, o := range m.SortOrders {
		if o.OrderID == id {
			return true
		}
	}
	return false
}

func nextSchemaID(m *TableMetadata, want int) int {
	if !hasSchema(m, want) && want >= 0 {
		return want
	}
	max := -1
	for _, s := range m.Schemas {
		if s.SchemaID > max {
			max = s.SchemaID
		}
	}
	return max + 1
}

func nextSpecID(m *TableMetadata, want int) int {
	if !m.hasSpec(want) && want >= 0 {
		return want
	}
	max := -1
	for _, s := range m.PartitionSpecs {
		if s.SpecID > max {
			max = s.SpecID
		}
	}
	return max + 1
}

func nextSortOrderID(m *TableMetadata, want int) int {
	if !hasSortOrder(m, want) && want >= 0 {
		return want
	}
	max := -1
	for _, o := range m.SortOrders {
		if o.OrderID > max {
			max = o.OrderID
		}
	}
	return max + 1
}

// CheckRequirements evaluates requirements against the service-side state of
// a table: whether it exists and its current pointer. Returns an error
// wrapping ErrAlreadyExists or ErrCommitConflict when a requirement fails.
func CheckRequirements(reqs []Requirement, exists bool, current string) error {
	for _, r := range reqs {
		switch r.Type {
		case RequireCreate:
			if exists {
				return fmt.Errorf("%w: table exists", ErrAlreadyExists)
			}
		case RequireMetadataLocation:
			if !exists {
				return fmt.Errorf("%w: table does not exist", ErrNotFound)
			}
			if current != r.Location {
				return fmt.Errorf("%w: expected metadata location %q, found %q", ErrCommitConflict, r.Location, current)
			}
		default:
			return fmt.Errorf("%w: unknown requirement %q", ErrInvalidRequest, r.Type)
		}
	}
	return nil
}

// PointerFromUpdates extracts the new metadata location from a commit's
// updates. Pointer-only services accept nothing else.
func PointerFromUpdates(updates []Update) (string, error) {
	var location string
	for _, u := range updates {
		if u.Action != ActionSetMetadataLocation {
			return "", fmt.Errorf("%w: unsupported update %q", ErrInvalidRequest, u.Action)
		}
		location = u.MetadataLocation
	}
	if location == "" {
		return "", fmt.Errorf("%w: commit carries no metadata location", ErrInvalidRequest)
	}
	return location, nil
}
