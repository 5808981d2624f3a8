package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var applyNow = time.UnixMilli(1_700_000_000_000)

func baseMetadata() *TableMetadata {
	return &TableMetadata{
		FormatVersion:     FormatVersionV2,
		TableUUID:         "9c12d441-03fe-4693-9a96-a0705ddf69c1",
		Location:          "s3://b/wh/db/t",
		LastUpdatedMS:     1_600_000_000_000,
		LastColumnID:      1,
		Schemas:           []Schema{{SchemaID: 0, Fields: []Field{{ID: 1, Name: "id", Type: "long", Required: true}}}},
		PartitionSpecs:    []PartitionSpec{{SpecID: 0}},
		LastPartitionID:   InitialPartitionFieldID,
		SortOrders:        []SortOrder{{OrderID: 0}},
		CurrentSnapshotID: NoSnapshot,
		Properties:        map[string]string{"owner": "a"},
	}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestApply_DoesNotModifyBase(t *testing.T) {
	base := baseMetadata()
	out, err := Apply(base, "s3://b/wh/db/t/metadata/00000-a.metadata.json", []Update{
		SetProperties(map[string]string{"owner": "b"}),
		AddSchema(Schema{Fields: []Field{{ID: 1, Name: "id", Type: "long"}, {ID: 2, Name: "v", Type: "string"}}}),
	}, applyNow)
	require.NoError(t, err)

	assert.Equal(t, "a", base.Properties["owner"])
	assert.Len(t, base.Schemas, 1)
	assert.Empty(t, base.MetadataLog)

	assert.Equal(t, "b", out.Properties["owner"])
	assert.Len(t, out.Schemas, 2)
	assert.Equal(t, applyNow.UnixMilli(), out.LastUpdatedMS)
	require.Len(t, out.MetadataLog, 1)
	assert.Equal(t, MetadataLogEntry{TimestampMS: base.LastUpdatedMS, MetadataFile: "s3://b/wh/db/t/metadata/00000-a.metadata.json"}, out.MetadataLog[0])
}

func TestApply_SchemaEvolution(t *testing.T) {
	out, err := Apply(baseMetadata(), "", []Update{
		AddSchema(Schema{SchemaID: 0, Fields: []Field{{ID: 1, Name: "id", Type: "long"}, {ID: 5, Name: "v", Type: "string"}}}),
		SetCurrentSchema(LastAdded),
	}, applyNow)
	require.NoError(t, err)

	// Schema id 0 is taken, so the new schema gets the next free id.
	assert.Equal(t, 1, out.CurrentSchemaID)
	assert.Equal(t, 5, out.LastColumnID)
	assert.Empty(t, out.MetadataLog)
}

func TestApply_Snapshots(t *testing.T) {
	out, err := Apply(baseMetadata(), "", []Update{
		AddSnapshot(Snapshot{SnapshotID: 10, ManifestList: "s3://b/m1.avro"}),
		SetSnapshotRef(MainBranch, 10),
	}, applyNow)
	require.NoError(t, err)

	snap, ok := out.CurrentSnapshot()
	require.True(t, ok)
	assert.Equal(t, int64(10), snap.SnapshotID)
	assert.Equal(t, int64(1), snap.SequenceNumber)
	assert.Equal(t, applyNow.UnixMilli(), snap.TimestampMS)
	assert.Equal(t, int64(1), out.LastSequenceNumber)
	assert.Equal(t, []SnapshotLogEntry{{TimestampMS: applyNow.UnixMilli(), SnapshotID: 10}}, out.SnapshotLog)

	_, err = Apply(out, "", []Update{
		AddSnapshot(Snapshot{SnapshotID: 11, SequenceNumber: 1}),
	}, applyNow)
	assert.ErrorIs(t, err, ErrInvalidUpdate, "stale sequence number")
}

func TestApply_PartitionAndSortOrder(t *testing.T) {
	out, err := Apply(baseMetadata(), "", []Update{
		AddPartitionSpec(PartitionSpec{SpecID: 0, Fields: []PartitionField{{SourceID: 1, FieldID: 1000, Name: "id_bucket", Transform: "bucket[16]"}}}),
		SetDefaultSpec(LastAdded),
		AddSortOrder(SortOrder{OrderID: 0, Fields: []SortField{{SourceID: 1, Transform: "identity", Direction: "asc", NullOrder: "nulls-first"}}}),
		SetDefaultSortOrder(LastAdded),
	}, applyNow)
	require.NoError(t, err)
	assert.Equal(t, 1, out.DefaultSpecID)
	assert.Equal(t, 1000, out.LastPartitionID)
	assert.Equal(t, 1, out.DefaultSortOrderID)
}

func TestApply_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		update Update
	}{
		{"unknown action", Update{Action: "drop-everything"}},
		{"empty uuid", AssignUUID("")},
		{"downgrade", UpgradeFormatVersion(FormatVersionV1)},
		{"future format", UpgradeFormatVersion(3)},
		{"missing schema", Update{Action: ActionAddSchema}},
		{"unknown current schema", SetCurrentSchema(7)},
		{"last added without add", SetCurrentSchema(LastAdded)},
		{"unknown spec", SetDefaultSpec(4)},
		{"unknown sort order", SetDefaultSortOrder(4)},
		{"missing snapshot", Update{Action: ActionAddSnapshot}},
		{"branch other than main", Update{Action: ActionSetSnapshotRef, RefName: "audit", SnapshotID: int64Ptr(1)}},
		{"ref to unknown snapshot", SetSnapshotRef(MainBranch, 99)},
		{"empty location", SetLocation("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := baseMetadata()
			_, err := Apply(base, "s3://prev", []Update{tt.update}, applyNow)
			assert.ErrorIs(t, err, ErrInvalidUpdate)
			assert.Empty(t, base.MetadataLog)
		})
	}
}

func TestApply_PropertiesAndLocation(t *testing.T) {
	out, err := Apply(baseMetadata(), "", []Update{
		SetProperties(map[string]string{"tier": "gold"}),
		RemoveProperties("owner", "absent"),
		SetLocation("s3://b/elsewhere"),
		SetMetadataLocation("s3://ignored"),
	}, applyNow)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tier": "gold"}, out.Properties)
	assert.Equal(t, "s3://b/elsewhere", out.Location)
}

func TestCheckRequirements(t *testing.T) {
	const current = "s3://b/v1.json"
	tests := []struct {
		name    string
		reqs    []Requirement
		exists  bool
		wantErr error
	}{
		{"create on absent", []Requirement{AssertCreate()}, false, nil},
		{"create on existing", []Requirement{AssertCreate()}, true, ErrAlreadyExists},
		{"pointer matches", []Requirement{AssertMetadataLocation(current)}, true, nil},
		{"pointer moved", []Requirement{AssertMetadataLocation("s3://b/v0.json")}, true, ErrCommitConflict},
		{"pointer on absent", []Requirement{AssertMetadataLocation(current)}, false, ErrNotFound},
		{"unknown requirement", []Requirement{{Type: "assert-luck"}}, true, ErrInvalidRequest},
		{"no requirements", nil, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRequirements(tt.reqs, tt.exists, current)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPointerFromUpdates(t *testing.T) {
	loc, err := PointerFromUpdates([]Update{SetMetadataLocation("s3://b/v1.json")})
	require.NoError(t, err)
	assert.Equal(t, "s3://b/v1.json", loc)

	_, err = PointerFromUpdates(nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = PointerFromUpdates([]Update{SetProperties(map[string]string{"a": "b"})})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = PointerFromUpdates([]Update{SetMetadataLocation("")})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateIDHelpers(t *testing.T) {
	u := SetCurrentSchema(3)
	require.NotNil(t, u.SchemaID)
	assert.Equal(t, intPtr(3), u.SchemaID)
	assert.Equal(t, ActionSetCurrentSchema, u.Action)
}
