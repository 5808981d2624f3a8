package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/icecat/internal/objstore"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

// stubTransport returns canned responses. Unset methods panic through the
// nil embedded interface.
type stubTransport struct {
	types.Transport
	namespaces *types.ListNamespacesResponse
	tables     *types.ListTablesResponse
	load       *types.LoadTableResponse
	err        error
}

func (s *stubTransport) ListNamespaces(context.Context, types.Namespace) (*types.ListNamespacesResponse, error) {
	return s.namespaces, s.err
}

func (s *stubTransport) ListTables(context.Context, types.Namespace) (*types.ListTablesResponse, error) {
	return s.tables, s.err
}

func (s *stubTransport) LoadTable(context.Context, types.Namespace, string) (*types.LoadTableResponse, error) {
	return s.load, s.err
}

func (s *stubTransport) TableExists(context.Context, types.Namespace, string) error {
	return s.err
}

func newStubCatalog(t *testing.T, tr *stubTransport) *Catalog {
	t.Helper()
	c, err := New(types.CatalogConfig{Warehouse: testWarehouse}, tr, objstore.NewMemory())
	require.NoError(t, err)
	return c
}

func TestListTables_ProtocolErrors(t *testing.T) {
	ns := types.Namespace{"db"}
	tests := []struct {
		name    string
		resp    *types.ListTablesResponse
		wantErr error
	}{
		{"missing field", &types.ListTablesResponse{}, types.ErrCatalogProtocol},
		{"nil response", nil, types.ErrCatalogProtocol},
		{"entry without namespace", &types.ListTablesResponse{Identifiers: []types.TableEntry{{Name: "t"}}}, types.ErrMalformedIdentifier},
		{"entry without name", &types.ListTablesResponse{Identifiers: []types.TableEntry{
			{Namespace: []string{"db"}, Name: "ok"},
			{Namespace: []string{"db"}},
		}}, types.ErrMalformedIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newStubCatalog(t, &stubTransport{tables: tt.resp})
			ids, err := c.ListTables(context.Background(), ns)
			assert.Nil(t, ids)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListTables_MultiLevelEntries(t *testing.T) {
	resp := &types.ListTablesResponse{Identifiers: []types.TableEntry{
		{Namespace: []string{"a", "b"}, Name: "t"},
	}}
	c := newStubCatalog(t, &stubTransport{tables: resp})
	ids, err := c.ListTables(context.Background(), types.Namespace{"a", "b"})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "a.b.t", ids[0].String())
}

func TestListNamespaces_ProtocolErrors(t *testing.T) {
	c := newStubCatalog(t, &stubTransport{namespaces: &types.ListNamespacesResponse{}})
	_, err := c.ListNamespaces(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrCatalogProtocol)

	c = newStubCatalog(t, &stubTransport{namespaces: &types.ListNamespacesResponse{Namespaces: [][]string{{}}}})
	_, err = c.ListNamespaces(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrMalformedIdentifier)
}

func TestLoadTable_PointerErrors(t *testing.T) {
	id := types.TableIdentifier{Namespace: types.Namespace{"db"}, Name: "t"}
	tests := []struct {
		name    string
		resp    *types.LoadTableResponse
		wantErr error
	}{
		{"missing location", &types.LoadTableResponse{}, types.ErrMissingMetadataLocation},
		{"nil response", nil, types.ErrMissingMetadataLocation},
		{"relative location", &types.LoadTableResponse{MetadataLocation: "db/t/metadata/v1.json"}, types.ErrInvalidLocation},
		{"no path", &types.LoadTableResponse{MetadataLocation: "s3://bucket"}, types.ErrInvalidLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newStubCatalog(t, &stubTransport{load: tt.resp})
			tbl, err := c.LoadTable(context.Background(), id)
			assert.Nil(t, tbl)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransportFailuresAreTagged(t *testing.T) {
	boom := errors.New("connection refused")
	c := newStubCatalog(t, &stubTransport{err: boom})
	id := types.TableIdentifier{Namespace: types.Namespace{"db"}, Name: "t"}

	_, err := c.LoadTable(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrCatalogTransport)
	assert.ErrorIs(t, err, boom)

	ok, err := c.TableExists(context.Background(), id)
	assert.False(t, ok)
	assert.ErrorIs(t, err, types.ErrCatalogTransport)

	_, err = c.ListTables(context.Background(), types.Namespace{"db"})
	assert.ErrorIs(t, err, boom)
}
