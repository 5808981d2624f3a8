package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/icecat/internal/objstore"
	"github.com/mesh-intelligence/icecat/pkg/catalog"
	"github.com/mesh-intelligence/icecat/pkg/sqlite"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

func TestOpen_CatalogSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := objstore.NewMemory()
	cfg := types.CatalogConfig{Name: "lake", Warehouse: "mem://warehouse"}
	id := types.TableIdentifier{Namespace: types.Namespace{"db"}, Name: "orders"}
	schema := types.Schema{Fields: []types.Field{{ID: 1, Name: "id", Type: "long", Required: true}}}

	svc, err := sqlite.Open(dir, "lake")
	require.NoError(t, err)
	c, err := catalog.New(cfg, svc, store)
	require.NoError(t, err)
	require.NoError(t, c.CreateNamespace(ctx, id.Namespace, nil))
	created, err := c.CreateTable(ctx, id, schema)
	require.NoError(t, err)
	require.NoError(t, svc.Detach())

	_, err = svc.LoadTable(ctx, id.Namespace, id.Name)
	assert.ErrorIs(t, err, types.ErrDetached)

	svc, err = sqlite.Open(dir, "lake")
	require.NoError(t, err)
	t.Cleanup(func() { svc.Detach() })
	c, err = catalog.New(cfg, svc, store)
	require.NoError(t, err)

	loaded, err := c.LoadTable(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, created.MetadataLocation(), loaded.MetadataLocation())
}

func TestOpen_DefaultCatalogName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	named, err := sqlite.Open(dir, types.DefaultCatalogName)
	require.NoError(t, err)
	require.NoError(t, named.CreateNamespace(ctx, types.Namespace{"db"}, nil))
	require.NoError(t, named.Detach())

	unnamed, err := sqlite.Open(dir, "")
	require.NoError(t, err)
	t.Cleanup(func() { unnamed.Detach() })
	resp, err := unnamed.ListNamespaces(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"db"}}, resp.Namespaces)
}
