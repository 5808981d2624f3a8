// Package transporttest checks that a types.Transport implementation
// follows the catalog service contract: listing order, error sentinels,
// requirement checks, and the compare-and-swap on the metadata pointer.
package transporttest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/icecat/internal/objstore"
	"github.com/mesh-intelligence/icecat/pkg/catalog"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

// Factory returns a fresh, empty transport for one subtest.
type Factory func(t *testing.T) types.Transport

// Run exercises the transport contract against transports built by newT.
func Run(t *testing.T, newT Factory) {
	t.Run("namespaces", func(t *testing.T) { testNamespaces(t, newT(t)) })
	t.Run("create and load", func(t *testing.T) { testCreateLoad(t, newT(t)) })
	t.Run("list order", func(t *testing.T) { testListOrder(t, newT(t)) })
	t.Run("compare and swap", func(t *testing.T) { testCompareAndSwap(t, newT(t)) })
	t.Run("drop", func(t *testing.T) { testDrop(t, newT(t)) })
	t.Run("rename", func(t *testing.T) { testRename(t, newT(t)) })
	t.Run("bad requests", func(t *testing.T) { testBadRequests(t, newT(t)) })
	t.Run("catalog commits", func(t *testing.T) { testCatalogCommits(t, newT(t)) })
}

var (
	db   = types.Namespace{"db"}
	loc1 = "mem://wh/db/t/metadata/00000-a.metadata.json"
	loc2 = "mem://wh/db/t/metadata/00001-b.metadata.json"
	loc3 = "mem://wh/db/t/metadata/00001-c.metadata.json"
)

func create(ctx context.Context, t *testing.T, tr types.Transport, ns types.Namespace, name, location string) {
	t.Helper()
	resp, err := tr.CreateTable(ctx, ns, types.CreateTableRequest{
		Name:             name,
		MetadataLocation: location,
		Requirements:     []types.Requirement{types.AssertCreate()},
	})
	require.NoError(t, err)
	assert.Equal(t, location, resp.MetadataLocation)
}

func commit(ctx context.Context, tr types.Transport, ns types.Namespace, name, next, previous string) error {
	_, err := tr.UpdateTable(ctx, ns, name, types.CommitTableRequest{
		Requirements: []types.Requirement{types.AssertMetadataLocation(previous)},
		Updates:      []types.Update{types.SetMetadataLocation(next)},
	})
	return err
}

func testNamespaces(t *testing.T, tr types.Transport) {
	ctx := context.Background()

	resp, err := tr.ListNamespaces(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Namespaces)
	assert.Empty(t, resp.Namespaces)

	require.NoError(t, tr.CreateNamespace(ctx, db, map[string]string{"owner": "ops"}))
	require.NoError(t, tr.CreateNamespace(ctx, types.Namespace{"db", "a.b"}, nil))
	require.NoError(t, tr.CreateNamespace(ctx, types.Namespace{"db", "c"}, nil))
	require.NoError(t, tr.CreateNamespace(ctx, types.Namespace{"lake"}, nil))

	err = tr.CreateNamespace(ctx, db, nil)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
	err = tr.CreateNamespace(ctx, types.Namespace{"x", "y"}, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)

	resp, err = tr.ListNamespaces(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"db"}, {"lake"}}, resp.Namespaces)

	resp, err = tr.ListNamespaces(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"db", "a.b"}, {"db", "c"}}, resp.Namespaces)

	_, err = tr.ListNamespaces(ctx, types.Namespace{"missing"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = tr.DropNamespace(ctx, db)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
	require.NoError(t, tr.DropNamespace(ctx, types.Namespace{"lake"}))
	err = tr.DropNamespace(ctx, types.Namespace{"lake"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testCreateLoad(t *testing.T, tr types.Transport) {
	ctx := context.Background()
	require.NoError(t, tr.CreateNamespace(ctx, db, nil))

	err := tr.TableExists(ctx, db, "t")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = tr.LoadTable(ctx, db, "t")
	assert.ErrorIs(t, err, types.ErrNotFound)

	create(ctx, t, tr, db, "t", loc1)
	require.NoError(t, tr.TableExists(ctx, db, "t"))

	resp, err := tr.LoadTable(ctx, db, "t")
	require.NoError(t, err)
	assert.Equal(t, loc1, resp.MetadataLocation)

	_, err = tr.CreateTable(ctx, db, types.CreateTableRequest{
		Name: "t", MetadataLocation: loc2, Requirements: []types.Requirement{types.AssertCreate()},
	})
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	resp, err = tr.LoadTable(ctx, db, "t")
	require.NoError(t, err)
	assert.Equal(t, loc1, resp.MetadataLocation, "create never overwrites")

	_, err = tr.CreateTable(ctx, types.Namespace{"missing"}, types.CreateTableRequest{Name: "t", MetadataLocation: loc1})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testListOrder(t *testing.T, tr types.Transport) {
	ctx := context.Background()
	require.NoError(t, tr.CreateNamespace(ctx, db, nil))

	resp, err := tr.ListTables(ctx, db)
	require.NoError(t, err)
	require.NotNil(t, resp.Identifiers)
	assert.Empty(t, resp.Identifiers)

	for _, name := range []string{"t2", "t1", "t3"} {
		create(ctx, t, tr, db, name, "mem://wh/db/"+name+"/metadata/00000-x.metadata.json")
	}
	resp, err = tr.ListTables(ctx, db)
	require.NoError(t, err)
	var names []string
	for _, e := range resp.Identifiers {
		assert.Equal(t, []string{"db"}, e.Namespace)
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"t2", "t1", "t3"}, names)

	_, err = tr.ListTables(ctx, types.Namespace{"missing"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testCompareAndSwap(t *testing.T, tr types.Transport) {
	ctx := context.Background()
	require.NoError(t, tr.CreateNamespace(ctx, db, nil))
	create(ctx, t, tr, db, "t", loc1)

	require.NoError(t, commit(ctx, tr, db, "t", loc2, loc1))

	err := commit(ctx, tr, db, "t", loc3, loc1)
	assert.ErrorIs(t, err, types.ErrCommitConflict)

	resp, err := tr.LoadTable(ctx, db, "t")
	require.NoError(t, err)
	assert.Equal(t, loc2, resp.MetadataLocation)

	err = commit(ctx, tr, db, "missing", loc3, loc1)
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Racing writers from the same base: exactly one wins.
	const writers = 6
	var wg sync.WaitGroup
	var wins atomic.Int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := "mem://wh/db/t/metadata/00002-" + string(rune('a'+i)) + ".metadata.json"
			if err := commit(ctx, tr, db, "t", next, loc2); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, types.ErrCommitConflict)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins.Load())
}

func testDrop(t *testing.T, tr types.Transport) {
	ctx := context.Background()
	require.NoError(t, tr.CreateNamespace(ctx, db, nil))
	create(ctx, t, tr, db, "t", loc1)

	require.NoError(t, tr.DropTable(ctx, db, "t", false))
	assert.ErrorIs(t, tr.TableExists(ctx, db, "t"), types.ErrNotFound)
	assert.ErrorIs(t, tr.DropTable(ctx, db, "t", true), types.ErrNotFound)

	require.NoError(t, tr.DropNamespace(ctx, db))
}

func testRename(t *testing.T, tr types.Transport) {
	ctx := context.Background()
	require.NoError(t, tr.CreateNamespace(ctx, db, nil))
	require.NoError(t, tr.CreateNamespace(ctx, types.Namespace{"other"}, nil))
	create(ctx, t, tr, db, "a", loc1)
	create(ctx, t, tr, db, "b", loc2)

	from := types.TableIdentifier{Namespace: db, Name: "a"}
	to := types.TableIdentifier{Namespace: types.Namespace{"other"}, Name: "a2"}

	err := tr.RenameTable(ctx, from, types.TableIdentifier{Namespace: db, Name: "b"})
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
	err = tr.RenameTable(ctx, from, types.TableIdentifier{Namespace: types.Namespace{"nope"}, Name: "x"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, tr.RenameTable(ctx, from, to))
	assert.ErrorIs(t, tr.TableExists(ctx, db, "a"), types.ErrNotFound)

	resp, err := tr.LoadTable(ctx, to.Namespace, to.Name)
	require.NoError(t, err)
	assert.Equal(t, loc1, resp.MetadataLocation)

	err = tr.RenameTable(ctx, from, to)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testBadRequests(t *testing.T, tr types.Transport) {
	ctx := context.Background()
	require.NoError(t, tr.CreateNamespace(ctx, db, nil))
	create(ctx, t, tr, db, "t", loc1)

	_, err := tr.CreateTable(ctx, db, types.CreateTableRequest{Name: "u"})
	assert.ErrorIs(t, err, types.ErrInvalidRequest, "create without a metadata location")

	_, err = tr.UpdateTable(ctx, db, "t", types.CommitTableRequest{
		Requirements: []types.Requirement{types.AssertMetadataLocation(loc1)},
		Updates:      []types.Update{types.SetProperties(map[string]string{"a": "b"})},
	})
	assert.ErrorIs(t, err, types.ErrInvalidRequest, "pointer services take only set-metadata-location")

	_, err = tr.UpdateTable(ctx, db, "t", types.CommitTableRequest{
		Requirements: []types.Requirement{{Type: "assert-bogus"}},
		Updates:      []types.Update{types.SetMetadataLocation(loc2)},
	})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)

	resp, err := tr.LoadTable(ctx, db, "t")
	require.NoError(t, err)
	assert.Equal(t, loc1, resp.MetadataLocation)
}

// testCatalogCommits drives the full client protocol over the transport.
func testCatalogCommits(t *testing.T, tr types.Transport) {
	ctx := context.Background()
	c, err := catalog.New(types.CatalogConfig{Warehouse: "mem://wh"}, tr, objstore.NewMemory())
	require.NoError(t, err)
	require.NoError(t, c.CreateNamespace(ctx, db, nil))

	id := types.TableIdentifier{Namespace: db, Name: "events"}
	schema := types.Schema{Fields: []types.Field{{ID: 1, Name: "id", Type: "long", Required: true}}}

	h1, err := c.CreateTable(ctx, id, schema)
	require.NoError(t, err)
	h2, err := c.LoadTable(ctx, id)
	require.NoError(t, err)
	before := h1.MetadataLocation()

	_, err = h1.NewTransaction().SetProperties(map[string]string{"writer": "h1"}).Commit(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, h1.MetadataLocation())

	_, err = h2.NewTransaction().SetProperties(map[string]string{"writer": "h2"}).Commit(ctx)
	assert.ErrorIs(t, err, types.ErrConcurrentModification)

	final, err := c.LoadTable(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, h1.MetadataLocation(), final.MetadataLocation())
	assert.Equal(t, "h1", final.Metadata().Properties["writer"])

	ids, err := c.ListTables(ctx, db)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.True(t, ids[0].Equal(id))
}
