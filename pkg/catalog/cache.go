package catalog

import (
	"github.com/zhangyunhao116/skipmap"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// cacheEntry is parsed metadata plus the table it was loaded for.
type cacheEntry struct {
	tableKey string
	metadata *types.TableMetadata
}

// metadataCache maps metadata locations to parsed metadata. A location's
// content never changes once written, so entries cannot go stale; the
// pointer is still read from the transport on every load.
type metadataCache struct {
	entries *skipmap.FuncMap[string, cacheEntry]
}

func newMetadataCache() *metadataCache {
	return &metadataCache{
		entries: skipmap.NewFunc[string, cacheEntry](func(a, b string) bool {
			return a < b
		}),
	}
}

func (c *metadataCache) get(location string) (*types.TableMetadata, bool) {
	e, ok := c.entries.Load(location)
	if !ok {
		return nil, false
	}
	return e.metadata, true
}

func (c *metadataCache) put(id types.TableIdentifier, location string, m *types.TableMetadata) {
	c.entries.Store(location, cacheEntry{tableKey: id.Key(), metadata: m})
}

// invalidate drops every entry loaded for id and returns how many were removed.
func (c *metadataCache) invalidate(id types.TableIdentifier) int {
	key := id.Key()
	var stale []string
	c.entries.Range(func(location string, e cacheEntry) bool {
		if e.tableKey == key {
			stale = append(stale, location)
		}
		return true
	})
	for _, location := range stale {
		c.entries.Delete(location)
	}
	return len(stale)
}

func (c *metadataCache) len() int {
	return c.entries.Len()
}
