// Package sqlite provides the public API for the embedded SQLite catalog
// service. It exposes a factory while keeping the implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/icecat/internal/sqlite"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

// Service is an attached SQLite catalog service. Detach releases the
// database; the service returns types.ErrDetached afterwards.
type Service interface {
	types.Transport
	Detach() error
}

// Open attaches a catalog service stored in dataDir/catalog.db. Several
// catalogs may share one file; catalogName keeps their entries apart.
// An empty catalogName means types.DefaultCatalogName.
//
// Example:
//
//	svc, err := sqlite.Open(".icecat", "")
//	if err != nil {
//	    return err
//	}
//	defer svc.Detach()
//	cat, err := catalog.New(cfg, svc, store)
func Open(dataDir, catalogName string) (Service, error) {
	backend := sqlite.NewBackend()
	if err := backend.Attach(sqlite.Config{DataDir: dataDir, CatalogName: catalogName}); err != nil {
		return nil, err
	}
	return backend, nil
}
