// Package catalog implements the table catalog protocol: identifier
// resolution against a catalog service, metadata retrieval from an object
// store, and commits that advance a table's metadata pointer with a
// compare-and-swap on its previous location.
//
// A Catalog holds no locks around commits. Concurrent writers are kept
// apart by the service, which rejects a swap whose expected previous
// location is stale; the catalog reports that as ErrConcurrentModification
// and leaves retrying to the caller.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// Catalog maps table identifiers to metadata files.
type Catalog struct {
	transport types.Transport
	store     types.MetadataStore
	logger    *slog.Logger
	now       func() time.Time
	cache     *metadataCache

	mu  sync.RWMutex
	cfg types.CatalogConfig
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// WithClock overrides the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// New creates a catalog over the given transport and store.
func New(cfg types.CatalogConfig, transport types.Transport, store types.MetadataStore, opts ...Option) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = types.DefaultCatalogName
	}
	c := &Catalog{
		transport: transport,
		store:     store,
		logger:    slog.Default(),
		now:       time.Now,
		cache:     newMetadataCache(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("catalog", cfg.Name)
	return c, nil
}

// Initialize reconfigures the catalog from engine-style properties
// ("warehouse", "cache-metadata"). Tables already loaded keep working; new
// tables derive their location from the new warehouse.
func (c *Catalog) Initialize(name string, props map[string]string) error {
	cfg, err := types.ConfigFromProperties(name, props)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.logger.Info("catalog initialized", "name", cfg.Name, "warehouse", cfg.Warehouse)
	return nil
}

// Name returns the catalog name.
func (c *Catalog) Name() string {
	return c.config().Name
}

// Config returns a copy of the current configuration.
func (c *Catalog) Config() types.CatalogConfig {
	return c.config()
}

// Store returns the metadata store the catalog reads and writes through.
func (c *Catalog) Store() types.MetadataStore {
	return c.store
}

func (c *Catalog) config() types.CatalogConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// ListNamespaces returns the namespaces directly under parent, or the
// top-level namespaces when parent is nil.
func (c *Catalog) ListNamespaces(ctx context.Context, parent types.Namespace) ([]types.Namespace, error) {
	resp, err := c.transport.ListNamespaces(ctx, parent)
	if err != nil {
		return nil, transportError("list namespaces", err)
	}
	if resp == nil || resp.Namespaces == nil {
		return nil, fmt.Errorf("%w: no namespaces field", types.ErrCatalogProtocol)
	}
	out := make([]types.Namespace, 0, len(resp.Namespaces))
	for _, raw := range resp.Namespaces {
		ns, err := types.NewNamespace(raw...)
		if err != nil {
			return nil, fmt.Errorf("list namespaces: %w", err)
		}
		out = append(out, ns)
	}
	return out, nil
}

// CreateNamespace creates a namespace with optional properties.
func (c *Catalog) CreateNamespace(ctx context.Context, ns types.Namespace, props map[string]string) error {
	if _, err := types.NewNamespace(ns...); err != nil {
		return err
	}
	if err := c.transport.CreateNamespace(ctx, ns, props); err != nil {
		return transportError("create namespace "+ns.String(), err)
	}
	c.logger.Info("namespace created", "namespace", ns.String())
	return nil
}

// DropNamespace removes an empty namespace.
func (c *Catalog) DropNamespace(ctx context.Context, ns types.Namespace) error {
	if err := c.transport.DropNamespace(ctx, ns); err != nil {
		return transportError("drop namespace "+ns.String(), err)
	}
	c.logger.Info("namespace dropped", "namespace", ns.String())
	return nil
}

// ListTables returns the identifiers of the tables in ns, in the order the
// service reports them. A malformed entry fails the whole call.
func (c *Catalog) ListTables(ctx context.Context, ns types.Namespace) ([]types.TableIdentifier, error) {
	resp, err := c.transport.ListTables(ctx, ns)
	if err != nil {
		return nil, transportError("list tables in "+ns.String(), err)
	}
	if resp == nil || resp.Identifiers == nil {
		return nil, fmt.Errorf("%w: no tables field", types.ErrCatalogProtocol)
	}
	out := make([]types.TableIdentifier, 0, len(resp.Identifiers))
	for _, e := range resp.Identifiers {
		id, err := types.FromServiceEntry(e.Namespace, e.Name)
		if err != nil {
			return nil, fmt.Errorf("list tables in %s: %w", ns, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// TableExists reports whether the service knows the identifier.
func (c *Catalog) TableExists(ctx context.Context, id types.TableIdentifier) (bool, error) {
	if err := checkIdentifier(id); err != nil {
		return false, err
	}
	err := c.transport.TableExists(ctx, id.Namespace, id.Name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	return false, transportError("check table "+id.String(), err)
}

// DropTable removes the catalog's pointer entry. Metadata and data files are
// left in place. Dropping a missing table fails.
func (c *Catalog) DropTable(ctx context.Context, id types.TableIdentifier) error {
	return c.dropTable(ctx, id, false)
}

// PurgeTable drops the table and asks the service to delete its files.
// Services that only hold pointers treat it like DropTable.
func (c *Catalog) PurgeTable(ctx context.Context, id types.TableIdentifier) error {
	return c.dropTable(ctx, id, true)
}

func (c *Catalog) dropTable(ctx context.Context, id types.TableIdentifier, purge bool) error {
	if err := checkIdentifier(id); err != nil {
		return err
	}
	if err := c.transport.DropTable(ctx, id.Namespace, id.Name, purge); err != nil {
		return transportError("drop table "+id.String(), err)
	}
	c.cache.invalidate(id)
	c.logger.Info("table dropped", "table", id.String(), "purge", purge)
	return nil
}

// InvalidateTable discards cached metadata for id. The next LoadTable reads
// the metadata file again.
func (c *Catalog) InvalidateTable(_ context.Context, id types.TableIdentifier) error {
	n := c.cache.invalidate(id)
	c.logger.Debug("table invalidated", "table", id.String(), "entries", n)
	return nil
}

// LoadTable resolves the table's current pointer, reads and parses the
// metadata file it names, and returns a handle bound to both.
func (c *Catalog) LoadTable(ctx context.Context, id types.TableIdentifier) (*Table, error) {
	if err := checkIdentifier(id); err != nil {
		return nil, err
	}
	resp, err := c.transport.LoadTable(ctx, id.Namespace, id.Name)
	if err != nil {
		return nil, transportError("load table "+id.String(), err)
	}
	if resp == nil || resp.MetadataLocation == "" {
		return nil, fmt.Errorf("%w: %s", types.ErrMissingMetadataLocation, id)
	}
	location := resp.MetadataLocation

	path, err := LocationPath(location)
	if err != nil {
		return nil, err
	}

	cfg := c.config()
	if cfg.CacheMetadata {
		if m, ok := c.cache.get(location); ok {
			c.logger.Debug("table loaded from cache", "table", id.String(), "location", location)
			return newTable(c, id, location, path, m), nil
		}
	}

	data, err := c.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", types.ErrMetadataUnavailable, location, err)
	}
	m, err := types.ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("load table %s from %s: %w", id, location, err)
	}
	if cfg.CacheMetadata {
		c.cache.put(id, location, m)
	}
	c.logger.Debug("table loaded", "table", id.String(), "location", location)
	return newTable(c, id, location, path, m), nil
}

// BuildTable returns a builder for a new table whose location is derived
// from the warehouse and the identifier. No I/O happens until Commit.
func (c *Catalog) BuildTable(id types.TableIdentifier, schema types.Schema, opts ...BuilderOption) *TableBuilder {
	b := &TableBuilder{
		catalog:    c,
		identifier: id,
		schema:     schema,
		location:   c.config().TableLocation(id),
		spec:       types.PartitionSpec{SpecID: 0, Fields: []types.PartitionField{}},
		sortOrder:  types.SortOrder{OrderID: 0, Fields: []types.SortField{}},
		properties: map[string]string{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateTable builds and immediately commits a new table.
func (c *Catalog) CreateTable(ctx context.Context, id types.TableIdentifier, schema types.Schema, opts ...BuilderOption) (*Table, error) {
	return c.BuildTable(id, schema, opts...).Commit(ctx)
}

// RegisterTable attaches a catalog entry to a metadata file that already
// exists at metadataLocation.
func (c *Catalog) RegisterTable(ctx context.Context, id types.TableIdentifier, metadataLocation string) (*Table, error) {
	if err := checkIdentifier(id); err != nil {
		return nil, err
	}
	if _, err := LocationPath(metadataLocation); err != nil {
		return nil, err
	}
	req := types.CreateTableRequest{
		Name:             id.Name,
		MetadataLocation: metadataLocation,
		Requirements:     []types.Requirement{types.AssertCreate()},
	}
	if _, err := c.transport.CreateTable(ctx, id.Namespace, req); err != nil {
		return nil, transportError("register table "+id.String(), err)
	}
	c.logger.Info("table registered", "table", id.String(), "location", metadataLocation)
	return c.LoadTable(ctx, id)
}

// UpdateTable advances the table's pointer to newLocation provided that it
// still equals previousLocation, then reloads the table. A stale
// previousLocation fails with ErrConcurrentModification. If the swap lands
// but the reload fails, the error wraps ErrReloadAfterCommit: the pointer
// already names newLocation and must not be swapped again.
func (c *Catalog) UpdateTable(ctx context.Context, id types.TableIdentifier, newLocation, previousLocation string) (*Table, error) {
	if err := c.swapPointer(ctx, id, newLocation, previousLocation); err != nil {
		return nil, err
	}
	t, err := c.LoadTable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %s: %w", types.ErrReloadAfterCommit, id, newLocation, err)
	}
	return t, nil
}

// swapPointer asks the service to move id from previousLocation to
// newLocation.
func (c *Catalog) swapPointer(ctx context.Context, id types.TableIdentifier, newLocation, previousLocation string) error {
	if err := checkIdentifier(id); err != nil {
		return err
	}
	if _, err := LocationPath(newLocation); err != nil {
		return err
	}
	req := types.CommitTableRequest{
		Requirements: []types.Requirement{types.AssertMetadataLocation(previousLocation)},
		Updates:      []types.Update{types.SetMetadataLocation(newLocation)},
	}
	if _, err := c.transport.UpdateTable(ctx, id.Namespace, id.Name, req); err != nil {
		if errors.Is(err, types.ErrCommitConflict) {
			c.logger.Warn("commit rejected", "table", id.String(), "expected", previousLocation)
			return fmt.Errorf("%w: %s: %w", types.ErrConcurrentModification, id, err)
		}
		return transportError("update table "+id.String(), err)
	}
	c.logger.Info("table committed", "table", id.String(), "previous", previousLocation, "location", newLocation)
	return nil
}

// RenameTable moves a table to a new identifier and loads it there.
func (c *Catalog) RenameTable(ctx context.Context, from, to types.TableIdentifier) (*Table, error) {
	if err := checkIdentifier(from); err != nil {
		return nil, err
	}
	if err := checkIdentifier(to); err != nil {
		return nil, err
	}
	if err := c.transport.RenameTable(ctx, from, to); err != nil {
		return nil, transportError(fmt.Sprintf("rename table %s to %s", from, to), err)
	}
	c.cache.invalidate(from)
	c.logger.Info("table renamed", "from", from.String(), "to", to.String())
	return c.LoadTable(ctx, to)
}

// writeMetadata serializes m and stores it at location.
func (c *Catalog) writeMetadata(ctx context.Context, location string, m *types.TableMetadata) error {
	path, err := LocationPath(location)
	if err != nil {
		return err
	}
	data, err := types.MarshalMetadata(m)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, path, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", types.ErrMetadataUnavailable, location, err)
	}
	return nil
}

// LocationPath resolves a metadata location as an absolute URL and returns
// its object-store path (scheme and host stripped, escapes decoded). A query
// or fragment is rejected, since it would not be part of the stored path.
func LocationPath(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", types.ErrInvalidLocation, location, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("%w: %q is not absolute", types.ErrInvalidLocation, location)
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" || strings.HasSuffix(location, "#") {
		return "", fmt.Errorf("%w: %q has a query or fragment", types.ErrInvalidLocation, location)
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("%w: %q has no path", types.ErrInvalidLocation, location)
	}
	return u.Path, nil
}

func checkIdentifier(id types.TableIdentifier) error {
	_, err := types.FromParts(id.Namespace, id.Name)
	return err
}

// transportError tags a collaborator failure with ErrCatalogTransport.
func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrCatalogTransport, op, err)
}
