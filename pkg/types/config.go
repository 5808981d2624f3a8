// Catalog configuration and backend selection.
package types

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Transport backends.
const (
	TransportSQLite = "sqlite"
	TransportREST   = "rest"
	TransportMemory = "memory"
)

// Store backends.
const (
	StoreLocal  = "local"
	StoreS3     = "s3"
	StoreMemory = "memory"
)

// Property keys recognized by ConfigFromProperties.
const (
	PropWarehouse     = "warehouse"
	PropCacheMetadata = "cache-metadata"
)

// DefaultCatalogName is used when no name is configured.
const DefaultCatalogName = "icecat"

// knownTransports lists the transports the CLI can construct.
var knownTransports = map[string]bool{
	TransportSQLite: true,
	TransportREST:   true,
	TransportMemory: true,
}

// knownStores lists the stores the CLI can construct.
var knownStores = map[string]bool{
	StoreLocal:  true,
	StoreS3:     true,
	StoreMemory: true,
}

// ValidTransport reports whether kind names a known transport.
func ValidTransport(kind string) bool { return knownTransports[kind] }

// ValidStore reports whether kind names a known store.
func ValidStore(kind string) bool { return knownStores[kind] }

// CatalogConfig holds the settings of a Catalog.
type CatalogConfig struct {
	// Name identifies the catalog in logs and REST paths.
	Name string `json:"name" yaml:"name"`

	// Warehouse is the root location under which table locations are
	// derived, e.g. "s3://bucket/warehouse" or "file:///var/lib/icecat".
	Warehouse string `json:"warehouse" yaml:"warehouse"`

	// CacheMetadata enables the location-keyed parsed metadata cache.
	CacheMetadata bool `json:"cache_metadata" yaml:"cache_metadata"`
}

// Validate checks that the config is usable. Returns an error wrapping
// ErrInvalidConfig and a specific sentinel.
func (c CatalogConfig) Validate() error {
	if c.Warehouse == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrWarehouseEmpty)
	}
	u, err := url.Parse(c.Warehouse)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrWarehouseRelative, c.Warehouse)
	}
	return nil
}

// TableLocation derives the base location of a table: the warehouse followed
// by the namespace segments and the table name as path elements. Segments are
// path-escaped, so "#", "?", "%" and "/" in a name stay inside its element.
func (c CatalogConfig) TableLocation(id TableIdentifier) string {
	segments := id.Segments()
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(c.Warehouse, "/") + "/" + strings.Join(segments, "/")
}

// ConfigFromProperties builds a config from engine-style string properties.
func ConfigFromProperties(name string, props map[string]string) (CatalogConfig, error) {
	cfg := CatalogConfig{Name: name, Warehouse: props[PropWarehouse]}
	if cfg.Name == "" {
		cfg.Name = DefaultCatalogName
	}
	if v, ok := props[PropCacheMetadata]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return CatalogConfig{}, fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, PropCacheMetadata, v, err)
		}
		cfg.CacheMetadata = b
	}
	if err := cfg.Validate(); err != nil {
		return CatalogConfig{}, err
	}
	return cfg, nil
}
