// Catalog transport interface and its request/response records.
package types

import "context"

// Transport issues catalog operations against a catalog service. Implementations
// return errors wrapping ErrNotFound, ErrAlreadyExists, ErrCommitConflict or
// ErrInvalidRequest for the outcomes the catalog distinguishes; any other
// error is a transport failure.
type Transport interface {
	// ListNamespaces returns the direct children of parent, or the
	// top-level namespaces when parent is nil.
	ListNamespaces(ctx context.Context, parent Namespace) (*ListNamespacesResponse, error)

	// CreateNamespace creates ns. Its parent must already exist.
	CreateNamespace(ctx context.Context, ns Namespace, props map[string]string) error

	// DropNamespace removes an empty namespace.
	DropNamespace(ctx context.Context, ns Namespace) error

	// ListTables returns the tables directly in ns, in creation order.
	ListTables(ctx context.Context, ns Namespace) (*ListTablesResponse, error)

	// TableExists returns nil when the table exists and an error wrapping
	// ErrNotFound when it does not.
	TableExists(ctx context.Context, ns Namespace, name string) error

	// DropTable removes the table's pointer entry.
	DropTable(ctx context.Context, ns Namespace, name string, purge bool) error

	// LoadTable returns the table's current pointer.
	LoadTable(ctx context.Context, ns Namespace, name string) (*LoadTableResponse, error)

	// CreateTable registers a new table pointer. Fails with ErrAlreadyExists
	// if the identifier is taken.
	CreateTable(ctx context.Context, ns Namespace, req CreateTableRequest) (*LoadTableResponse, error)

	// UpdateTable applies a commit after checking its requirements. A stale
	// pointer fails with ErrCommitConflict.
	UpdateTable(ctx context.Context, ns Namespace, name string, req CommitTableRequest) (*CommitTableResponse, error)

	// RenameTable moves a table entry to a new identifier.
	RenameTable(ctx context.Context, from, to TableIdentifier) error
}

// ListNamespacesResponse lists namespaces as raw segment lists. A nil
// Namespaces field means the service omitted it.
type ListNamespacesResponse struct {
	Namespaces [][]string `json:"namespaces"`
}

// ListTablesResponse lists table entries. A nil Identifiers field means the
// service omitted it.
type ListTablesResponse struct {
	Identifiers []TableEntry `json:"identifiers"`
}

// TableEntry is a table as reported by a listing.
type TableEntry struct {
	Namespace []string `json:"namespace"`
	Name      string   `json:"name"`
}

// LoadTableResponse carries a table's pointer.
type LoadTableResponse struct {
	MetadataLocation string            `json:"metadata-location,omitempty"`
	Config           map[string]string `json:"config,omitempty"`
}

// CreateTableRequest registers a table. MetadataLocation is the initial
// pointer; Schema and Location describe the table for services that record them.
type CreateTableRequest struct {
	Name             string            `json:"name"`
	Schema           *Schema           `json:"schema,omitempty"`
	Location         string            `json:"location,omitempty"`
	MetadataLocation string            `json:"metadata-location,omitempty"`
	Properties       map[string]string `json:"properties,omitempty"`
	Requirements     []Requirement     `json:"requirements,omitempty"`
}

// CommitTableRequest is an atomic set of requirements and updates.
type CommitTableRequest struct {
	Requirements []Requirement `json:"requirements"`
	Updates      []Update      `json:"updates"`
}

// CommitTableResponse carries the pointer after a commit.
type CommitTableResponse struct {
	MetadataLocation string `json:"metadata-location"`
}

// RenameTableRequest moves a table.
type RenameTableRequest struct {
	Source      TableEntry `json:"source"`
	Destination TableEntry `json:"destination"`
}
