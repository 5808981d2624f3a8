package sqlite

// Schema DDL. Namespaces are stored by key (segments joined with the unit
// separator) so that segments containing dots stay unambiguous. Listing
// order is rowid order, which is creation order and survives renames.
const (
	createNamespaces = `CREATE TABLE IF NOT EXISTS catalog_namespaces (
    catalog_name TEXT NOT NULL,
    namespace TEXT NOT NULL,
    parent TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (catalog_name, namespace)
);`

	createNamespaceProperties = `CREATE TABLE IF NOT EXISTS catalog_namespace_properties (
    catalog_name TEXT NOT NULL,
    namespace TEXT NOT NULL,
    property_key TEXT NOT NULL,
    property_value TEXT NOT NULL,
    PRIMARY KEY (catalog_name, namespace, property_key)
);`

	createTables = `CREATE TABLE IF NOT EXISTS catalog_tables (
    catalog_name TEXT NOT NULL,
    table_namespace TEXT NOT NULL,
    table_name TEXT NOT NULL,
    metadata_location TEXT NOT NULL,
    previous_metadata_location TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (catalog_name, table_namespace, table_name)
);`
)

// Index DDL.
const (
	indexNamespacesParent = `CREATE INDEX IF NOT EXISTS idx_catalog_namespaces_parent ON catalog_namespaces(catalog_name, parent);`
)

// schemaStatements lists DDL in execution order.
var schemaStatements = []string{
	createNamespaces,
	createNamespaceProperties,
	createTables,
	indexNamespacesParent,
}
