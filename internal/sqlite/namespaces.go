package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// ListNamespaces returns the direct children of parent in creation order.
func (b *Backend) ListNamespaces(ctx context.Context, parent types.Namespace) (*types.ListNamespacesResponse, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return nil, err
	}

	if len(parent) > 0 {
		ok, err := namespaceExists(ctx, db, catalog, parent.Key())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: namespace %s", types.ErrNotFound, parent)
		}
	}

	rows, err := db.QueryContext(ctx,
		`SELECT namespace FROM catalog_namespaces WHERE catalog_name = ? AND parent = ? ORDER BY rowid`,
		catalog, parent.Key())
	if err != nil {
		return nil, fmt.Errorf("query namespaces: %w", err)
	}
	defer rows.Close()

	out := [][]string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		ns, err := types.NamespaceFromKey(key)
		if err != nil {
			return nil, fmt.Errorf("decode namespace %q: %w", key, err)
		}
		out = append(out, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate namespaces: %w", err)
	}
	return &types.ListNamespacesResponse{Namespaces: out}, nil
}

// CreateNamespace inserts ns and its properties. Multi-level namespaces need
// an existing parent.
func (b *Backend) CreateNamespace(ctx context.Context, ns types.Namespace, props map[string]string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	key := ns.Key()
	ok, err := namespaceExists(ctx, tx, catalog, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: namespace %s", types.ErrAlreadyExists, ns)
	}
	parent := ns.Parent()
	if parent != nil {
		ok, err := namespaceExists(ctx, tx, catalog, parent.Key())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: parent namespace %s", types.ErrNotFound, parent)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO catalog_namespaces (catalog_name, namespace, parent, created_at) VALUES (?, ?, ?, ?)`,
		catalog, key, parent.Key(), b.timestamp()); err != nil {
		return fmt.Errorf("insert namespace: %w", err)
	}
	for k, v := range props {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_namespace_properties (catalog_name, namespace, property_key, property_value) VALUES (?, ?, ?, ?)`,
			catalog, key, k, v); err != nil {
			return fmt.Errorf("insert namespace property %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// DropNamespace removes an empty namespace and its properties.
func (b *Backend) DropNamespace(ctx context.Context, ns types.Namespace) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	key := ns.Key()
	ok, err := namespaceExists(ctx, tx, catalog, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: namespace %s", types.ErrNotFound, ns)
	}

	var children, tables int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_namespaces WHERE catalog_name = ? AND parent = ?`,
		catalog, key).Scan(&children); err != nil {
		return fmt.Errorf("count child namespaces: %w", err)
	}
	if children > 0 {
		return fmt.Errorf("%w: namespace %s has child namespaces", types.ErrInvalidRequest, ns)
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_tables WHERE catalog_name = ? AND table_namespace = ?`,
		catalog, key).Scan(&tables); err != nil {
		return fmt.Errorf("count tables: %w", err)
	}
	if tables > 0 {
		return fmt.Errorf("%w: namespace %s is not empty", types.ErrInvalidRequest, ns)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM catalog_namespace_properties WHERE catalog_name = ? AND namespace = ?`,
		catalog, key); err != nil {
		return fmt.Errorf("delete namespace properties: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM catalog_namespaces WHERE catalog_name = ? AND namespace = ?`,
		catalog, key); err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}
	return tx.Commit()
}

// NamespaceProperties returns the properties stored with ns.
func (b *Backend) NamespaceProperties(ctx context.Context, ns types.Namespace) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return nil, err
	}

	ok, err := namespaceExists(ctx, db, catalog, ns.Key())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: namespace %s", types.ErrNotFound, ns)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT property_key, property_value FROM catalog_namespace_properties WHERE catalog_name = ? AND namespace = ?`,
		catalog, ns.Key())
	if err != nil {
		return nil, fmt.Errorf("query namespace properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan namespace property: %w", err)
		}
		props[k] = v
	}
	return props, rows.Err()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func namespaceExists(ctx context.Context, q querier, catalog, key string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM catalog_namespaces WHERE catalog_name = ? AND namespace = ?`,
		catalog, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query namespace: %w", err)
	}
	return true, nil
}
