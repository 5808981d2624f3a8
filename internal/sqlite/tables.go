package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// ListTables returns the tables in ns in creation order.
func (b *Backend) ListTables(ctx context.Context, ns types.Namespace) (*types.ListTablesResponse, error) {
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
		`SELECT table_name FROM catalog_tables WHERE catalog_name = ? AND table_namespace = ? ORDER BY rowid`,
		catalog, ns.Key())
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	out := []types.TableEntry{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, types.TableEntry{Namespace: ns.Clone(), Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return &types.ListTablesResponse{Identifiers: out}, nil
}

// TableExists returns nil if the table exists.
func (b *Backend) TableExists(ctx context.Context, ns types.Namespace, name string) error {
	_, err := b.LoadTable(ctx, ns, name)
	return err
}

// LoadTable returns the current pointer.
func (b *Backend) LoadTable(ctx context.Context, ns types.Namespace, name string) (*types.LoadTableResponse, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return nil, err
	}

	location, err := currentLocation(ctx, db, catalog, ns, name)
	if err != nil {
		return nil, err
	}
	return &types.LoadTableResponse{MetadataLocation: location}, nil
}

// CreateTable inserts a pointer row. The request must carry the initial
// metadata location.
func (b *Backend) CreateTable(ctx context.Context, ns types.Namespace, req types.CreateTableRequest) (*types.LoadTableResponse, error) {
	if req.Name == "" || req.MetadataLocation == "" {
		return nil, fmt.Errorf("%w: create needs a name and a metadata location", types.ErrInvalidRequest)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ok, err := namespaceExists(ctx, tx, catalog, ns.Key())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: namespace %s", types.ErrNotFound, ns)
	}
	_, err = currentLocation(ctx, tx, catalog, ns, req.Name)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: table %s.%s", types.ErrAlreadyExists, ns, req.Name)
	case !isNotFound(err):
		return nil, err
	}
	if err := types.CheckRequirements(req.Requirements, false, ""); err != nil {
		return nil, err
	}

	now := b.timestamp()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO catalog_tables (catalog_name, table_namespace, table_name, metadata_location, previous_metadata_location, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		catalog, ns.Key(), req.Name, req.MetadataLocation, now, now); err != nil {
		return nil, fmt.Errorf("insert table: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &types.LoadTableResponse{MetadataLocation: req.MetadataLocation}, nil
}

// UpdateTable swaps the pointer when the requirements hold. The UPDATE is
// conditional on the expected location, so a writer in another process that
// got there first leaves zero rows affected and the commit fails with
// ErrCommitConflict.
func (b *Backend) UpdateTable(ctx context.Context, ns types.Namespace, name string, req types.CommitTableRequest) (*types.CommitTableResponse, error) {
	next, err := types.PointerFromUpdates(req.Updates)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := currentLocation(ctx, tx, catalog, ns, name)
	if err != nil {
		return nil, err
	}
	if err := types.CheckRequirements(req.Requirements, true, current); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE catalog_tables SET metadata_location = ?, previous_metadata_location = ?, updated_at = ?
		 WHERE catalog_name = ? AND table_namespace = ? AND table_name = ? AND metadata_location = ?`,
		next, current, b.timestamp(), catalog, ns.Key(), name, current)
	if err != nil {
		return nil, fmt.Errorf("update table: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update table: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: table %s.%s was updated by another process", types.ErrCommitConflict, ns, name)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &types.CommitTableResponse{MetadataLocation: next}, nil
}

// DropTable deletes the pointer row. Metadata files are not touched even
// when purge is set; the service does not own the object store.
func (b *Backend) DropTable(ctx context.Context, ns types.Namespace, name string, _ bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx,
		`DELETE FROM catalog_tables WHERE catalog_name = ? AND table_namespace = ? AND table_name = ?`,
		catalog, ns.Key(), name)
	if err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: table %s.%s", types.ErrNotFound, ns, name)
	}
	return nil
}

// RenameTable moves a pointer row to a new identifier.
func (b *Backend) RenameTable(ctx context.Context, from, to types.TableIdentifier) error {
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

	if _, err := currentLocation(ctx, tx, catalog, from.Namespace, from.Name); err != nil {
		return err
	}
	ok, err := namespaceExists(ctx, tx, catalog, to.Namespace.Key())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: namespace %s", types.ErrNotFound, to.Namespace)
	}
	_, err = currentLocation(ctx, tx, catalog, to.Namespace, to.Name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: table %s", types.ErrAlreadyExists, to)
	case !isNotFound(err):
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE catalog_tables SET table_namespace = ?, table_name = ?, updated_at = ?
		 WHERE catalog_name = ? AND table_namespace = ? AND table_name = ?`,
		to.Namespace.Key(), to.Name, b.timestamp(), catalog, from.Namespace.Key(), from.Name); err != nil {
		return fmt.Errorf("rename table: %w", err)
	}
	return tx.Commit()
}

// PreviousLocation returns the pointer the table had before its last
// commit, or "" if it has not been committed since creation.
func (b *Backend) PreviousLocation(ctx context.Context, ns types.Namespace, name string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, catalog, err := b.conn()
	if err != nil {
		return "", err
	}

	var prev sql.NullString
	err = db.QueryRowContext(ctx,
		`SELECT previous_metadata_location FROM catalog_tables WHERE catalog_name = ? AND table_namespace = ? AND table_name = ?`,
		catalog, ns.Key(), name).Scan(&prev)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: table %s.%s", types.ErrNotFound, ns, name)
	}
	if err != nil {
		return "", fmt.Errorf("query table: %w", err)
	}
	return prev.String, nil
}

func currentLocation(ctx context.Context, q querier, catalog string, ns types.Namespace, name string) (string, error) {
	var location string
	err := q.QueryRowContext(ctx,
		`SELECT metadata_location FROM catalog_tables WHERE catalog_name = ? AND table_namespace = ? AND table_name = ?`,
		catalog, ns.Key(), name).Scan(&location)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: table %s.%s", types.ErrNotFound, ns, name)
	}
	if err != nil {
		return "", fmt.Errorf("query table: %w", err)
	}
	return location, nil
}
