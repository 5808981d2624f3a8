// Package sqlite implements an embedded catalog service on SQLite. It stores
// namespaces and one metadata pointer per table, and enforces the commit
// precondition with a conditional UPDATE so that concurrent processes
// sharing the database file cannot overwrite each other's commits.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/icecat/internal/paths"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

var _ types.Transport = (*Backend)(nil)

// Config selects where the database lives and which catalog's rows the
// backend serves. Several catalogs may share one database file.
type Config struct {
	DataDir     string
	CatalogName string
}

// Backend implements types.Transport over a SQLite database.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   Config
	db       *sql.DB
	now      func() time.Time
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{now: time.Now}
}

// Attach opens (creating if needed) the database under DataDir and applies
// the schema. Existing catalog rows are kept.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if config.CatalogName == "" {
		config.CatalogName = types.DefaultCatalogName
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	dbPath := paths.CatalogDB(dataDir)
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// One connection serializes in-process writers; other processes are
	// handled by busy_timeout and the conditional UPDATE.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true
	return nil
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// Path returns the database file path, or "" when detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return ""
	}
	return paths.CatalogDB(b.config.DataDir)
}

// conn returns the open database and catalog name, or ErrDetached.
// The caller must hold b.mu.
func (b *Backend) conn() (*sql.DB, string, error) {
	if !b.attached {
		return nil, "", types.ErrDetached
	}
	return b.db, b.config.CatalogName, nil
}

func (b *Backend) timestamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
