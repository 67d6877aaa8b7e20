package manager

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/joydb/joydb/internal/domain/schema"
	"github.com/joydb/joydb/internal/storage"
	"github.com/joydb/joydb/internal/storage/writer"
)

// Registry manages loaded databases in a thread-safe way.
type Registry struct {
	mu          sync.RWMutex
	loaded      map[string]*schema.Database
	walManagers map[string]*WALManager // Per-database WAL managers
	basePath    string
	walEnabled  bool // Whether WAL is enabled globally
}

// NewRegistry creates a new database registry with WAL enabled.
func NewRegistry(basePath string) *Registry {
	return NewRegistryWithWAL(basePath, true)
}

// NewRegistryWithWAL creates a new database registry with explicit WAL configuration.
func NewRegistryWithWAL(basePath string, walEnabled bool) *Registry {
	return &Registry{
		loaded:      make(map[string]*schema.Database),
		walManagers: make(map[string]*WALManager),
		basePath:    basePath,
		walEnabled:  walEnabled,
	}
}

// Get loads a database (or returns the cached one) and ensures its
// indexes are built.
// Deprecated: use GetWithWAL for access to the database's WAL manager.
func (r *Registry) Get(name string) (*schema.Database, error) {
	db, _, err := r.GetWithWAL(name)
	return db, err
}

// GetWithWAL loads a database with its WAL manager, performing WAL
// recovery first if any log segments remain from a previous run.
func (r *Registry) GetWithWAL(name string) (*schema.Database, *WALManager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.loaded[name]; ok {
		return db, r.walManagers[name], nil
	}

	dbPath := filepath.Join(r.basePath, name)
	db, err := storage.LoadDatabase(dbPath, slog.Default())
	if err != nil {
		return nil, nil, err
	}

	if err := schema.BuildDatabaseIndexes(db); err != nil {
		return nil, nil, fmt.Errorf("failed to build indexes: %w", err)
	}

	var walMgr *WALManager
	if r.walEnabled {
		walMgr, err = NewWALManager(dbPath, name, true)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WAL manager: %w", err)
		}

		target := NewDatabaseReplayTarget(db)
		result, recoverErr := walMgr.Recover(target)
		if recoverErr != nil {
			walMgr.Close()
			return nil, nil, fmt.Errorf("WAL recovery failed (refusing to start): %w", recoverErr)
		}

		if result != nil && result.RowsReplayed > 0 {
			slog.Info("WAL: replayed operations", "database", name, "rows", result.RowsReplayed)

			if err := schema.BuildDatabaseIndexes(db); err != nil {
				walMgr.Close()
				return nil, nil, fmt.Errorf("failed to rebuild indexes after WAL replay: %w", err)
			}
		}

		r.walManagers[name] = walMgr
	}

	r.loaded[name] = db
	return db, walMgr, nil
}

// Create creates a new database.
func (r *Registry) Create(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loaded[name]; ok {
		return fmt.Errorf("database '%s' already exists (loaded)", name)
	}

	return CreateDatabase(name, r.basePath)
}

// Drop unloads and deletes a database.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if walMgr, ok := r.walManagers[name]; ok {
		walMgr.Close()
		delete(r.walManagers, name)
	}

	delete(r.loaded, name)
	return DropDatabase(name, r.basePath)
}

// Rename saves, unloads, and renames a database.
func (r *Registry) Rename(oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if walMgr, ok := r.walManagers[oldName]; ok {
		walMgr.Close()
		delete(r.walManagers, oldName)
	}

	if db, ok := r.loaded[oldName]; ok {
		if err := writer.SaveDatabase(db); err != nil {
			return fmt.Errorf("failed to save database before rename: %w", err)
		}
		delete(r.loaded, oldName)
	}

	return RenameDatabase(oldName, newName, r.basePath)
}

// SaveAll saves every currently loaded database and writes a WAL
// checkpoint for each one that has a WAL manager.
func (r *Registry) SaveAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, db := range r.loaded {
		if err := writer.SaveDatabase(db); err != nil {
			slog.Error("failed to save database", "name", db.Name, "error", err)
			continue
		}

		if walMgr, ok := r.walManagers[name]; ok {
			if err := walMgr.WriteCheckpoint(); err != nil {
				slog.Error("failed to write checkpoint", "name", name, "error", err)
			}
		}
	}
}

// CloseAll closes every WAL manager (call on shutdown).
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, walMgr := range r.walManagers {
		if err := walMgr.Close(); err != nil {
			slog.Error("failed to close WAL manager", "name", name, "error", err)
		}
	}
	r.walManagers = make(map[string]*WALManager)
}

// List returns the names of all available databases.
func (r *Registry) List() ([]string, error) {
	return ListDatabases(r.basePath)
}

// IsWALEnabled returns whether WAL is enabled for this registry.
func (r *Registry) IsWALEnabled() bool {
	return r.walEnabled
}
