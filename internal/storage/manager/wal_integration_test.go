package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joydb/joydb/internal/domain/data"
	"github.com/joydb/joydb/internal/domain/schema"
	"github.com/joydb/joydb/internal/storage/writer"
)

// createTestDatabase builds an in-memory database with a single "users"
// table (id int PK, name text) rooted at basePath/name. The directories
// are created on disk but no JSON files are written yet.
func createTestDatabase(t *testing.T, basePath, name string) *schema.Database {
	t.Helper()

	dbPath := filepath.Join(basePath, name)
	tablePath := filepath.Join(dbPath, "users")
	if err := os.MkdirAll(tablePath, 0755); err != nil {
		t.Fatalf("failed to create table dir: %v", err)
	}

	table := &schema.Table{
		Name: "users",
		Path: tablePath,
		Schema: &schema.TableSchema{
			TableName: "users",
			Columns: []schema.Column{
				{Name: "id", Type: schema.ColumnTypeInt, PrimaryKey: true},
				{Name: "name", Type: schema.ColumnTypeText},
			},
		},
		Indexes: map[string]*data.Index{"id": data.NewIndex("id", true)},
	}

	return &schema.Database{
		Name:   name,
		Path:   dbPath,
		Tables: map[string]*schema.Table{"users": table},
	}
}

func createTestRow(id int64, name string) data.Row {
	return data.Row{Data: map[string]interface{}{"id": id, "name": name}}
}

func TestWALManagerCreate(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewWALManager(dir, "testdb", true)
	if err != nil {
		t.Fatalf("NewWALManager: %v", err)
	}
	defer mgr.Close()

	if !mgr.IsEnabled() {
		t.Fatalf("expected WAL manager to be enabled")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one WAL segment file, got %d", len(entries))
	}
}

func TestWALManagerDisabled(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewWALManager(dir, "testdb", false)
	if err != nil {
		t.Fatalf("NewWALManager: %v", err)
	}

	if mgr.IsEnabled() {
		t.Fatalf("expected WAL manager to be disabled")
	}

	db := createTestDatabase(t, dir, "testdb")
	if err := mgr.Insert(db.Tables["users"], createTestRow(1, "ada")); err != nil {
		t.Fatalf("Insert on disabled manager should be a no-op, got: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 { // only the database dir created by createTestDatabase
		t.Fatalf("expected no WAL file to be created, found %d entries", len(entries))
	}
}

func TestWALManagerInsertUpdateDelete(t *testing.T) {
	dir := t.TempDir()
	db := createTestDatabase(t, dir, "testdb")
	table := db.Tables["users"]

	mgr, err := NewWALManager(db.Path, "testdb", true)
	if err != nil {
		t.Fatalf("NewWALManager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Insert(table, createTestRow(1, "ada")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row after insert, got %d", len(table.Rows))
	}

	oldRow := table.Rows[0]
	newRow := createTestRow(1, "grace")
	if err := mgr.Update(table, oldRow, newRow); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if table.Rows[0].Data["name"] != "grace" {
		t.Fatalf("expected updated name grace, got %v", table.Rows[0].Data["name"])
	}

	if err := mgr.Delete(table, table.Rows[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(table.Rows) != 0 {
		t.Fatalf("expected table empty after delete, got %d rows", len(table.Rows))
	}
}

func TestWALManagerFullCycleRecovery(t *testing.T) {
	dir := t.TempDir()
	db := createTestDatabase(t, dir, "testdb")
	table := db.Tables["users"]

	mgr, err := NewWALManager(db.Path, "testdb", true)
	if err != nil {
		t.Fatalf("NewWALManager: %v", err)
	}
	if err := mgr.Insert(table, createTestRow(1, "ada")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen against a fresh, empty in-memory database and recover.
	freshDB := createTestDatabase(t, dir, "testdb")
	mgr2, err := NewWALManager(db.Path, "testdb", true)
	if err != nil {
		t.Fatalf("second NewWALManager: %v", err)
	}
	defer mgr2.Close()

	target := NewDatabaseReplayTarget(freshDB)
	result, err := mgr2.Recover(target)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if result.RowsReplayed != 1 {
		t.Fatalf("expected 1 row replayed, got %d", result.RowsReplayed)
	}
	if len(freshDB.Tables["users"].Rows) != 1 {
		t.Fatalf("expected replayed row in fresh database, got %d rows", len(freshDB.Tables["users"].Rows))
	}
	if freshDB.Tables["users"].Rows[0].Data["name"] != "ada" {
		t.Fatalf("unexpected replayed row: %v", freshDB.Tables["users"].Rows[0].Data)
	}
}

func TestReplayInsertUpdateDeleteToDatabase(t *testing.T) {
	dir := t.TempDir()
	db := createTestDatabase(t, dir, "testdb")
	target := NewDatabaseReplayTarget(db)

	if err := target.ReplayInsert("users", createTestRow(1, "ada")); err != nil {
		t.Fatalf("ReplayInsert: %v", err)
	}
	if len(db.Tables["users"].Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(db.Tables["users"].Rows))
	}

	if err := target.ReplayUpdate("users", createTestRow(1, "bob")); err != nil {
		t.Fatalf("ReplayUpdate: %v", err)
	}
	if db.Tables["users"].Rows[0].Data["name"] != "bob" {
		t.Fatalf("expected updated name bob, got %v", db.Tables["users"].Rows[0].Data["name"])
	}

	if err := target.ReplayDelete("users", createTestRow(1, "bob")); err != nil {
		t.Fatalf("ReplayDelete: %v", err)
	}
	if len(db.Tables["users"].Rows) != 0 {
		t.Fatalf("expected empty table after replay delete, got %d rows", len(db.Tables["users"].Rows))
	}
}

func TestReplayMissingTableIsGraceful(t *testing.T) {
	dir := t.TempDir()
	db := createTestDatabase(t, dir, "testdb")
	target := NewDatabaseReplayTarget(db)

	if err := target.ReplayInsert("nonexistent", createTestRow(1, "ada")); err != nil {
		t.Fatalf("expected graceful skip for missing table, got error: %v", err)
	}
}

func TestRegistryGetWithWAL(t *testing.T) {
	dir := t.TempDir()
	db := createTestDatabase(t, dir, "testdb")
	if err := writer.SaveDatabase(db); err != nil {
		t.Fatalf("seed database: %v", err)
	}

	reg := NewRegistryWithWAL(dir, true)
	loaded, walMgr, err := reg.GetWithWAL("testdb")
	if err != nil {
		t.Fatalf("GetWithWAL: %v", err)
	}
	defer reg.CloseAll()

	if loaded == nil {
		t.Fatalf("expected database to be returned")
	}
	if walMgr == nil || !walMgr.IsEnabled() {
		t.Fatalf("expected an enabled WAL manager")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	dir := t.TempDir()
	dbA := createTestDatabase(t, dir, "a")
	dbB := createTestDatabase(t, dir, "b")
	if err := writer.SaveDatabase(dbA); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if err := writer.SaveDatabase(dbB); err != nil {
		t.Fatalf("seed b: %v", err)
	}

	reg := NewRegistryWithWAL(dir, true)
	if _, _, err := reg.GetWithWAL("a"); err != nil {
		t.Fatalf("GetWithWAL a: %v", err)
	}
	if _, _, err := reg.GetWithWAL("b"); err != nil {
		t.Fatalf("GetWithWAL b: %v", err)
	}

	reg.CloseAll() // must not panic
}
