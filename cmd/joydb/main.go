package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joydb/joydb/internal/domain/data"
	"github.com/joydb/joydb/internal/domain/schema"
	"github.com/joydb/joydb/internal/logging"
	"github.com/joydb/joydb/internal/storage/manager"
	"github.com/joydb/joydb/internal/storage/writer"
)

func main() {
	logger, closeFn := logging.SetupLogger()
	defer closeFn()
	slog.SetDefault(logger)

	basePath := "databases"
	if err := os.MkdirAll(basePath, 0755); err != nil {
		logger.Error("failed to create databases directory", "error", err)
		os.Exit(1)
	}

	if err := ensureSeeded(basePath, "demo"); err != nil {
		logger.Error("failed to seed demo database", "error", err)
		os.Exit(1)
	}

	registry := manager.NewRegistry(basePath)
	defer func() {
		logger.Info("shutting down - saving databases and checkpointing WAL")
		registry.SaveAll()
		registry.CloseAll()
	}()

	db, walMgr, err := registry.GetWithWAL("demo")
	if err != nil {
		logger.Error("failed to load demo database", "error", err)
		os.Exit(1)
	}

	usersTable := db.Tables["users"]

	for _, name := range []string{"ada", "grace"} {
		row := data.Row{Data: map[string]interface{}{"name": name}}
		if err := walMgr.Insert(usersTable, row); err != nil {
			logger.Error("WAL insert failed", "name", name, "error", err)
			continue
		}
		logger.Info("inserted user", "name", name)
	}

	logger.Info("application ready", "row_count", len(usersTable.Rows))
}

// ensureSeeded creates dbName under basePath with a single "users" table
// (id int PK auto-increment, name text) if it does not already exist.
func ensureSeeded(basePath, dbName string) error {
	dbPath := filepath.Join(basePath, dbName)
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		return nil
	}

	slog.Info("seeding database", "database", dbName)

	tablePath := filepath.Join(dbPath, "users")
	if err := os.MkdirAll(tablePath, 0755); err != nil {
		return err
	}

	table := &schema.Table{
		Name: "users",
		Path: tablePath,
		Schema: &schema.TableSchema{
			TableName: "users",
			Columns: []schema.Column{
				{Name: "id", Type: schema.ColumnTypeInt, PrimaryKey: true, AutoIncrement: true},
				{Name: "name", Type: schema.ColumnTypeText, NotNull: true},
			},
		},
		Indexes: map[string]*data.Index{"id": data.NewIndex("id", true)},
	}

	db := &schema.Database{Name: dbName, Path: dbPath, Tables: map[string]*schema.Table{"users": table}}
	return writer.SaveDatabase(db)
}
