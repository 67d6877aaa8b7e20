package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joydb/joydb/internal/domain/schema"
	"github.com/joydb/joydb/internal/storage/metadata"
)

// LoadDatabase loads the database rooted at dbPath: its meta.json and one
// table directory per entry.
func LoadDatabase(dbPath string, logger *slog.Logger) (*schema.Database, error) {
	metaPath := filepath.Join(dbPath, "meta.json")

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read database meta: %w", err)
	}

	var meta metadata.DatabaseMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse database meta: %w", err)
	}

	db := &schema.Database{
		Name:   meta.Name,
		Path:   dbPath,
		Tables: make(map[string]*schema.Table),
	}

	entries, err := os.ReadDir(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read database directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		tableName := entry.Name()
		tablePath := filepath.Join(dbPath, tableName)

		table, err := LoadTable(tablePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load table %s: %w", tableName, err)
		}

		db.Tables[table.Name] = table
	}

	logger.Info("database loaded",
		slog.String("name", db.Name),
		slog.String("path", dbPath),
		slog.Int("table_count", len(db.Tables)),
	)

	return db, nil
}
