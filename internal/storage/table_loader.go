package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joydb/joydb/internal/domain/data"
	"github.com/joydb/joydb/internal/domain/schema"
	"github.com/joydb/joydb/internal/storage/metadata"
)

// LoadTable reads a table's meta.json and data.json (if present) from path.
func LoadTable(path string, logger *slog.Logger) (*schema.Table, error) {
	metaPath := filepath.Join(path, "meta.json")
	dataPath := filepath.Join(path, "data.json")

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta metadata.TableMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, err
	}

	tableSchema := &schema.TableSchema{
		TableName: meta.Name,
		Columns:   make([]schema.Column, 0, len(meta.Columns)),
	}

	for _, c := range meta.Columns {
		tableSchema.Columns = append(tableSchema.Columns, schema.Column{
			Name:          c.Name,
			Type:          schema.ColumnType(c.Type),
			PrimaryKey:    c.PrimaryKey,
			Unique:        c.Unique,
			NotNull:       c.NotNull,
			AutoIncrement: c.AutoIncrement,
		})
	}

	rows := []data.Row{}
	if _, err := os.Stat(dataPath); err == nil {
		dataBytes, err := os.ReadFile(dataPath)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(dataBytes, &rows); err != nil {
			return nil, err
		}
	}

	table := &schema.Table{
		Name:         meta.Name,
		Path:         path,
		Schema:       tableSchema,
		Rows:         rows,
		Indexes:      make(map[string]*data.Index),
		LastInsertID: meta.LastInsertID,
	}
	logger.Info("table loaded",
		slog.String("table", table.Name),
		slog.Int("rows", len(rows)),
	)

	return table, nil
}
