package schema

// Database represents a single database on disk: a directory holding one
// subdirectory per table.
type Database struct {
	Name   string
	Path   string // filesystem path to the database directory
	Tables map[string]*Table
}

// BuildDatabaseIndexes (re)builds the secondary indexes for every table of db from
// its current rows, based on which columns are marked Unique or PrimaryKey
// in the schema.
func BuildDatabaseIndexes(db *Database) error {
	for _, table := range db.Tables {
		if err := table.BuildIndexes(); err != nil {
			return err
		}
	}
	return nil
}
