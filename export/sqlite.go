package export

import (
	"database/sql"
	"fmt"

	// Blind import support for sqlite3.
	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens (and creates if needed) the sqlite DB file.
func OpenSQLite(file string) (*sql.DB, error) {
	db, err := sql.Open(DialectSQLite, file)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB %q: %w", file, err)
	}
	// sqlite only supports a single writer.
	db.SetMaxOpenConns(1)
	return db, nil
}
