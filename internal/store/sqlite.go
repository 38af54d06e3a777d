package store

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id TEXT PRIMARY KEY,
	method TEXT NOT NULL,
	pathname TEXT NOT NULL,
	ip TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	content_type BLOB,
	content_length INTEGER,
	query_params TEXT,
	headers TEXT,
	body BLOB,
	created_at INTEGER NOT NULL
);

CREATE TRIGGER IF NOT EXISTS trg_deliveries_no_update
BEFORE UPDATE ON deliveries
BEGIN
	SELECT RAISE(ABORT, 'deliveries are append-only: UPDATE forbidden');
END;
`

// sqlitePragmas are applied when the DSN carries no query of its own.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"

// NewSQLiteStore opens (or creates) the SQLite database at dsn.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?" + sqlitePragmas
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s, err := newSQLStore(db, dialect{name: "sqlite", schema: sqliteSchema})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
