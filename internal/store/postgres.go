package store

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// The uuid column type keeps byte order, so ORDER BY id follows identifier order
// regardless of the database collation.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id UUID PRIMARY KEY,
	method TEXT NOT NULL,
	pathname TEXT NOT NULL,
	ip TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	content_type BYTEA,
	content_length BIGINT,
	query_params TEXT,
	headers TEXT,
	body BYTEA,
	created_at BIGINT NOT NULL
);

CREATE OR REPLACE FUNCTION deliveries_no_update() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'deliveries are append-only: UPDATE forbidden';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_deliveries_no_update ON deliveries;
CREATE TRIGGER trg_deliveries_no_update
BEFORE UPDATE ON deliveries
FOR EACH ROW EXECUTE FUNCTION deliveries_no_update();
`

// NewPostgresStore connects to the Postgres database at dsn.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s, err := newSQLStore(db, dialect{name: "postgres", schema: postgresSchema, numbered: true})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
