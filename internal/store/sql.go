package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const deliveryColumns = `id, method, pathname, ip, status_code, content_type, content_length, query_params, headers, body, created_at`

// dialect captures what differs between the SQL backends.
type dialect struct {
	name     string
	schema   string
	numbered bool // $1, $2 placeholders instead of ?
}

// SQLStore is a Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("%s: init schema: %w", d.name, err)
	}
	return s, nil
}

func (s *SQLStore) init() error {
	_, err := s.db.Exec(s.dialect.schema)
	return err
}

// rebind rewrites ? placeholders for dialects that number them.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Put(ctx context.Context, d *Delivery) error {
	r, err := toRow(d)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`), r.args()...)
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert delivery %s: %w", r.ID, err)
	}
	if n == 1 {
		return nil
	}

	existing, err := s.Get(ctx, d.ID)
	if err != nil {
		return err
	}
	if !existing.Equal(d) {
		return fmt.Errorf("%w %s", ErrConflict, r.ID)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	var r row
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE id = ?
	`), id.String()).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery %s: %w", id, err)
	}
	return r.delivery()
}

func (s *SQLStore) Scan(ctx context.Context, after uuid.UUID, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`), after.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("scan deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]*Delivery, 0, limit)
	for rows.Next() {
		var r row
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan deliveries: %w", err)
		}
		d, err := r.delivery()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan deliveries: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM deliveries")
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
