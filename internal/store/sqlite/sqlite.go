// Package sqlite keeps each logical table as a SQLite table of TEXT columns.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pfinance-dev/pfinance/internal/store"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS table_versions (
		name    TEXT PRIMARY KEY,
		version INTEGER NOT NULL
	)`,
}

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func quote(ident string) (string, error) {
	if !identRe.MatchString(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}

// Load returns the named table. A missing table is empty.
func (s *Store) Load(ctx context.Context, name string) (*store.Table, error) {
	q, err := quote(name)
	if err != nil {
		return nil, err
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", name, err)
	}
	if exists == 0 {
		return &store.Table{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+q+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", name, err)
	}

	t := &store.Table{Columns: cols}
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		row := make([]string, len(cols))
		for i, c := range cells {
			row[i] = c.String
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", name, err)
	}

	v, err := version(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	t.Version = v
	return t, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func version(ctx context.Context, q queryer, name string) (string, error) {
	var v int64
	err := q.QueryRowContext(ctx, `SELECT version FROM table_versions WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("version of %s: %w", name, err)
	}
	return strconv.FormatInt(v, 10), nil
}

// Save replaces the named table inside one transaction; a failure rolls the
// previous contents back.
func (s *Store) Save(ctx context.Context, name string, t *store.Table) error {
	q, err := quote(name)
	if err != nil {
		return err
	}
	colDefs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		qc, err := quote(c)
		if err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		colDefs[i] = qc + " TEXT"
	}
	if len(colDefs) == 0 {
		return fmt.Errorf("table %s: no columns", name)
	}
	if err := store.Normalize(t); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := version(ctx, tx, name)
	if err != nil {
		return err
	}
	if current != t.Version {
		return fmt.Errorf("saving %s: %w", name, store.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+q); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE `+q+` (`+strings.Join(colDefs, ", ")+`)`); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+q+` VALUES (`+placeholders+`)`)
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", name, err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		args := make([]any, len(row))
		for j, c := range row {
			args[j] = c
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", name, i+1, err)
		}
	}

	var next int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO table_versions (name, version) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET version = version + 1
		RETURNING version`, name).Scan(&next)
	if err != nil {
		return fmt.Errorf("bump version %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	t.Version = strconv.FormatInt(next, 10)
	return nil
}
