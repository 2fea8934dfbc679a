// Package store defines the whole-table persistence contract shared by the
// ledger, the rule tables and the ingest log.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrConflict is returned by Save when the stored table changed after it was
// loaded.
var ErrConflict = errors.New("table changed since it was loaded")

// Table is a named grid of string cells with a header row.
type Table struct {
	Columns []string
	Rows    [][]string

	// Version is an opaque token set by Load. Save refuses to replace a
	// table whose current version differs. An absent table has version "".
	Version string
}

// Store loads and replaces whole tables.
type Store interface {
	// Load returns the named table, or an empty Table if it does not exist.
	Load(ctx context.Context, name string) (*Table, error)
	// Save replaces the named table. On failure the previous contents stay.
	Save(ctx context.Context, name string, t *Table) error
}

// Index returns the position of column name (case-insensitive), or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

// Cell returns row[col], or "" when col is out of range.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// Normalize pads every row to the header width. Rows wider than the header
// are an error.
func Normalize(t *Table) error {
	for i, r := range t.Rows {
		switch {
		case len(r) > len(t.Columns):
			return fmt.Errorf("row %d: expected at most %d fields, got %d", i+1, len(t.Columns), len(r))
		case len(r) < len(t.Columns):
			row := make([]string, len(t.Columns))
			copy(row, r)
			t.Rows[i] = row
		}
	}
	return nil
}

// Fingerprint hashes a table's header and cells into a version token.
func Fingerprint(columns []string, rows [][]string) string {
	h := sha256.New()
	writeRow := func(r []string) {
		for _, c := range r {
			h.Write([]byte(c))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	writeRow(columns)
	for _, r := range rows {
		writeRow(r)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Memory is an in-process Store, used by tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	tables map[string]*Table
	seq    int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*Table)}
}

// Load returns a copy of the named table.
func (m *Memory) Load(_ context.Context, name string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return &Table{}, nil
	}
	return clone(t), nil
}

// Save replaces the named table after checking its version.
func (m *Memory) Save(_ context.Context, name string, t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := ""
	if old, ok := m.tables[name]; ok {
		current = old.Version
	}
	if t.Version != current {
		return fmt.Errorf("saving %s: %w", name, ErrConflict)
	}
	m.seq++
	stored := clone(t)
	stored.Version = fmt.Sprintf("v%d", m.seq)
	m.tables[name] = stored
	t.Version = stored.Version
	return nil
}

func clone(t *Table) *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
		Version: t.Version,
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
