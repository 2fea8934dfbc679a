// Package csvfile stores each table as <dir>/<name>.csv.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pfinance-dev/pfinance/internal/store"
)

// Store is a directory of CSV tables.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a Store rooted at dir. The directory is created on first Save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// Load reads <dir>/<name>.csv. A missing file is an empty table.
func (s *Store) Load(_ context.Context, name string) (*store.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(name)
}

// load reads name, first putting back a .bak left by a save interrupted
// between moving the original aside and swapping the new file in.
func (s *Store) load(name string) (*store.Table, error) {
	final := s.path(name)
	if _, err := os.Stat(final); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(final+".bak", final); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("restoring backup of %s: %w", name, err)
		}
	}

	f, err := os.Open(final)
	if errors.Is(err, fs.ErrNotExist) {
		return &store.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return t, nil
}

// Save replaces <dir>/<name>.csv. The new contents are staged to a temp file,
// the old file is kept as .bak until the swap succeeds, and restored if it
// does not.
func (s *Store) Save(_ context.Context, name string, t *store.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(name)
	if err != nil {
		return err
	}
	if current.Version != t.Version {
		return fmt.Errorf("saving %s: %w", name, store.ErrConflict)
	}

	if err := store.Normalize(t); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}

	final := s.path(name)
	tmp := final + ".tmp"
	bak := final + ".bak"

	if err := writeFile(tmp, t); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("staging %s: %w", name, err)
	}

	hadOriginal := current.Version != ""
	if hadOriginal {
		if err := os.Rename(final, bak); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("backing up %s: %w", name, err)
		}
	}

	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		if hadOriginal {
			if rerr := os.Rename(bak, final); rerr != nil {
				return fmt.Errorf("replacing %s: %w (restore failed: %v)", name, err, rerr)
			}
		}
		return fmt.Errorf("replacing %s: %w", name, err)
	}

	if hadOriginal {
		_ = os.Remove(bak)
	}
	t.Version = store.Fingerprint(t.Columns, t.Rows)
	return nil
}

func writeFile(path string, t *store.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTable(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadTable parses a CSV stream whose first record is the header.
func ReadTable(r io.Reader) (*store.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return &store.Table{Version: store.Fingerprint(nil, nil)}, nil
	}

	t := &store.Table{Columns: records[0]}
	for i, rec := range records[1:] {
		if len(rec) > len(t.Columns) {
			return nil, fmt.Errorf("row %d: expected at most %d fields, got %d", i+2, len(t.Columns), len(rec))
		}
		row := make([]string, len(t.Columns))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	t.Version = store.Fingerprint(t.Columns, t.Rows)
	return t, nil
}

// WriteTable writes the header and rows of t as CSV.
func WriteTable(w io.Writer, t *store.Table) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
