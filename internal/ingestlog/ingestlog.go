// Package ingestlog keeps an append-only audit trail of ingest runs in a
// store table, one row per uploaded file.
package ingestlog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pfinance-dev/pfinance/internal/store"
)

// Entry is one row in the ingest log.
type Entry struct {
	Timestamp  time.Time
	RunID      string
	File       string
	Kind       string
	Status     string
	Added      int
	Duplicates int
	Skipped    int
	Filtered   int
	Details    string
}

// Header is the column list of the ingest log table.
const Header = "timestamp,run_id,file,kind,status,added,duplicates,skipped,filtered,details"

const (
	numFields     = 10
	colTimestamp  = 0
	colRunID      = 1
	colFile       = 2
	colKind       = 3
	colStatus     = 4
	colAdded      = 5
	colDuplicates = 6
	colSkipped    = 7
	colFiltered   = 8
	colDetails    = 9
)

// appendAttempts bounds retries when another writer saved in between.
const appendAttempts = 3

// NewRunID returns an identifier shared by every entry of one ingest run.
func NewRunID() string {
	return uuid.NewString()
}

// MarshalEntry converts an Entry to a table row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colRunID] = e.RunID
	row[colFile] = e.File
	row[colKind] = e.Kind
	row[colStatus] = e.Status
	row[colAdded] = strconv.Itoa(e.Added)
	row[colDuplicates] = strconv.Itoa(e.Duplicates)
	row[colSkipped] = strconv.Itoa(e.Skipped)
	row[colFiltered] = strconv.Itoa(e.Filtered)
	row[colDetails] = e.Details
	return row
}

// UnmarshalEntry converts a table row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	counts := make([]int, 4)
	for i, col := range []int{colAdded, colDuplicates, colSkipped, colFiltered} {
		if record[col] == "" {
			continue
		}
		n, err := strconv.Atoi(record[col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[col], err)
		}
		counts[i] = n
	}

	return Entry{
		Timestamp:  ts,
		RunID:      record[colRunID],
		File:       record[colFile],
		Kind:       record[colKind],
		Status:     record[colStatus],
		Added:      counts[0],
		Duplicates: counts[1],
		Skipped:    counts[2],
		Filtered:   counts[3],
		Details:    record[colDetails],
	}, nil
}

// Log reads and appends to the ingest log table.
type Log struct {
	store store.Store
	table string
}

// New creates a Log over the named table.
func New(st store.Store, table string) *Log {
	return &Log{store: st, table: table}
}

// Append adds entries to the table, creating it with a header if needed.
func (l *Log) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var err error
	for range appendAttempts {
		if err = l.append(ctx, entries); !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return err
}

func (l *Log) append(ctx context.Context, entries []Entry) error {
	t, err := l.store.Load(ctx, l.table)
	if err != nil {
		return fmt.Errorf("loading ingest log: %w", err)
	}
	if len(t.Columns) == 0 {
		t.Columns = strings.Split(Header, ",")
	} else if strings.Join(t.Columns, ",") != Header {
		return fmt.Errorf("ingest log %s: unexpected header %q", l.table, strings.Join(t.Columns, ","))
	}
	for _, e := range entries {
		t.Rows = append(t.Rows, MarshalEntry(e))
	}
	if err := l.store.Save(ctx, l.table, t); err != nil {
		return fmt.Errorf("saving ingest log: %w", err)
	}
	return nil
}

// Read returns all entries, oldest first. A missing table yields none.
func (l *Log) Read(ctx context.Context) ([]Entry, error) {
	t, err := l.store.Load(ctx, l.table)
	if err != nil {
		return nil, fmt.Errorf("loading ingest log: %w", err)
	}

	var entries []Entry
	for i, rec := range t.Rows {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Run returns the entries recorded under runID.
func (l *Log) Run(ctx context.Context, runID string) ([]Entry, error) {
	all, err := l.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}
