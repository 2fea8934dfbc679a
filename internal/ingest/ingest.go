// Package ingest runs uploaded statement files through the parsers and
// merges their transactions into the ledger, one file at a time.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfinance-dev/pfinance/internal/importer"
	"github.com/pfinance-dev/pfinance/internal/ingestlog"
	"github.com/pfinance-dev/pfinance/internal/ledger"
	"github.com/pfinance-dev/pfinance/internal/logger"
	"github.com/pfinance-dev/pfinance/internal/metrics"
	"github.com/pfinance-dev/pfinance/internal/model"
)

// Upload is one file handed to Ingest.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileUpload reads the file at path.
func FileUpload(path string) Upload {
	return Upload{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// BytesUpload serves data under name.
func BytesUpload(name string, data []byte) Upload {
	return Upload{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// Status is the outcome of one file.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FileOutcome reports what happened to one upload.
type FileOutcome struct {
	Name       string
	Kind       importer.Kind
	Status     Status
	Added      int
	Duplicates int
	Skipped    int
	Filtered   int
	Skips      []importer.Skip
	Warnings   []string
	Err        error
}

// Detail is a one-line description of the outcome's error and warnings.
func (o FileOutcome) Detail() string {
	var parts []string
	if o.Err != nil {
		parts = append(parts, o.Err.Error())
	}
	parts = append(parts, o.Warnings...)
	return strings.Join(parts, "; ")
}

// Summary reports a whole ingest run.
type Summary struct {
	RunID  string
	Files  []FileOutcome
	Before int // ledger rows before the run
	After  int // ledger rows after the last successful save
}

// Added returns the number of rows added across all files.
func (s *Summary) Added() int {
	n := 0
	for _, f := range s.Files {
		n += f.Added
	}
	return n
}

// Failed returns the number of files that failed.
func (s *Summary) Failed() int {
	n := 0
	for _, f := range s.Files {
		if f.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Options configures a Service. Log and Metrics are optional.
type Options struct {
	Detector        importer.Detector
	SnapshotPath    string
	CredentialsPath string
	Log             *ingestlog.Log
	Metrics         *metrics.Metrics
}

// Service assembles the ledger from uploads.
type Service struct {
	ledger   *ledger.Service
	registry *importer.Registry
	opts     Options
	now      func() time.Time
}

// NewService creates an ingest Service.
func NewService(led *ledger.Service, reg *importer.Registry, opts Options) *Service {
	return &Service{ledger: led, registry: reg, opts: opts, now: time.Now}
}

// errStorage marks failures that must abort the batch.
type errStorage struct{ err error }

func (e *errStorage) Error() string { return e.err.Error() }
func (e *errStorage) Unwrap() error { return e.err }

// Ingest processes uploads in order. A file that fails to parse is recorded
// and the loop moves on; rows persisted for earlier files stay. A storage
// error stops the batch and is returned with the partial summary.
func (s *Service) Ingest(ctx context.Context, uploads []Upload) (*Summary, error) {
	log := logger.FromContext(ctx)
	sum := &Summary{RunID: ingestlog.NewRunID()}
	ctx = logger.WithContext(ctx, log.With().Str("run_id", sum.RunID).Logger())

	l, err := s.ledger.Load(ctx)
	if err != nil {
		return sum, err
	}
	sum.Before = len(l.Transactions)
	sum.After = sum.Before

	var runErr error
	for _, up := range uploads {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		out := s.ingestFile(ctx, l, up)
		sum.Files = append(sum.Files, out)
		s.observe(out)

		var se *errStorage
		if errors.As(out.Err, &se) {
			runErr = fmt.Errorf("ingesting %s: %w", up.Name, se.err)
			break
		}
		sum.After = len(l.Transactions)
	}

	s.record(ctx, sum)
	return sum, runErr
}

func (s *Service) ingestFile(ctx context.Context, l *ledger.Ledger, up Upload) FileOutcome {
	log := logger.FromContext(ctx).With().Str("file", up.Name).Logger()
	kind := s.opts.Detector.Detect(up.Name)
	out := FileOutcome{Name: up.Name, Kind: kind}

	switch {
	case kind == importer.KindUnknown:
		out.Status = StatusSkipped
		out.Err = fmt.Errorf("unrecognized file %q", up.Name)
	case kind.Maintenance():
		s.copyMaintenance(up, &out)
	default:
		s.parseFile(ctx, l, up, &out)
	}

	ev := log.Info()
	if out.Status == StatusFailed {
		ev = log.Error().Err(out.Err)
	} else if out.Err != nil {
		ev = log.Warn().Err(out.Err)
	}
	ev.Str("kind", kindLabel(kind)).
		Str("status", string(out.Status)).
		Int("added", out.Added).
		Int("duplicates", out.Duplicates).
		Int("skipped", out.Skipped).
		Int("filtered", out.Filtered).
		Msg("file processed")
	return out
}

func (s *Service) copyMaintenance(up Upload, out *FileOutcome) {
	dst := s.opts.SnapshotPath
	if out.Kind == importer.KindCredentials {
		dst = s.opts.CredentialsPath
	}
	if dst == "" {
		out.Status = StatusSkipped
		out.Err = fmt.Errorf("no destination configured for %s files", out.Kind)
		return
	}

	rc, err := up.Open()
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("opening %s: %w", up.Name, err)
		return
	}
	defer rc.Close()

	if _, err := importer.CopyVerbatim(rc, dst); err != nil {
		out.Status = StatusFailed
		out.Err = err
		return
	}
	out.Status = StatusOK
}

func (s *Service) parseFile(ctx context.Context, l *ledger.Ledger, up Upload, out *FileOutcome) {
	p := s.registry.Get(out.Kind)
	if p == nil {
		out.Status = StatusSkipped
		out.Err = fmt.Errorf("no parser for %s files", out.Kind)
		return
	}

	rc, err := up.Open()
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("opening %s: %w", up.Name, err)
		return
	}
	res, err := p.Parse(ctx, rc)
	rc.Close()
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return
	}

	out.Skips = res.Skipped
	out.Skipped = len(res.Skipped)
	out.Filtered = res.Filtered
	out.Warnings = res.Warnings

	parsed := ledger.DedupeByID(res.Transactions)
	repeated := len(res.Transactions) - len(parsed)
	if verrs := ledger.Validate(parsed); len(verrs) > 0 {
		parsed = dropInvalid(parsed, verrs, out)
	}

	before := len(l.Transactions)
	merged := ledger.Merge(l.Transactions, parsed)
	out.Added = len(merged) - before
	out.Duplicates = len(parsed) - out.Added + repeated
	out.Status = StatusOK
	if out.Added == 0 {
		return
	}

	prev := l.Transactions
	l.Transactions = merged
	if err := s.ledger.Save(ctx, l); err != nil {
		l.Transactions = prev
		out.Added = 0
		out.Status = StatusFailed
		out.Err = &errStorage{err: err}
		return
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.LedgerRows.Set(float64(len(l.Transactions)))
	}
}

// dropInvalid removes rows that would poison the ledger and records them as
// skipped.
func dropInvalid(txns []model.Transaction, verrs []ledger.ValidationError, out *FileOutcome) []model.Transaction {
	bad := make(map[string]error, len(verrs))
	for _, ve := range verrs {
		bad[ve.TxnID] = ve
	}
	kept := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		err, ok := bad[t.ID]
		if t.ID == "" {
			err, ok = errors.New("missing id"), true
		}
		if ok {
			out.Skips = append(out.Skips, importer.Skip{Record: t.Name, Reason: err})
			out.Skipped++
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

func kindLabel(k importer.Kind) string {
	if k == importer.KindUnknown {
		return "unknown"
	}
	return string(k)
}

func (s *Service) observe(out FileOutcome) {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	kind := kindLabel(out.Kind)
	m.FilesIngested.WithLabelValues(kind, string(out.Status)).Inc()
	m.Transactions.WithLabelValues(kind, "added").Add(float64(out.Added))
	m.Transactions.WithLabelValues(kind, "duplicate").Add(float64(out.Duplicates))
	m.Transactions.WithLabelValues(kind, "skipped").Add(float64(out.Skipped))
	m.Transactions.WithLabelValues(kind, "filtered").Add(float64(out.Filtered))
}

// record appends the run to the ingest log. A failure here is logged, not
// returned: the ledger is already saved.
func (s *Service) record(ctx context.Context, sum *Summary) {
	if s.opts.Log == nil || len(sum.Files) == 0 {
		return
	}
	ts := s.now()
	entries := make([]ingestlog.Entry, len(sum.Files))
	for i, f := range sum.Files {
		entries[i] = ingestlog.Entry{
			Timestamp:  ts,
			RunID:      sum.RunID,
			File:       f.Name,
			Kind:       kindLabel(f.Kind),
			Status:     string(f.Status),
			Added:      f.Added,
			Duplicates: f.Duplicates,
			Skipped:    f.Skipped,
			Filtered:   f.Filtered,
			Details:    f.Detail(),
		}
	}
	if err := s.opts.Log.Append(ctx, entries); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("ingest log not written")
	}
}
