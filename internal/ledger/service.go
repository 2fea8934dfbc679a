package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pfinance-dev/pfinance/internal/id"
	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/money"
	"github.com/pfinance-dev/pfinance/internal/store"
)

// ErrInvalid wraps every rejection of user-supplied rows.
var ErrInvalid = errors.New("validation failed")

// Ledger is a loaded snapshot of the transaction table.
type Ledger struct {
	Transactions []model.Transaction
	// Version is the store token the snapshot was read at.
	Version string
}

// Service reads and replaces the ledger table.
type Service struct {
	store store.Store
	table string
}

// NewService creates a ledger Service over the named table.
func NewService(st store.Store, table string) *Service {
	return &Service{store: st, table: table}
}

// Load reads the whole ledger.
func (s *Service) Load(ctx context.Context) (*Ledger, error) {
	t, err := s.store.Load(ctx, s.table)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	txns, err := Decode(t)
	if err != nil {
		return nil, fmt.Errorf("decoding ledger: %w", err)
	}
	return &Ledger{Transactions: txns, Version: t.Version}, nil
}

// Save deduplicates l by ID and replaces the stored table. l.Version is
// advanced on success.
func (s *Service) Save(ctx context.Context, l *Ledger) error {
	l.Transactions = DedupeByID(l.Transactions)
	t := Encode(l.Transactions)
	t.Version = l.Version
	if err := s.store.Save(ctx, s.table, t); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	l.Version = t.Version
	return nil
}

// ManualEntry holds a hand-typed transaction.
type ManualEntry struct {
	Date     time.Time
	Name     string
	Amount   string // printed amount, e.g. "-1.234,56"
	Category string
	Alias    string
}

// AddManual stores a hand-typed row. Its ID hashes date, name, category and
// alias, so entering the same row twice is a no-op; the returned bool
// reports whether a row was added.
func (s *Service) AddManual(ctx context.Context, e ManualEntry) (model.Transaction, bool, error) {
	amount, err := money.Parse(e.Amount)
	if err != nil {
		return model.Transaction{}, false, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return model.Transaction{}, false, fmt.Errorf("%w: manual entry needs a name", ErrInvalid)
	}

	date := model.Day(e.Date)
	txn := model.Transaction{
		Date:         date,
		Amount:       amount,
		ID:           id.Generate(date, name, e.Category, e.Alias),
		Name:         name,
		Source:       model.SourceManual,
		CategoryHint: e.Category,
		AliasHint:    e.Alias,
	}
	if verrs := Validate([]model.Transaction{txn}); len(verrs) > 0 {
		return model.Transaction{}, false, joinValidation(verrs)
	}

	l, err := s.Load(ctx)
	if err != nil {
		return model.Transaction{}, false, err
	}
	before := len(l.Transactions)
	l.Transactions = Merge(l.Transactions, []model.Transaction{txn})
	added := len(l.Transactions) > before
	if !added {
		return txn, false, nil
	}
	if err := s.Save(ctx, l); err != nil {
		return model.Transaction{}, false, err
	}
	return txn, true, nil
}

// SaveEdits writes a user-edited set over the stored ledger: edited rows
// replace stored rows with the same ID, other stored rows are kept.
func (s *Service) SaveEdits(ctx context.Context, edited []model.Transaction) (*Ledger, error) {
	if verrs := Validate(edited); len(verrs) > 0 {
		return nil, joinValidation(verrs)
	}
	l, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	l.Transactions = Merge(edited, l.Transactions)
	if err := s.Save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Find returns the transaction with the given ID.
func (s *Service) Find(ctx context.Context, txnID string) (model.Transaction, bool, error) {
	l, err := s.Load(ctx)
	if err != nil {
		return model.Transaction{}, false, err
	}
	for _, t := range l.Transactions {
		if t.ID == txnID {
			return t, true, nil
		}
	}
	return model.Transaction{}, false, nil
}

// Search returns rows whose name contains query, ignoring case.
func (s *Service) Search(ctx context.Context, query string) ([]model.Transaction, error) {
	l, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []model.Transaction
	for _, t := range l.Transactions {
		if strings.Contains(strings.ToLower(t.Name), q) {
			out = append(out, t)
		}
	}
	return out, nil
}

// HasVoucher reports whether t is a card row charged under voucher. Each
// installment of one purchase shares the voucher.
func HasVoucher(t model.Transaction, voucher string) bool {
	return t.Source == model.SourceCreditCard && id.Voucher(t.ID) == voucher
}

// ByVoucher returns the card rows charged under voucher.
func (s *Service) ByVoucher(ctx context.Context, voucher string) ([]model.Transaction, error) {
	l, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Transaction
	for _, t := range l.Transactions {
		if HasVoucher(t, voucher) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Delete removes the row with the given ID and reports whether it existed.
func (s *Service) Delete(ctx context.Context, txnID string) (bool, error) {
	l, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	kept := l.Transactions[:0]
	found := false
	for _, t := range l.Transactions {
		if t.ID == txnID {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return false, nil
	}
	l.Transactions = kept
	if err := s.Save(ctx, l); err != nil {
		return false, err
	}
	return true, nil
}

func joinValidation(verrs []ValidationError) error {
	msgs := make([]string, len(verrs))
	for i, ve := range verrs {
		msgs[i] = ve.Error()
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
