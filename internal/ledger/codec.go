package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/store"
)

// Header is the canonical column order of the ledger table.
const Header = "date,name,amount,installment_label,alias,category,id,source"

const (
	dateFormat = "2006-01-02"
	// Rows written by older tooling carry a midnight timestamp.
	legacyDateFormat = "2006-01-02 15:04:05"

	numFields      = 8
	colDate        = 0
	colName        = 1
	colAmount      = 2
	colInstallment = 3
	colAlias       = 4
	colCategory    = 5
	colID          = 6
	colSource      = 7
)

// Columns returns the canonical header as a slice.
func Columns() []string {
	return strings.Split(Header, ",")
}

// MarshalTransaction converts a Transaction to a row in canonical order.
func MarshalTransaction(t model.Transaction) []string {
	row := make([]string, numFields)
	row[colDate] = t.Date.Format(dateFormat)
	row[colName] = t.Name
	row[colAmount] = t.Amount.StringFixed(2)
	row[colInstallment] = t.Installment
	row[colAlias] = t.AliasHint
	row[colCategory] = t.CategoryHint
	row[colID] = t.ID
	row[colSource] = string(t.Source)
	return row
}

// columnMap locates each canonical column in a stored header. Optional
// columns may be absent (-1).
type columnMap [numFields]int

var requiredColumns = map[int]bool{colDate: true, colName: true, colAmount: true, colID: true}

func mapColumns(t *store.Table) (columnMap, error) {
	var m columnMap
	for i, name := range Columns() {
		m[i] = t.Index(name)
		if m[i] < 0 && requiredColumns[i] {
			return m, fmt.Errorf("ledger table has no %q column", name)
		}
	}
	return m, nil
}

// Decode converts a stored table into transactions, mapping columns by
// header name.
func Decode(t *store.Table) ([]model.Transaction, error) {
	if len(t.Columns) == 0 {
		return nil, nil
	}
	m, err := mapColumns(t)
	if err != nil {
		return nil, err
	}

	txns := make([]model.Transaction, 0, len(t.Rows))
	for i, rec := range t.Rows {
		txn, err := unmarshalRow(rec, m)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func unmarshalRow(rec []string, m columnMap) (model.Transaction, error) {
	get := func(col int) string { return strings.TrimSpace(store.Cell(rec, m[col])) }

	date, err := ParseDate(get(colDate))
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := decimal.NewFromString(get(colAmount))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", get(colAmount), err)
	}

	return model.Transaction{
		Date:         date,
		Amount:       amount,
		ID:           get(colID),
		Name:         store.Cell(rec, m[colName]),
		Installment:  get(colInstallment),
		Source:       model.Source(get(colSource)),
		CategoryHint: get(colCategory),
		AliasHint:    get(colAlias),
	}, nil
}

// ParseDate accepts the canonical date layout and the legacy timestamp.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{dateFormat, legacyDateFormat} {
		if d, err := time.Parse(layout, s); err == nil {
			return model.Day(d), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q", s)
}

// Encode converts transactions into a table with the canonical header.
func Encode(txns []model.Transaction) *store.Table {
	t := &store.Table{Columns: Columns(), Rows: make([][]string, 0, len(txns))}
	for _, txn := range txns {
		t.Rows = append(t.Rows, MarshalTransaction(txn))
	}
	return t
}
