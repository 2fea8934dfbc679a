package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/pfinance-dev/pfinance/internal/id"
	"github.com/pfinance-dev/pfinance/internal/logger"
	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/money"
)

// BankParser parses the savings-account movements spreadsheet.
type BankParser struct {
	// Denylist drops rows whose description contains any entry (case
	// sensitive). Nil means DefaultBankDenylist.
	Denylist []string
}

// DefaultBankDenylist covers card payments, payroll, taxes and interest,
// which are either reported by other sources or not discretionary.
var DefaultBankDenylist = []string{
	"tarjeta de credito",
	" tarjeta credito",
	"Acreditacion de haberes",
	"Impuesto de sellos",
	"ley27743",
	"interes por",
	"Impuesto ley",
}

const (
	bankAnchorDate   = "Fecha"
	bankAnchorBranch = "Sucursal origen"
	bankDebitPrefix  = "Compra con tarjeta de debito "
	bankTransfer     = "Transf"

	bankNumFields = 7
	bankColDate   = 0
	bankColBranch = 1
	bankColDesc   = 2
	bankColRef    = 3
	bankColSaving = 4
	bankColCheck  = 5
	bankColSaldo  = 6
)

var bankDateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"02-01-2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01-02-06", // xls default short date
}

// Kind returns KindBank.
func (p *BankParser) Kind() Kind { return KindBank }

// Parse reads an .xlsx or .xls export.
func (p *BankParser) Parse(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading spreadsheet: %w", err)
	}
	grid, err := readGrid(data)
	if err != nil {
		return nil, err
	}
	return p.parseGrid(ctx, grid)
}

func (p *BankParser) parseGrid(ctx context.Context, grid [][]string) (*Result, error) {
	log := logger.FromContext(ctx)
	grid = compact(grid)

	top, left, ok := findAnchor(grid)
	if !ok {
		return nil, &TableNotFoundError{Anchor: fmt.Sprintf("%q/%q header", bankAnchorDate, bankAnchorBranch)}
	}

	deny := p.Denylist
	if deny == nil {
		deny = DefaultBankDenylist
	}

	res := &Result{}
	// The anchor row itself carries the column labels.
	for _, full := range grid[top+1:] {
		rec := make([]string, bankNumFields)
		for c := 0; c < bankNumFields && left+c < len(full); c++ {
			rec[c] = full[left+c]
		}
		if strings.Join(rec, "") == "" {
			continue
		}

		raw := strings.Join(rec, " | ")
		desc := rec[bankColDesc]
		if containsAny(desc, deny) {
			res.filter()
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(desc, bankDebitPrefix))
		if strings.Contains(name, bankTransfer) {
			res.filter()
			continue
		}

		txn, err := parseBankRecord(rec, name)
		if err != nil {
			logSkip(log, KindBank, raw, err)
			res.skip(raw, err)
			continue
		}
		res.Transactions = append(res.Transactions, txn)
	}
	return res, nil
}

func parseBankRecord(rec []string, name string) (model.Transaction, error) {
	raw := strings.Join(rec, " | ")

	date, err := parseCellDate(rec[bankColDate])
	if err != nil {
		return model.Transaction{}, malformed(raw, "date", err)
	}

	if rec[bankColSaving] == "" {
		return model.Transaction{}, malformed(raw, "amount", nil)
	}
	value, err := cellAmount(rec[bankColSaving])
	if err != nil {
		return model.Transaction{}, malformed(raw, "amount", err)
	}
	amount := value.Neg().Round(2)

	ref := strings.TrimSpace(rec[bankColRef])
	if ref == "" {
		ref = id.Composite(string(model.SourceBankDebit), date, name, amount)
	}

	return model.Transaction{
		Date:   date,
		Amount: amount,
		ID:     ref,
		Name:   name,
		Source: model.SourceBankDebit,
	}, nil
}

// cellAmount reads a numeric cell's raw value as written, so "12.345" is
// twelve and change. Anything that is not a plain number is a formatted
// text cell and goes through money.Parse.
func cellAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}
	return money.Parse(s)
}

// findAnchor returns the row and column of the "Fecha" cell that sits
// directly left of "Sucursal origen".
func findAnchor(grid [][]string) (int, int, bool) {
	for r, row := range grid {
		for c := 0; c+1 < len(row); c++ {
			if strings.EqualFold(row[c], bankAnchorDate) && strings.EqualFold(row[c+1], bankAnchorBranch) {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// parseCellDate accepts an Excel serial number or a day-first date.
func parseCellDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return model.Day(t), nil
	}
	for _, layout := range bankDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func logSkip(log zerolog.Logger, kind Kind, record string, err error) {
	log.Warn().Str("kind", string(kind)).Str("record", record).Err(err).Msg("skipping malformed record")
}
