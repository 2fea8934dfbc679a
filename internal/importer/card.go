package importer

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfinance-dev/pfinance/internal/id"
	"github.com/pfinance-dev/pfinance/internal/logger"
	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/money"
	"github.com/pfinance-dev/pfinance/internal/rates"
)

// CardParser parses the Visa credit-card bill PDF.
type CardParser struct {
	Text  TextExtractor
	Rates rates.Provider // nil disables USD conversion
	Pair  string         // rate pair, "blue" when empty
}

var installmentRe = regexp.MustCompile(`^C\.\d{2}/\d{2}$`)

// months maps the month tokens printed on the bill (abbreviated or not) to
// their number.
var months = map[string]time.Month{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
	"julio": 7, "agosto": 8, "septie": 9, "septiembre": 9, "setiembre": 9,
	"octubre": 10, "noviem": 11, "noviembre": 11, "diciem": 12, "diciembre": 12,
}

func monthOf(tok string) (time.Month, bool) {
	m, ok := months[strings.TrimSuffix(strings.ToLower(tok), ".")]
	return m, ok
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Kind returns KindCard.
func (p *CardParser) Kind() Kind { return KindCard }

// Parse extracts the consumption lines of every card on the bill.
func (p *CardParser) Parse(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}
	text := p.Text
	if text == nil {
		text = NativeExtractor{}
	}
	pages, err := text.Pages(ctx, data)
	if err != nil {
		return nil, err
	}
	return p.parseLines(ctx, splitLines(pages))
}

// cardRecord is one consumption line before its date is resolved.
type cardRecord struct {
	raw         string
	amount      decimal.Decimal
	installment string
	voucher     string
	day         int
	month       time.Month
	year        int
	name        string
}

func (p *CardParser) parseLines(ctx context.Context, lines []string) (*Result, error) {
	log := logger.FromContext(ctx)

	block, found := consumptionLines(lines)
	if !found {
		return nil, &TableNotFoundError{Anchor: `"Total Consumos de" block`}
	}

	res := &Result{}
	var recs []cardRecord
	for _, line := range block {
		rec, err := parseConsumption(line)
		if err != nil {
			logSkip(log, KindCard, line, err)
			res.skip(line, err)
			continue
		}
		recs = append(recs, rec)
	}

	resolveDates(recs)

	usdRows := 0
	for _, rec := range recs {
		if rec.year == 0 {
			err := malformed(rec.raw, "month/year", nil)
			logSkip(log, KindCard, rec.raw, err)
			res.skip(rec.raw, err)
			continue
		}
		date := time.Date(rec.year, rec.month, rec.day, 0, 0, 0, 0, time.UTC)
		if date.Day() != rec.day {
			err := malformed(rec.raw, "date", fmt.Errorf("day %d out of range for %s %d", rec.day, rec.month, rec.year))
			logSkip(log, KindCard, rec.raw, err)
			res.skip(rec.raw, err)
			continue
		}
		if strings.Contains(strings.ToLower(rec.name), "usd") {
			usdRows++
		}
		res.Transactions = append(res.Transactions, model.Transaction{
			Date:        date,
			Amount:      rec.amount,
			ID:          id.WithInstallment(rec.voucher, rec.installment),
			Name:        rec.name,
			Installment: rec.installment,
			Source:      model.SourceCreditCard,
		})
	}

	if usdRows > 0 {
		p.convertUSD(ctx, res)
	}
	return res, nil
}

// convertUSD multiplies dollar rows by the mid rate. A failed lookup leaves
// them in dollars and adds a warning.
func (p *CardParser) convertUSD(ctx context.Context, res *Result) {
	if p.Rates == nil {
		res.warn("usd rows left unconverted: no rate provider")
		return
	}
	pair := p.Pair
	if pair == "" {
		pair = "blue"
	}
	q, err := p.Rates.Quote(ctx, pair)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("usd conversion skipped")
		res.warn(fmt.Sprintf("usd rows left unconverted: %v", err))
		return
	}
	rate := q.Mid()
	for i, t := range res.Transactions {
		if strings.Contains(strings.ToLower(t.Name), "usd") {
			res.Transactions[i].Amount = t.Amount.Mul(rate).Round(2)
		}
	}
}

// consumptionLines scans bottom to top. A "Tarjeta ... Total Consumos de"
// line opens a block; the column header or an underscore divider above it
// closes the block. Lines shaped like consumptions inside any block are
// returned in reading order.
func consumptionLines(lines []string) ([]string, bool) {
	var out []string
	found := false
	inBlock := false
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		switch {
		case isBlockEnd(line):
			inBlock = true
			found = true
		case inBlock && (isBlockHeader(line) || isDivider(line)):
			inBlock = false
		case inBlock && isConsumption(line):
			out = append(out, line)
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, found
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func isBlockEnd(line string) bool {
	return containsFold(line, "Tarjeta") && containsFold(line, "Total Consumos de")
}

func isBlockHeader(line string) bool {
	return containsFold(line, "Fecha") && containsFold(line, "Comprobante Referencia")
}

func isDivider(line string) bool {
	t := strings.TrimSpace(line)
	return strings.Count(t, "_") >= 3 && strings.Trim(t, "_ ") == ""
}

// isConsumption matches "YY Month DD NNNNNN ..." and "DD NNNNNN ...".
func isConsumption(line string) bool {
	tok := strings.Fields(line)
	if len(tok) < 2 || !isDigits(tok[0], 2) {
		return false
	}
	if _, ok := monthOf(tok[1]); ok {
		return len(tok) >= 4 && isDigits(tok[2], 2) && isDigits(tok[3], 6)
	}
	return isDigits(tok[1], 6)
}

// parseConsumption reads a line right to left: amount, optional installment,
// then name tokens up to the (voucher, day) pair.
func parseConsumption(line string) (cardRecord, error) {
	rec := cardRecord{raw: line}

	var parts []string
	for _, t := range strings.Fields(line) {
		if len(t) > 1 {
			parts = append(parts, t)
		}
	}
	// parts is read from the right.
	rev := make([]string, len(parts))
	for i, t := range parts {
		rev[len(parts)-1-i] = t
	}

	if len(rev) == 0 {
		return rec, malformed(line, "amount", nil)
	}
	value, err := money.Parse(rev[0])
	if err != nil {
		return rec, malformed(line, "amount", err)
	}
	rec.amount = value.Neg()
	rev = rev[1:]

	if len(rev) > 0 && installmentRe.MatchString(rev[0]) {
		rec.installment = strings.TrimPrefix(rev[0], "C.")
		rev = rev[1:]
	}

	var name []string
	pair := -1
	for i := 0; i+2 < len(rev); i++ {
		name = append(name, rev[i])
		if isDigits(rev[i+1], 6) && isDigits(rev[i+2], 2) {
			pair = i + 1
			break
		}
	}
	if pair < 0 {
		return rec, malformed(line, "voucher/day", nil)
	}
	rec.voucher = rev[pair]
	rec.day, _ = strconv.Atoi(rev[pair+1])

	// Section-opening lines lead with "YY Month".
	if len(parts) >= 2 && isDigits(parts[0], 2) {
		if m, ok := monthOf(parts[1]); ok {
			yy, _ := strconv.Atoi(parts[0])
			rec.year = 2000 + yy
			rec.month = m
		}
	}

	for l, r := 0, len(name)-1; l < r; l, r = l+1, r-1 {
		name[l], name[r] = name[r], name[l]
	}
	rec.name = strings.Join(name, "-")
	return rec, nil
}

// resolveDates carries month and year forward in reading order. Records
// before the first dated one take the first month/year seen.
func resolveDates(recs []cardRecord) {
	var month time.Month
	year := 0
	firstDated := -1
	for i := range recs {
		if recs[i].year != 0 {
			month, year = recs[i].month, recs[i].year
			if firstDated < 0 {
				firstDated = i
			}
			continue
		}
		recs[i].month, recs[i].year = month, year
	}
	for i := 0; i < firstDated; i++ {
		recs[i].month, recs[i].year = recs[firstDated].month, recs[firstDated].year
	}
}
