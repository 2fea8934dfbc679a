package importer

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/rates"
)

func visaText(t *testing.T) StaticText {
	t.Helper()
	data, err := os.ReadFile("testdata/visa_statement.txt")
	require.NoError(t, err)
	return StaticText{string(data)}
}

func parseCard(t *testing.T, p *CardParser) *Result {
	t.Helper()
	res, err := p.Parse(context.Background(), strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	return res
}

func TestCardParser_Parse(t *testing.T) {
	p := &CardParser{Text: visaText(t)}
	res := parseCard(t, p)
	require.Len(t, res.Transactions, 7)

	names := make([]string, len(res.Transactions))
	for i, txn := range res.Transactions {
		names[i] = txn.Name
		assert.Equal(t, model.SourceCreditCard, txn.Source)
	}
	assert.Equal(t, []string{
		"SUPERMERCADO-DIA", "CAFE-MARTINEZ", "FRAVEGA", "NETFLIX-USD",
		"FARMACITY", "REINTEGRO-PROMO", "YPF",
	}, names)

	first := res.Transactions[0]
	assert.Equal(t, "123456", first.ID)
	assert.Equal(t, "-12345.67", first.Amount.StringFixed(2))
	assert.Equal(t, "2024-03-05", first.Date.Format("2006-01-02"))
	assert.Empty(t, res.Skipped)
}

func TestCardParser_Installment(t *testing.T) {
	p := &CardParser{Text: visaText(t)}
	res := parseCard(t, p)

	fravega := res.Transactions[2]
	assert.Equal(t, "03/12", fravega.Installment)
	assert.Equal(t, "-1234.56", fravega.Amount.StringFixed(2))
	assert.Equal(t, "345678-03/12", fravega.ID)
}

func TestCardParser_MonthCarryForward(t *testing.T) {
	p := &CardParser{Text: visaText(t)}
	res := parseCard(t, p)

	for _, txn := range res.Transactions[:4] {
		assert.Equal(t, 2024, txn.Date.Year(), txn.Name)
		assert.Equal(t, 3, int(txn.Date.Month()), txn.Name)
	}
	assert.Equal(t, 7, res.Transactions[1].Date.Day())
	assert.Equal(t, 12, res.Transactions[2].Date.Day())
}

func TestCardParser_MonthOnLastLine(t *testing.T) {
	p := &CardParser{Text: StaticText{strings.Join([]string{
		"FECHA COMPROBANTE REFERENCIA DETALLE",
		"03 111111 PANADERIA 100,00",
		"09 222222 KIOSCO 50,00",
		"23 Diciem. 28 333333 LIBRERIA 75,00",
		"Tarjeta 1234 Total Consumos de JUAN 225,00",
	}, "\n")}}
	res := parseCard(t, p)
	require.Len(t, res.Transactions, 3)

	for _, txn := range res.Transactions {
		assert.Equal(t, 2023, txn.Date.Year(), txn.Name)
		assert.Equal(t, 12, int(txn.Date.Month()), txn.Name)
	}
}

func TestCardParser_Refund(t *testing.T) {
	p := &CardParser{Text: visaText(t)}
	res := parseCard(t, p)

	refund := res.Transactions[5]
	assert.Equal(t, "350.00", refund.Amount.StringFixed(2))
	assert.False(t, refund.IsOutflow())
}

func TestCardParser_SecondCardKeepsOwnMonth(t *testing.T) {
	p := &CardParser{Text: visaText(t)}
	res := parseCard(t, p)

	ypf := res.Transactions[6]
	assert.Equal(t, "2024-03-22", ypf.Date.Format("2006-01-02"))
	assert.Equal(t, "2024-03-18", res.Transactions[4].Date.Format("2006-01-02"))
}

func TestCardParser_USDConversion(t *testing.T) {
	quote := rates.Static{Buy: decimal.NewFromInt(1000), Sell: decimal.NewFromInt(1200)}
	p := &CardParser{Text: visaText(t), Rates: quote}
	res := parseCard(t, p)

	assert.Equal(t, "-11000.00", res.Transactions[3].Amount.StringFixed(2))
	// Peso rows are untouched.
	assert.Equal(t, "-1500.00", res.Transactions[1].Amount.StringFixed(2))
	assert.Empty(t, res.Warnings)
}

type failingRates struct{}

func (failingRates) Quote(context.Context, string) (rates.Quote, error) {
	return rates.Quote{}, &rates.RateLookupError{Pair: "blue", Err: errors.New("connection refused")}
}

func TestCardParser_USDConversionFailure(t *testing.T) {
	p := &CardParser{Text: visaText(t), Rates: failingRates{}}
	res := parseCard(t, p)

	assert.Equal(t, "-10.00", res.Transactions[3].Amount.StringFixed(2))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "connection refused")
}

func TestCardParser_NoProviderWarns(t *testing.T) {
	p := &CardParser{Text: visaText(t)}
	res := parseCard(t, p)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no rate provider")
}

func TestCardParser_MalformedLine(t *testing.T) {
	p := &CardParser{Text: StaticText{strings.Join([]string{
		"______________",
		"24 Febrero 05 111111 PANADERIA 100,00",
		"31 222222 KIOSCO 50,00",
		"Tarjeta 1234 Total Consumos de JUAN 150,00",
	}, "\n")}}
	res := parseCard(t, p)
	require.Len(t, res.Transactions, 1)
	require.Len(t, res.Skipped, 1)

	var mre *MalformedRecordError
	require.True(t, errors.As(res.Skipped[0].Reason, &mre))
	assert.Equal(t, "date", mre.Field)
}

func TestCardParser_TableNotFound(t *testing.T) {
	p := &CardParser{Text: StaticText{"SALDO ACTUAL 100,00\n07 234567 CAFE 1.500,00"}}
	res, err := p.Parse(context.Background(), strings.NewReader(""))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestParseConsumption(t *testing.T) {
	rec, err := parseConsumption("12 345678 * FRAVEGA SA C.03/12 1.234,56")
	require.NoError(t, err)
	assert.Equal(t, "FRAVEGA-SA", rec.name)
	assert.Equal(t, "03/12", rec.installment)
	assert.Equal(t, "345678", rec.voucher)
	assert.Equal(t, 12, rec.day)
	assert.Equal(t, 0, rec.year)

	_, err = parseConsumption("12 FRAVEGA 1.234,56")
	assert.Error(t, err)
}

func TestIsConsumption(t *testing.T) {
	assert.True(t, isConsumption("24 Marzo 05 123456 DIA 1,00"))
	assert.True(t, isConsumption("07 234567 CAFE 1,00"))
	assert.False(t, isConsumption("SALDO ANTERIOR 1,00"))
	assert.False(t, isConsumption("2024 234567 CAFE"))
	assert.False(t, isConsumption("07 2345 CAFE"))
}
