package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which statement layout produced a transaction.
type Source string

const (
	SourceBankDebit  Source = "bank-debit"
	SourceCreditCard Source = "credit-card"
	SourceWallet     Source = "wallet"
	SourceManual     Source = "manual"
)

// Transaction is one row of the persisted ledger.
type Transaction struct {
	Date        time.Time       // midnight UTC
	Amount      decimal.Decimal // negative = outflow, positive = inflow
	ID          string
	Name        string
	Installment string // "03/12" for card installments, empty otherwise
	Source      Source

	// Labels typed by hand on manual entry or edit. Rule matches take
	// precedence at read time.
	CategoryHint string
	AliasHint    string
}

// Day returns t truncated to a calendar date in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsOutflow reports whether the transaction moves money out.
func (t Transaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}
