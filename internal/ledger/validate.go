package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pfinance-dev/pfinance/internal/model"
)

// ValidationError describes one rejected row of a hand-edited set.
type ValidationError struct {
	TxnID       string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s]: %s", e.TxnID, e.Description)
}

var hundred = decimal.NewFromInt(100)

// Validate checks rows before they are merged into the ledger.
func Validate(txns []model.Transaction) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(txns))

	for i, t := range txns {
		ref := t.ID
		if ref == "" {
			ref = fmt.Sprintf("row %d", i+1)
			errs = append(errs, ValidationError{TxnID: ref, Description: "missing id"})
		} else if seen[t.ID] {
			errs = append(errs, ValidationError{TxnID: ref, Description: "duplicate id in edited set"})
		}
		seen[t.ID] = true

		if t.Date.IsZero() {
			errs = append(errs, ValidationError{TxnID: ref, Description: "missing date"})
		}
		if !t.Amount.Mul(hundred).Equal(t.Amount.Mul(hundred).Floor()) {
			errs = append(errs, ValidationError{TxnID: ref, Description: fmt.Sprintf("amount %s has more than 2 decimal places", t.Amount)})
		}
	}
	return errs
}
