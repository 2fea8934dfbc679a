package id

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// timestampFormat matches the way stored dates are rendered when hashed.
const timestampFormat = "2006-01-02 15:04:05"

// Generate returns the content hash used for manually entered rows:
// md5 hex of date + name + category + alias.
func Generate(date time.Time, name, category, alias string) string {
	sum := md5.Sum([]byte(date.Format(timestampFormat) + name + category + alias))
	return hex.EncodeToString(sum[:])
}

// Composite builds a fallback id like "bank-debit_20250103_GITHUBPRO_-4.00"
// for rows whose source carries no natural reference.
func Composite(source string, date time.Time, name string, amount decimal.Decimal) string {
	return fmt.Sprintf("%s_%s_%s_%s", source, date.Format("20060102"), alnumPrefix(name, 10), amount.StringFixed(2))
}

// WithInstallment appends an installment label to a voucher id so each
// monthly installment of one purchase gets its own row.
// "012345", "03/12" -> "012345-03/12"
func WithInstallment(voucher, installment string) string {
	if installment == "" {
		return voucher
	}
	return voucher + "-" + installment
}

// Voucher strips the installment suffix added by WithInstallment.
func Voucher(txnID string) string {
	base, _, _ := strings.Cut(txnID, "-")
	return base
}

func alnumPrefix(s string, n int) string {
	prefix := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(prefix) > n {
		prefix = prefix[:n]
	}
	return prefix
}
