// Package money parses amounts written the way Argentine statements print
// them: "." groups thousands, "," separates cents.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyMarks = []string{"U$S", "USD", "ARS", "$", " "}

// Parse converts a printed amount into a decimal.
//
//	"1.234,56"   -> 1234.56
//	"1.234,56-"  -> -1234.56
//	"(12,00)"    -> -12
//	"$ 1.500"    -> 1500
//	"-1234.5"    -> -1234.5 (machine formatted)
//
// A lone "." followed by exactly three digits is read as a thousands
// separator.
func Parse(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	for _, m := range currencyMarks {
		s = strings.ReplaceAll(s, m, "")
	}
	s = strings.ReplaceAll(s, " ", "")

	negative := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative = true
		s = s[1 : len(s)-1]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount %q", raw)
	}

	s = normalize(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalize rewrites s to use "." as the only decimal separator.
func normalize(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case dots == 1:
		if len(s)-strings.Index(s, ".")-1 == 3 {
			return strings.Replace(s, ".", "", 1)
		}
	}
	return s
}
