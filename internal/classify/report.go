package classify

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Total aggregates the rows sharing one key.
type Total struct {
	Key   string
	Color string
	Sum   decimal.Decimal
	Count int
}

// Visible drops suppressed rows.
func Visible(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !r.Suppressed {
			out = append(out, r)
		}
	}
	return out
}

// Between keeps rows dated within [from, to]. A zero bound is open.
func Between(rows []Row, from, to time.Time) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !from.IsZero() && r.Date.Before(from) {
			continue
		}
		if !to.IsZero() && r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Summarize totals visible rows per category, largest absolute sum first.
func Summarize(rows []Row) []Total {
	return group(Visible(rows), func(r Row) string { return r.Category })
}

// Breakdown totals the visible rows of one category per alias, falling back
// to the row name when no alias is set.
func Breakdown(rows []Row, category string) []Total {
	var in []Row
	for _, r := range Visible(rows) {
		if r.Category == category {
			in = append(in, r)
		}
	}
	return group(in, func(r Row) string {
		if r.Alias != "" {
			return r.Alias
		}
		return r.Name
	})
}

func group(rows []Row, key func(Row) string) []Total {
	idx := make(map[string]int)
	var totals []Total
	for _, r := range rows {
		k := key(r)
		i, ok := idx[k]
		if !ok {
			i = len(totals)
			idx[k] = i
			totals = append(totals, Total{Key: k, Color: r.Color})
		}
		totals[i].Sum = totals[i].Sum.Add(r.Amount)
		totals[i].Count++
	}
	sort.SliceStable(totals, func(a, b int) bool {
		ca := totals[a].Sum.Abs().Cmp(totals[b].Sum.Abs())
		if ca != 0 {
			return ca > 0
		}
		return totals[a].Key < totals[b].Key
	})
	return totals
}
