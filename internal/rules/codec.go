package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pfinance-dev/pfinance/internal/store"
)

// Header is the column layout of a rule table.
const Header = "id,tag_name,keywords"

const (
	numFields   = 3
	colID       = 0
	colLabel    = 1
	colKeywords = 2
)

// MarshalRule converts a Rule to a row. Keywords are deduplicated on the way
// out, keeping first occurrences.
func MarshalRule(r Rule) []string {
	row := make([]string, numFields)
	row[colID] = strconv.Itoa(r.ID)
	row[colLabel] = r.Label
	row[colKeywords] = JoinKeywords(r.Keywords)
	return row
}

// UnmarshalRule converts a row to a Rule.
func UnmarshalRule(record []string) (Rule, error) {
	if len(record) != numFields {
		return Rule{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}
	ruleID, err := strconv.Atoi(strings.TrimSpace(record[colID]))
	if err != nil {
		return Rule{}, fmt.Errorf("parsing id %q: %w", record[colID], err)
	}
	return Rule{
		ID:       ruleID,
		Label:    strings.TrimSpace(record[colLabel]),
		Keywords: SplitKeywords(record[colKeywords]),
	}, nil
}

// Decode reads a rule table ordered by id. Columns are located by name.
func Decode(t *store.Table) (Set, error) {
	if len(t.Columns) == 0 {
		return nil, nil
	}
	cols := strings.Split(Header, ",")
	idx := make([]int, numFields)
	for i, c := range cols {
		idx[i] = t.Index(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("rule table has no %q column", c)
		}
	}

	set := make(Set, 0, len(t.Rows))
	for i, rec := range t.Rows {
		ordered := make([]string, numFields)
		for j := range ordered {
			ordered[j] = store.Cell(rec, idx[j])
		}
		r, err := UnmarshalRule(ordered)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		set = append(set, r)
	}
	sort.SliceStable(set, func(a, b int) bool { return set[a].ID < set[b].ID })
	return set, nil
}

// Encode writes a rule set as a table.
func Encode(set Set) *store.Table {
	t := &store.Table{Columns: strings.Split(Header, ","), Rows: make([][]string, 0, len(set))}
	for _, r := range set {
		t.Rows = append(t.Rows, MarshalRule(r))
	}
	return t
}

// SplitKeywords splits a stored comma list, dropping blanks.
func SplitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// JoinKeywords joins keywords with commas, dropping blanks and repeats.
func JoinKeywords(kws []string) string {
	seen := make(map[string]bool, len(kws))
	out := make([]string, 0, len(kws))
	for _, k := range kws {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return strings.Join(out, ",")
}
