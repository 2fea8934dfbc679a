package ledger

import "github.com/pfinance-dev/pfinance/internal/model"

// Merge combines two transaction sets keyed by ID. Every primary row is kept;
// a secondary row is appended only when its ID is absent from primary.
// Merge(edited, persisted) lets edits win; Merge(persisted, parsed) keeps
// already stored rows untouched.
func Merge(primary, secondary []model.Transaction) []model.Transaction {
	if len(secondary) == 0 {
		return primary
	}
	if len(primary) == 0 {
		return secondary
	}

	seen := make(map[string]bool, len(primary))
	for _, t := range primary {
		seen[t.ID] = true
	}

	out := make([]model.Transaction, len(primary), len(primary)+len(secondary))
	copy(out, primary)
	for _, t := range secondary {
		if !seen[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// DedupeByID drops every row whose ID already appeared earlier in txns.
func DedupeByID(txns []model.Transaction) []model.Transaction {
	seen := make(map[string]bool, len(txns))
	out := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
