package importer

import "github.com/pfinance-dev/pfinance/internal/model"

// Skip records one source record that produced no transaction.
type Skip struct {
	Record string // the raw line or row, for the user
	Reason error  // *MalformedRecordError for broken records
}

// Result is the outcome of parsing one file.
type Result struct {
	Transactions []model.Transaction
	Skipped      []Skip
	// Filtered counts records dropped on purpose (denylisted descriptions,
	// transfers, other movement types).
	Filtered int
	Warnings []string
}

func (r *Result) skip(record string, err error) {
	r.Skipped = append(r.Skipped, Skip{Record: record, Reason: err})
}

func (r *Result) filter() {
	r.Filtered++
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
