package importer

import (
	"errors"
	"fmt"
)

// ErrTableNotFound matches every *TableNotFoundError.
var ErrTableNotFound = errors.New("table not found")

// TableNotFoundError means the anchor a parser segments on is missing. The
// whole file is rejected.
type TableNotFoundError struct {
	Anchor string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table not found: no %s", e.Anchor)
}

func (e *TableNotFoundError) Is(target error) bool { return target == ErrTableNotFound }

// MalformedRecordError means one record lacks a required field. The record is
// skipped and parsing continues.
type MalformedRecordError struct {
	Record string
	Field  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record %q: %s: %v", e.Record, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed record %q: missing %s", e.Record, e.Field)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

func malformed(record, field string, err error) *MalformedRecordError {
	return &MalformedRecordError{Record: record, Field: field, Err: err}
}
