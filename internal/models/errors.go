package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMatches is returned when a run or a requested partition has no rows to process.
var ErrNoMatches = errors.New("no matches to process")

// SchemaError reports a required column missing from an input or intermediate table.
type SchemaError struct {
	Source string
	Column string
}

func (e *SchemaError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("schema error: required column %q is missing", e.Column)
	}
	return fmt.Sprintf("schema error: required column %q is missing from %s", e.Column, e.Source)
}

// UnknownCategoryError reports an inference-time categorical value the encoder never saw.
type UnknownCategoryError struct {
	Column string
	Value  string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q in column %q", e.Value, e.Column)
}

// ColumnMismatchError reports drift between a persisted column set and the one produced now.
type ColumnMismatchError struct {
	Context    string
	Missing    []string
	Unexpected []string
}

func (e *ColumnMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing ["+strings.Join(e.Missing, ", ")+"]")
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected ["+strings.Join(e.Unexpected, ", ")+"]")
	}
	if len(parts) == 0 {
		parts = append(parts, "column order differs")
	}
	return fmt.Sprintf("%s column mismatch: %s", e.Context, strings.Join(parts, "; "))
}

// CompareColumns returns a ColumnMismatchError when got is not exactly want, in order.
func CompareColumns(context string, want, got []string) error {
	wantSet := make(map[string]bool, len(want))
	for _, c := range want {
		wantSet[c] = true
	}
	gotSet := make(map[string]bool, len(got))
	for _, c := range got {
		gotSet[c] = true
	}

	mismatch := &ColumnMismatchError{Context: context}
	for _, c := range want {
		if !gotSet[c] {
			mismatch.Missing = append(mismatch.Missing, c)
		}
	}
	for _, c := range got {
		if !wantSet[c] {
			mismatch.Unexpected = append(mismatch.Unexpected, c)
		}
	}
	if len(mismatch.Missing) > 0 || len(mismatch.Unexpected) > 0 || len(want) != len(got) {
		return mismatch
	}
	for i := range want {
		if want[i] != got[i] {
			return mismatch
		}
	}
	return nil
}
