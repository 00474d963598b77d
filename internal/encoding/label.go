package encoding

import (
	"fmt"
	"sort"

	"github.com/stitts-dev/match-features/internal/models"
)

// LabelEncoder maps category values to their index in the sorted class list.
// It is immutable once fitted.
type LabelEncoder struct {
	Column  string   `json:"column"`
	Classes []string `json:"classes"`

	codes map[string]int
}

// FitLabelEncoder learns the sorted distinct values of a column.
func FitLabelEncoder(column string, values []string) *LabelEncoder {
	seen := make(map[string]bool, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	return newLabelEncoder(column, classes)
}

func newLabelEncoder(column string, classes []string) *LabelEncoder {
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return &LabelEncoder{Column: column, Classes: classes, codes: codes}
}

// Encode returns the code for value, or an UnknownCategoryError.
func (e *LabelEncoder) Encode(value string) (int, error) {
	code, ok := e.codes[value]
	if !ok {
		return 0, &models.UnknownCategoryError{Column: e.Column, Value: value}
	}
	return code, nil
}

// Transform encodes every value. The first unseen value aborts the transform.
func (e *LabelEncoder) Transform(values []string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		code, err := e.Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = float64(code)
	}
	return out, nil
}

func (e *LabelEncoder) validate() error {
	if e.Column == "" {
		return fmt.Errorf("label encoder has no column")
	}
	if !sort.StringsAreSorted(e.Classes) {
		return fmt.Errorf("label encoder for %s has unsorted classes", e.Column)
	}
	for i := 1; i < len(e.Classes); i++ {
		if e.Classes[i] == e.Classes[i-1] {
			return fmt.Errorf("label encoder for %s has duplicate class %q", e.Column, e.Classes[i])
		}
	}
	return nil
}
