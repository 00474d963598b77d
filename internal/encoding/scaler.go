package encoding

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/match-features/internal/features"
	"github.com/stitts-dev/match-features/internal/models"
)

// StandardScaler centers and scales a fixed, ordered set of numeric columns.
// Statistics use the population standard deviation; NaN is ignored when
// fitting and passed through when transforming.
type StandardScaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// FitScaler learns per-column mean and scale from t.
func FitScaler(t *features.Table, columns []string) (*StandardScaler, error) {
	s := &StandardScaler{
		Columns: append([]string(nil), columns...),
		Mean:    make([]float64, len(columns)),
		Scale:   make([]float64, len(columns)),
	}
	for i, name := range columns {
		values, err := t.Float(name)
		if err != nil {
			return nil, err
		}
		present := make([]float64, 0, len(values))
		for _, v := range values {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			s.Mean[i], s.Scale[i] = 0, 1
			continue
		}
		mean, std := stat.PopMeanStdDev(present, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[i], s.Scale[i] = mean, std
	}
	return s, nil
}

// Transform returns a copy of t with the scaler's columns standardized. Every
// fitted column must be present and numeric.
func (s *StandardScaler) Transform(t *features.Table) (*features.Table, error) {
	var missing []string
	for _, name := range s.Columns {
		if _, err := t.Float(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &models.ColumnMismatchError{Context: "scaler", Missing: missing}
	}

	out := t.Clone()
	for i, name := range s.Columns {
		col, _ := out.Column(name)
		for r, v := range col.Numeric {
			col.Numeric[r] = (v - s.Mean[i]) / s.Scale[i]
		}
	}
	return out, nil
}

// CheckColumns verifies that columns is exactly the fitted column list.
func (s *StandardScaler) CheckColumns(columns []string) error {
	return models.CompareColumns("scaler", s.Columns, columns)
}

func (s *StandardScaler) validate() error {
	if len(s.Columns) != len(s.Mean) || len(s.Columns) != len(s.Scale) {
		return fmt.Errorf("scaler has %d columns, %d means and %d scales", len(s.Columns), len(s.Mean), len(s.Scale))
	}
	for i, sc := range s.Scale {
		if sc == 0 || math.IsNaN(sc) {
			return fmt.Errorf("scaler column %s has invalid scale %v", s.Columns[i], sc)
		}
	}
	return nil
}
