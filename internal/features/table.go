package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/stitts-dev/match-features/internal/models"
)

// Role tells consumers what a column is for.
type Role int

const (
	RoleFeature Role = iota
	RoleKey
	RoleAudit
	RoleLabel
)

func (r Role) String() string {
	switch r {
	case RoleKey:
		return "key"
	case RoleAudit:
		return "audit"
	case RoleLabel:
		return "label"
	default:
		return "feature"
	}
}

// Column holds either numeric or categorical values, never both.
type Column struct {
	Name        string
	Role        Role
	Numeric     []float64
	Categorical []string
}

func (c *Column) IsCategorical() bool {
	return c.Categorical != nil
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Role: c.Role}
	if c.IsCategorical() {
		out.Categorical = append([]string(nil), c.Categorical...)
	} else {
		out.Numeric = append([]float64(nil), c.Numeric...)
	}
	return out
}

func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Role: c.Role}
	if c.IsCategorical() {
		out.Categorical = make([]string, len(idx))
		for i, j := range idx {
			out.Categorical[i] = c.Categorical[j]
		}
	} else {
		out.Numeric = make([]float64, len(idx))
		for i, j := range idx {
			out.Numeric[i] = c.Numeric[j]
		}
	}
	return out
}

// Table is a column-major feature table. Missing numeric values are NaN.
type Table struct {
	rows  int
	cols  []*Column
	index map[string]int
}

func NewTable(rows int) *Table {
	return &Table{rows: rows, index: make(map[string]int)}
}

func (t *Table) Rows() int {
	return t.rows
}

// AddNumeric adds or replaces a numeric column. It panics if the length does not match.
func (t *Table) AddNumeric(name string, role Role, values []float64) {
	if len(values) != t.rows {
		panic(fmt.Sprintf("features: column %q has %d values, table has %d rows", name, len(values), t.rows))
	}
	t.put(&Column{Name: name, Role: role, Numeric: values})
}

// AddCategorical adds or replaces a categorical column. It panics if the length does not match.
func (t *Table) AddCategorical(name string, role Role, values []string) {
	if len(values) != t.rows {
		panic(fmt.Sprintf("features: column %q has %d values, table has %d rows", name, len(values), t.rows))
	}
	if values == nil {
		values = []string{}
	}
	t.put(&Column{Name: name, Role: role, Categorical: values})
}

func (t *Table) put(c *Column) {
	if i, ok := t.index[c.Name]; ok {
		t.cols[i] = c
		return
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Float returns a numeric column or a SchemaError.
func (t *Table) Float(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok || c.IsCategorical() {
		return nil, &models.SchemaError{Source: "feature table", Column: name}
	}
	return c.Numeric, nil
}

// String returns a categorical column or a SchemaError.
func (t *Table) String(name string) ([]string, error) {
	c, ok := t.Column(name)
	if !ok || !c.IsCategorical() {
		return nil, &models.SchemaError{Source: "feature table", Column: name}
	}
	return c.Categorical, nil
}

// Columns returns column names in table order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// ColumnsByRole returns the names of columns with the given role, in table order.
func (t *Table) ColumnsByRole(role Role) []string {
	var names []string
	for _, c := range t.cols {
		if c.Role == role {
			names = append(names, c.Name)
		}
	}
	return names
}

// Select returns a copy holding only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := NewTable(t.rows)
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, &models.SchemaError{Source: "feature table", Column: n}
		}
		out.put(c.clone())
	}
	return out, nil
}

// Take returns a copy holding the rows at idx, in that order.
func (t *Table) Take(idx []int) *Table {
	out := NewTable(len(idx))
	for _, c := range t.cols {
		out.put(c.take(idx))
	}
	return out
}

// Filter returns a copy holding the rows where keep is true.
func (t *Table) Filter(keep []bool) *Table {
	idx := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return t.Take(idx)
}

func (t *Table) Clone() *Table {
	out := NewTable(t.rows)
	for _, c := range t.cols {
		out.put(c.clone())
	}
	return out
}

// CompleteRows reports, per row, whether every numeric column among names is non-NaN
// and every categorical column among names is non-empty.
func (t *Table) CompleteRows(names ...string) []bool {
	keep := make([]bool, t.rows)
	for i := range keep {
		keep[i] = true
	}
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			continue
		}
		for i := 0; i < t.rows; i++ {
			if c.IsCategorical() {
				if c.Categorical[i] == "" {
					keep[i] = false
				}
			} else if math.IsNaN(c.Numeric[i]) {
				keep[i] = false
			}
		}
	}
	return keep
}

// WriteCSV writes the table with a header row. NaN is written as an empty field.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(t.cols))
	for i := 0; i < t.rows; i++ {
		for j, c := range t.cols {
			if c.IsCategorical() {
				record[j] = c.Categorical[i]
				continue
			}
			v := c.Numeric[i]
			if math.IsNaN(v) {
				record[j] = ""
			} else {
				record[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
