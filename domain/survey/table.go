// Package survey holds the tabular data model shared by every pipeline stage:
// the raw respondent table, the encoded and extracted float columns, and the
// row-aligned analysis table the model runner consumes.
package survey

import (
	"fmt"
	"math"
	"strings"

	"surveyfit/domain/core"
)

// Cell is one raw field value as delivered by the table source
type Cell struct {
	Text    string
	Missing bool
}

// NewCell builds a cell, flagging blank text as missing
func NewCell(text string) Cell {
	return Cell{Text: text, Missing: strings.TrimSpace(text) == ""}
}

// MissingCell returns a cell with no value
func MissingCell() Cell {
	return Cell{Missing: true}
}

// RawTable is the respondent-by-question table, read once and never mutated
type RawTable struct {
	Headers []string
	Rows    [][]Cell
}

// NewRawTable builds a table, padding short rows with missing cells and
// truncating long ones so every row has len(headers) cells.
func NewRawTable(headers []string, rows [][]Cell) *RawTable {
	normalized := make([][]Cell, len(rows))
	for i, row := range rows {
		r := make([]Cell, len(headers))
		for j := range r {
			if j < len(row) {
				r[j] = row[j]
			} else {
				r[j] = MissingCell()
			}
		}
		normalized[i] = r
	}
	return &RawTable{Headers: headers, Rows: normalized}
}

// RowCount returns the number of respondent rows
func (t *RawTable) RowCount() int {
	return len(t.Rows)
}

// ColumnIndex resolves a column name. An exact header match wins; otherwise a
// unique match after trimming surrounding whitespace on both sides is accepted.
func (t *RawTable) ColumnIndex(name string) (int, bool) {
	for i, h := range t.Headers {
		if h == name {
			return i, true
		}
	}
	trimmed := strings.TrimSpace(name)
	found := -1
	for i, h := range t.Headers {
		if strings.TrimSpace(h) == trimmed {
			if found >= 0 {
				return -1, false
			}
			found = i
		}
	}
	return found, found >= 0
}

// ColumnAt returns the cells of column i
func (t *RawTable) ColumnAt(i int) []Cell {
	col := make([]Cell, len(t.Rows))
	for r, row := range t.Rows {
		col[r] = row[i]
	}
	return col
}

// Column returns the cells of the named column
func (t *RawTable) Column(name string) ([]Cell, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return nil, core.NewColumnNotFoundError("table", name)
	}
	return t.ColumnAt(idx), nil
}

// Fingerprint hashes headers and cells in order
func (t *RawTable) Fingerprint() core.Hash {
	h := core.NewHasher()
	for _, header := range t.Headers {
		h.WriteString(header)
	}
	for _, row := range t.Rows {
		for _, cell := range row {
			if cell.Missing {
				h.WriteString("\x00missing")
				continue
			}
			h.WriteString(cell.Text)
		}
	}
	return h.Sum()
}

// ColumnKind is the storage kind a control column is recognised as
type ColumnKind string

const (
	KindCategorical ColumnKind = "categorical"
	KindNumeric     ColumnKind = "numeric"
	KindBoolean     ColumnKind = "boolean"
)

// Missing is the float representation of a missing value
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v represents a missing value
func IsMissing(v float64) bool { return math.IsNaN(v) }

// EncodedColumn is one output column of the categorical encoder: either an
// indicator for a single category or a pass-through numeric/boolean control.
type EncodedColumn struct {
	Name     string     `json:"name"`
	Control  string     `json:"control"`
	Category string     `json:"category,omitempty"`
	Kind     ColumnKind `json:"kind"`
	Values   []float64  `json:"-"`
}

// IsIndicator reports whether the column was derived from one category
func (c EncodedColumn) IsIndicator() bool {
	return c.Kind == KindCategorical
}

// DependentColumn is an extracted ordinal response bound to its alias
type DependentColumn struct {
	Alias  string    `json:"alias"`
	Label  string    `json:"label"`
	Values []float64 `json:"-"`
}

// Column is a named float column of the assembled table
type Column struct {
	Name   string
	Values []float64
}

// ColumnRole tells the runner where an assembled column came from
type ColumnRole string

const (
	RoleDependent ColumnRole = "dependent"
	RoleControl   ColumnRole = "control"
)

// AssembledTable is the row-aligned analysis table: dependents first, then
// encoded controls. Row order is identical to the RawTable it came from.
type AssembledTable struct {
	Columns  []Column
	Roles    []ColumnRole
	rowCount int
	index    map[string]int
}

// NewAssembledTable indexes columns by name; duplicate names and length
// mismatches are rejected.
func NewAssembledTable(rowCount int, columns []Column, roles []ColumnRole) (*AssembledTable, error) {
	if len(columns) != len(roles) {
		return nil, fmt.Errorf("got %d columns but %d roles", len(columns), len(roles))
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", core.ErrDuplicateColumn, c.Name)
		}
		if len(c.Values) != rowCount {
			return nil, fmt.Errorf("%w: %q has %d values, table has %d rows",
				core.ErrRowMisaligned, c.Name, len(c.Values), rowCount)
		}
		index[c.Name] = i
	}
	return &AssembledTable{Columns: columns, Roles: roles, rowCount: rowCount, index: index}, nil
}

// RowCount returns the number of rows
func (t *AssembledTable) RowCount() int {
	return t.rowCount
}

// Names returns column names in table order
func (t *AssembledTable) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// NamesWithRole returns the names of all columns with the given role
func (t *AssembledTable) NamesWithRole(role ColumnRole) []string {
	var names []string
	for i, c := range t.Columns {
		if t.Roles[i] == role {
			names = append(names, c.Name)
		}
	}
	return names
}

// Has reports whether the table contains the named column
func (t *AssembledTable) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Values returns the named column's values (shared, do not mutate)
func (t *AssembledTable) Values(name string) ([]float64, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.Columns[i].Values, true
}

// Fingerprint hashes names and values in column order
func (t *AssembledTable) Fingerprint() core.Hash {
	h := core.NewHasher()
	for i, c := range t.Columns {
		h.WriteString(string(t.Roles[i]))
		h.WriteString(c.Name)
		h.WriteFloats(c.Values)
	}
	return h.Sum()
}

// MissingPolicy decides what indicators hold for a row whose categorical
// control is missing.
type MissingPolicy string

const (
	// MissingAsZero sets every indicator of the control to 0, so the row
	// looks like the reference category.
	MissingAsZero MissingPolicy = "zero"
	// MissingAsMissing sets every indicator to NaN, so complete-case
	// filtering drops the row.
	MissingAsMissing MissingPolicy = "missing"
)

// RegressorPolicy decides which assembled columns enter each model
type RegressorPolicy string

const (
	// RegressAllColumns uses every other assembled column, including the
	// other dependent variables.
	RegressAllColumns RegressorPolicy = "all_columns"
	// RegressControlsOnly uses only the encoded control columns.
	RegressControlsOnly RegressorPolicy = "controls_only"
)
