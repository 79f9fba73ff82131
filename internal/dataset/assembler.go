// Package dataset builds the row-aligned analysis table from the extracted
// dependents and the encoded controls.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
)

// Assembler concatenates columns positionally. No rows are filtered or
// reordered: row i of every output column is respondent i.
type Assembler struct {
	logger *internal.Logger
}

// NewAssembler creates an assembler
func NewAssembler(logger *internal.Logger) *Assembler {
	return &Assembler{logger: logger.OrDefault("Assembler")}
}

// Assemble returns dependents (in order) followed by encoded controls (in order).
func (a *Assembler) Assemble(rowCount int, dependents []survey.DependentColumn, controls []survey.EncodedColumn) (*survey.AssembledTable, error) {
	columns := make([]survey.Column, 0, len(dependents)+len(controls))
	roles := make([]survey.ColumnRole, 0, len(dependents)+len(controls))

	for _, d := range dependents {
		columns = append(columns, survey.Column{Name: d.Alias, Values: d.Values})
		roles = append(roles, survey.RoleDependent)
	}
	for _, c := range controls {
		columns = append(columns, survey.Column{Name: c.Name, Values: c.Values})
		roles = append(roles, survey.RoleControl)
	}

	table, err := survey.NewAssembledTable(rowCount, columns, roles)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("assemble analysis table: %w", err))
	}

	a.logger.Info("assembled %d rows x %d columns (%d dependents, %d controls)",
		rowCount, len(columns), len(dependents), len(controls))
	return table, nil
}

// CompleteRows returns the indices of rows where every named column is
// non-missing, in original order.
func CompleteRows(table *survey.AssembledTable, names []string) ([]int, error) {
	cols := make([][]float64, len(names))
	for i, name := range names {
		values, ok := table.Values(name)
		if !ok {
			return nil, core.NewColumnNotFoundError("assembled", name)
		}
		cols[i] = values
	}

	rows := make([]int, 0, table.RowCount())
	for r := 0; r < table.RowCount(); r++ {
		complete := true
		for _, values := range cols {
			if survey.IsMissing(values[r]) {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// WriteCSV exports the assembled table; missing values are written empty.
func WriteCSV(w io.Writer, table *survey.AssembledTable) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(table.Columns))
	for r := 0; r < table.RowCount(); r++ {
		for c, col := range table.Columns {
			v := col.Values[r]
			if survey.IsMissing(v) {
				record[c] = ""
			} else {
				record[c] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
