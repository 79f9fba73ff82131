// Package responses converts free-text answers to ordinal codes and names the
// resulting dependent variables.
package responses

import (
	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
)

// MinDigit returns the smallest ASCII digit (0-9) appearing anywhere in text.
// Text without digits has no code.
func MinDigit(text string) (int, bool) {
	min := 10
	for i := 0; i < len(text); i++ {
		if c := text[i]; c >= '0' && c <= '9' && int(c-'0') < min {
			min = int(c - '0')
			if min == 0 {
				break
			}
		}
	}
	if min == 10 {
		return 0, false
	}
	return min, true
}

// Code maps one raw cell to its ordinal code, NaN when absent
func Code(cell survey.Cell) float64 {
	if cell.Missing {
		return survey.Missing()
	}
	if d, ok := MinDigit(cell.Text); ok {
		return float64(d)
	}
	return survey.Missing()
}

// Extracted holds the dependent variables in table column order
type Extracted struct {
	Dependents []survey.DependentColumn
	RowCount   int
}

// Aliases returns the dependent aliases in order
func (e *Extracted) Aliases() []string {
	out := make([]string, len(e.Dependents))
	for i, d := range e.Dependents {
		out[i] = d.Alias
	}
	return out
}

// Labels maps alias to original question label
func (e *Extracted) Labels() map[string]string {
	out := make(map[string]string, len(e.Dependents))
	for _, d := range e.Dependents {
		out[d.Alias] = d.Label
	}
	return out
}

// Extractor selects the dependent columns of a table and codes them
type Extractor struct {
	reserved []string
	logger   *internal.Logger
}

// NewExtractor creates an extractor. Reserved names are kept out of the alias
// space so a dependent can never shadow an encoded control column.
func NewExtractor(reserved []string, logger *internal.Logger) *Extractor {
	return &Extractor{
		reserved: reserved,
		logger:   logger.OrDefault("Extractor"),
	}
}

// Extract treats every column that is neither a control nor excluded as a
// dependent variable. Each run uses a fresh alias registry, so aliases depend
// only on the table and the column lists.
func (x *Extractor) Extract(table *survey.RawTable, controls, excluded []string) (*Extracted, error) {
	skip := make(map[int]struct{}, len(controls)+len(excluded))
	for _, group := range []struct {
		role  string
		names []string
	}{{"control", controls}, {"excluded", excluded}} {
		for _, name := range group.names {
			idx, ok := table.ColumnIndex(name)
			if !ok {
				return nil, errors.ConfigInvalidf(core.NewColumnNotFoundError(group.role, name),
					"%s column %q not found in table", group.role, name)
			}
			skip[idx] = struct{}{}
		}
	}

	registry := NewAliasRegistry(x.reserved...)
	out := &Extracted{RowCount: table.RowCount()}

	for idx, label := range table.Headers {
		if _, ok := skip[idx]; ok {
			continue
		}

		cells := table.ColumnAt(idx)
		values := make([]float64, len(cells))
		coded := 0
		for i, cell := range cells {
			values[i] = Code(cell)
			if !survey.IsMissing(values[i]) {
				coded++
			}
		}

		alias := registry.Assign(label)
		if base := Alias(label); alias != base {
			x.logger.Warn("alias %q already taken, %q renamed to %q", base, label, alias)
		}
		if coded == 0 {
			x.logger.Warn("%q has no digit in any answer", alias)
		}
		x.logger.Debug("%q -> %q (%d/%d coded)", label, alias, coded, len(cells))

		out.Dependents = append(out.Dependents, survey.DependentColumn{
			Alias:  alias,
			Label:  label,
			Values: values,
		})
	}

	x.logger.Info("extracted %d dependent variables", len(out.Dependents))
	return out, nil
}
