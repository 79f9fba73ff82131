// Package encoder turns the configured control columns of a raw survey table
// into numeric model inputs. Categorical controls become k-1 indicator columns
// (the lexicographically first category is the reference and is dropped);
// numeric and boolean controls pass through as floats.
package encoder

import (
	"fmt"
	"sort"

	"surveyfit/adapters/datareadiness/coercer"
	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
)

// Config controls the encoder
type Config struct {
	MissingPolicy survey.MissingPolicy
	Coercion      coercer.CoercionConfig
}

// DefaultConfig returns the encoder defaults
func DefaultConfig() Config {
	return Config{
		MissingPolicy: survey.MissingAsZero,
		Coercion:      coercer.DefaultCoercionConfig(),
	}
}

// ControlSummary describes how one control column was encoded
type ControlSummary struct {
	Control    string            `json:"control"`
	Kind       survey.ColumnKind `json:"kind"`
	Categories []string          `json:"categories,omitempty"`
	Reference  string            `json:"reference,omitempty"`
	Missing    int               `json:"missing"`
	Columns    []string          `json:"columns"`
}

// Encoded is the encoder output, columns in control order
type Encoded struct {
	Columns  []survey.EncodedColumn
	Controls []ControlSummary
	RowCount int
}

// Names returns the encoded column names in order
func (e *Encoded) Names() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// Encoder is the categorical encoder
type Encoder struct {
	config  Config
	coercer *coercer.TypeCoercer
	logger  *internal.Logger
}

// New creates an encoder; a nil logger uses the default logger
func New(config Config, logger *internal.Logger) *Encoder {
	if config.MissingPolicy == "" {
		config.MissingPolicy = survey.MissingAsZero
	}
	return &Encoder{
		config:  config,
		coercer: coercer.NewTypeCoercer(config.Coercion),
		logger:  logger.OrDefault("Encoder"),
	}
}

// Encode encodes the named controls of table, in the order given.
func (e *Encoder) Encode(table *survey.RawTable, controls []string) (*Encoded, error) {
	seen := make(map[string]bool, len(controls))
	for _, name := range controls {
		if seen[name] {
			return nil, errors.ConfigInvalidf(core.ErrDuplicateColumn, "control column %q listed twice", name)
		}
		seen[name] = true
	}

	out := &Encoded{RowCount: table.RowCount()}
	names := make(map[string]string)

	for _, control := range controls {
		idx, ok := table.ColumnIndex(control)
		if !ok {
			return nil, errors.ConfigInvalidf(core.NewColumnNotFoundError("control", control),
				"control column %q not found in table", control)
		}
		cells := table.ColumnAt(idx)

		columns, summary := e.encodeColumn(control, table.Headers[idx], cells)
		for _, c := range columns {
			if prev, dup := names[c.Name]; dup {
				return nil, errors.ConfigInvalidf(core.ErrDuplicateColumn,
					"encoded column %q produced by both %q and %q", c.Name, prev, control)
			}
			names[c.Name] = control
		}
		out.Columns = append(out.Columns, columns...)
		out.Controls = append(out.Controls, summary)
	}

	e.logger.Info("encoded %d controls into %d columns over %d rows",
		len(controls), len(out.Columns), out.RowCount)
	return out, nil
}

// encodeColumn names output columns after header, the text that matched
// control in the table.
func (e *Encoder) encodeColumn(control, header string, cells []survey.Cell) ([]survey.EncodedColumn, ControlSummary) {
	analysis := e.coercer.AnalyzeColumn(cells)
	summary := ControlSummary{
		Control: control,
		Kind:    analysis.RecommendedKind,
		Missing: analysis.TotalCount - analysis.ValidCount,
	}

	switch analysis.RecommendedKind {
	case survey.KindNumeric:
		values := make([]float64, len(cells))
		for i, cell := range cells {
			values[i] = survey.Missing()
			if !cell.Missing {
				if v, ok := e.coercer.ParseNumeric(cell.Text); ok {
					values[i] = v
				}
			}
		}
		summary.Columns = []string{header}
		e.logger.Debug("%q passes through as numeric", control)
		return []survey.EncodedColumn{{Name: header, Control: control, Kind: survey.KindNumeric, Values: values}}, summary

	case survey.KindBoolean:
		values := make([]float64, len(cells))
		for i, cell := range cells {
			values[i] = survey.Missing()
			if b, ok := e.coercer.ParseBoolean(cell.Text); ok && !cell.Missing {
				values[i] = 0
				if b {
					values[i] = 1
				}
			}
		}
		summary.Columns = []string{header}
		e.logger.Debug("%q passes through as boolean", control)
		return []survey.EncodedColumn{{Name: header, Control: control, Kind: survey.KindBoolean, Values: values}}, summary
	}

	categories := Categories(cells)
	summary.Categories = categories
	if len(categories) == 0 {
		e.logger.Warn("%q has no observed values and contributes no columns", control)
		return nil, summary
	}
	summary.Reference = categories[0]
	if max := e.config.Coercion.MaxCategories; max > 0 && len(categories) > max {
		e.logger.Warn("%q has %d categories (limit %d); is it free text?", control, len(categories), max)
	}

	columns := make([]survey.EncodedColumn, 0, len(categories)-1)
	for _, category := range categories[1:] {
		values := make([]float64, len(cells))
		for i, cell := range cells {
			switch {
			case cell.Missing && e.config.MissingPolicy == survey.MissingAsMissing:
				values[i] = survey.Missing()
			case !cell.Missing && cell.Text == category:
				values[i] = 1
			}
		}
		name := IndicatorName(header, category)
		summary.Columns = append(summary.Columns, name)
		columns = append(columns, survey.EncodedColumn{
			Name:     name,
			Control:  control,
			Category: category,
			Kind:     survey.KindCategorical,
			Values:   values,
		})
	}

	if summary.Missing > 0 {
		e.logger.Debug("%q: %d missing values encoded with policy %s", control, summary.Missing, e.config.MissingPolicy)
	}
	return columns, summary
}

// Categories returns the distinct non-missing values of a column in
// lexicographic (byte) order.
func Categories(cells []survey.Cell) []string {
	set := make(map[string]struct{})
	for _, cell := range cells {
		if !cell.Missing {
			set[cell.Text] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// IndicatorName is the column name of the indicator for category of the
// column headed header
func IndicatorName(header, category string) string {
	return fmt.Sprintf("%s_%s", header, category)
}
