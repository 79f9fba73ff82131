package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
)

func rawTable(headers []string, rows ...[]string) *survey.RawTable {
	cells := make([][]survey.Cell, len(rows))
	for i, row := range rows {
		cells[i] = make([]survey.Cell, len(row))
		for j, v := range row {
			cells[i][j] = survey.NewCell(v)
		}
	}
	return survey.NewRawTable(headers, cells)
}

func quietLogger() *internal.Logger {
	return internal.NewLogger(internal.LogLevelError)
}

func TestEncode_GenderIndicator(t *testing.T) {
	table := rawTable([]string{"Gênero", "Q1"},
		[]string{"Masculino", "4"},
		[]string{"Feminino", "1"},
		[]string{"Masculino", "x"},
	)

	enc, err := New(DefaultConfig(), quietLogger()).Encode(table, []string{"Gênero"})
	require.NoError(t, err)
	require.Len(t, enc.Columns, 1)

	col := enc.Columns[0]
	assert.Equal(t, "Gênero_Masculino", col.Name)
	assert.Equal(t, []float64{1, 0, 1}, col.Values)
	assert.True(t, col.IsIndicator())
	assert.Equal(t, "Feminino", enc.Controls[0].Reference)
}

func TestEncode_KMinusOneAndExclusive(t *testing.T) {
	table := rawTable([]string{"Faixa"},
		[]string{"18-24"}, []string{"25-34"}, []string{"35-44"},
		[]string{"25-34"}, []string{"45+"}, []string{"18-24"},
	)

	enc, err := New(DefaultConfig(), quietLogger()).Encode(table, []string{"Faixa"})
	require.NoError(t, err)

	require.Len(t, enc.Columns, 3, "4 categories must yield 3 indicators")
	assert.Equal(t, []string{"Faixa_25-34", "Faixa_35-44", "Faixa_45+"}, enc.Names())

	for row := 0; row < table.RowCount(); row++ {
		sum := 0.0
		for _, c := range enc.Columns {
			v := c.Values[row]
			assert.True(t, v == 0 || v == 1, "indicator values must be 0/1")
			sum += v
		}
		assert.LessOrEqual(t, sum, 1.0, "row %d has more than one indicator set", row)
	}
	// reference rows have every indicator at zero
	for _, c := range enc.Columns {
		assert.Equal(t, 0.0, c.Values[0])
		assert.Equal(t, 0.0, c.Values[5])
	}
}

func TestEncode_PassThroughKinds(t *testing.T) {
	table := rawTable([]string{"Idade", "Ativo"},
		[]string{"21", "True"},
		[]string{"", "False"},
		[]string{"40.5", "TRUE"},
	)

	enc, err := New(DefaultConfig(), quietLogger()).Encode(table, []string{"Idade", "Ativo"})
	require.NoError(t, err)
	require.Len(t, enc.Columns, 2)

	age := enc.Columns[0]
	assert.Equal(t, survey.KindNumeric, age.Kind)
	assert.Equal(t, "Idade", age.Name)
	assert.Equal(t, 21.0, age.Values[0])
	assert.True(t, survey.IsMissing(age.Values[1]))
	assert.Equal(t, 40.5, age.Values[2])

	active := enc.Columns[1]
	assert.Equal(t, survey.KindBoolean, active.Kind)
	assert.Equal(t, []float64{1, 0, 1}, active.Values)
}

func TestEncode_MissingPolicies(t *testing.T) {
	table := rawTable([]string{"Cor"},
		[]string{"azul"}, []string{""}, []string{"verde"},
	)

	zero, err := New(DefaultConfig(), quietLogger()).Encode(table, []string{"Cor"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, zero.Columns[0].Values)
	assert.Equal(t, 1, zero.Controls[0].Missing)

	config := DefaultConfig()
	config.MissingPolicy = survey.MissingAsMissing
	missing, err := New(config, quietLogger()).Encode(table, []string{"Cor"})
	require.NoError(t, err)
	values := missing.Columns[0].Values
	assert.Equal(t, 0.0, values[0])
	assert.True(t, survey.IsMissing(values[1]))
	assert.Equal(t, 1.0, values[2])
}

func TestEncode_ConfigurationErrors(t *testing.T) {
	table := rawTable([]string{"A", "B"}, []string{"x", "y"})
	e := New(DefaultConfig(), quietLogger())

	_, err := e.Encode(table, []string{"A", "Z"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), `"Z"`)

	_, err = e.Encode(table, []string{"A", "A"})
	assert.ErrorIs(t, err, core.ErrDuplicateColumn)
}

func TestEncode_TrimmedHeaderLookup(t *testing.T) {
	table := rawTable([]string{"Você é homem? "}, []string{"Sim"}, []string{"Não"})

	enc, err := New(DefaultConfig(), quietLogger()).Encode(table, []string{"Você é homem? "})
	require.NoError(t, err)
	require.Len(t, enc.Columns, 1)
	// "Não" < "Sim" in byte order, so Sim gets the indicator
	assert.Equal(t, "Você é homem? _Sim", enc.Columns[0].Name)
	assert.Equal(t, []float64{1, 0}, enc.Columns[0].Values)
}

func TestEncode_IndicatorNamedAfterMatchedHeader(t *testing.T) {
	table := rawTable([]string{"Você é homem? ", "Idade "},
		[]string{"Sim", "31"}, []string{"Não", "40"}, []string{"Sim", "22"})

	enc, err := New(DefaultConfig(), quietLogger()).Encode(table, []string{"Você é homem?", "Idade"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Você é homem? _Sim", "Idade "}, enc.Names())
	assert.Equal(t, "Você é homem?", enc.Columns[0].Control)
	assert.Equal(t, []string{"Você é homem? _Sim"}, enc.Controls[0].Columns)
}

func TestEncode_Deterministic(t *testing.T) {
	table := rawTable([]string{"C"},
		[]string{"b"}, []string{"a"}, []string{"c"}, []string{"b"},
	)
	e := New(DefaultConfig(), quietLogger())

	first, err := e.Encode(table, []string{"C"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Encode(table, []string{"C"})
		require.NoError(t, err)
		assert.Equal(t, first.Names(), again.Names())
		for j := range first.Columns {
			assert.Equal(t, first.Columns[j].Values, again.Columns[j].Values)
		}
	}
}

func TestEncode_AllMissingControlContributesNothing(t *testing.T) {
	table := rawTable([]string{"Vazio", "Outro"}, []string{"", "a"}, []string{"", "b"})

	enc, err := New(DefaultConfig(), quietLogger()).Encode(table, []string{"Vazio", "Outro"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Outro_b"}, enc.Names())
	assert.Len(t, enc.Controls, 2)
}
