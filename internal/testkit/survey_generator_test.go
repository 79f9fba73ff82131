package testkit

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurveyDataGenerator_Deterministic(t *testing.T) {
	config := DefaultSurveyConfig()

	a := NewSurveyDataGenerator(config).Generate()
	b := NewSurveyDataGenerator(config).Generate()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	config.Seed = 7
	c := NewSurveyDataGenerator(config).Generate()
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestSurveyDataGenerator_Shape(t *testing.T) {
	config := DefaultSurveyConfig()
	config.RespondentCount = 50
	config.ConstantQuestion = true
	gen := NewSurveyDataGenerator(config)
	table := gen.Generate()

	require.Equal(t, 50, table.RowCount())
	assert.Len(t, table.Headers, 2+len(ControlColumns())+len(config.Questions)+1)

	for _, name := range append(ControlColumns(), ExcludedColumns()...) {
		_, ok := table.ColumnIndex(name)
		assert.True(t, ok, "missing column %q", name)
	}

	constant, err := table.Column(ConstantQuestion)
	require.NoError(t, err)
	for _, cell := range constant {
		assert.Equal(t, "3 - Neutro", cell.Text)
	}

	gender, err := table.Column(GenderColumn)
	require.NoError(t, err)
	for _, cell := range gender {
		assert.Contains(t, []string{"Sim", "Não"}, cell.Text)
	}
}

func TestWriteCSV_RoundTripsHeaders(t *testing.T) {
	config := DefaultSurveyConfig()
	config.RespondentCount = 5
	table := NewSurveyDataGenerator(config).Generate()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, table.Headers, records[0])
}
