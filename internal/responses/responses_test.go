package responses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal"
)

func TestMinDigit(t *testing.T) {
	testCases := []struct {
		text   string
		want   int
		wantOK bool
	}{
		{"resposta 7 e 3", 3, true},
		{"nenhum número", 0, false},
		{"42", 2, true},
		{"5 - Concordo totalmente", 5, true},
		{"1 (discordo)", 1, true},
		{"", 0, false},
		{"nota 10", 0, true},
		{"٣ arabic-indic digit only", 0, false},
	}

	for _, tc := range testCases {
		got, ok := MinDigit(tc.text)
		if ok != tc.wantOK || (ok && got != tc.want) {
			t.Errorf("MinDigit(%q) = %d, %v; want %d, %v", tc.text, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestCode_MissingCell(t *testing.T) {
	assert.True(t, survey.IsMissing(Code(survey.MissingCell())))
	assert.True(t, survey.IsMissing(Code(survey.NewCell("sem opinião"))))
	assert.Equal(t, 4.0, Code(survey.NewCell("4")))
}

func TestAlias(t *testing.T) {
	testCases := map[string]string{
		"Qual é a sua faixa etária? ":                             "faixa_etária",
		"O governo deve reduzir impostos sobre a renda?":          "governo_deve_reduzir",
		"Inflação":                                                 "inflação",
		"Você é a favor?":                                          "favor",
		"Qual é a sua?":                                            "qual é a sua?",
		"[Pergunta 3] Juros altos prejudicam o crescimento":       "pergunta_3_juros",
		"Carga-tributária/PIB":                                     "carga_tributária_pib",
	}
	for label, want := range testCases {
		assert.Equal(t, want, Alias(label), "Alias(%q)", label)
	}
}

func TestAlias_Pure(t *testing.T) {
	label := "Qual a sua opinião sobre privatizações?"
	first := Alias(label)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Alias(label))
	}
}

func TestAliasRegistry_Collisions(t *testing.T) {
	r := NewAliasRegistry("reservado")

	assert.Equal(t, "juros_altos", r.Assign("Juros altos?"))
	assert.Equal(t, "juros_altos_2", r.Assign("Juros (altos)"))
	assert.Equal(t, "juros_altos_3", r.Assign("juros altos!"))
	// same label, same alias
	assert.Equal(t, "juros_altos_2", r.Assign("Juros (altos)"))
	// reserved names are skipped
	assert.Equal(t, "reservado_2", r.Assign("Reservado"))

	assert.Equal(t, []string{"juros_altos", "juros_altos_2", "juros_altos_3", "reservado_2"}, r.Assigned())
}

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

func TestExtract(t *testing.T) {
	table := rawTable(
		[]string{"Carimbo de data/hora", "Gênero", "Qual é a sua faixa etária? ", "Inflação preocupa?"},
		[]string{"2024-01-01", "Masculino", "4 - alta", "5"},
		[]string{"2024-01-02", "Feminino", "1", ""},
		[]string{"2024-01-03", "Masculino", "não sei", "2 ou 3"},
	)
	x := NewExtractor(nil, internal.NewLogger(internal.LogLevelError))

	got, err := x.Extract(table, []string{"Gênero"}, []string{"Carimbo de data/hora"})
	require.NoError(t, err)
	require.Len(t, got.Dependents, 2)
	assert.Equal(t, []string{"faixa_etária", "inflação_preocupa"}, got.Aliases())
	assert.Equal(t, "Qual é a sua faixa etária? ", got.Labels()["faixa_etária"])

	values := got.Dependents[0].Values
	assert.Equal(t, 4.0, values[0])
	assert.Equal(t, 1.0, values[1])
	assert.True(t, survey.IsMissing(values[2]))

	second := got.Dependents[1].Values
	assert.True(t, survey.IsMissing(second[1]))
	assert.Equal(t, 2.0, second[2])
}

func TestExtract_MissingExcludedColumn(t *testing.T) {
	table := rawTable([]string{"A", "B"}, []string{"1", "2"})
	x := NewExtractor(nil, internal.NewLogger(internal.LogLevelError))

	_, err := x.Extract(table, []string{"A"}, []string{"Carimbo de data/hora"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}

func TestExtract_ReservedNames(t *testing.T) {
	table := rawTable([]string{"Gênero", "Gênero Masculino"}, []string{"Masculino", "3"})
	x := NewExtractor([]string{"gênero_masculino"}, internal.NewLogger(internal.LogLevelError))

	got, err := x.Extract(table, []string{"Gênero"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"gênero_masculino_2"}, got.Aliases())
}
