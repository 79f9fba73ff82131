package testkit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"surveyfit/domain/survey"
)

// Column names of the generated questionnaire
const (
	TimestampColumn = "Carimbo de data/hora"
	ConsentColumn   = `Ao clicar em "Aceito", você declara que compreendeu as informações e consente em participar.`
	GenderColumn    = "Você é homem? "
	AgeColumn       = "Qual é a sua faixa etária? "
	RegionColumn    = "Em qual região do Brasil você reside? "
	EngagedColumn   = "Você se considera uma pessoa politicamente engajada? "

	// SplitIndicator is the encoded indicator for male respondents
	SplitIndicator = GenderColumn + "_Sim"

	// ConstantQuestion is answered identically by everyone when enabled
	ConstantQuestion = "Você concorda com a frase de controle?"
)

// LikertQuestion is one generated dependent variable. The latent response is
// MaleEffect*male + EngagedEffect*engaged + logistic noise.
type LikertQuestion struct {
	Label         string  `json:"label"`
	MaleEffect    float64 `json:"male_effect"`
	EngagedEffect float64 `json:"engaged_effect"`
}

// SurveyGeneratorConfig configures the survey generator
type SurveyGeneratorConfig struct {
	RespondentCount  int              `json:"respondent_count"`
	Questions        []LikertQuestion `json:"questions"`
	Levels           int              `json:"levels"`             // answer scale 1..Levels
	NoDigitRate      float64          `json:"no_digit_rate"`      // share of "Não sei" answers
	MissingRate      float64          `json:"missing_rate"`       // share of blank answers
	ConstantQuestion bool             `json:"constant_question"`  // add a zero-variance question
	StartDate        time.Time        `json:"start_date"`
	Seed             int64            `json:"seed"`
}

// DefaultSurveyConfig returns a small questionnaire with clear effects
func DefaultSurveyConfig() SurveyGeneratorConfig {
	return SurveyGeneratorConfig{
		RespondentCount: 300,
		Questions: []LikertQuestion{
			{Label: "O governo deve reduzir impostos sobre a renda?", MaleEffect: 1.2, EngagedEffect: 0.3},
			{Label: "Qual a sua confiança no Banco Central?", MaleEffect: -0.6, EngagedEffect: 0.8},
			{Label: "A inflação afeta o seu orçamento?", MaleEffect: 0.0, EngagedEffect: 0.0},
		},
		Levels:      5,
		NoDigitRate: 0.03,
		MissingRate: 0.02,
		StartDate:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Seed:        42,
	}
}

// ControlColumns lists the generated control questions in study order
func ControlColumns() []string {
	return []string{GenderColumn, AgeColumn, RegionColumn, EngagedColumn}
}

// ExcludedColumns lists the generated bookkeeping columns
func ExcludedColumns() []string {
	return []string{TimestampColumn, ConsentColumn}
}

var (
	ageBands    = []string{"18 a 24 anos", "25 a 34 anos", "35 a 44 anos", "45 anos ou mais"}
	regions     = []string{"Centro-Oeste", "Nordeste", "Norte", "Sudeste", "Sul"}
	engagement  = []string{"Não", "Sim", "Talvez"}
	answerWords = []string{"Discordo totalmente", "Discordo", "Neutro", "Concordo", "Concordo totalmente"}
)

// SurveyDataGenerator generates questionnaire responses in the shape of a
// Google Forms export
type SurveyDataGenerator struct {
	config SurveyGeneratorConfig
	rng    *rand.Rand
}

// NewSurveyDataGenerator creates a new survey generator
func NewSurveyDataGenerator(config SurveyGeneratorConfig) *SurveyDataGenerator {
	if config.Levels < 2 {
		config.Levels = 5
	}
	return &SurveyDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Headers returns the generated column names in table order
func (g *SurveyDataGenerator) Headers() []string {
	headers := []string{TimestampColumn, ConsentColumn}
	headers = append(headers, ControlColumns()...)
	for _, q := range g.config.Questions {
		headers = append(headers, q.Label)
	}
	if g.config.ConstantQuestion {
		headers = append(headers, ConstantQuestion)
	}
	return headers
}

// Generate builds the raw table. The same seed always gives the same table.
func (g *SurveyDataGenerator) Generate() *survey.RawTable {
	headers := g.Headers()
	rows := make([][]survey.Cell, g.config.RespondentCount)

	for i := range rows {
		row := make([]survey.Cell, 0, len(headers))

		submitted := g.config.StartDate.Add(time.Duration(i*7+g.rng.Intn(7)) * time.Minute)
		row = append(row, survey.NewCell(submitted.Format("02/01/2006 15:04:05")))
		row = append(row, survey.NewCell("Aceito"))

		male := g.rng.Float64() < 0.5
		engaged := engagement[g.rng.Intn(len(engagement))]
		row = append(row,
			survey.NewCell(yesNo(male)),
			survey.NewCell(ageBands[g.rng.Intn(len(ageBands))]),
			survey.NewCell(regions[g.rng.Intn(len(regions))]),
			survey.NewCell(engaged),
		)

		for _, q := range g.config.Questions {
			row = append(row, g.answer(q, male, engaged == "Sim"))
		}
		if g.config.ConstantQuestion {
			row = append(row, survey.NewCell("3 - Neutro"))
		}
		rows[i] = row
	}

	return survey.NewRawTable(headers, rows)
}

// answer draws one Likert answer from the latent logistic model
func (g *SurveyDataGenerator) answer(q LikertQuestion, male, engaged bool) survey.Cell {
	r := g.rng.Float64()
	if r < g.config.MissingRate {
		return survey.MissingCell()
	}
	if r < g.config.MissingRate+g.config.NoDigitRate {
		return survey.NewCell("Não sei")
	}

	latent := 0.0
	if male {
		latent += q.MaleEffect
	}
	if engaged {
		latent += q.EngagedEffect
	}
	u := g.rng.Float64()
	latent += math.Log(u / (1 - u))

	// evenly spaced cut-points centred on zero
	level := 1
	for k := 1; k < g.config.Levels; k++ {
		cut := (float64(k) - float64(g.config.Levels)/2) * 1.2
		if latent > cut {
			level++
		}
	}

	if level <= len(answerWords) && g.rng.Float64() < 0.5 {
		return survey.NewCell(fmt.Sprintf("%d - %s", level, answerWords[level-1]))
	}
	return survey.NewCell(fmt.Sprintf("%d", level))
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}

// WriteCSV writes a raw table as CSV with missing cells left blank
func WriteCSV(w io.Writer, table *survey.RawTable) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Headers); err != nil {
		return err
	}
	record := make([]string, len(table.Headers))
	for _, row := range table.Rows {
		for j, cell := range row {
			record[j] = ""
			if !cell.Missing {
				record[j] = cell.Text
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// StaticSource serves a fixed table; it implements ports.TableSourcePort
type StaticSource struct {
	Table *survey.RawTable
	Name  string
	Err   error
	Calls int
}

// NewStaticSource creates a source that always returns table
func NewStaticSource(table *survey.RawTable) *StaticSource {
	return &StaticSource{Table: table, Name: "static"}
}

// Fetch returns the configured table or error
func (s *StaticSource) Fetch(ctx context.Context) (*survey.RawTable, error) {
	s.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Table, nil
}

// Describe names the source
func (s *StaticSource) Describe() string {
	return s.Name
}
