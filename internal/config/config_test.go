package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal/errors"
)

const studyYAML = `
name: clima
source_url: https://example.org/respostas.csv
control_columns:
  - "Você é homem? "
  - "Qual é a sua faixa etária? "
excluded_columns:
  - "Carimbo de data/hora"
split_indicator_column: "Você é homem? _Sim"
optimizer_method: BFGS
regressor_policy: controls_only
missing_markers: ["", "NA"]
`

func writeStudy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseStudy_KeepsTrailingSpaces(t *testing.T) {
	study, err := ParseStudy([]byte(studyYAML))
	require.NoError(t, err)

	assert.Equal(t, "clima", study.Name)
	assert.Equal(t, []string{"Você é homem? ", "Qual é a sua faixa etária? "}, study.ControlColumns)
	assert.Equal(t, "Você é homem? _Sim", study.SplitIndicatorColumn)
	assert.Equal(t, survey.RegressControlsOnly, study.RegressorPolicy)
}

func TestParseStudy_Invalid(t *testing.T) {
	_, err := ParseStudy([]byte("control_columns: {"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoad_StudyFile(t *testing.T) {
	path := writeStudy(t, studyYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/respostas.csv", cfg.Source.URL)
	assert.Equal(t, "bfgs", cfg.Model.Method, "method names are normalised")
	assert.Equal(t, cfg.Model.Method, cfg.Study.OptimizerMethod)
	assert.Equal(t, survey.MissingAsZero, cfg.Study.MissingControlPolicy, "default kept")
	assert.Equal(t, []string{"", "NA"}, cfg.Study.MissingMarkers)
	assert.Equal(t, 1, cfg.Model.Workers)
}

func TestLoad_EnvOverridesStudy(t *testing.T) {
	path := writeStudy(t, studyYAML)
	t.Setenv("SOURCE_URL", "local.xlsx")
	t.Setenv("OPTIMIZER_METHOD", "nm")
	t.Setenv("WORKERS", "4")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("REPORT_FORMATS", "json, XLSX")
	t.Setenv("MAX_ITERATIONS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local.xlsx", cfg.Source.URL)
	assert.Equal(t, "nm", cfg.Model.Method)
	assert.Equal(t, 4, cfg.Model.Workers)
	assert.Equal(t, 5*time.Second, cfg.Source.Timeout)
	assert.Equal(t, []string{"json", "xlsx"}, cfg.Report.Formats)
	assert.Equal(t, 500, cfg.Model.MaxIterations, "unparsable values fall back")
}

func TestLoad_StudyFileFromEnv(t *testing.T) {
	t.Setenv("STUDY_FILE", writeStudy(t, studyYAML))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "clima", cfg.Study.Name)
}

func TestLoad_MissingStudyFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Study.ControlColumns = []string{"a", "b"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no controls", func(c *Config) { c.Study.ControlColumns = nil }},
		{"unknown method", func(c *Config) { c.SetOptimizerMethod("newton") }},
		{"unknown missing policy", func(c *Config) { c.Study.MissingControlPolicy = "drop" }},
		{"unknown regressor policy", func(c *Config) { c.Study.RegressorPolicy = "some" }},
		{"no workers", func(c *Config) { c.Model.Workers = 0 }},
		{"no iterations", func(c *Config) { c.Model.MaxIterations = 0 }},
		{"negative retries", func(c *Config) { c.Source.Retries = -1 }},
		{"unknown format", func(c *Config) { c.Report.Formats = []string{"pdf"} }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestValidate_DuplicateControl(t *testing.T) {
	cfg := Default()
	cfg.Study.ControlColumns = []string{"a", "a"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateColumn)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"text", "json"}, SplitList(" Text, ,json,"))
	assert.Nil(t, SplitList(""))
}
