package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyfit/adapters/api"
	"surveyfit/adapters/excel"
	"surveyfit/adapters/report"
	"surveyfit/internal"
	"surveyfit/internal/config"
	"surveyfit/internal/errors"
	"surveyfit/internal/testkit"
)

func studyConfig() *config.Config {
	cfg := config.Default()
	cfg.Study.ControlColumns = []string{"Você é homem? "}
	return cfg
}

func TestApplyFlags(t *testing.T) {
	cfg := studyConfig()
	opts := &options{
		source:    "respostas.xlsx",
		format:    "XLSX",
		method:    " CG ",
		workers:   3,
		reportDir: "out",
		formats:   "json,html",
	}
	require.NoError(t, applyFlags(cfg, opts))

	assert.Equal(t, "respostas.xlsx", cfg.Source.URL)
	assert.Equal(t, "xlsx", cfg.Source.Format)
	assert.Equal(t, "cg", cfg.Model.Method)
	assert.Equal(t, 3, cfg.Model.Workers)
	assert.Equal(t, "out", cfg.Report.Dir)
	assert.Equal(t, []string{"json", "html"}, cfg.Report.Formats)

	err := applyFlags(studyConfig(), &options{method: "newton"})
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestNewSource(t *testing.T) {
	logger := internal.NewLogger(internal.LogLevelError)

	cfg := studyConfig()
	_, err := newSource(cfg, logger)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err), "no source configured")

	cfg.Source.URL = "https://docs.google.com/spreadsheets/d/abc/edit#gid=0"
	source, err := newSource(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &api.HTTPSource{}, source)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/export?format=csv&gid=0", source.Describe())

	cfg.Source.URL = "dados/respostas.xlsx"
	source, err = newSource(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &excel.DataReader{}, source)

	cfg.Source.Format = "json"
	_, err = newSource(cfg, logger)
	assert.Error(t, err)
}

func TestNewService(t *testing.T) {
	cfg := studyConfig()
	cfg.Source.URL = "respostas.csv"
	cfg.Report.Dir = t.TempDir()

	service, err := newService(cfg, internal.NewLogger(internal.LogLevelError), false)
	require.NoError(t, err)
	assert.NotNil(t, service)
}

func TestEndToEnd_SyntheticFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "respostas.csv")

	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, testkit.WriteCSV(file, testkit.NewSurveyDataGenerator(testkit.DefaultSurveyConfig()).Generate()))
	require.NoError(t, file.Close())

	cfg := config.Default()
	cfg.Study.Name = "synthetic"
	cfg.Study.ControlColumns = testkit.ControlColumns()
	cfg.Study.ExcludedColumns = testkit.ExcludedColumns()
	cfg.Study.SplitIndicatorColumn = testkit.SplitIndicator
	cfg.Source.URL = path
	cfg.Report.Dir = filepath.Join(dir, "reports")
	cfg.Report.Formats = []string{"text", "json", "xlsx", "html"}
	require.NoError(t, cfg.Validate())

	service, err := newService(cfg, internal.NewLogger(internal.LogLevelError), false)
	require.NoError(t, err)

	rep, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Results, 3)
	assert.Equal(t, 3, rep.Fitted())
	for _, res := range rep.Results {
		assert.True(t, res.Groups.Present, res.Alias)
	}

	base := report.FileBase(rep)
	for _, ext := range []string{".txt", ".json", ".xlsx", ".html"} {
		_, err := os.Stat(filepath.Join(cfg.Report.Dir, base+ext))
		assert.NoError(t, err, ext)
	}
}
