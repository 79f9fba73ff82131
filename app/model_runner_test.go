package app

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyfit/adapters/stats/ordinal"
	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal/errors"
	"surveyfit/internal/testkit"
)

func preparedSurvey(t *testing.T) *Prepared {
	t.Helper()
	table := testkit.NewSurveyDataGenerator(testkit.DefaultSurveyConfig()).Generate()
	cfg := studyConfig(testkit.ControlColumns(), testkit.ExcludedColumns(), testkit.SplitIndicator)
	prepared, err := newService(testkit.NewStaticSource(table), cfg).PrepareTable(table)
	require.NoError(t, err)
	return prepared
}

func TestModelRunner_ParallelMatchesSequential(t *testing.T) {
	prepared := preparedSurvey(t)
	fitter := ordinal.NewFitter(ordinal.DefaultSettings(), quietLogger())

	sequential := NewModelRunner(fitter, RunnerConfig{SplitIndicator: testkit.SplitIndicator, Workers: 1}, quietLogger())
	parallel := NewModelRunner(fitter, RunnerConfig{SplitIndicator: testkit.SplitIndicator, Workers: 4}, quietLogger())

	a, err := sequential.Run(context.Background(), prepared.Table, prepared.Extracted.Dependents)
	require.NoError(t, err)
	b, err := parallel.Run(context.Background(), prepared.Table, prepared.Extracted.Dependents)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Alias, b[i].Alias)
		assert.Equal(t, a[i].Status, b[i].Status)
		assert.Equal(t, a[i].Coefficients, b[i].Coefficients)
	}
}

func TestModelRunner_RegressorPolicies(t *testing.T) {
	prepared := preparedSurvey(t)
	fitter := ordinal.NewFitter(ordinal.DefaultSettings(), quietLogger())
	alias := prepared.Extracted.Dependents[0].Alias

	all := NewModelRunner(fitter, RunnerConfig{}, quietLogger()).Regressors(prepared.Table, alias)
	controls := NewModelRunner(fitter, RunnerConfig{RegressorPolicy: survey.RegressControlsOnly}, quietLogger()).Regressors(prepared.Table, alias)

	assert.NotContains(t, all, alias)
	assert.Contains(t, all, prepared.Extracted.Dependents[1].Alias, "all_columns keeps the other dependents")
	assert.Equal(t, prepared.Encoded.Names(), controls)
	assert.Len(t, all, len(controls)+len(prepared.Extracted.Dependents)-1)
}

func TestModelRunner_CancelledRunMarksRemainingFailed(t *testing.T) {
	prepared := preparedSurvey(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewModelRunner(ordinal.NewFitter(ordinal.DefaultSettings(), quietLogger()), RunnerConfig{}, quietLogger())
	results, err := runner.Run(ctx, prepared.Table, prepared.Extracted.Dependents)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, len(prepared.Extracted.Dependents))
	for _, r := range results {
		assert.Equal(t, survey.StatusFailed, r.Status)
		assert.NotEmpty(t, r.Alias)
	}
}

func TestCheckDesign(t *testing.T) {
	testCases := []struct {
		name    string
		y       []float64
		columns [][]float64
		want    error
	}{
		{"empty", nil, nil, core.ErrEmptySample},
		{"single level", []float64{2, 2, 2, 2}, [][]float64{{0, 1, 0, 1}}, core.ErrZeroVariance},
		{"too few rows", []float64{1, 2}, [][]float64{{0, 1}}, core.ErrInsufficientData},
		{"constant regressor", []float64{1, 2, 1, 2, 3, 1}, [][]float64{{1, 1, 1, 1, 1, 1}}, core.ErrRankDeficient},
		{"collinear regressors", []float64{1, 2, 1, 2, 3, 1, 2}, [][]float64{{0, 1, 0, 1, 1, 0, 1}, {1, 0, 1, 0, 0, 1, 0}}, core.ErrRankDeficient},
		{"ok", []float64{1, 2, 1, 2, 3, 1}, [][]float64{{0, 1, 0, 1, 1, 0}}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkDesign(tc.y, tc.columns)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestModelRunner_SplitAbsentGivesNaNMeans(t *testing.T) {
	prepared := preparedSurvey(t)
	runner := NewModelRunner(ordinal.NewFitter(ordinal.DefaultSettings(), quietLogger()),
		RunnerConfig{SplitIndicator: "nao existe", RegressorPolicy: survey.RegressControlsOnly}, quietLogger())

	dep := prepared.Extracted.Dependents[0]
	result := runner.Analyze(context.Background(), prepared.Table, dep.Alias, dep.Label)
	require.True(t, result.OK(), result.Error)
	assert.False(t, result.Groups.Present)
	assert.True(t, math.IsNaN(float64(result.Groups.ObservedGroup1)))
	assert.True(t, math.IsNaN(float64(result.Groups.PredictedGroup0)))
	assert.Greater(t, result.Duration.Nanoseconds(), int64(0))
	assert.NotNil(t, result.Profile)
}

func TestModelRunner_SeparationFailsVariable(t *testing.T) {
	table, err := survey.NewAssembledTable(8, []survey.Column{
		{Name: "nota", Values: []float64{1, 1, 1, 1, 2, 2, 2, 2}},
		{Name: "grupo_Sim", Values: []float64{0, 0, 0, 0, 1, 1, 1, 1}},
		{Name: "outro_Sim", Values: []float64{0, 1, 1, 0, 1, 0, 0, 1}},
	}, []survey.ColumnRole{survey.RoleDependent, survey.RoleControl, survey.RoleControl})
	require.NoError(t, err)

	runner := NewModelRunner(ordinal.NewFitter(ordinal.DefaultSettings(), quietLogger()),
		RunnerConfig{SplitIndicator: "grupo_Sim"}, quietLogger())
	result := runner.Analyze(context.Background(), table, "nota", "Nota")

	assert.Equal(t, survey.StatusFailed, result.Status)
	assert.Equal(t, errors.CodeNumerical, result.ErrorCode)
	assert.Contains(t, result.Error, core.ErrSeparation.Error())
	assert.Equal(t, 8, result.NObs)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, errors.CodeNumerical, errors.GetCode(classify("q", core.ErrNotConverged)))
	assert.Equal(t, errors.CodeNumerical, errors.GetCode(classify("q", core.ErrSeparation)))
	assert.Equal(t, errors.CodeDataQuality, errors.GetCode(classify("q", core.ErrRankDeficient)))
	assert.Equal(t, errors.CodeInternalError, errors.GetCode(classify("q", assert.AnError)))
}
