package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/mat"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/dataset"
	"surveyfit/internal/errors"
	"surveyfit/internal/profiling"
	"surveyfit/ports"
)

// RunnerConfig selects regressors, grouping and parallelism
type RunnerConfig struct {
	RegressorPolicy survey.RegressorPolicy
	SplitIndicator  string
	Method          string
	Workers         int
}

// ModelRunner fits one ordered logit per dependent variable. Per-variable
// failures are recorded on the result and never stop the loop.
type ModelRunner struct {
	fitter   ports.OrdinalFitterPort
	profiler *profiling.ResponseProfiler
	config   RunnerConfig
	logger   *internal.Logger
}

// NewModelRunner creates a model runner
func NewModelRunner(fitter ports.OrdinalFitterPort, config RunnerConfig, logger *internal.Logger) *ModelRunner {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.RegressorPolicy == "" {
		config.RegressorPolicy = survey.RegressAllColumns
	}
	return &ModelRunner{
		fitter:   fitter,
		profiler: profiling.NewResponseProfiler(),
		config:   config,
		logger:   logger.OrDefault("ModelRunner"),
	}
}

// Run analyses every dependent in order. The returned slice always has one
// result per dependent; the error is non-nil only when ctx was cancelled,
// in which case unprocessed variables are marked failed.
func (r *ModelRunner) Run(ctx context.Context, table *survey.AssembledTable, dependents []survey.DependentColumn) ([]survey.ModelResult, error) {
	results := make([]survey.ModelResult, len(dependents))
	done := make([]bool, len(dependents))

	r.logger.Info("fitting %d models (%s regressors, %d workers)",
		len(dependents), r.config.RegressorPolicy, r.config.Workers)

	var runErr error
	if r.config.Workers == 1 {
		for i, dep := range dependents {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			results[i] = r.Analyze(ctx, table, dep.Alias, dep.Label)
			done[i] = true
		}
	} else {
		sem := semaphore.NewWeighted(int64(r.config.Workers))
		var mu sync.Mutex
		for i, dep := range dependents {
			if err := sem.Acquire(ctx, 1); err != nil {
				runErr = err
				break
			}
			go func(i int, dep survey.DependentColumn) {
				defer sem.Release(1)
				res := r.Analyze(ctx, table, dep.Alias, dep.Label)
				mu.Lock()
				results[i] = res
				done[i] = true
				mu.Unlock()
			}(i, dep)
		}
		// wait for in-flight units
		_ = sem.Acquire(context.Background(), int64(r.config.Workers))
	}

	if runErr != nil {
		for i, dep := range dependents {
			if !done[i] {
				results[i] = failedResult(dep.Alias, dep.Label,
					errors.Wrap(runErr, "analysis not started"))
			}
		}
		r.logger.Warn("run cancelled: %v", runErr)
	}

	fitted := 0
	for _, res := range results {
		if res.OK() {
			fitted++
		}
	}
	r.logger.Info("fitted %d/%d models", fitted, len(results))
	return results, runErr
}

// Analyze fits the model for one dependent alias
func (r *ModelRunner) Analyze(ctx context.Context, table *survey.AssembledTable, alias, label string) (result survey.ModelResult) {
	start := time.Now()
	result = survey.ModelResult{
		Alias:  alias,
		Label:  label,
		Status: survey.StatusOK,
		Groups: survey.UndefinedGroupMeans(r.config.SplitIndicator),
	}
	defer func() { result.Duration = time.Since(start) }()

	values, ok := table.Values(alias)
	if !ok {
		return r.fail(result, errors.InternalError(fmt.Sprintf("dependent %q is not in the assembled table", alias)))
	}
	profile := r.profiler.Profile(values)
	result.Profile = &profile

	regressors := r.Regressors(table, alias)
	result.Regressors = regressors

	rows, err := dataset.CompleteRows(table, append([]string{alias}, regressors...))
	if err != nil {
		return r.fail(result, errors.Wrap(err, "complete-case filter"))
	}
	result.NObs = len(rows)

	y := pick(values, rows)
	columns := make([][]float64, len(regressors))
	for j, name := range regressors {
		col, _ := table.Values(name)
		columns[j] = pick(col, rows)
	}

	if err := checkDesign(y, columns); err != nil {
		return r.fail(result, errors.DataQuality(alias, err))
	}

	fit, err := r.fitter.Fit(ctx, ports.OrdinalFitRequest{
		Variable: alias,
		Y:        y,
		Columns:  columns,
		Names:    regressors,
		Method:   r.config.Method,
	})
	if err != nil {
		return r.fail(result, classify(alias, err))
	}

	result.Levels = fit.Levels
	result.Coefficients = fit.Coefficients
	result.Thresholds = fit.Thresholds
	result.Fit = &fit.Fit
	result.Warnings = append(result.Warnings, fit.Warnings...)
	result.Groups = r.groupMeans(regressors, columns, y, fit.Predicted)

	r.logger.Info("%s: n=%d, llf=%.3f, pseudo R2=%.4f",
		alias, result.NObs, float64(fit.Fit.LogLikelihood), float64(fit.Fit.PseudoR2))
	return result
}

// Regressors lists the candidate regressors for alias in table order
func (r *ModelRunner) Regressors(table *survey.AssembledTable, alias string) []string {
	var names []string
	for i, c := range table.Columns {
		if c.Name == alias {
			continue
		}
		if r.config.RegressorPolicy == survey.RegressControlsOnly && table.Roles[i] != survey.RoleControl {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

func (r *ModelRunner) fail(result survey.ModelResult, err error) survey.ModelResult {
	r.logger.Warn("%s: skipped: %v", result.Alias, err)
	result.Status = survey.StatusFailed
	result.ErrorCode = errors.GetCode(err)
	result.Error = err.Error()
	return result
}

func failedResult(alias, label string, err error) survey.ModelResult {
	return survey.ModelResult{
		Alias:     alias,
		Label:     label,
		Status:    survey.StatusFailed,
		ErrorCode: errors.GetCode(err),
		Error:     err.Error(),
	}
}

// groupMeans compares observed and predicted means across the split indicator
func (r *ModelRunner) groupMeans(regressors []string, columns [][]float64, y, predicted []float64) survey.GroupMeans {
	groups := survey.UndefinedGroupMeans(r.config.SplitIndicator)
	if r.config.SplitIndicator == "" {
		return groups
	}
	for j, name := range regressors {
		if name != r.config.SplitIndicator {
			continue
		}
		split := columns[j]
		groups.Present = true

		obs1, n1 := profiling.GroupMean(y, split, 1)
		obs0, n0 := profiling.GroupMean(y, split, 0)
		groups.N1, groups.N0 = n1, n0
		groups.ObservedGroup1 = survey.Float(obs1)
		groups.ObservedGroup0 = survey.Float(obs0)

		if len(predicted) == len(y) {
			pred1, _ := profiling.GroupMean(predicted, split, 1)
			pred0, _ := profiling.GroupMean(predicted, split, 0)
			groups.PredictedGroup1 = survey.Float(pred1)
			groups.PredictedGroup0 = survey.Float(pred0)
		}
		break
	}
	return groups
}

// checkDesign runs the data-quality checks that must pass before fitting
func checkDesign(y []float64, columns [][]float64) error {
	n, p := len(y), len(columns)
	if n == 0 {
		return core.ErrEmptySample
	}

	levels := make(map[float64]struct{})
	for _, v := range y {
		levels[v] = struct{}{}
	}
	if len(levels) < 2 {
		return fmt.Errorf("%w: every complete row answers %v", core.ErrZeroVariance, y[0])
	}

	params := p + len(levels) - 1
	if n <= params {
		return fmt.Errorf("%w: %d complete rows for %d parameters", core.ErrInsufficientData, n, params)
	}

	if rank := designRank(columns, n); rank < p+1 {
		return fmt.Errorf("%w: rank %d < %d (constant or collinear regressors)", core.ErrRankDeficient, rank, p+1)
	}
	return nil
}

// designRank is the numerical rank of [1 | X]. The thresholds act as an
// intercept, so a constant regressor counts as collinear.
func designRank(columns [][]float64, n int) int {
	p := len(columns)
	design := mat.NewDense(n, p+1, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j, col := range columns {
			design.Set(i, j+1, col[i])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDNone); !ok {
		return 0
	}
	rcond := float64(max(n, p+1)) * 2.220446049250313e-16
	return svd.Rank(rcond)
}

// classify maps fitter errors onto the error taxonomy
func classify(alias string, err error) error {
	switch {
	case core.IsDataQualityError(err):
		return errors.DataQuality(alias, err)
	case core.IsNumericalError(err):
		return errors.Numerical(alias, err)
	case errors.IsAppError(err):
		return err
	default:
		return errors.Wrapf(err, "fit %s", alias)
	}
}

func pick(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

