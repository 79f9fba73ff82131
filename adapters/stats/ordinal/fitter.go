package ordinal

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/ports"
)

// Settings configures the optimizer
type Settings struct {
	Method            string  // lbfgs, bfgs, cg, nm/neldermead
	MaxIterations     int     // major iteration limit
	GradientTolerance float64 // infinity-norm threshold on the mean gradient
}

// DefaultSettings returns L-BFGS with generous limits
func DefaultSettings() Settings {
	return Settings{
		Method:            "lbfgs",
		MaxIterations:     500,
		GradientTolerance: 1e-6,
	}
}

// Fitter implements ports.OrdinalFitterPort
type Fitter struct {
	settings Settings
	logger   *internal.Logger
}

// NewFitter creates a fitter
func NewFitter(settings Settings, logger *internal.Logger) *Fitter {
	if settings.Method == "" {
		settings.Method = DefaultSettings().Method
	}
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = DefaultSettings().MaxIterations
	}
	if settings.GradientTolerance <= 0 {
		settings.GradientTolerance = DefaultSettings().GradientTolerance
	}
	return &Fitter{settings: settings, logger: logger.OrDefault("OrdinalFitter")}
}

var _ ports.OrdinalFitterPort = (*Fitter)(nil)

// Method maps a method name to a gonum optimizer
func Method(name string) (optimize.Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lbfgs":
		return &optimize.LBFGS{}, nil
	case "bfgs":
		return &optimize.BFGS{}, nil
	case "cg":
		return &optimize.CG{}, nil
	case "nm", "neldermead":
		return &optimize.NelderMead{}, nil
	}
	return nil, fmt.Errorf("unknown optimizer method %q", name)
}

// Fit estimates the model by maximum likelihood and computes Wald inference
// from the numerically differentiated Hessian.
func (f *Fitter) Fit(ctx context.Context, req ports.OrdinalFitRequest) (*ports.OrdinalFit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	methodName := req.Method
	if methodName == "" {
		methodName = f.settings.Method
	}
	method, err := Method(methodName)
	if err != nil {
		return nil, core.NewValidationError("method", err.Error())
	}

	m := newModel(req.Y, req.Columns)
	if m.k() < 2 {
		return nil, fmt.Errorf("%w: only level %v observed", core.ErrZeroVariance, m.levels)
	}
	if m.n <= m.numParams() {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", core.ErrInsufficientData, m.n, m.numParams())
	}

	nobs := float64(m.n)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return -m.logLike(x) / nobs
		},
		Grad: func(grad, x []float64) {
			m.gradient(grad, x)
			for i := range grad {
				grad[i] = -grad[i] / nobs
			}
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   f.settings.MaxIterations,
		GradientThreshold: f.settings.GradientTolerance,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 50,
		},
	}

	if recorder := newTraceRecorder(req.Variable, f.logger); recorder != nil {
		settings.Recorder = recorder
	}

	start := m.startParams()
	f.logger.Debug("%s: fitting %d obs, %d regressors, %d levels with %s",
		req.Variable, m.n, m.p, m.k(), methodName)

	result, err := optimize.Minimize(problem, start, settings, method)
	if result == nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNumerical, err)
	}
	if !converged(result.Status) {
		if err == nil {
			err = result.Status.Err()
		}
		return nil, fmt.Errorf("%w: %s after %d iterations (%v)",
			core.ErrNotConverged, result.Status, result.Stats.MajorIterations, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := result.X
	ll := m.logLike(params)
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return nil, fmt.Errorf("%w: log-likelihood %v", core.ErrNumerical, ll)
	}

	out := &ports.OrdinalFit{
		Levels:    append([]int(nil), m.levels...),
		Predicted: m.expected(params),
	}

	stdErrs, warning := f.standardErrors(m, params)
	if warning != "" {
		out.Warnings = append(out.Warnings, warning)
		f.logger.Warn("%s: %s", req.Variable, warning)
	}

	if reason := separated(m, req.Names, params, stdErrs); reason != "" {
		return nil, fmt.Errorf("%w: %s", core.ErrSeparation, reason)
	}

	out.Coefficients = coefficients(req.Names, params[:m.p], stdErrs[:m.p])
	out.Thresholds = thresholds(m, params, stdErrs)
	out.Fit = fitStatistics(m, ll, methodName, result)

	f.logger.Debug("%s: converged (%s) in %d iterations, llf=%.4f",
		req.Variable, result.Status, result.Stats.MajorIterations, ll)
	return out, nil
}

// converged lists the terminations that mean the optimum was reached
func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge,
		optimize.FunctionThreshold:
		return true
	}
	return false
}

func validateRequest(req ports.OrdinalFitRequest) error {
	if len(req.Y) == 0 {
		return core.ErrEmptySample
	}
	if len(req.Columns) != len(req.Names) {
		return core.NewValidationError("columns", fmt.Sprintf("%d columns but %d names", len(req.Columns), len(req.Names)))
	}
	for j, col := range req.Columns {
		if len(col) != len(req.Y) {
			return fmt.Errorf("%w: regressor %q has %d values for %d observations",
				core.ErrRowMisaligned, req.Names[j], len(col), len(req.Y))
		}
	}
	for i, v := range req.Y {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return core.NewValidationError("y", fmt.Sprintf("observation %d is not an integer code: %v", i, v))
		}
	}
	return nil
}

// standardErrors inverts the observed information matrix. A Hessian that is
// not positive definite yields NaN standard errors and a warning.
func (f *Fitter) standardErrors(m *model, params []float64) ([]float64, string) {
	n := m.numParams()
	stdErrs := make([]float64, n)
	for i := range stdErrs {
		stdErrs[i] = math.NaN()
	}

	// Jacobian of the negative score is the observed information
	hess := mat.NewDense(n, n, nil)
	fd.Jacobian(hess, func(dst, x []float64) {
		m.gradient(dst, x)
		for i := range dst {
			dst[i] = -dst[i]
		}
	}, params, &fd.JacobianSettings{Formula: fd.Central})

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (hess.At(i, j)+hess.At(j, i))/2)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return stdErrs, "Hessian is not positive definite; standard errors are undefined"
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return stdErrs, fmt.Sprintf("covariance inversion failed: %v", err)
	}

	warning := ""
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v < 0 || math.IsNaN(v) {
			warning = "covariance matrix has negative variances"
			continue
		}
		stdErrs[i] = math.Sqrt(v)
	}
	if cond := chol.Cond(); cond > 1e12 {
		warning = fmt.Sprintf("Hessian is ill-conditioned (condition number %.3g)", cond)
	}
	return stdErrs, warning
}

// Separation bounds. A slope past maxSlope whose standard error is undefined
// or larger than the slope itself is drifting towards infinity.
const (
	maxSlope       = 10.0
	perfectFitProb = 1 - 1e-6
)

// separated reports why the estimate looks like a separated fit, or "" when it
// does not.
func separated(m *model, names []string, params, stdErrs []float64) string {
	for j := 0; j < m.p; j++ {
		beta, se := math.Abs(params[j]), stdErrs[j]
		if beta > maxSlope && (math.IsNaN(se) || se > beta) {
			return fmt.Sprintf("coefficient %q = %.3g with standard error %.3g", names[j], params[j], se)
		}
	}
	if m.p == 0 {
		return ""
	}
	for i, row := range m.probabilities(params) {
		if row[m.y[i]] < perfectFitProb {
			return ""
		}
	}
	return "every observed level is predicted with probability 1"
}

// wald returns z, two-sided p-value and 95% confidence bounds
func wald(param, stdErr float64) (z, p, lower, upper float64) {
	if math.IsNaN(stdErr) || stdErr == 0 {
		nan := math.NaN()
		return nan, nan, nan, nan
	}
	z = param / stdErr
	p = 2 * distuv.UnitNormal.Survival(math.Abs(z))
	q := distuv.UnitNormal.Quantile(0.975)
	return z, p, param - q*stdErr, param + q*stdErr
}

func coefficients(names []string, beta, stdErrs []float64) []survey.Coefficient {
	out := make([]survey.Coefficient, len(beta))
	for j, b := range beta {
		z, p, lo, hi := wald(b, stdErrs[j])
		out[j] = survey.Coefficient{
			Name:    names[j],
			Coef:    survey.Float(b),
			StdErr:  survey.Float(stdErrs[j]),
			Z:       survey.Float(z),
			PValue:  survey.Float(p),
			CILower: survey.Float(lo),
			CIUpper: survey.Float(hi),
		}
	}
	return out
}

// thresholds names each cut-point after the two levels it separates, "1/2"
func thresholds(m *model, params, stdErrs []float64) []survey.Threshold {
	cuts := m.cuts(params)
	out := make([]survey.Threshold, len(cuts))
	for j, cut := range cuts {
		param := params[m.p+j]
		se := stdErrs[m.p+j]
		z, p, _, _ := wald(param, se)
		out[j] = survey.Threshold{
			Name:     fmt.Sprintf("%d/%d", m.levels[j], m.levels[j+1]),
			Param:    survey.Float(param),
			StdErr:   survey.Float(se),
			Z:        survey.Float(z),
			PValue:   survey.Float(p),
			CutPoint: survey.Float(cut),
		}
	}
	return out
}

func fitStatistics(m *model, ll float64, method string, result *optimize.Result) survey.FitStatistics {
	llNull := m.nullLogLike()
	k := float64(m.numParams())
	nobs := float64(m.n)

	llr := 2 * (ll - llNull)
	llrP := math.NaN()
	if m.p > 0 {
		llrP = distuv.ChiSquared{K: float64(m.p)}.Survival(math.Max(llr, 0))
	}
	pseudoR2 := math.NaN()
	if llNull != 0 {
		pseudoR2 = 1 - ll/llNull
	}

	return survey.FitStatistics{
		Method:        method,
		LogLikelihood: survey.Float(ll),
		LLNull:        survey.Float(llNull),
		LLR:           survey.Float(llr),
		LLRPValue:     survey.Float(llrP),
		PseudoR2:      survey.Float(pseudoR2),
		AIC:           survey.Float(-2*ll + 2*k),
		BIC:           survey.Float(-2*ll + math.Log(nobs)*k),
		DFModel:       m.p,
		DFResid:       m.n - m.numParams(),
		Iterations:    result.Stats.MajorIterations,
		FuncEvals:     result.Stats.FuncEvaluations,
		Converged:     true,
		Status:        result.Status.String(),
	}
}
