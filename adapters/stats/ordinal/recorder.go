package ordinal

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"surveyfit/internal"
)

// traceRecorder logs every major optimizer iteration at TRACE
type traceRecorder struct {
	variable string
	logger   *internal.Logger
}

var _ optimize.Recorder = (*traceRecorder)(nil)

// newTraceRecorder returns nil unless the logger emits TRACE lines
func newTraceRecorder(variable string, logger *internal.Logger) *traceRecorder {
	if logger.GetLevel() < internal.LogLevelTrace {
		return nil
	}
	return &traceRecorder{variable: variable, logger: logger}
}

func (r *traceRecorder) Init() error { return nil }

func (r *traceRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	gradNorm := math.NaN()
	if loc.Gradient != nil {
		gradNorm = floats.Norm(loc.Gradient, math.Inf(1))
	}
	r.logger.Trace("%s: iter=%d f=%.8g |grad|=%.3g evals=%d",
		r.variable, stats.MajorIterations, loc.F, gradNorm, stats.FuncEvaluations)
	return nil
}
