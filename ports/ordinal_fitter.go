package ports

import (
	"context"

	"surveyfit/domain/survey"
)

// OrdinalFitRequest is one complete-case ordered logit problem.
// Columns[j][i] is regressor j for observation i; there is no intercept.
type OrdinalFitRequest struct {
	Variable string
	Y        []float64
	Columns  [][]float64
	Names    []string
	Method   string
}

// OrdinalFit is the fitted model
type OrdinalFit struct {
	Levels       []int
	Coefficients []survey.Coefficient
	Thresholds   []survey.Threshold
	Fit          survey.FitStatistics
	Predicted    []float64 // E[y|x] per observation, on the level scale
	Warnings     []string
}

// OrdinalFitterPort fits ordered-response models. Errors wrap
// core.ErrNotConverged or core.ErrNumerical on optimizer failure.
type OrdinalFitterPort interface {
	Fit(ctx context.Context, req OrdinalFitRequest) (*OrdinalFit, error)
}
