package survey

import (
	"encoding/json"
	"math"
	"time"
)

// Float is a float64 that encodes NaN and ±Inf as JSON null
type Float float64

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Defined reports whether the value is a finite number
func (f Float) Defined() bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ResultStatus is the outcome of one per-variable analysis
type ResultStatus string

const (
	StatusOK     ResultStatus = "ok"
	StatusFailed ResultStatus = "failed"
)

// Coefficient is one regressor row of the parameter table
type Coefficient struct {
	Name    string `json:"name"`
	Coef    Float  `json:"coef"`
	StdErr  Float  `json:"std_err"`
	Z       Float  `json:"z"`
	PValue  Float  `json:"p_value"`
	CILower Float  `json:"ci_lower"`
	CIUpper Float  `json:"ci_upper"`
}

// Threshold is one cut-point between adjacent outcome levels. Param is the
// optimizer's parameter (first cut-point, then log increments); CutPoint is
// the cut-point on the latent scale.
type Threshold struct {
	Name     string `json:"name"`
	Param    Float  `json:"param"`
	StdErr   Float  `json:"std_err"`
	Z        Float  `json:"z"`
	PValue   Float  `json:"p_value"`
	CutPoint Float  `json:"cut_point"`
}

// FitStatistics summarises the maximum likelihood fit
type FitStatistics struct {
	Method        string `json:"method"`
	LogLikelihood Float  `json:"log_likelihood"`
	LLNull        Float  `json:"ll_null"`
	LLR           Float  `json:"llr"`
	LLRPValue     Float  `json:"llr_p_value"`
	PseudoR2      Float  `json:"pseudo_r2"`
	AIC           Float  `json:"aic"`
	BIC           Float  `json:"bic"`
	DFModel       int    `json:"df_model"`
	DFResid       int    `json:"df_resid"`
	Iterations    int    `json:"iterations"`
	FuncEvals     int    `json:"func_evals"`
	Converged     bool   `json:"converged"`
	Status        string `json:"status"`
}

// GroupMeans compares the dependent variable across the binary split column.
// Every mean is NaN when the split column is not among the regressors or the
// group is empty.
type GroupMeans struct {
	Column          string `json:"column"`
	Present         bool   `json:"present"`
	N1              int    `json:"n1"`
	N0              int    `json:"n0"`
	ObservedGroup1  Float  `json:"observed_group1"`
	ObservedGroup0  Float  `json:"observed_group0"`
	PredictedGroup1 Float  `json:"predicted_group1"`
	PredictedGroup0 Float  `json:"predicted_group0"`
}

// UndefinedGroupMeans returns means for a split column that is not available
func UndefinedGroupMeans(column string) GroupMeans {
	nan := Float(math.NaN())
	return GroupMeans{
		Column:          column,
		ObservedGroup1:  nan,
		ObservedGroup0:  nan,
		PredictedGroup1: nan,
		PredictedGroup0: nan,
	}
}

// LevelCount is the frequency of one ordinal code
type LevelCount struct {
	Level int `json:"level"`
	Count int `json:"count"`
}

// ResponseProfile describes the extracted codes of one dependent variable
type ResponseProfile struct {
	Observed int          `json:"observed"`
	Missing  int          `json:"missing"`
	Mean     Float        `json:"mean"`
	StdDev   Float        `json:"std_dev"`
	Median   Float        `json:"median"`
	Min      Float        `json:"min"`
	Max      Float        `json:"max"`
	Levels   []LevelCount `json:"levels"`
}

// ModelResult is the complete outcome for one dependent variable
type ModelResult struct {
	Alias        string           `json:"alias"`
	Label        string           `json:"label"`
	Status       ResultStatus     `json:"status"`
	ErrorCode    string           `json:"error_code,omitempty"`
	Error        string           `json:"error,omitempty"`
	NObs         int              `json:"nobs"`
	Levels       []int            `json:"levels,omitempty"`
	Regressors   []string         `json:"regressors,omitempty"`
	Coefficients []Coefficient    `json:"coefficients,omitempty"`
	Thresholds   []Threshold      `json:"thresholds,omitempty"`
	Fit          *FitStatistics   `json:"fit,omitempty"`
	Groups       GroupMeans       `json:"groups"`
	Profile      *ResponseProfile `json:"profile,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
	Duration     time.Duration    `json:"duration_ns"`
}

// OK reports whether the model was fitted
func (r ModelResult) OK() bool {
	return r.Status == StatusOK
}
