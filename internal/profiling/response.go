package profiling

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"surveyfit/domain/survey"
)

// ResponseProfiler summarises the extracted codes of a dependent variable
type ResponseProfiler struct{}

// NewResponseProfiler creates a new response profiler
func NewResponseProfiler() *ResponseProfiler {
	return &ResponseProfiler{}
}

// Profile describes the non-missing values: level frequencies plus summary
// statistics. Statistics are NaN when nothing was observed.
func (rp *ResponseProfiler) Profile(values []float64) survey.ResponseProfile {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !survey.IsMissing(v) {
			observed = append(observed, v)
		}
	}

	nan := survey.Float(math.NaN())
	profile := survey.ResponseProfile{
		Observed: len(observed),
		Missing:  len(values) - len(observed),
		Mean:     nan,
		StdDev:   nan,
		Median:   nan,
		Min:      nan,
		Max:      nan,
	}
	if len(observed) == 0 {
		return profile
	}

	data := stats.Float64Data(observed)
	if mean, err := data.Mean(); err == nil {
		profile.Mean = survey.Float(mean)
	}
	if len(observed) > 1 {
		if sd, err := stats.StandardDeviationSample(data); err == nil {
			profile.StdDev = survey.Float(sd)
		}
	}
	if median, err := data.Median(); err == nil {
		profile.Median = survey.Float(median)
	}
	if min, err := data.Min(); err == nil {
		profile.Min = survey.Float(min)
	}
	if max, err := data.Max(); err == nil {
		profile.Max = survey.Float(max)
	}

	profile.Levels = levelCounts(observed)
	return profile
}

// levelCounts tallies each integer code in ascending order
func levelCounts(observed []float64) []survey.LevelCount {
	counts := make(map[int]int)
	for _, v := range observed {
		counts[int(v)]++
	}
	levels := make([]int, 0, len(counts))
	for l := range counts {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	out := make([]survey.LevelCount, len(levels))
	for i, l := range levels {
		out[i] = survey.LevelCount{Level: l, Count: counts[l]}
	}
	return out
}

// GroupMean is the mean of values over rows where the indicator equals group.
// It returns NaN and zero for an empty group.
func GroupMean(values, indicator []float64, group float64) (float64, int) {
	var selected stats.Float64Data
	for i, v := range values {
		if indicator[i] == group {
			selected = append(selected, v)
		}
	}
	if len(selected) == 0 {
		return math.NaN(), 0
	}
	mean, err := selected.Mean()
	if err != nil {
		return math.NaN(), 0
	}
	return mean, len(selected)
}
