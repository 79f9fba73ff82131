package profiling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"surveyfit/domain/survey"
)

func TestProfile(t *testing.T) {
	nan := math.NaN()
	p := NewResponseProfiler().Profile([]float64{1, 3, nan, 3, 5})

	assert.Equal(t, 4, p.Observed)
	assert.Equal(t, 1, p.Missing)
	assert.InDelta(t, 3.0, float64(p.Mean), 1e-12)
	assert.InDelta(t, 3.0, float64(p.Median), 1e-12)
	assert.InDelta(t, math.Sqrt(8.0/3.0), float64(p.StdDev), 1e-12)
	assert.Equal(t, survey.Float(1), p.Min)
	assert.Equal(t, survey.Float(5), p.Max)
	assert.Equal(t, []survey.LevelCount{{Level: 1, Count: 1}, {Level: 3, Count: 2}, {Level: 5, Count: 1}}, p.Levels)
}

func TestProfile_AllMissing(t *testing.T) {
	p := NewResponseProfiler().Profile([]float64{math.NaN(), math.NaN()})

	assert.Equal(t, 0, p.Observed)
	assert.Equal(t, 2, p.Missing)
	assert.False(t, p.Mean.Defined())
	assert.Empty(t, p.Levels)
}

func TestGroupMean(t *testing.T) {
	values := []float64{4, 1, 2, 5}
	split := []float64{1, 0, 1, 0}

	m1, n1 := GroupMean(values, split, 1)
	m0, n0 := GroupMean(values, split, 0)
	assert.Equal(t, 3.0, m1)
	assert.Equal(t, 2, n1)
	assert.Equal(t, 3.0, m0)
	assert.Equal(t, 2, n0)

	empty, n := GroupMean(values, []float64{1, 1, 1, 1}, 0)
	assert.True(t, math.IsNaN(empty))
	assert.Zero(t, n)
}
