// Package ordinal fits cumulative-logit (ordered logit) models by maximum
// likelihood using gonum's optimizers.
//
// Parameterisation: beta for the p regressors (no intercept), then the first
// cut-point th0 and log increments d_1..d_{K-2}, so that
// cut_j = th0 + sum_{i<=j} exp(d_i) is strictly increasing for any parameter
// vector. P(y = level_k | x) = F(cut_k - x'beta) - F(cut_{k-1} - x'beta)
// with F the logistic CDF, cut_{-1} = -inf and cut_{K-1} = +inf.
package ordinal

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// probFloor keeps log(prob) finite for observations the model deems impossible
const probFloor = 1e-20

// model is the log-likelihood of one complete-case problem
type model struct {
	x      *mat.Dense // n x p design, no intercept
	y      []int      // outcome level index in [0, K)
	levels []int      // observed outcome codes, ascending
	counts []int      // observations per level
	n, p   int
}

// newModel builds the likelihood. y holds the ordinal codes; columns[j][i] is
// regressor j for observation i.
func newModel(y []float64, columns [][]float64) *model {
	n, p := len(y), len(columns)

	levelSet := make(map[int]struct{})
	for _, v := range y {
		levelSet[int(v)] = struct{}{}
	}
	levels := make([]int, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Ints(levels)

	index := make(map[int]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}

	m := &model{
		y:      make([]int, n),
		levels: levels,
		counts: make([]int, len(levels)),
		n:      n,
		p:      p,
	}
	for i, v := range y {
		k := index[int(v)]
		m.y[i] = k
		m.counts[k]++
	}

	if p > 0 {
		m.x = mat.NewDense(n, p, nil)
		for j, col := range columns {
			for i, v := range col {
				m.x.Set(i, j, v)
			}
		}
	}
	return m
}

// k is the number of outcome levels
func (m *model) k() int { return len(m.levels) }

// numParams is p + K - 1
func (m *model) numParams() int { return m.p + m.k() - 1 }

// cuts converts threshold parameters to cut-points
func (m *model) cuts(params []float64) []float64 {
	th := params[m.p:]
	cuts := make([]float64, len(th))
	if len(th) == 0 {
		return cuts
	}
	cuts[0] = th[0]
	for j := 1; j < len(th); j++ {
		cuts[j] = cuts[j-1] + math.Exp(th[j])
	}
	return cuts
}

// linearPredictor returns x'beta for every observation
func (m *model) linearPredictor(params []float64) []float64 {
	xb := make([]float64, m.n)
	if m.p == 0 {
		return xb
	}
	beta := mat.NewVecDense(m.p, append([]float64(nil), params[:m.p]...))
	out := mat.NewVecDense(m.n, xb)
	out.MulVec(m.x, beta)
	return xb
}

// bounds returns the latent interval (lo, hi] of observation i's level
func (m *model) bounds(k int, cuts []float64, xb float64) (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if k > 0 {
		lo = cuts[k-1] - xb
	}
	if k < len(cuts) {
		hi = cuts[k] - xb
	}
	return lo, hi
}

// logLike is the total log-likelihood
func (m *model) logLike(params []float64) float64 {
	cuts := m.cuts(params)
	xb := m.linearPredictor(params)

	ll := 0.0
	for i := 0; i < m.n; i++ {
		lo, hi := m.bounds(m.y[i], cuts, xb[i])
		ll += math.Log(intervalProb(lo, hi) + probFloor)
	}
	return ll
}

// gradient writes d logLike / d params into grad
func (m *model) gradient(grad, params []float64) {
	cuts := m.cuts(params)
	xb := m.linearPredictor(params)

	for j := range grad {
		grad[j] = 0
	}
	gCut := make([]float64, len(cuts))

	for i := 0; i < m.n; i++ {
		k := m.y[i]
		lo, hi := m.bounds(k, cuts, xb[i])
		prob := intervalProb(lo, hi) + probFloor
		fLo, fHi := logisticPDF(lo), logisticPDF(hi)

		if m.p > 0 {
			w := (fLo - fHi) / prob
			for j := 0; j < m.p; j++ {
				grad[j] += w * m.x.At(i, j)
			}
		}
		if k < len(cuts) {
			gCut[k] += fHi / prob
		}
		if k > 0 {
			gCut[k-1] -= fLo / prob
		}
	}

	if len(cuts) == 0 {
		return
	}
	// chain rule through cut_j = th0 + sum exp(d_i)
	tail := 0.0
	for j := len(cuts) - 1; j >= 1; j-- {
		tail += gCut[j]
		grad[m.p+j] = math.Exp(params[m.p+j]) * tail
	}
	grad[m.p] = tail + gCut[0]
}

// startParams returns beta = 0 and cut-points at the logits of the observed
// cumulative proportions, which is the null model's maximum.
func (m *model) startParams() []float64 {
	params := make([]float64, m.numParams())
	cum := 0
	prev := 0.0
	for j := 0; j < m.k()-1; j++ {
		cum += m.counts[j]
		cut := logit(float64(cum) / float64(m.n))
		if j == 0 {
			params[m.p] = cut
		} else {
			params[m.p+j] = math.Log(cut - prev)
		}
		prev = cut
	}
	return params
}

// nullLogLike is the log-likelihood of the thresholds-only model
func (m *model) nullLogLike() float64 {
	ll := 0.0
	for _, c := range m.counts {
		if c > 0 {
			ll += float64(c) * math.Log(float64(c)/float64(m.n))
		}
	}
	return ll
}

// probabilities returns P(level_k | x_i) for every observation
func (m *model) probabilities(params []float64) [][]float64 {
	cuts := m.cuts(params)
	xb := m.linearPredictor(params)

	probs := make([][]float64, m.n)
	for i := range probs {
		row := make([]float64, m.k())
		for k := range row {
			lo, hi := m.bounds(k, cuts, xb[i])
			row[k] = intervalProb(lo, hi)
		}
		probs[i] = row
	}
	return probs
}

// expected returns E[y | x_i] on the outcome code scale
func (m *model) expected(params []float64) []float64 {
	probs := m.probabilities(params)
	out := make([]float64, m.n)
	for i, row := range probs {
		for k, pk := range row {
			out[i] += float64(m.levels[k]) * pk
		}
	}
	return out
}

// logisticCDF is F(z) = 1 / (1 + exp(-z))
func logisticCDF(z float64) float64 {
	switch {
	case math.IsInf(z, 1):
		return 1
	case math.IsInf(z, -1):
		return 0
	case z >= 0:
		return 1 / (1 + math.Exp(-z))
	default:
		e := math.Exp(z)
		return e / (1 + e)
	}
}

// logisticPDF is F(z)(1 - F(z)); zero at the infinite bounds
func logisticPDF(z float64) float64 {
	if math.IsInf(z, 0) {
		return 0
	}
	f := logisticCDF(z)
	return f * (1 - f)
}

// intervalProb is F(hi) - F(lo), evaluated on the side of zero that avoids
// cancellation when both bounds are far in the upper tail.
func intervalProb(lo, hi float64) float64 {
	if lo > 0 {
		return logisticCDF(-lo) - logisticCDF(-hi)
	}
	return logisticCDF(hi) - logisticCDF(lo)
}

func logit(q float64) float64 {
	return math.Log(q / (1 - q))
}
