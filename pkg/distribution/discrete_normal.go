// Package distribution provides probability distributions used to model
// sequence lengths.
package distribution

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/htrlab/laia/pkg/engine"
)

// DefaultEps is the probability below which normalizer terms are dropped.
const DefaultEps = 1e-9

// maxTerms bounds the normalizer summation for extreme parameters.
const maxTerms = 1 << 20

// DiscreteNormal is a normal distribution restricted to the non-negative
// integers and renormalized over them.
type DiscreteNormal struct {
	mean     float64
	variance float64
	eps      float64
	normal   distuv.Normal
	logNorm  float64
}

// NewDiscreteNormal creates the distribution. eps <= 0 uses DefaultEps.
func NewDiscreteNormal(mean, variance, eps float64) (*DiscreteNormal, error) {
	if !(variance > 0) || math.IsInf(variance, 0) {
		return nil, engine.NewInvalidArgumentError("variance", "variance must be positive and finite, got %v", variance)
	}
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, engine.NewInvalidArgumentError("mean", "mean must be finite, got %v", mean)
	}
	if eps <= 0 {
		eps = DefaultEps
	}

	d := &DiscreteNormal{
		mean:     mean,
		variance: variance,
		eps:      eps,
		normal:   distuv.Normal{Mu: mean, Sigma: math.Sqrt(variance)},
	}
	d.logNorm = d.normalizer()
	return d, nil
}

// normalizer returns log sum_{k>=0} N(k), summing until the terms past the
// mean drop below eps.
func (d *DiscreteNormal) normalizer() float64 {
	terms := make([]float64, 0, 64)
	for k := 0; k < maxTerms; k++ {
		lp := d.normal.LogProb(float64(k))
		terms = append(terms, lp)
		if float64(k) > d.mean && math.Exp(lp) < d.eps {
			break
		}
	}
	return floats.LogSumExp(terms)
}

// Mean returns the mean of the underlying normal.
func (d *DiscreteNormal) Mean() float64 {
	return d.mean
}

// Variance returns the variance of the underlying normal.
func (d *DiscreteNormal) Variance() float64 {
	return d.variance
}

// LogPDF returns log P(X = x), which is -Inf unless x is a non-negative integer.
func (d *DiscreteNormal) LogPDF(x float64) float64 {
	if x < 0 || x != math.Trunc(x) {
		return math.Inf(-1)
	}
	return d.normal.LogProb(x) - d.logNorm
}

// PDF returns P(X = x).
func (d *DiscreteNormal) PDF(x float64) float64 {
	return math.Exp(d.LogPDF(x))
}
