package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Gamma is a univariate leaf over the positive reals with shape alpha and
// rate beta.
type Gamma struct {
	leafNode
	alpha float64
	beta  float64
}

// NewGamma creates a Gamma leaf over a single query variable.
func NewGamma(scope Scope, alpha, beta float64) (*Gamma, error) {
	if err := requireUnivariateScope(scope, "Gamma"); err != nil {
		return nil, err
	}
	g := &Gamma{leafNode: newLeafNode(scope)}
	if err := g.SetParams(alpha, beta); err != nil {
		return nil, err
	}
	return g, nil
}

// SetParams sets shape and rate, which must both be positive and finite.
func (g *Gamma) SetParams(alpha, beta float64) error {
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return fmt.Errorf("%w: Gamma shape must be positive and finite, got %v", ErrConfiguration, alpha)
	}
	if !(beta > 0) || math.IsInf(beta, 0) {
		return fmt.Errorf("%w: Gamma rate must be positive and finite, got %v", ErrConfiguration, beta)
	}
	g.alpha, g.beta = alpha, beta
	return nil
}

// Alpha returns the current shape.
func (g *Gamma) Alpha() float64 { return g.alpha }

// Beta returns the current rate.
func (g *Gamma) Beta() float64 { return g.beta }

// Family implements Leaf.
func (g *Gamma) Family() string { return "Gamma" }

// CheckSupport implements Leaf. The support is the positive reals; missing
// entries are regarded as in support.
func (g *Gamma) CheckSupport(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Density implements Leaf.
func (g *Gamma) Density(_ *Data, _ *DispatchContext) (DensityFunc, error) {
	dist := distuv.Gamma{Alpha: g.alpha, Beta: g.beta}
	return func(x []float64) (float64, error) {
		return dist.LogProb(x[0]), nil
	}, nil
}

// SampleRows implements Leaf.
func (g *Gamma) SampleRows(data *Data, rows []int, ctx *DispatchContext) error {
	dist := distuv.Gamma{Alpha: g.alpha, Beta: g.beta, Src: ctx.rng}
	sampleUnivariate(data, rows, g.scope.Query()[0], dist.Rand)
	return nil
}

// Marginal implements Leaf.
func (g *Gamma) Marginal(margRVs []int) (Node, error) {
	if _, ok := margSet(margRVs)[g.scope.Query()[0]]; ok {
		return nil, nil
	}
	return NewGamma(g.scope, g.alpha, g.beta)
}
