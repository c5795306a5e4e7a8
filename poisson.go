package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Poisson is a univariate count leaf with rate lambda.
type Poisson struct {
	leafNode
	lambda float64
}

// NewPoisson creates a Poisson leaf over a single query variable.
func NewPoisson(scope Scope, lambda float64) (*Poisson, error) {
	if err := requireUnivariateScope(scope, "Poisson"); err != nil {
		return nil, err
	}
	p := &Poisson{leafNode: newLeafNode(scope)}
	if err := p.SetParams(lambda); err != nil {
		return nil, err
	}
	return p, nil
}

// SetParams sets the rate, which must be positive and finite.
func (p *Poisson) SetParams(lambda float64) error {
	if !(lambda > 0) || math.IsInf(lambda, 0) {
		return fmt.Errorf("%w: Poisson rate must be positive and finite, got %v", ErrConfiguration, lambda)
	}
	p.lambda = lambda
	return nil
}

// Lambda returns the current rate.
func (p *Poisson) Lambda() float64 { return p.lambda }

// Family implements Leaf.
func (p *Poisson) Family() string { return "Poisson" }

// CheckSupport implements Leaf. The support is the non-negative integers;
// missing entries are regarded as in support.
func (p *Poisson) CheckSupport(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || math.IsInf(v, 0) || v != math.Trunc(v) {
			return false
		}
	}
	return true
}

// Density implements Leaf.
func (p *Poisson) Density(_ *Data, _ *DispatchContext) (DensityFunc, error) {
	dist := distuv.Poisson{Lambda: p.lambda}
	return func(x []float64) (float64, error) {
		return dist.LogProb(x[0]), nil
	}, nil
}

// SampleRows implements Leaf.
func (p *Poisson) SampleRows(data *Data, rows []int, ctx *DispatchContext) error {
	dist := distuv.Poisson{Lambda: p.lambda, Src: ctx.rng}
	sampleUnivariate(data, rows, p.scope.Query()[0], dist.Rand)
	return nil
}

// Marginal implements Leaf.
func (p *Poisson) Marginal(margRVs []int) (Node, error) {
	if _, ok := margSet(margRVs)[p.scope.Query()[0]]; ok {
		return nil, nil
	}
	return NewPoisson(p.scope, p.lambda)
}
