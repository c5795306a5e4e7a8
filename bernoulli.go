package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Bernoulli is a univariate binary leaf with success probability p.
type Bernoulli struct {
	leafNode
	p float64
}

// NewBernoulli creates a Bernoulli leaf over a single query variable.
func NewBernoulli(scope Scope, p float64) (*Bernoulli, error) {
	if err := requireUnivariateScope(scope, "Bernoulli"); err != nil {
		return nil, err
	}
	b := &Bernoulli{leafNode: newLeafNode(scope)}
	if err := b.SetParams(p); err != nil {
		return nil, err
	}
	return b, nil
}

// SetParams sets the success probability, which must lie in [0, 1].
func (b *Bernoulli) SetParams(p float64) error {
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("%w: Bernoulli probability must lie in [0,1], got %v", ErrConfiguration, p)
	}
	b.p = p
	return nil
}

// P returns the current success probability.
func (b *Bernoulli) P() float64 { return b.p }

// Family implements Leaf.
func (b *Bernoulli) Family() string { return "Bernoulli" }

// CheckSupport implements Leaf. The support is {0, 1}; missing entries are
// regarded as in support.
func (b *Bernoulli) CheckSupport(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}

// Density implements Leaf.
func (b *Bernoulli) Density(_ *Data, _ *DispatchContext) (DensityFunc, error) {
	dist := distuv.Bernoulli{P: b.p}
	return func(x []float64) (float64, error) {
		return dist.LogProb(x[0]), nil
	}, nil
}

// SampleRows implements Leaf.
func (b *Bernoulli) SampleRows(data *Data, rows []int, ctx *DispatchContext) error {
	dist := distuv.Bernoulli{P: b.p, Src: ctx.rng}
	sampleUnivariate(data, rows, b.scope.Query()[0], dist.Rand)
	return nil
}

// Marginal implements Leaf.
func (b *Bernoulli) Marginal(margRVs []int) (Node, error) {
	if _, ok := margSet(margRVs)[b.scope.Query()[0]]; ok {
		return nil, nil
	}
	return NewBernoulli(b.scope, b.p)
}
