package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian is a univariate normal leaf.
type Gaussian struct {
	leafNode
	mean float64
	std  float64
}

// NewGaussian creates a Gaussian leaf over a single query variable.
func NewGaussian(scope Scope, mean, std float64) (*Gaussian, error) {
	if err := requireUnivariateScope(scope, "Gaussian"); err != nil {
		return nil, err
	}
	g := &Gaussian{leafNode: newLeafNode(scope)}
	if err := g.SetParams(mean, std); err != nil {
		return nil, err
	}
	return g, nil
}

// SetParams sets mean and standard deviation. std must be positive and
// finite.
func (g *Gaussian) SetParams(mean, std float64) error {
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return fmt.Errorf("%w: Gaussian mean must be finite, got %v", ErrConfiguration, mean)
	}
	if !(std > 0) || math.IsInf(std, 0) {
		return fmt.Errorf("%w: Gaussian standard deviation must be positive and finite, got %v", ErrConfiguration, std)
	}
	g.mean, g.std = mean, std
	return nil
}

// Mean returns the current mean.
func (g *Gaussian) Mean() float64 { return g.mean }

// StdDev returns the current standard deviation.
func (g *Gaussian) StdDev() float64 { return g.std }

// Family implements Leaf.
func (g *Gaussian) Family() string { return "Gaussian" }

// CheckSupport implements Leaf. The Gaussian support is the whole real line;
// only infinities are rejected. Missing entries are regarded as in support.
func (g *Gaussian) CheckSupport(x []float64) bool {
	for _, v := range x {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Density implements Leaf.
func (g *Gaussian) Density(_ *Data, _ *DispatchContext) (DensityFunc, error) {
	dist := distuv.Normal{Mu: g.mean, Sigma: g.std}
	return func(x []float64) (float64, error) {
		return dist.LogProb(x[0]), nil
	}, nil
}

// SampleRows implements Leaf.
func (g *Gaussian) SampleRows(data *Data, rows []int, ctx *DispatchContext) error {
	dist := distuv.Normal{Mu: g.mean, Sigma: g.std, Src: ctx.rng}
	sampleUnivariate(data, rows, g.scope.Query()[0], dist.Rand)
	return nil
}

// Marginal implements Leaf.
func (g *Gaussian) Marginal(margRVs []int) (Node, error) {
	if _, ok := margSet(margRVs)[g.scope.Query()[0]]; ok {
		return nil, nil
	}
	return NewGaussian(g.scope, g.mean, g.std)
}
