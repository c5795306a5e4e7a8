package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// GaussianParams carries the resolved parameters of a conditional Gaussian.
type GaussianParams struct {
	Mean float64
	Std  float64
}

// CondGaussianFunc computes Gaussian parameters from the data batch of the
// current call.
type CondGaussianFunc func(data *Data) (GaussianParams, error)

// Argument keys consulted by conditional leaves in the dispatch context.
const (
	ArgMean  = "mean"
	ArgStd   = "std"
	ArgCondF = "cond_f"
)

// CondGaussian is a univariate normal leaf whose parameters are not stored on
// the node but retrieved per call. Resolution order: explicit "mean"/"std"
// values in the dispatch context's argument store, then a "cond_f" callable
// in the argument store, then the callable attached at construction. If none
// is available, evaluation fails with a parameter-retrieval error.
type CondGaussian struct {
	leafNode
	condF CondGaussianFunc
}

// NewCondGaussian creates a conditional Gaussian leaf. condF may be nil when
// parameters are always supplied through the dispatch context.
func NewCondGaussian(scope Scope, condF CondGaussianFunc) (*CondGaussian, error) {
	if scope.Len() != 1 {
		return nil, fmt.Errorf("%w: CondGaussian leaf requires a scope with exactly one query variable, got %d", ErrConfiguration, scope.Len())
	}
	return &CondGaussian{leafNode: newLeafNode(scope), condF: condF}, nil
}

// Family implements Leaf.
func (g *CondGaussian) Family() string { return "CondGaussian" }

// CheckSupport implements Leaf.
func (g *CondGaussian) CheckSupport(x []float64) bool {
	for _, v := range x {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// retrieveParams resolves the leaf's parameters for the current call.
func (g *CondGaussian) retrieveParams(data *Data, ctx *DispatchContext) (GaussianParams, error) {
	meanArg, meanOK := ctx.Arg(g, ArgMean)
	stdArg, stdOK := ctx.Arg(g, ArgStd)
	if meanOK || stdOK {
		if !meanOK || !stdOK {
			return GaussianParams{}, fmt.Errorf("%w: CondGaussian node %d requires both %q and %q overrides", ErrParameter, g.ID(), ArgMean, ArgStd)
		}
		mean, ok1 := meanArg.(float64)
		std, ok2 := stdArg.(float64)
		if !ok1 || !ok2 {
			return GaussianParams{}, fmt.Errorf("%w: CondGaussian node %d parameter overrides must be float64", ErrParameter, g.ID())
		}
		return validateGaussianParams(g, GaussianParams{Mean: mean, Std: std})
	}
	if fnArg, ok := ctx.Arg(g, ArgCondF); ok {
		fn, ok := fnArg.(CondGaussianFunc)
		if !ok {
			return GaussianParams{}, fmt.Errorf("%w: CondGaussian node %d %q override must be a CondGaussianFunc", ErrParameter, g.ID(), ArgCondF)
		}
		p, err := fn(data)
		if err != nil {
			return GaussianParams{}, fmt.Errorf("%w: CondGaussian node %d: %v", ErrParameter, g.ID(), err)
		}
		return validateGaussianParams(g, p)
	}
	if g.condF != nil {
		p, err := g.condF(data)
		if err != nil {
			return GaussianParams{}, fmt.Errorf("%w: CondGaussian node %d: %v", ErrParameter, g.ID(), err)
		}
		return validateGaussianParams(g, p)
	}
	return GaussianParams{}, fmt.Errorf("%w: no way to retrieve parameters for CondGaussian node %d", ErrParameter, g.ID())
}

func validateGaussianParams(g *CondGaussian, p GaussianParams) (GaussianParams, error) {
	if math.IsNaN(p.Mean) || math.IsInf(p.Mean, 0) {
		return GaussianParams{}, fmt.Errorf("%w: CondGaussian node %d resolved a non-finite mean %v", ErrParameter, g.ID(), p.Mean)
	}
	if !(p.Std > 0) || math.IsInf(p.Std, 0) {
		return GaussianParams{}, fmt.Errorf("%w: CondGaussian node %d resolved a non-positive standard deviation %v", ErrParameter, g.ID(), p.Std)
	}
	return p, nil
}

// Density implements Leaf.
func (g *CondGaussian) Density(data *Data, ctx *DispatchContext) (DensityFunc, error) {
	p, err := g.retrieveParams(data, ctx)
	if err != nil {
		return nil, err
	}
	dist := distuv.Normal{Mu: p.Mean, Sigma: p.Std}
	return func(x []float64) (float64, error) {
		return dist.LogProb(x[0]), nil
	}, nil
}

// SampleRows implements Leaf.
func (g *CondGaussian) SampleRows(data *Data, rows []int, ctx *DispatchContext) error {
	p, err := g.retrieveParams(data, ctx)
	if err != nil {
		return err
	}
	dist := distuv.Normal{Mu: p.Mean, Sigma: p.Std, Src: ctx.rng}
	sampleUnivariate(data, rows, g.scope.Query()[0], dist.Rand)
	return nil
}

// Marginal implements Leaf.
func (g *CondGaussian) Marginal(margRVs []int) (Node, error) {
	if _, ok := margSet(margRVs)[g.scope.Query()[0]]; ok {
		return nil, nil
	}
	return NewCondGaussian(g.scope, g.condF)
}
