package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// MultivariateGaussian is a joint normal leaf over two or more query
// variables, parameterized by a mean vector and a covariance matrix.
type MultivariateGaussian struct {
	leafNode
	mean []float64
	cov  *mat.SymDense
}

// NewMultivariateGaussian creates a joint normal leaf. The scope's query
// cardinality, the mean length and the covariance dimension must agree, and
// the covariance must be symmetric positive definite.
func NewMultivariateGaussian(scope Scope, mean []float64, cov *mat.SymDense) (*MultivariateGaussian, error) {
	d := scope.Len()
	if d < 1 {
		return nil, fmt.Errorf("%w: MultivariateGaussian requires at least one query variable", ErrConfiguration)
	}
	if len(scope.Evidence()) != 0 {
		return nil, fmt.Errorf("%w: MultivariateGaussian leaf does not take evidence variables", ErrConfiguration)
	}
	if len(mean) != d || cov == nil || cov.SymmetricDim() != d {
		return nil, fmt.Errorf("%w: MultivariateGaussian dimension mismatch: scope %d, mean %d, covariance %d", ErrConfiguration, d, len(mean), symDim(cov))
	}
	for _, v := range mean {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: MultivariateGaussian mean must be finite, got %v", ErrConfiguration, v)
		}
	}
	m := make([]float64, d)
	copy(m, mean)
	c := mat.NewSymDense(d, nil)
	c.CopySym(cov)
	if _, ok := distmv.NewNormal(m, c, nil); !ok {
		return nil, fmt.Errorf("%w: MultivariateGaussian covariance must be symmetric positive definite", ErrConfiguration)
	}
	return &MultivariateGaussian{leafNode: newLeafNode(scope), mean: m, cov: c}, nil
}

func symDim(c *mat.SymDense) int {
	if c == nil {
		return 0
	}
	return c.SymmetricDim()
}

// SetParams replaces mean and covariance. Dimensions must match the scope and
// the covariance must be symmetric positive definite.
func (g *MultivariateGaussian) SetParams(mean []float64, cov *mat.SymDense) error {
	d := len(g.mean)
	if len(mean) != d || cov == nil || cov.SymmetricDim() != d {
		return fmt.Errorf("%w: MultivariateGaussian dimension mismatch: scope %d, mean %d, covariance %d", ErrConfiguration, d, len(mean), symDim(cov))
	}
	for _, v := range mean {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: MultivariateGaussian mean must be finite, got %v", ErrConfiguration, v)
		}
	}
	c := mat.NewSymDense(d, nil)
	c.CopySym(cov)
	if _, ok := distmv.NewNormal(mean, c, nil); !ok {
		return fmt.Errorf("%w: MultivariateGaussian covariance must be symmetric positive definite", ErrConfiguration)
	}
	copy(g.mean, mean)
	g.cov = c
	return nil
}

// Mean returns a copy of the mean vector.
func (g *MultivariateGaussian) Mean() []float64 {
	out := make([]float64, len(g.mean))
	copy(out, g.mean)
	return out
}

// Cov returns a copy of the covariance matrix.
func (g *MultivariateGaussian) Cov() *mat.SymDense {
	c := mat.NewSymDense(len(g.mean), nil)
	c.CopySym(g.cov)
	return c
}

// Family implements Leaf.
func (g *MultivariateGaussian) Family() string { return "MultivariateGaussian" }

// CheckSupport implements Leaf. The support is the whole real vector space;
// only infinities are rejected. Missing entries are regarded as in support.
func (g *MultivariateGaussian) CheckSupport(x []float64) bool {
	for _, v := range x {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// subIndices returns the scope-order indices of x that are observed (not
// missing) and those that are missing.
func splitObserved(x []float64) (obs, miss []int) {
	for i, v := range x {
		if math.IsNaN(v) {
			miss = append(miss, i)
		} else {
			obs = append(obs, i)
		}
	}
	return obs, miss
}

func patternKey(miss []int, d int) string {
	key := make([]byte, d)
	for i := range key {
		key[i] = 'o'
	}
	for _, i := range miss {
		key[i] = 'm'
	}
	return string(key)
}

// subNormal builds the marginal normal over the given scope-order indices.
func (g *MultivariateGaussian) subNormal(idx []int) (*distmv.Normal, error) {
	mu := make([]float64, len(idx))
	cov := mat.NewSymDense(len(idx), nil)
	for i, a := range idx {
		mu[i] = g.mean[a]
		for j := i; j < len(idx); j++ {
			cov.SetSym(i, j, g.cov.At(a, idx[j]))
		}
	}
	n, ok := distmv.NewNormal(mu, cov, nil)
	if !ok {
		return nil, fmt.Errorf("%w: MultivariateGaussian node %d has a non-positive-definite marginal covariance", ErrConfiguration, g.ID())
	}
	return n, nil
}

// Density implements Leaf. Rows with a partial missingness pattern are scored
// under the marginal distribution of their observed sub-vector; marginals are
// built once per distinct pattern.
func (g *MultivariateGaussian) Density(_ *Data, _ *DispatchContext) (DensityFunc, error) {
	full, err := g.subNormal(allIndices(len(g.mean)))
	if err != nil {
		return nil, err
	}
	marginals := make(map[string]*distmv.Normal)
	return func(x []float64) (float64, error) {
		obs, miss := splitObserved(x)
		if len(miss) == 0 {
			return full.LogProb(x), nil
		}
		key := patternKey(miss, len(x))
		marg, ok := marginals[key]
		if !ok {
			var err error
			marg, err = g.subNormal(obs)
			if err != nil {
				return 0, err
			}
			marginals[key] = marg
		}
		xo := make([]float64, len(obs))
		for i, a := range obs {
			xo[i] = x[a]
		}
		return marg.LogProb(xo), nil
	}, nil
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// SampleRows implements Leaf. Rows are grouped by their missingness pattern
// over the leaf's scope. Fully observed groups are untouched, fully missing
// groups get joint draws, and partial groups are filled by conditional
// simulation: an unconditional joint draw is shifted by the observed
// discrepancy mapped through inv(cov_oo) * cov_om, which reproduces the exact
// conditional mean and covariance of the joint Gaussian (Doucet, 2010).
func (g *MultivariateGaussian) SampleRows(data *Data, rows []int, ctx *DispatchContext) error {
	cols := g.scope.Query()
	d := len(cols)

	joint, ok := distmv.NewNormal(g.mean, g.cov, ctx.rng)
	if !ok {
		return fmt.Errorf("%w: MultivariateGaussian node %d covariance is not positive definite", ErrConfiguration, g.ID())
	}

	// group rows by missingness pattern
	groups := make(map[string][]int)
	patterns := make(map[string][]int) // key -> missing scope-order indices
	buf := make([]float64, 0, d)
	for _, r := range rows {
		x := data.scopeRow(buf, r, cols)
		_, miss := splitObserved(x)
		key := patternKey(miss, d)
		groups[key] = append(groups[key], r)
		patterns[key] = miss
	}

	for key, group := range groups {
		miss := patterns[key]
		if len(miss) == 0 {
			continue // fully observed, nothing to sample
		}
		if len(miss) == d {
			for _, r := range group {
				sample := joint.Rand(nil)
				for i, c := range cols {
					data.Set(r, c, sample[i])
				}
			}
			continue
		}

		obs := complementIndices(miss, d)

		// shift matrix inv(cov_oo) * cov_om, shared by the whole group
		covOO := mat.NewDense(len(obs), len(obs), nil)
		covOM := mat.NewDense(len(obs), len(miss), nil)
		for i, a := range obs {
			for j, b := range obs {
				covOO.Set(i, j, g.cov.At(a, b))
			}
			for j, b := range miss {
				covOM.Set(i, j, g.cov.At(a, b))
			}
		}
		var shift mat.Dense
		if err := shift.Solve(covOO, covOM); err != nil {
			return fmt.Errorf("%w: MultivariateGaussian node %d observed-block covariance is singular: %v", ErrConfiguration, g.ID(), err)
		}

		for _, r := range group {
			sample := joint.Rand(nil)
			for k, b := range miss {
				v := sample[b]
				for j, a := range obs {
					v += (data.At(r, cols[a]) - sample[a]) * shift.At(j, k)
				}
				data.Set(r, cols[b], v)
			}
		}
	}
	return nil
}

func complementIndices(miss []int, d int) []int {
	inMiss := make(map[int]bool, len(miss))
	for _, i := range miss {
		inMiss[i] = true
	}
	var obs []int
	for i := 0; i < d; i++ {
		if !inMiss[i] {
			obs = append(obs, i)
		}
	}
	return obs
}

// Marginal implements Leaf. Partial overlap produces a reduced-dimension
// joint normal restricted to the surviving variables; a single survivor
// collapses to a univariate Gaussian.
func (g *MultivariateGaussian) Marginal(margRVs []int) (Node, error) {
	marg := margSet(margRVs)
	vars := g.scope.Query()
	var keep []int // scope-order indices of surviving variables
	var keepRVs []int
	for i, rv := range vars {
		if _, ok := marg[rv]; !ok {
			keep = append(keep, i)
			keepRVs = append(keepRVs, rv)
		}
	}
	switch len(keep) {
	case 0:
		return nil, nil
	case len(vars):
		return NewMultivariateGaussian(g.scope, g.mean, g.cov)
	case 1:
		scope, err := NewScope(keepRVs...)
		if err != nil {
			return nil, err
		}
		i := keep[0]
		return NewGaussian(scope, g.mean[i], math.Sqrt(g.cov.At(i, i)))
	default:
		scope, err := NewScope(keepRVs...)
		if err != nil {
			return nil, err
		}
		mu := make([]float64, len(keep))
		cov := mat.NewSymDense(len(keep), nil)
		for i, a := range keep {
			mu[i] = g.mean[a]
			for j := i; j < len(keep); j++ {
				cov.SetSym(i, j, g.cov.At(a, keep[j]))
			}
		}
		return NewMultivariateGaussian(scope, mu, cov)
	}
}
