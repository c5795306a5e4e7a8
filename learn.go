package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
)

// NaNStrategy selects how missing entries are treated by the learning
// routines.
type NaNStrategy int

const (
	// NaNStrategyError rejects data batches containing missing entries in
	// the leaf's scope.
	NaNStrategyError NaNStrategy = iota

	// NaNStrategyIgnore drops rows with missing scope entries from the
	// estimate.
	NaNStrategyIgnore
)

// MaximumLikelihood fits the leaf's parameters in place to the weighted data
// batch. weights holds one non-negative instance weight per row; nil weighs
// every row equally. Estimates are clamped away from degenerate boundaries by
// the numeric bounds in the context's options.
//
// Conditional families hold no parameters of their own and cannot be fit.
func MaximumLikelihood(l Leaf, data *Data, weights []float64, strategy NaNStrategy, ctx *DispatchContext) error {
	if l == nil {
		return fmt.Errorf("%w: nil leaf", ErrConfiguration)
	}
	if data == nil {
		return fmt.Errorf("%w: nil data batch", ErrConfiguration)
	}
	ctx = ensureCtx(ctx)
	if err := checkScopeCoverage(l.Scope(), data); err != nil {
		return err
	}
	if weights != nil && len(weights) != data.Rows() {
		return fmt.Errorf("%w: got %d instance weights for %d rows", ErrConfiguration, len(weights), data.Rows())
	}

	switch t := l.(type) {
	case *Gaussian:
		x, w, err := fitColumn(t, data, weights, strategy, ctx)
		if err != nil {
			return err
		}
		mean := stat.Mean(x, w)
		std := stat.PopStdDev(x, w)
		if math.IsNaN(std) || std < ctx.opts.MinStdDev {
			std = ctx.opts.MinStdDev
		}
		return t.SetParams(mean, std)
	case *Bernoulli:
		x, w, err := fitColumn(t, data, weights, strategy, ctx)
		if err != nil {
			return err
		}
		p := stat.Mean(x, w)
		eps := ctx.opts.ProbEpsilon
		p = math.Min(math.Max(p, eps), 1-eps)
		return t.SetParams(p)
	case *Poisson:
		x, w, err := fitColumn(t, data, weights, strategy, ctx)
		if err != nil {
			return err
		}
		lambda := stat.Mean(x, w)
		if lambda < ctx.opts.ProbEpsilon {
			lambda = ctx.opts.ProbEpsilon
		}
		return t.SetParams(lambda)
	case *Gamma:
		x, w, err := fitColumn(t, data, weights, strategy, ctx)
		if err != nil {
			return err
		}
		alpha, beta, err := fitGamma(x, w, ctx.opts)
		if err != nil {
			return err
		}
		return t.SetParams(alpha, beta)
	case *MultivariateGaussian:
		return fitMultivariateGaussian(t, data, weights, strategy, ctx)
	default:
		return fmt.Errorf("%w: maximum likelihood is not available for %s leaves", ErrConfiguration, l.Family())
	}
}

// fitColumn gathers the observed values and weights of a univariate leaf's
// column, applying the missing-data strategy and the support check.
func fitColumn(l Leaf, data *Data, weights []float64, strategy NaNStrategy, ctx *DispatchContext) (x, w []float64, err error) {
	col := l.Scope().Query()[0]
	for i := 0; i < data.Rows(); i++ {
		v := data.At(i, col)
		if math.IsNaN(v) {
			if strategy == NaNStrategyIgnore {
				continue
			}
			return nil, nil, fmt.Errorf("%w: instance %d has a missing value for variable %d; pass NaNStrategyIgnore to drop such rows", ErrConfiguration, i, col)
		}
		wi := 1.0
		if weights != nil {
			wi = weights[i]
			if wi < 0 || math.IsNaN(wi) || math.IsInf(wi, 0) {
				return nil, nil, fmt.Errorf("%w: instance weight %v at row %d", ErrConfiguration, wi, i)
			}
			if wi == 0 {
				continue
			}
		}
		if ctx.opts.CheckSupport && !l.CheckSupport([]float64{v}) {
			return nil, nil, fmt.Errorf("%w: instance %d is outside the support of the %s distribution (node %d)", ErrSupport, i, l.Family(), l.ID())
		}
		x = append(x, v)
		w = append(w, wi)
	}
	if len(x) == 0 {
		return nil, nil, fmt.Errorf("%w: no observed instances with positive weight to fit %s node %d", ErrConfiguration, l.Family(), l.ID())
	}
	return x, w, nil
}

// fitGamma estimates shape and rate by Minka's generalized Newton iteration
// on the shape, started from the closed-form approximation, with the rate
// recovered from the weighted mean.
func fitGamma(x, w []float64, opts Options) (alpha, beta float64, err error) {
	meanX := stat.Mean(x, w)
	logs := make([]float64, len(x))
	for i, v := range x {
		logs[i] = math.Log(v)
	}
	meanLog := stat.Mean(logs, w)

	s := math.Log(meanX) - meanLog
	if !(s > 0) {
		// all observations equal (up to rounding): fall back to a sharp
		// distribution around the mean
		s = opts.GammaTol
	}
	alpha = (3 - s + math.Sqrt((s-3)*(s-3)+24*s)) / (12 * s)
	for i := 0; i < opts.GammaMaxIter; i++ {
		num := math.Log(alpha) - mathext.Digamma(alpha) - s
		den := 1/alpha - trigamma(alpha)
		next := alpha - num/den
		if !(next > 0) || math.IsNaN(next) {
			break
		}
		done := math.Abs(next-alpha) < opts.GammaTol*alpha
		alpha = next
		if done {
			break
		}
	}
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return 0, 0, fmt.Errorf("%w: Gamma shape estimation did not converge", ErrConfiguration)
	}
	return alpha, alpha / meanX, nil
}

// trigamma computes the second derivative of the log-gamma function, using
// the recurrence to shift the argument into the range where the asymptotic
// expansion is accurate.
func trigamma(x float64) float64 {
	var acc float64
	for x < 8 {
		acc += 1 / (x * x)
		x++
	}
	inv := 1 / (x * x)
	// asymptotic series: 1/x + 1/(2x^2) + 1/(6x^3) - 1/(30x^5) + 1/(42x^7)
	return acc + 1/x + inv/2 + inv/x*(1.0/6-inv*(1.0/30-inv/42))
}

// fitMultivariateGaussian estimates the joint mean and covariance from the
// complete rows of the leaf's scope. The covariance diagonal is clamped to
// keep the matrix away from singularity.
func fitMultivariateGaussian(g *MultivariateGaussian, data *Data, weights []float64, strategy NaNStrategy, ctx *DispatchContext) error {
	cols := g.Scope().Query()
	d := len(cols)
	var rows []float64
	var w []float64
	buf := make([]float64, 0, d)
	for i := 0; i < data.Rows(); i++ {
		x := data.scopeRow(buf, i, cols)
		if !fullyObserved(x) {
			if strategy == NaNStrategyIgnore {
				continue
			}
			return fmt.Errorf("%w: instance %d has missing values in the joint scope; pass NaNStrategyIgnore to drop such rows", ErrConfiguration, i)
		}
		wi := 1.0
		if weights != nil {
			wi = weights[i]
			if wi < 0 || math.IsNaN(wi) || math.IsInf(wi, 0) {
				return fmt.Errorf("%w: instance weight %v at row %d", ErrConfiguration, wi, i)
			}
			if wi == 0 {
				continue
			}
		}
		if ctx.opts.CheckSupport && !g.CheckSupport(x) {
			return fmt.Errorf("%w: instance %d is outside the support of the %s distribution (node %d)", ErrSupport, i, g.Family(), g.ID())
		}
		rows = append(rows, x...)
		w = append(w, wi)
	}
	if len(w) <= 1 {
		return fmt.Errorf("%w: joint covariance estimation needs at least two observed instances, got %d", ErrConfiguration, len(w))
	}

	m := mat.NewDense(len(w), d, rows)
	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, m), w)
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, m, w)
	minVar := ctx.opts.MinStdDev * ctx.opts.MinStdDev
	for j := 0; j < d; j++ {
		if cov.At(j, j) < minVar {
			cov.SetSym(j, j, minVar)
		}
	}
	return g.SetParams(mean, cov)
}

func fullyObserved(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
