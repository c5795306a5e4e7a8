package spn

import (
	"fmt"
	"math"
)

// LogLikelihoodFunc is the signature of a substitute log-likelihood
// implementation registered on the dispatch context for a node kind.
type LogLikelihoodFunc func(n Node, data *Data, ctx *DispatchContext) (Batch, error)

// LogLikelihood computes the per-instance log-likelihood of the data batch
// under the circuit rooted at root. The result has one column per root
// output. Missing entries (NaN) are marginalized over; rows where a leaf's
// whole scope is missing contribute the log-space neutral element 0.
//
// ctx may be nil, in which case a fresh default context is used. Passing a
// context lets callers read memoized per-node results afterwards; a context
// must not be reused across different data batches.
func LogLikelihood(root Node, data *Data, ctx *DispatchContext) (Batch, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil circuit root", ErrConfiguration)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: nil data batch", ErrConfiguration)
	}
	ctx = ensureCtx(ctx)
	if err := checkScopeCoverage(root.Scope(), data); err != nil {
		return nil, err
	}
	ctx.log.Debugf("log-likelihood over %d instances, backend=%s", data.Rows(), ctx.opts.Backend.Name())
	return logLikelihood(root, data, ctx)
}

func checkScopeCoverage(scope Scope, data *Data) error {
	for _, rv := range scope.Query() {
		if rv >= data.Cols() {
			return fmt.Errorf("%w: circuit scope variable %d exceeds data batch with %d columns", ErrConfiguration, rv, data.Cols())
		}
	}
	return nil
}

// logLikelihood is the memoized recursive evaluator. Each node is evaluated
// at most once per context, so shared sub-circuits of a DAG cost one visit.
func logLikelihood(n Node, data *Data, ctx *DispatchContext) (Batch, error) {
	v, err := ctx.memoize(opLogLikelihood, n, func() (any, error) {
		if fn, ok := ctx.swap(n); ok {
			ll, ok := fn.(LogLikelihoodFunc)
			if !ok {
				return nil, fmt.Errorf("%w: override for %s nodes has type %T, want LogLikelihoodFunc", ErrConfiguration, n.Kind(), fn)
			}
			return ll(n, data, ctx)
		}
		return logLikelihoodDefault(n, data, ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Batch), nil
}

func logLikelihoodDefault(n Node, data *Data, ctx *DispatchContext) (Batch, error) {
	switch t := n.(type) {
	case *SumNode:
		inputs, err := childLogLikelihoods(t, data, ctx)
		if err != nil {
			return nil, err
		}
		return weightedLogSumExp(inputs, t.weights, ctx)
	case *ProductNode:
		inputs, err := childLogLikelihoods(t, data, ctx)
		if err != nil {
			return nil, err
		}
		return ctx.opts.Backend.SumRows(inputs), nil
	case *SumLayer:
		inputs, err := childLogLikelihoods(t, data, ctx)
		if err != nil {
			return nil, err
		}
		outs := make([]Batch, t.nOut)
		for j := 0; j < t.nOut; j++ {
			outs[j], err = weightedLogSumExp(inputs, t.weights[j], ctx)
			if err != nil {
				return nil, err
			}
		}
		return ctx.opts.Backend.HStack(outs)
	case *ProductLayer:
		inputs, err := childLogLikelihoods(t, data, ctx)
		if err != nil {
			return nil, err
		}
		col := ctx.opts.Backend.SumRows(inputs)
		outs := make([]Batch, t.nOut)
		for j := range outs {
			outs[j] = col
		}
		return ctx.opts.Backend.HStack(outs)
	case *GaussianLayer:
		outs := make([]Batch, len(t.nodes))
		for j, leaf := range t.nodes {
			b, err := logLikelihood(leaf, data, ctx)
			if err != nil {
				return nil, err
			}
			outs[j] = b
		}
		return ctx.opts.Backend.HStack(outs)
	case Leaf:
		return leafLogLikelihood(t, data, ctx)
	default:
		return nil, fmt.Errorf("%w: no log-likelihood implementation for node type %T", ErrConfiguration, n)
	}
}

// childLogLikelihoods evaluates all children and stacks their output columns
// in child order.
func childLogLikelihoods(n Node, data *Data, ctx *DispatchContext) (Batch, error) {
	children := n.Children()
	parts := make([]Batch, len(children))
	for i, child := range children {
		b, err := logLikelihood(child, data, ctx)
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	return ctx.opts.Backend.HStack(parts)
}

// weightedLogSumExp combines child columns with the weight vector in log
// space: log(sum_i exp(ll_i) * w_i).
func weightedLogSumExp(inputs Batch, weights []float64, ctx *DispatchContext) (Batch, error) {
	logW := make([]float64, len(weights))
	for i, w := range weights {
		logW[i] = math.Log(w)
	}
	weighted, err := ctx.opts.Backend.AddRowVector(inputs, logW)
	if err != nil {
		return nil, err
	}
	return ctx.opts.Backend.LogSumExpRows(weighted), nil
}

// leafLogLikelihood scores one leaf column. Fully missing rows yield the
// log-space neutral element; observed rows are support-checked (unless
// disabled) and scored by the family's density.
func leafLogLikelihood(l Leaf, data *Data, ctx *DispatchContext) (Batch, error) {
	cols := l.Scope().Query()
	if err := checkScopeCoverage(l.Scope(), data); err != nil {
		return nil, err
	}
	density, err := l.Density(data, ctx)
	if err != nil {
		return nil, err
	}
	rows := data.Rows()
	out := make([]float64, rows)
	buf := make([]float64, 0, len(cols))
	for i := 0; i < rows; i++ {
		x := data.scopeRow(buf, i, cols)
		if allMissing(x) {
			continue // fully marginalized, stays 0
		}
		if ctx.opts.CheckSupport && !l.CheckSupport(x) {
			return nil, fmt.Errorf("%w: instance %d is outside the support of the %s distribution (node %d)", ErrSupport, i, l.Family(), l.ID())
		}
		v, err := density(x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return ctx.opts.Backend.Constant(rows, 1, out), nil
}
