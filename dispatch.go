package spn

import (
	"time"

	"golang.org/x/exp/rand"
)

// Operation tags used as cache keys. One cache namespace per top-level
// operation keeps memoized results from different operations apart.
const (
	opLogLikelihood = "log_likelihood"
	opMarginalize   = "marginalize"
)

// DispatchContext is the call-scoped mutable state threaded through every
// traversal. It provides per-node argument overrides for conditional
// parameters, a memoization cache guaranteeing at-most-once evaluation per
// node per top-level call, and a per-node-kind function override table.
//
// A context is owned by exactly one top-level call at a time and must not be
// shared across concurrent calls or reused across different data batches.
// Nothing in it survives into the circuit itself; dropping the context drops
// all cached state.
type DispatchContext struct {
	opts Options
	log  Logger
	rng  *rand.Rand

	args  map[uint64]map[string]any
	cache map[string]map[uint64]any
	funcs map[NodeKind]any
}

// NewDispatchContext creates a fresh context. With no arguments the default
// options apply.
func NewDispatchContext(opts ...Options) *DispatchContext {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	o = o.withDefaults()
	seed := o.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &DispatchContext{
		opts:  o,
		log:   o.Logger,
		rng:   rand.New(rand.NewSource(seed)),
		args:  make(map[uint64]map[string]any),
		cache: make(map[string]map[uint64]any),
		funcs: make(map[NodeKind]any),
	}
}

func ensureCtx(ctx *DispatchContext) *DispatchContext {
	if ctx == nil {
		return NewDispatchContext()
	}
	return ctx
}

// Options returns the options the context was created with.
func (ctx *DispatchContext) Options() Options { return ctx.opts }

// SetArg stores a per-call override value for a node parameter, consulted
// before the node's own stored or conditional parameters.
func (ctx *DispatchContext) SetArg(n Node, key string, v any) {
	m := ctx.args[n.ID()]
	if m == nil {
		m = make(map[string]any)
		ctx.args[n.ID()] = m
	}
	m[key] = v
}

// Arg retrieves a per-call override value for a node parameter.
func (ctx *DispatchContext) Arg(n Node, key string) (any, bool) {
	m, ok := ctx.args[n.ID()]
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// SetFunc registers a substitute implementation for all nodes of the given
// kind, consulted before the default dispatch target. The value must match
// the function type of the operation it substitutes (e.g. LogLikelihoodFunc).
func (ctx *DispatchContext) SetFunc(kind NodeKind, fn any) {
	ctx.funcs[kind] = fn
}

// swap returns the registered substitute implementation for the node's kind,
// if any.
func (ctx *DispatchContext) swap(n Node) (any, bool) {
	fn, ok := ctx.funcs[n.Kind()]
	return fn, ok
}

// memoize returns the cached result for (op, node) if present, otherwise it
// computes, stores and returns it. Errors are not cached; they abort the
// whole call anyway.
func (ctx *DispatchContext) memoize(op string, n Node, compute func() (any, error)) (any, error) {
	m := ctx.cache[op]
	if m == nil {
		m = make(map[uint64]any)
		ctx.cache[op] = m
	}
	if v, ok := m[n.ID()]; ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	m[n.ID()] = v
	return v, nil
}

// Cached returns the memoized result of op for the given node, if the context
// holds one. Learning collaborators use this to read per-node log-likelihood
// batches (and, with the gradient backend, their gradients) after a top-level
// evaluation.
func (ctx *DispatchContext) Cached(op string, n Node) (any, bool) {
	m, ok := ctx.cache[op]
	if !ok {
		return nil, false
	}
	v, ok := m[n.ID()]
	return v, ok
}

// CachedLogLikelihood returns the memoized log-likelihood batch for the node,
// if the context holds one.
func (ctx *DispatchContext) CachedLogLikelihood(n Node) (Batch, bool) {
	v, ok := ctx.Cached(opLogLikelihood, n)
	if !ok {
		return nil, false
	}
	b, ok := v.(Batch)
	return b, ok
}
