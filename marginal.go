package spn

import (
	"fmt"
)

// MarginalizeFunc is the signature of a substitute marginalization
// implementation registered on the dispatch context for a node kind.
type MarginalizeFunc func(n Node, margRVs []int, prune bool, ctx *DispatchContext) (Node, error)

// Marginalize structurally eliminates the given variables from the circuit
// rooted at root and returns the reduced circuit. The input circuit is never
// mutated: untouched regions come back as independent deep copies, with DAG
// sharing preserved through the memoization cache. A nil result means the
// whole circuit was eliminated.
//
// With prune set, degenerate product combinators that are left with exactly
// one child collapse to that child, and layers that drop to a single output
// collapse to the unbatched node kind.
//
// Marginalizing by the empty set yields a structurally equivalent copy, and
// marginalizing by A then B equals marginalizing once by their union.
func Marginalize(root Node, margRVs []int, prune bool, ctx *DispatchContext) (Node, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil circuit root", ErrConfiguration)
	}
	ctx = ensureCtx(ctx)
	ctx.log.Debugf("marginalizing %d variables, prune=%v", len(margRVs), prune)
	return marginalize(root, margRVs, prune, ctx)
}

func marginalize(n Node, margRVs []int, prune bool, ctx *DispatchContext) (Node, error) {
	v, err := ctx.memoize(opMarginalize, n, func() (any, error) {
		if fn, ok := ctx.swap(n); ok {
			mg, ok := fn.(MarginalizeFunc)
			if !ok {
				return nil, fmt.Errorf("%w: override for %s nodes has type %T, want MarginalizeFunc", ErrConfiguration, n.Kind(), fn)
			}
			return mg(n, margRVs, prune, ctx)
		}
		return marginalizeDefault(n, margRVs, prune, ctx)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(Node), nil
}

func marginalizeDefault(n Node, margRVs []int, prune bool, ctx *DispatchContext) (Node, error) {
	marg := margSet(margRVs)

	// for any kind: a fully eliminated scope removes the node outright
	if fullyEliminated(n.Scope(), marg) {
		return nil, nil
	}

	switch t := n.(type) {
	case *SumNode:
		// sum children are query-equal, so elimination is all-or-nothing
		// across children and the weight vector carries over unchanged
		children, err := marginalizeChildren(t.children, margRVs, prune, ctx)
		if err != nil {
			return nil, err
		}
		return NewSumNode(children, t.weights)
	case *ProductNode:
		children, err := marginalizeChildren(t.children, margRVs, prune, ctx)
		if err != nil {
			return nil, err
		}
		if len(children) == 1 && prune {
			return children[0], nil
		}
		return NewProductNode(children)
	case *SumLayer:
		children, err := marginalizeChildren(t.children, margRVs, prune, ctx)
		if err != nil {
			return nil, err
		}
		return NewSumLayer(t.nOut, children, t.weights)
	case *ProductLayer:
		children, err := marginalizeChildren(t.children, margRVs, prune, ctx)
		if err != nil {
			return nil, err
		}
		if len(children) == 1 && prune && t.nOut == 1 {
			return children[0], nil
		}
		return NewProductLayer(t.nOut, children)
	case *GaussianLayer:
		return t.Marginal(margRVs, prune)
	case Leaf:
		return t.Marginal(margRVs)
	default:
		return nil, fmt.Errorf("%w: no marginalization implementation for node type %T", ErrConfiguration, n)
	}
}

func fullyEliminated(scope Scope, marg map[int]struct{}) bool {
	mutual := scope.queryIntersection(marg)
	return len(mutual) == scope.Len() && scope.Len() > 0
}

// marginalizeChildren recurses into every child and drops the eliminated
// ones. At least one child always survives here, since the parent's scope
// was not fully eliminated.
func marginalizeChildren(children []Node, margRVs []int, prune bool, ctx *DispatchContext) ([]Node, error) {
	var out []Node
	for _, child := range children {
		m, err := marginalize(child, margRVs, prune, ctx)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: marginalization eliminated all children of a surviving combinator", ErrConfiguration)
	}
	return out, nil
}
