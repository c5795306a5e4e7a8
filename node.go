package spn

import (
	"fmt"
	"math"
	"sync/atomic"
)

// NodeKind identifies the structural variant of a node. The function override
// table of the dispatch context is keyed by kind.
type NodeKind int

const (
	KindSum NodeKind = iota
	KindProduct
	KindLeaf
	KindSumLayer
	KindProductLayer
	KindLeafLayer
)

func (k NodeKind) String() string {
	switch k {
	case KindSum:
		return "sum"
	case KindProduct:
		return "product"
	case KindLeaf:
		return "leaf"
	case KindSumLayer:
		return "sum-layer"
	case KindProductLayer:
		return "product-layer"
	case KindLeafLayer:
		return "leaf-layer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is a vertex of a probability circuit. Scope and child wiring are fixed
// at construction; parameter values may be mutated in place by learning
// routines. A node may be shared by several parents (the circuit is a DAG);
// the dispatch cache keys on the stable ID to evaluate shared nodes once.
type Node interface {
	// ID returns a process-unique identifier assigned at construction.
	ID() uint64

	// Kind returns the structural variant.
	Kind() NodeKind

	// Scope returns the joined scope over all outputs.
	Scope() Scope

	// ScopesOut returns one scope per logical output.
	ScopesOut() []Scope

	// NOut returns the number of logical outputs.
	NOut() int

	// Children returns the child nodes in order. Leaves return nil.
	Children() []Node
}

var nodeIDCounter atomic.Uint64

func nextNodeID() uint64 { return nodeIDCounter.Add(1) }

// DensityFunc computes the log-density of one instance's scope values. The
// input holds the values of the leaf's query variables in scope order and may
// contain the missing sentinel for partially observed multivariate rows; the
// fully missing case is resolved by the evaluator before the function is
// called.
type DensityFunc func(x []float64) (float64, error)

// Leaf is a distribution node. Concrete families plug into the engine through
// this surface: a support predicate, a per-call density resolver (conditional
// families fetch parameters from the dispatch context here), an in-place
// sampler and a structural marginalizer.
type Leaf interface {
	Node

	// Family names the distribution family for error messages and logs.
	Family() string

	// CheckSupport reports whether one row of scope values (missing entries
	// excluded from the check) lies in the distribution's support.
	CheckSupport(x []float64) bool

	// Density resolves the distribution's parameters for this call and
	// returns the row-wise log-density function.
	Density(data *Data, ctx *DispatchContext) (DensityFunc, error)

	// SampleRows draws values for the missing scope entries of the given
	// data rows, in place. Observed entries are never touched.
	SampleRows(data *Data, rows []int, ctx *DispatchContext) error

	// Marginal returns the leaf with the given variables eliminated: nil if
	// the whole query scope is eliminated, an independent copy if disjoint,
	// and a reduced-dimension leaf of the same family for partial overlap
	// (families that cannot reduce return a configuration error).
	Marginal(margRVs []int) (Node, error)
}

// SumNode is a weighted sum over children with query-equal scopes: a mixture.
// Weights are positive and sum to one per construction.
type SumNode struct {
	id       uint64
	children []Node
	weights  []float64
	scope    Scope
	nIn      int
}

// NewSumNode creates a sum node over the children. All child output scopes
// must share the same query variables. weights must hold one positive entry
// per child output and sum to one; nil defaults to a uniform vector.
func NewSumNode(children []Node, weights []float64) (*SumNode, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: sum node requires at least one child", ErrConfiguration)
	}
	var scope Scope
	first := true
	nIn := 0
	for _, child := range children {
		for _, s := range child.ScopesOut() {
			if first {
				scope = s
				first = false
			} else if !scope.EqualQuery(s) {
				return nil, fmt.Errorf("%w: sum node requires child scopes with equal query variables (%v vs %v)", ErrConfiguration, scope, s)
			} else {
				scope = scope.Join(s)
			}
		}
		nIn += child.NOut()
	}
	if weights == nil {
		weights = uniformWeights(nIn)
	}
	if err := validateWeights(weights, nIn); err != nil {
		return nil, err
	}
	w := make([]float64, len(weights))
	copy(w, weights)
	return &SumNode{
		id:       nextNodeID(),
		children: append([]Node(nil), children...),
		weights:  w,
		scope:    scope,
		nIn:      nIn,
	}, nil
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

const weightSumTol = 1e-8

func validateWeights(w []float64, nIn int) error {
	if len(w) != nIn {
		return fmt.Errorf("%w: got %d weights for %d child outputs", ErrConfiguration, len(w), nIn)
	}
	sum := 0.0
	for _, v := range w {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: sum weights must be positive and finite, got %v", ErrConfiguration, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightSumTol {
		return fmt.Errorf("%w: sum weights must sum to one, got %v", ErrConfiguration, sum)
	}
	return nil
}

func (n *SumNode) ID() uint64         { return n.id }
func (n *SumNode) Kind() NodeKind     { return KindSum }
func (n *SumNode) Scope() Scope       { return n.scope }
func (n *SumNode) ScopesOut() []Scope { return []Scope{n.scope} }
func (n *SumNode) NOut() int          { return 1 }
func (n *SumNode) Children() []Node   { return n.children }

// Weights returns a copy of the weight vector.
func (n *SumNode) Weights() []float64 {
	w := make([]float64, len(n.weights))
	copy(w, n.weights)
	return w
}

// SetWeights replaces the weight vector in place. Used by learning routines;
// callers must serialize updates against concurrent evaluation.
func (n *SumNode) SetWeights(w []float64) error {
	if err := validateWeights(w, n.nIn); err != nil {
		return err
	}
	copy(n.weights, w)
	return nil
}

// ProductNode multiplies children with pairwise query-disjoint scopes: an
// independence factorization. Its scope is the union of all child scopes.
type ProductNode struct {
	id       uint64
	children []Node
	scope    Scope
}

// NewProductNode creates a product node over the children, whose output
// scopes must be pairwise query-disjoint.
func NewProductNode(children []Node) (*ProductNode, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: product node requires at least one child", ErrConfiguration)
	}
	var scope Scope
	for _, child := range children {
		for _, s := range child.ScopesOut() {
			if !scope.DisjointQuery(s) {
				return nil, fmt.Errorf("%w: product node requires pairwise disjoint child scopes (%v overlaps %v)", ErrConfiguration, scope, s)
			}
			scope = scope.Join(s)
		}
	}
	return &ProductNode{
		id:       nextNodeID(),
		children: append([]Node(nil), children...),
		scope:    scope,
	}, nil
}

func (n *ProductNode) ID() uint64         { return n.id }
func (n *ProductNode) Kind() NodeKind     { return KindProduct }
func (n *ProductNode) Scope() Scope       { return n.scope }
func (n *ProductNode) ScopesOut() []Scope { return []Scope{n.scope} }
func (n *ProductNode) NOut() int          { return 1 }
func (n *ProductNode) Children() []Node   { return n.children }

// leafNode carries the shared identity and scope bookkeeping of leaf
// families.
type leafNode struct {
	id    uint64
	scope Scope
}

func newLeafNode(scope Scope) leafNode {
	return leafNode{id: nextNodeID(), scope: scope}
}

func (n *leafNode) ID() uint64         { return n.id }
func (n *leafNode) Kind() NodeKind     { return KindLeaf }
func (n *leafNode) Scope() Scope       { return n.scope }
func (n *leafNode) ScopesOut() []Scope { return []Scope{n.scope} }
func (n *leafNode) NOut() int          { return 1 }
func (n *leafNode) Children() []Node   { return nil }

// requireUnivariateScope validates the scope of a univariate leaf family.
func requireUnivariateScope(scope Scope, family string) error {
	if scope.Len() != 1 {
		return fmt.Errorf("%w: %s leaf requires a scope with exactly one query variable, got %d", ErrConfiguration, family, scope.Len())
	}
	if len(scope.Evidence()) != 0 {
		return fmt.Errorf("%w: %s leaf does not take evidence variables", ErrConfiguration, family)
	}
	return nil
}

// margSet builds the set view of a marginalization variable list.
func margSet(margRVs []int) map[int]struct{} {
	m := make(map[int]struct{}, len(margRVs))
	for _, rv := range margRVs {
		m[rv] = struct{}{}
	}
	return m
}

// allMissing reports whether every entry of x is the missing sentinel.
func allMissing(x []float64) bool {
	for _, v := range x {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
