package spn

import (
	"fmt"
)

// SumLayer batches nOut sum nodes sharing the same children. Each output has
// its own weight row over the concatenated child outputs; all outputs share
// the joined child scope, so the layer is evaluated in one pass.
type SumLayer struct {
	id       uint64
	nOut     int
	children []Node
	weights  [][]float64 // one row per output
	scope    Scope
	nIn      int
}

// NewSumLayer creates a layer of nNodes sum nodes over the children. weights
// holds one row per node; a single row is reused for every node; nil defaults
// to uniform rows. All child output scopes must be query-equal.
func NewSumLayer(nNodes int, children []Node, weights [][]float64) (*SumLayer, error) {
	if nNodes < 1 {
		return nil, fmt.Errorf("%w: sum layer requires at least one node, got %d", ErrConfiguration, nNodes)
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: sum layer requires at least one child", ErrConfiguration)
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
				return nil, fmt.Errorf("%w: sum layer requires child scopes with equal query variables (%v vs %v)", ErrConfiguration, scope, s)
			} else {
				scope = scope.Join(s)
			}
		}
		nIn += child.NOut()
	}

	switch len(weights) {
	case 0:
		weights = make([][]float64, nNodes)
		for i := range weights {
			weights[i] = uniformWeights(nIn)
		}
	case 1:
		row := weights[0]
		weights = make([][]float64, nNodes)
		for i := range weights {
			weights[i] = row
		}
	case nNodes:
	default:
		return nil, fmt.Errorf("%w: sum layer got %d weight rows for %d nodes", ErrConfiguration, len(weights), nNodes)
	}
	rows := make([][]float64, nNodes)
	for i, row := range weights {
		if err := validateWeights(row, nIn); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		rows[i] = append([]float64(nil), row...)
	}

	return &SumLayer{
		id:       nextNodeID(),
		nOut:     nNodes,
		children: append([]Node(nil), children...),
		weights:  rows,
		scope:    scope,
		nIn:      nIn,
	}, nil
}

func (l *SumLayer) ID() uint64     { return l.id }
func (l *SumLayer) Kind() NodeKind { return KindSumLayer }
func (l *SumLayer) Scope() Scope   { return l.scope }

func (l *SumLayer) ScopesOut() []Scope {
	out := make([]Scope, l.nOut)
	for i := range out {
		out[i] = l.scope
	}
	return out
}

func (l *SumLayer) NOut() int        { return l.nOut }
func (l *SumLayer) Children() []Node { return l.children }

// Weights returns a copy of the weight rows.
func (l *SumLayer) Weights() [][]float64 {
	out := make([][]float64, l.nOut)
	for i, row := range l.weights {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// SetWeights replaces all weight rows in place.
func (l *SumLayer) SetWeights(weights [][]float64) error {
	if len(weights) != l.nOut {
		return fmt.Errorf("%w: got %d weight rows for %d nodes", ErrConfiguration, len(weights), l.nOut)
	}
	for i, row := range weights {
		if err := validateWeights(row, l.nIn); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		copy(l.weights[i], row)
	}
	return nil
}

// ProductLayer batches nOut product nodes, each multiplying all children.
// Child scopes must be pairwise query-disjoint, exactly as for a single
// product node.
type ProductLayer struct {
	id       uint64
	nOut     int
	children []Node
	scope    Scope
}

// NewProductLayer creates a layer of nNodes product nodes over the children.
func NewProductLayer(nNodes int, children []Node) (*ProductLayer, error) {
	if nNodes < 1 {
		return nil, fmt.Errorf("%w: product layer requires at least one node, got %d", ErrConfiguration, nNodes)
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: product layer requires at least one child", ErrConfiguration)
	}
	var scope Scope
	for _, child := range children {
		for _, s := range child.ScopesOut() {
			if !scope.DisjointQuery(s) {
				return nil, fmt.Errorf("%w: product layer requires pairwise disjoint child scopes (%v overlaps %v)", ErrConfiguration, scope, s)
			}
			scope = scope.Join(s)
		}
	}
	return &ProductLayer{
		id:       nextNodeID(),
		nOut:     nNodes,
		children: append([]Node(nil), children...),
		scope:    scope,
	}, nil
}

func (l *ProductLayer) ID() uint64     { return l.id }
func (l *ProductLayer) Kind() NodeKind { return KindProductLayer }
func (l *ProductLayer) Scope() Scope   { return l.scope }

func (l *ProductLayer) ScopesOut() []Scope {
	out := make([]Scope, l.nOut)
	for i := range out {
		out[i] = l.scope
	}
	return out
}

func (l *ProductLayer) NOut() int        { return l.nOut }
func (l *ProductLayer) Children() []Node { return l.children }

// GaussianLayer batches independent univariate Gaussian leaves, one per
// output, each with its own scope and parameters. The marginalizer slices the
// layer down to the surviving outputs.
type GaussianLayer struct {
	id    uint64
	nodes []*Gaussian
}

// NewGaussianLayer creates a leaf layer with one Gaussian per scope entry.
// scopes, means and stds must have equal length.
func NewGaussianLayer(scopes []Scope, means, stds []float64) (*GaussianLayer, error) {
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: gaussian layer requires at least one output", ErrConfiguration)
	}
	if len(means) != len(scopes) || len(stds) != len(scopes) {
		return nil, fmt.Errorf("%w: gaussian layer got %d scopes, %d means, %d standard deviations", ErrConfiguration, len(scopes), len(means), len(stds))
	}
	nodes := make([]*Gaussian, len(scopes))
	for i := range scopes {
		g, err := NewGaussian(scopes[i], means[i], stds[i])
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		nodes[i] = g
	}
	return &GaussianLayer{id: nextNodeID(), nodes: nodes}, nil
}

func newGaussianLayerFromNodes(nodes []*Gaussian) *GaussianLayer {
	return &GaussianLayer{id: nextNodeID(), nodes: nodes}
}

func (l *GaussianLayer) ID() uint64     { return l.id }
func (l *GaussianLayer) Kind() NodeKind { return KindLeafLayer }

func (l *GaussianLayer) Scope() Scope {
	scope := l.nodes[0].Scope()
	for _, n := range l.nodes[1:] {
		scope = scope.Join(n.Scope())
	}
	return scope
}

func (l *GaussianLayer) ScopesOut() []Scope {
	out := make([]Scope, len(l.nodes))
	for i, n := range l.nodes {
		out[i] = n.Scope()
	}
	return out
}

func (l *GaussianLayer) NOut() int        { return len(l.nodes) }
func (l *GaussianLayer) Children() []Node { return nil }

// Outputs returns the layer's per-output Gaussian leaves.
func (l *GaussianLayer) Outputs() []*Gaussian {
	return append([]*Gaussian(nil), l.nodes...)
}

// Marginal applies the three-way marginalization case per output index.
// Zero survivors eliminate the layer, a single survivor collapses to an
// unbatched Gaussian when prune is set, otherwise a smaller layer with the
// surviving outputs and their parameters is rebuilt.
func (l *GaussianLayer) Marginal(margRVs []int, prune bool) (Node, error) {
	var survivors []*Gaussian
	for _, n := range l.nodes {
		m, err := n.Marginal(margRVs)
		if err != nil {
			return nil, err
		}
		if m != nil {
			survivors = append(survivors, m.(*Gaussian))
		}
	}
	switch {
	case len(survivors) == 0:
		return nil, nil
	case len(survivors) == 1 && prune:
		return survivors[0], nil
	default:
		return newGaussianLayerFromNodes(survivors), nil
	}
}
