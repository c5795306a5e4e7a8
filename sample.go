package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SamplingContext pairs each data row that must be filled in with the output
// index of the node it should be sampled from. Multi-output layers use the
// output index to select one of their batched nodes; single-output nodes
// require index 0.
type SamplingContext struct {
	// InstanceIDs lists the rows of the data batch to fill.
	InstanceIDs []int

	// OutputIDs holds one output index per instance id. Nil defaults every
	// instance to output 0.
	OutputIDs []int
}

// NewSamplingContext creates a sampling context over the given rows and
// output indices.
func NewSamplingContext(instanceIDs, outputIDs []int) *SamplingContext {
	return &SamplingContext{
		InstanceIDs: append([]int(nil), instanceIDs...),
		OutputIDs:   append([]int(nil), outputIDs...),
	}
}

func defaultSamplingContext(rows int) *SamplingContext {
	ids := make([]int, rows)
	for i := range ids {
		ids[i] = i
	}
	return &SamplingContext{InstanceIDs: ids, OutputIDs: make([]int, rows)}
}

func (sc *SamplingContext) validate(data *Data) error {
	if sc.OutputIDs == nil {
		sc.OutputIDs = make([]int, len(sc.InstanceIDs))
	}
	if len(sc.OutputIDs) != len(sc.InstanceIDs) {
		return fmt.Errorf("%w: %d output ids for %d instance ids", ErrConfiguration, len(sc.OutputIDs), len(sc.InstanceIDs))
	}
	for _, id := range sc.InstanceIDs {
		if id < 0 || id >= data.Rows() {
			return fmt.Errorf("%w: instance id %d for a data batch with %d rows", ErrBounds, id, data.Rows())
		}
	}
	return nil
}

// Sample fills the missing entries of the rows selected by sctx with draws
// from the circuit rooted at root, conditioned structurally on what is
// already observed. The data batch is mutated in place; observed entries are
// never overwritten. A nil sctx selects all rows at output 0; a nil ctx uses
// a fresh default context.
func Sample(root Node, data *Data, ctx *DispatchContext, sctx *SamplingContext) error {
	if root == nil {
		return fmt.Errorf("%w: nil circuit root", ErrConfiguration)
	}
	if data == nil {
		return fmt.Errorf("%w: nil data batch", ErrConfiguration)
	}
	ctx = ensureCtx(ctx)
	if sctx == nil {
		sctx = defaultSamplingContext(data.Rows())
	}
	if err := sctx.validate(data); err != nil {
		return err
	}
	if err := checkScopeCoverage(root.Scope(), data); err != nil {
		return err
	}
	ctx.log.Debugf("sampling %d instances", len(sctx.InstanceIDs))
	return sampleNode(root, data, ctx, sctx.InstanceIDs, sctx.OutputIDs)
}

// SampleN draws n complete instances from the circuit and returns them as a
// fresh data batch with one column per variable up to the circuit's largest
// scope index.
func SampleN(root Node, n int, ctx *DispatchContext) (*Data, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil circuit root", ErrConfiguration)
	}
	query := root.Scope().Query()
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: circuit root has an empty scope", ErrConfiguration)
	}
	cols := query[len(query)-1] + 1
	data, err := NewData(n, cols)
	if err != nil {
		return nil, err
	}
	if err := Sample(root, data, ctx, nil); err != nil {
		return nil, err
	}
	return data, nil
}

func sampleNode(n Node, data *Data, ctx *DispatchContext, ids, outs []int) error {
	if len(ids) == 0 {
		return nil
	}
	switch t := n.(type) {
	case *SumNode:
		if err := requireOutputZero(t, outs); err != nil {
			return err
		}
		return sampleSumBranches(t.children, t.weights, data, ctx, ids)
	case *ProductNode:
		if err := requireOutputZero(t, outs); err != nil {
			return err
		}
		return sampleProductChildren(t.children, data, ctx, ids)
	case *SumLayer:
		groups, err := groupByOutput(t, ids, outs)
		if err != nil {
			return err
		}
		for j, group := range groups {
			if err := sampleSumBranches(t.children, t.weights[j], data, ctx, group); err != nil {
				return err
			}
		}
		return nil
	case *ProductLayer:
		for _, j := range outs {
			if j < 0 || j >= t.nOut {
				return fmt.Errorf("%w: output id %d for %s node %d with %d outputs", ErrBounds, j, t.Kind(), t.ID(), t.nOut)
			}
		}
		return sampleProductChildren(t.children, data, ctx, ids)
	case *GaussianLayer:
		groups, err := groupByOutput(t, ids, outs)
		if err != nil {
			return err
		}
		for j, group := range groups {
			if err := t.nodes[j].SampleRows(data, group, ctx); err != nil {
				return err
			}
		}
		return nil
	case Leaf:
		if err := requireOutputZero(t, outs); err != nil {
			return err
		}
		return t.SampleRows(data, ids, ctx)
	default:
		return fmt.Errorf("%w: no sampling implementation for node type %T", ErrConfiguration, n)
	}
}

func requireOutputZero(n Node, outs []int) error {
	for _, j := range outs {
		if j != 0 {
			return fmt.Errorf("%w: output id %d for single-output %s node %d", ErrBounds, j, n.Kind(), n.ID())
		}
	}
	return nil
}

func groupByOutput(n Node, ids, outs []int) (map[int][]int, error) {
	groups := make(map[int][]int)
	for i, id := range ids {
		j := outs[i]
		if j < 0 || j >= n.NOut() {
			return nil, fmt.Errorf("%w: output id %d for %s node %d with %d outputs", ErrBounds, j, n.Kind(), n.ID(), n.NOut())
		}
		groups[j] = append(groups[j], id)
	}
	return groups, nil
}

// sampleSumBranches draws one child branch per instance from the categorical
// weight vector and delegates each instance to its branch.
func sampleSumBranches(children []Node, weights []float64, data *Data, ctx *DispatchContext, ids []int) error {
	cat := distuv.NewCategorical(weights, ctx.rng)

	type branch struct{ child, out int }
	groups := make(map[branch][]int)
	for _, id := range ids {
		k := int(cat.Rand())
		child, out := childAtInput(children, k)
		groups[branch{child, out}] = append(groups[branch{child, out}], id)
	}
	for b, group := range groups {
		outs := make([]int, len(group))
		for i := range outs {
			outs[i] = b.out
		}
		if err := sampleNode(children[b.child], data, ctx, group, outs); err != nil {
			return err
		}
	}
	return nil
}

// sampleProductChildren forwards every instance to all children; each child
// output covers a disjoint slice of the product's scope.
func sampleProductChildren(children []Node, data *Data, ctx *DispatchContext, ids []int) error {
	for _, child := range children {
		for j := 0; j < child.NOut(); j++ {
			outs := make([]int, len(ids))
			for i := range outs {
				outs[i] = j
			}
			if err := sampleNode(child, data, ctx, ids, outs); err != nil {
				return err
			}
		}
	}
	return nil
}

// childAtInput maps a flat input index over the concatenated child outputs to
// the owning child and its local output index.
func childAtInput(children []Node, idx int) (child, out int) {
	for c, node := range children {
		if idx < node.NOut() {
			return c, idx
		}
		idx -= node.NOut()
	}
	// unreachable for validated weights
	return len(children) - 1, children[len(children)-1].NOut() - 1
}

// sampleUnivariate fills the still-missing entries of column col for the
// given rows using draw. Observed entries are left untouched.
func sampleUnivariate(data *Data, rows []int, col int, draw func() float64) {
	for _, r := range rows {
		if math.IsNaN(data.At(r, col)) {
			data.Set(r, col, draw())
		}
	}
}
