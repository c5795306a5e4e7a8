package spn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// GradBackend is the gradient-tracking backend. Every operation records how
// it was computed, so that after evaluation a reverse pass can propagate
// gradients from the root log-likelihood back to every intermediate batch,
// including the memoized per-node outputs sitting in the dispatch cache.
// Learning collaborators read those gradients as expected counts.
//
// The traversal engine is oblivious to the tracking: a GradBatch satisfies
// the same Batch surface as a DenseBatch.
type GradBackend struct{}

// NewGradBackend returns the gradient-tracking backend.
func NewGradBackend() *GradBackend { return &GradBackend{} }

// Name implements Backend.
func (*GradBackend) Name() string { return "grad" }

// GradBatch is a batch with an attached gradient of the same shape. The
// gradient is zero until Backward is run on a downstream result.
type GradBatch struct {
	rows, cols int
	v          []float64
	grad       []float64

	parents []*GradBatch
	back    func() // accumulates this batch's grad into its parents' grads
}

// Dims implements Batch.
func (b *GradBatch) Dims() (int, int) { return b.rows, b.cols }

// At implements Batch.
func (b *GradBatch) At(i, j int) float64 { return b.v[i*b.cols+j] }

// Dense implements Batch.
func (b *GradBatch) Dense() []float64 {
	out := make([]float64, len(b.v))
	copy(out, b.v)
	return out
}

// Grad returns a row-major copy of the accumulated gradient.
func (b *GradBatch) Grad() []float64 {
	out := make([]float64, len(b.grad))
	copy(out, b.grad)
	return out
}

// GradAt returns the accumulated gradient at row i, column j.
func (b *GradBatch) GradAt(i, j int) float64 { return b.grad[i*b.cols+j] }

func newGradBatch(rows, cols int, parents ...*GradBatch) *GradBatch {
	return &GradBatch{
		rows:    rows,
		cols:    cols,
		v:       make([]float64, rows*cols),
		grad:    make([]float64, rows*cols),
		parents: parents,
	}
}

// Constant implements Backend. Constants are tape leaves: they receive
// gradients but propagate nothing further.
func (*GradBackend) Constant(rows, cols int, values []float64) Batch {
	b := newGradBatch(rows, cols)
	copy(b.v, values)
	return b
}

func asGradBatches(parts []Batch) ([]*GradBatch, error) {
	out := make([]*GradBatch, len(parts))
	for i, p := range parts {
		g, ok := p.(*GradBatch)
		if !ok {
			return nil, fmt.Errorf("%w: grad backend received a foreign batch of type %T", ErrConfiguration, p)
		}
		out[i] = g
	}
	return out, nil
}

// HStack implements Backend.
func (be *GradBackend) HStack(parts []Batch) (Batch, error) {
	rows, cols, err := checkHStack(parts)
	if err != nil {
		return nil, err
	}
	gps, err := asGradBatches(parts)
	if err != nil {
		return nil, err
	}
	out := newGradBatch(rows, cols, gps...)
	off := 0
	for _, p := range gps {
		for i := 0; i < rows; i++ {
			copy(out.v[i*cols+off:i*cols+off+p.cols], p.v[i*p.cols:(i+1)*p.cols])
		}
		off += p.cols
	}
	out.back = func() {
		off := 0
		for _, p := range gps {
			for i := 0; i < rows; i++ {
				for j := 0; j < p.cols; j++ {
					p.grad[i*p.cols+j] += out.grad[i*cols+off+j]
				}
			}
			off += p.cols
		}
	}
	return out, nil
}

// AddRowVector implements Backend. The row vector is treated as a constant
// with respect to the tape; weight gradients are recovered by learning
// collaborators from the input gradients instead.
func (be *GradBackend) AddRowVector(b Batch, v []float64) (Batch, error) {
	rows, cols, err := checkRowVector(b, v)
	if err != nil {
		return nil, err
	}
	in, ok := b.(*GradBatch)
	if !ok {
		return nil, fmt.Errorf("%w: grad backend received a foreign batch of type %T", ErrConfiguration, b)
	}
	out := newGradBatch(rows, cols, in)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.v[i*cols+j] = in.v[i*cols+j] + v[j]
		}
	}
	out.back = func() {
		for k := range out.grad {
			in.grad[k] += out.grad[k]
		}
	}
	return out, nil
}

// LogSumExpRows implements Backend. The backward rule is the softmax of the
// inputs: d in_ij = exp(in_ij - out_i) * d out_i.
func (be *GradBackend) LogSumExpRows(b Batch) Batch {
	in := b.(*GradBatch)
	rows, cols := in.rows, in.cols
	out := newGradBatch(rows, 1, in)
	for i := 0; i < rows; i++ {
		out.v[i] = floats.LogSumExp(in.v[i*cols : (i+1)*cols])
	}
	out.back = func() {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				w := math.Exp(in.v[i*cols+j] - out.v[i])
				if out.v[i] == math.Inf(-1) {
					w = 0 // all inputs -inf, no gradient flows
				}
				in.grad[i*cols+j] += w * out.grad[i]
			}
		}
	}
	return out
}

// SumRows implements Backend.
func (be *GradBackend) SumRows(b Batch) Batch {
	in := b.(*GradBatch)
	rows, cols := in.rows, in.cols
	out := newGradBatch(rows, 1, in)
	for i := 0; i < rows; i++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			s += in.v[i*cols+j]
		}
		out.v[i] = s
	}
	out.back = func() {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				in.grad[i*cols+j] += out.grad[i]
			}
		}
	}
	return out
}

// Backward runs a reverse pass from root, seeding every entry of the root's
// gradient with one and accumulating gradients into all batches the root was
// computed from. root must come from a GradBackend evaluation.
func Backward(root Batch) error {
	r, ok := root.(*GradBatch)
	if !ok {
		return fmt.Errorf("%w: Backward requires a grad-backend batch, got %T", ErrConfiguration, root)
	}
	order := topoOrder(r)
	for i := range r.grad {
		r.grad[i] = 1
	}
	for i := len(order) - 1; i >= 0; i-- {
		if order[i].back != nil {
			order[i].back()
		}
	}
	return nil
}

// topoOrder returns the tape in dependency order (parents before children).
func topoOrder(root *GradBatch) []*GradBatch {
	var order []*GradBatch
	seen := make(map[*GradBatch]bool)
	var visit func(b *GradBatch)
	visit = func(b *GradBatch) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, p := range b.parents {
			visit(p)
		}
		order = append(order, b)
	}
	visit(root)
	return order
}
