package spn

import (
	"gonum.org/v1/gonum/floats"
)

// DenseBackend is the plain array backend: batches are row-major float64
// slices with no bookkeeping beyond their dimensions. This is the default
// backend for inference.
type DenseBackend struct{}

// NewDenseBackend returns the plain array backend.
func NewDenseBackend() *DenseBackend { return &DenseBackend{} }

// Name implements Backend.
func (*DenseBackend) Name() string { return "dense" }

// DenseBatch is a row-major float64 batch.
type DenseBatch struct {
	rows, cols int
	v          []float64
}

// Dims implements Batch.
func (b *DenseBatch) Dims() (int, int) { return b.rows, b.cols }

// At implements Batch.
func (b *DenseBatch) At(i, j int) float64 { return b.v[i*b.cols+j] }

// Dense implements Batch.
func (b *DenseBatch) Dense() []float64 {
	out := make([]float64, len(b.v))
	copy(out, b.v)
	return out
}

func (b *DenseBatch) row(i int) []float64 { return b.v[i*b.cols : (i+1)*b.cols] }

// Constant implements Backend.
func (*DenseBackend) Constant(rows, cols int, values []float64) Batch {
	v := make([]float64, rows*cols)
	copy(v, values)
	return &DenseBatch{rows: rows, cols: cols, v: v}
}

// HStack implements Backend.
func (be *DenseBackend) HStack(parts []Batch) (Batch, error) {
	rows, cols, err := checkHStack(parts)
	if err != nil {
		return nil, err
	}
	out := &DenseBatch{rows: rows, cols: cols, v: make([]float64, rows*cols)}
	off := 0
	for _, p := range parts {
		_, pc := p.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < pc; j++ {
				out.v[i*cols+off+j] = p.At(i, j)
			}
		}
		off += pc
	}
	return out, nil
}

// AddRowVector implements Backend.
func (be *DenseBackend) AddRowVector(b Batch, v []float64) (Batch, error) {
	rows, cols, err := checkRowVector(b, v)
	if err != nil {
		return nil, err
	}
	out := &DenseBatch{rows: rows, cols: cols, v: make([]float64, rows*cols)}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.v[i*cols+j] = b.At(i, j) + v[j]
		}
	}
	return out, nil
}

// LogSumExpRows implements Backend.
func (be *DenseBackend) LogSumExpRows(b Batch) Batch {
	rows, cols := b.Dims()
	out := &DenseBatch{rows: rows, cols: 1, v: make([]float64, rows)}
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = b.At(i, j)
		}
		out.v[i] = floats.LogSumExp(row)
	}
	return out
}

// SumRows implements Backend.
func (be *DenseBackend) SumRows(b Batch) Batch {
	rows, cols := b.Dims()
	out := &DenseBatch{rows: rows, cols: 1, v: make([]float64, rows)}
	for i := 0; i < rows; i++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			s += b.At(i, j)
		}
		out.v[i] = s
	}
	return out
}
