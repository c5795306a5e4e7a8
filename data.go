package spn

import (
	"fmt"
	"math"
)

// Data is a dense two-dimensional data batch. Rows are instances, columns
// follow the global variable indexing shared with node scopes. Missing
// ("not observed") entries are marked with NaN; both the likelihood
// evaluator and the sampler key their behavior off that sentinel.
//
// Sampling fills missing entries in place; observed entries are never
// overwritten.
type Data struct {
	rows, cols int
	v          []float64
}

// Missing returns the sentinel value marking a not-observed entry.
func Missing() float64 { return math.NaN() }

// IsMissingValue reports whether v is the missing sentinel.
func IsMissingValue(v float64) bool { return math.IsNaN(v) }

// NewData creates a rows x cols batch with every entry missing.
func NewData(rows, cols int) (*Data, error) {
	if rows < 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: data batch dimensions must be positive, got %dx%d", ErrConfiguration, rows, cols)
	}
	v := make([]float64, rows*cols)
	for i := range v {
		v[i] = math.NaN()
	}
	return &Data{rows: rows, cols: cols, v: v}, nil
}

// NewDataFrom creates a batch from row-major values. The slice is copied.
func NewDataFrom(rows, cols int, values []float64) (*Data, error) {
	if rows < 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: data batch dimensions must be positive, got %dx%d", ErrConfiguration, rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: expected %d values for a %dx%d data batch, got %d", ErrConfiguration, rows*cols, rows, cols, len(values))
	}
	v := make([]float64, len(values))
	copy(v, values)
	return &Data{rows: rows, cols: cols, v: v}, nil
}

// NewDataRows creates a batch from per-row slices, which must all have the
// same length.
func NewDataRows(rows [][]float64) (*Data, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: data batch needs at least one row", ErrConfiguration)
	}
	cols := len(rows[0])
	flat := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrConfiguration, i, len(r), cols)
		}
		flat = append(flat, r...)
	}
	return NewDataFrom(len(rows), cols, flat)
}

// Rows returns the number of instances.
func (d *Data) Rows() int { return d.rows }

// Cols returns the number of variables.
func (d *Data) Cols() int { return d.cols }

// At returns the entry at row i, column j.
func (d *Data) At(i, j int) float64 { return d.v[i*d.cols+j] }

// Set writes the entry at row i, column j.
func (d *Data) Set(i, j int, v float64) { d.v[i*d.cols+j] = v }

// IsMissing reports whether the entry at row i, column j is not observed.
func (d *Data) IsMissing(i, j int) bool { return math.IsNaN(d.v[i*d.cols+j]) }

// Row returns a mutable view of row i.
func (d *Data) Row(i int) []float64 { return d.v[i*d.cols : (i+1)*d.cols] }

// Clone returns an independent copy of the batch.
func (d *Data) Clone() *Data {
	v := make([]float64, len(d.v))
	copy(v, d.v)
	return &Data{rows: d.rows, cols: d.cols, v: v}
}

// scopeRow gathers the values of the given columns for row i into dst.
// dst must have len(cols) capacity.
func (d *Data) scopeRow(dst []float64, i int, cols []int) []float64 {
	dst = dst[:0]
	for _, c := range cols {
		dst = append(dst, d.v[i*d.cols+c])
	}
	return dst
}
