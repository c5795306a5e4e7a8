package spn

import "fmt"

// Batch is a two-dimensional numeric result batch produced by the evaluator.
// Rows are instances, columns are node outputs. Concrete implementations come
// from a Backend; the traversal code only ever goes through this minimal
// surface, which keeps the dispatch and caching logic backend-agnostic.
type Batch interface {
	// Dims returns the number of rows and columns.
	Dims() (rows, cols int)

	// At returns the entry at row i, column j.
	At(i, j int) float64

	// Dense returns a row-major copy of the values.
	Dense() []float64
}

// Backend constructs and combines batches. Two implementations exist: a plain
// dense array backend and a gradient-tracking tape backend. Operations never
// mutate their inputs.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Constant wraps row-major values into a batch. The slice is copied.
	Constant(rows, cols int, values []float64) Batch

	// HStack concatenates batches column-wise. All parts must have the same
	// number of rows.
	HStack(parts []Batch) (Batch, error)

	// AddRowVector adds v to every row of b. len(v) must equal b's columns.
	AddRowVector(b Batch, v []float64) (Batch, error)

	// LogSumExpRows reduces each row by a numerically stable log-sum-exp,
	// producing a single-column batch.
	LogSumExpRows(b Batch) Batch

	// SumRows reduces each row by summation, producing a single-column batch.
	SumRows(b Batch) Batch
}

func checkHStack(parts []Batch) (rows, cols int, err error) {
	if len(parts) == 0 {
		return 0, 0, fmt.Errorf("%w: hstack of zero batches", ErrConfiguration)
	}
	rows, cols = parts[0].Dims()
	for _, p := range parts[1:] {
		r, c := p.Dims()
		if r != rows {
			return 0, 0, fmt.Errorf("%w: hstack row mismatch (%d vs %d)", ErrConfiguration, rows, r)
		}
		cols += c
	}
	return rows, cols, nil
}

func checkRowVector(b Batch, v []float64) (rows, cols int, err error) {
	rows, cols = b.Dims()
	if len(v) != cols {
		return 0, 0, fmt.Errorf("%w: row vector length %d does not match %d columns", ErrParameter, len(v), cols)
	}
	return rows, cols, nil
}
