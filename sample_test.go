package spn

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func symFromRows(d int, v []float64) *mat.SymDense {
	s := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			s.SetSym(i, j, v[i*d+j])
		}
	}
	return s
}

func seededCtx(seed uint64) *DispatchContext {
	opts := DefaultOptions()
	opts.Seed = seed
	return NewDispatchContext(opts)
}

func TestSample_InstanceIDOutOfRange(t *testing.T) {
	g := mustGaussian(t, 0, 0, 1)
	data, err := NewData(2, 1)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}
	sctx := NewSamplingContext([]int{2}, nil)
	if err := Sample(g, data, nil, sctx); !errors.Is(err, ErrBounds) {
		t.Errorf("instance id beyond batch: got %v, want ErrBounds", err)
	}
	sctx = NewSamplingContext([]int{-1}, nil)
	if err := Sample(g, data, nil, sctx); !errors.Is(err, ErrBounds) {
		t.Errorf("negative instance id: got %v, want ErrBounds", err)
	}
}

func TestSample_OutputIDOutOfRange(t *testing.T) {
	g := mustGaussian(t, 0, 0, 1)
	data, err := NewData(1, 1)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}
	sctx := NewSamplingContext([]int{0}, []int{1})
	if err := Sample(g, data, nil, sctx); !errors.Is(err, ErrBounds) {
		t.Errorf("output id on single-output node: got %v, want ErrBounds", err)
	}
}

func TestSample_ObservedEntriesUntouched(t *testing.T) {
	root := buildMixture(t, 0, []float64{0.5, 0.5}, []float64{-100, 100}, []float64{1, 1})
	data, err := NewDataRows([][]float64{{1.25}, {Missing()}, {-7.5}})
	if err != nil {
		t.Fatalf("NewDataRows failed: %v", err)
	}
	if err := Sample(root, data, seededCtx(7), nil); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if data.At(0, 0) != 1.25 || data.At(2, 0) != -7.5 {
		t.Errorf("observed entries were overwritten: %v", data.Row(0))
	}
	if data.IsMissing(1, 0) {
		t.Error("missing entry was not filled")
	}
}

func TestSampleN_MixtureMoments(t *testing.T) {
	const n = 20000
	root := buildMixture(t, 0, []float64{0.2, 0.8}, []float64{-5, 5}, []float64{1, 1})

	data, err := SampleN(root, n, seededCtx(42))
	if err != nil {
		t.Fatalf("SampleN failed: %v", err)
	}
	require.Equal(t, n, data.Rows())

	var negatives, positives []float64
	for i := 0; i < n; i++ {
		v := data.At(i, 0)
		require.False(t, math.IsNaN(v), "row %d not filled", i)
		if v < 0 {
			negatives = append(negatives, v)
		} else {
			positives = append(positives, v)
		}
	}
	// the components are far apart, so the sign identifies the branch
	require.InDelta(t, 0.8, float64(len(positives))/n, 0.02, "branch frequency")
	require.InDelta(t, 5.0, stat.Mean(positives, nil), 0.05, "positive component mean")
	require.InDelta(t, -5.0, stat.Mean(negatives, nil), 0.1, "negative component mean")
}

func TestSample_ProductFillsAllVariables(t *testing.T) {
	p, err := NewProductNode([]Node{mustGaussian(t, 0, 1, 0.1), mustGaussian(t, 1, -1, 0.1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}
	data, err := NewData(100, 2)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}
	if err := Sample(p, data, seededCtx(3), nil); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	var c0, c1 []float64
	for i := 0; i < data.Rows(); i++ {
		c0 = append(c0, data.At(i, 0))
		c1 = append(c1, data.At(i, 1))
	}
	require.InDelta(t, 1.0, stat.Mean(c0, nil), 0.05)
	require.InDelta(t, -1.0, stat.Mean(c1, nil), 0.05)
}

func TestSample_SumLayerOutputSelection(t *testing.T) {
	// two outputs with opposite weights over far-apart components
	layer, err := NewSumLayer(2,
		[]Node{mustGaussian(t, 0, -10, 0.5), mustGaussian(t, 0, 10, 0.5)},
		[][]float64{{0.999, 0.001}, {0.001, 0.999}},
	)
	if err != nil {
		t.Fatalf("NewSumLayer failed: %v", err)
	}

	const n = 1000
	data, err := NewData(2*n, 1)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}
	ids := make([]int, 2*n)
	outs := make([]int, 2*n)
	for i := range ids {
		ids[i] = i
		if i >= n {
			outs[i] = 1
		}
	}
	if err := Sample(layer, data, seededCtx(11), NewSamplingContext(ids, outs)); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	neg, pos := 0, 0
	for i := 0; i < n; i++ {
		if data.At(i, 0) < 0 {
			neg++
		}
		if data.At(n+i, 0) > 0 {
			pos++
		}
	}
	require.Greater(t, neg, n*98/100, "output 0 should draw the negative component")
	require.Greater(t, pos, n*98/100, "output 1 should draw the positive component")
}

func TestSample_GaussianLayerPerOutput(t *testing.T) {
	layer, err := NewGaussianLayer([]Scope{MustScope(0), MustScope(1)}, []float64{3, -3}, []float64{0.1, 0.1})
	if err != nil {
		t.Fatalf("NewGaussianLayer failed: %v", err)
	}
	data, err := NewData(50, 2)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}
	ids := make([]int, 50)
	outs := make([]int, 50)
	for i := range ids {
		ids[i] = i
		outs[i] = i % 2
	}
	if err := Sample(layer, data, seededCtx(5), NewSamplingContext(ids, outs)); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			require.False(t, data.IsMissing(i, 0), "row %d output 0 not filled", i)
			require.True(t, data.IsMissing(i, 1), "row %d filled a variable outside its output scope", i)
		} else {
			require.True(t, data.IsMissing(i, 0), "row %d filled a variable outside its output scope", i)
			require.False(t, data.IsMissing(i, 1), "row %d output 1 not filled", i)
		}
	}
}

func TestSample_MultivariateGaussianJoint(t *testing.T) {
	const n = 20000
	cov := symFromRows(2, []float64{
		1.0, 0.8,
		0.8, 2.0,
	})
	mvg, err := NewMultivariateGaussian(MustScope(0, 1), []float64{1, 2}, cov)
	if err != nil {
		t.Fatalf("NewMultivariateGaussian failed: %v", err)
	}

	data, err := SampleN(mvg, n, seededCtx(21))
	if err != nil {
		t.Fatalf("SampleN failed: %v", err)
	}
	var x0, x1 []float64
	for i := 0; i < n; i++ {
		x0 = append(x0, data.At(i, 0))
		x1 = append(x1, data.At(i, 1))
	}
	require.InDelta(t, 1.0, stat.Mean(x0, nil), 0.05)
	require.InDelta(t, 2.0, stat.Mean(x1, nil), 0.05)
	require.InDelta(t, 0.8, stat.Covariance(x0, x1, nil), 0.1)
}

func TestSample_MultivariateGaussianConditional(t *testing.T) {
	const n = 20000
	cov := symFromRows(2, []float64{
		1.0, 0.8,
		0.8, 2.0,
	})
	mvg, err := NewMultivariateGaussian(MustScope(0, 1), []float64{1, 2}, cov)
	if err != nil {
		t.Fatalf("NewMultivariateGaussian failed: %v", err)
	}

	// observe x0 = 1.5 everywhere, sample x1 | x0
	data, err := NewData(n, 2)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}
	for i := 0; i < n; i++ {
		data.Set(i, 0, 1.5)
	}
	if err := Sample(mvg, data, seededCtx(13), nil); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	var x1 []float64
	for i := 0; i < n; i++ {
		require.Equal(t, 1.5, data.At(i, 0), "observed entry moved")
		x1 = append(x1, data.At(i, 1))
	}

	// analytic conditional moments of the bivariate normal
	wantMean := 2.0 + 0.8/1.0*(1.5-1.0) // 2.4
	wantVar := 2.0 - 0.8*0.8/1.0        // 1.36
	require.InDelta(t, wantMean, stat.Mean(x1, nil), 0.05, "conditional mean")
	require.InDelta(t, wantVar, stat.Variance(x1, nil), 0.1, "conditional variance")
}

func TestSample_MultivariateGaussianMixedPatterns(t *testing.T) {
	cov := symFromRows(3, []float64{
		1.0, 0.2, 0.1,
		0.2, 1.0, 0.3,
		0.1, 0.3, 1.0,
	})
	mvg, err := NewMultivariateGaussian(MustScope(0, 1, 2), []float64{0, 0, 0}, cov)
	if err != nil {
		t.Fatalf("NewMultivariateGaussian failed: %v", err)
	}

	data, err := NewDataRows([][]float64{
		{0.5, Missing(), Missing()},
		{Missing(), Missing(), Missing()},
		{0.1, 0.2, 0.3},
		{Missing(), 1.0, Missing()},
	})
	if err != nil {
		t.Fatalf("NewDataRows failed: %v", err)
	}
	if err := Sample(mvg, data, seededCtx(99), nil); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	for i := 0; i < data.Rows(); i++ {
		for j := 0; j < 3; j++ {
			require.False(t, data.IsMissing(i, j), "entry (%d,%d) not filled", i, j)
		}
	}
	require.Equal(t, 0.5, data.At(0, 0))
	require.Equal(t, []float64{0.1, 0.2, 0.3}, append([]float64(nil), data.Row(2)...))
	require.Equal(t, 1.0, data.At(3, 1))
}

func TestSampleN_Errors(t *testing.T) {
	if _, err := SampleN(nil, 10, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("nil root: got %v, want ErrConfiguration", err)
	}
}
