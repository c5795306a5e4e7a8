package spn

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildTwoVarCircuit returns a mixture of two products over variables 0 and 1.
func buildTwoVarCircuit(t *testing.T) *SumNode {
	t.Helper()
	p1, err := NewProductNode([]Node{mustGaussian(t, 0, 0, 1), mustGaussian(t, 1, 1, 1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}
	p2, err := NewProductNode([]Node{mustGaussian(t, 0, 2, 1), mustGaussian(t, 1, -1, 1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}
	root, err := NewSumNode([]Node{p1, p2}, []float64{0.4, 0.6})
	if err != nil {
		t.Fatalf("NewSumNode failed: %v", err)
	}
	return root
}

func TestMarginalize_EmptySetCopies(t *testing.T) {
	root := buildTwoVarCircuit(t)
	got, err := Marginalize(root, nil, false, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	if got == Node(root) {
		t.Fatal("marginalization must not return the input circuit")
	}
	if diff := cmp.Diff(root.Scope().Query(), got.Scope().Query()); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}

	// the copy is behaviorally identical
	data, err := NewDataRows([][]float64{{0.5, 0.5}, {2.0, -1.0}})
	if err != nil {
		t.Fatalf("NewDataRows failed: %v", err)
	}
	a, err := LogLikelihood(root, data, nil)
	if err != nil {
		t.Fatalf("LogLikelihood(original) failed: %v", err)
	}
	b, err := LogLikelihood(got, data, nil)
	if err != nil {
		t.Fatalf("LogLikelihood(copy) failed: %v", err)
	}
	if diff := cmp.Diff(a.Dense(), b.Dense()); diff != "" {
		t.Errorf("copy evaluates differently (-want +got):\n%s", diff)
	}
}

func TestMarginalize_MatchesMissingDataEvaluation(t *testing.T) {
	root := buildTwoVarCircuit(t)
	marg, err := Marginalize(root, []int{1}, true, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	if diff := cmp.Diff([]int{0}, marg.Scope().Query()); diff != "" {
		t.Fatalf("marginal scope (-want +got):\n%s", diff)
	}

	// structural marginalization and NaN marginalization agree
	xs := []float64{-1.0, 0.25, 2.5}
	full, err := NewDataRows([][]float64{{xs[0], Missing()}, {xs[1], Missing()}, {xs[2], Missing()}})
	if err != nil {
		t.Fatalf("NewDataRows failed: %v", err)
	}
	reduced, err := NewDataRows([][]float64{{xs[0]}, {xs[1]}, {xs[2]}})
	if err != nil {
		t.Fatalf("NewDataRows failed: %v", err)
	}
	a, err := LogLikelihood(root, full, nil)
	if err != nil {
		t.Fatalf("LogLikelihood(full) failed: %v", err)
	}
	b, err := LogLikelihood(marg, reduced, nil)
	if err != nil {
		t.Fatalf("LogLikelihood(marginal) failed: %v", err)
	}
	for i := range xs {
		if math.Abs(a.At(i, 0)-b.At(i, 0)) > 1e-12 {
			t.Errorf("row %d: structural %v vs missing-data %v", i, b.At(i, 0), a.At(i, 0))
		}
	}
}

func TestMarginalize_ComposesAsUnion(t *testing.T) {
	build := func() Node {
		p, err := NewProductNode([]Node{
			mustGaussian(t, 0, 0, 1),
			mustGaussian(t, 1, 1, 1),
			mustGaussian(t, 2, 2, 1),
		})
		if err != nil {
			t.Fatalf("NewProductNode failed: %v", err)
		}
		return p
	}

	step1, err := Marginalize(build(), []int{0}, false, nil)
	if err != nil {
		t.Fatalf("first Marginalize failed: %v", err)
	}
	step2, err := Marginalize(step1, []int{1}, false, nil)
	if err != nil {
		t.Fatalf("second Marginalize failed: %v", err)
	}
	once, err := Marginalize(build(), []int{0, 1}, false, nil)
	if err != nil {
		t.Fatalf("union Marginalize failed: %v", err)
	}
	if diff := cmp.Diff(once.Scope().Query(), step2.Scope().Query()); diff != "" {
		t.Errorf("sequential vs union scope (-want +got):\n%s", diff)
	}

	padded, err := NewDataRows([][]float64{{Missing(), Missing(), 2.5}})
	if err != nil {
		t.Fatalf("NewDataRows failed: %v", err)
	}
	a, err := LogLikelihood(step2, padded, nil)
	if err != nil {
		t.Fatalf("LogLikelihood(sequential) failed: %v", err)
	}
	b, err := LogLikelihood(once, padded, nil)
	if err != nil {
		t.Fatalf("LogLikelihood(union) failed: %v", err)
	}
	if math.Abs(a.At(0, 0)-b.At(0, 0)) > 1e-12 {
		t.Errorf("sequential %v vs union %v", a.At(0, 0), b.At(0, 0))
	}
}

func TestMarginalize_FullOverlapEliminates(t *testing.T) {
	root := buildTwoVarCircuit(t)
	got, err := Marginalize(root, []int{0, 1}, false, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	if got != nil {
		t.Errorf("full-scope marginalization must eliminate the circuit, got %T", got)
	}
}

func TestMarginalize_PruneCollapsesProduct(t *testing.T) {
	p, err := NewProductNode([]Node{mustGaussian(t, 0, 0, 1), mustGaussian(t, 1, 1, 1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}

	pruned, err := Marginalize(p, []int{1}, true, nil)
	if err != nil {
		t.Fatalf("Marginalize(prune) failed: %v", err)
	}
	if _, ok := pruned.(*Gaussian); !ok {
		t.Errorf("pruned result is %T, want *Gaussian", pruned)
	}

	kept, err := Marginalize(p, []int{1}, false, nil)
	if err != nil {
		t.Fatalf("Marginalize(no prune) failed: %v", err)
	}
	prod, ok := kept.(*ProductNode)
	if !ok {
		t.Fatalf("unpruned result is %T, want *ProductNode", kept)
	}
	if len(prod.Children()) != 1 {
		t.Errorf("unpruned product has %d children, want 1", len(prod.Children()))
	}
}

func TestMarginalize_GaussianLayerSlices(t *testing.T) {
	layer, err := NewGaussianLayer(
		[]Scope{MustScope(0), MustScope(1), MustScope(2)},
		[]float64{0, 1, 2},
		[]float64{1, 2, 3},
	)
	if err != nil {
		t.Fatalf("NewGaussianLayer failed: %v", err)
	}

	got, err := Marginalize(layer, []int{1}, false, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	sliced, ok := got.(*GaussianLayer)
	if !ok {
		t.Fatalf("result is %T, want *GaussianLayer", got)
	}
	if sliced.NOut() != 2 {
		t.Fatalf("sliced layer has %d outputs, want 2", sliced.NOut())
	}
	outs := sliced.Outputs()
	if diff := cmp.Diff([]float64{0, 2}, []float64{outs[0].Mean(), outs[1].Mean()}); diff != "" {
		t.Errorf("surviving means (-want +got):\n%s", diff)
	}

	// down to one output with prune: collapses to a plain Gaussian
	single, err := Marginalize(layer, []int{0, 1}, true, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	g, ok := single.(*Gaussian)
	if !ok {
		t.Fatalf("result is %T, want *Gaussian", single)
	}
	if g.Mean() != 2 || g.StdDev() != 3 {
		t.Errorf("collapsed leaf N(%v, %v), want N(2, 3)", g.Mean(), g.StdDev())
	}
}

func TestMarginalize_MultivariateGaussianReduces(t *testing.T) {
	cov := symFromRows(3, []float64{
		1.0, 0.3, 0.1,
		0.3, 2.0, 0.2,
		0.1, 0.2, 3.0,
	})
	mvg, err := NewMultivariateGaussian(MustScope(0, 1, 2), []float64{1, 2, 3}, cov)
	if err != nil {
		t.Fatalf("NewMultivariateGaussian failed: %v", err)
	}

	got, err := Marginalize(mvg, []int{1}, false, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	reduced, ok := got.(*MultivariateGaussian)
	if !ok {
		t.Fatalf("result is %T, want *MultivariateGaussian", got)
	}
	if diff := cmp.Diff([]float64{1, 3}, reduced.Mean()); diff != "" {
		t.Errorf("reduced mean (-want +got):\n%s", diff)
	}
	rc := reduced.Cov()
	want := [][]float64{{1.0, 0.1}, {0.1, 3.0}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if rc.At(i, j) != want[i][j] {
				t.Errorf("reduced cov[%d][%d] = %v, want %v", i, j, rc.At(i, j), want[i][j])
			}
		}
	}

	// a single survivor collapses to the univariate marginal
	got, err = Marginalize(mvg, []int{0, 2}, false, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	g, ok := got.(*Gaussian)
	if !ok {
		t.Fatalf("result is %T, want *Gaussian", got)
	}
	if g.Mean() != 2 || math.Abs(g.StdDev()-math.Sqrt(2)) > 1e-12 {
		t.Errorf("collapsed marginal N(%v, %v), want N(2, sqrt 2)", g.Mean(), g.StdDev())
	}
}

func TestMarginalize_PreservesSharing(t *testing.T) {
	shared := mustGaussian(t, 0, 0, 1)
	p1, err := NewProductNode([]Node{shared, mustGaussian(t, 1, 1, 1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}
	p2, err := NewProductNode([]Node{shared, mustGaussian(t, 1, -1, 1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}
	root, err := NewSumNode([]Node{p1, p2}, nil)
	if err != nil {
		t.Fatalf("NewSumNode failed: %v", err)
	}

	got, err := Marginalize(root, nil, false, nil)
	if err != nil {
		t.Fatalf("Marginalize failed: %v", err)
	}
	c := got.Children()
	if c[0].Children()[0] != c[1].Children()[0] {
		t.Error("shared child copied twice; DAG sharing lost")
	}
}

func TestMarginalize_NilRoot(t *testing.T) {
	if _, err := Marginalize(nil, nil, false, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("nil root: got %v, want ErrConfiguration", err)
	}
}
