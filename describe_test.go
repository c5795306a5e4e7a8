package spn

import (
	"strings"
	"testing"
)

func TestDescribe_Tree(t *testing.T) {
	root := buildTwoVarCircuit(t)
	out := Describe(root)

	if !strings.Contains(out, "sum#") {
		t.Errorf("missing sum node line:\n%s", out)
	}
	if strings.Count(out, "product#") != 2 {
		t.Errorf("expected two product lines:\n%s", out)
	}
	if strings.Count(out, "leaf#") != 4 {
		t.Errorf("expected four leaf lines:\n%s", out)
	}
	if !strings.Contains(out, "w=[0.4 0.6]") {
		t.Errorf("missing weight summary:\n%s", out)
	}
	if !strings.Contains(out, "N(0, 1)") {
		t.Errorf("missing Gaussian parameters:\n%s", out)
	}
}

func TestDescribe_MarksSharedNodes(t *testing.T) {
	shared := mustGaussian(t, 0, 0, 1)
	p1, err := NewProductNode([]Node{shared, mustGaussian(t, 1, 1, 1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}
	p2, err := NewProductNode([]Node{shared, mustGaussian(t, 1, 2, 1)})
	if err != nil {
		t.Fatalf("NewProductNode failed: %v", err)
	}
	root, err := NewSumNode([]Node{p1, p2}, nil)
	if err != nil {
		t.Fatalf("NewSumNode failed: %v", err)
	}

	out := Describe(root)
	if strings.Count(out, "(shared)") != 1 {
		t.Errorf("expected one shared marker:\n%s", out)
	}
}

func TestDescribe_Nil(t *testing.T) {
	if got := Describe(nil); got != "<nil>\n" {
		t.Errorf("Describe(nil) = %q", got)
	}
}
