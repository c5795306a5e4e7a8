package spn

import (
	"errors"
	"testing"
)

func TestNewScope_SortsAndCopies(t *testing.T) {
	s, err := NewScope(3, 1, 2)
	if err != nil {
		t.Fatalf("NewScope failed: %v", err)
	}
	q := s.Query()
	want := []int{1, 2, 3}
	for i := range want {
		if q[i] != want[i] {
			t.Fatalf("Query() = %v, want %v", q, want)
		}
	}

	// mutating the returned slice must not touch the scope
	q[0] = 99
	if s.Query()[0] != 1 {
		t.Error("Query() returned an aliased slice")
	}
}

func TestNewScope_RejectsInvalid(t *testing.T) {
	if _, err := NewScope(1, 1); !errors.Is(err, ErrConfiguration) {
		t.Errorf("duplicate variable: got %v, want ErrConfiguration", err)
	}
	if _, err := NewScope(-1); !errors.Is(err, ErrConfiguration) {
		t.Errorf("negative variable: got %v, want ErrConfiguration", err)
	}
	if _, err := NewConditionalScope([]int{0, 1}, []int{1}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("query/evidence overlap: got %v, want ErrConfiguration", err)
	}
}

func TestScope_EqualAndDisjoint(t *testing.T) {
	a := MustScope(0, 1)
	b := MustScope(1, 0)
	c := MustScope(2, 3)
	d := MustScope(1, 2)

	if !a.EqualQuery(b) {
		t.Error("scopes over the same variables must be query-equal")
	}
	if a.EqualQuery(c) {
		t.Error("scopes over different variables must not be query-equal")
	}
	if !a.DisjointQuery(c) {
		t.Error("expected {0,1} disjoint from {2,3}")
	}
	if a.DisjointQuery(d) {
		t.Error("expected {0,1} to overlap {1,2}")
	}
}

func TestScope_Join(t *testing.T) {
	a := MustScope(0, 2)
	b := MustScope(1, 2)
	j := a.Join(b)
	q := j.Query()
	want := []int{0, 1, 2}
	if len(q) != len(want) {
		t.Fatalf("Join query = %v, want %v", q, want)
	}
	for i := range want {
		if q[i] != want[i] {
			t.Fatalf("Join query = %v, want %v", q, want)
		}
	}
}

func TestScope_Conditional(t *testing.T) {
	s, err := NewConditionalScope([]int{0}, []int{1, 2})
	if err != nil {
		t.Fatalf("NewConditionalScope failed: %v", err)
	}
	if got := s.String(); got != "Q[0]|E[1 2]" {
		t.Errorf("String() = %q", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
