package spn

import (
	"fmt"
	"sort"
	"strings"
)

// Scope describes the random variables a node's distribution is defined over
// (query variables) together with the variables it is conditioned on
// (evidence variables). Variables are identified by their column index in the
// data batch. A scope is created once at node construction and never mutated
// afterwards; all accessors return copies.
type Scope struct {
	query    []int
	evidence []int
}

// NewScope creates a scope over the given query variables with no evidence.
func NewScope(query ...int) (Scope, error) {
	return NewConditionalScope(query, nil)
}

// NewConditionalScope creates a scope over the given query variables,
// conditioned on the given evidence variables. Query and evidence must be
// non-negative, free of duplicates and disjoint from one another.
func NewConditionalScope(query, evidence []int) (Scope, error) {
	q, err := normalizeVars(query, "query")
	if err != nil {
		return Scope{}, err
	}
	e, err := normalizeVars(evidence, "evidence")
	if err != nil {
		return Scope{}, err
	}
	for _, rv := range e {
		if containsSorted(q, rv) {
			return Scope{}, fmt.Errorf("%w: variable %d appears in both query and evidence", ErrConfiguration, rv)
		}
	}
	return Scope{query: q, evidence: e}, nil
}

// MustScope is like NewScope but panics on invalid input. Intended for tests
// and static circuit definitions.
func MustScope(query ...int) Scope {
	s, err := NewScope(query...)
	if err != nil {
		panic(err)
	}
	return s
}

func normalizeVars(vars []int, what string) ([]int, error) {
	out := make([]int, len(vars))
	copy(out, vars)
	sort.Ints(out)
	for i, rv := range out {
		if rv < 0 {
			return nil, fmt.Errorf("%w: %s variable index must be non-negative, got %d", ErrConfiguration, what, rv)
		}
		if i > 0 && out[i-1] == rv {
			return nil, fmt.Errorf("%w: duplicate %s variable %d", ErrConfiguration, what, rv)
		}
	}
	return out, nil
}

func containsSorted(s []int, rv int) bool {
	i := sort.SearchInts(s, rv)
	return i < len(s) && s[i] == rv
}

// Query returns a copy of the query variable indices in ascending order.
func (s Scope) Query() []int {
	out := make([]int, len(s.query))
	copy(out, s.query)
	return out
}

// Evidence returns a copy of the evidence variable indices in ascending order.
func (s Scope) Evidence() []int {
	out := make([]int, len(s.evidence))
	copy(out, s.evidence)
	return out
}

// Len returns the number of query variables.
func (s Scope) Len() int { return len(s.query) }

// IsEmpty reports whether the scope has no query variables.
func (s Scope) IsEmpty() bool { return len(s.query) == 0 }

// ContainsQuery reports whether rv is one of the scope's query variables.
func (s Scope) ContainsQuery(rv int) bool { return containsSorted(s.query, rv) }

// EqualQuery reports whether both scopes have identical query variable sets.
// Sum combinators require all child scopes to be query-equal.
func (s Scope) EqualQuery(o Scope) bool {
	if len(s.query) != len(o.query) {
		return false
	}
	for i := range s.query {
		if s.query[i] != o.query[i] {
			return false
		}
	}
	return true
}

// DisjointQuery reports whether the two scopes share no query variables.
// Product combinators require all child scopes to be pairwise query-disjoint.
func (s Scope) DisjointQuery(o Scope) bool {
	i, j := 0, 0
	for i < len(s.query) && j < len(o.query) {
		switch {
		case s.query[i] == o.query[j]:
			return false
		case s.query[i] < o.query[j]:
			i++
		default:
			j++
		}
	}
	return true
}

// Join returns the union of both scopes' query sets and evidence sets.
func (s Scope) Join(o Scope) Scope {
	return Scope{
		query:    unionSorted(s.query, o.query),
		evidence: unionSorted(s.evidence, o.evidence),
	}
}

func unionSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default: // equal
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// queryIntersection returns the query variables of s that appear in marg.
func (s Scope) queryIntersection(marg map[int]struct{}) []int {
	var out []int
	for _, rv := range s.query {
		if _, ok := marg[rv]; ok {
			out = append(out, rv)
		}
	}
	return out
}

func (s Scope) String() string {
	var b strings.Builder
	b.WriteString("Q")
	b.WriteString(fmt.Sprint(s.query))
	if len(s.evidence) > 0 {
		b.WriteString("|E")
		b.WriteString(fmt.Sprint(s.evidence))
	}
	return b.String()
}
