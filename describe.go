package spn

import (
	"fmt"
	"strings"

	runewidth "github.com/mattn/go-runewidth"
)

// Describe renders the circuit rooted at root as an indented tree, one line
// per node, with the parameter summary aligned in a right-hand column. Nodes
// shared by several parents appear once per parent, marked as shared after
// the first visit.
func Describe(root Node) string {
	if root == nil {
		return "<nil>\n"
	}
	var lines []describeLine
	seen := make(map[uint64]bool)
	describeNode(root, "", "", seen, &lines)

	width := 0
	for _, l := range lines {
		if w := runewidth.StringWidth(l.label); w > width {
			width = w
		}
	}
	var b strings.Builder
	for _, l := range lines {
		if l.detail == "" {
			b.WriteString(l.label)
		} else {
			b.WriteString(runewidth.FillRight(l.label, width+2))
			b.WriteString(l.detail)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

type describeLine struct {
	label  string
	detail string
}

func describeNode(n Node, prefix, childPrefix string, seen map[uint64]bool, lines *[]describeLine) {
	label := fmt.Sprintf("%s%s#%d", prefix, n.Kind(), n.ID())
	if seen[n.ID()] {
		*lines = append(*lines, describeLine{label: label + " (shared)", detail: n.Scope().String()})
		return
	}
	seen[n.ID()] = true
	*lines = append(*lines, describeLine{label: label, detail: describeDetail(n)})

	children := n.Children()
	for i, child := range children {
		connector, next := "├─ ", "│  "
		if i == len(children)-1 {
			connector, next = "└─ ", "   "
		}
		describeNode(child, childPrefix+connector, childPrefix+next, seen, lines)
	}
}

func describeDetail(n Node) string {
	scope := n.Scope().String()
	switch t := n.(type) {
	case *SumNode:
		return fmt.Sprintf("%s w=%s", scope, formatFloats(t.weights))
	case *SumLayer:
		rows := make([]string, len(t.weights))
		for i, row := range t.weights {
			rows[i] = formatFloats(row)
		}
		return fmt.Sprintf("%s nOut=%d w=[%s]", scope, t.nOut, strings.Join(rows, " "))
	case *ProductLayer:
		return fmt.Sprintf("%s nOut=%d", scope, t.nOut)
	case *GaussianLayer:
		parts := make([]string, len(t.nodes))
		for i, g := range t.nodes {
			parts[i] = fmt.Sprintf("%s N(%.4g, %.4g)", g.Scope(), g.Mean(), g.StdDev())
		}
		return strings.Join(parts, "  ")
	case *Gaussian:
		return fmt.Sprintf("%s N(%.4g, %.4g)", scope, t.Mean(), t.StdDev())
	case *Bernoulli:
		return fmt.Sprintf("%s B(%.4g)", scope, t.P())
	case *Poisson:
		return fmt.Sprintf("%s Pois(%.4g)", scope, t.Lambda())
	case *Gamma:
		return fmt.Sprintf("%s Gamma(%.4g, %.4g)", scope, t.Alpha(), t.Beta())
	case *CondGaussian:
		return fmt.Sprintf("%s N(cond)", scope)
	case *MultivariateGaussian:
		return fmt.Sprintf("%s MVN(mu=%s)", scope, formatFloats(t.mean))
	case Leaf:
		return fmt.Sprintf("%s %s", scope, t.Family())
	default:
		return scope
	}
}

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
