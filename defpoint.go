package reachdefs

import (
	"fmt"
	"go/ast"
	"strings"

	"github.com/BarrensZeppelin/reachdefs/slices"
)

// DefTag discriminates the kinds of definition points.
type DefTag int

const (
	// NoDef marks an item that is declared but has not been assigned a
	// value yet ("var x T" without initializer).
	NoDef DefTag = iota
	// DefAt marks a write at a specific syntax node.
	DefAt
	// MultiDefs marks an item that is certainly defined, but whose
	// defining write cannot be pinned down because several disagreeing
	// writes reach the tagged node.
	MultiDefs
)

// A DefPoint identifies one definition event for an item: a concrete write
// site, the absence of a definition, or the consolidated "multiple/unknown
// origin" sentinel. DefPoints are small values compared by tag and node
// identity.
type DefPoint struct {
	tag  DefTag
	node ast.Node
}

// NoDefinition returns the point recorded for declared-but-unassigned items.
func NoDefinition() DefPoint { return DefPoint{tag: NoDef} }

// DefinedAt returns the point for a write at n.
func DefinedAt(n ast.Node) DefPoint { return DefPoint{tag: DefAt, node: n} }

// MultipleDefs returns the consolidation sentinel tagged at the merge node
// where provenance became unresolvable.
func MultipleDefs(here ast.Node) DefPoint { return DefPoint{tag: MultiDefs, node: here} }

func (dp DefPoint) Tag() DefTag { return dp.tag }

// Node returns the syntax node the point is tagged with; nil for NoDef.
func (dp DefPoint) Node() ast.Node { return dp.node }

// SameAs reports whether the two points denote the same definition event.
func (dp DefPoint) SameAs(o DefPoint) bool { return dp == o }

func (dp DefPoint) String() string {
	switch dp.tag {
	case NoDef:
		return "no-def"
	case MultiDefs:
		return fmt.Sprintf("multiple@%d", dp.node.Pos())
	default:
		return fmt.Sprintf("%T@%d", dp.node, dp.node.Pos())
	}
}

// DefPoints is the sequence of definition points reaching one item at one
// program point, in discovery order and free of duplicates. Order carries no
// dataflow meaning but is preserved so that dumps are deterministic. A
// DefPoints stored in a fact is never empty; "no reaching definitions" is
// modelled by the absence of the item.
type DefPoints []DefPoint

func (dps DefPoints) Contains(dp DefPoint) bool {
	return slices.Contains(dps, dp)
}

func (dps DefPoints) clone() DefPoints {
	return append(DefPoints(nil), dps...)
}

func (dps DefPoints) String() string {
	strs := make([]string, len(dps))
	for i, dp := range dps {
		strs[i] = dp.String()
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// SameDefPoints reports whether the two sequences hold the same points in
// the same order. Both being absent counts as equal.
func SameDefPoints(dp1, dp2 DefPoints) bool {
	if len(dp1) != len(dp2) {
		return false
	}

	for i, dp := range dp1 {
		if !dp.SameAs(dp2[i]) {
			return false
		}
	}

	return true
}
