package reachdefs

import (
	"fmt"
	"go/ast"
	"sort"
	"strings"

	"github.com/BarrensZeppelin/reachdefs/internal/maps"
	"github.com/BarrensZeppelin/reachdefs/internal/slices"
)

// ReachingDefs is one dataflow fact: for one program point, the set of
// definition points that may (or, for minimal facts, must) reach each item.
//
// A fact either owns its map privately or reads through exactly one parent
// fact. Children are O(1) to create; the first mutation forks a private deep
// copy of the parent's entries, leaving the parent untouched for its other
// holders. A fact snapshot is taken at every visited syntax node, so this
// copy-on-write discipline is what keeps the pass cheap.
type ReachingDefs struct {
	// Exactly one of parent and my is in play. parent always owns its map:
	// children of a delegating fact are flattened onto its parent at
	// construction, so delegation never chains.
	parent *ReachingDefs
	my     map[*Item]DefPoints
}

// NewReachingDefs returns an empty fact owning its (empty) map.
func NewReachingDefs() *ReachingDefs {
	return &ReachingDefs{my: make(map[*Item]DefPoints)}
}

// NewChild returns a snapshot of rd that shares its entries until first
// mutated.
func NewChild(rd *ReachingDefs) *ReachingDefs {
	if rd.my == nil {
		rd = rd.parent
	}
	return &ReachingDefs{parent: rd}
}

// rdMap returns the map entries are read from, through the parent when the
// fact has not forked yet.
func (rd *ReachingDefs) rdMap() map[*Item]DefPoints {
	if rd.my != nil {
		return rd.my
	}
	return rd.parent.my
}

// copyMapIfNeeded forks a private copy of the delegated entries before the
// first mutation. Every DefPoints sequence is cloned along with the map so
// that appends cannot leak into the parent.
func (rd *ReachingDefs) copyMapIfNeeded() {
	if rd.my != nil {
		return
	}

	src := rd.parent.my
	rd.my = make(map[*Item]DefPoints, len(src))
	for di, dps := range src {
		rd.my[di] = dps.clone()
	}
	rd.parent = nil
}

// HasDI reports whether any definition of di reaches this point.
func (rd *ReachingDefs) HasDI(di *Item) bool {
	_, ok := rd.rdMap()[di]
	return ok
}

// GetDefPoints returns the points reaching di, or nil if none do. The
// returned sequence is owned by the fact and must not be mutated.
func (rd *ReachingDefs) GetDefPoints(di *Item) DefPoints {
	return rd.rdMap()[di]
}

func (rd *ReachingDefs) hasPair(di *Item, dp DefPoint) bool {
	return rd.rdMap()[di].Contains(dp)
}

// AddRD adds the single definition pair (di, dp), creating di's entry if
// necessary and leaving it unchanged if the pair is already present.
func (rd *ReachingDefs) AddRD(di *Item, dp DefPoint) {
	if rd.hasPair(di, dp) {
		return
	}

	rd.copyMapIfNeeded()
	rd.my[di] = append(rd.my[di], dp)
}

// AddOrFullyReplace sets di's reaching definitions to exactly {dp},
// discarding whatever reached before. This is the transfer function for a
// definite assignment: after the write, di reaches from the write alone.
func (rd *ReachingDefs) AddOrFullyReplace(di *Item, dp DefPoint) {
	rd.copyMapIfNeeded()
	rd.my[di] = DefPoints{dp}
}

// AddRDs adds every definition pair of o that is missing from rd. Existing
// entries are extended, never replaced.
func (rd *ReachingDefs) AddRDs(o *ReachingDefs) {
	for di, dps := range o.rdMap() {
		for _, dp := range dps {
			rd.AddRD(di, dp)
		}
	}
}

// Union returns a new fact where each item's definitions are the union of
// both operands' (an item missing from one contributes nothing). This is
// the join at an ordinary control-flow merge: either predecessor's write
// might be the live one.
func (rd *ReachingDefs) Union(o *ReachingDefs) *ReachingDefs {
	res := NewChild(rd)
	res.AddRDs(o)
	return res
}

// Intersect returns a new fact holding only the items both operands agree
// on exactly, dropping every other item. Absence after Intersect means "no
// longer certain which (if any) definition reaches".
func (rd *ReachingDefs) Intersect(o *ReachingDefs) *ReachingDefs {
	res := NewReachingDefs()
	for di, dps := range rd.rdMap() {
		if SameDefPoints(dps, o.GetDefPoints(di)) {
			res.my[di] = dps.clone()
		}
	}
	return res
}

// IntersectWithConsolidation intersects like Intersect, but never drops an
// item present in rd: where o lacks the item or disagrees on its points,
// the result holds the single MultipleDefs sentinel tagged at here. This
// keeps "certainly defined by here, origin unresolvable" facts that plain
// Intersect would lose.
//
// Precondition (not checked): rd must hold only facts that reach here along
// every path, with o computed from a region all of whose exits flow to
// here. Calling it with anything weaker for rd fabricates "is defined"
// facts that are simply wrong.
func (rd *ReachingDefs) IntersectWithConsolidation(o *ReachingDefs, here ast.Node) *ReachingDefs {
	res := NewReachingDefs()
	for di, dps := range rd.rdMap() {
		if SameDefPoints(dps, o.GetDefPoints(di)) {
			res.my[di] = dps.clone()
		} else {
			res.my[di] = DefPoints{MultipleDefs(here)}
		}
	}
	return res
}

// Size returns the number of items with reaching definitions, read through
// the delegation.
func (rd *ReachingDefs) Size() int { return len(rd.rdMap()) }

// DumpMap renders the visible entries deterministically, ordered by item
// interning order. Debug surface only; the exact format is not a contract.
func (rd *ReachingDefs) DumpMap() string {
	m := rd.rdMap()
	items := maps.Keys(m)
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })

	lines := slices.Map(items, func(di *Item) string {
		return fmt.Sprintf("%s = %v", di.Name(), m[di])
	})
	return strings.Join(lines, "\n")
}

func (rd *ReachingDefs) String() string { return rd.DumpMap() }

// Dump prints the fact to standard output.
func (rd *ReachingDefs) Dump() {
	if rd.Size() == 0 {
		fmt.Println("<none>")
		return
	}
	fmt.Println(rd.DumpMap())
}
