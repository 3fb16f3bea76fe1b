package reachdefs

import (
	"fmt"
	"go/ast"
	"go/types"
)

// A ReachingDefSet correlates program points (syntax nodes, compared by
// identity) with their fact snapshot. The traversal driver records the fact
// active at each visited node here and folds the facts of converging
// predecessors into a single entry. One set is scoped to one analysis pass
// over one batch of function bodies.
type ReachingDefSet struct {
	info  map[ast.Node]*ReachingDefs
	items *ItemMap
}

func NewReachingDefSet(items *ItemMap) *ReachingDefSet {
	return &ReachingDefSet{
		info:  make(map[ast.Node]*ReachingDefs),
		items: items,
	}
}

// Items returns the item interning table the set resolves variables with.
func (s *ReachingDefSet) Items() *ItemMap { return s.items }

// HasRDs reports whether any fact has been recorded at o.
func (s *ReachingDefSet) HasRDs(o ast.Node) bool {
	_, ok := s.info[o]
	return ok
}

// HasRD reports whether some definition of di reaches o.
func (s *ReachingDefSet) HasRD(o ast.Node, di *Item) bool {
	rds, ok := s.info[o]
	return ok && rds.HasDI(di)
}

// HasRDVar is HasRD with the variable resolved through the item table.
func (s *ReachingDefSet) HasRDVar(o ast.Node, v *types.Var) bool {
	di := s.items.FindVarItem(v)
	return di != nil && s.HasRD(o, di)
}

// HasSingleRD reports whether exactly one definition of v reaches o, and
// that definition is an actual write rather than the NoDef placeholder.
func (s *ReachingDefSet) HasSingleRD(o ast.Node, v *types.Var) bool {
	rds, ok := s.info[o]
	if !ok {
		return false
	}

	di := s.items.FindVarItem(v)
	if di == nil {
		return false
	}

	dps := rds.GetDefPoints(di)
	if len(dps) != 1 {
		return false
	}

	return dps[0].Tag() != NoDef
}

// FindRDs returns the fact recorded at o. It must only be called for points
// that have one; check with HasRDs first.
func (s *ReachingDefSet) FindRDs(o ast.Node) *ReachingDefs {
	rds, ok := s.info[o]
	if !ok {
		panic(fmt.Errorf("no reaching definitions recorded at %T (pos %d)", o, o.Pos()))
	}
	return rds
}

// SetRDs installs a fresh snapshot of rd as o's fact, overwriting any prior
// entry.
func (s *ReachingDefSet) SetRDs(o ast.Node, rd *ReachingDefs) {
	s.info[o] = NewChild(rd)
}

// AddOrReplace records the definite assignment (di, dp) at o: it creates
// o's entry if missing and otherwise replaces all of di's reaching
// definitions in the existing entry with dp alone.
func (s *ReachingDefSet) AddOrReplace(o ast.Node, di *Item, dp DefPoint) {
	if rds, ok := s.info[o]; ok {
		rds.AddOrFullyReplace(di, dp)
		return
	}

	rd := NewReachingDefs()
	rd.AddRD(di, dp)
	s.info[o] = rd
}

// AddRDs accumulates rd into o's entry: the first arrival shares rd
// directly, later arrivals (further predecessors converging on o) merge
// their pairs in additively.
func (s *ReachingDefSet) AddRDs(o ast.Node, rd *ReachingDefs) {
	if s.HasRDs(o) {
		s.mergeRDs(o, rd)
	} else {
		s.info[o] = rd
	}
}

func (s *ReachingDefSet) mergeRDs(o ast.Node, rd *ReachingDefs) {
	s.info[o].AddRDs(rd)
}
