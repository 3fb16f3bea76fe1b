package reachdefs

import (
	"go/ast"
	"go/types"
)

// An Item is the canonical handle for one assignable storage location: a
// whole variable, or one field slot of an aggregate reachable from a
// variable (v.f, v.f.g, ...). Items are interned by an ItemMap so that the
// same location always resolves to the same pointer, which is what allows
// facts to key on them by identity.
type Item struct {
	id     int
	v      *types.Var // root variable; nil for field slots
	parent *Item      // nil for root items
	field  string
	fields map[string]*Item
}

// Name renders the item as v, v$f, v$f$g, ...
func (di *Item) Name() string {
	if di.parent != nil {
		return di.parent.Name() + "$" + di.field
	}
	return di.v.Name()
}

// Var returns the variable the item is rooted in.
func (di *Item) Var() *types.Var {
	for di.parent != nil {
		di = di.parent
	}
	return di.v
}

func (di *Item) Parent() *Item { return di.parent }

func (di *Item) String() string { return di.Name() }

// An ItemMap interns Items for the duration of one analysis pass. Interning
// order doubles as a stable integer handle per item, used only to order
// dumps deterministically.
type ItemMap struct {
	vars map[*types.Var]*Item
	n    int
}

func NewItemMap() *ItemMap {
	return &ItemMap{vars: make(map[*types.Var]*Item)}
}

// Len returns the number of interned items.
func (m *ItemMap) Len() int { return m.n }

// VarItem returns the canonical item for v, interning it on first use.
func (m *ItemMap) VarItem(v *types.Var) *Item {
	if di, ok := m.vars[v]; ok {
		return di
	}

	di := &Item{id: m.n, v: v}
	m.n++
	m.vars[v] = di
	return di
}

// FindVarItem returns the canonical item for v, or nil if v was never
// interned during this pass.
func (m *ItemMap) FindVarItem(v *types.Var) *Item {
	return m.vars[v]
}

// FieldItem returns the canonical item for the named field slot of parent,
// interning it on first use.
func (m *ItemMap) FieldItem(parent *Item, field string) *Item {
	if di, ok := parent.fields[field]; ok {
		return di
	}

	if parent.fields == nil {
		parent.fields = make(map[string]*Item)
	}

	di := &Item{id: m.n, parent: parent, field: field}
	m.n++
	parent.fields[field] = di
	return di
}

// ResolveExpr resolves an assignable expression to its canonical item: an
// identifier to its variable's item, a selector chain rooted in a variable
// (v.f.g) to the corresponding field slot. It returns nil for anything else
// (indexing, dereferences, blank identifiers, calls); such targets are
// outside the flat-identity model and get no kill/gen.
func (m *ItemMap) ResolveExpr(info *types.Info, e ast.Expr) *Item {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return m.ResolveExpr(info, e.X)

	case *ast.Ident:
		v, ok := info.ObjectOf(e).(*types.Var)
		if !ok {
			return nil
		}
		return m.VarItem(v)

	case *ast.SelectorExpr:
		sel, ok := info.Selections[e]
		if !ok || sel.Kind() != types.FieldVal || len(sel.Index()) != 1 {
			// Not a field selection, or one reached through an embedded
			// field; both are outside the flat model.
			return nil
		}

		base := m.ResolveExpr(info, e.X)
		if base == nil {
			return nil
		}
		return m.FieldItem(base, e.Sel.Name)

	default:
		return nil
	}
}
