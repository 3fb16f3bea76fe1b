package reachdefs

import (
	"go/ast"
	"go/token"
	"go/types"
	"log"

	"github.com/BarrensZeppelin/reachdefs/internal/queue"
)

func init() {
	log.SetFlags(log.Ltime | log.Lshortfile)
}

type aContext struct {
	info  *types.Info
	items *ItemMap

	// Facts before each statement. maxs holds definitions that may reach,
	// mins those guaranteed to reach along every path.
	maxs *ReachingDefSet
	mins *ReachingDefSet

	// Function literals discovered in a body are analyzed as independent
	// passes after it.
	queue   queue.Queue[*ast.FuncLit]
	visited map[*ast.FuncLit]bool

	// State for the body currently being walked: the body itself and its
	// goto statements indexed by target label.
	body  *ast.BlockStmt
	gotos map[string][]*ast.BranchStmt

	exit    map[ast.Node]*ReachingDefs
	exitMin map[ast.Node]*ReachingDefs
}

type AnalysisConfig struct {
	// Type information covering every analyzed function.
	Info *types.Info

	// Function declarations to analyze. Function literals nested inside
	// them are picked up automatically.
	Funcs []*ast.FuncDecl
}

// Analyze runs one reaching-definitions pass over each configured function
// body. The pass is a single structured depth-first walk of the syntax
// tree: assignments kill and gen, branch merges join with Union, and the
// guaranteed ("minimal") facts meet with IntersectWithConsolidation. Loop
// bodies are walked once, not iterated to a fixpoint; the facts there are
// deliberately approximate.
func Analyze(config AnalysisConfig) Result {
	items := NewItemMap()
	ctx := &aContext{
		info:    config.Info,
		items:   items,
		maxs:    NewReachingDefSet(items),
		mins:    NewReachingDefSet(items),
		visited: make(map[*ast.FuncLit]bool),
		exit:    make(map[ast.Node]*ReachingDefs),
		exitMin: make(map[ast.Node]*ReachingDefs),
	}

	for _, fn := range config.Funcs {
		if fn.Body == nil {
			continue
		}

		ctx.analyzeFunc(fn, fn.Recv, fn.Type, fn.Body)

		for !ctx.queue.Empty() {
			lit := ctx.queue.Pop()
			ctx.analyzeFunc(lit, nil, lit.Type, lit.Body)
		}
	}

	return Result{
		Items:  items,
		MaxRDs: ctx.maxs,
		MinRDs: ctx.mins,

		exit:    ctx.exit,
		exitMin: ctx.exitMin,
	}
}

// analyzeFunc walks one function body. fn is the FuncDecl or FuncLit node;
// it doubles as the definition point of receivers and parameters.
func (ctx *aContext) analyzeFunc(fn ast.Node, recv *ast.FieldList, ftype *ast.FuncType, body *ast.BlockStmt) {
	ctx.scanLits(body)
	ctx.scanGotos(body)

	max := NewReachingDefs()
	min := NewReachingDefs()

	addFields := func(fl *ast.FieldList, dp DefPoint) {
		if fl == nil {
			return
		}
		for _, field := range fl.List {
			for _, name := range field.Names {
				v, ok := ctx.info.Defs[name].(*types.Var)
				if !ok {
					continue
				}
				di := ctx.items.VarItem(v)
				max.AddOrFullyReplace(di, dp)
				min.AddOrFullyReplace(di, dp)
			}
		}
	}

	// Receivers and parameters are defined on entry; named results exist
	// but hold no definition yet.
	addFields(recv, DefinedAt(fn))
	addFields(ftype.Params, DefinedAt(fn))
	addFields(ftype.Results, NoDefinition())

	outMax, outMin := ctx.stmtList(body.List, max, min)
	ctx.exit[fn] = outMax
	ctx.exitMin[fn] = outMin
}

// scanLits queues every function literal syntactically contained in n
// without descending into the literals themselves; their own nested
// literals are found when they are analyzed.
func (ctx *aContext) scanLits(n ast.Node) {
	ast.Inspect(n, func(n ast.Node) bool {
		if lit, ok := n.(*ast.FuncLit); ok {
			if !ctx.visited[lit] {
				ctx.visited[lit] = true
				ctx.queue.Push(lit)
			}
			return false
		}
		return true
	})
}

// scanGotos indexes the goto statements of the body about to be walked by
// target label, so labels can fold their jump edges in when reached.
func (ctx *aContext) scanGotos(body *ast.BlockStmt) {
	ctx.body = body
	ctx.gotos = make(map[string][]*ast.BranchStmt)

	ast.Inspect(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.BranchStmt:
			if n.Tok == token.GOTO && n.Label != nil {
				ctx.gotos[n.Label.Name] = append(ctx.gotos[n.Label.Name], n)
			}
		}
		return true
	})
}

func (ctx *aContext) stmtList(stmts []ast.Stmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	for _, s := range stmts {
		max, min = ctx.stmt(s, max, min)
	}
	return max, min
}

// stmt records the facts reaching s and returns the facts after it.
func (ctx *aContext) stmt(s ast.Stmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	// A label is a merge point: its goto edges contribute facts besides
	// the fall-through, so fold them in before recording.
	if ls, ok := s.(*ast.LabeledStmt); ok {
		max, min = ctx.labelEntry(ls, max, min)
		ctx.maxs.AddRDs(ls, max)
		ctx.mins.AddRDs(ls, min)
		return ctx.stmt(ls.Stmt, max, min)
	}

	ctx.maxs.AddRDs(s, max)
	ctx.mins.AddRDs(s, min)

	switch s := s.(type) {
	case *ast.BlockStmt:
		return ctx.stmtList(s.List, max, min)

	case *ast.AssignStmt:
		return ctx.define(s, s.Lhs, max, min)

	case *ast.IncDecStmt:
		return ctx.define(s, []ast.Expr{s.X}, max, min)

	case *ast.DeclStmt:
		return ctx.declStmt(s, max, min)

	case *ast.IfStmt:
		return ctx.ifStmt(s, max, min)

	case *ast.ForStmt:
		return ctx.forStmt(s, max, min)

	case *ast.RangeStmt:
		return ctx.rangeStmt(s, max, min)

	case *ast.SwitchStmt:
		return ctx.switchStmt(s, max, min)

	case *ast.TypeSwitchStmt:
		return ctx.typeSwitchStmt(s, max, min)

	case *ast.SelectStmt:
		return ctx.selectStmt(s, max, min)

	default:
		// Statements without assignable targets (expression and send
		// statements, defer, go, return, branch statements) leave the
		// facts untouched. break and continue fall through; goto edges
		// are folded in at their target label.
		return max, min
	}
}

// labelEntry folds the facts of a label's goto edges into its entry facts.
// A jump from already-walked text contributes the facts recorded at the
// goto; the guaranteed facts keep only what every edge agrees on. A jump
// from text not walked yet can carry any write between the label and the
// goto back to the label, so those writes join the may-facts and the
// guaranteed entries they disturb consolidate.
func (ctx *aContext) labelEntry(s *ast.LabeledStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	for _, g := range ctx.gotos[s.Label.Name] {
		if ctx.maxs.HasRDs(g) {
			max = max.Union(ctx.maxs.FindRDs(g))
			min = min.Intersect(ctx.mins.FindRDs(g))
		} else {
			max, min = ctx.backEdge(s, g, max, min)
		}
	}
	return max, min
}

func (ctx *aContext) backEdge(s *ast.LabeledStmt, g *ast.BranchStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	outMax := NewChild(max)
	outMin := NewChild(min)

	for _, w := range ctx.writesBetween(s.Pos(), g.End()) {
		outMax.AddRD(w.di, DefinedAt(w.stmt))
		// The item stays defined across the back edge; only its
		// provenance is lost.
		if outMin.HasDI(w.di) {
			outMin.AddOrFullyReplace(w.di, MultipleDefs(s))
		}
	}

	return outMax, outMin
}

type write struct {
	di   *Item
	stmt ast.Stmt
}

// writesBetween collects the resolvable write targets of the current body
// that lie within [from, to], skipping nested function literals.
func (ctx *aContext) writesBetween(from, to token.Pos) []write {
	var ws []write
	add := func(s ast.Stmt, e ast.Expr) {
		if di := ctx.items.ResolveExpr(ctx.info, e); di != nil {
			ws = append(ws, write{di, s})
		}
	}

	ast.Inspect(ctx.body, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		if _, ok := n.(*ast.FuncLit); ok {
			return false
		}
		if n.End() < from || to < n.Pos() {
			return false
		}
		if n.Pos() < from || to < n.End() {
			// Straddles the region; only its inner statements count.
			return true
		}

		switch s := n.(type) {
		case *ast.AssignStmt:
			for _, l := range s.Lhs {
				add(s, l)
			}
		case *ast.IncDecStmt:
			add(s, s.X)
		case *ast.RangeStmt:
			for _, e := range [...]ast.Expr{s.Key, s.Value} {
				if e != nil {
					add(s, e)
				}
			}
		case *ast.DeclStmt:
			if gd, ok := s.Decl.(*ast.GenDecl); ok && gd.Tok == token.VAR {
				for _, spec := range gd.Specs {
					if vs, ok := spec.(*ast.ValueSpec); ok && len(vs.Values) > 0 {
						for _, name := range vs.Names {
							add(s, name)
						}
					}
				}
			}
		}
		return true
	})

	return ws
}

// define applies the definite-assignment transfer for every resolvable
// target in lhs: kill everything previously reaching the item, gen the
// write at s. Unresolvable targets (indexing, dereferences, blanks) get
// neither.
func (ctx *aContext) define(s ast.Stmt, lhs []ast.Expr, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	outMax := NewChild(max)
	outMin := NewChild(min)

	for _, l := range lhs {
		di := ctx.items.ResolveExpr(ctx.info, l)
		if di == nil {
			continue
		}

		dp := DefinedAt(s)
		outMax.AddOrFullyReplace(di, dp)
		outMin.AddOrFullyReplace(di, dp)
	}

	return outMax, outMin
}

func (ctx *aContext) declStmt(s *ast.DeclStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	gd, ok := s.Decl.(*ast.GenDecl)
	if !ok || gd.Tok != token.VAR {
		return max, min
	}

	outMax := NewChild(max)
	outMin := NewChild(min)

	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}

		// A var with initializers is a definition; without, the variable
		// exists but has no definition yet.
		dp := DefinedAt(s)
		if len(vs.Values) == 0 {
			dp = NoDefinition()
		}

		for _, name := range vs.Names {
			v, ok := ctx.info.Defs[name].(*types.Var)
			if !ok {
				continue
			}
			di := ctx.items.VarItem(v)
			outMax.AddOrFullyReplace(di, dp)
			outMin.AddOrFullyReplace(di, dp)
		}
	}

	return outMax, outMin
}

func (ctx *aContext) ifStmt(s *ast.IfStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	if s.Init != nil {
		max, min = ctx.stmt(s.Init, max, min)
	}

	thenMax, thenMin := ctx.stmt(s.Body, NewChild(max), NewChild(min))

	if s.Else == nil {
		// The else path is the fall-through. The pre-branch mins reach
		// the merge on every path, so consolidation applies.
		return max.Union(thenMax), min.IntersectWithConsolidation(thenMin, s)
	}

	elseMax, elseMin := ctx.stmt(s.Else, NewChild(max), NewChild(min))

	outMin := min.IntersectWithConsolidation(thenMin, s)
	outMin = outMin.IntersectWithConsolidation(elseMin, s)
	return thenMax.Union(elseMax), outMin
}

func (ctx *aContext) forStmt(s *ast.ForStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	if s.Init != nil {
		max, min = ctx.stmt(s.Init, max, min)
	}

	bodyMax, bodyMin := ctx.stmt(s.Body, NewChild(max), NewChild(min))
	if s.Post != nil {
		bodyMax, bodyMin = ctx.stmt(s.Post, bodyMax, bodyMin)
	}

	// One pass over the body, no fixpoint: definitions from a single
	// iteration may reach the exit, and items the body redefines lose
	// their provenance in the guaranteed facts.
	return max.Union(bodyMax), min.IntersectWithConsolidation(bodyMin, s)
}

func (ctx *aContext) rangeStmt(s *ast.RangeStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	bodyMax := NewChild(max)
	bodyMin := NewChild(min)

	for _, e := range [...]ast.Expr{s.Key, s.Value} {
		if e == nil {
			continue
		}
		if di := ctx.items.ResolveExpr(ctx.info, e); di != nil {
			dp := DefinedAt(s)
			bodyMax.AddOrFullyReplace(di, dp)
			bodyMin.AddOrFullyReplace(di, dp)
		}
	}

	bodyMax, bodyMin = ctx.stmt(s.Body, bodyMax, bodyMin)

	// The range may be empty, so the loop variables are only defined on
	// the body paths.
	return max.Union(bodyMax), min.IntersectWithConsolidation(bodyMin, s)
}

// switchStmt merges expression-switch clauses like an if/else chain: each
// clause is walked from the pre-switch snapshot. A fallthrough therefore
// hands the next clause that snapshot too, not the previous clause's exit
// facts, so a write flowing across a fallthrough is missing from the next
// clause's may-facts.
func (ctx *aContext) switchStmt(s *ast.SwitchStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	if s.Init != nil {
		max, min = ctx.stmt(s.Init, max, min)
	}

	var outMax *ReachingDefs
	outMin := min
	hasDefault := false

	for _, clause := range s.Body.List {
		cc := clause.(*ast.CaseClause)
		if cc.List == nil {
			hasDefault = true
		}

		ccMax, ccMin := ctx.caseBody(cc, cc.Body, max, min)
		outMax = unionInto(outMax, ccMax)
		outMin = outMin.IntersectWithConsolidation(ccMin, s)
	}

	if !hasDefault {
		// No clause may match; the pre-switch facts also fall through.
		outMax = unionInto(outMax, max)
	}

	return outMax, outMin
}

func (ctx *aContext) typeSwitchStmt(s *ast.TypeSwitchStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	if s.Init != nil {
		max, min = ctx.stmt(s.Init, max, min)
	}

	var outMax *ReachingDefs
	outMin := min
	hasDefault := false

	for _, clause := range s.Body.List {
		cc := clause.(*ast.CaseClause)
		if cc.List == nil {
			hasDefault = true
		}

		ccMax := NewChild(max)
		ccMin := NewChild(min)

		// In "switch y := x.(type)" each clause binds its own copy of y.
		if v, ok := ctx.info.Implicits[cc].(*types.Var); ok {
			di := ctx.items.VarItem(v)
			dp := DefinedAt(cc)
			ccMax.AddOrFullyReplace(di, dp)
			ccMin.AddOrFullyReplace(di, dp)
		}

		ctx.maxs.AddRDs(cc, ccMax)
		ctx.mins.AddRDs(cc, ccMin)

		ccMax, ccMin = ctx.stmtList(cc.Body, NewChild(ccMax), NewChild(ccMin))
		outMax = unionInto(outMax, ccMax)
		outMin = outMin.IntersectWithConsolidation(ccMin, s)
	}

	if !hasDefault {
		outMax = unionInto(outMax, max)
	}

	return outMax, outMin
}

func (ctx *aContext) selectStmt(s *ast.SelectStmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	// A select always takes one of its clauses, so the merged facts come
	// from the clause exits alone.
	var outMax *ReachingDefs
	outMin := min

	for _, clause := range s.Body.List {
		cc := clause.(*ast.CommClause)

		ccMax := NewChild(max)
		ccMin := NewChild(min)
		if cc.Comm != nil {
			ccMax, ccMin = ctx.stmt(cc.Comm, ccMax, ccMin)
		}

		ccMax, ccMin = ctx.stmtList(cc.Body, ccMax, ccMin)
		outMax = unionInto(outMax, ccMax)
		outMin = outMin.IntersectWithConsolidation(ccMin, s)
	}

	if outMax == nil {
		outMax = max
	}

	return outMax, outMin
}

// unionInto folds one more predecessor into an accumulating join, starting
// the accumulator from the first predecessor.
func unionInto(acc, rd *ReachingDefs) *ReachingDefs {
	if acc == nil {
		return NewChild(rd)
	}
	return acc.Union(rd)
}

// caseBody records the facts reaching a clause before walking its body, so
// consumers can query per-clause entry facts like any other point.
func (ctx *aContext) caseBody(cc *ast.CaseClause, body []ast.Stmt, max, min *ReachingDefs) (*ReachingDefs, *ReachingDefs) {
	ctx.maxs.AddRDs(cc, max)
	ctx.mins.AddRDs(cc, min)
	return ctx.stmtList(body, NewChild(max), NewChild(min))
}
