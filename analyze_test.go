package reachdefs_test

import (
	"go/ast"
	"go/types"
	"log"
	"testing"

	"github.com/BarrensZeppelin/reachdefs"
	"github.com/BarrensZeppelin/reachdefs/pkgutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

func init() {
	// Set up logging
	log.SetFlags(log.Ltime | log.Lshortfile)
}

// analyzeSource loads a single-file package from source and runs the pass
// over all of its function declarations.
func analyzeSource(t *testing.T, src string) (*packages.Package, reachdefs.Result) {
	t.Helper()

	pkgs, err := pkgutil.LoadPackagesFromSource(src)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	pkg := pkgs[0]

	var fns []*ast.FuncDecl
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok {
				fns = append(fns, fn)
			}
		}
	}

	return pkg, reachdefs.Analyze(reachdefs.AnalysisConfig{
		Info:  pkg.TypesInfo,
		Funcs: fns,
	})
}

func findFunc(t *testing.T, pkg *packages.Package, name string) *ast.FuncDecl {
	t.Helper()

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == name {
				return fn
			}
		}
	}

	t.Fatalf("no function %q in test package", name)
	return nil
}

// declaredVar finds the unique variable with the given name defined
// anywhere in the test package.
func declaredVar(t *testing.T, pkg *packages.Package, name string) *types.Var {
	t.Helper()

	for _, obj := range pkg.TypesInfo.Defs {
		if v, ok := obj.(*types.Var); ok && v.Name() == name {
			return v
		}
	}

	t.Fatalf("no variable %q in test package", name)
	return nil
}

func item(t *testing.T, res reachdefs.Result, v *types.Var) *reachdefs.Item {
	t.Helper()

	di := res.Items.FindVarItem(v)
	require.NotNil(t, di, "variable %v was never seen by the pass", v)
	return di
}

func TestBranchMerge(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func branch(c bool) int {
	var v int
	if c {
		v = 1
	} else {
		v = 2
	}
	return v
}

func main() {}
`)

	fn := findFunc(t, pkg, "branch")
	ifs := fn.Body.List[1].(*ast.IfStmt)
	stmtA := ifs.Body.List[0]
	stmtB := ifs.Else.(*ast.BlockStmt).List[0]
	ret := fn.Body.List[2]

	v := item(t, res, declaredVar(t, pkg, "v"))

	// Both writes may reach the merge.
	dps := res.MaxRDs.FindRDs(ret).GetDefPoints(v)
	require.Len(t, dps, 2)
	assert.True(t, dps.Contains(reachdefs.DefinedAt(stmtA)))
	assert.True(t, dps.Contains(reachdefs.DefinedAt(stmtB)))
	assert.False(t, res.MaxRDs.HasSingleRD(ret, declaredVar(t, pkg, "v")))

	// v is certainly defined at the merge, but the branches disagree on
	// where, so the guaranteed fact consolidates to the sentinel.
	min := res.MinRDs.FindRDs(ret).GetDefPoints(v)
	require.Len(t, min, 1)
	assert.Equal(t, reachdefs.MultiDefs, min[0].Tag())
	assert.Same(t, ifs, min[0].Node())

	// Inside a branch the declaration's placeholder is the only thing
	// reaching.
	pre := res.MaxRDs.FindRDs(stmtA).GetDefPoints(v)
	require.Len(t, pre, 1)
	assert.Equal(t, reachdefs.NoDef, pre[0].Tag())
}

func TestStraightLine(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func straight() {
	x := 1
	y := x
	x = 2
	_ = y
	_ = x
}

func main() {}
`)

	fn := findFunc(t, pkg, "straight")
	s0, s1, s2, s3 := fn.Body.List[0], fn.Body.List[1], fn.Body.List[2], fn.Body.List[3]

	x := declaredVar(t, pkg, "x")
	y := declaredVar(t, pkg, "y")
	xi, yi := item(t, res, x), item(t, res, y)

	// Before y := x, only the initial write reaches x.
	assert.True(t, res.MaxRDs.HasSingleRD(s1, x))
	require.Len(t, res.MaxRDs.FindRDs(s1).GetDefPoints(xi), 1)
	assert.True(t, res.MaxRDs.FindRDs(s1).GetDefPoints(xi)[0].SameAs(reachdefs.DefinedAt(s0)))

	// The second write kills the first.
	atUse := res.MaxRDs.FindRDs(s3)
	require.Len(t, atUse.GetDefPoints(xi), 1)
	assert.True(t, atUse.GetDefPoints(xi)[0].SameAs(reachdefs.DefinedAt(s2)))
	assert.True(t, atUse.GetDefPoints(yi)[0].SameAs(reachdefs.DefinedAt(s1)))

	// With straight-line control flow the guaranteed facts coincide.
	assert.True(t, reachdefs.SameDefPoints(
		res.MinRDs.FindRDs(s3).GetDefPoints(xi),
		atUse.GetDefPoints(xi)))
}

func TestLoopApproximation(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func loop(n int) int {
	x := 1
	for i := 0; i < n; i++ {
		x = 2
	}
	return x
}

func main() {}
`)

	fn := findFunc(t, pkg, "loop")
	init := fn.Body.List[0]
	forS := fn.Body.List[1].(*ast.ForStmt)
	bodyAssign := forS.Body.List[0]
	ret := fn.Body.List[2]

	x := item(t, res, declaredVar(t, pkg, "x"))

	// Zero or more iterations: the pre-loop write and the body write may
	// both reach the exit. The body is walked once, not to a fixpoint.
	dps := res.MaxRDs.FindRDs(ret).GetDefPoints(x)
	require.Len(t, dps, 2)
	assert.True(t, dps.Contains(reachdefs.DefinedAt(init)))
	assert.True(t, dps.Contains(reachdefs.DefinedAt(bodyAssign)))

	// Guaranteed: defined, but provenance depends on the trip count.
	min := res.MinRDs.FindRDs(ret).GetDefPoints(x)
	require.Len(t, min, 1)
	assert.Equal(t, reachdefs.MultiDefs, min[0].Tag())
	assert.Same(t, forS, min[0].Node())

	i := item(t, res, declaredVar(t, pkg, "i"))
	ids := res.MaxRDs.FindRDs(ret).GetDefPoints(i)
	assert.Len(t, ids, 2, "loop variable: init and post-statement writes")
}

func TestDeclWithoutInitializer(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func decl(c bool) int {
	var x int
	if c {
		x = 1
	}
	return x
}

func main() {}
`)

	fn := findFunc(t, pkg, "decl")
	ifs := fn.Body.List[1].(*ast.IfStmt)
	ret := fn.Body.List[2]

	xv := declaredVar(t, pkg, "x")
	x := item(t, res, xv)

	// The declaration's placeholder and the conditional write both reach.
	dps := res.MaxRDs.FindRDs(ret).GetDefPoints(x)
	require.Len(t, dps, 2)
	assert.Equal(t, reachdefs.NoDef, dps[0].Tag())
	assert.True(t, dps.Contains(reachdefs.DefinedAt(ifs.Body.List[0])))

	// A NoDef placeholder never counts as a single definite definition.
	assert.False(t, res.MaxRDs.HasSingleRD(ret, xv))
}

func TestFieldSlots(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

type pt struct{ x, y int }

func fields(c bool) int {
	var p pt
	p.x = 1
	if c {
		p.y = 2
	}
	return p.x + p.y
}

func main() {}
`)

	fn := findFunc(t, pkg, "fields")
	setX := fn.Body.List[1]
	ifs := fn.Body.List[2].(*ast.IfStmt)
	setY := ifs.Body.List[0]
	ret := fn.Body.List[3]

	p := item(t, res, declaredVar(t, pkg, "p"))
	px := res.Items.FieldItem(p, "x")
	py := res.Items.FieldItem(p, "y")

	atRet := res.MaxRDs.FindRDs(ret)
	require.True(t, atRet.HasDI(px))
	assert.True(t, atRet.GetDefPoints(px)[0].SameAs(reachdefs.DefinedAt(setX)))
	require.True(t, atRet.HasDI(py))
	assert.True(t, atRet.GetDefPoints(py)[0].SameAs(reachdefs.DefinedAt(setY)))

	// p.y is only written on one path, so the guaranteed facts drop it;
	// p.x is written on every path and survives with its exact point.
	minRet := res.MinRDs.FindRDs(ret)
	assert.False(t, minRet.HasDI(py))
	require.True(t, minRet.HasDI(px))
	assert.True(t, reachdefs.SameDefPoints(minRet.GetDefPoints(px), atRet.GetDefPoints(px)))
}

func TestSwitchMerge(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func sw(n int) string {
	var s string
	switch n {
	case 0:
		s = "zero"
	case 1:
		s = "one"
	default:
		s = "many"
	}
	return s
}

func main() {}
`)

	fn := findFunc(t, pkg, "sw")
	swS := fn.Body.List[1].(*ast.SwitchStmt)
	ret := fn.Body.List[2]

	s := item(t, res, declaredVar(t, pkg, "s"))

	// With a default clause the declaration placeholder cannot fall
	// through; exactly the three clause writes may reach.
	dps := res.MaxRDs.FindRDs(ret).GetDefPoints(s)
	require.Len(t, dps, 3)
	for _, clause := range swS.Body.List {
		cc := clause.(*ast.CaseClause)
		assert.True(t, dps.Contains(reachdefs.DefinedAt(cc.Body[0])))
	}

	min := res.MinRDs.FindRDs(ret).GetDefPoints(s)
	require.Len(t, min, 1)
	assert.Equal(t, reachdefs.MultiDefs, min[0].Tag())
}

func TestFuncLit(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func withlit() func(int) int {
	add := func(a int) int {
		b := a + 1
		return b
	}
	return add
}

func main() {}
`)

	fn := findFunc(t, pkg, "withlit")

	var lit *ast.FuncLit
	ast.Inspect(fn, func(n ast.Node) bool {
		if l, ok := n.(*ast.FuncLit); ok {
			lit = l
			return false
		}
		return true
	})
	require.NotNil(t, lit)

	// The literal gets its own pass, with parameters defined at the
	// literal itself.
	exit := res.ExitRDs(lit)
	require.NotNil(t, exit)

	a := item(t, res, declaredVar(t, pkg, "a"))
	b := item(t, res, declaredVar(t, pkg, "b"))
	assert.True(t, exit.GetDefPoints(a)[0].SameAs(reachdefs.DefinedAt(lit)))
	assert.True(t, exit.GetDefPoints(b)[0].SameAs(reachdefs.DefinedAt(lit.Body.List[0])))

	// The enclosing function sees the literal assignment as a plain
	// definition of add.
	add := item(t, res, declaredVar(t, pkg, "add"))
	outer := res.ExitRDs(fn)
	require.NotNil(t, outer)
	assert.True(t, outer.GetDefPoints(add)[0].SameAs(reachdefs.DefinedAt(fn.Body.List[0])))

	assert.True(t, reachdefs.SameDefPoints(
		res.ExitMinRDs(lit).GetDefPoints(b), exit.GetDefPoints(b)))
}

func TestParamsAndNamedResults(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func named(a int) (r int) {
	if a > 0 {
		r = a
	}
	return
}

func main() {}
`)

	fn := findFunc(t, pkg, "named")
	ret := fn.Body.List[1]

	av := declaredVar(t, pkg, "a")
	rv := declaredVar(t, pkg, "r")

	// Parameters are defined on entry; the single definition survives a
	// branch that does not touch them.
	assert.True(t, res.MaxRDs.HasSingleRD(ret, av))

	// The named result starts as a placeholder and picks up the
	// conditional write.
	r := item(t, res, rv)
	dps := res.MaxRDs.FindRDs(ret).GetDefPoints(r)
	require.Len(t, dps, 2)
	assert.Equal(t, reachdefs.NoDef, dps[0].Tag())
	assert.False(t, res.MaxRDs.HasSingleRD(ret, rv))
}

func TestGotoForward(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func jump(c bool) int {
	x := 0
	if c {
		goto L
	}
	x = 1
L:
	return x
}

func main() {}
`)

	fn := findFunc(t, pkg, "jump")
	s0 := fn.Body.List[0]
	s2 := fn.Body.List[2]
	label := fn.Body.List[3].(*ast.LabeledStmt)
	xv := declaredVar(t, pkg, "x")
	x := item(t, res, xv)

	// Both the pre-jump write and the fall-through write may reach the
	// label.
	dps := res.MaxRDs.FindRDs(label).GetDefPoints(x)
	require.Len(t, dps, 2)
	assert.True(t, dps.Contains(reachdefs.DefinedAt(s0)))
	assert.True(t, dps.Contains(reachdefs.DefinedAt(s2)))
	assert.False(t, res.MaxRDs.HasSingleRD(label, xv))

	// The two edges disagree, so no write is guaranteed.
	assert.False(t, res.MinRDs.FindRDs(label).HasDI(x))
}

func TestGotoBackward(t *testing.T) {
	pkg, res := analyzeSource(t, `package main

func loopback(n int) int {
	x := 0
L:
	x = 1
	if n > 0 {
		n--
		goto L
	}
	return x
}

func main() {}
`)

	fn := findFunc(t, pkg, "loopback")
	s0 := fn.Body.List[0]
	label := fn.Body.List[1].(*ast.LabeledStmt)
	assign := label.Stmt
	xv := declaredVar(t, pkg, "x")
	x := item(t, res, xv)

	// First entry comes from the initial write, re-entries from the
	// write inside the labelled region.
	dps := res.MaxRDs.FindRDs(label).GetDefPoints(x)
	require.Len(t, dps, 2)
	assert.True(t, dps.Contains(reachdefs.DefinedAt(s0)))
	assert.True(t, dps.Contains(reachdefs.DefinedAt(assign)))

	// Certainly defined at the label, but the provenance depends on the
	// iteration.
	min := res.MinRDs.FindRDs(label).GetDefPoints(x)
	require.Len(t, min, 1)
	assert.Equal(t, reachdefs.MultiDefs, min[0].Tag())
	assert.Same(t, label, min[0].Node())

	// After the jump region the write inside it is the only one left.
	ret := fn.Body.List[3]
	assert.True(t, res.MaxRDs.HasSingleRD(ret, xv))
}
