package reachdefs

import (
	"go/ast"
)

// Result carries the facts computed by one Analyze pass.
type Result struct {
	// Items is the interning table the pass resolved storage locations
	// with; handles are only valid together with this table.
	Items *ItemMap

	// MaxRDs maps each visited statement to the definitions that may
	// reach it; MinRDs to those guaranteed to reach it on every path.
	MaxRDs *ReachingDefSet
	MinRDs *ReachingDefSet

	exit    map[ast.Node]*ReachingDefs
	exitMin map[ast.Node]*ReachingDefs
}

// ExitRDs returns the definitions that may reach the exit of the given
// function declaration or literal, or nil if it was not analyzed.
func (r *Result) ExitRDs(fn ast.Node) *ReachingDefs { return r.exit[fn] }

// ExitMinRDs returns the definitions guaranteed to reach the exit of the
// given function declaration or literal, or nil if it was not analyzed.
func (r *Result) ExitMinRDs(fn ast.Node) *ReachingDefs { return r.exitMin[fn] }
