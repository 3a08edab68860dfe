// Package escape implements EscapeAnalysis: a backward walk over a
// built flow.Graph that finds which values must outlive the frame
// that produced them and marks their producers so the backend can
// promote them to heap storage. Grounded on original_source/runac/
// escapes.py's EscapeFinder, adapted from its class-name dispatch to
// a type switch over flow's closed Value/Step unions.
package escape

import (
	"strings"

	"github.com/runa-lang/runac/flow"
	"github.com/runa-lang/runac/types"
)

// Analyze walks g's blocks in reverse construction order and, within
// each block, its steps in reverse. It carries one track set of names
// currently known to escape for the whole function: an owner-typed
// Return seeds it, a Call with an owner-typed formal or a SetAttr into
// an already-escaping object extends it, and Assign consumes a name
// back out of it at that name's own definition.
//
// isDestructor names whether g was built from a `__del__` body: only
// there is a call to the deallocator exempt from the generic
// owner-formal escape rule (escapes.py's Function-scoped check).
//
// escapes.py's Yield/Raise cases have no counterpart here: this AST
// has no yield or raise statement, so Return is the only value-
// carrying terminator a function body can end in.
func Analyze(g *flow.Graph, isDestructor bool) {
	track := map[string]bool{}
	for i := len(g.Order) - 1; i >= 0; i-- {
		blk := g.Blocks[g.Order[i]]
		for idx := len(blk.Steps) - 1; idx >= 0; idx-- {
			visitStep(blk, idx, blk.Steps[idx], isDestructor, track)
		}
	}
}

func visitStep(blk *flow.BasicBlock, idx int, step flow.Step, isDestructor bool, track map[string]bool) {
	switch st := step.(type) {
	case *flow.Return:
		if st.Value != nil {
			if _, owner := st.Value.Type().(*types.Owner); owner {
				visitValue(blk, idx, st.Value, true, isDestructor, track)
			}
		}
	case *flow.Assign:
		escape := track[st.Name]
		visitValue(blk, idx, st.Value, escape, isDestructor, track)
		delete(track, st.Name)
	case *flow.SetAttr:
		visitValue(blk, idx, st.Obj, false, isDestructor, track)
		visitValue(blk, idx, st.Value, refEscaping(st.Obj, track), isDestructor, track)
	case *flow.ExprStmt:
		visitValue(blk, idx, st.Value, false, isDestructor, track)
	case *flow.CondBranch:
		visitValue(blk, idx, st.Cond, false, isDestructor, track)
	}
}

// refEscaping reports whether obj is a bound name already known (from
// later, already-walked statements) to escape: assignment into a
// still-local object is a no-op for escape purposes, since the object
// itself is discarded with the frame.
func refEscaping(obj flow.Value, track map[string]bool) bool {
	ref, ok := obj.(*flow.Reference)
	if !ok {
		return false
	}
	return track[ref.Name]
}

// visitValue recurses through v's operands, propagating escape down
// to the leaves that actually produce memory (Reference, Call, Init,
// Constant string literals) and marking them.
func visitValue(blk *flow.BasicBlock, idx int, v flow.Value, escape, isDestructor bool, track map[string]bool) {
	switch val := v.(type) {
	case *flow.Reference:
		if !escape {
			return
		}
		track[val.Name] = true
		blk.NameEscapes[val.Name] = append(blk.NameEscapes[val.Name], flow.EscapeSite{Step: idx, Type: val.Typ})
	case *flow.Call:
		visitCall(blk, idx, val, escape, isDestructor, track)
	case *flow.Init:
		if escape {
			val.Escapes = true
		}
		for _, a := range val.Args {
			visitValue(blk, idx, a, false, isDestructor, track)
		}
	case *flow.Constant:
		if rec, ok := val.Typ.(*types.Record); ok && rec.Name() == "str" {
			if escape {
				val.Escapes = true
			} else {
				val.Typ = &types.Ref{Over: rec}
			}
		}
	case *flow.Select:
		visitValue(blk, idx, val.Cond, false, isDestructor, track)
		visitValue(blk, idx, val.Left, escape, isDestructor, track)
		visitValue(blk, idx, val.Right, escape, isDestructor, track)
	case *flow.Math:
		visitValue(blk, idx, val.Left, false, isDestructor, track)
		visitValue(blk, idx, val.Right, false, isDestructor, track)
	case *flow.Compare:
		visitValue(blk, idx, val.Left, false, isDestructor, track)
		visitValue(blk, idx, val.Right, false, isDestructor, track)
	case *flow.GetAttr:
		visitValue(blk, idx, val.Obj, false, isDestructor, track)
	case *flow.GetItem:
		visitValue(blk, idx, val.Obj, false, isDestructor, track)
		visitValue(blk, idx, val.Key, false, isDestructor, track)
	}
}

// visitCall applies the callee-specific rules — the raw allocator, a
// destructor's own call to the deallocator, and constructor dispatch
// through __init__ — before falling through to the generic
// owner-formal rule that applies to every other argument, including
// the ones these special cases don't themselves consume. The
// destructor-freeing-self case is the only true early exit: every
// other call, however it starts, ends up in the generic loop below.
func visitCall(blk *flow.BasicBlock, idx int, call *flow.Call, escape, isDestructor bool, track map[string]bool) {
	start := 0
	switch {
	case call.Callee == "runa.malloc":
		if escape {
			call.Escapes = true
		}
	case call.Callee == "runa.free" && isDestructor:
		// Freeing self inside its own destructor never requires self to
		// survive past this statement.
		for _, a := range call.Args {
			visitValue(blk, idx, a, false, isDestructor, track)
		}
		return
	case strings.HasSuffix(call.Callee, ".__init__"):
		if len(call.Args) > 0 {
			visitValue(blk, idx, call.Args[0], escape, isDestructor, track)
			start = 1
		}
	}

	for i := start; i < len(call.Args); i++ {
		a := call.Args[i]
		argEscapes := false
		if i < len(call.Formal) {
			if _, owner := call.Formal[i].(*types.Owner); owner {
				argEscapes = true
			}
		}
		visitValue(blk, idx, a, argEscapes, isDestructor, track)
	}
}
