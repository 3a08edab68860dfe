// Package irgen renders a function's finished, escape-annotated
// control flow graph as textual LLVM-style IR — the one core-adjacent
// stage §5 permits to run concurrently, since by the time it runs a
// function's Graph is frozen and read-only. Per-value formatting is
// grounded on ssa/print.go's String() methods; the concurrent-emit
// driver is grounded on SPEC_FULL.md's DOMAIN STACK note pairing
// golang.org/x/sync's errgroup and semaphore the way a bounded worker
// pool elsewhere in the pack would.
package irgen

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/runa-lang/runac/flow"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Function is one lowered, escape-annotated function ready for
// emission.
type Function struct {
	Name  string // mangled IR name, e.g. "f" or "Point.norm"
	Sig   *flow.FuncSig
	Graph *flow.Graph
}

// Emit renders every entry in funcs to textual IR concurrently,
// bounded by a semaphore sized to the host's CPU count, then joins
// the results in funcs' original order so output is deterministic
// regardless of completion order.
func Emit(ctx context.Context, funcs []Function) (string, error) {
	bodies := make([]string, len(funcs))
	sem := semaphore.NewWeighted(int64(maxWorkers()))
	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range funcs {
		i, fn := i, fn
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			bodies[i] = emitFunction(fn)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, b := range bodies {
		buf.WriteString(b)
	}
	return buf.String(), nil
}

func maxWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// SortedNames returns the keys of a name->Graph map in deterministic
// order, so a driver assembling a []Function for Emit gets the same
// textual output on every run.
func SortedNames(graphs map[string]*flow.Graph) []string {
	names := make([]string, 0, len(graphs))
	for n := range graphs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// emitFunction renders one function: a `define` header, one labeled
// block per flow.BasicBlock in construction order, one IR line per
// Step.
func emitFunction(fn Function) string {
	e := &emitter{names: map[string]string{}}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "define %s @%s(%s) {\n", fn.Sig.RType.IR(), fn.Name, paramList(fn.Sig))
	for _, id := range fn.Graph.Order {
		blk := fn.Graph.Blocks[id]
		fmt.Fprintf(&buf, "bb%d:\n", blk.ID)
		for _, s := range blk.Steps {
			e.step(&buf, s)
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}

func paramList(sig *flow.FuncSig) string {
	parts := make([]string, len(sig.ArgNames))
	for i, name := range sig.ArgNames {
		parts[i] = fmt.Sprintf("%s %%%s", sig.Formal[i].IR(), name)
	}
	return strings.Join(parts, ", ")
}

// emitter tracks which register text a locally-bound name currently
// resolves to, so a Reference after an Assign prints the value it was
// bound to instead of re-deriving it.
type emitter struct {
	names map[string]string
}

func (e *emitter) step(buf *bytes.Buffer, s flow.Step) {
	switch st := s.(type) {
	case *flow.Assign:
		e.names[st.Name] = e.operand(st.Value)
	case *flow.SetAttr:
		fmt.Fprintf(buf, "  store %s, %s.%s\n", e.operand(st.Value), e.operand(st.Obj), st.Key)
	case *flow.ExprStmt:
		fmt.Fprintf(buf, "  %s\n", e.operand(st.Value))
	case *flow.Return:
		if st.Value == nil {
			buf.WriteString("  ret void\n")
			return
		}
		fmt.Fprintf(buf, "  ret %s %s\n", st.Value.Type().IR(), e.operand(st.Value))
	case *flow.Branch:
		fmt.Fprintf(buf, "  br label %%bb%d\n", st.Target)
	case *flow.CondBranch:
		fmt.Fprintf(buf, "  br i1 %s, label %%bb%d, label %%bb%d\n", e.operand(st.Cond), st.Then, st.Else)
	default:
		fmt.Fprintf(buf, "  ; unrecognized step %T\n", s)
	}
}

// operand lowers v to the text used wherever it appears as an
// argument or a return value: a name already bound by an earlier
// Assign resolves to whatever that Assign computed; everything else
// is rendered inline.
func (e *emitter) operand(v flow.Value) string {
	switch val := v.(type) {
	case *flow.Reference:
		if bound, ok := e.names[val.Name]; ok {
			return bound
		}
		return "%" + val.Name
	case *flow.Argument:
		return "%" + val.Name
	case *flow.Constant:
		return val.Text
	case *flow.Call:
		args := make([]string, len(val.Args))
		for i, a := range val.Args {
			args[i] = e.operand(a)
		}
		return fmt.Sprintf("call %s @%s(%s)%s", val.Typ.IR(), val.Callee, strings.Join(args, ", "), escapeNote(val.Escapes))
	case *flow.Init:
		return fmt.Sprintf("alloc %s%s", val.Typ.IR(), escapeNote(val.Escapes))
	case *flow.Select:
		return fmt.Sprintf("select %s, %s, %s", e.operand(val.Cond), e.operand(val.Left), e.operand(val.Right))
	case *flow.Math:
		return fmt.Sprintf("%s %s, %s", val.Op, e.operand(val.Left), e.operand(val.Right))
	case *flow.Compare:
		return fmt.Sprintf("icmp %s %s, %s", val.Op, e.operand(val.Left), e.operand(val.Right))
	case *flow.GetAttr:
		return fmt.Sprintf("%s.%s", e.operand(val.Obj), val.Key)
	case *flow.GetItem:
		return fmt.Sprintf("%s[%s]", e.operand(val.Obj), e.operand(val.Key))
	default:
		return fmt.Sprintf("<unknown %T>", v)
	}
}

func escapeNote(escapes bool) string {
	if escapes {
		return " ; escapes"
	}
	return ""
}
