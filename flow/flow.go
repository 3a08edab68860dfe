// Package flow lowers a function's statement tree into a typed control
// flow graph of basic blocks with explicit terminators — the data
// model escape analysis and the IR emitter both consume. Expression
// lowering (the Value hierarchy: Constant/Reference/Call/Select/Math/
// Compare/GetAttr/GetItem, and the exact Not/And/Or-via-Select
// rewrites) is grounded on original_source/lang/flow.py's GraphBuilder.
// Block topology (If's pending-branch retargeting through a CondBranch
// terminator, auto-inserted void Returns, reachability pruning and the
// forward/reverse edge maps) is grounded on original_source/runac/
// blocks.py's FlowFinder and its module()-level CFG finalization —
// blocks.py's own While/For are marked obsolete in that source, so
// loop lowering instead follows flow.py's (working) GraphBuilder.While/
// For. The BasicBlock/Graph split and the Value/Step interface pair
// generalize go/ssa's Value/Instruction duality (ssa/ssa.go) to this
// simpler non-phi, named-binding form.
package flow

import (
	"github.com/runa-lang/runac/ast"
	"github.com/runa-lang/runac/diag"
	"github.com/runa-lang/runac/token"
	"github.com/runa-lang/runac/types"
)

// Value is any lowered expression result.
type Value interface {
	Pos() token.Pos
	Type() types.Type
	value()
}

// Step is one instruction pushed into a BasicBlock: either a value
// computed for effect, a name/attrib binding, a return, or a
// terminator. Terminators (Branch, CondBranch, Return) end a block;
// finalize appends a void Return to a block whose last Step is not one,
// but does not check the Steps before the last.
type Step interface {
	Pos() token.Pos
	step()
}

// ---- values -----------------------------------------------------------

type Constant struct {
	PosVal token.Pos
	Typ    types.Type
	Text   string
	// Escapes is set by escape analysis for a string literal that must
	// outlive the statement it's computed in; Runa's other literal
	// kinds are value types and never use this field.
	Escapes bool
}

func (c *Constant) Pos() token.Pos   { return c.PosVal }
func (c *Constant) Type() types.Type { return c.Typ }
func (c *Constant) value()           {}

type Argument struct {
	PosVal token.Pos
	Typ    types.Type
	Name   string
}

func (a *Argument) Pos() token.Pos   { return a.PosVal }
func (a *Argument) Type() types.Type { return a.Typ }
func (a *Argument) value()           {}

// Reference names a previously bound value by its name, so repeated
// uses of the same local don't alias one Value struct.
type Reference struct {
	PosVal token.Pos
	Typ    types.Type
	Name   string
}

func (r *Reference) Pos() token.Pos   { return r.PosVal }
func (r *Reference) Type() types.Type { return r.Typ }
func (r *Reference) value()           {}

// Call invokes a free function or a method (Callee carries the mangled
// "Type.method" form for the latter); Args[0] is the receiver for a
// method call.
type Call struct {
	PosVal token.Pos
	Typ    types.Type
	Callee string
	Args   []Value
	// Formal carries the callee's resolved parameter types, cached here
	// at construction time so escape analysis can find an owner-typed
	// formal without re-resolving Callee through the registry.
	Formal []types.Type
	// Escapes is set by escape analysis when this call allocates memory
	// that must survive past the current statement (runa.malloc).
	Escapes bool
}

func (c *Call) Pos() token.Pos   { return c.PosVal }
func (c *Call) Type() types.Type { return c.Typ }
func (c *Call) value()           {}

// Init constructs a new record instance.
type Init struct {
	PosVal token.Pos
	Typ    types.Type
	Args   []Value
	// Escapes is set by escape analysis when the constructed value
	// outlives the statement it's built in.
	Escapes bool
}

func (i *Init) Pos() token.Pos   { return i.PosVal }
func (i *Init) Type() types.Type { return i.Typ }
func (i *Init) value()           {}

// Select is the one decision-bearing Value: `Cond ? Left : Right`. It
// lowers ternary expressions directly and `not`/`and`/`or` as the
// boolean-algebra rewrites flow.py's GraphBuilder performs, so that
// short-circuit booleans never need a branch of their own.
type Select struct {
	PosVal             token.Pos
	Typ                types.Type
	Cond, Left, Right Value
}

func (s *Select) Pos() token.Pos   { return s.PosVal }
func (s *Select) Type() types.Type { return s.Typ }
func (s *Select) value()           {}

// Math is `left op right` for the arithmetic operators.
type Math struct {
	PosVal      token.Pos
	Typ         types.Type
	Op          ast.BinOp
	Left, Right Value
}

func (m *Math) Pos() token.Pos   { return m.PosVal }
func (m *Math) Type() types.Type { return m.Typ }
func (m *Math) value()           {}

// Compare is `left op right` for the comparison operators; Typ is
// always bool.
type Compare struct {
	PosVal      token.Pos
	Typ         types.Type
	Op          ast.BinOp
	Left, Right Value
}

func (c *Compare) Pos() token.Pos   { return c.PosVal }
func (c *Compare) Type() types.Type { return c.Typ }
func (c *Compare) value()           {}

// GetAttr reads a record field.
type GetAttr struct {
	PosVal token.Pos
	Typ    types.Type
	Obj    Value
	Key    string
}

func (g *GetAttr) Pos() token.Pos   { return g.PosVal }
func (g *GetAttr) Type() types.Type { return g.Typ }
func (g *GetAttr) value()           {}

// GetItem is `obj[key]`; its type is the return type of obj's first
// `__getitem__` overload.
type GetItem struct {
	PosVal token.Pos
	Typ    types.Type
	Obj    Value
	Key    Value
}

func (g *GetItem) Pos() token.Pos   { return g.PosVal }
func (g *GetItem) Type() types.Type { return g.Typ }
func (g *GetItem) value()           {}

// ---- steps --------------------------------------------------------------

type Assign struct {
	PosVal token.Pos
	Name   string
	Value  Value
}

func (a *Assign) Pos() token.Pos { return a.PosVal }
func (a *Assign) step()          {}

type SetAttr struct {
	PosVal token.Pos
	Obj    Value
	Key    string
	Value  Value
}

func (s *SetAttr) Pos() token.Pos { return s.PosVal }
func (s *SetAttr) step()          {}

// ExprStmt is a Value computed and discarded, e.g. a bare call.
type ExprStmt struct {
	PosVal token.Pos
	Value  Value
}

func (e *ExprStmt) Pos() token.Pos { return e.PosVal }
func (e *ExprStmt) step()          {}

// Return is a terminator; Value == nil means a void return.
type Return struct {
	PosVal token.Pos
	Value  Value
}

func (r *Return) Pos() token.Pos { return r.PosVal }
func (r *Return) step()          {}

// Branch is an unconditional terminator.
type Branch struct {
	PosVal token.Pos
	Target int
}

func (b *Branch) Pos() token.Pos { return b.PosVal }
func (b *Branch) step()          {}

// CondBranch is a two-way terminator.
type CondBranch struct {
	PosVal     token.Pos
	Cond       Value
	Then, Else int
}

func (c *CondBranch) Pos() token.Pos { return c.PosVal }
func (c *CondBranch) step()          {}

func isTerminator(s Step) bool {
	switch s.(type) {
	case *Return, *Branch, *CondBranch:
		return true
	default:
		return false
	}
}

// ---- blocks and graph -----------------------------------------------------

// EscapeSite records one place a tracked name's bound value was seen
// escaping, as escape analysis walks a function backward.
type EscapeSite struct {
	Step int
	Type types.Type
}

// BasicBlock is one straight-line run of Steps.
type BasicBlock struct {
	ID    int
	Named map[string]Value
	Preds []*BasicBlock // scope parents, wired at construction time
	Steps []Step
	// NameEscapes maps a locally-bound name to every site (by step
	// index within this block) escape analysis found it escaping from.
	// Populated by the escape package, not by Build.
	NameEscapes map[string][]EscapeSite
}

func newBlock(id int, preds []*BasicBlock) *BasicBlock {
	return &BasicBlock{ID: id, Named: map[string]Value{}, Preds: preds, NameEscapes: map[string][]EscapeSite{}}
}

func (b *BasicBlock) push(s Step) { b.Steps = append(b.Steps, s) }

// needBranch reports whether b still needs a terminator appended: true
// when b is empty or its last Step is not a Return, per blocks.py's
// Block.needbranch.
func (b *BasicBlock) needBranch() bool {
	if len(b.Steps) == 0 {
		return true
	}
	_, isReturn := b.Steps[len(b.Steps)-1].(*Return)
	return !isReturn
}

// Lookup resolves name by searching this block's own bindings, then
// its scope-parents depth-first — the same chained lookup as
// blocks.py's Block.__getitem__, guarded against the cycles a loop
// header/body pair introduces.
func (b *BasicBlock) Lookup(name string) (Value, bool) {
	return b.lookup(name, map[int]bool{})
}

func (b *BasicBlock) lookup(name string, seen map[int]bool) (Value, bool) {
	if seen[b.ID] {
		return nil, false
	}
	seen[b.ID] = true
	if v, ok := b.Named[name]; ok {
		return v, true
	}
	for _, p := range b.Preds {
		if v, ok := p.lookup(name, seen); ok {
			return v, true
		}
	}
	return nil, false
}

// Graph is a function's finished control flow graph: reachable blocks
// only, with forward and reverse edge maps and the set of blocks that
// terminate the function (Exits).
type Graph struct {
	Blocks map[int]*BasicBlock
	Order  []int // block IDs in construction order, for deterministic iteration
	Entry  int
	Edges  map[int][]int
	Redges map[int][]int
	Exits  map[int]bool
}

// ---- module-level context --------------------------------------------------

// FuncSig is a resolved function or method signature, built once for
// every declaration before any graph is constructed, so a Call can
// resolve a forward or mutually-recursive reference.
type FuncSig struct {
	IRName   string
	RType    types.Type
	ArgNames []string
	Formal   []types.Type
	External bool // a LIBRARY builtin with no Runa body to lower
}

func (f *FuncSig) asMethod() *types.Method {
	args := make([]types.MethodArg, len(f.Formal))
	for i, t := range f.Formal {
		args[i] = types.MethodArg{Name: f.ArgNames[i], Type: t}
	}
	return &types.Method{IRName: f.IRName, RType: f.RType, Args: args}
}

// ModuleContext is the cross-function state a Builder needs: the type
// registry, every function/method's resolved signature (possibly
// several overloads sharing a surface name), and top-level constant
// bindings.
type ModuleContext struct {
	Registry  *types.Registry
	Functions map[string][]*FuncSig
	Consts    map[string]Value
	// Intrinsics holds runa.malloc/runa.free, keyed by the name after
	// the "runa." prefix. Populated by callers from Intrinsics(reg);
	// left nil it simply makes runa.malloc/runa.free unresolvable,
	// which is fine for any unit that never references them.
	Intrinsics map[string]*FuncSig
}

// NewModuleContext builds an empty context around reg.
func NewModuleContext(reg *types.Registry) *ModuleContext {
	return &ModuleContext{Registry: reg, Functions: map[string][]*FuncSig{}, Consts: map[string]Value{}}
}

// AddFuncSig registers fn, appending to any existing overload set.
func (m *ModuleContext) AddFuncSig(fn *FuncSig) {
	name := baseName(fn.IRName)
	m.Functions[name] = append(m.Functions[name], fn)
}

func baseName(irName string) string {
	for i := len(irName) - 1; i >= 0; i-- {
		if irName[i] == '.' {
			return irName[i+1:]
		}
	}
	return irName
}

// BuildFuncSig resolves a free function's declared signature, the way
// flow.py's Function.fromnode does.
func BuildFuncSig(reg *types.Registry, fn *ast.Function) (*FuncSig, error) {
	rtype, err := reg.Get(fn.RType, nil)
	if err != nil {
		return nil, diag.Errorf(fn.Pos(), "%v", err)
	}
	names := make([]string, len(fn.Args))
	formal := make([]types.Type, len(fn.Args))
	for i, a := range fn.Args {
		t, err := reg.Get(a.Type, nil)
		if err != nil {
			return nil, diag.Errorf(a.PosVal, "%v", err)
		}
		names[i] = a.Name
		formal[i] = t
	}
	return &FuncSig{IRName: fn.Name, RType: rtype, ArgNames: names, Formal: formal}, nil
}

// BuildMethodSig resolves a method's signature given its already-typed
// receiver, mirroring flow.py's Function.frommethod including its
// `__init__` must-return-void check.
func BuildMethodSig(reg *types.Registry, recv types.Type, fn *ast.Function) (*FuncSig, error) {
	irName := recv.Name() + "." + fn.Name
	rtype, err := reg.Get(fn.RType, nil)
	if err != nil {
		return nil, diag.Errorf(fn.Pos(), "%v", err)
	}
	if fn.Name == "__init__" && rtype != types.Void {
		return nil, diag.Errorf(fn.Pos(), "__init__() method return type must be 'void'")
	}
	names := make([]string, len(fn.Args))
	formal := make([]types.Type, len(fn.Args))
	for i, a := range fn.Args {
		if i == 0 && a.Name == "self" {
			if fn.Name == "__del__" {
				formal[i] = &types.Owner{Over: recv}
			} else {
				formal[i] = &types.Ref{Over: recv}
			}
			names[i] = "self"
			continue
		}
		t, err := reg.Get(a.Type, nil)
		if err != nil {
			return nil, diag.Errorf(a.PosVal, "%v", err)
		}
		names[i] = a.Name
		formal[i] = t
	}
	return &FuncSig{IRName: irName, RType: rtype, ArgNames: names, Formal: formal}, nil
}

// Library returns the builtin runtime functions every module implicitly
// imports, grounded on original_source/lang/flow.py's LIBRARY table.
// Two of the original signatures (print/bool) were typed against
// IStr/IBool traits that never appeared in the retrieved source; this
// binds them directly to the concrete str/bool types instead, which is
// sufficient since no user-defined type can stand in for a literal
// argument here.
func Library(reg *types.Registry) map[string][]*FuncSig {
	get := func(name string) types.Type {
		t, ok := reg.Lookup(name)
		if !ok {
			panic("flow.Library: missing builtin type " + name)
		}
		return t
	}
	str, boolT, intT := get("str"), get("bool"), get("int")
	sig := func(irName string, rtype types.Type, argNames []string, formal []types.Type) *FuncSig {
		return &FuncSig{IRName: irName, RType: rtype, ArgNames: argNames, Formal: formal, External: true}
	}
	out := map[string][]*FuncSig{
		"print":   {sig("print", types.Void, []string{"s"}, []types.Type{str})},
		"str":     {sig("str", str, []string{"v"}, []types.Type{str})},
		"bool":    {sig("bool", boolT, []string{"v"}, []types.Type{boolT})},
		"range":   {sig("range", get("intiter"), []string{"start", "stop", "step"}, []types.Type{intT, intT, intT})},
		"open":    {sig("fopen", get("file"), []string{"fn"}, []types.Type{str})},
		"strtoi":  {sig("strtoi", intT, []string{"s"}, []types.Type{str})},
	}
	return out
}

// Intrinsics returns the two recognized runtime-provided symbols
// runa.malloc and runa.free: the raw allocator EscapeAnalysis and the
// backend treat specially, distinct from any user-callable function.
// malloc returns a uniquely-owned byte buffer; free consumes one.
func Intrinsics(reg *types.Registry) map[string]*FuncSig {
	intT, _ := reg.Lookup("int")
	byteT, _ := reg.Lookup("byte")
	ownedByte := &types.Owner{Over: byteT}
	return map[string]*FuncSig{
		"malloc": {IRName: "runa.malloc", RType: ownedByte, ArgNames: []string{"n"}, Formal: []types.Type{intT}, External: true},
		"free":   {IRName: "runa.free", RType: types.Void, ArgNames: []string{"p"}, Formal: []types.Type{ownedByte}, External: true},
	}
}

// RegisterRuntimeTypes adds the handful of record types the Library
// builtins are typed against (str/file/intiter) that have no surface
// declaration syntax of their own.
func RegisterRuntimeTypes(reg *types.Registry) {
	if _, ok := reg.Lookup("str"); !ok {
		reg.DefineOpaqueRecord("str", "%str")
	}
	if _, ok := reg.Lookup("file"); !ok {
		reg.DefineOpaqueRecord("file", "%file")
	}
	if _, ok := reg.Lookup("intiter"); !ok {
		rec := reg.DefineOpaqueRecord("intiter", "%intiter")
		intT, _ := reg.Lookup("int")
		rec.Methods["__next__"] = []*types.Method{{
			IRName: "intiter.__next__",
			RType:  intT,
			Args:   []types.MethodArg{{Name: "self", Type: &types.Ref{Over: rec}}},
		}}
	}
}

// EvalConstExpr resolves a top-level constant binding's right-hand side
// (§3's "interned constants (top-level literal bindings)") into the
// Value bound for it in every function's entry frame. Only literal
// forms are legal here; any other expression is rejected with a
// positioned error.
func EvalConstExpr(reg *types.Registry, e ast.Expr) (Value, error) {
	switch n := e.(type) {
	case *ast.Bool:
		boolT, _ := reg.Lookup("bool")
		text := "false"
		if n.Value {
			text = "true"
		}
		return &Constant{PosVal: n.PosVal, Typ: boolT, Text: text}, nil
	case *ast.Int:
		anyint, _ := reg.Lookup("anyint")
		return &Constant{PosVal: n.PosVal, Typ: anyint, Text: n.Value}, nil
	case *ast.Float:
		anyfloat, _ := reg.Lookup("anyfloat")
		return &Constant{PosVal: n.PosVal, Typ: anyfloat, Text: n.Value}, nil
	case *ast.String:
		strT, _ := reg.Lookup("str")
		return &Constant{PosVal: n.PosVal, Typ: strT, Text: n.Value}, nil
	default:
		return nil, diag.Errorf(e.Pos(), "top-level constant must be a literal, got %T", e)
	}
}

// ---- builder ---------------------------------------------------------------

// Builder lowers one function body into a Graph.
type Builder struct {
	mctx   *ModuleContext
	sig    *FuncSig
	blocks map[int]*BasicBlock
	order  []int
	cur    *BasicBlock
}

// Build lowers fn's body using sig (fn's own already-resolved
// signature, so argument names/types don't need re-resolving) into a
// finished, finalized Graph.
func Build(mctx *ModuleContext, fn *ast.Function, sig *FuncSig) (*Graph, error) {
	b := &Builder{mctx: mctx, sig: sig, blocks: map[int]*BasicBlock{}}
	entry := b.newBlockNoPreds()
	for i, name := range sig.ArgNames {
		entry.Named[name] = &Argument{PosVal: fn.Pos(), Typ: sig.Formal[i], Name: name}
	}
	for name, v := range mctx.Consts {
		entry.Named[name] = v
	}
	b.cur = entry

	if err := b.visitSuite(fn.Body); err != nil {
		return nil, err
	}
	return finalize(b.blocks, b.order, entry.ID)
}

func (b *Builder) newBlockNoPreds() *BasicBlock { return b.allocBlock(nil) }

// allocBlock registers a fresh block with the given scope-parents. It
// does not change b.cur; callers move b.cur explicitly, the way
// blocks.py's FlowGraph.block leaves the caller in control of `self.cur`.
func (b *Builder) allocBlock(preds []*BasicBlock) *BasicBlock {
	id := len(b.blocks)
	blk := newBlock(id, preds)
	b.blocks[id] = blk
	b.order = append(b.order, id)
	return blk
}

func (b *Builder) push(s Step) { b.cur.push(s) }

// boolean wraps val in a call to the `bool` builtin unless it's
// already bool-typed, matching GraphBuilder.boolean.
func (b *Builder) boolean(val Value) Value {
	if bt, ok := b.mctx.Registry.Lookup("bool"); ok && val.Type() == bt {
		return val
	}
	sigs := b.mctx.Functions["bool"]
	if len(sigs) == 0 {
		return val
	}
	s := sigs[0]
	return &Call{PosVal: val.Pos(), Typ: s.RType, Callee: s.IRName, Args: []Value{val}, Formal: s.Formal}
}

// pinToReturnType fixes an un-pinned anyint/anyfloat literal (or an
// arithmetic/ternary result that still carries the marker, having been
// built from nothing but literals) to the function's declared return
// type — the "use site" §3 says a generic literal is unified against.
// Anything else is checked for ordinary return-type compatibility.
func (b *Builder) pinToReturnType(v Value, pos token.Pos) (Value, error) {
	target := b.sig.RType
	if !types.Compat(v.Type(), target, false) {
		return nil, diag.Errorf(pos, "cannot return %q as %q", v.Type().Name(), target.Name())
	}
	if types.IsGenericLiteral(v.Type()) {
		pin(v, target)
	}
	return v, nil
}

// pin overwrites v's own type in place. Only ever called on a value
// whose current type is an un-pinned anyint/anyfloat marker, so this
// never disturbs a value that's already concrete.
func pin(v Value, target types.Type) {
	switch n := v.(type) {
	case *Constant:
		n.Typ = target
	case *Reference:
		n.Typ = target
	case *Argument:
		n.Typ = target
	case *Call:
		n.Typ = target
	case *Init:
		n.Typ = target
	case *Select:
		n.Typ = target
	case *Math:
		n.Typ = target
	case *Compare:
		n.Typ = target
	case *GetAttr:
		n.Typ = target
	case *GetItem:
		n.Typ = target
	}
}

// ---- statements -------------------------------------------------------

func (b *Builder) visitSuite(s *ast.Suite) error {
	for _, stmt := range s.Stmts {
		if err := b.visitStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) visitStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.ExprStmt:
		v, err := b.visitExpr(n.X)
		if err != nil {
			return err
		}
		b.push(&ExprStmt{PosVal: n.PosVal, Value: v})
		return nil
	case *ast.Assign:
		return b.visitAssign(n)
	case *ast.Return:
		var v Value
		if n.Value != nil {
			var err error
			v, err = b.visitExpr(n.Value)
			if err != nil {
				return err
			}
			v, err = b.pinToReturnType(v, n.PosVal)
			if err != nil {
				return err
			}
		}
		b.push(&Return{PosVal: n.PosVal, Value: v})
		return nil
	case *ast.If:
		return b.visitIf(n)
	case *ast.While:
		return b.visitWhile(n)
	case *ast.For:
		return b.visitFor(n)
	case *ast.Suite:
		return b.visitSuite(n)
	default:
		return diag.Errorf(s.Pos(), "flow: unhandled statement %T", s)
	}
}

func (b *Builder) visitAssign(n *ast.Assign) error {
	val, err := b.visitExpr(n.Right)
	if err != nil {
		return err
	}
	if at, ok := n.Left.(*ast.Attrib); ok {
		obj, err := b.visitExpr(at.Obj)
		if err != nil {
			return err
		}
		rec, ok := types.Unwrap(obj.Type()).(*types.Record)
		if !ok {
			return diag.Errorf(n.PosVal, "%s has no attributes", obj.Type().Name())
		}
		if _, ok := rec.Attribs[at.Attrib]; !ok {
			return diag.Errorf(n.PosVal, "%s has no attribute %q", rec.Name(), at.Attrib)
		}
		b.push(&SetAttr{PosVal: n.PosVal, Obj: obj, Key: at.Attrib, Value: val})
		return nil
	}
	name, ok := n.Left.(*ast.Name)
	if !ok {
		return diag.Errorf(n.Pos(), "invalid assignment target")
	}
	b.cur.Named[name.Name] = val
	b.push(&Assign{PosVal: n.PosVal, Name: name.Name, Value: val})
	return nil
}

// setCondTarget fixes up the pending CondBranch terminator at the end
// of blk: thenSlot selects whether the Then or Else arm is filled.
func setCondTarget(blk *BasicBlock, target int, thenSlot bool) {
	cb := blk.Steps[len(blk.Steps)-1].(*CondBranch)
	if thenSlot {
		cb.Then = target
	} else {
		cb.Else = target
	}
}

// visitIf lowers an if/elif*/else? chain by threading a pending
// CondBranch through each arm and retargeting it once the next arm's
// block (or the final exit block) is known, following blocks.py's
// FlowFinder.If exactly (prevcond/exits bookkeeping).
func (b *Builder) visitIf(n *ast.If) error {
	origCur := b.cur
	var prevCond *BasicBlock
	var exiting []*BasicBlock

	for i, arm := range n.Arms {
		var cond Value
		if arm.Cond != nil {
			v, err := b.visitExpr(arm.Cond)
			if err != nil {
				return err
			}
			cond = b.boolean(v)
		}

		if i > 0 && arm.Cond != nil {
			condBlock := b.allocBlock([]*BasicBlock{prevCond})
			setCondTarget(prevCond, condBlock.ID, false)
			condBlock.push(&CondBranch{PosVal: arm.Cond.Pos(), Cond: cond, Then: -1, Else: -1})
			prevCond = condBlock
		}

		var suitePred *BasicBlock
		if i == 0 {
			suitePred = origCur
		} else {
			suitePred = prevCond
		}
		suiteBlock := b.allocBlock([]*BasicBlock{suitePred})
		if i > 0 && arm.Cond != nil {
			setCondTarget(prevCond, suiteBlock.ID, true)
		}

		if i == 0 {
			origCur.push(&CondBranch{PosVal: n.PosVal, Cond: cond, Then: suiteBlock.ID, Else: -1})
			prevCond = origCur
		} else if arm.Cond == nil {
			setCondTarget(prevCond, suiteBlock.ID, false)
			prevCond = nil
		}

		b.cur = suiteBlock
		if err := b.visitSuite(arm.Suite); err != nil {
			return err
		}
		if b.cur.needBranch() {
			exiting = append(exiting, b.cur)
		}
	}

	exit := b.allocBlock(exiting)
	if prevCond != nil {
		setCondTarget(prevCond, exit.ID, false)
	}
	b.cur = exit
	for _, blk := range exiting {
		blk.push(&Branch{PosVal: n.PosVal, Target: exit.ID})
	}
	return nil
}

func (b *Builder) visitWhile(n *ast.While) error {
	start := b.cur
	header := b.allocBlock([]*BasicBlock{start})
	headerID := header.ID
	b.cur = header
	cv, err := b.visitExpr(n.Cond)
	if err != nil {
		return err
	}
	cond := b.boolean(cv)

	body := b.allocBlock([]*BasicBlock{header})
	b.cur = body
	if err := b.visitSuite(n.Suite); err != nil {
		return err
	}
	bodyTail := b.cur

	exit := b.allocBlock([]*BasicBlock{header, bodyTail})

	start.push(&Branch{PosVal: n.PosVal, Target: headerID})
	header.push(&CondBranch{PosVal: n.PosVal, Cond: cond, Then: body.ID, Else: exit.ID})
	if bodyTail.needBranch() {
		bodyTail.push(&Branch{PosVal: n.PosVal, Target: headerID})
	}
	b.cur = exit
	return nil
}

// visitFor lowers `for lvar in source: suite` by calling source's
// `__next__` method once per header entry and rebinding lvar to the
// result, following flow.py's GraphBuilder.For.
func (b *Builder) visitFor(n *ast.For) error {
	start := b.cur
	source, err := b.visitExpr(n.Source)
	if err != nil {
		return err
	}
	start.push(&Assign{PosVal: n.PosVal, Name: "loop.source", Value: source})
	start.Named["loop.source"] = source

	header := b.allocBlock([]*BasicBlock{start})
	headerID := header.ID
	b.cur = header
	start.push(&Branch{PosVal: n.PosVal, Target: headerID})

	srcType := types.Unwrap(source.Type())
	overloads := types.Overloads(srcType, "__next__")
	if len(overloads) == 0 {
		return diag.Errorf(n.Pos(), "%s has no __next__ method to iterate with", source.Type().Name())
	}
	next := overloads[0]
	iterRef := &Reference{PosVal: n.PosVal, Typ: source.Type(), Name: "loop.source"}
	val := &Call{PosVal: n.PosVal, Typ: next.RType, Callee: next.IRName, Args: []Value{iterRef}, Formal: next.Formal()}
	header.Named[n.LVar] = val
	header.push(&Assign{PosVal: n.PosVal, Name: n.LVar, Value: val})

	body := b.allocBlock([]*BasicBlock{header})
	b.cur = body
	if err := b.visitSuite(n.Suite); err != nil {
		return err
	}
	bodyTail := b.cur

	exit := b.allocBlock([]*BasicBlock{header, bodyTail})

	lvarRef, _ := header.Lookup(n.LVar)
	header.push(&CondBranch{PosVal: n.PosVal, Cond: b.boolean(lvarRef), Then: body.ID, Else: exit.ID})
	if bodyTail.needBranch() {
		bodyTail.push(&Branch{PosVal: n.PosVal, Target: headerID})
	}
	b.cur = exit
	return nil
}

// ---- expressions --------------------------------------------------------

func (b *Builder) visitExpr(e ast.Expr) (Value, error) {
	switch n := e.(type) {
	case *ast.Bool:
		boolT, _ := b.mctx.Registry.Lookup("bool")
		text := "false"
		if n.Value {
			text = "true"
		}
		return &Constant{PosVal: n.PosVal, Typ: boolT, Text: text}, nil
	case *ast.Int:
		anyint, _ := b.mctx.Registry.Lookup("anyint")
		return &Constant{PosVal: n.PosVal, Typ: anyint, Text: n.Value}, nil
	case *ast.Float:
		anyfloat, _ := b.mctx.Registry.Lookup("anyfloat")
		return &Constant{PosVal: n.PosVal, Typ: anyfloat, Text: n.Value}, nil
	case *ast.String:
		strT, _ := b.mctx.Registry.Lookup("str")
		return &Constant{PosVal: n.PosVal, Typ: strT, Text: n.Value}, nil
	case *ast.Name:
		v, ok := b.cur.Lookup(n.Name)
		if !ok {
			return nil, diag.Errorf(n.PosVal, "undefined name %q", n.Name)
		}
		return &Reference{PosVal: n.PosVal, Typ: v.Type(), Name: n.Name}, nil
	case *ast.Not:
		return b.visitNot(n)
	case *ast.And:
		return b.visitAnd(n)
	case *ast.Or:
		return b.visitOr(n)
	case *ast.Binary:
		if n.Op.IsCompare() {
			return b.visitCompare(n)
		}
		return b.visitMath(n)
	case *ast.Ternary:
		return b.visitTernary(n)
	case *ast.Elem:
		return b.visitElem(n)
	case *ast.Attrib:
		return b.visitAttrib(n)
	case *ast.Call:
		return b.visitCall(n)
	default:
		return nil, diag.Errorf(e.Pos(), "flow: unhandled expression %T", e)
	}
}

func (b *Builder) visitNot(n *ast.Not) (Value, error) {
	v, err := b.visitExpr(n.X)
	if err != nil {
		return nil, err
	}
	cond := b.boolean(v)
	boolT, _ := b.mctx.Registry.Lookup("bool")
	t := &Constant{PosVal: n.PosVal, Typ: boolT, Text: "true"}
	f := &Constant{PosVal: n.PosVal, Typ: boolT, Text: "false"}
	return &Select{PosVal: n.PosVal, Typ: boolT, Cond: cond, Left: f, Right: t}, nil
}

func (b *Builder) visitAnd(n *ast.And) (Value, error) {
	left, err := b.visitExpr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.visitExpr(n.Right)
	if err != nil {
		return nil, err
	}
	cond := b.boolean(left)
	if sameType(left.Type(), right.Type()) {
		return &Select{PosVal: n.PosVal, Typ: left.Type(), Cond: cond, Left: right, Right: left}, nil
	}
	boolT, _ := b.mctx.Registry.Lookup("bool")
	return &Select{PosVal: n.PosVal, Typ: boolT, Cond: cond, Left: b.boolean(right), Right: cond}, nil
}

func (b *Builder) visitOr(n *ast.Or) (Value, error) {
	left, err := b.visitExpr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.visitExpr(n.Right)
	if err != nil {
		return nil, err
	}
	cond := b.boolean(left)
	if sameType(left.Type(), right.Type()) {
		return &Select{PosVal: n.PosVal, Typ: left.Type(), Cond: cond, Left: left, Right: right}, nil
	}
	boolT, _ := b.mctx.Registry.Lookup("bool")
	return &Select{PosVal: n.PosVal, Typ: boolT, Cond: cond, Left: cond, Right: b.boolean(right)}, nil
}

func sameType(a, b types.Type) bool { return a.Name() == b.Name() }

// unify pins an un-pinned anyint/anyfloat operand to the other
// operand's concrete type when the literal is compatible with it, so
// `x == 0` with x: int compares two ints.
func unify(left, right Value) {
	lt, rt := left.Type(), right.Type()
	switch {
	case types.IsGenericLiteral(lt) && !types.IsGenericLiteral(rt) && types.Compat(lt, rt, false):
		pin(left, rt)
	case types.IsGenericLiteral(rt) && !types.IsGenericLiteral(lt) && types.Compat(rt, lt, false):
		pin(right, lt)
	}
}

func (b *Builder) visitMath(n *ast.Binary) (Value, error) {
	left, err := b.visitExpr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.visitExpr(n.Right)
	if err != nil {
		return nil, err
	}
	unify(left, right)
	if !sameType(left.Type(), right.Type()) {
		return nil, diag.Errorf(n.PosVal, "unmatched types %q, %q", left.Type().Name(), right.Type().Name())
	}
	return &Math{PosVal: n.PosVal, Typ: left.Type(), Op: n.Op, Left: left, Right: right}, nil
}

func (b *Builder) visitCompare(n *ast.Binary) (Value, error) {
	left, err := b.visitExpr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.visitExpr(n.Right)
	if err != nil {
		return nil, err
	}
	unify(left, right)
	if !sameType(left.Type(), right.Type()) {
		return nil, diag.Errorf(n.PosVal, "unmatched types %q, %q", left.Type().Name(), right.Type().Name())
	}
	boolT, _ := b.mctx.Registry.Lookup("bool")
	return &Compare{PosVal: n.PosVal, Typ: boolT, Op: n.Op, Left: left, Right: right}, nil
}

func (b *Builder) visitTernary(n *ast.Ternary) (Value, error) {
	left, err := b.visitExpr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.visitExpr(n.Right)
	if err != nil {
		return nil, err
	}
	if !sameType(left.Type(), right.Type()) {
		return nil, diag.Errorf(n.PosVal, "unmatched types %q, %q", left.Type().Name(), right.Type().Name())
	}
	cv, err := b.visitExpr(n.Cond)
	if err != nil {
		return nil, err
	}
	cond := b.boolean(cv)
	return &Select{PosVal: n.PosVal, Typ: left.Type(), Cond: cond, Left: left, Right: right}, nil
}

func (b *Builder) visitElem(n *ast.Elem) (Value, error) {
	obj, err := b.visitExpr(n.Obj)
	if err != nil {
		return nil, err
	}
	key, err := b.visitExpr(n.Key)
	if err != nil {
		return nil, err
	}
	overloads := types.Overloads(types.Unwrap(obj.Type()), "__getitem__")
	if len(overloads) == 0 {
		return nil, diag.Errorf(n.PosVal, "%s has no __getitem__ method", obj.Type().Name())
	}
	m := overloads[0]
	return &GetItem{PosVal: n.PosVal, Typ: m.RType, Obj: obj, Key: key}, nil
}

func (b *Builder) visitAttrib(n *ast.Attrib) (Value, error) {
	obj, err := b.visitExpr(n.Obj)
	if err != nil {
		return nil, err
	}
	rec, ok := types.Unwrap(obj.Type()).(*types.Record)
	if !ok {
		return nil, diag.Errorf(n.PosVal, "%s has no attributes", obj.Type().Name())
	}
	field, ok := rec.Attribs[n.Attrib]
	if !ok {
		return nil, diag.Errorf(n.PosVal, "%s has no attribute %q", rec.Name(), n.Attrib)
	}
	return &GetAttr{PosVal: n.PosVal, Typ: field.Type, Obj: obj, Key: n.Attrib}, nil
}

func (b *Builder) visitCall(n *ast.Call) (Value, error) {
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := b.visitExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if at, ok := n.Callee.(*ast.Attrib); ok {
		if nm, isName := at.Obj.(*ast.Name); isName && nm.Name == "runa" {
			if _, bound := b.cur.Lookup("runa"); !bound {
				return b.visitIntrinsicCall(n, at.Attrib, args)
			}
		}
		obj, err := b.visitExpr(at.Obj)
		if err != nil {
			return nil, err
		}
		rec, ok := types.Unwrap(obj.Type()).(*types.Record)
		if !ok {
			return nil, diag.Errorf(n.PosVal, "%s has no methods", obj.Type().Name())
		}
		candidates := rec.Methods[at.Attrib]
		if at.Attrib == "__init__" {
			candidates = append(append([]*types.Method{}, candidates...), rec.Methods["__new__"]...)
		}
		if len(candidates) == 0 {
			return nil, diag.Errorf(n.PosVal, "%s has no method %q", rec.Name(), at.Attrib)
		}
		callArgs := append([]Value{obj}, args...)
		actual := make([]types.Type, len(callArgs))
		for i, a := range callArgs {
			actual[i] = a.Type()
		}
		picked, err := types.Select(candidates, actual)
		if err != nil {
			return nil, diag.Errorf(n.PosVal, "%s.%s: %v", rec.Name(), at.Attrib, err)
		}
		return &Call{PosVal: n.PosVal, Typ: picked.RType, Callee: picked.IRName, Args: callArgs, Formal: picked.Formal()}, nil
	}

	name, ok := n.Callee.(*ast.Name)
	if !ok {
		return nil, diag.Errorf(n.PosVal, "not a function or method")
	}

	if sigs, ok := b.mctx.Functions[name.Name]; ok {
		actual := make([]types.Type, len(args))
		for i, a := range args {
			actual[i] = a.Type()
		}
		var candidates []*types.Method
		for _, s := range sigs {
			candidates = append(candidates, s.asMethod())
		}
		picked, err := types.Select(candidates, actual)
		if err != nil {
			return nil, diag.Errorf(n.PosVal, "%s: %v", name.Name, err)
		}
		return &Call{PosVal: n.PosVal, Typ: picked.RType, Callee: picked.IRName, Args: args, Formal: picked.Formal()}, nil
	}

	if t, ok := b.mctx.Registry.Lookup(name.Name); ok {
		if rec, isRecord := t.(*types.Record); isRecord {
			if initOverloads := rec.Methods["__init__"]; len(initOverloads) > 0 {
				actual := make([]types.Type, 0, len(args)+1)
				actual = append(actual, &types.Ref{Over: rec})
				for _, a := range args {
					actual = append(actual, a.Type())
				}
				if _, err := types.Select(initOverloads, actual); err != nil {
					return nil, diag.Errorf(n.PosVal, "%s(): %v", rec.Name(), err)
				}
			}
			return &Init{PosVal: n.PosVal, Typ: t, Args: args}, nil
		}
	}

	return nil, diag.Errorf(n.PosVal, "not a function or method")
}

// visitIntrinsicCall resolves a call through the synthetic `runa`
// namespace (runa.malloc, runa.free) against the module's Intrinsics
// table, bypassing ordinary name/method resolution since "runa" is
// never a bound value.
func (b *Builder) visitIntrinsicCall(n *ast.Call, name string, args []Value) (Value, error) {
	sig, ok := b.mctx.Intrinsics[name]
	if !ok {
		return nil, diag.Errorf(n.PosVal, "unknown runtime intrinsic runa.%s", name)
	}
	actual := make([]types.Type, len(args))
	for i, a := range args {
		actual[i] = a.Type()
	}
	if _, err := types.Select([]*types.Method{sig.asMethod()}, actual); err != nil {
		return nil, diag.Errorf(n.PosVal, "runa.%s: %v", name, err)
	}
	return &Call{PosVal: n.PosVal, Typ: sig.RType, Callee: sig.IRName, Args: args, Formal: sig.Formal}, nil
}

// ---- finalization -----------------------------------------------------

// finalize pads every empty or non-terminated block with an implicit
// void Return, computes forward/reverse edges from each block's
// terminator, prunes blocks unreachable from entry, and records the
// set of blocks that actually exit the function — exactly
// blocks.py's module()-level CFG cleanup.
func finalize(blocks map[int]*BasicBlock, order []int, entry int) (*Graph, error) {
	edges := map[int][]int{}
	for _, id := range order {
		blk := blocks[id]
		if len(blk.Steps) == 0 {
			blk.push(&Return{PosVal: token.NoPos})
			continue
		}
		last := blk.Steps[len(blk.Steps)-1]
		switch t := last.(type) {
		case *Branch:
			edges[id] = []int{t.Target}
		case *CondBranch:
			edges[id] = []int{t.Then, t.Else}
		case *Return:
			// terminal; no outgoing edges
		default:
			blk.push(&Return{PosVal: token.NoPos})
		}
	}

	reachable := map[int]bool{}
	exits := map[int]bool{}
	var walk func(id int)
	walk = func(id int) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		next := edges[id]
		if len(next) == 0 {
			exits[id] = true
			return
		}
		for _, n := range next {
			walk(n)
		}
	}
	walk(entry)

	for id := range blocks {
		if !reachable[id] {
			delete(blocks, id)
			delete(edges, id)
		}
	}
	var prunedOrder []int
	for _, id := range order {
		if reachable[id] {
			prunedOrder = append(prunedOrder, id)
		}
	}

	redges := map[int][]int{}
	for src, dsts := range edges {
		for _, dst := range dsts {
			redges[dst] = append(redges[dst], src)
		}
	}

	return &Graph{
		Blocks: blocks,
		Order:  prunedOrder,
		Entry:  entry,
		Edges:  edges,
		Redges: redges,
		Exits:  exits,
	}, nil
}
