// Package ast defines the tree produced by the parser and consumed by the
// type resolver and flow builder (§6.1 of the compiler's interface
// contract). Every node kind is a concrete struct; Node is a closed
// interface implemented only by the kinds declared in this file (its
// marker methods are unexported). The downstream type switches return
// an error from their default case for a kind they do not handle (see
// SPEC_FULL.md's note on Dynamic dispatch of visitor methods).
package ast

import "github.com/runa-lang/runac/token"

// Node is implemented by every statement, expression and type-reference
// node. Pos reports where the node began in the source.
type Node interface {
	Pos() token.Pos
	node()
}

// Stmt is a statement-level node.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression-level node.
type Expr interface {
	Node
	expr()
}

// TypeExpr is a syntactic type reference, as it appears in source before
// the type resolver turns it into a types.Type (§4.1's Get).
type TypeExpr interface {
	Node
	typeExpr()
}

// ---- top level ----------------------------------------------------------

// Module is the root of a parsed compilation unit.
type Module struct {
	Suite []Stmt
}

func (m *Module) Pos() token.Pos { return token.NoPos }
func (m *Module) node()          {}

// ---- statements -----------------------------------------------------------

// Function declares a free function or a method (Recv != nil).
type Function struct {
	PosVal   token.Pos
	Name     string
	TypeArgs []string // template parameters, if any
	Recv     *TypeExpr
	Args     []*Arg
	RType    TypeExpr // nil => void
	Body     *Suite
	IRName   string // set by types.Registry.Fill for class methods
}

func (f *Function) Pos() token.Pos { return f.PosVal }
func (f *Function) node()          {}
func (f *Function) stmt()          {}

// Arg is one formal parameter of a Function.
type Arg struct {
	PosVal token.Pos
	Name   string
	Type   TypeExpr
}

// AttribDecl is one field declaration inside a Class.
type AttribDecl struct {
	PosVal token.Pos
	Name   string
	Type   TypeExpr
}

// Class declares a nominal record type, optionally parameterized.
type Class struct {
	PosVal   token.Pos
	Name     string
	Params   []string // template type parameters
	Attribs  []*AttribDecl
	Methods  []*Function
}

func (c *Class) Pos() token.Pos { return c.PosVal }
func (c *Class) node()          {}
func (c *Class) stmt()          {}

// TraitMethod is one method signature inside a Trait declaration.
type TraitMethod struct {
	PosVal token.Pos
	Name   string
	Args   []*Arg
	RType  TypeExpr
}

// Trait declares a nominal interface: an unordered method signature set.
type Trait struct {
	PosVal  token.Pos
	Name    string
	Methods []*TraitMethod
}

func (t *Trait) Pos() token.Pos { return t.PosVal }
func (t *Trait) node()          {}
func (t *Trait) stmt()          {}

// ConstAssign is a top-level constant binding: `name = literal`.
type ConstAssign struct {
	PosVal token.Pos
	Name   string
	Value  Expr
}

func (c *ConstAssign) Pos() token.Pos { return c.PosVal }
func (c *ConstAssign) node()          {}
func (c *ConstAssign) stmt()          {}

// RelImport is a `from base import names...` relative import.
type RelImport struct {
	PosVal token.Pos
	Base   Expr // Name or Attrib chain
	Names  []string
}

func (r *RelImport) Pos() token.Pos { return r.PosVal }
func (r *RelImport) node()          {}
func (r *RelImport) stmt()          {}

// Suite is an ordered block of statements (a function or method body, or
// one arm of an if/while/for).
type Suite struct {
	PosVal token.Pos
	Stmts  []Stmt
}

func (s *Suite) Pos() token.Pos { return s.PosVal }
func (s *Suite) node()          {}
func (s *Suite) stmt()          {}

// ExprStmt wraps an expression evaluated for effect (typically a Call).
type ExprStmt struct {
	PosVal token.Pos
	X      Expr
}

func (e *ExprStmt) Pos() token.Pos { return e.PosVal }
func (e *ExprStmt) node()          {}
func (e *ExprStmt) stmt()          {}

// Assign is `left = right`; Left is either a Name or an Attrib.
type Assign struct {
	PosVal token.Pos
	Left   Expr
	Right  Expr
}

func (a *Assign) Pos() token.Pos { return a.PosVal }
func (a *Assign) node()          {}
func (a *Assign) stmt()          {}

// Return is `return expr` or a bare `return`.
type Return struct {
	PosVal token.Pos
	Value  Expr // nil => void return
}

func (r *Return) Pos() token.Pos { return r.PosVal }
func (r *Return) node()          {}
func (r *Return) stmt()          {}

// CondArm is one `if`/`elif` arm, or the trailing `else` (Cond == nil).
type CondArm struct {
	Cond  Expr
	Suite *Suite
}

// If is an if/elif*/else? chain, lowered per §4.2.
type If struct {
	PosVal token.Pos
	Arms   []CondArm
}

func (i *If) Pos() token.Pos { return i.PosVal }
func (i *If) node()          {}
func (i *If) stmt()          {}

// While is a `while cond: suite` loop.
type While struct {
	PosVal token.Pos
	Cond   Expr
	Suite  *Suite
}

func (w *While) Pos() token.Pos { return w.PosVal }
func (w *While) node()          {}
func (w *While) stmt()          {}

// For is a `for lvar in source: suite` loop.
type For struct {
	PosVal token.Pos
	LVar   string
	Source Expr
	Suite  *Suite
}

func (f *For) Pos() token.Pos { return f.PosVal }
func (f *For) node()          {}
func (f *For) stmt()          {}

// ---- expressions ------------------------------------------------------

// Bool, Int, Float and String are literal constants.
type Bool struct {
	PosVal token.Pos
	Value  bool
}

func (n *Bool) Pos() token.Pos { return n.PosVal }
func (n *Bool) node()          {}
func (n *Bool) expr()          {}

type Int struct {
	PosVal token.Pos
	Value  string // kept as text; the type resolver picks the concrete width
}

func (n *Int) Pos() token.Pos { return n.PosVal }
func (n *Int) node()          {}
func (n *Int) expr()          {}

type Float struct {
	PosVal token.Pos
	Value  string
}

func (n *Float) Pos() token.Pos { return n.PosVal }
func (n *Float) node()          {}
func (n *Float) expr()          {}

type String struct {
	PosVal token.Pos
	Value  string
}

func (n *String) Pos() token.Pos { return n.PosVal }
func (n *String) node()          {}
func (n *String) expr()          {}

// Name is an identifier reference.
type Name struct {
	PosVal token.Pos
	Name   string
}

func (n *Name) Pos() token.Pos { return n.PosVal }
func (n *Name) node()          {}
func (n *Name) expr()          {}

// Attrib is `obj.attrib`.
type Attrib struct {
	PosVal token.Pos
	Obj    Expr
	Attrib string
}

func (n *Attrib) Pos() token.Pos { return n.PosVal }
func (n *Attrib) node()          {}
func (n *Attrib) expr()          {}

// Elem is `obj[key]`.
type Elem struct {
	PosVal token.Pos
	Obj    Expr
	Key    Expr
}

func (n *Elem) Pos() token.Pos { return n.PosVal }
func (n *Elem) node()          {}
func (n *Elem) expr()          {}

// BinOp is the closed set of binary operator kinds.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Eq
	NEq
	LT
	GT
	LE
	GE
)

func (op BinOp) String() string {
	switch op {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	case Eq:
		return "eq"
	case NEq:
		return "ne"
	case LT:
		return "lt"
	case GT:
		return "gt"
	case LE:
		return "le"
	case GE:
		return "ge"
	default:
		return "?"
	}
}

// IsCompare reports whether op is a comparison (as opposed to arithmetic).
func (op BinOp) IsCompare() bool { return op >= Eq }

// Binary is `left op right`, covering both arithmetic and comparison.
type Binary struct {
	PosVal      token.Pos
	Op          BinOp
	Left, Right Expr
}

func (n *Binary) Pos() token.Pos { return n.PosVal }
func (n *Binary) node()          {}
func (n *Binary) expr()          {}

// Not is `not x`.
type Not struct {
	PosVal token.Pos
	X      Expr
}

func (n *Not) Pos() token.Pos { return n.PosVal }
func (n *Not) node()          {}
func (n *Not) expr()          {}

// And is `left and right` (short-circuit).
type And struct {
	PosVal      token.Pos
	Left, Right Expr
}

func (n *And) Pos() token.Pos { return n.PosVal }
func (n *And) node()          {}
func (n *And) expr()          {}

// Or is `left or right` (short-circuit).
type Or struct {
	PosVal      token.Pos
	Left, Right Expr
}

func (n *Or) Pos() token.Pos { return n.PosVal }
func (n *Or) node()          {}
func (n *Or) expr()          {}

// Ternary is `left if cond else right`.
type Ternary struct {
	PosVal      token.Pos
	Cond        Expr
	Left, Right Expr
}

func (n *Ternary) Pos() token.Pos { return n.PosVal }
func (n *Ternary) node()          {}
func (n *Ternary) expr()          {}

// Call is `callee(args...)`; Callee is a Name, Attrib (method call) or a
// type Name used as a constructor.
type Call struct {
	PosVal token.Pos
	Callee Expr
	Args   []Expr
}

func (n *Call) Pos() token.Pos { return n.PosVal }
func (n *Call) node()          {}
func (n *Call) expr()          {}

// ---- type expressions --------------------------------------------------

// NameType is a bare type name, e.g. `int` or a template parameter.
type NameType struct {
	PosVal token.Pos
	Name   string
}

func (n *NameType) Pos() token.Pos { return n.PosVal }
func (n *NameType) node()          {}
func (n *NameType) typeExpr()      {}

// OwnerType is `$T`.
type OwnerType struct {
	PosVal token.Pos
	Value  TypeExpr
}

func (n *OwnerType) Pos() token.Pos { return n.PosVal }
func (n *OwnerType) node()          {}
func (n *OwnerType) typeExpr()      {}

// RefType is `&T`.
type RefType struct {
	PosVal token.Pos
	Value  TypeExpr
}

func (n *RefType) Pos() token.Pos { return n.PosVal }
func (n *RefType) node()          {}
func (n *RefType) typeExpr()      {}

// OptType is `T?`.
type OptType struct {
	PosVal token.Pos
	Value  TypeExpr
}

func (n *OptType) Pos() token.Pos { return n.PosVal }
func (n *OptType) node()          {}
func (n *OptType) typeExpr()      {}

// VarArgsType is `...T`.
type VarArgsType struct {
	PosVal token.Pos
	Value  TypeExpr
}

func (n *VarArgsType) Pos() token.Pos { return n.PosVal }
func (n *VarArgsType) node()          {}
func (n *VarArgsType) typeExpr()      {}

// ElemType is `Name[Params...]`, a template application.
type ElemType struct {
	PosVal token.Pos
	Obj    *NameType
	Params []TypeExpr
}

func (n *ElemType) Pos() token.Pos { return n.PosVal }
func (n *ElemType) node()          {}
func (n *ElemType) typeExpr()      {}

// TupleType is `(T0, T1, ...)`.
type TupleType struct {
	PosVal token.Pos
	Elems  []TypeExpr
}

func (n *TupleType) Pos() token.Pos { return n.PosVal }
func (n *TupleType) node()          {}
func (n *TupleType) typeExpr()      {}
