// Package parser builds an *ast.Module from a token stream. It is the
// other external collaborator named in §2 and §6.1: the core consumes
// only the finished AST, but the driver's `parse`/`show`/`generate`/
// `compile` subcommands (§6.3) need a real parser to reach it from source
// text. The recursive-descent structure (a parser struct holding the
// token slice and a cursor, `expect*`/`is*` helpers) mirrors go/parser's
// shape, generalized from braces to the indentation-delimited suites
// original_source/lang/flow.py's visitor method names imply.
package parser

import (
	"fmt"

	"github.com/runa-lang/runac/ast"
	"github.com/runa-lang/runac/token"
)

// ParseError is a structural parse failure (§7).
type ParseError struct {
	Pos token.Pos
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

type parser struct {
	toks []token.Token
	pos  int
}

// Parse builds a Module from a pre-lexed token stream.
func Parse(toks []token.Token) (mod *ast.Module, err error) {
	p := &parser{toks: toks}
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()
	mod = &ast.Module{Suite: p.topLevel()}
	return mod, nil
}

func (p *parser) cur() token.Token  { return p.toks[p.pos] }
func (p *parser) peekKind() token.Kind { return p.cur().Kind }

func (p *parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) fail(format string, args ...interface{}) {
	panic(&ParseError{Pos: p.cur().Pos, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) expectOp(val string) token.Token {
	t := p.cur()
	if t.Kind != token.Op || t.Value != val {
		p.fail("expected %q, got %s", val, t)
	}
	return p.advance()
}

func (p *parser) expectKeyword(val string) token.Token {
	t := p.cur()
	if t.Kind != token.Keyword || t.Value != val {
		p.fail("expected keyword %q, got %s", val, t)
	}
	return p.advance()
}

func (p *parser) expectName() token.Token {
	t := p.cur()
	if t.Kind != token.Name {
		p.fail("expected identifier, got %s", t)
	}
	return p.advance()
}

func (p *parser) isOp(val string) bool {
	t := p.cur()
	return t.Kind == token.Op && t.Value == val
}

func (p *parser) isKeyword(val string) bool {
	t := p.cur()
	return t.Kind == token.Keyword && t.Value == val
}

func (p *parser) skipNewlines() {
	for p.peekKind() == token.Newline {
		p.advance()
	}
}

// ---- top level -----------------------------------------------------------

func (p *parser) topLevel() []ast.Stmt {
	var stmts []ast.Stmt
	p.skipNewlines()
	for p.peekKind() != token.EOF {
		stmts = append(stmts, p.topStmt())
		p.skipNewlines()
	}
	return stmts
}

func (p *parser) topStmt() ast.Stmt {
	switch {
	case p.isKeyword("def"):
		return p.funcDecl(nil)
	case p.isKeyword("class"):
		return p.classDecl()
	case p.isKeyword("trait"):
		return p.traitDecl()
	case p.isKeyword("from"):
		return p.relImport()
	default:
		return p.constAssign()
	}
}

func (p *parser) constAssign() ast.Stmt {
	pos := p.cur().Pos
	name := p.expectName()
	p.expectOp("=")
	val := p.expr()
	p.endOfStmt()
	return &ast.ConstAssign{PosVal: pos, Name: name.Value, Value: val}
}

func (p *parser) relImport() ast.Stmt {
	pos := p.advance().Pos // 'from'
	base := p.postfixExpr()
	p.expectKeyword("import")
	var names []string
	names = append(names, p.expectName().Value)
	for p.isOp(",") {
		p.advance()
		names = append(names, p.expectName().Value)
	}
	p.endOfStmt()
	return &ast.RelImport{PosVal: pos, Base: base, Names: names}
}

// ---- declarations ----------------------------------------------------------

func (p *parser) typeParams() []string {
	if !p.isOp("[") {
		return nil
	}
	p.advance()
	var params []string
	params = append(params, p.expectName().Value)
	for p.isOp(",") {
		p.advance()
		params = append(params, p.expectName().Value)
	}
	p.expectOp("]")
	return params
}

func (p *parser) funcDecl(recv *ast.TypeExpr) *ast.Function {
	pos := p.advance().Pos // 'def'
	name := p.expectName().Value
	p.expectOp("(")
	var args []*ast.Arg
	for !p.isOp(")") {
		argPos := p.cur().Pos
		argName := p.expectName().Value
		var argType ast.TypeExpr
		if argName == "self" && (p.isOp(")") || p.isOp(",")) {
			// The receiver's type is the enclosing class; left nil here
			// and filled in once the class context is known.
		} else {
			p.expectOp(":")
			argType = p.typeExpr()
		}
		args = append(args, &ast.Arg{PosVal: argPos, Name: argName, Type: argType})
		if p.isOp(",") {
			p.advance()
		}
	}
	p.expectOp(")")
	var rtype ast.TypeExpr
	if p.isOp("->") {
		p.advance()
		rtype = p.typeExpr()
	}
	p.expectOp(":")
	body := p.block()
	return &ast.Function{PosVal: pos, Name: name, Recv: recv, Args: args, RType: rtype, Body: body}
}

func (p *parser) classDecl() *ast.Class {
	pos := p.advance().Pos // 'class'
	name := p.expectName().Value
	params := p.typeParams()
	p.expectOp(":")
	p.advance() // newline
	p.expectIndent()

	var attribs []*ast.AttribDecl
	var methods []*ast.Function
	for p.peekKind() != token.Dedent {
		if p.isKeyword("def") {
			methods = append(methods, p.funcDecl(nil))
			continue
		}
		apos := p.cur().Pos
		aname := p.expectName().Value
		p.expectOp(":")
		atype := p.typeExpr()
		p.endOfStmt()
		attribs = append(attribs, &ast.AttribDecl{PosVal: apos, Name: aname, Type: atype})
	}
	p.advance() // dedent

	return &ast.Class{PosVal: pos, Name: name, Params: params, Attribs: attribs, Methods: methods}
}

func (p *parser) traitDecl() *ast.Trait {
	pos := p.advance().Pos // 'trait'
	name := p.expectName().Value
	p.expectOp(":")
	p.advance() // newline
	p.expectIndent()
	var methods []*ast.TraitMethod
	for p.peekKind() != token.Dedent {
		mpos := p.expectKeyword("def").Pos
		mname := p.expectName().Value
		p.expectOp("(")
		var margs []*ast.Arg
		for !p.isOp(")") {
			apos := p.cur().Pos
			aname := p.expectName().Value
			p.expectOp(":")
			atype := p.typeExpr()
			margs = append(margs, &ast.Arg{PosVal: apos, Name: aname, Type: atype})
			if p.isOp(",") {
				p.advance()
			}
		}
		p.expectOp(")")
		var rtype ast.TypeExpr
		if p.isOp("->") {
			p.advance()
			rtype = p.typeExpr()
		}
		p.endOfStmt()
		methods = append(methods, &ast.TraitMethod{PosVal: mpos, Name: mname, Args: margs, RType: rtype})
	}
	p.advance() // dedent
	return &ast.Trait{PosVal: pos, Name: name, Methods: methods}
}

func (p *parser) expectIndent() {
	if p.peekKind() != token.Indent {
		p.fail("expected indented block, got %s", p.cur())
	}
	p.advance()
}

func (p *parser) endOfStmt() {
	if p.peekKind() == token.Newline {
		p.advance()
		return
	}
	if p.peekKind() == token.EOF || p.peekKind() == token.Dedent {
		return
	}
	p.fail("expected end of statement, got %s", p.cur())
}

// ---- statements ------------------------------------------------------------

func (p *parser) block() *ast.Suite {
	pos := p.cur().Pos
	if p.peekKind() == token.Newline {
		p.advance()
		p.expectIndent()
		var stmts []ast.Stmt
		for p.peekKind() != token.Dedent {
			stmts = append(stmts, p.stmt())
		}
		p.advance() // dedent
		return &ast.Suite{PosVal: pos, Stmts: stmts}
	}
	// single-line suite: `if x: return 1`
	s := p.simpleStmt()
	return &ast.Suite{PosVal: pos, Stmts: []ast.Stmt{s}}
}

func (p *parser) stmt() ast.Stmt {
	switch {
	case p.isKeyword("if"):
		return p.ifStmt()
	case p.isKeyword("while"):
		return p.whileStmt()
	case p.isKeyword("for"):
		return p.forStmt()
	default:
		return p.simpleStmt()
	}
}

func (p *parser) simpleStmt() ast.Stmt {
	if p.isKeyword("return") {
		pos := p.advance().Pos
		if p.peekKind() == token.Newline || p.peekKind() == token.EOF || p.peekKind() == token.Dedent {
			p.endOfStmt()
			return &ast.Return{PosVal: pos}
		}
		v := p.expr()
		p.endOfStmt()
		return &ast.Return{PosVal: pos, Value: v}
	}

	pos := p.cur().Pos
	lhs := p.expr()
	if p.isOp("=") {
		p.advance()
		rhs := p.expr()
		p.endOfStmt()
		return &ast.Assign{PosVal: pos, Left: lhs, Right: rhs}
	}
	p.endOfStmt()
	return &ast.ExprStmt{PosVal: pos, X: lhs}
}

func (p *parser) ifStmt() *ast.If {
	pos := p.cur().Pos
	var arms []ast.CondArm
	p.expectKeyword("if")
	cond := p.expr()
	p.expectOp(":")
	arms = append(arms, ast.CondArm{Cond: cond, Suite: p.block()})
	for p.isKeyword("elif") {
		p.advance()
		c := p.expr()
		p.expectOp(":")
		arms = append(arms, ast.CondArm{Cond: c, Suite: p.block()})
	}
	if p.isKeyword("else") {
		p.advance()
		p.expectOp(":")
		arms = append(arms, ast.CondArm{Cond: nil, Suite: p.block()})
	}
	return &ast.If{PosVal: pos, Arms: arms}
}

func (p *parser) whileStmt() *ast.While {
	pos := p.expectKeyword("while").Pos
	cond := p.expr()
	p.expectOp(":")
	return &ast.While{PosVal: pos, Cond: cond, Suite: p.block()}
}

func (p *parser) forStmt() *ast.For {
	pos := p.expectKeyword("for").Pos
	lvar := p.expectName().Value
	p.expectKeyword("in")
	src := p.expr()
	p.expectOp(":")
	return &ast.For{PosVal: pos, LVar: lvar, Source: src, Suite: p.block()}
}

// ---- expressions -----------------------------------------------------------
//
// Precedence, loosest to tightest:
//   ternary ('if'/'else')
//   or
//   and
//   not
//   comparison (==, !=, <, >, <=, >=)
//   additive (+, -)
//   multiplicative (*, /)
//   unary
//   postfix (call, attrib, elem)
//   primary

func (p *parser) expr() ast.Expr { return p.ternary() }

func (p *parser) ternary() ast.Expr {
	left := p.orExpr()
	if p.isKeyword("if") {
		pos := p.advance().Pos
		cond := p.orExpr()
		p.expectKeyword("else")
		right := p.ternary()
		return &ast.Ternary{PosVal: pos, Cond: cond, Left: left, Right: right}
	}
	return left
}

func (p *parser) orExpr() ast.Expr {
	left := p.andExpr()
	for p.isOp("or") {
		pos := p.advance().Pos
		right := p.andExpr()
		left = &ast.Or{PosVal: pos, Left: left, Right: right}
	}
	return left
}

func (p *parser) andExpr() ast.Expr {
	left := p.notExpr()
	for p.isOp("and") {
		pos := p.advance().Pos
		right := p.notExpr()
		left = &ast.And{PosVal: pos, Left: left, Right: right}
	}
	return left
}

func (p *parser) notExpr() ast.Expr {
	if p.isOp("not") {
		pos := p.advance().Pos
		return &ast.Not{PosVal: pos, X: p.notExpr()}
	}
	return p.comparison()
}

var compareOps = map[string]ast.BinOp{
	"==": ast.Eq, "!=": ast.NEq, "<": ast.LT, ">": ast.GT, "<=": ast.LE, ">=": ast.GE,
}

func (p *parser) comparison() ast.Expr {
	left := p.additive()
	if op, ok := compareOps[p.cur().Value]; ok && p.cur().Kind == token.Op {
		pos := p.advance().Pos
		right := p.additive()
		return &ast.Binary{PosVal: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) additive() ast.Expr {
	left := p.multiplicative()
	for p.isOp("+") || p.isOp("-") {
		op := ast.Add
		if p.cur().Value == "-" {
			op = ast.Sub
		}
		pos := p.advance().Pos
		right := p.multiplicative()
		left = &ast.Binary{PosVal: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) multiplicative() ast.Expr {
	left := p.unary()
	for p.isOp("*") || p.isOp("/") {
		op := ast.Mul
		if p.cur().Value == "/" {
			op = ast.Div
		}
		pos := p.advance().Pos
		right := p.unary()
		left = &ast.Binary{PosVal: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) unary() ast.Expr {
	return p.postfixExpr()
}

func (p *parser) postfixExpr() ast.Expr {
	x := p.primary()
	for {
		switch {
		case p.isOp("."):
			pos := p.advance().Pos
			name := p.expectName().Value
			x = &ast.Attrib{PosVal: pos, Obj: x, Attrib: name}
		case p.isOp("["):
			pos := p.advance().Pos
			key := p.expr()
			p.expectOp("]")
			x = &ast.Elem{PosVal: pos, Obj: x, Key: key}
		case p.isOp("("):
			pos := p.advance().Pos
			var args []ast.Expr
			for !p.isOp(")") {
				args = append(args, p.expr())
				if p.isOp(",") {
					p.advance()
				}
			}
			p.expectOp(")")
			x = &ast.Call{PosVal: pos, Callee: x, Args: args}
		default:
			return x
		}
	}
}

func (p *parser) primary() ast.Expr {
	t := p.cur()
	switch t.Kind {
	case token.Number:
		p.advance()
		return &ast.Int{PosVal: t.Pos, Value: t.Value}
	case token.Float:
		p.advance()
		return &ast.Float{PosVal: t.Pos, Value: t.Value}
	case token.String:
		p.advance()
		return &ast.String{PosVal: t.Pos, Value: t.Value}
	case token.Keyword:
		if t.Value == "true" || t.Value == "false" {
			p.advance()
			return &ast.Bool{PosVal: t.Pos, Value: t.Value == "true"}
		}
		p.fail("unexpected keyword %q in expression", t.Value)
	case token.Name:
		p.advance()
		return &ast.Name{PosVal: t.Pos, Name: t.Value}
	case token.Op:
		if t.Value == "(" {
			p.advance()
			x := p.expr()
			p.expectOp(")")
			return x
		}
	}
	p.fail("unexpected token %s in expression", t)
	panic("unreachable")
}

// ---- type expressions -------------------------------------------------------

func (p *parser) typeExpr() ast.TypeExpr {
	if p.isOp("$") {
		pos := p.advance().Pos
		return p.wrapSuffix(&ast.OwnerType{PosVal: pos, Value: p.typeExpr()})
	}
	if p.isOp("&") {
		pos := p.advance().Pos
		return p.wrapSuffix(&ast.RefType{PosVal: pos, Value: p.typeExpr()})
	}
	if p.isOp("...") {
		pos := p.advance().Pos
		return &ast.VarArgsType{PosVal: pos, Value: p.typeExpr()}
	}
	if p.isOp("(") {
		pos := p.advance().Pos
		var elems []ast.TypeExpr
		for !p.isOp(")") {
			elems = append(elems, p.typeExpr())
			if p.isOp(",") {
				p.advance()
			}
		}
		p.expectOp(")")
		return p.wrapSuffix(&ast.TupleType{PosVal: pos, Elems: elems})
	}

	pos := p.cur().Pos
	name := p.expectName().Value
	var base ast.TypeExpr = &ast.NameType{PosVal: pos, Name: name}
	if p.isOp("[") {
		p.advance()
		var params []ast.TypeExpr
		for !p.isOp("]") {
			params = append(params, p.typeExpr())
			if p.isOp(",") {
				p.advance()
			}
		}
		p.expectOp("]")
		base = &ast.ElemType{PosVal: pos, Obj: base.(*ast.NameType), Params: params}
	}
	return p.wrapSuffix(base)
}

func (p *parser) wrapSuffix(t ast.TypeExpr) ast.TypeExpr {
	for p.isOp("?") {
		pos := p.advance().Pos
		t = &ast.OptType{PosVal: pos, Value: t}
	}
	return t
}
