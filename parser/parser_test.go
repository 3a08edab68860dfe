package parser

import (
	"testing"

	"github.com/runa-lang/runac/ast"
	"github.com/runa-lang/runac/lexer"
)

func parseSrc(t *testing.T, src string) *ast.Module {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("lex error: %v", err)
	}
	mod, err := Parse(toks)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return mod
}

func TestParseSimpleFunction(t *testing.T) {
	mod := parseSrc(t, "def main() -> int:\n\treturn 1 + 2\n")
	if len(mod.Suite) != 1 {
		t.Fatalf("expected 1 top-level stmt, got %d", len(mod.Suite))
	}
	fn, ok := mod.Suite[0].(*ast.Function)
	if !ok {
		t.Fatalf("expected *ast.Function, got %T", mod.Suite[0])
	}
	if fn.Name != "main" {
		t.Errorf("name = %q, want main", fn.Name)
	}
	if len(fn.Args) != 0 {
		t.Errorf("args = %v, want none", fn.Args)
	}
	rt, ok := fn.RType.(*ast.NameType)
	if !ok || rt.Name != "int" {
		t.Fatalf("return type = %v, want NameType(int)", fn.RType)
	}
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("body has %d stmts, want 1", len(fn.Body.Stmts))
	}
	ret, ok := fn.Body.Stmts[0].(*ast.Return)
	if !ok {
		t.Fatalf("expected *ast.Return, got %T", fn.Body.Stmts[0])
	}
	bin, ok := ret.Value.(*ast.Binary)
	if !ok || bin.Op != ast.Add {
		t.Fatalf("return value = %v, want Binary(add)", ret.Value)
	}
}

func TestParseFunctionWithArgs(t *testing.T) {
	mod := parseSrc(t, "def add(x: int, y: int) -> int:\n\treturn x + y\n")
	fn := mod.Suite[0].(*ast.Function)
	if len(fn.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(fn.Args))
	}
	if fn.Args[0].Name != "x" || fn.Args[1].Name != "y" {
		t.Errorf("arg names = %q, %q", fn.Args[0].Name, fn.Args[1].Name)
	}
}

func TestParseIfElifElse(t *testing.T) {
	src := "def f(x: int) -> int:\n" +
		"\tif x == 0:\n" +
		"\t\treturn 1\n" +
		"\telif x == 1:\n" +
		"\t\treturn 2\n" +
		"\telse:\n" +
		"\t\treturn 3\n"
	mod := parseSrc(t, src)
	fn := mod.Suite[0].(*ast.Function)
	ifst, ok := fn.Body.Stmts[0].(*ast.If)
	if !ok {
		t.Fatalf("expected *ast.If, got %T", fn.Body.Stmts[0])
	}
	if len(ifst.Arms) != 3 {
		t.Fatalf("expected 3 arms (if/elif/else), got %d", len(ifst.Arms))
	}
	if ifst.Arms[2].Cond != nil {
		t.Errorf("else arm should have nil Cond")
	}
}

func TestParseWhileAndFor(t *testing.T) {
	src := "def f():\n" +
		"\twhile true:\n" +
		"\t\tx = 1\n" +
		"\tfor v in xs:\n" +
		"\t\ty = v\n"
	mod := parseSrc(t, src)
	fn := mod.Suite[0].(*ast.Function)
	if _, ok := fn.Body.Stmts[0].(*ast.While); !ok {
		t.Fatalf("expected *ast.While, got %T", fn.Body.Stmts[0])
	}
	forst, ok := fn.Body.Stmts[1].(*ast.For)
	if !ok {
		t.Fatalf("expected *ast.For, got %T", fn.Body.Stmts[1])
	}
	if forst.LVar != "v" {
		t.Errorf("for loop var = %q, want v", forst.LVar)
	}
}

func TestParseTernaryAndBoolOps(t *testing.T) {
	mod := parseSrc(t, "def f() -> int:\n\treturn 1 if a and not b or c else 2\n")
	fn := mod.Suite[0].(*ast.Function)
	ret := fn.Body.Stmts[0].(*ast.Return)
	tern, ok := ret.Value.(*ast.Ternary)
	if !ok {
		t.Fatalf("expected *ast.Ternary, got %T", ret.Value)
	}
	// cond is (a and not b) or c, so outermost is Or.
	if _, ok := tern.Cond.(*ast.Or); !ok {
		t.Fatalf("expected Or at top of condition, got %T", tern.Cond)
	}
}

func TestParseCallAndAttrib(t *testing.T) {
	mod := parseSrc(t, "def f():\n\tx = obj.method(1, 2)\n")
	fn := mod.Suite[0].(*ast.Function)
	assign := fn.Body.Stmts[0].(*ast.Assign)
	call, ok := assign.Right.(*ast.Call)
	if !ok {
		t.Fatalf("expected *ast.Call, got %T", assign.Right)
	}
	attrib, ok := call.Callee.(*ast.Attrib)
	if !ok {
		t.Fatalf("expected *ast.Attrib callee, got %T", call.Callee)
	}
	if attrib.Attrib != "method" {
		t.Errorf("attrib = %q, want method", attrib.Attrib)
	}
	if len(call.Args) != 2 {
		t.Errorf("call args = %d, want 2", len(call.Args))
	}
}

func TestParseClassDecl(t *testing.T) {
	src := "class Point:\n" +
		"\tx: int\n" +
		"\ty: int\n" +
		"\tdef norm(self) -> int:\n" +
		"\t\treturn 0\n"
	mod := parseSrc(t, src)
	cls, ok := mod.Suite[0].(*ast.Class)
	if !ok {
		t.Fatalf("expected *ast.Class, got %T", mod.Suite[0])
	}
	if cls.Name != "Point" {
		t.Errorf("class name = %q, want Point", cls.Name)
	}
	if len(cls.Attribs) != 2 {
		t.Fatalf("expected 2 attribs, got %d", len(cls.Attribs))
	}
	if len(cls.Methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(cls.Methods))
	}
}

func TestParseTypeExprs(t *testing.T) {
	mod := parseSrc(t, "def f(x: $List[int], y: &int, z: int?) -> int:\n\treturn 0\n")
	fn := mod.Suite[0].(*ast.Function)
	if _, ok := fn.Args[0].Type.(*ast.OwnerType); !ok {
		t.Errorf("arg x type = %T, want OwnerType", fn.Args[0].Type)
	}
	if _, ok := fn.Args[1].Type.(*ast.RefType); !ok {
		t.Errorf("arg y type = %T, want RefType", fn.Args[1].Type)
	}
	if _, ok := fn.Args[2].Type.(*ast.OptType); !ok {
		t.Errorf("arg z type = %T, want OptType", fn.Args[2].Type)
	}
}

func TestParseTraitDecl(t *testing.T) {
	src := "trait Shape:\n" +
		"\tdef area() -> int\n" +
		"\tdef perimeter() -> int\n"
	mod := parseSrc(t, src)
	tr, ok := mod.Suite[0].(*ast.Trait)
	if !ok {
		t.Fatalf("expected *ast.Trait, got %T", mod.Suite[0])
	}
	if len(tr.Methods) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(tr.Methods))
	}
}
