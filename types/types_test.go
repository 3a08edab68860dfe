package types

import (
	"testing"

	"github.com/runa-lang/runac/ast"
	"github.com/runa-lang/runac/lexer"
	"github.com/runa-lang/runac/parser"
)

func parseModule(t *testing.T, src string) *ast.Module {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	mod, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return mod
}

func TestBuiltinPrimitives(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"bool", "byte", "i32", "u32", "int", "uint", "void"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("builtin %q not registered", name)
		}
	}
	intT, _ := r.Lookup("int")
	if intT.IR() != "i64" {
		t.Errorf("int IR = %q, want i64", intT.IR())
	}
	boolT, _ := r.Lookup("bool")
	if boolT.IR() != "i1" {
		t.Errorf("bool IR = %q, want i1", boolT.IR())
	}
}

func TestCompatIdentical(t *testing.T) {
	r := NewRegistry()
	intT, _ := r.Lookup("int")
	if !Compat(intT, intT, false) {
		t.Error("int should be compat with itself")
	}
}

func TestCompatGenericLiteralWidens(t *testing.T) {
	r := NewRegistry()
	anyint, _ := r.Lookup("anyint")
	i32, _ := r.Lookup("i32")
	if !Compat(anyint, i32, false) {
		t.Error("anyint should widen to i32")
	}
	boolT, _ := r.Lookup("bool")
	if Compat(anyint, boolT, false) {
		t.Error("anyint should not widen to bool")
	}
}

func TestCompatRefOwnerAsymmetry(t *testing.T) {
	r := NewRegistry()
	intT, _ := r.Lookup("int")
	ref := &Ref{Over: intT}
	owner := &Owner{Over: intT}
	if Compat(ref, owner, false) {
		t.Error("a &int should never satisfy a $int formal")
	}
	if !Compat(owner, ref, false) {
		t.Error("a $int should satisfy a &int formal (owner unwraps to ref's element type)")
	}
}

func TestCompatStrictReflexivity(t *testing.T) {
	r := NewRegistry()
	intT, _ := r.Lookup("int")
	if !Compat(intT, intT, true) {
		t.Error("int should be strictly compat with itself")
	}
	owner := &Owner{Over: intT}
	if !Compat(owner, owner, true) {
		t.Error("$int should be strictly compat with itself")
	}
}

func TestCompatStrictRejectsWrapperUnwrapping(t *testing.T) {
	r := NewRegistry()
	intT, _ := r.Lookup("int")
	ref := &Ref{Over: intT}
	if Compat(ref, intT, true) {
		t.Error("&int should not strictly satisfy a bare int formal")
	}
	if Compat(intT, ref, true) {
		t.Error("int should not strictly satisfy a &int formal")
	}
	if !Compat(ref, intT, false) {
		t.Error("&int should satisfy a bare int formal when not strict")
	}
}

func TestCompatUnsignedWidening(t *testing.T) {
	r := NewRegistry()
	u32, _ := r.Lookup("u32")
	uint64T, _ := r.Lookup("uint")
	if !Compat(u32, uint64T, false) {
		t.Error("u32 should widen to uint")
	}
	if Compat(uint64T, u32, false) {
		t.Error("uint should not narrow to u32")
	}
}

func TestRegisterRecordFields(t *testing.T) {
	mod := parseModule(t, "class Point:\n\tx: int\n\ty: int\n")
	r := NewRegistry()
	for _, s := range mod.Suite {
		if err := r.Add(s); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range mod.Suite {
		if err := r.Fill(s); err != nil {
			t.Fatal(err)
		}
	}
	pt, ok := r.Lookup("Point")
	if !ok {
		t.Fatal("Point not registered")
	}
	rec, ok := pt.(*Record)
	if !ok {
		t.Fatalf("Point resolved to %T, want *Record", pt)
	}
	if len(rec.Attribs) != 2 {
		t.Fatalf("expected 2 attribs, got %d", len(rec.Attribs))
	}
	if rec.Attribs["x"].Index != 0 || rec.Attribs["y"].Index != 1 {
		t.Error("attrib indices out of declaration order")
	}
}

func TestMethodSelfIsRef(t *testing.T) {
	mod := parseModule(t, "class Point:\n\tx: int\n\tdef norm(self) -> int:\n\t\treturn 0\n")
	r := NewRegistry()
	for _, s := range mod.Suite {
		r.Add(s)
	}
	for _, s := range mod.Suite {
		if err := r.Fill(s); err != nil {
			t.Fatal(err)
		}
	}
	pt, _ := r.Lookup("Point")
	rec := pt.(*Record)
	overloads, ok := rec.Methods["norm"]
	if !ok || len(overloads) != 1 {
		t.Fatal("norm method not registered")
	}
	m := overloads[0]
	if _, ok := m.Args[0].Type.(*Ref); !ok {
		t.Errorf("self param type = %T, want *Ref", m.Args[0].Type)
	}
}

func TestTemplateApplyProducesDistinctIR(t *testing.T) {
	mod := parseModule(t, "class Box[T]:\n\tv: T\n")
	r := NewRegistry()
	for _, s := range mod.Suite {
		r.Add(s)
	}
	for _, s := range mod.Suite {
		if err := r.Fill(s); err != nil {
			t.Fatal(err)
		}
	}
	boxT, _ := r.Lookup("Box")
	tmpl, ok := boxT.(*Template)
	if !ok {
		t.Fatalf("Box resolved to %T, want *Template", boxT)
	}
	intT, _ := r.Lookup("int")
	boolT, _ := r.Lookup("bool")

	boxInt, err := r.Apply(tmpl, []Type{intT})
	if err != nil {
		t.Fatal(err)
	}
	boxBool, err := r.Apply(tmpl, []Type{boolT})
	if err != nil {
		t.Fatal(err)
	}
	if boxInt.IR() == boxBool.IR() {
		t.Errorf("Box[int] and Box[bool] got the same IR name %q", boxInt.IR())
	}
	if boxInt.Attribs["v"].Type.Name() != "int" {
		t.Errorf("Box[int].v type = %s, want int", boxInt.Attribs["v"].Type.Name())
	}
}

func TestTemplateApplyIsMemoized(t *testing.T) {
	mod := parseModule(t, "class Box[T]:\n\tv: T\n")
	r := NewRegistry()
	for _, s := range mod.Suite {
		r.Add(s)
	}
	for _, s := range mod.Suite {
		r.Fill(s)
	}
	tmpl := mustLookupTemplate(t, r, "Box")
	intT, _ := r.Lookup("int")

	a, err := r.Apply(tmpl, []Type{intT})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Apply(tmpl, []Type{intT})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("repeated Apply with the same parameters should return the identical *Record")
	}
}

func mustLookupTemplate(t *testing.T, r *Registry, name string) *Template {
	t.Helper()
	ty, ok := r.Lookup(name)
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	tmpl, ok := ty.(*Template)
	if !ok {
		t.Fatalf("%s resolved to %T, want *Template", name, ty)
	}
	return tmpl
}

func TestTraitSatisfactionStructural(t *testing.T) {
	mod := parseModule(t,
		"trait Shape:\n\tdef area() -> int\n"+
			"class Square:\n\tside: int\n\tdef area(self) -> int:\n\t\treturn 0\n")
	r := NewRegistry()
	for _, s := range mod.Suite {
		r.Add(s)
	}
	for _, s := range mod.Suite {
		if err := r.Fill(s); err != nil {
			t.Fatal(err)
		}
	}
	shapeT, _ := r.Lookup("Shape")
	squareT, _ := r.Lookup("Square")
	if !Compat(squareT, shapeT, false) {
		t.Error("Square should satisfy Shape structurally")
	}
}

func TestSelectPicksFirstMatchingOverload(t *testing.T) {
	r := NewRegistry()
	intT, _ := r.Lookup("int")
	boolT, _ := r.Lookup("bool")
	candidates := []*Method{
		{IRName: "f$int", RType: intT, Args: []MethodArg{{Name: "x", Type: intT}}},
		{IRName: "f$bool", RType: intT, Args: []MethodArg{{Name: "x", Type: boolT}}},
	}
	picked, err := Select(candidates, []Type{boolT})
	if err != nil {
		t.Fatal(err)
	}
	if picked.IRName != "f$bool" {
		t.Errorf("picked %s, want f$bool", picked.IRName)
	}
}

func TestSelectNoMatch(t *testing.T) {
	r := NewRegistry()
	intT, _ := r.Lookup("int")
	boolT, _ := r.Lookup("bool")
	candidates := []*Method{
		{IRName: "f$int", RType: intT, Args: []MethodArg{{Name: "x", Type: intT}}},
	}
	if _, err := Select(candidates, []Type{boolT}); err == nil {
		t.Error("expected an error when no overload matches")
	}
}

func TestSelectAmbiguousWhenTwoOverloadsBothCompat(t *testing.T) {
	r := NewRegistry()
	anyint, _ := r.Lookup("anyint")
	i32, _ := r.Lookup("i32")
	intT, _ := r.Lookup("int")
	candidates := []*Method{
		{IRName: "f$i32", RType: intT, Args: []MethodArg{{Name: "x", Type: i32}}},
		{IRName: "f$int", RType: intT, Args: []MethodArg{{Name: "x", Type: intT}}},
	}
	_, err := Select(candidates, []Type{anyint})
	if err == nil {
		t.Fatal("expected an ambiguous-overload error when an anyint literal widens to two distinct candidates")
	}
	oe, ok := err.(*OverloadError)
	if !ok || !oe.Ambiguous {
		t.Errorf("err = %#v, want an ambiguous *OverloadError", err)
	}
}

func TestSelectVariadicTailAbsorbsExtraArgs(t *testing.T) {
	r := NewRegistry()
	strT, _ := r.Lookup("int") // stand-in formal for the fixed prefix
	candidates := []*Method{
		{IRName: "f", RType: Void, Args: []MethodArg{{Name: "x", Type: strT}, {Name: "rest", Type: VarArgs{}}}},
	}
	picked, err := Select(candidates, []Type{strT, strT, strT})
	if err != nil {
		t.Fatalf("expected variadic overload to accept extra trailing args: %v", err)
	}
	if picked.IRName != "f" {
		t.Errorf("picked %s, want f", picked.IRName)
	}
}

func TestMangleDeterministic(t *testing.T) {
	r := NewRegistry()
	intT, _ := r.Lookup("int")
	boolT, _ := r.Lookup("bool")
	a := Mangle("f", []Type{intT, boolT})
	b := Mangle("f", []Type{intT, boolT})
	if a != b {
		t.Errorf("Mangle is not deterministic: %q vs %q", a, b)
	}
	if Mangle("f", nil) != "f" {
		t.Errorf("Mangle with no formal args should return the base name unchanged")
	}
}
