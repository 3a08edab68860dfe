package main

import (
	"context"
	"strings"
	"testing"

	"github.com/runa-lang/runac/irgen"
	"github.com/runa-lang/runac/lexer"
	"github.com/runa-lang/runac/parser"
)

func buildAndEmit(t *testing.T, src string) string {
	t.Helper()
	toks, err := lexer.Lex(src)
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	mod, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u, err := buildUnit(mod)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out, err := irgen.Emit(context.Background(), u.funcs)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	return out
}

// The scenarios below mirror spec.md §8's end-to-end table; each is
// checked by inspecting the generated IR's shape, since the driver
// test environment has no assembler available to run an emitted
// binary against.
func TestScenarioArithInt(t *testing.T) {
	out := buildAndEmit(t, "def main() -> int:\n\treturn 1 + 2 * 3\n")
	if !strings.Contains(out, "define i64 @main() {") {
		t.Errorf("missing main header, got:\n%s", out)
	}
	if !strings.Contains(out, "ret i64") {
		t.Errorf("missing integer return, got:\n%s", out)
	}
}

func TestScenarioTernary(t *testing.T) {
	out := buildAndEmit(t, "def main() -> int:\n\tx = 1 if true else 2\n\treturn x\n")
	if !strings.Contains(out, "select") {
		t.Errorf("expected a select instruction, got:\n%s", out)
	}
}

func TestScenarioIfChain(t *testing.T) {
	src := "def main() -> int:\n\tx = 5\n\tif x < 3:\n\t\treturn 1\n\telif x < 7:\n\t\treturn 2\n\telse:\n\t\treturn 3\n"
	out := buildAndEmit(t, src)
	if strings.Count(out, "br i1") < 2 {
		t.Errorf("expected two conditional branches for the elif chain, got:\n%s", out)
	}
}

func TestScenarioFunctionCall(t *testing.T) {
	src := "def add(a: int, b: int) -> int:\n\treturn a + b\ndef main() -> int:\n\treturn add(2, 3)\n"
	out := buildAndEmit(t, src)
	if !strings.Contains(out, "call i64 @add(") {
		t.Errorf("expected a call to @add, got:\n%s", out)
	}
}

func TestScenarioTypeMismatchIsPositionedDiagnostic(t *testing.T) {
	toks, err := lexer.Lex("def main() -> int:\n\treturn 1 + 'x'\n")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	mod, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := buildUnit(mod); err == nil {
		t.Fatal("expected a type-mismatch diagnostic, got nil")
	}
}

func TestCommandPrefixResolution(t *testing.T) {
	name, _, err := find("gen")
	if err != nil {
		t.Fatalf("find(gen): %v", err)
	}
	if name != "generate" {
		t.Errorf("expected generate, got %s", name)
	}
	if _, _, err := find("xyz"); err == nil {
		t.Error("expected an error for an unknown command")
	}
}

func TestCollectDocsGroupsLeadingCommentBlock(t *testing.T) {
	src := "# Adds two integers.\n# Never overflow-checked.\ndef add(a: int, b: int) -> int:\n\treturn a + b\n"
	docs := collectDocs(src)
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc entry, got %d", len(docs))
	}
	if docs[0].name != "add" {
		t.Errorf("expected name add, got %q", docs[0].name)
	}
	if !strings.Contains(docs[0].body, "Adds two integers") {
		t.Errorf("expected comment text in body, got %q", docs[0].body)
	}
}
