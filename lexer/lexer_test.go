package lexer

import (
	"testing"

	"github.com/runa-lang/runac/token"
)

func kinds(toks []token.Token) []token.Kind {
	ks := make([]token.Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func TestLexSimpleFunction(t *testing.T) {
	src := "def main() -> int:\n\treturn 1 + 2\n"
	toks, err := Lex(src)
	if err != nil {
		t.Fatal(err)
	}
	want := []token.Kind{
		token.Keyword, token.Name, token.Op, token.Op, token.Op, token.Name, token.Op, token.Newline,
		token.Indent,
		token.Keyword, token.Number, token.Op, token.Number, token.Newline,
		token.Dedent, token.EOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d\n%v", len(got), len(want), toks)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d kind = %s, want %s (%v)", i, got[i], want[i], toks[i])
		}
	}
}

func TestLexStringLiteral(t *testing.T) {
	toks, err := Lex("x = 'hello, world'\n")
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, tk := range toks {
		if tk.Kind == token.String {
			found = true
			if tk.Value != "hello, world" {
				t.Errorf("string value = %q, want %q", tk.Value, "hello, world")
			}
		}
	}
	if !found {
		t.Fatal("no string token found")
	}
}

func TestIndentDedentNesting(t *testing.T) {
	src := "def f():\n\tif true:\n\t\treturn 1\n\treturn 2\n"
	toks, err := Lex(src)
	if err != nil {
		t.Fatal(err)
	}
	var depth, maxDepth int
	for _, tk := range toks {
		switch tk.Kind {
		case token.Indent:
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case token.Dedent:
			depth--
		}
	}
	if depth != 0 {
		t.Fatalf("unbalanced indent/dedent, final depth %d", depth)
	}
	if maxDepth != 2 {
		t.Fatalf("max nesting depth = %d, want 2", maxDepth)
	}
}
