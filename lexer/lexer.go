// Package lexer tokenizes Runa source text. It is an external collaborator
// of the compiler core (§2, §6.1): the core only ever sees the finished
// AST, but the driver needs a working tokenizer to produce one, so this
// package ports the structure of original_source/tokenizer.py — a
// table-driven scanner plus a separate indent/dedent pass over logical
// lines — into an explicit, statically typed scanner.
package lexer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/runa-lang/runac/token"
)

var keywords = map[string]bool{
	"def": true, "return": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "class": true, "trait": true, "import": true,
	"from": true, "as": true, "in": true, "true": true, "false": true,
}

var operators = map[string]bool{
	"not": true, "and": true, "or": true,
}

// lineRE tokenizes the non-whitespace remainder of one physical line.
var lineRE = regexp.MustCompile(strings.Join([]string{
	`#[^\n]*`,
	`->|==|!=|<=|>=|\.\.\.|[,\[\]\(\):\.+\-*/<>=?$&]`,
	`[a-zA-Z_][a-zA-Z0-9_]*`,
	`[0-9]+\.[0-9]+`,
	`[0-9]+`,
	`'(?:[^'\\]|\\.)*'`,
	`"(?:[^"\\]|\\.)*"`,
	`[ \t]+`,
}, "|"))

// Error is a lexical scan failure.
type Error struct {
	Pos token.Pos
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Lex tokenizes src line by line, emitting explicit Indent/Dedent tokens
// derived from each logical line's leading whitespace width, exactly as
// original_source/tokenizer.py's two-stage approach (scan, then indent)
// does, but collapsed into a single pass since Go has no generators.
func Lex(src string) ([]token.Token, error) {
	var out []token.Token
	levels := []int{0}
	lines := strings.Split(src, "\n")

	for i, raw := range lines {
		lineNo := i + 1
		trimmed := strings.TrimLeft(raw, " \t")
		width := len(raw) - len(trimmed)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			// Blank or comment-only lines never affect indentation.
			continue
		}

		switch {
		case width > levels[len(levels)-1]:
			levels = append(levels, width)
			out = append(out, token.Token{Kind: token.Indent, Pos: token.Pos{Line: lineNo, Col: 1}})
		case width < levels[len(levels)-1]:
			for len(levels) > 1 && levels[len(levels)-1] > width {
				levels = levels[:len(levels)-1]
				out = append(out, token.Token{Kind: token.Dedent, Pos: token.Pos{Line: lineNo, Col: 1}})
			}
		}

		toks, err := scanLine(trimmed, lineNo, width+1)
		if err != nil {
			return nil, err
		}
		out = append(out, toks...)
		if len(toks) > 0 {
			out = append(out, token.Token{Kind: token.Newline, Value: "\n", Pos: token.Pos{Line: lineNo, Col: len(raw) + 1}})
		}
	}

	for len(levels) > 1 {
		levels = levels[:len(levels)-1]
		out = append(out, token.Token{Kind: token.Dedent})
	}
	out = append(out, token.Token{Kind: token.EOF, Pos: token.Pos{Line: len(lines) + 1, Col: 1}})
	return out, nil
}

func scanLine(s string, line, startCol int) ([]token.Token, error) {
	var out []token.Token
	pos := 0
	col := startCol
	for pos < len(s) {
		loc := lineRE.FindStringIndex(s[pos:])
		if loc == nil || loc[0] != 0 {
			return nil, &Error{Pos: token.Pos{Line: line, Col: col}, Msg: fmt.Sprintf("unexpected character %q", s[pos])}
		}
		text := s[pos : pos+loc[1]]
		width := loc[1]
		pos += width

		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			col += width
			continue
		}

		kind := classify(text)
		value := text
		if kind == token.String {
			value = text[1 : len(text)-1]
		} else if kind == token.Name && operators[text] {
			kind = token.Op
		} else if kind == token.Name && keywords[text] {
			kind = token.Keyword
		}
		out = append(out, token.Token{Kind: kind, Value: value, Pos: token.Pos{Line: line, Col: col}})
		col += width
	}
	return out, nil
}

func classify(text string) token.Kind {
	switch {
	case isName(text):
		return token.Name
	case strings.Contains(text, ".") && isNumWithDot(text):
		return token.Float
	case isDigits(text):
		return token.Number
	case len(text) >= 2 && (text[0] == '\'' || text[0] == '"'):
		return token.String
	default:
		return token.Op
	}
}

func isNumWithDot(s string) bool {
	return isDigits(strings.Replace(s, ".", "", 1))
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	if !(s[0] == '_' || (s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z')) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
