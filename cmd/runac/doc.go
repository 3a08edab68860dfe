package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	message.Set(language.English, "%d declaration(s) documented",
		plural.Selectf(1, "%d",
			plural.One, "1 declaration documented",
			plural.Other, "%d declarations documented",
		))
}

// doc is one top-level declaration's name plus its leading `#`-comment
// block, collected straight from source text rather than through the
// AST: comments carry no meaning to the type resolver or flow builder
// (§6.1's node kinds have no Doc field) so this is purely a driver-side
// convenience, the same way godoc reads comments the Go type checker
// never sees.
type doc struct {
	name string
	body string
}

// renderDocs scans fn's source for `def`/`class`/`trait` declarations
// at column 0 and the contiguous block of `#` comment lines
// immediately above each, converts that block from Markdown to HTML
// with goldmark (the teacher module's own doc-rendering dependency,
// reassigned here from the deleted godoc command — see DESIGN.md), and
// prints one labeled section per declaration followed by a pluralized
// summary line.
func renderDocs(fn string) (string, error) {
	src, err := readSource(fn)
	if err != nil {
		return "", err
	}
	docs := collectDocs(src)

	md := goldmark.New()
	var out bytes.Buffer
	for _, d := range docs {
		fmt.Fprintf(&out, "<h2><code>%s</code></h2>\n", d.name)
		if strings.TrimSpace(d.body) == "" {
			continue
		}
		if err := md.Convert([]byte(d.body), &out); err != nil {
			return "", fmt.Errorf("renderDocs: rendering %s: %w", d.name, err)
		}
	}

	p := message.NewPrinter(language.English)
	out.WriteString("<!-- ")
	p.Fprintf(&out, "%d declaration(s) documented", len(docs))
	out.WriteString(" -->\n")
	return out.String(), nil
}

func collectDocs(src string) []doc {
	lines := strings.Split(src, "\n")
	var docs []doc
	var pending []string
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "#"):
			pending = append(pending, strings.TrimPrefix(strings.TrimPrefix(trimmed, "#"), " "))
		case declName(trimmed) != "":
			docs = append(docs, doc{name: declName(trimmed), body: strings.Join(pending, "\n")})
			pending = nil
		case trimmed == "":
			// blank lines don't break a pending comment block
		default:
			pending = nil
		}
	}
	return docs
}

// declName returns the declared name if line is a column-0
// def/class/trait header, else "".
func declName(line string) string {
	for _, kw := range []string{"def ", "class ", "trait "} {
		if strings.HasPrefix(line, kw) {
			rest := strings.TrimPrefix(line, kw)
			end := strings.IndexAny(rest, "([: ")
			if end < 0 {
				end = len(rest)
			}
			return rest[:end]
		}
	}
	return ""
}
