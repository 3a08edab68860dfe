package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/runa-lang/runac/irgen"
)

func cmdTokens(fn string, opts options) error {
	toks, err := lexFile(fn)
	if err != nil {
		return err
	}
	if opts.test {
		return nil
	}
	for _, t := range toks {
		fmt.Printf("%s %q (%d, %d)\n", t.Kind, t.Value, t.Pos.Line, t.Pos.Col)
	}
	return nil
}

func cmdParse(fn string, opts options) error {
	mod, err := parseFile(fn)
	if err != nil {
		return err
	}
	if opts.test {
		return nil
	}
	fmt.Printf("%#v\n", mod)
	return nil
}

// cmdShow runs every pass through whichever one --last names and
// prints its result. "types" shows the interned type table; "flow"
// and "escape" both show the textual CFG (escape analysis only flips
// annotation flags on the same graph, so the two passes share a
// renderer — see DESIGN.md's note on this simplification).
func cmdShow(fn string, opts options) error {
	mod, err := parseFile(fn)
	if err != nil {
		return err
	}
	u, err := buildUnit(mod)
	if err != nil {
		return err
	}
	if opts.test {
		return nil
	}
	switch opts.last {
	case "types":
		for _, name := range u.reg.Names() {
			fmt.Println(name)
		}
	case "flow", "escape", "":
		out, err := irgen.Emit(context.Background(), u.funcs)
		if err != nil {
			return err
		}
		fmt.Print(out)
	default:
		return fmt.Errorf("show: unknown pass %q", opts.last)
	}
	return nil
}

func cmdGenerate(fn string, opts options) error {
	ir, err := generateIR(fn)
	if err != nil {
		return err
	}
	if !opts.test {
		fmt.Print(ir)
	}
	return nil
}

func generateIR(fn string) (string, error) {
	mod, err := parseFile(fn)
	if err != nil {
		return "", err
	}
	u, err := buildUnit(mod)
	if err != nil {
		return "", err
	}
	return irgen.Emit(context.Background(), u.funcs)
}

func cmdCompile(fn string, opts options) error {
	ir, err := generateIR(fn)
	if err != nil {
		return err
	}
	stem := strings.TrimSuffix(filepath.Base(fn), ".rns")
	return assembleAndLink(ir, stem)
}

func cmdDoc(fn string, opts options) error {
	html, err := renderDocs(fn)
	if err != nil {
		return err
	}
	if opts.test {
		return nil
	}
	_, err = os.Stdout.WriteString(html)
	return err
}
