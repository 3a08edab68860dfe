package main

import (
	"fmt"
	"os"

	"github.com/runa-lang/runac/ast"
	"github.com/runa-lang/runac/diag"
	"github.com/runa-lang/runac/escape"
	"github.com/runa-lang/runac/flow"
	"github.com/runa-lang/runac/irgen"
	"github.com/runa-lang/runac/lexer"
	"github.com/runa-lang/runac/parser"
	"github.com/runa-lang/runac/token"
	"github.com/runa-lang/runac/types"
)

// unit is one compilation unit fully pushed through the three core
// passes: a type registry, a module context holding every resolved
// signature, and one flow.Graph per declared function or method,
// already escape-annotated.
type unit struct {
	mod   *ast.Module
	reg   *types.Registry
	mctx  *flow.ModuleContext
	funcs []irgen.Function
}

func readSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func lexFile(path string) ([]token.Token, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	return lexer.Lex(src)
}

func parseFile(path string) (*ast.Module, error) {
	toks, err := lexFile(path)
	if err != nil {
		return nil, err
	}
	return parser.Parse(toks)
}

// buildUnit runs type registration/fill, signature resolution, flow
// building and escape analysis over every declaration in mod, in the
// order §5 mandates. Generics (template classes) are registered and
// filled like any other type, but no standalone CFG is built for a
// template's methods — their bodies are only built once the template
// is applied at a concrete parameter list by a use site, which is
// outside this driver's single-compilation-unit scope.
func buildUnit(mod *ast.Module) (*unit, error) {
	reg := types.NewRegistry()
	flow.RegisterRuntimeTypes(reg)

	var classes []*ast.Class
	var traits []*ast.Trait
	var funcs []*ast.Function
	var consts []*ast.ConstAssign

	for _, s := range mod.Suite {
		switch n := s.(type) {
		case *ast.Class:
			classes = append(classes, n)
			if err := reg.Add(n); err != nil {
				return nil, err
			}
		case *ast.Trait:
			traits = append(traits, n)
			if err := reg.Add(n); err != nil {
				return nil, err
			}
		case *ast.Function:
			funcs = append(funcs, n)
		case *ast.ConstAssign:
			consts = append(consts, n)
		case *ast.RelImport:
			// Relative imports across multiple files are out of scope
			// (Non-goals: "surface syntax design" excludes a module
			// resolver); a single-file compilation unit has nothing to
			// resolve one against, so it is accepted and ignored.
		default:
			return nil, diag.Errorf(s.Pos(), "unexpected top-level statement %T", s)
		}
	}

	for _, c := range classes {
		if err := reg.Fill(c); err != nil {
			return nil, err
		}
	}
	for _, t := range traits {
		if err := reg.Fill(t); err != nil {
			return nil, err
		}
	}

	mctx := flow.NewModuleContext(reg)
	mctx.Intrinsics = flow.Intrinsics(reg)
	for name, sigs := range flow.Library(reg) {
		mctx.Functions[name] = sigs
	}

	for _, c := range consts {
		v, err := flow.EvalConstExpr(reg, c.Value)
		if err != nil {
			return nil, err
		}
		mctx.Consts[c.Name] = v
	}

	type pending struct {
		name string
		fn   *ast.Function
		sig  *flow.FuncSig
	}
	var work []pending

	for _, fn := range funcs {
		sig, err := flow.BuildFuncSig(reg, fn)
		if err != nil {
			return nil, err
		}
		mctx.AddFuncSig(sig)
		work = append(work, pending{name: sig.IRName, fn: fn, sig: sig})
	}

	for _, cls := range classes {
		recv, ok := reg.Lookup(cls.Name)
		if !ok {
			return nil, diag.Errorf(cls.Pos(), "internal: class %q not registered", cls.Name)
		}
		if _, isTemplate := recv.(*types.Template); isTemplate {
			continue
		}
		for _, m := range cls.Methods {
			sig, err := flow.BuildMethodSig(reg, recv, m)
			if err != nil {
				return nil, err
			}
			mctx.AddFuncSig(sig)
			// m.IRName was set by reg.Fill, which mangles a disambiguating
			// suffix onto overloaded method names (§4.1); using it here
			// (rather than sig.IRName, which never mangles) keeps the
			// `define` header irgen emits in sync with what a method
			// call site actually resolves to via the Record's method table.
			name := m.IRName
			if name == "" {
				name = sig.IRName
			}
			work = append(work, pending{name: name, fn: m, sig: sig})
		}
	}

	u := &unit{mod: mod, reg: reg, mctx: mctx}
	for _, p := range work {
		if p.sig.External {
			continue
		}
		g, err := flow.Build(mctx, p.fn, p.sig)
		if err != nil {
			return nil, err
		}
		escape.Analyze(g, p.fn.Name == "__del__")
		u.funcs = append(u.funcs, irgen.Function{Name: p.name, Sig: p.sig, Graph: g})
	}
	return u, nil
}

func report(err error) {
	if e, ok := diag.AsError(err); ok {
		fmt.Fprintln(os.Stderr, e.Error())
		return
	}
	fmt.Fprintln(os.Stderr, err.Error())
}
