// Package types interns and resolves Runa's type graph: primitives,
// nominal records and traits, their template (generic) forms, and the
// owner/ref/opt wrapper types that carry ownership and nullability.
// The split between Basic/Record/Trait/Template/wrapper concrete types
// and the bitflag Info on Basic mirrors go/types' Type/Basic/BasicInfo
// design; the two-phase Add-then-Fill registration (so mutually
// recursive records resolve) and the exact compatibility rules come
// from original_source/runac/types.py's add/fill/compat/get.
package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/runa-lang/runac/ast"
)

// Type is implemented by every entry a Registry can hand back.
type Type interface {
	// Name is the Runa-surface spelling, e.g. "int", "$Box[int]", "&Shape".
	Name() string
	// IR is the LLVM-level spelling. It panics for types that have no
	// concrete representation (templates, and the generic anyint/anyfloat
	// literal types before they're pinned to a concrete width).
	IR() string
	String() string
}

// Kind classifies a Basic type, the way BasicKind does in go/types.
type Kind int

const (
	KBool Kind = iota
	KByte
	KI32
	KU32
	KInt
	KUint
	KFloat
	KVoid
	KAnyInt
	KAnyFloat
	KVarArgs
)

// Info is a set of bitflags describing properties of a Basic type,
// mirrored from go/types.BasicInfo.
type Info int

const (
	IsBoolean Info = 1 << iota
	IsInteger
	IsUnsigned
	IsFloat
	IsGeneric // anyint / anyfloat: a literal not yet pinned to a width

	IsNumeric = IsInteger | IsFloat
)

// Basic is a primitive scalar type.
type Basic struct {
	kind   Kind
	name   string
	ir     string
	byVal  bool
	signed bool
	bits   int
	info   Info
}

func (b *Basic) Name() string { return b.name }
func (b *Basic) String() string { return b.name }
func (b *Basic) IR() string {
	if b.ir == "" {
		panic(fmt.Sprintf("%s is not a concrete type", b.name))
	}
	return b.ir
}
func (b *Basic) Kind() Kind   { return b.kind }
func (b *Basic) Info() Info   { return b.info }
func (b *Basic) ByVal() bool  { return b.byVal }
func (b *Basic) Signed() bool { return b.signed }
func (b *Basic) Bits() int    { return b.bits }

// Field is one attribute slot of a Record, in declaration order.
type Field struct {
	Index int
	Type  Type
}

// MethodArg is one formal parameter of a Method, as registered by Fill.
type MethodArg struct {
	Name string
	Type Type
}

// Method is a resolved member function signature.
type Method struct {
	IRName string
	RType  Type
	Args   []MethodArg
}

// Formal returns the argument types only, the shape Compat expects.
func (m *Method) Formal() []Type {
	out := make([]Type, len(m.Args))
	for i, a := range m.Args {
		out[i] = a.Type
	}
	return out
}

// Record is a concrete nominal struct type (a `class` with no template
// parameters, or a template after Apply has pinned its parameters).
// Methods maps a surface name to its ordered overload list: §3 allows
// the same method name to appear more than once with differing formal
// argument types (e.g. a family of `__init__` overloads).
type Record struct {
	name    string
	ir      string
	byVal   bool
	Attribs map[string]*Field
	Methods map[string][]*Method
}

// Overloads returns every overload of name declared on t, unwrapping a
// Trait's single nominal signature into a one-element slice so callers
// (§4.1's select) can treat Record and Trait method lookups uniformly.
func Overloads(t Type, name string) []*Method {
	switch v := t.(type) {
	case *Record:
		return v.Methods[name]
	case *Trait:
		if m, ok := v.Methods[name]; ok {
			return []*Method{m}
		}
		return nil
	default:
		return nil
	}
}

func (r *Record) Name() string   { return r.name }
func (r *Record) String() string { return r.name }
func (r *Record) IR() string     { return r.ir }

// Trait is a nominal interface: an unordered, named method-signature set.
type Trait struct {
	name    string
	Methods map[string]*Method
}

func (t *Trait) Name() string   { return t.name }
func (t *Trait) String() string { return t.name }
func (t *Trait) IR() string     { return "%" + t.name + ".wrap" }

// Template is a record or trait declared with type parameters. It has
// no IR of its own; Apply pins its parameters and returns a concrete
// Record.
type Template struct {
	name    string
	isTrait bool
	params  []string
	node    ast.Stmt // *ast.Class or *ast.Trait, kept for Apply
	stubs   map[string]*Stub
	attribs []rawAttrib
	methods []rawMethod
	cache   map[string]*Record
}

func (t *Template) Name() string   { return t.name }
func (t *Template) String() string { return "template " + t.name }
func (t *Template) IR() string     { panic(fmt.Sprintf("%s is not a concrete type", t.name)) }

type rawAttrib struct {
	name string
	typ  Type // may contain *Stub placeholders
}

type rawMethod struct {
	name   string
	irName string
	rtype  Type
	args   []rawArg
}

type rawArg struct {
	name string
	typ  Type
}

// Stub stands in for a template parameter inside a Template's raw
// attrib/method types, until Apply substitutes the real argument.
type Stub struct{ name string }

func (s *Stub) Name() string   { return s.name }
func (s *Stub) String() string { return "<param " + s.name + ">" }
func (s *Stub) IR() string     { panic("stub type has no IR") }

// Owner is `$T`: a uniquely-owned value of type T.
type Owner struct{ Over Type }

func (o *Owner) Name() string   { return "$" + o.Over.Name() }
func (o *Owner) String() string { return o.Name() }
func (o *Owner) IR() string     { return o.Over.IR() + "*" }

// Ref is `&T`: a borrowed, non-owning reference to a value of type T.
type Ref struct{ Over Type }

func (r *Ref) Name() string   { return "&" + r.Over.Name() }
func (r *Ref) String() string { return r.Name() }
func (r *Ref) IR() string     { return r.Over.IR() + "*" }

// Opt is `T?`: T or the absence of a value.
type Opt struct{ Over Type }

func (o *Opt) Name() string   { return o.Over.Name() + "?" }
func (o *Opt) String() string { return o.Name() }
func (o *Opt) IR() string     { return o.Over.IR() }

// Function is a first-class function signature type. No surface syntax
// produces one, and the flow builder types call targets through Method
// and FuncSig rather than through this type.
type Function struct {
	RType  Type
	Formal []Type
}

func (f *Function) Name() string { return f.String() }
func (f *Function) String() string {
	parts := make([]string, len(f.Formal))
	for i, t := range f.Formal {
		parts[i] = t.Name()
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), f.RType.Name())
}
func (f *Function) IR() string { panic("function type has no standalone IR") }

// VarArgs marks a trailing `...T` formal parameter as variadic.
type VarArgs struct{}

func (VarArgs) Name() string   { return "..." }
func (VarArgs) String() string { return "..." }
func (VarArgs) IR() string     { return "..." }

// Void is the empty return type.
var Void Type = &Basic{kind: KVoid, name: "void", ir: "void", byVal: true}

// Wrappers returns true if t is one of Owner/Ref/Opt.
func isWrapper(t Type) bool {
	switch t.(type) {
	case *Owner, *Ref, *Opt:
		return true
	}
	return false
}

// Unwrap strips Owner/Ref/Opt wrappers, returning the underlying type.
func Unwrap(t Type) Type {
	for {
		switch w := t.(type) {
		case *Owner:
			t = w.Over
		case *Ref:
			t = w.Over
		case *Opt:
			t = w.Over
		default:
			return t
		}
	}
}

// IsGenericLiteral reports whether t (after unwrapping) is the
// not-yet-pinned anyint/anyfloat literal type.
func IsGenericLiteral(t Type) bool {
	b, ok := Unwrap(t).(*Basic)
	return ok && b.info&IsGeneric != 0
}

// basicDefs holds the BASIC ir-name table from original_source's BASIC
// dict, plus INTEGERS' (signed, bits) table.
var basicDefs = []struct {
	name     string
	ir       string
	signed   bool
	bits     int
	isInt    bool
	isFloat  bool
	isBool   bool
}{
	{name: "bool", ir: "i1", isBool: true},
	{name: "byte", ir: "i8", signed: false, bits: 8, isInt: true},
	{name: "i32", ir: "i32", signed: true, bits: 32, isInt: true},
	{name: "u32", ir: "i32", signed: false, bits: 32, isInt: true},
	{name: "int", ir: "i64", signed: true, bits: 64, isInt: true},
	{name: "uint", ir: "i64", signed: false, bits: 64, isInt: true},
	{name: "float", ir: "double", signed: true, bits: 64, isFloat: true},
}

// Registry interns every named type reachable from a Module. Zero value
// is not usable; use NewRegistry.
type Registry struct {
	all    map[string]Type
	ints   map[string]*Basic // name -> Basic, every concrete integer width
	sints  map[string]bool
	uints  map[string]bool
	floats map[string]bool
	tuples map[string]*Record // memoized build_tuple results, keyed by element types
}

// NewRegistry builds a Registry pre-populated with Runa's built-in
// primitives (§3's Basic kinds) and the generic anyint/anyfloat literal
// markers used for un-suffixed numeric literals before they're pinned.
func NewRegistry() *Registry {
	r := &Registry{
		all:    map[string]Type{},
		ints:   map[string]*Basic{},
		sints:  map[string]bool{},
		uints:  map[string]bool{},
		floats: map[string]bool{},
		tuples: map[string]*Record{},
	}
	r.all["void"] = Void
	r.all["..."] = VarArgs{}

	for _, d := range basicDefs {
		info := Info(0)
		switch {
		case d.isBool:
			info = IsBoolean
		case d.isInt && d.signed:
			info = IsInteger
		case d.isInt:
			info = IsInteger | IsUnsigned
		case d.isFloat:
			info = IsFloat
		}
		b := &Basic{kind: basicKindOf(d.name), name: d.name, ir: d.ir, byVal: true, signed: d.signed, bits: d.bits, info: info}
		r.all[d.name] = b
		if d.isInt {
			r.ints[d.name] = b
			if d.signed {
				r.sints[d.name] = true
			} else {
				r.uints[d.name] = true
			}
		}
		if d.isFloat {
			r.floats[d.name] = true
		}
	}

	anyint := &Basic{kind: KAnyInt, name: "anyint", info: IsInteger | IsGeneric}
	anyfloat := &Basic{kind: KAnyFloat, name: "anyfloat", info: IsFloat | IsGeneric}
	r.all["anyint"] = anyint
	r.all["anyfloat"] = anyfloat

	return r
}

func basicKindOf(name string) Kind {
	switch name {
	case "bool":
		return KBool
	case "byte":
		return KByte
	case "i32":
		return KI32
	case "u32":
		return KU32
	case "int":
		return KInt
	case "uint":
		return KUint
	case "float":
		return KFloat
	default:
		return KVoid
	}
}

// DefineOpaqueRecord registers a builtin record type that has no
// surface `class` declaration of its own (str, file, the iterator
// types range() hands back) — the runtime types LIBRARY's signatures
// are typed against. Callers may still populate Methods/Attribs on the
// returned Record afterward.
func (r *Registry) DefineOpaqueRecord(name, ir string) *Record {
	rec := &Record{name: name, ir: ir, byVal: false, Attribs: map[string]*Field{}, Methods: map[string][]*Method{}}
	r.all[name] = rec
	return rec
}

// Lookup returns a previously registered type by its declared name.
func (r *Registry) Lookup(name string) (Type, bool) {
	t, ok := r.all[name]
	return t, ok
}

// Names returns every interned type name, mirroring go/types.Scope.Names
// — an introspection seam for driver-level tooling (e.g. `runac show
// --last=types`), never used by the core passes themselves.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.all))
	for n := range r.all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Add registers a stub entry for a Class or Trait declaration: a named
// placeholder with empty Attribs/Methods, so that forward and mutually
// recursive references resolve during Fill. Mirrors types.py's add().
func (r *Registry) Add(node ast.Stmt) error {
	switch n := node.(type) {
	case *ast.Trait:
		if len(asTraitParams(n)) > 0 {
			r.all[n.Name] = &Template{name: n.Name, isTrait: true, node: n, cache: map[string]*Record{}}
			return nil
		}
		r.all[n.Name] = &Trait{name: n.Name, Methods: map[string]*Method{}}
	case *ast.Class:
		if len(n.Params) > 0 {
			r.all[n.Name] = &Template{name: n.Name, params: n.Params, node: n, cache: map[string]*Record{}}
			return nil
		}
		r.all[n.Name] = &Record{name: n.Name, Attribs: map[string]*Field{}, Methods: map[string][]*Method{}}
	default:
		return fmt.Errorf("types.Add: %T is not a type declaration", node)
	}
	return nil
}

// asTraitParams exists only because ast.Trait carries no Params field
// today; traits are never generic in this surface, so it always
// returns nil. Kept as a seam in case that changes.
func asTraitParams(*ast.Trait) []string { return nil }

// Fill populates a previously Add-ed entry's attribs and methods,
// resolving each declared TypeExpr against the Registry (and, for a
// Template, against its own parameter stubs). Mirrors types.py's fill().
func (r *Registry) Fill(node ast.Stmt) error {
	switch n := node.(type) {
	case *ast.Trait:
		tr, ok := r.all[n.Name].(*Trait)
		if !ok {
			return fmt.Errorf("types.Fill: %s was not Add-ed as a trait", n.Name)
		}
		for _, m := range n.Methods {
			rtype, err := r.Get(m.RType, nil)
			if err != nil {
				return err
			}
			args, err := r.fillArgs(n.Name, "", m.Args, nil)
			if err != nil {
				return err
			}
			tr.Methods[m.Name] = &Method{IRName: n.Name + "." + m.Name, RType: rtype, Args: args}
		}
		return nil

	case *ast.Class:
		if len(n.Params) > 0 {
			return r.fillTemplate(n)
		}
		rec, ok := r.all[n.Name].(*Record)
		if !ok {
			return fmt.Errorf("types.Fill: %s was not Add-ed as a record", n.Name)
		}
		for i, a := range n.Attribs {
			t, err := r.Get(a.Type, nil)
			if err != nil {
				return err
			}
			rec.Attribs[a.Name] = &Field{Index: i, Type: t}
		}
		for _, m := range n.Methods {
			irName := n.Name + "." + m.Name
			rtype := Type(Void)
			if m.RType != nil {
				var err error
				rtype, err = r.Get(m.RType, nil)
				if err != nil {
					return err
				}
			}
			args, err := r.fillArgs(n.Name, m.Name, m.Args, nil)
			if err != nil {
				return err
			}
			overloads := rec.Methods[m.Name]
			if len(overloads) > 0 {
				irName = n.Name + "." + Mangle(m.Name, argTypesAfterSelf(args))
			}
			rec.Methods[m.Name] = append(overloads, &Method{IRName: irName, RType: rtype, Args: args})
			m.IRName = irName
		}
		if b, ok := findBasicDef(n.Name); ok {
			rec.ir = b.ir
			rec.byVal = true
			if b.isInt {
				obj := &Basic{kind: basicKindOf(n.Name), name: n.Name, ir: b.ir, byVal: true, signed: b.signed, bits: b.bits}
				r.ints[n.Name] = obj
				if b.signed {
					r.sints[n.Name] = true
				} else {
					r.uints[n.Name] = true
				}
			}
		}
		return nil

	default:
		return fmt.Errorf("types.Fill: %T is not a type declaration", node)
	}
}

// argTypesAfterSelf strips a leading `self` receiver (if any) so the
// mangled suffix for disambiguating overloads is derived only from the
// user-visible formal arguments, per SPEC_FULL.md's deterministic
// overload-mangling rule.
func argTypesAfterSelf(args []MethodArg) []Type {
	start := 0
	if len(args) > 0 && args[0].Name == "self" {
		start = 1
	}
	out := make([]Type, len(args)-start)
	for i, a := range args[start:] {
		out[i] = a.Type
	}
	return out
}

func findBasicDef(name string) (struct {
	name     string
	ir       string
	signed   bool
	bits     int
	isInt    bool
	isFloat  bool
	isBool   bool
}, bool) {
	for _, d := range basicDefs {
		if d.name == name {
			return d, true
		}
	}
	return basicDefs[0], false
}

// fillArgs resolves a method's formal parameter list, special-casing a
// leading `self` the way types.py's fill() does: self's type is the
// enclosing record or template, wrapped as Owner for a destructor
// (`__del__`) and Ref otherwise.
func (r *Registry) fillArgs(ownerName, methodName string, args []*ast.Arg, stubs map[string]*Stub) ([]MethodArg, error) {
	out := make([]MethodArg, 0, len(args))
	for i, a := range args {
		if i == 0 && a.Name == "self" {
			var over Type
			if len(stubs) > 0 {
				over = &namedStubRef{name: ownerName}
			} else if t, ok := r.all[ownerName]; ok {
				over = t
			} else {
				over = &namedStubRef{name: ownerName}
			}
			if methodName == "__del__" {
				out = append(out, MethodArg{Name: "self", Type: &Owner{Over: over}})
			} else {
				out = append(out, MethodArg{Name: "self", Type: &Ref{Over: over}})
			}
			continue
		}
		t, err := r.Get(a.Type, stubsAsMap(stubs))
		if err != nil {
			return nil, err
		}
		out = append(out, MethodArg{Name: a.Name, Type: t})
	}
	return out, nil
}

// namedStubRef is a lazily-resolved self-reference used only while
// filling a template, where the enclosing type isn't a concrete Record
// yet. Apply substitutes it for the real instantiated Record.
type namedStubRef struct{ name string }

func (n *namedStubRef) Name() string   { return n.name }
func (n *namedStubRef) String() string { return n.name }
func (n *namedStubRef) IR() string     { panic("unresolved self type") }

func stubsAsMap(s map[string]*Stub) map[string]Type {
	if s == nil {
		return nil
	}
	m := make(map[string]Type, len(s))
	for k, v := range s {
		m[k] = v
	}
	return m
}

// fillTemplate records a generic Class's raw attrib/method shapes
// (substituting Stub placeholders for occurrences of its own type
// parameters) without yet producing any concrete Record. Apply later
// pins the parameters. Mirrors types.py's template machinery.
func (r *Registry) fillTemplate(n *ast.Class) error {
	tmpl, ok := r.all[n.Name].(*Template)
	if !ok {
		return fmt.Errorf("types.Fill: %s was not Add-ed as a template", n.Name)
	}
	stubs := make(map[string]*Stub, len(n.Params))
	for _, p := range n.Params {
		stubs[p] = &Stub{name: p}
	}
	tmpl.stubs = stubs

	for i, a := range n.Attribs {
		t, err := r.Get(a.Type, stubsAsMap(stubs))
		if err != nil {
			return err
		}
		tmpl.attribs = append(tmpl.attribs, rawAttrib{name: a.Name})
		tmpl.attribs[i].typ = t
	}
	for _, m := range n.Methods {
		irName := n.Name + "." + m.Name
		rtype := Type(Void)
		if m.RType != nil {
			var err error
			rtype, err = r.Get(m.RType, stubsAsMap(stubs))
			if err != nil {
				return err
			}
		}
		var rargs []rawArg
		for i, a := range m.Args {
			if i == 0 && a.Name == "self" {
				var over Type = &namedStubRef{name: n.Name}
				if m.Name == "__del__" {
					rargs = append(rargs, rawArg{name: "self", typ: &Owner{Over: over}})
				} else {
					rargs = append(rargs, rawArg{name: "self", typ: &Ref{Over: over}})
				}
				continue
			}
			t, err := r.Get(a.Type, stubsAsMap(stubs))
			if err != nil {
				return err
			}
			rargs = append(rargs, rawArg{name: a.Name, typ: t})
		}
		tmpl.methods = append(tmpl.methods, rawMethod{name: m.Name, irName: irName, rtype: rtype, args: rargs})
		m.IRName = irName
	}
	return nil
}

// Apply instantiates a Template with concrete type parameters, caching
// the result so repeated applications with the same parameters return
// the identical *Record (types.py's template.__getitem__ memoizes via
// the module-level ALL dict keyed by (name, params)).
func (r *Registry) Apply(tmpl *Template, params []Type) (*Record, error) {
	key := mangleParams(params)
	if rec, ok := tmpl.cache[key]; ok {
		return rec, nil
	}
	if len(params) != len(tmpl.params) {
		return nil, fmt.Errorf("types.Apply: %s takes %d parameter(s), got %d", tmpl.name, len(tmpl.params), len(params))
	}
	trans := make(map[string]Type, len(params))
	for i, p := range tmpl.params {
		trans[p] = params[i]
	}

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
	}
	surfaceName := fmt.Sprintf("%s[%s]", tmpl.name, strings.Join(names, ", "))
	irName := "%" + tmpl.name + "$" + strings.Join(irNames(params), ".")

	rec := &Record{name: surfaceName, ir: irName, Attribs: map[string]*Field{}, Methods: map[string][]*Method{}}
	tmpl.cache[key] = rec

	for i, a := range tmpl.attribs {
		rec.Attribs[a.name] = &Field{Index: i, Type: substitute(a.typ, trans, rec)}
	}
	for _, m := range tmpl.methods {
		args := make([]MethodArg, len(m.args))
		for i, a := range m.args {
			args[i] = MethodArg{Name: a.name, Type: substitute(a.typ, trans, rec)}
		}
		irName := m.irName
		if existing := rec.Methods[m.name]; len(existing) > 0 {
			irName = tmpl.name + "." + Mangle(m.name, argTypesAfterSelf(args))
		}
		rec.Methods[m.name] = append(rec.Methods[m.name], &Method{IRName: irName, RType: substitute(m.rtype, trans, rec), Args: args})
	}
	return rec, nil
}

// BuildTuple interns a tuple of elems as a concrete anonymous Record
// whose fields are named v0, v1, …, memoized by element types the same
// way Apply memoizes a template instantiation (§4.1's build_tuple).
func (r *Registry) BuildTuple(elems []Type) (*Record, error) {
	key := mangleParams(elems)
	if rec, ok := r.tuples[key]; ok {
		return rec, nil
	}
	names := irNames(elems)
	surfaceName := fmt.Sprintf("(%s)", strings.Join(names, ", "))
	irName := "%tuple$" + strings.Join(irNames(elems), ".")

	rec := &Record{name: surfaceName, ir: irName, byVal: true, Attribs: map[string]*Field{}, Methods: map[string][]*Method{}}
	for i, e := range elems {
		rec.Attribs[fmt.Sprintf("v%d", i)] = &Field{Index: i, Type: e}
	}
	r.tuples[key] = rec
	return rec, nil
}

// substitute replaces Stub placeholders (template parameters) and
// namedStubRef placeholders (unresolved self-references) with their
// concrete bindings, recursing through Owner/Ref/Opt wrappers.
func substitute(t Type, trans map[string]Type, self Type) Type {
	switch v := t.(type) {
	case *Stub:
		if bound, ok := trans[v.name]; ok {
			return bound
		}
		return t
	case *namedStubRef:
		return self
	case *Owner:
		return &Owner{Over: substitute(v.Over, trans, self)}
	case *Ref:
		return &Ref{Over: substitute(v.Over, trans, self)}
	case *Opt:
		return &Opt{Over: substitute(v.Over, trans, self)}
	default:
		return t
	}
}

func irNames(params []Type) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Name()
	}
	return out
}

func mangleParams(params []Type) string {
	names := irNames(params)
	return strings.Join(names, ",")
}

// Get resolves a syntactic TypeExpr into an interned Type, recursing
// through owner/ref/opt/varargs/tuple/template-application forms and
// consulting stubs for names bound to an enclosing template's
// parameters. A nil TypeExpr denotes void. Mirrors types.py's get().
func (r *Registry) Get(t ast.TypeExpr, stubs map[string]Type) (Type, error) {
	if t == nil {
		return Void, nil
	}
	switch n := t.(type) {
	case *ast.NameType:
		if stubs != nil {
			if s, ok := stubs[n.Name]; ok {
				return s, nil
			}
		}
		typ, ok := r.all[n.Name]
		if !ok {
			return nil, fmt.Errorf("no type %q", n.Name)
		}
		return typ, nil
	case *ast.OwnerType:
		over, err := r.Get(n.Value, stubs)
		if err != nil {
			return nil, err
		}
		return &Owner{Over: over}, nil
	case *ast.RefType:
		over, err := r.Get(n.Value, stubs)
		if err != nil {
			return nil, err
		}
		return &Ref{Over: over}, nil
	case *ast.OptType:
		over, err := r.Get(n.Value, stubs)
		if err != nil {
			return nil, err
		}
		return &Opt{Over: over}, nil
	case *ast.VarArgsType:
		return VarArgs{}, nil
	case *ast.ElemType:
		base, err := r.Get(n.Obj, stubs)
		if err != nil {
			return nil, err
		}
		tmpl, ok := base.(*Template)
		if !ok {
			return nil, fmt.Errorf("%s is not a template", n.Obj.Name)
		}
		params := make([]Type, len(n.Params))
		for i, p := range n.Params {
			pt, err := r.Get(p, stubs)
			if err != nil {
				return nil, err
			}
			params[i] = pt
		}
		return r.Apply(tmpl, params)
	case *ast.TupleType:
		elems := make([]Type, len(n.Elems))
		for i, e := range n.Elems {
			et, err := r.Get(e, stubs)
			if err != nil {
				return nil, err
			}
			elems[i] = et
		}
		return r.BuildTuple(elems)
	default:
		return nil, fmt.Errorf("types.Get: unhandled type expression %T", t)
	}
}

// Compat reports whether a value of type a may be used where a formal
// parameter of type f is expected: identical types, an un-pinned
// anyint/anyfloat literal widening to any concrete type in its family,
// wrapper unwrapping (but never passing a &T where a $T is required),
// unsigned-integer widening by bit count, and trait satisfaction by
// structural method matching. Mirrors types.py's compat(actual, formal,
// strict). In strict mode the wrapper-unwrapping step is skipped: a
// wrapper only matches a wrapper of the same kind over compatible
// element types, never the bare element either side wraps (§8's
// reflexivity requirement, compat(t, t, strict=true), still holds
// since sameType already matches identical wrapped types up front).
func Compat(a, f Type, strict bool) bool {
	if sameType(a, f) {
		return true
	}
	ab, aIsBasic := a.(*Basic)
	if aIsBasic && ab.info&IsGeneric != 0 {
		fb, fIsBasic := f.(*Basic)
		if fIsBasic {
			if ab.kind == KAnyInt && fb.info&IsInteger != 0 && fb.info&IsGeneric == 0 {
				return true
			}
			if ab.kind == KAnyFloat && fb.info&IsFloat != 0 {
				return true
			}
		}
	}
	if _, aIsRef := a.(*Ref); aIsRef {
		if _, fIsOwner := f.(*Owner); fIsOwner {
			return false
		}
	}
	if !strict && (isWrapper(a) || isWrapper(f)) {
		return Compat(Unwrap(a), Unwrap(f), false)
	}
	if strict && isWrapper(a) && sameKind(a, f) {
		switch w := a.(type) {
		case *Owner:
			return Compat(w.Over, f.(*Owner).Over, true)
		case *Ref:
			return Compat(w.Over, f.(*Ref).Over, true)
		case *Opt:
			return Compat(w.Over, f.(*Opt).Over, true)
		}
	}
	if ab, ok := a.(*Basic); ok {
		if fb, ok := f.(*Basic); ok {
			if ab.info&IsUnsigned != 0 && fb.info&IsUnsigned != 0 {
				return ab.bits < fb.bits
			}
		}
	}
	if ft, ok := f.(*Trait); ok {
		return satisfiesTrait(a, ft)
	}
	return false
}

// CompatFormal is Compat lifted to argument lists, honoring a trailing
// VarArgs formal the way types.py's compat() does for tuple/list pairs.
func CompatFormal(actual, formal []Type) bool {
	if len(formal) > 0 {
		if _, ok := formal[len(formal)-1].(VarArgs); ok {
			if len(actual) < len(formal)-1 {
				return false
			}
			for i, f := range formal[:len(formal)-1] {
				if !Compat(actual[i], f, false) {
					return false
				}
			}
			return true
		}
	}
	if len(actual) != len(formal) {
		return false
	}
	for i := range actual {
		if !Compat(actual[i], formal[i], false) {
			return false
		}
	}
	return true
}

// satisfiesTrait decides structural trait satisfaction per §4.1: every
// trait method must exist on the actual with a compatible return type
// and an argument-tuple set identical to the trait's. §9's Open
// Question on width subtyping is resolved here as exact set equality —
// an actual with more than one overload under a trait method's name, or
// with a differently-shaped single overload, does not satisfy the
// trait.
func satisfiesTrait(a Type, ft *Trait) bool {
	for name, want := range ft.Methods {
		have := Overloads(a, name)
		if len(have) != 1 {
			return false
		}
		h := have[0]
		if !Compat(h.RType, want.RType, false) {
			return false
		}
		if formalString(argTypesAfterSelf(h.Args)) != formalString(argTypesAfterSelf(want.Args)) {
			return false
		}
	}
	return true
}

func sameType(a, b Type) bool {
	if a == b {
		return true
	}
	return a.Name() == b.Name() && sameKind(a, b)
}

func sameKind(a, b Type) bool {
	switch a.(type) {
	case *Basic:
		_, ok := b.(*Basic)
		return ok
	case *Record:
		_, ok := b.(*Record)
		return ok
	case *Trait:
		_, ok := b.(*Trait)
		return ok
	case *Owner:
		_, ok := b.(*Owner)
		return ok
	case *Ref:
		_, ok := b.(*Ref)
		return ok
	case *Opt:
		_, ok := b.(*Opt)
		return ok
	default:
		return false
	}
}

// OverloadError reports why Select failed to pick a unique overload:
// either no candidate's formal parameters were all compatible with the
// actual arguments (NoMatching), or more than one candidate scored
// positively (Ambiguous). Tried lists each candidate's formal-type
// tuple so the driver can render them for debugging, per §7.
type OverloadError struct {
	Ambiguous bool
	Tried     []string
}

func (e *OverloadError) Error() string {
	kind := "no matching overload"
	if e.Ambiguous {
		kind = "ambiguous overload"
	}
	if len(e.Tried) == 0 {
		return kind
	}
	return fmt.Sprintf("%s: tried (%s)", kind, strings.Join(e.Tried, "), ("))
}

// Select picks the unique best-matching overload from candidates for a
// call with the given actual argument types, following §4.1's scoring
// rule: a candidate whose arity doesn't match (accounting for a
// trailing variadic formal) is skipped outright; each matching
// candidate earns +10 per exactly-equal parameter, +1 per merely
// compatible parameter, and is discarded the instant any parameter is
// incompatible. Exactly one positive-scoring survivor must remain, or
// Select fails with an OverloadError distinguishing "none matched" from
// "more than one matched".
func Select(candidates []*Method, actual []Type) (*Method, error) {
	var tried []string
	var survivors []*Method
	for _, c := range candidates {
		formal := c.Formal()
		tried = append(tried, formalString(formal))
		if score, ok := scoreOverload(formal, actual); ok && score > 0 {
			survivors = append(survivors, c)
		}
	}
	switch len(survivors) {
	case 0:
		return nil, &OverloadError{Tried: tried}
	case 1:
		return survivors[0], nil
	default:
		return nil, &OverloadError{Ambiguous: true, Tried: tried}
	}
}

// scoreOverload reports whether formal's arity accepts actual (honoring
// a trailing VarArgs formal) and, if so, its total parameter score. A
// false ok means arity mismatch: the candidate is skipped, not scored.
func scoreOverload(formal, actual []Type) (score int, ok bool) {
	fixed := formal
	if n := len(formal); n > 0 {
		if _, isVarArgs := formal[n-1].(VarArgs); isVarArgs {
			if len(actual) < n-1 {
				return 0, false
			}
			fixed = formal[:n-1]
		} else if len(actual) != n {
			return 0, false
		}
	} else if len(actual) != 0 {
		return 0, false
	}
	for i, f := range fixed {
		s, compat := scoreParam(actual[i], f)
		if !compat {
			return 0, true
		}
		score += s
	}
	return score, true
}

// scoreParam scores one actual/formal parameter pair: +10 for exact
// equality, +1 for mere Compat, or a false second return to signal an
// incompatible parameter (which disqualifies the whole candidate).
func scoreParam(actual, formal Type) (int, bool) {
	if sameType(actual, formal) {
		return 10, true
	}
	if Compat(actual, formal, false) {
		return 1, true
	}
	return 0, false
}

func formalString(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.Name()
	}
	return strings.Join(parts, ", ")
}

// Mangle produces the deterministic overload-disambiguation suffix
// attached to a function's IR name when more than one declaration
// shares its surface name: a `$` followed by the formal type names in
// argument order, joined with `_`. It is stable under re-compilation
// because Add/Fill process declarations in source order and Mangle
// never reorders its input.
func Mangle(base string, formal []Type) string {
	if len(formal) == 0 {
		return base
	}
	names := make([]string, len(formal))
	for i, t := range formal {
		names[i] = t.Name()
	}
	return base + "$" + strings.Join(names, "_")
}
