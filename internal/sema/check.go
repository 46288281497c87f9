package sema

import (
	"fmt"
	"slices"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/facts"
	"refine/internal/pred"
	"refine/internal/trace"
	"refine/internal/types"
)

// Options configure a semantic pass.
type Options struct {
	Tracer trace.Tracer
	// Parent is the span the check spans nest under.
	Parent uint64
	// MaxDiagnostics bounds the diagnostic bag; zero means 1000.
	MaxDiagnostics int
}

// Result stores what one pass over the tree found. Obligations are in
// pre-order of their sites and still unsolved, except the Decided ones.
type Result struct {
	Obligations []*Obligation
	Diagnostics []diag.Diagnostic
	Holes       []Hole
	Signatures  map[string]*Signature
	Records     map[string]*RecordInfo
	Enums       map[string]*EnumInfo
	// Names lists the names a misspelled reference could have meant, keyed
	// by diagnostic ID.
	Names map[string][]string
}

// Check extracts obligations and diagnostics from a well-formed tree. A tree
// that fails ast.Validate is rejected with an error wrapping
// ast.ErrStructure.
func Check(tree *ast.Tree, opts Options) (*Result, error) {
	if err := ast.Validate(tree); err != nil {
		return nil, err
	}
	max := opts.MaxDiagnostics
	if max <= 0 {
		max = 1000
	}
	bag := diag.NewBag(max)
	c := &checker{
		tree:      tree,
		tracer:    opts.Tracer,
		parent:    opts.Parent,
		bag:       bag,
		reporter:  diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
		sigs:      make(map[string]*Signature),
		sigByDecl: make(map[ast.NodeID]*Signature),
		records:   make(map[string]*RecordInfo),
		enums:     make(map[string]*EnumInfo),
		variants:  make(map[string]*EnumInfo),
		opaque:    make(map[string]bool),
		declared:  make(map[string]ast.NodeID),
		terms:     make(map[ast.NodeID]*pred.Term),
		fields:    make(map[ast.NodeID]*FieldInfo),
		emitted:   make(map[string]bool),
		names:     make(map[string][]string),
	}
	c.run()
	return &Result{
		Obligations: c.obligations,
		Diagnostics: bag.Sorted(),
		Holes:       c.holes,
		Signatures:  c.sigs,
		Records:     c.records,
		Enums:       c.enums,
		Names:       c.names,
	}, nil
}

type checker struct {
	tree     *ast.Tree
	tracer   trace.Tracer
	parent   uint64
	bag      *diag.Bag
	reporter diag.Reporter

	sigs      map[string]*Signature
	sigByDecl map[ast.NodeID]*Signature
	records   map[string]*RecordInfo
	enums     map[string]*EnumInfo
	variants  map[string]*EnumInfo
	opaque    map[string]bool
	declared  map[string]ast.NodeID // user declarations by name

	ctx    *facts.Context
	fn     *fnState
	terms  map[ast.NodeID]*pred.Term // value term of every checked expression
	fields map[ast.NodeID]*FieldInfo // resolved field selections

	obligations []*Obligation
	emitted     map[string]bool
	holes       []Hole
	names       map[string][]string
}

// fnState is what the checker tracks while inside one function body.
type fnState struct {
	decl      ast.NodeID
	sig       *Signature
	paramKeys map[string]bool
	lin       *linearity

	needed       types.EffectSet
	sites        []ast.NodeID // effectful calls
	missing      types.EffectSet
	missingSites []ast.NodeID
}

func (c *checker) run() {
	rootSpan := trace.Begin(c.tracer, trace.ScopePass, "sema_check", c.parent)
	defer rootSpan.End("")

	phase := func(name string) func() {
		span := trace.Begin(c.tracer, trace.ScopePass, name, rootSpan.ID())
		return func() { span.End("") }
	}

	done := phase("collect_prelude")
	for _, name := range opaqueTypes {
		c.opaque[name] = true
	}
	c.collectDecls(prelude(), true)
	done()

	done = phase("collect_decls")
	c.collectDecls(c.tree, false)
	done()

	done = phase("check_bodies")
	for _, decl := range c.tree.Children(c.tree.Root()) {
		if c.tree.Kind(decl) == ast.KindFn {
			c.checkFn(decl)
		}
	}
	done()
}

// report starts an error diagnostic at id. Problems inside the prelude are
// never reported.
func (c *checker) report(t *ast.Tree, code diag.Code, id ast.NodeID, format string, args ...any) *diag.ReportBuilder {
	if t != c.tree {
		return nil
	}
	return diag.ReportError(c.reporter, code, id, c.tree.Span(id), fmt.Sprintf(format, args...))
}

// suggest records rename candidates for the diagnostic with code at id.
func (c *checker) suggest(code diag.Code, id ast.NodeID, names []string) {
	c.names[diag.MakeID(code, id)] = names
}

// collectDecls registers types first and then fields and signatures, so
// declarations may refer to each other in any order.
func (c *checker) collectDecls(t *ast.Tree, builtin bool) {
	decls := t.Children(t.Root())
	for _, id := range decls {
		n := t.Node(id)
		switch n.Kind {
		case ast.KindRecord:
			if c.declare(t, id, builtin) {
				c.records[n.Name] = &RecordInfo{Name: n.Name, Decl: id}
			}
		case ast.KindEnum:
			if c.declare(t, id, builtin) {
				c.collectEnum(t, id)
			}
		}
	}
	for _, id := range decls {
		n := t.Node(id)
		switch n.Kind {
		case ast.KindRecord:
			if r := c.records[n.Name]; r != nil && r.Decl == id {
				c.collectFields(t, r)
			}
		case ast.KindFn:
			sig := c.collectSignature(t, id, builtin)
			c.sigByDecl[id] = sig
			if c.declare(t, id, builtin) {
				c.sigs[n.Name] = sig
			}
		}
	}
}

// declare claims a module-level name. It reports and returns false when the
// name is taken by a built-in or an earlier declaration.
func (c *checker) declare(t *ast.Tree, id ast.NodeID, builtin bool) bool {
	name := t.Node(id).Name
	if builtin {
		return true
	}
	if prev, ok := c.declared[name]; ok {
		c.report(t, diag.SemaDuplicateDecl, id, "'%s' is already declared", name).
			With("name", name).WithSecondary(prev).Emit()
		return false
	}
	_, isBuiltinType := types.Builtin(name)
	if _, isPrelude := c.sigs[name]; isPrelude || isBuiltinType || c.opaque[name] {
		c.report(t, diag.SemaDuplicateDecl, id, "'%s' redeclares a built-in", name).
			With("name", name).Emit()
		return false
	}
	c.declared[name] = id
	return true
}

func (c *checker) collectEnum(t *ast.Tree, id ast.NodeID) {
	n := t.Node(id)
	e := &EnumInfo{Name: n.Name, Decl: id}
	seen := make(map[string]ast.NodeID)
	for _, v := range n.Children {
		name := t.Node(v).Name
		if prev, dup := seen[name]; dup {
			c.report(t, diag.SemaDuplicateDecl, v, "duplicate variant '%s' in enum %s", name, n.Name).
				With("name", name).WithSecondary(prev).Emit()
			continue
		}
		seen[name] = v
		e.Variants = append(e.Variants, name)
		if _, taken := c.variants[name]; !taken {
			c.variants[name] = e
		}
	}
	c.enums[n.Name] = e
}

func (c *checker) collectFields(t *ast.Tree, r *RecordInfo) {
	c.ctx = facts.New()
	seen := make(map[string]ast.NodeID)
	for _, fid := range t.Children(r.Decl) {
		fn := t.Node(fid)
		if prev, dup := seen[fn.Name]; dup {
			c.report(t, diag.SemaDuplicateDecl, fid, "duplicate field '%s' in record %s", fn.Name, r.Name).
				With("name", fn.Name).WithSecondary(prev).Emit()
			continue
		}
		seen[fn.Name] = fid
		typ := c.resolveType(t, fn.Children[0])
		if typ == nil {
			typ = types.Unknown
		}
		r.Fields = append(r.Fields, FieldInfo{Name: fn.Name, Type: typ, Node: fid})
	}
}

// collectSignature resolves parameter types left to right, so a parameter
// refinement can mention earlier parameters, then lowers the contract.
func (c *checker) collectSignature(t *ast.Tree, id ast.NodeID, builtin bool) *Signature {
	n := t.Node(id)
	sig := &Signature{Name: n.Name, Decl: id, Builtin: builtin, tree: t}
	c.ctx = facts.New()
	c.ctx.EnterScope()

	seen := make(map[string]ast.NodeID)
	for _, pid := range t.Children(n.Children[0]) {
		pn := t.Node(pid)
		typ := c.resolveType(t, pn.Children[0])
		if typ == nil {
			typ = types.Unknown
		}
		if prev, dup := seen[pn.Name]; dup {
			c.report(t, diag.SemaDuplicateDecl, pid, "duplicate parameter '%s'", pn.Name).
				With("name", pn.Name).WithSecondary(prev).Emit()
		}
		seen[pn.Name] = pid
		p := Param{Name: pn.Name, Key: pid.String(), Type: typ, Node: pid}
		sig.Params = append(sig.Params, p)
		c.ctx.Bind(facts.Binding{Name: p.Name, Key: p.Key, Type: typ, Intro: facts.IntroParam})
	}

	sig.Result = c.resolveType(t, n.Children[1])
	if sig.Result == nil {
		sig.Result = types.Unknown
	}

	for _, rid := range t.Children(n.Children[2]) {
		sig.Requires = append(sig.Requires, Clause{Node: rid, Pred: c.contract(t, rid, nil)})
	}
	result := (*scopeEnv)(nil).with("result", envVar{
		term: pred.Var("result", ResultKey, sig.Result.Sort()),
		typ:  sig.Result,
	})
	for _, eid := range t.Children(n.Children[3]) {
		sig.Ensures = append(sig.Ensures, Clause{Node: eid, Pred: c.contract(t, eid, result)})
	}

	effects, err := types.ParseEffects(n.Effects)
	if err != nil {
		c.report(t, diag.SemaMalformedContract, id, "function %s: %v", n.Name, err).
			With("kind", "malformed_effect").Emit()
	}
	sig.Effects = effects
	return sig
}

// contract lowers a Bool clause.
func (c *checker) contract(t *ast.Tree, id ast.NodeID, env *scopeEnv) *pred.Term {
	p, typ := c.lower(t, id, env)
	c.expectBool(t, id, typ)
	return p
}

func (c *checker) expectBool(t *ast.Tree, id ast.NodeID, typ *types.Type) {
	if typ == nil || typ.Kind == types.KindBool || typ.Kind == types.KindUnknown || typ.Kind == types.KindNever {
		return
	}
	c.report(t, diag.SemaTypeMismatch, id, "condition must be Bool, found %s", typ).
		With("expected", "Bool").With("got", typ.String()).Emit()
}

// expectAssignable reports a mismatch when a value of type got cannot flow
// into want.
func (c *checker) expectAssignable(id ast.NodeID, got, want *types.Type, what string) {
	if got == nil || want == nil || types.Assignable(got, want) {
		return
	}
	c.report(c.tree, diag.SemaTypeMismatch, id, "%s: expected %s, found %s", what, want.Base(), got.Base()).
		With("expected", want.Base().String()).With("got", got.Base().String()).Emit()
}

// typeNames lists every type name in scope, for rename suggestions.
func (c *checker) typeNames() []string {
	names := []string{"Bool", "Int", "Never", "Real", "String", "Unit"}
	for name := range c.records {
		names = append(names, name)
	}
	for name := range c.enums {
		names = append(names, name)
	}
	for name := range c.opaque {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// fnNames lists every callable name.
func (c *checker) fnNames() []string {
	names := make([]string, 0, len(c.sigs))
	for name := range c.sigs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
