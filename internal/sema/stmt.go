package sema

import (
	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/facts"
	"refine/internal/pred"
	"refine/internal/types"
)

// unitValue stands for `result` in postconditions of functions returning Unit.
var unitValue = pred.Opaque("()", pred.SortOther)

func (c *checker) checkFn(decl ast.NodeID) {
	sig := c.sigByDecl[decl]
	body := c.tree.Child(decl, 4)
	c.ctx = facts.New()
	c.fn = &fnState{decl: decl, sig: sig, paramKeys: make(map[string]bool), lin: newLinearity()}
	defer func() { c.fn = nil }()

	c.fn.lin.push()
	for _, p := range sig.Params {
		b := c.ctx.Bind(facts.Binding{Name: p.Name, Key: p.Key, Type: p.Type, Intro: facts.IntroParam})
		c.fn.paramKeys[p.Key] = true
		c.ctx.Assume(instantiate(p.Type, b.Term(), nil), facts.ProvParamRefine)
	}
	for _, req := range sig.Requires {
		c.ctx.Assume(req.Pred, facts.ProvPrecondition)
	}
	for _, p := range sig.Params {
		if p.Type.IsLinear() {
			b, _ := c.ctx.Lookup(p.Name)
			c.fn.lin.declare(b, p.Node, c.ctx.Snapshot())
		}
	}

	if !c.block(body) {
		switch sig.Result.Kind {
		case types.KindUnit, types.KindUnknown:
			c.postconditions(ast.NoNodeID, body)
		default:
			c.report(c.tree, diag.SemaTypeMismatch, decl, "function %s can finish without returning %s", sig.Name, sig.Result.Base()).
				With("expected", sig.Result.Base().String()).With("got", "Unit").Emit()
		}
		anchor, place := c.exitAnchor(body)
		c.checkExit(c.fn.lin.top(), anchor, place)
	}
	c.fn.lin.pop()

	c.effectObligation()
	c.linearObligations()
}

// block checks a block in its own scope and merges what it leaves behind
// into the enclosing one. It reports whether the block always diverges.
func (c *checker) block(id ast.NodeID) bool {
	c.ctx.EnterScope()
	c.fn.lin.push()
	div := false
	for _, s := range c.tree.Children(id) {
		if div {
			// unreachable, but still checked for diagnostics
			c.ctx.Assume(pred.False, facts.ProvJoin)
		}
		if c.stmt(s) {
			div = true
		}
	}
	if !div {
		anchor, place := c.exitAnchor(id)
		c.checkExit(c.fn.lin.top(), anchor, place)
	}
	c.fn.lin.pop()
	r := c.ctx.ExitScope()
	r.Diverges = div
	c.ctx.Join(r)
	return div
}

// branch checks body under prop and returns its region.
func (c *checker) branch(prop *pred.Term, prov facts.Provenance, body ast.NodeID) facts.Region {
	c.ctx.EnterScope()
	c.ctx.Assume(prop, prov)
	div := c.block(body)
	r := c.ctx.ExitScope()
	r.Diverges = div
	return r
}

func (c *checker) stmt(id ast.NodeID) bool {
	n := c.tree.Node(id)
	switch n.Kind {
	case ast.KindBlock:
		return c.block(id)
	case ast.KindLet:
		return c.let(id)
	case ast.KindAssign:
		c.assign(id)
		return false
	case ast.KindIf:
		return c.ifStmt(id)
	case ast.KindWhile:
		c.while(id)
		return false
	case ast.KindFor:
		c.forStmt(id)
		return false
	case ast.KindMatch:
		return c.match(id)
	case ast.KindReturn:
		c.returnStmt(id)
		return true
	case ast.KindExprStmt:
		return c.expr(n.Children[0], nil).Kind == types.KindNever
	}
	return false
}

func (c *checker) let(id ast.NodeID) bool {
	n := c.tree.Node(id)
	declared := c.resolveType(c.tree, n.Children[0])
	init := n.Children[1]
	key := id.String()

	var d *dest
	switch c.tree.Kind(init) {
	case ast.KindCall, ast.KindRecordLit:
		d = &dest{name: n.Name, key: key, typ: declared}
	}
	typ := c.exprInto(init, declared, d)
	btype := declared
	if btype == nil {
		btype = typ.Base()
		if btype.Kind == types.KindNever {
			btype = types.Unknown
		}
	} else {
		c.expectAssignable(init, typ, declared, "let "+n.Name)
		if declared.Refine != nil {
			c.demand(KindRefinement, init, 0, func(v *pred.Term) *pred.Term {
				return instantiate(declared, v, nil)
			})
		}
	}

	b := c.ctx.Bind(facts.Binding{Name: n.Name, Key: key, Type: btype, Mutable: n.Mutable, Intro: facts.IntroLet})
	self := b.Term()
	if v := c.terms[init]; v != nil && !(v.Op == pred.OpVar && v.Key == key) {
		c.ctx.Assume(pred.Bin(pred.OpEq, self, v), facts.ProvAssignment)
	}
	c.ctx.Assume(instantiate(declared, self, nil), facts.ProvLetRefine)
	if btype.IsLinear() {
		c.fn.lin.declare(b, id, c.ctx.Snapshot())
	}
	return typ.Kind == types.KindNever
}

func (c *checker) assign(id ast.NodeID) {
	n := c.tree.Node(id)
	target, value := n.Children[0], n.Children[1]

	if c.tree.Kind(target) != ast.KindIdent {
		tt := c.expr(target, nil)
		vt := c.expr(value, tt)
		c.expectAssignable(value, vt, tt, "assignment")
		if f := c.fields[target]; f != nil && f.Type.Refine != nil && n.Op == "" {
			c.demand(KindRefinement, value, 0, func(v *pred.Term) *pred.Term {
				return instantiate(f.Type, v, nil)
			})
		}
		if root, ok := c.assignRoot(target); ok {
			c.requireMutable(root, target)
			c.ctx.Havoc(root.Key)
		}
		return
	}

	name := c.tree.Node(target).Name
	b, ok := c.ctx.Lookup(name)
	if !ok {
		c.unresolved(c.tree, target, name, nil)
		c.expr(value, nil)
		return
	}
	c.requireMutable(b, target)
	old := b.Term()
	vt := c.expr(value, b.Type)
	newValue := c.terms[value]
	if n.Op != "" && newValue != nil {
		newValue, vt = c.binary(c.tree, id, n.Op, old, b.Type, newValue, vt)
	}
	c.expectAssignable(value, vt, b.Type, "assignment to "+name)
	if b.Type.Refine != nil {
		op := n.Op
		c.demand(KindRefinement, value, 0, func(v *pred.Term) *pred.Term {
			if op != "" {
				v, _ = c.binary(c.tree, id, op, old, b.Type, v, b.Type)
			}
			return instantiate(b.Type, v, nil)
		})
	}
	c.ctx.Havoc(b.Key)
	if newValue != nil && !newValue.Mentions(b.Key) {
		c.ctx.Assume(pred.Bin(pred.OpEq, old, newValue), facts.ProvAssignment)
	}
	c.ctx.Assume(instantiate(b.Type, old, nil), facts.ProvLetRefine)
}

// assignRoot finds the binding a field or element assignment changes.
func (c *checker) assignRoot(id ast.NodeID) (*facts.Binding, bool) {
	for {
		n := c.tree.Node(id)
		switch n.Kind {
		case ast.KindIdent:
			return c.ctx.Lookup(n.Name)
		case ast.KindField, ast.KindIndex, ast.KindParen:
			id = n.Children[0]
		default:
			return nil, false
		}
	}
}

// requireMutable reports an assignment at site to an immutable binding.
func (c *checker) requireMutable(b *facts.Binding, site ast.NodeID) {
	if b.Mutable {
		return
	}
	rb := c.report(c.tree, diag.SemaImmutableAssign, site, "cannot assign twice to immutable %s '%s'", b.Intro, b.Name).
		With("name", b.Name).With("intro", b.Intro.String())
	if decl, err := ast.ParseNodeID(b.Key); err == nil && c.tree.Has(decl) {
		rb.WithSecondary(decl)
	}
	rb.Emit()
}

func (c *checker) ifStmt(id ast.NodeID) bool {
	n := c.tree.Node(id)
	ct := c.expr(n.Children[0], types.Bool)
	c.expectBool(c.tree, n.Children[0], ct)
	cond := c.terms[n.Children[0]]
	var notCond *pred.Term
	if cond != nil {
		notCond = pred.Not(cond)
	}

	before := c.fn.lin.save()
	r1 := c.branch(cond, facts.ProvBranch, n.Children[1])
	var states []map[string]useMask
	if !r1.Diverges {
		states = append(states, c.fn.lin.save())
	}
	c.fn.lin.restore(before)

	if len(n.Children) == 3 {
		r2 := c.branch(notCond, facts.ProvBranch, n.Children[2])
		if !r2.Diverges {
			states = append(states, c.fn.lin.save())
		}
		c.ctx.Join(r1, r2)
		c.fn.lin.merge(states)
		return r1.Diverges && r2.Diverges
	}

	states = append(states, before)
	c.ctx.Join(r1, facts.Region{})
	if r1.Diverges {
		// guard clause: only the other path reaches what follows
		c.ctx.Assume(notCond, facts.ProvGuard)
	}
	c.fn.lin.merge(states)
	return false
}

// assigned lists the keys of outer bindings assigned anywhere in id.
func (c *checker) assigned(id ast.NodeID) []string {
	var keys []string
	seen := make(map[string]bool)
	c.tree.Walk(id, func(n ast.NodeID, _ int) bool {
		if c.tree.Kind(n) != ast.KindAssign {
			return true
		}
		if b, ok := c.assignRoot(c.tree.Child(n, 0)); ok && !seen[b.Key] {
			seen[b.Key] = true
			keys = append(keys, b.Key)
		}
		return true
	})
	return keys
}

func (c *checker) while(id ast.NodeID) {
	n := c.tree.Node(id)
	killed := c.assigned(id)
	for _, k := range killed {
		c.ctx.Havoc(k)
	}

	c.fn.lin.loop++
	ct := c.expr(n.Children[0], types.Bool)
	c.expectBool(c.tree, n.Children[0], ct)
	cond := c.terms[n.Children[0]]
	c.branch(cond, facts.ProvLoopCond, n.Children[1])
	c.fn.lin.loop--

	for _, k := range killed {
		c.ctx.Havoc(k)
	}
	if cond != nil {
		c.ctx.Assume(pred.Not(cond), facts.ProvLoopCond)
	}
}

func (c *checker) forStmt(id ast.NodeID) {
	n := c.tree.Node(id)
	lt := c.expr(n.Children[0], types.Int)
	ht := c.expr(n.Children[1], types.Int)
	for i, t := range []*types.Type{lt, ht} {
		c.expectAssignable(n.Children[i], t, types.Int, "loop bound")
	}
	lo, hi := c.terms[n.Children[0]], c.terms[n.Children[1]]

	killed := c.assigned(n.Children[2])
	for _, k := range killed {
		c.ctx.Havoc(k)
	}
	stale := func(t *pred.Term) bool {
		if t == nil {
			return true
		}
		for _, k := range killed {
			if t.Mentions(k) {
				return true
			}
		}
		return false
	}

	c.ctx.EnterScope()
	b := c.ctx.Bind(facts.Binding{Name: n.Name, Key: id.String(), Type: types.Int, Intro: facts.IntroFor})
	i := b.Term()
	var bounds []*pred.Term
	if !stale(lo) {
		bounds = append(bounds, pred.Bin(pred.OpLe, lo, i))
	}
	if !stale(hi) {
		bounds = append(bounds, pred.Bin(pred.OpLt, i, hi))
	}
	c.ctx.Assume(pred.And(bounds...), facts.ProvLoopRange)
	c.fn.lin.loop++
	c.block(n.Children[2])
	c.fn.lin.loop--
	c.ctx.ExitScope()

	for _, k := range killed {
		c.ctx.Havoc(k)
	}
}

func (c *checker) returnStmt(id ast.NodeID) {
	sig := c.fn.sig
	value := c.tree.Child(id, 0)
	if value.IsValid() {
		vt := c.expr(value, sig.Result)
		c.expectAssignable(value, vt, sig.Result, "return value")
	} else if k := sig.Result.Kind; k != types.KindUnit && k != types.KindUnknown {
		c.report(c.tree, diag.SemaTypeMismatch, id, "missing return value of type %s", sig.Result.Base()).
			With("expected", sig.Result.Base().String()).With("got", "Unit").Emit()
	}
	c.postconditions(value, id)
	c.checkExit(c.fn.lin.live(), id, PlaceBefore)
}

// postconditions demands the ensures clauses and the result refinement for
// the value leaving through site. value is NoNodeID for Unit exits.
func (c *checker) postconditions(value, site ast.NodeID) {
	sig := c.fn.sig
	for i, ens := range sig.Ensures {
		p := ens.Pred
		if !value.IsValid() {
			c.obligate(KindPostcondition, site, i, p.Subst(map[string]*pred.Term{ResultKey: unitValue}))
			continue
		}
		c.demand(KindPostcondition, value, i, func(v *pred.Term) *pred.Term {
			return p.Subst(map[string]*pred.Term{ResultKey: v})
		})
	}
	if sig.Result.Refine != nil && value.IsValid() {
		c.demand(KindPostcondition, value, len(sig.Ensures), func(v *pred.Term) *pred.Term {
			return instantiate(sig.Result, v, nil)
		})
	}
}
