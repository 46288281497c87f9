package sema

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/facts"
	"refine/internal/pred"
	"refine/internal/types"
)

// dest names the binding a let initializer flows into, so the facts about a
// call or record literal can mention the binding directly.
type dest struct {
	name string
	key  string
	typ  *types.Type // declared type, nil when inferred
}

func (d *dest) term(fallback *types.Type) *pred.Term {
	t := d.typ
	if t == nil {
		t = fallback
	}
	return pred.Var(d.name, d.key, t.Sort())
}

// fresh is a variable standing for the value computed at id.
func (c *checker) fresh(id ast.NodeID, t *types.Type) *pred.Term {
	return pred.Var(ast.Render(c.tree, id), "e:"+id.String(), orUnknown(t).Sort())
}

// expr checks the expression at id, records its value term and returns its
// type. want is the type the context expects, or nil.
func (c *checker) expr(id ast.NodeID, want *types.Type) *types.Type {
	return c.exprInto(id, want, nil)
}

func (c *checker) exprInto(id ast.NodeID, want *types.Type, d *dest) *types.Type {
	term, typ := c.value(id, want, d)
	if term != nil {
		c.terms[id] = term
	}
	return orUnknown(typ)
}

func (c *checker) value(id ast.NodeID, want *types.Type, d *dest) (*pred.Term, *types.Type) {
	n := c.tree.Node(id)
	switch n.Kind {
	case ast.KindParen:
		typ := c.exprInto(n.Children[0], want, d)
		return c.terms[n.Children[0]], typ

	case ast.KindIdent:
		if b, ok := c.ctx.Lookup(n.Name); ok {
			if b.Type.IsLinear() {
				c.fn.lin.use(b.Key)
			}
			return b.Term(), b.Type.Base()
		}
		if e, ok := c.variants[n.Name]; ok {
			return e.variantTerm(n.Name), e.Type()
		}
		c.unresolved(c.tree, id, n.Name, nil)
		return pred.Opaque(n.Name, pred.SortUnknown), types.Unknown

	case ast.KindIntLit:
		term, typ := c.literal(c.tree, id)
		if want != nil && want.Kind == types.KindReal && term.Op == pred.OpNum {
			return pred.Num(term.Num, pred.SortReal), types.Real
		}
		return term, typ

	case ast.KindRealLit, ast.KindBoolLit, ast.KindStringLit:
		return c.literal(c.tree, id)

	case ast.KindBinary:
		return c.binaryExpr(id)

	case ast.KindUnary:
		xt := c.expr(n.Children[0], nil)
		return c.unary(c.tree, id, n.Op, c.termOf(n.Children[0]), xt)

	case ast.KindCall:
		return c.call(id, d)

	case ast.KindField:
		xt := c.expr(n.Children[0], nil)
		f := c.fieldOf(c.tree, id, xt, n.Name)
		if f == nil {
			return pred.Opaque(ast.Render(c.tree, id), pred.SortUnknown), types.Unknown
		}
		c.fields[id] = f
		term := pred.Field(c.termOf(n.Children[0]), n.Name, f.Type.Sort())
		c.ctx.Assume(instantiate(f.Type, term, nil), facts.ProvAxiom)
		return term, f.Type.Base()

	case ast.KindIndex:
		return c.index(id)

	case ast.KindRecordLit:
		return c.recordLit(id, d)

	case ast.KindCond:
		return c.condExpr(id, want)

	case ast.KindFail:
		return nil, types.Never

	case ast.KindHole:
		return c.hole(id, want)

	case ast.KindQuant:
		return c.lower(c.tree, id, nil)
	}
	return pred.Opaque(ast.Render(c.tree, id), pred.SortUnknown), types.Unknown
}

// termOf returns the recorded term of a checked expression. Expressions
// that produce no value get an opaque stand-in.
func (c *checker) termOf(id ast.NodeID) *pred.Term {
	if t := c.terms[id]; t != nil {
		return t
	}
	return pred.Opaque(ast.Render(c.tree, id), pred.SortUnknown)
}

func (c *checker) binaryExpr(id ast.NodeID) (*pred.Term, *types.Type) {
	n := c.tree.Node(id)
	l, r := n.Children[0], n.Children[1]
	switch n.Op {
	case "&&", "||", "==>":
		lt := c.expr(l, types.Bool)
		// the right operand only runs when the left one allows it
		c.ctx.EnterScope()
		if lv := c.terms[l]; lv != nil {
			if n.Op == "||" {
				lv = pred.Not(lv)
			}
			c.ctx.Assume(lv, facts.ProvBranch)
		}
		rt := c.expr(r, types.Bool)
		c.ctx.ExitScope()
		return c.binary(c.tree, id, n.Op, c.termOf(l), lt, c.termOf(r), rt)
	}

	var want *types.Type
	lt := c.expr(l, nil)
	if lt.Kind == types.KindReal {
		want = types.Real
	}
	rt := c.expr(r, want)
	term, typ := c.binary(c.tree, id, n.Op, c.termOf(l), lt, c.termOf(r), rt)
	if (n.Op == "/" || n.Op == "%") && typ.Kind != types.KindUnknown {
		if d := c.terms[r]; d == nil || d.Op != pred.OpNum || d.Num.Sign() == 0 {
			c.demand(KindRefinement, r, 0, func(v *pred.Term) *pred.Term {
				return pred.Bin(pred.OpNe, v, pred.Int(0))
			})
		}
	}
	return term, typ
}

// call checks a call, emits its precondition obligations and assumes what
// the callee guarantees about the result.
func (c *checker) call(id ast.NodeID, d *dest) (*pred.Term, *types.Type) {
	n := c.tree.Node(id)
	sig := c.callee(c.tree, id)
	if sig == nil {
		for _, a := range n.Children {
			c.expr(a, nil)
		}
		return pred.Opaque(ast.Render(c.tree, id), pred.SortUnknown), types.Unknown
	}

	args := make([]*pred.Term, len(n.Children))
	subst := make(map[string]*pred.Term, len(n.Children)+1)
	for i, a := range n.Children {
		p := sig.Params[i]
		at := c.expr(a, p.Type)
		c.expectAssignable(a, at, p.Type, fmt.Sprintf("argument %d of %s", i+1, sig.Name))
		args[i] = c.termOf(a)
		subst[p.Key] = args[i]
	}
	for i, p := range sig.Params {
		if p.Type.Refine == nil {
			continue
		}
		c.demand(KindRefinement, n.Children[i], 0, func(v *pred.Term) *pred.Term {
			return instantiate(p.Type, v, subst)
		})
	}
	for i, req := range sig.Requires {
		c.obligate(KindPrecondition, id, i, req.Pred.Subst(subst))
	}
	c.noteEffects(id, sig)

	result := sig.Result.Base()
	var res *pred.Term
	switch {
	case d != nil:
		res = d.term(result)
		if sig.Pure() && result.Kind != types.KindUnit {
			c.ctx.Assume(pred.Bin(pred.OpEq, res, pred.App(sig.Name, result.Sort(), args...)), facts.ProvCalleePost)
		}
	case sig.Pure() && result.Kind != types.KindUnit:
		res = pred.App(sig.Name, result.Sort(), args...)
	default:
		res = c.fresh(id, result)
	}
	post := make(map[string]*pred.Term, len(subst)+1)
	for k, v := range subst {
		post[k] = v
	}
	post[ResultKey] = res
	for _, ens := range sig.Ensures {
		c.ctx.Assume(ens.Pred.Subst(post), facts.ProvCalleePost)
	}
	c.ctx.Assume(instantiate(sig.Result, res, subst), facts.ProvCalleePost)
	return res, result
}

// index checks `xs[i]` and demands that i is in bounds.
func (c *checker) index(id ast.NodeID) (*pred.Term, *types.Type) {
	n := c.tree.Node(id)
	xt := c.expr(n.Children[0], nil)
	it := c.expr(n.Children[1], types.Int)
	elem := c.elemOf(c.tree, id, xt, it)
	xs, i := c.termOf(n.Children[0]), c.termOf(n.Children[1])
	if xt.Kind == types.KindList {
		c.demand(KindRefinement, n.Children[1], 0, func(v *pred.Term) *pred.Term {
			return pred.And(
				pred.Bin(pred.OpLe, pred.Int(0), v),
				pred.Bin(pred.OpLt, v, pred.Len(xs)),
			)
		})
	}
	return pred.App("at", elem.Sort(), xs, i), elem
}

func (c *checker) recordLit(id ast.NodeID, d *dest) (*pred.Term, *types.Type) {
	n := c.tree.Node(id)
	rec, ok := c.records[n.Name]
	if !ok {
		c.report(c.tree, diag.SemaUnknownType, id, "unknown record '%s'", n.Name).With("name", n.Name).Emit()
		c.suggest(diag.SemaUnknownType, id, c.typeNames())
		for _, init := range n.Children {
			c.expr(c.tree.Child(init, 0), nil)
		}
		return pred.Opaque(ast.Render(c.tree, id), pred.SortUnknown), types.Unknown
	}
	typ := types.MakeNamed(types.KindRecord, rec.Name)
	var v *pred.Term
	if d != nil {
		v = d.term(typ)
	} else {
		v = c.fresh(id, typ)
	}

	seen := make(map[string]ast.NodeID)
	for _, init := range n.Children {
		name := c.tree.Node(init).Name
		val := c.tree.Child(init, 0)
		if prev, dup := seen[name]; dup {
			c.report(c.tree, diag.SemaDuplicateField, init, "field '%s' initialized twice", name).
				With("name", name).WithSecondary(prev).Emit()
			c.expr(val, nil)
			continue
		}
		seen[name] = init
		f, ok := rec.Field(name)
		if !ok {
			c.report(c.tree, diag.SemaUnknownField, init, "record %s has no field '%s'", rec.Name, name).
				With("name", name).With("record", rec.Name).WithSecondary(rec.Decl).Emit()
			c.suggest(diag.SemaUnknownField, init, rec.FieldNames())
			c.expr(val, nil)
			continue
		}
		vt := c.expr(val, f.Type)
		c.expectAssignable(val, vt, f.Type, "field "+name)
		if f.Type.Refine != nil {
			c.demand(KindRefinement, val, 0, func(x *pred.Term) *pred.Term {
				return instantiate(f.Type, x, nil)
			})
		}
		if t := c.terms[val]; t != nil {
			c.ctx.Assume(pred.Bin(pred.OpEq, pred.Field(v, name, f.Type.Sort()), t), facts.ProvAssignment)
		}
	}

	var missing []string
	for _, f := range rec.Fields {
		if _, ok := seen[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		c.report(c.tree, diag.SemaMissingField, id, "missing %s in %s literal", plural(missing, "field"), rec.Name).
			With("missing", strings.Join(missing, ",")).With("record", rec.Name).WithSecondary(rec.Decl).Emit()
	}
	return v, typ
}

// condExpr checks `if c then a else b` used as a value.
func (c *checker) condExpr(id ast.NodeID, want *types.Type) (*pred.Term, *types.Type) {
	n := c.tree.Node(id)
	ct := c.expr(n.Children[0], types.Bool)
	c.expectBool(c.tree, n.Children[0], ct)
	cond := c.terms[n.Children[0]]

	branch := func(prop *pred.Term, kid ast.NodeID) (facts.Region, *types.Type) {
		c.ctx.EnterScope()
		c.ctx.Assume(prop, facts.ProvBranch)
		typ := c.expr(kid, want)
		r := c.ctx.ExitScope()
		r.Diverges = typ.Kind == types.KindNever
		return r, typ
	}
	var notCond *pred.Term
	if cond != nil {
		notCond = pred.Not(cond)
	}
	r1, at := branch(cond, n.Children[1])
	r2, bt := branch(notCond, n.Children[2])
	c.ctx.Join(r1, r2)

	typ := joinTypes(at, bt)
	if at.Kind != types.KindNever && bt.Kind != types.KindNever && !types.Assignable(bt, at) && !types.Assignable(at, bt) {
		c.report(c.tree, diag.SemaTypeMismatch, id, "branches have different types %s and %s", at.Base(), bt.Base()).
			With("expected", at.Base().String()).With("got", bt.Base().String()).Emit()
		typ = types.Unknown
	}
	if typ.Kind == types.KindNever {
		return nil, typ
	}
	v := c.fresh(id, typ)
	for i, prop := range []*pred.Term{cond, notCond} {
		t := c.terms[n.Children[i+1]]
		if t == nil {
			continue
		}
		eq := pred.Bin(pred.OpEq, v, t)
		if prop != nil {
			eq = pred.Implies(prop, eq)
		}
		c.ctx.Assume(eq, facts.ProvBranch)
	}
	return v, typ
}

// hole records a typed hole and the bindings that could fill it.
func (c *checker) hole(id ast.NodeID, want *types.Type) (*pred.Term, *types.Type) {
	n := c.tree.Node(id)
	expected := orUnknown(want).Base()
	var cands []string
	for _, b := range c.ctx.Visible() {
		if b.Type.IsLinear() || b.Type.Kind == types.KindUnknown {
			continue
		}
		if expected.Kind == types.KindUnknown || types.Assignable(b.Type, expected) {
			cands = append(cands, b.Name)
		}
	}
	slices.Sort(cands)
	if cands == nil {
		cands = []string{}
	}
	c.holes = append(c.holes, Hole{
		ID:         HoleID(id),
		Node:       id,
		Name:       n.Name,
		Span:       n.Span,
		Expected:   expected,
		Candidates: cands,
	})
	return pred.Var("?"+n.Name, "hole:"+id.String(), expected.Sort()), expected
}

func plural(names []string, noun string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	if len(names) == 1 {
		return noun + " " + quoted[0]
	}
	return noun + "s " + strings.Join(quoted, ", ")
}

// ratInt reports whether r is a small integer constant.
func ratInt(r *big.Rat) (int64, bool) {
	if !r.IsInt() || !r.Num().IsInt64() {
		return 0, false
	}
	return r.Num().Int64(), true
}
