package sema

import (
	"math/big"
	"slices"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/pred"
	"refine/internal/types"
)

// envVar is a name bound only inside a contract: `result`, a refinement
// variable or a quantified variable.
type envVar struct {
	term *pred.Term
	typ  *types.Type
}

type scopeEnv struct {
	name string
	v    envVar
	next *scopeEnv
}

func (e *scopeEnv) with(name string, v envVar) *scopeEnv {
	return &scopeEnv{name: name, v: v, next: e}
}

func (e *scopeEnv) lookup(name string) (envVar, bool) {
	for ; e != nil; e = e.next {
		if e.name == name {
			return e.v, true
		}
	}
	return envVar{}, false
}

// lower translates a contract expression into the predicate language.
// Expressions outside it are reported and become opaque terms.
func (c *checker) lower(t *ast.Tree, id ast.NodeID, env *scopeEnv) (*pred.Term, *types.Type) {
	n := t.Node(id)
	switch n.Kind {
	case ast.KindParen:
		return c.lower(t, n.Children[0], env)

	case ast.KindIdent:
		if v, ok := env.lookup(n.Name); ok {
			return v.term, v.typ
		}
		if b, ok := c.ctx.Lookup(n.Name); ok {
			return b.Term(), b.Type
		}
		if e, ok := c.variants[n.Name]; ok {
			return e.variantTerm(n.Name), e.Type()
		}
		c.unresolved(t, id, n.Name, env)
		return pred.Opaque(n.Name, pred.SortUnknown), types.Unknown

	case ast.KindIntLit, ast.KindRealLit, ast.KindBoolLit, ast.KindStringLit:
		return c.literal(t, id)

	case ast.KindBinary:
		l, lt := c.lower(t, n.Children[0], env)
		r, rt := c.lower(t, n.Children[1], env)
		term, typ := c.binary(t, id, n.Op, l, lt, r, rt)
		return term, typ

	case ast.KindUnary:
		x, xt := c.lower(t, n.Children[0], env)
		return c.unary(t, id, n.Op, x, xt)

	case ast.KindCall:
		sig := c.callee(t, id)
		if sig == nil {
			return pred.Opaque(ast.Render(t, id), pred.SortUnknown), types.Unknown
		}
		if !sig.Pure() {
			c.report(t, diag.SemaMalformedContract, id, "call to effectful function %s in a contract", sig.Name).
				With("name", sig.Name).Emit()
			return pred.Opaque(ast.Render(t, id), sig.Result.Sort()), sig.Result.Base()
		}
		args := make([]*pred.Term, 0, len(n.Children))
		for _, a := range n.Children {
			at, _ := c.lower(t, a, env)
			args = append(args, at)
		}
		return pred.App(sig.Name, sig.Result.Sort(), args...), sig.Result.Base()

	case ast.KindField:
		x, xt := c.lower(t, n.Children[0], env)
		f := c.fieldOf(t, id, xt, n.Name)
		if f == nil {
			return pred.Opaque(ast.Render(t, id), pred.SortUnknown), types.Unknown
		}
		return pred.Field(x, n.Name, f.Type.Sort()), f.Type.Base()

	case ast.KindIndex:
		x, xt := c.lower(t, n.Children[0], env)
		i, it := c.lower(t, n.Children[1], env)
		elem := c.elemOf(t, id, xt, it)
		return pred.App("at", elem.Sort(), x, i), elem

	case ast.KindCond:
		cond, ct := c.lower(t, n.Children[0], env)
		c.expectBool(t, n.Children[0], ct)
		a, at := c.lower(t, n.Children[1], env)
		b, bt := c.lower(t, n.Children[2], env)
		typ := joinTypes(at, bt)
		if typ.Kind == types.KindBool {
			return pred.And(pred.Implies(cond, a), pred.Implies(pred.Not(cond), b)), typ
		}
		return pred.Opaque(ast.Render(t, id), typ.Sort()), typ

	case ast.KindQuant:
		op := pred.OpForall
		if n.Op == "exists" {
			op = pred.OpExists
		}
		key := id.String()
		v := envVar{term: pred.Var(n.Name, key, pred.SortInt), typ: types.Int}
		body, bt := c.lower(t, n.Children[0], env.with(n.Name, v))
		c.expectBool(t, n.Children[0], bt)
		return pred.Quant(op, n.Name, key, body), types.Bool
	}

	c.report(t, diag.SemaMalformedContract, id, "%s is not allowed in a contract", n.Kind).
		With("node_kind", n.Kind.String()).Emit()
	return pred.Opaque(ast.Render(t, id), pred.SortUnknown), types.Unknown
}

func (c *checker) literal(t *ast.Tree, id ast.NodeID) (*pred.Term, *types.Type) {
	n := t.Node(id)
	switch n.Kind {
	case ast.KindIntLit, ast.KindRealLit:
		r, ok := new(big.Rat).SetString(n.Value)
		if !ok {
			c.report(t, diag.SemaTypeMismatch, id, "malformed number literal %q", n.Value).Emit()
			return pred.Opaque(n.Value, pred.SortUnknown), types.Unknown
		}
		if n.Kind == ast.KindRealLit {
			return pred.Num(r, pred.SortReal), types.Real
		}
		return pred.Num(r, pred.SortInt), types.Int
	case ast.KindBoolLit:
		return pred.Bool(n.Value == "true"), types.Bool
	default:
		return pred.Str(n.Value), types.String
	}
}

var binaryOps = map[string]pred.Op{
	"+": pred.OpAdd, "-": pred.OpSub, "*": pred.OpMul, "/": pred.OpDiv, "%": pred.OpMod,
	"==": pred.OpEq, "!=": pred.OpNe, "<": pred.OpLt, "<=": pred.OpLe, ">": pred.OpGt, ">=": pred.OpGe,
	"&&": pred.OpAnd, "||": pred.OpOr, "==>": pred.OpImplies,
}

// binary types and lowers `l op r` for contracts and bodies alike.
func (c *checker) binary(t *ast.Tree, id ast.NodeID, op string, l *pred.Term, lt *types.Type, r *pred.Term, rt *types.Type) (*pred.Term, *types.Type) {
	pop, ok := binaryOps[op]
	if !ok {
		c.report(t, diag.SemaMalformedContract, id, "unknown operator %q", op).Emit()
		return pred.Opaque(ast.Render(t, id), pred.SortUnknown), types.Unknown
	}
	lb, rb := orUnknown(lt).Base(), orUnknown(rt).Base()
	mismatch := func(want string) (*pred.Term, *types.Type) {
		c.report(t, diag.SemaTypeMismatch, id, "operator %s needs %s operands, found %s and %s", op, want, lb, rb).
			With("expected", want).With("got", lb.String()+", "+rb.String()).Emit()
		return pred.Opaque(ast.Render(t, id), pred.SortUnknown), types.Unknown
	}
	switch pop {
	case pred.OpAdd:
		if isKind(lb, types.KindString) && isKind(rb, types.KindString) {
			return pred.App("concat", pred.SortString, l, r), types.String
		}
		fallthrough
	case pred.OpSub, pred.OpMul, pred.OpDiv, pred.OpMod:
		if !numeric(lb) || !numeric(rb) {
			return mismatch("numeric")
		}
		typ := types.Int
		if lb.Kind == types.KindReal || rb.Kind == types.KindReal {
			typ = types.Real
		}
		return pred.Bin(pop, l, r), typ
	case pred.OpLt, pred.OpLe, pred.OpGt, pred.OpGe:
		if !numeric(lb) || !numeric(rb) {
			return mismatch("numeric")
		}
		return pred.Bin(pop, l, r), types.Bool
	case pred.OpEq, pred.OpNe:
		if !types.Assignable(lb, rb) && !types.Assignable(rb, lb) && !(numeric(lb) && numeric(rb)) {
			return mismatch("comparable")
		}
		return pred.Bin(pop, l, r), types.Bool
	case pred.OpAnd:
		if !isKind(lb, types.KindBool) || !isKind(rb, types.KindBool) {
			return mismatch("Bool")
		}
		return pred.And(l, r), types.Bool
	case pred.OpOr:
		if !isKind(lb, types.KindBool) || !isKind(rb, types.KindBool) {
			return mismatch("Bool")
		}
		return pred.Or(l, r), types.Bool
	default:
		if !isKind(lb, types.KindBool) || !isKind(rb, types.KindBool) {
			return mismatch("Bool")
		}
		return pred.Implies(l, r), types.Bool
	}
}

func (c *checker) unary(t *ast.Tree, id ast.NodeID, op string, x *pred.Term, xt *types.Type) (*pred.Term, *types.Type) {
	xb := orUnknown(xt).Base()
	switch op {
	case "-":
		if numeric(xb) {
			if xb.Kind == types.KindUnknown {
				xb = types.Int
			}
			return pred.Neg(x), xb
		}
	case "!":
		if isKind(xb, types.KindBool) {
			return pred.Not(x), types.Bool
		}
	default:
		c.report(t, diag.SemaMalformedContract, id, "unknown operator %q", op).Emit()
		return pred.Opaque(ast.Render(t, id), pred.SortUnknown), types.Unknown
	}
	c.report(t, diag.SemaTypeMismatch, id, "operator %s cannot apply to %s", op, xb).
		With("got", xb.String()).Emit()
	return pred.Opaque(ast.Render(t, id), pred.SortUnknown), types.Unknown
}

// callee resolves the function named by a call node and checks the argument
// count. It reports and returns nil when the call cannot be typed.
func (c *checker) callee(t *ast.Tree, id ast.NodeID) *Signature {
	n := t.Node(id)
	sig, ok := c.sigs[n.Name]
	if !ok {
		c.report(t, diag.SemaUnknownFunction, id, "unknown function '%s'", n.Name).With("name", n.Name).Emit()
		if t == c.tree {
			c.suggest(diag.SemaUnknownFunction, id, c.fnNames())
		}
		return nil
	}
	if len(n.Children) != len(sig.Params) {
		c.report(t, diag.SemaArityMismatch, id, "%s expects %d arguments, got %d", sig.Name, len(sig.Params), len(n.Children)).
			With("name", sig.Name).WithSecondary(sig.Decl).Emit()
		return nil
	}
	return sig
}

// fieldOf resolves a field selection on a value of type xt.
func (c *checker) fieldOf(t *ast.Tree, id ast.NodeID, xt *types.Type, name string) *FieldInfo {
	xb := orUnknown(xt).Base()
	if xb.Kind == types.KindUnknown {
		return nil
	}
	rec, ok := c.records[xb.Name]
	if xb.Kind != types.KindRecord || !ok {
		c.report(t, diag.SemaTypeMismatch, id, "field access .%s on non-record type %s", name, xb).
			With("expected", "record").With("got", xb.String()).Emit()
		return nil
	}
	f, ok := rec.Field(name)
	if !ok {
		c.report(t, diag.SemaUnknownField, id, "record %s has no field '%s'", rec.Name, name).
			With("name", name).With("record", rec.Name).WithSecondary(rec.Decl).Emit()
		if t == c.tree {
			c.suggest(diag.SemaUnknownField, id, rec.FieldNames())
		}
		return nil
	}
	return f
}

// elemOf checks `xs[i]` and returns the element type.
func (c *checker) elemOf(t *ast.Tree, id ast.NodeID, xt, it *types.Type) *types.Type {
	xb, ib := orUnknown(xt).Base(), orUnknown(it).Base()
	if !isKind(ib, types.KindInt) {
		c.report(t, diag.SemaTypeMismatch, id, "index must be Int, found %s", ib).
			With("expected", "Int").With("got", ib.String()).Emit()
	}
	switch xb.Kind {
	case types.KindList:
		return xb.Elem
	case types.KindUnknown:
		return types.Unknown
	}
	c.report(t, diag.SemaTypeMismatch, id, "cannot index into %s", xb).
		With("expected", "List").With("got", xb.String()).Emit()
	return types.Unknown
}

// unresolved reports a name that resolves to nothing and records the names
// it could have meant.
func (c *checker) unresolved(t *ast.Tree, id ast.NodeID, name string, env *scopeEnv) {
	c.report(t, diag.SemaUnresolvedName, id, "cannot find '%s' in this scope", name).With("name", name).Emit()
	if t != c.tree {
		return
	}
	var names []string
	for e := env; e != nil; e = e.next {
		names = append(names, e.name)
	}
	for _, b := range c.ctx.Visible() {
		names = append(names, b.Name)
	}
	for v := range c.variants {
		names = append(names, v)
	}
	slices.Sort(names)
	c.suggest(diag.SemaUnresolvedName, id, slices.Compact(names))
}

func isKind(t *types.Type, k types.Kind) bool {
	return t.Kind == k || t.Kind == types.KindUnknown || t.Kind == types.KindNever
}

func numeric(t *types.Type) bool {
	return isKind(t, types.KindInt) || t.Kind == types.KindReal
}

// joinTypes is the type of a value that is either a or b.
func joinTypes(a, b *types.Type) *types.Type {
	a, b = orUnknown(a), orUnknown(b)
	switch {
	case a.Kind == types.KindNever:
		return b.Base()
	case b.Kind == types.KindNever:
		return a.Base()
	case a.Kind == types.KindUnknown:
		return b.Base()
	}
	return a.Base()
}
