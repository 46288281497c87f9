package sema

import (
	"strings"

	"refine/internal/ast"
	"refine/internal/facts"
	"refine/internal/pred"
	"refine/internal/solver"
)

// obligate records goal at site under the current facts. An obligation
// that was already recorded for the same site and clause is not repeated.
func (c *checker) obligate(kind Kind, site ast.NodeID, clause int, goal *pred.Term) *Obligation {
	id := ObligationID(kind, site, clause)
	if c.emitted[id] {
		return nil
	}
	c.emitted[id] = true
	o := &Obligation{
		ID:           id,
		Kind:         kind,
		Goal:         goal,
		Primary:      site,
		Span:         c.tree.Span(site),
		Context:      c.ctx.Snapshot(),
		SolverResult: solver.ResultUnknown,
		RepairRefs:   []string{},
	}
	if c.fn != nil {
		o.Hint.Fn = c.fn.decl
		o.Hint.Params = c.goalParams(goal)
	}
	o.Hint.Guard = c.guardFragment(goal)
	c.obligations = append(c.obligations, o)
	return o
}

// demand requires mk(value) to hold for the value of the expression at id.
// A conditional value is split into its branches, each under its
// condition, and a failing branch needs nothing.
func (c *checker) demand(kind Kind, id ast.NodeID, clause int, mk func(v *pred.Term) *pred.Term) {
	n := c.tree.Node(id)
	switch n.Kind {
	case ast.KindParen:
		c.demand(kind, n.Children[0], clause, mk)
		return
	case ast.KindFail:
		return
	case ast.KindCond:
		cond := c.terms[n.Children[0]]
		if cond == nil {
			break
		}
		c.ctx.EnterScope()
		c.ctx.Assume(cond, facts.ProvBranch)
		c.demand(kind, n.Children[1], clause, mk)
		c.ctx.ExitScope()
		c.ctx.EnterScope()
		c.ctx.Assume(pred.Not(cond), facts.ProvBranch)
		c.demand(kind, n.Children[2], clause, mk)
		c.ctx.ExitScope()
		return
	}
	v := c.terms[id]
	if v == nil || (v.Op == pred.OpOpaque && v.Sort == pred.SortUnknown) {
		return
	}
	goal := mk(v)
	if goal == nil {
		return
	}
	c.obligate(kind, id, clause, goal)
}

// goalParams lists the parameters of the current function when the goal
// mentions parameters and nothing else.
func (c *checker) goalParams(goal *pred.Term) []ast.NodeID {
	vars := goal.FreeVars()
	if len(vars) == 0 {
		return nil
	}
	keys := make(map[string]bool, len(vars))
	for _, v := range vars {
		if !c.fn.paramKeys[v.Key] {
			return nil
		}
		keys[v.Key] = true
	}
	var out []ast.NodeID
	for _, p := range c.fn.sig.Params {
		if keys[p.Key] {
			out = append(out, p.Node)
		}
	}
	return out
}

// guardFragment renders a goal back into an expression of the program. It
// returns nil when some part has no faithful source form, such as a
// variable that is shadowed or out of scope at this point.
func (c *checker) guardFragment(t *pred.Term) *ast.Fragment {
	switch t.Op {
	case pred.OpVar:
		if b, ok := c.ctx.Lookup(t.Name); ok && b.Key == t.Key {
			return ast.Ident(t.Name)
		}
		if e, ok := c.variants[t.Name]; ok && e.variantTerm(t.Name).Key == t.Key {
			if _, shadowed := c.ctx.Lookup(t.Name); !shadowed {
				return ast.Ident(t.Name)
			}
		}
		return nil
	case pred.OpNum:
		if v, ok := ratInt(t.Num); ok && t.Sort == pred.SortInt {
			return ast.Int(v)
		}
		return ast.Real(t.Num.RatString())
	case pred.OpBool:
		return ast.Bool(t.Bool)
	case pred.OpStr:
		return ast.Str(t.Str)
	case pred.OpNeg, pred.OpNot:
		x := c.guardFragment(t.Args[0])
		if x == nil {
			return nil
		}
		if t.Op == pred.OpNeg {
			return ast.Unary("-", x)
		}
		return ast.Unary("!", x)
	case pred.OpApp:
		return c.guardApp(t)
	}
	sym := t.Op.Symbol()
	if sym == "" {
		return nil
	}
	out := c.guardFragment(t.Args[0])
	for _, a := range t.Args[1:] {
		r := c.guardFragment(a)
		if out == nil || r == nil {
			return nil
		}
		out = ast.Bin(sym, out, r)
	}
	return out
}

func (c *checker) guardApp(t *pred.Term) *ast.Fragment {
	args := make([]*ast.Fragment, len(t.Args))
	for i, a := range t.Args {
		if args[i] = c.guardFragment(a); args[i] == nil {
			return nil
		}
	}
	switch {
	case strings.HasPrefix(t.Name, ".") && len(args) == 1:
		return ast.Field(args[0], t.Name[1:])
	case t.Name == "at" && len(args) == 2:
		return ast.Index(args[0], args[1])
	case t.Name == "concat" && len(args) == 2:
		return ast.Bin("+", args[0], args[1])
	}
	if sig, ok := c.sigs[t.Name]; ok && sig.Pure() && len(sig.Params) == len(args) {
		return ast.Call(t.Name, args...)
	}
	return nil
}
