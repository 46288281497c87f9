package sema

import (
	"math/big"
	"slices"
	"strings"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/facts"
	"refine/internal/pred"
	"refine/internal/types"
)

// match checks the arms in order. Each arm knows its own pattern holds and
// that no earlier literal pattern matched; the merge keeps what every arm
// that falls through agrees on.
func (c *checker) match(id ast.NodeID) bool {
	n := c.tree.Node(id)
	scrut := n.Children[0]
	st := c.expr(scrut, nil).Base()
	sv := c.termOf(scrut)

	before := c.fn.lin.save()
	var (
		regions  []facts.Region
		states   []map[string]useMask
		prior    []*pred.Term
		covered  = make(map[string]bool)
		catchAll bool
	)
	for _, arm := range n.Children[1:] {
		pat, body := c.tree.Child(arm, 0), c.tree.Child(arm, 1)
		c.fn.lin.restore(before)
		c.ctx.EnterScope()
		if eq, label := c.pattern(pat, st, sv, prior); eq != nil {
			prior = append(prior, eq)
			covered[label] = true
		} else if k := c.tree.Kind(pat); k == ast.KindPatWild || k == ast.KindPatBind {
			catchAll = true
		}
		div := c.block(body)
		r := c.ctx.ExitScope()
		r.Diverges = div
		regions = append(regions, r)
		if !div {
			states = append(states, c.fn.lin.save())
		}
	}

	if !catchAll {
		if missing := c.uncovered(st, covered); len(missing) > 0 {
			c.report(c.tree, diag.SemaNonexhaustiveMatch, id, "match on %s does not cover %s", st, strings.Join(missing, ", ")).
				With("missing", strings.Join(missing, ",")).With("scrutinee", st.String()).Emit()
			// the missing cases fall through
			regions = append(regions, facts.Region{})
			states = append(states, before)
		}
	}
	c.ctx.Join(regions...)
	c.fn.lin.merge(states)

	for _, r := range regions {
		if !r.Diverges {
			return false
		}
	}
	return len(regions) > 0
}

// pattern assumes what the arm pattern tells about the scrutinee. For
// literal and variant patterns it returns the equality that holds and a
// label for exhaustiveness; catch-all patterns learn that no earlier
// literal matched.
func (c *checker) pattern(id ast.NodeID, st *types.Type, sv *pred.Term, prior []*pred.Term) (*pred.Term, string) {
	n := c.tree.Node(id)
	switch n.Kind {
	case ast.KindPatLit:
		lit, lt := patternLiteral(n.Value)
		if !types.Assignable(lt, st) && !(numeric(lt) && numeric(st)) {
			c.report(c.tree, diag.SemaTypeMismatch, id, "pattern %s cannot match a value of type %s", n.Value, st).
				With("expected", st.String()).With("got", lt.String()).Emit()
			return nil, ""
		}
		eq := pred.Bin(pred.OpEq, sv, lit)
		c.ctx.Assume(eq, facts.ProvMatchArm)
		return eq, n.Value

	case ast.KindPatVariant:
		e, ok := c.variants[n.Name]
		if st.Kind == types.KindEnum {
			if own := c.enums[st.Name]; own != nil && slices.Contains(own.Variants, n.Name) {
				e, ok = own, true
			} else {
				ok = false
			}
		}
		if !ok {
			c.report(c.tree, diag.SemaUnresolvedName, id, "'%s' is not a variant of %s", n.Name, st).
				With("name", n.Name).Emit()
			if own := c.enums[st.Name]; st.Kind == types.KindEnum && own != nil {
				c.suggest(diag.SemaUnresolvedName, id, slices.Sorted(slices.Values(own.Variants)))
			}
			return nil, ""
		}
		eq := pred.Bin(pred.OpEq, sv, e.variantTerm(n.Name))
		c.ctx.Assume(eq, facts.ProvMatchArm)
		return eq, n.Name

	case ast.KindPatBind:
		b := c.ctx.Bind(facts.Binding{Name: n.Name, Key: id.String(), Type: st, Intro: facts.IntroMatch})
		c.ctx.Assume(pred.Bin(pred.OpEq, b.Term(), sv), facts.ProvMatchArm)
	}
	for _, p := range prior {
		c.ctx.Assume(pred.Not(p), facts.ProvMatchArm)
	}
	return nil, ""
}

// patternLiteral reads the text of a literal pattern.
func patternLiteral(text string) (*pred.Term, *types.Type) {
	switch text {
	case "true", "false":
		return pred.Bool(text == "true"), types.Bool
	}
	if r, ok := new(big.Rat).SetString(text); ok {
		if strings.ContainsAny(text, ".eE/") {
			return pred.Num(r, pred.SortReal), types.Real
		}
		return pred.Num(r, pred.SortInt), types.Int
	}
	return pred.Str(strings.Trim(text, `"`)), types.String
}

// uncovered lists the cases of st no arm matched, or "_" when the type has
// too many values to list.
func (c *checker) uncovered(st *types.Type, covered map[string]bool) []string {
	var all []string
	switch st.Kind {
	case types.KindUnknown:
		return nil
	case types.KindBool:
		all = []string{"false", "true"}
	case types.KindEnum:
		if e := c.enums[st.Name]; e != nil {
			all = e.Variants
		}
	default:
		return []string{"_"}
	}
	var missing []string
	for _, v := range all {
		if !covered[v] {
			missing = append(missing, v)
		}
	}
	return missing
}
