package sema

import (
	"strings"

	"refine/internal/ast"
	"refine/internal/pred"
	"refine/internal/solver"
)

// noteEffects records the effects a call at site performs.
func (c *checker) noteEffects(site ast.NodeID, callee *Signature) {
	if len(callee.Effects) == 0 {
		return
	}
	f := c.fn
	f.needed = f.needed.Union(callee.Effects)
	f.sites = append(f.sites, site)
	if missing := f.sig.Effects.Missing(callee.Effects); len(missing) > 0 {
		f.missing = f.missing.Union(missing)
		f.missingSites = append(f.missingSites, site)
	}
}

// effectObligation settles whether the function declares every effect its
// calls perform. Functions without effectful calls get none.
func (c *checker) effectObligation() {
	f := c.fn
	if len(f.sites) == 0 {
		return
	}
	permits := make([]*pred.Term, 0, len(f.needed))
	for _, e := range f.needed {
		permits = append(permits, pred.App("permits", pred.SortBool, pred.Str(e.String())))
	}
	o := c.obligate(KindEffect, f.decl, 0, pred.And(permits...))
	if o == nil {
		return
	}
	o.Decided = true
	o.Hint.Guard = nil
	o.Hint.Params = nil
	if len(f.missing) == 0 {
		o.SolverResult = solver.ResultDischarged
		o.Related = f.sites
		return
	}
	o.SolverResult = solver.ResultCounterexample
	o.Counterexample = map[string]string{"effect": strings.Join(f.missing.Strings(), ", ")}
	o.Related = f.missingSites
	o.Hint.Missing = f.missing
}
