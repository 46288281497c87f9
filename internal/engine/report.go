package engine

import (
	"cmp"
	"fmt"
	"slices"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/fix"
	"refine/internal/sema"
	"refine/internal/solver"
	"refine/internal/source"
)

// group is the ranked candidates of one target.
type group struct {
	target fix.Target
	cands  []fix.Candidate
}

// flatten orders groups by target position and concatenates them, keeping
// the rank order inside each group.
func flatten(groups []group) []fix.Candidate {
	slices.SortStableFunc(groups, func(a, b group) int {
		return byPosition(a.target.Span, a.target.ID, b.target.Span, b.target.ID)
	})
	out := make([]fix.Candidate, 0)
	for _, g := range groups {
		out = append(out, g.cands...)
	}
	return out
}

func byPosition(sa source.Span, ida string, sb source.Span, idb string) int {
	if c := sa.Compare(sb); c != 0 {
		return c
	}
	return cmp.Compare(ida, idb)
}

// report assembles the result of a pass: sorted lists, repair references,
// status and stats. It fails when any list refers to something the pass
// does not contain.
func report(tree *ast.Tree, res *sema.Result, repairs []fix.Candidate) (*Result, error) {
	out := &Result{
		CanonicalAST: tree,
		Repairs:      repairs,
		Diagnostics:  slices.Clone(res.Diagnostics),
		Obligations:  slices.Clone(res.Obligations),
		Holes:        slices.Clone(res.Holes),
	}
	if out.Repairs == nil {
		out.Repairs = []fix.Candidate{}
	}
	if out.Diagnostics == nil {
		out.Diagnostics = []diag.Diagnostic{}
	}
	if out.Obligations == nil {
		out.Obligations = []*sema.Obligation{}
	}
	if out.Holes == nil {
		out.Holes = []sema.Hole{}
	}

	slices.SortFunc(out.Diagnostics, func(a, b diag.Diagnostic) int { return byPosition(a.Span, a.ID, b.Span, b.ID) })
	slices.SortFunc(out.Obligations, func(a, b *sema.Obligation) int { return byPosition(a.Span, a.ID, b.Span, b.ID) })
	slices.SortFunc(out.Holes, func(a, b sema.Hole) int { return byPosition(a.Span, a.ID, b.Span, b.ID) })

	diags := make(map[string]*diag.Diagnostic, len(out.Diagnostics))
	for i := range out.Diagnostics {
		d := &out.Diagnostics[i]
		d.RepairRefs = []string{}
		if d.Secondary == nil {
			d.Secondary = []ast.NodeID{}
		}
		diags[d.ID] = d
	}
	obls := make(map[string]*sema.Obligation, len(out.Obligations))
	for _, o := range out.Obligations {
		o.RepairRefs = []string{}
		obls[o.ID] = o
	}
	for _, c := range out.Repairs {
		if d, ok := diags[c.Target()]; ok {
			d.RepairRefs = append(d.RepairRefs, c.ID)
		} else if o, ok := obls[c.Target()]; ok {
			o.RepairRefs = append(o.RepairRefs, c.ID)
		}
	}

	if err := crossCheck(out); err != nil {
		return nil, err
	}
	out.Status = statusOf(out)
	out.Stats = statsOf(out)
	if out.Status == StatusSuccess {
		out.Output = ast.Render(tree, tree.Root())
	}
	return out, nil
}

// crossCheck verifies that every node and repair a result refers to is
// part of it.
func crossCheck(r *Result) error {
	t := r.CanonicalAST
	node := func(what string, id ast.NodeID) error {
		if !t.Has(id) {
			return fmt.Errorf("%w: %s refers to missing node %s", ast.ErrStructure, what, id)
		}
		return nil
	}
	repairs := make(map[string]bool, len(r.Repairs))
	for _, c := range r.Repairs {
		if repairs[c.ID] {
			return fmt.Errorf("%w: duplicate repair %s", ast.ErrStructure, c.ID)
		}
		repairs[c.ID] = true
		for _, id := range c.Targets.NodeIDs {
			if err := node("repair "+c.ID, id); err != nil {
				return err
			}
		}
	}
	refs := func(what string, ids []string) error {
		for _, id := range ids {
			if !repairs[id] {
				return fmt.Errorf("%w: %s refers to missing repair %s", ast.ErrStructure, what, id)
			}
		}
		return nil
	}
	for _, d := range r.Diagnostics {
		if err := node("diagnostic "+d.ID, d.Primary); err != nil {
			return err
		}
		for _, id := range d.Secondary {
			if err := node("diagnostic "+d.ID, id); err != nil {
				return err
			}
		}
		if err := refs("diagnostic "+d.ID, d.RepairRefs); err != nil {
			return err
		}
	}
	for _, o := range r.Obligations {
		if err := node("obligation "+o.ID, o.Primary); err != nil {
			return err
		}
		if err := refs("obligation "+o.ID, o.RepairRefs); err != nil {
			return err
		}
	}
	for _, h := range r.Holes {
		if err := node("hole "+h.ID, h.Node); err != nil {
			return err
		}
	}
	return nil
}

func statusOf(r *Result) Status {
	if len(r.Diagnostics) > 0 {
		return StatusError
	}
	if len(r.Holes) > 0 {
		return StatusIncomplete
	}
	for _, o := range r.Obligations {
		if !o.Discharged() {
			return StatusIncomplete
		}
	}
	return StatusSuccess
}

func statsOf(r *Result) Stats {
	s := Stats{
		Nodes:       r.CanonicalAST.Len(),
		Obligations: len(r.Obligations),
		Diagnostics: len(r.Diagnostics),
		Holes:       len(r.Holes),
		Repairs:     len(r.Repairs),
	}
	for _, o := range r.Obligations {
		switch o.SolverResult {
		case solver.ResultDischarged:
			s.Discharged++
		case solver.ResultCounterexample:
			s.Counterexamples++
		default:
			s.Unknown++
		}
	}
	batches := make(map[string]bool)
	for _, c := range r.Repairs {
		if c.Compatibility.BatchKey != "" {
			batches[c.Compatibility.BatchKey] = true
		}
	}
	s.Batches = len(batches)
	return s
}
