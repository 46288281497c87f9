// Package testkit checks the invariants every pass result must hold. Tests
// of the packages above the engine run it on whatever they compile.
package testkit

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"refine/internal/ast"
	"refine/internal/engine"
	"refine/internal/patch"
	"refine/internal/solver"
	"refine/internal/source"
)

// CheckSpanInvariants checks that every node of t whose span points into sf
// is well formed and lies within sf's content.
func CheckSpanInvariants(t *ast.Tree, sf *source.File) error {
	if t == nil || sf == nil {
		return fmt.Errorf("nil tree or file")
	}
	lenContent, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	for _, id := range t.PreOrder() {
		sp := t.Span(id)
		if sp.File != sf.ID {
			continue
		}
		if sp.End < sp.Start {
			return fmt.Errorf("node %s: inverted span %v", id, sp)
		}
		if sp.End > lenContent {
			return fmt.Errorf("node %s: span end beyond content: %d > %d", id, sp.End, lenContent)
		}
	}
	return nil
}

// CheckResult checks a pass result:
//  1. the canonical tree is valid and canonical
//  2. diagnostics, obligations and holes are ordered by span, then ID
//  3. repair targets name items of the result
//  4. status and stats agree with the lists
//  5. every repair that requires no other applies to the canonical tree
//     on its own
func CheckResult(res *engine.Result) error {
	if res == nil || res.CanonicalAST == nil {
		return fmt.Errorf("result without a canonical tree")
	}
	tree := res.CanonicalAST
	if err := ast.Validate(tree); err != nil {
		return fmt.Errorf("canonical tree: %w", err)
	}
	if !patch.IsCanonical(tree) {
		return fmt.Errorf("canonical tree is not canonical")
	}

	if err := sorted("diagnostics", len(res.Diagnostics), func(i int) (source.Span, string) {
		return res.Diagnostics[i].Span, res.Diagnostics[i].ID
	}); err != nil {
		return err
	}
	if err := sorted("obligations", len(res.Obligations), func(i int) (source.Span, string) {
		return res.Obligations[i].Span, res.Obligations[i].ID
	}); err != nil {
		return err
	}
	if err := sorted("holes", len(res.Holes), func(i int) (source.Span, string) {
		return res.Holes[i].Span, res.Holes[i].ID
	}); err != nil {
		return err
	}

	obligations := make(map[string]bool, len(res.Obligations))
	for _, o := range res.Obligations {
		obligations[o.ID] = true
	}
	holes := make(map[string]bool, len(res.Holes))
	for _, h := range res.Holes {
		holes[h.ID] = true
	}
	for _, c := range res.Repairs {
		for _, id := range c.Targets.ObligationIDs {
			if !obligations[id] {
				return fmt.Errorf("repair %s targets missing obligation %s", c.ID, id)
			}
		}
		for _, id := range c.Targets.HoleIDs {
			if !holes[id] {
				return fmt.Errorf("repair %s targets missing hole %s", c.ID, id)
			}
		}
		if len(c.Edits) == 0 {
			return fmt.Errorf("repair %s has no edits", c.ID)
		}
	}

	if err := checkStatus(res); err != nil {
		return err
	}

	for _, c := range res.Repairs {
		if len(c.Compatibility.Requires) > 0 {
			continue
		}
		next, err := patch.Apply(tree, c.Edits)
		if err != nil {
			return fmt.Errorf("repair %s does not apply: %w", c.ID, err)
		}
		if err := ast.Validate(next); err != nil {
			return fmt.Errorf("repair %s: %w", c.ID, err)
		}
	}
	return nil
}

func sorted(what string, n int, at func(int) (source.Span, string)) error {
	for i := 1; i < n; i++ {
		sa, ida := at(i - 1)
		sb, idb := at(i)
		if c := sa.Compare(sb); c > 0 || c == 0 && ida >= idb {
			return fmt.Errorf("%s out of order at %d: %s before %s", what, i, ida, idb)
		}
	}
	return nil
}

func checkStatus(res *engine.Result) error {
	var discharged, counter, unknown int
	for _, o := range res.Obligations {
		switch o.SolverResult {
		case solver.ResultDischarged:
			discharged++
		case solver.ResultCounterexample:
			counter++
			if len(o.Counterexample) == 0 && !o.Decided {
				return fmt.Errorf("obligation %s: counterexample verdict without a model", o.ID)
			}
		default:
			unknown++
			if o.UnknownReason == nil {
				return fmt.Errorf("obligation %s: unknown verdict without a reason", o.ID)
			}
		}
	}

	want := engine.StatusSuccess
	switch {
	case len(res.Diagnostics) > 0:
		want = engine.StatusError
	case len(res.Holes) > 0 || discharged < len(res.Obligations):
		want = engine.StatusIncomplete
	}
	if res.Status != want {
		return fmt.Errorf("status %s, want %s", res.Status, want)
	}
	if want == engine.StatusSuccess && res.Output == "" {
		return fmt.Errorf("success without output")
	}
	if want != engine.StatusSuccess && res.Output != "" {
		return fmt.Errorf("%s result has output", res.Status)
	}

	st := res.Stats
	got := []int{st.Nodes, st.Obligations, st.Discharged, st.Counterexamples, st.Unknown, st.Diagnostics, st.Holes, st.Repairs}
	exp := []int{res.CanonicalAST.Len(), len(res.Obligations), discharged, counter, unknown, len(res.Diagnostics), len(res.Holes), len(res.Repairs)}
	if !slices.Equal(got, exp) {
		return fmt.Errorf("stats %v, want %v", got, exp)
	}
	return nil
}
