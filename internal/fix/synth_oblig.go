package fix

import (
	"fmt"

	"refine/internal/ast"
	"refine/internal/sema"
	"refine/internal/solver"
)

func (s *Synthesizer) forObligation(o *sema.Obligation) []Candidate {
	if o.SolverResult == solver.ResultDischarged {
		return nil
	}
	switch o.Kind {
	case sema.KindRefinement, sema.KindPrecondition, sema.KindPostcondition:
		return s.guards(o)
	case sema.KindEffect:
		return s.widen(o)
	case sema.KindLinearity:
		return s.consume(o)
	}
	return nil
}

// guards checks the goal at run time in front of the value that needs it,
// and for goals about parameters alone offers to move the check to the
// callers instead.
func (s *Synthesizer) guards(o *sema.Obligation) []Candidate {
	if o.Hint.Guard == nil || !s.tree.Has(o.Primary) {
		return nil
	}
	goal := o.Goal.String()
	var out []Candidate

	wrap := []Option{
		WithConfidence(ConfidenceMedium),
		WithSafety(SafetyLikelyPreserving),
		WithRationale(fmt.Sprintf("the facts here neither prove nor refute %s; the guard only fails when it is false", goal)),
	}
	if o.SolverResult == solver.ResultCounterexample {
		wrap = []Option{
			WithConfidence(ConfidenceLow),
			WithSafety(SafetyBehaviorChanging),
			WithKind(KindSemanticsChange),
			WithRationale(fmt.Sprintf("%s is false for %s; the guard turns that case into a failure", goal, formatModel(o.Counterexample))),
		}
	}
	out = append(out, Wrap(
		fmt.Sprintf("guard with %s", goal), o.Primary,
		ast.Cond(o.Hint.Guard, ast.RefTo(o.Primary), ast.Fail(fmt.Sprintf("%s violated: %s", o.Kind, goal))),
		wrap...,
	))

	if o.SolverResult == solver.ResultUnknown && len(o.Hint.Params) == 1 && o.Kind != sema.KindPostcondition {
		param := s.tree.Node(o.Hint.Params[0])
		if param != nil && param.Kind == ast.KindParam {
			out = append(out, AddRefinement(
				fmt.Sprintf("require %s of every caller", goal), param.ID, param.Name, o.Hint.Guard,
				WithConfidence(ConfidenceMedium),
				WithSafety(SafetyLikelyPreserving),
				WithKind(KindBoundaryValidation),
				CrossesFunction(),
				WithRationale(fmt.Sprintf("%s only mentions '%s'; refining the parameter makes each call site prove it", goal, param.Name)),
			))
		}
	}
	return out
}

// widen declares the effects the function performs but does not list.
func (s *Synthesizer) widen(o *sema.Obligation) []Candidate {
	missing := o.Hint.Missing.Strings()
	fn := s.tree.Node(o.Hint.Fn)
	if len(missing) == 0 || fn == nil || fn.Kind != ast.KindFn {
		return nil
	}
	conf := ConfidenceMedium
	if len(missing) == 1 {
		conf = ConfidenceHigh
	}
	return []Candidate{WidenEffect(
		fmt.Sprintf("declare %s on %s", quoteAll(missing), fn.Name), fn.ID, missing,
		WithConfidence(conf),
		WithSafety(SafetyLikelyPreserving),
		WithKind(KindRefactor),
		CrossesFunction(),
		WithRationale(fmt.Sprintf("%s calls functions that perform %s", fn.Name, quoteAll(missing))),
	)}
}

// consume disposes of an unused linear value with a function that takes it
// and returns nothing.
func (s *Synthesizer) consume(o *sema.Obligation) []Candidate {
	h := o.Hint
	if h.Binding == "" || h.BindingType == nil || !s.tree.Has(h.Anchor) {
		return nil
	}
	var consumers []string
	for _, name := range s.signatureNames() {
		if s.res.Signatures[name].Consumes(h.BindingType) {
			consumers = append(consumers, name)
		}
	}
	conf := ConfidenceMedium
	if len(consumers) == 1 {
		conf = ConfidenceHigh
	}
	var out []Candidate
	for _, name := range consumers {
		call := ast.ExprStmt(ast.Call(name, ast.Ident(h.Binding)))
		title := fmt.Sprintf("call %s(%s) before the scope ends", name, h.Binding)
		build, frag := InsertBefore, call
		switch h.Place {
		case sema.PlaceAfter:
			title = fmt.Sprintf("call %s(%s) after the scope ends", name, h.Binding)
			build = InsertAfter
		case sema.PlaceInside:
			title = fmt.Sprintf("call %s(%s) inside the empty body", name, h.Binding)
			build, frag = ReplaceNode, ast.Block(call)
		}
		out = append(out, build(title, h.Anchor, frag,
			WithConfidence(conf),
			WithSafety(SafetyLikelyPreserving),
			WithRationale(fmt.Sprintf("'%s' is %s and must be used exactly once", h.Binding, h.BindingType)),
		))
	}
	return out
}

// forHole fills a hole with each binding of the expected type in scope.
func (s *Synthesizer) forHole(h *sema.Hole) []Candidate {
	conf := ConfidenceMedium
	if len(h.Candidates) == 1 {
		conf = ConfidenceHigh
	}
	var out []Candidate
	for _, name := range h.Candidates {
		out = append(out, ReplaceNode(
			fmt.Sprintf("fill ?%s with '%s'", h.Name, name), h.Node, ast.Ident(name),
			WithConfidence(conf),
			WithSafety(SafetyBehaviorChanging),
			WithRationale(fmt.Sprintf("'%s' is in scope and has type %s", name, h.Expected)),
		))
	}
	return out
}

func formatModel(m map[string]string) string {
	if len(m) == 0 {
		return "some input"
	}
	return fmt.Sprint(m)
}
