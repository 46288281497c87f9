package fix

import (
	"fmt"
	"strings"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/types"
)

func (s *Synthesizer) forDiagnostic(d *diag.Diagnostic) []Candidate {
	switch d.Code {
	case diag.SemaUnresolvedName, diag.SemaUnknownFunction, diag.SemaUnknownType:
		return s.renames(d, RenameSymbol)
	case diag.SemaUnknownField:
		return s.renames(d, RenameField)
	case diag.SemaMissingField:
		return s.missingFields(d)
	case diag.SemaDuplicateField:
		return []Candidate{DeleteNode(
			fmt.Sprintf("remove the second initializer of '%s'", d.Structured["name"]), d.Primary,
			WithConfidence(ConfidenceHigh),
			WithSafety(SafetyLikelyPreserving),
			WithRationale("a record literal may initialize each field once; the first initializer is kept"),
		)}
	case diag.SemaImmutableAssign:
		return s.makeMutable(d)
	case diag.SemaNonexhaustiveMatch:
		return s.wildcardArm(d)
	case diag.SemaArityMismatch:
		return s.arity(d)
	}
	return nil
}

type renameFunc func(title string, target ast.NodeID, name string, opts ...Option) Candidate

// renames proposes every known name close enough to the unresolved one.
func (s *Synthesizer) renames(d *diag.Diagnostic, mk renameFunc) []Candidate {
	want := d.Structured["name"]
	if want == "" {
		want = s.tree.Node(d.Primary).Name
	}
	var out []Candidate
	for _, sug := range nearest(want, s.res.Names[d.ID], s.opts.MaxDistance) {
		conf := ConfidenceMedium
		if sug.dist <= s.opts.HighDistance {
			conf = ConfidenceHigh
		}
		out = append(out, mk(
			fmt.Sprintf("rename '%s' to '%s'", want, sug.name), d.Primary, sug.name,
			WithConfidence(conf),
			WithSafety(SafetyBehaviorChanging),
			WithRationale(fmt.Sprintf("'%s' is %d %s away from '%s'", sug.name, sug.dist, plural(sug.dist, "edit"), want)),
		))
	}
	return out
}

// missingFields initializes every missing field with the zero value of its
// type, or a hole when the type has none.
func (s *Synthesizer) missingFields(d *diag.Diagnostic) []Candidate {
	rec, ok := s.res.Records[d.Structured["record"]]
	if !ok || d.Structured["missing"] == "" {
		return nil
	}
	names := strings.Split(d.Structured["missing"], ",")
	var edits []Candidate
	holes := 0
	for _, name := range names {
		f, ok := rec.Field(name)
		if !ok {
			return nil
		}
		value := s.zero(f.Type)
		if value == nil {
			value = ast.Hole(name)
			holes++
		}
		edits = append(edits, AddField("", d.Primary, name, value))
	}
	c := edits[0]
	c.Title = fmt.Sprintf("initialize %s of %s", quoteAll(names), rec.Name)
	for _, e := range edits[1:] {
		c.Edits = append(c.Edits, e.Edits...)
	}
	c.Confidence = ConfidenceMedium
	if holes > 0 {
		c.Confidence = ConfidenceLow
	}
	c.Rationale = "every field of a record literal needs a value; zero values stand in until the author picks better ones"
	return []Candidate{c}
}

// zero is the literal a fresh value of t starts from, or nil.
func (s *Synthesizer) zero(t *types.Type) *ast.Fragment {
	if t == nil || t.Refine != nil {
		return nil
	}
	switch t.Kind {
	case types.KindInt:
		return ast.Int(0)
	case types.KindReal:
		return ast.Real("0.0")
	case types.KindBool:
		return ast.Bool(false)
	case types.KindString:
		return ast.Str("")
	case types.KindEnum:
		if e, ok := s.res.Enums[t.Name]; ok && len(e.Variants) > 0 {
			return ast.Ident(e.Variants[0])
		}
	}
	return nil
}

// makeMutable turns the let an assignment targets into a `let mut`.
func (s *Synthesizer) makeMutable(d *diag.Diagnostic) []Candidate {
	if len(d.Secondary) == 0 {
		return nil
	}
	decl := s.tree.Node(d.Secondary[0])
	if decl == nil || decl.Kind != ast.KindLet || decl.Mutable {
		return nil
	}
	frag := &ast.Fragment{
		Kind:     ast.KindLet,
		Name:     decl.Name,
		Mutable:  true,
		Children: []*ast.Fragment{ast.RefTo(decl.Children[0]), ast.RefTo(decl.Children[1])},
	}
	return []Candidate{ReplaceNode(
		fmt.Sprintf("declare '%s' as mutable", decl.Name), decl.ID, frag,
		WithConfidence(ConfidenceHigh),
		WithSafety(SafetyBehaviorPreserving),
		WithRationale("adding mut only permits the assignment; no existing read changes"),
	)}
}

// wildcardArm closes a match with an arm that fails on the values no other
// arm covers.
func (s *Synthesizer) wildcardArm(d *diag.Diagnostic) []Candidate {
	kids := s.tree.Children(d.Primary)
	if len(kids) == 0 {
		return nil
	}
	msg := "unmatched value"
	if m := d.Structured["missing"]; m != "" {
		msg = "unmatched " + strings.ReplaceAll(m, ",", ", ")
	}
	return []Candidate{InsertAfter(
		"add a wildcard arm that fails", kids[len(kids)-1],
		ast.Arm(ast.PatWild(), ast.ExprStmt(ast.Fail(msg))),
		WithConfidence(ConfidenceHigh),
		WithSafety(SafetyBehaviorPreserving),
		WithRationale("the new arm only runs for values no existing arm matches"),
	)}
}

// arity drops surplus arguments or fills the missing ones with holes.
func (s *Synthesizer) arity(d *diag.Diagnostic) []Candidate {
	call := s.tree.Node(d.Primary)
	sig, ok := s.res.Signatures[call.Name]
	if !ok || call.Kind != ast.KindCall {
		return nil
	}
	args := call.Children
	want := len(sig.Params)
	opts := []Option{WithConfidence(ConfidenceMedium), WithSafety(SafetyBehaviorChanging)}

	switch {
	case len(args) > want:
		extra := args[want:]
		c := DeleteNode(fmt.Sprintf("drop %d %s from the call to %s", len(extra), plural(len(extra), "argument"), sig.Name), extra[0],
			append(opts, WithRationale(sig.String()))...)
		for _, a := range extra[1:] {
			c.Edits = append(c.Edits, DeleteNode("", a).Edits...)
		}
		return []Candidate{c}

	case len(args) == 0:
		holes := make([]*ast.Fragment, want)
		for i, p := range sig.Params {
			holes[i] = ast.Hole(p.Name)
		}
		return []Candidate{ReplaceNode(fmt.Sprintf("pass %d %s to %s", want, plural(want, "argument"), sig.Name), call.ID,
			ast.Call(sig.Name, holes...), append(opts, WithRationale(sig.String()))...)}

	case len(args) < want:
		last := args[len(args)-1]
		missing := sig.Params[len(args):]
		// inserts after the same node land in reverse order
		var c Candidate
		for i := len(missing) - 1; i >= 0; i-- {
			e := InsertAfter("", last, ast.Hole(missing[i].Name))
			if i == len(missing)-1 {
				c = e
				continue
			}
			c.Edits = append(c.Edits, e.Edits...)
		}
		c = applyOptions(c, append(opts, WithRationale(sig.String())))
		c.Title = fmt.Sprintf("pass the missing %s to %s", plural(len(missing), "argument"), sig.Name)
		return []Candidate{c}
	}
	return nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return strings.Join(quoted, ", ")
}
