package sema

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/facts"
	"refine/internal/solver"
)

const testSeed = 42

func check(t *testing.T, decls ...*ast.Fragment) (*ast.Tree, *Result) {
	t.Helper()
	tree := ast.MustBuild(testSeed, ast.Module(decls...))
	res, err := Check(tree, Options{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return tree, res
}

func intParam(name string) *ast.Fragment { return ast.Param(name, ast.TypeName("Int")) }

func refinedInt(v string, p *ast.Fragment) *ast.Fragment {
	return ast.Refined(ast.TypeName("Int"), v, p)
}

func ofKind(res *Result, k Kind) []*Obligation {
	var out []*Obligation
	for _, o := range res.Obligations {
		if o.Kind == k {
			out = append(out, o)
		}
	}
	return out
}

func goals(obs []*Obligation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Goal.String()
	}
	return out
}

// codes lists the diagnostic codes in report order; nil when there are none.
func codes(res *Result) []diag.Code {
	var out []diag.Code
	for _, d := range res.Diagnostics {
		out = append(out, d.Code)
	}
	return out
}

func hasFact(o *Obligation, text string, prov facts.Provenance) bool {
	for _, f := range o.Context.Facts {
		if f.Prop.String() == text && (prov == "" || f.Provenance == prov) {
			return true
		}
	}
	return false
}

func TestDivisionNeedsNonZeroDivisor(t *testing.T) {
	tree, res := check(t, ast.Fn("div", ast.FnSig{
		Params: []*ast.Fragment{intParam("x"), intParam("d")},
		Result: ast.TypeName("Int"),
	}, ast.Return(ast.Bin("/", ast.Ident("x"), ast.Ident("d")))))

	if len(res.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics)
	}
	obs := ofKind(res, KindRefinement)
	if diff := cmp.Diff([]string{"d != 0"}, goals(obs)); diff != "" {
		t.Fatalf("goals (-want +got):\n%s", diff)
	}
	o := obs[0]
	if len(o.Context.Facts) != 0 {
		t.Errorf("facts = %v, want none", o.Context.Facts)
	}
	if tree.Node(o.Primary).Kind != ast.KindIdent || tree.Node(o.Primary).Name != "d" {
		t.Errorf("primary = %v, want the divisor", tree.Node(o.Primary))
	}
	if o.Hint.Guard == nil {
		t.Errorf("no guard hint")
	}
	params := tree.Children(tree.Child(tree.Child(tree.Root(), 0), 0))
	if diff := cmp.Diff([]ast.NodeID{params[1]}, o.Hint.Params); diff != "" {
		t.Errorf("hint params (-want +got):\n%s", diff)
	}
}

func TestGuardedDivisionKnowsDivisor(t *testing.T) {
	// return if d != 0 then x / d else fail
	_, res := check(t, ast.Fn("div", ast.FnSig{
		Params: []*ast.Fragment{intParam("x"), intParam("d")},
		Result: ast.TypeName("Int"),
	}, ast.Return(ast.Cond(
		ast.Bin("!=", ast.Ident("d"), ast.Int(0)),
		ast.Bin("/", ast.Ident("x"), ast.Ident("d")),
		ast.Fail("division by zero"),
	))))

	obs := ofKind(res, KindRefinement)
	if len(obs) != 1 {
		t.Fatalf("obligations = %v", goals(res.Obligations))
	}
	if !hasFact(obs[0], "d != 0", facts.ProvBranch) {
		t.Fatalf("facts = %v, want the branch condition", obs[0].Context.Facts)
	}
}

func TestParamRefinementReachesLetSite(t *testing.T) {
	_, res := check(t, ast.Fn("f", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("x", refinedInt("v", ast.Bin(">", ast.Ident("v"), ast.Int(5))))},
	}, ast.Let("y", refinedInt("v", ast.Bin("<=", ast.Ident("v"), ast.Int(5))), ast.Ident("x"))))

	obs := ofKind(res, KindRefinement)
	if diff := cmp.Diff([]string{"x <= 5"}, goals(obs)); diff != "" {
		t.Fatalf("goals (-want +got):\n%s", diff)
	}
	if !hasFact(obs[0], "x > 5", facts.ProvParamRefine) {
		t.Fatalf("facts = %v", obs[0].Context.Facts)
	}
}

func TestUnresolvedNameSuggestsVisibleNames(t *testing.T) {
	tree, res := check(t, ast.Fn("greet", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("hello", ast.TypeName("String")), ast.Param("help", ast.TypeName("String"))},
		Result: ast.TypeName("String"),
	}, ast.Return(ast.Ident("helo"))))

	if diff := cmp.Diff([]diag.Code{diag.SemaUnresolvedName}, codes(res)); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
	d := res.Diagnostics[0]
	if tree.Node(d.Primary).Name != "helo" || d.Structured["name"] != "helo" {
		t.Fatalf("diagnostic = %+v", d)
	}
	if diff := cmp.Diff([]string{"hello", "help"}, res.Names[d.ID]); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestMissingEffectIsDecided(t *testing.T) {
	_, res := check(t, ast.Fn("main", ast.FnSig{}, ast.ExprStmt(ast.Call("print", ast.Str("hi")))))

	obs := ofKind(res, KindEffect)
	if len(obs) != 1 {
		t.Fatalf("effect obligations = %d", len(obs))
	}
	o := obs[0]
	if !o.Decided || o.SolverResult != solver.ResultCounterexample {
		t.Fatalf("effect obligation not settled: %+v", o)
	}
	if diff := cmp.Diff(map[string]string{"effect": "IO"}, o.Counterexample); diff != "" {
		t.Fatalf("counterexample (-want +got):\n%s", diff)
	}
	if got := o.Hint.Missing.Strings(); !slices.Equal(got, []string{"IO"}) {
		t.Fatalf("missing = %v", got)
	}
	if len(o.Related) != 1 {
		t.Fatalf("related = %v, want the print call", o.Related)
	}
}

func TestDeclaredEffectDischarges(t *testing.T) {
	_, res := check(t, ast.Fn("main", ast.FnSig{Effects: []string{"IO"}}, ast.ExprStmt(ast.Call("print", ast.Str("hi")))))

	obs := ofKind(res, KindEffect)
	if len(obs) != 1 || obs[0].SolverResult != solver.ResultDischarged {
		t.Fatalf("effect obligations = %+v", obs)
	}
}

func TestUnusedHandleViolatesLinearity(t *testing.T) {
	tree, res := check(t, ast.Fn("main", ast.FnSig{Effects: []string{"IO"}},
		ast.Let("h", nil, ast.Call("open_file", ast.Str("a.txt"))),
	))

	obs := ofKind(res, KindLinearity)
	if len(obs) != 1 {
		t.Fatalf("linearity obligations = %d", len(obs))
	}
	o := obs[0]
	if o.SolverResult != solver.ResultCounterexample || o.Counterexample["uses"] != "0" {
		t.Fatalf("obligation = %+v", o)
	}
	if o.Hint.Binding != "h" || o.Hint.Place != PlaceAfter || tree.Kind(o.Hint.Anchor) != ast.KindLet {
		t.Fatalf("hint = %+v", o.Hint)
	}
}

func TestUnusedParameterInEmptyBodyAnchorsOnBody(t *testing.T) {
	tree, res := check(t, ast.Fn("drop", ast.FnSig{
		Params:  []*ast.Fragment{ast.Param("h", ast.Linear(ast.TypeName("FileHandle")))},
		Effects: []string{"IO"},
	}))

	obs := ofKind(res, KindLinearity)
	if len(obs) != 1 {
		t.Fatalf("linearity obligations = %d", len(obs))
	}
	o := obs[0]
	if o.SolverResult != solver.ResultCounterexample || o.Counterexample["uses"] != "0" {
		t.Fatalf("obligation = %+v", o)
	}
	body := tree.Child(tree.Child(tree.Root(), 0), 4)
	if o.Hint.Binding != "h" || o.Hint.Place != PlaceInside || o.Hint.Anchor != body {
		t.Fatalf("hint = %+v, want anchor %s inside", o.Hint, body)
	}
}

func TestLinearity(t *testing.T) {
	open := func() *ast.Fragment { return ast.Let("h", nil, ast.Call("open_file", ast.Str("a"))) }
	closeH := func() *ast.Fragment { return ast.ExprStmt(ast.Call("close_file", ast.Ident("h"))) }
	tests := []struct {
		name string
		body []*ast.Fragment
		want string // counterexample uses, "" when discharged
	}{
		{"closed once", []*ast.Fragment{open(), closeH()}, ""},
		{"closed twice", []*ast.Fragment{open(), closeH(), closeH()}, "2"},
		{"closed on one branch", []*ast.Fragment{open(), ast.If(ast.Bool(true), []*ast.Fragment{closeH()}, nil)}, "0"},
		{"closed on both branches", []*ast.Fragment{open(), ast.If(ast.Bool(true), []*ast.Fragment{closeH()}, []*ast.Fragment{closeH()})}, ""},
		{"closed in a loop", []*ast.Fragment{open(), ast.While(ast.Bool(false), closeH())}, "2"},
		{"early return", []*ast.Fragment{open(), ast.If(ast.Bool(true), []*ast.Fragment{ast.Return(nil)}, nil), closeH()}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res := check(t, ast.Fn("main", ast.FnSig{Effects: []string{"IO"}}, tt.body...))
			obs := ofKind(res, KindLinearity)
			if len(obs) != 1 {
				t.Fatalf("linearity obligations = %d", len(obs))
			}
			o := obs[0]
			if tt.want == "" {
				if o.SolverResult != solver.ResultDischarged {
					t.Fatalf("want discharged, got %v %v", o.SolverResult, o.Counterexample)
				}
				return
			}
			if o.SolverResult != solver.ResultCounterexample || o.Counterexample["uses"] != tt.want {
				t.Fatalf("got %v %v, want uses %s", o.SolverResult, o.Counterexample, tt.want)
			}
		})
	}
}

func TestGuardClauseAddsNegatedCondition(t *testing.T) {
	_, res := check(t, ast.Fn("div", ast.FnSig{
		Params: []*ast.Fragment{intParam("x"), intParam("d")},
		Result: ast.TypeName("Int"),
	},
		ast.If(ast.Bin("==", ast.Ident("d"), ast.Int(0)), []*ast.Fragment{ast.Return(ast.Int(0))}, nil),
		ast.Return(ast.Bin("/", ast.Ident("x"), ast.Ident("d"))),
	))

	obs := ofKind(res, KindRefinement)
	if len(obs) != 1 {
		t.Fatalf("obligations = %v", goals(res.Obligations))
	}
	found := false
	for _, f := range obs[0].Context.Facts {
		if f.Provenance == facts.ProvGuard {
			found = true
		}
	}
	if !found {
		t.Fatalf("facts = %v, want a guard fact", obs[0].Context.Facts)
	}
}

func TestJoinKeepsCommonFacts(t *testing.T) {
	_, res := check(t, ast.Fn("f", ast.FnSig{Params: []*ast.Fragment{ast.Param("c", ast.TypeName("Bool"))}},
		ast.LetMut("y", ast.TypeName("Int"), ast.Int(0)),
		ast.If(ast.Ident("c"),
			[]*ast.Fragment{ast.Assign(ast.Ident("y"), ast.Int(1))},
			[]*ast.Fragment{ast.Assign(ast.Ident("y"), ast.Int(1))}),
		ast.Let("z", refinedInt("v", ast.Bin("==", ast.Ident("v"), ast.Int(1))), ast.Ident("y")),
	))

	obs := ofKind(res, KindRefinement)
	if len(obs) != 1 {
		t.Fatalf("obligations = %v", goals(res.Obligations))
	}
	if !hasFact(obs[0], "y == 1", facts.ProvJoin) {
		t.Fatalf("facts = %v", obs[0].Context.Facts)
	}
	if hasFact(obs[0], "y == 0", "") {
		t.Fatalf("stale fact survived the assignment: %v", obs[0].Context.Facts)
	}
}

func TestLoopForgetsAssignedBindings(t *testing.T) {
	_, res := check(t, ast.Fn("count", ast.FnSig{Params: []*ast.Fragment{intParam("n")}},
		ast.LetMut("i", ast.TypeName("Int"), ast.Int(0)),
		ast.While(ast.Bin("<", ast.Ident("i"), ast.Ident("n")),
			ast.Assign(ast.Ident("i"), ast.Bin("+", ast.Ident("i"), ast.Int(1)))),
		ast.Let("z", refinedInt("v", ast.Bin(">=", ast.Ident("v"), ast.Ident("n"))), ast.Ident("i")),
	))

	obs := ofKind(res, KindRefinement)
	if len(obs) != 1 {
		t.Fatalf("obligations = %v", goals(res.Obligations))
	}
	o := obs[0]
	if o.Goal.String() != "i >= n" {
		t.Fatalf("goal = %s", o.Goal)
	}
	if hasFact(o, "i == 0", "") {
		t.Fatalf("loop entry fact survived: %v", o.Context.Facts)
	}
	if !hasFact(o, "!(i < n)", facts.ProvLoopCond) {
		t.Fatalf("facts = %v, want the negated loop condition", o.Context.Facts)
	}
}

func TestForLoopAssumesRange(t *testing.T) {
	xs := ast.Param("xs", ast.ListOf(ast.TypeName("Int")))
	_, res := check(t, ast.Fn("sum", ast.FnSig{Params: []*ast.Fragment{xs}, Result: ast.TypeName("Int")},
		ast.LetMut("s", ast.TypeName("Int"), ast.Int(0)),
		ast.For("i", ast.Int(0), ast.Call("len", ast.Ident("xs")),
			ast.Assign(ast.Ident("s"), ast.Bin("+", ast.Ident("s"), ast.Index(ast.Ident("xs"), ast.Ident("i"))))),
		ast.Return(ast.Ident("s")),
	))

	obs := ofKind(res, KindRefinement)
	if diff := cmp.Diff([]string{"(0 <= i) && (i < len(xs))"}, goals(obs)); diff != "" {
		t.Fatalf("goals (-want +got):\n%s", diff)
	}
	if !hasFact(obs[0], "0 <= i", facts.ProvLoopRange) || !hasFact(obs[0], "i < len(xs)", facts.ProvLoopRange) {
		t.Fatalf("facts = %v", obs[0].Context.Facts)
	}
}

func TestCallSites(t *testing.T) {
	_, res := check(t,
		ast.Fn("pick", ast.FnSig{Result: ast.TypeName("Int"), Effects: []string{"Random"}},
			ast.Return(ast.Call("random_int", ast.Int(5), ast.Int(1)))),
		ast.Fn("safe", ast.FnSig{
			Params: []*ast.Fragment{ast.Param("n", refinedInt("v", ast.Bin(">", ast.Ident("v"), ast.Int(0))))},
		}),
		ast.Fn("caller", ast.FnSig{Params: []*ast.Fragment{intParam("k")}},
			ast.ExprStmt(ast.Call("safe", ast.Call("abs", ast.Ident("k"))))),
	)

	if diff := cmp.Diff([]string{"5 < 1"}, goals(ofKind(res, KindPrecondition))); diff != "" {
		t.Errorf("preconditions (-want +got):\n%s", diff)
	}
	refs := ofKind(res, KindRefinement)
	if diff := cmp.Diff([]string{"abs(k) > 0"}, goals(refs)); diff != "" {
		t.Fatalf("refinements (-want +got):\n%s", diff)
	}
	if !hasFact(refs[0], "abs(k) >= 0", facts.ProvCalleePost) {
		t.Errorf("facts = %v, want the callee result refinement", refs[0].Context.Facts)
	}
}

func TestPostconditions(t *testing.T) {
	_, res := check(t, ast.Fn("inc", ast.FnSig{
		Params:  []*ast.Fragment{intParam("x")},
		Result:  refinedInt("v", ast.Bin(">", ast.Ident("v"), ast.Int(0))),
		Ensures: []*ast.Fragment{ast.Bin(">", ast.Ident("result"), ast.Ident("x"))},
	}, ast.Return(ast.Bin("+", ast.Ident("x"), ast.Int(1)))))

	want := []string{"(x + 1) > x", "(x + 1) > 0"}
	if diff := cmp.Diff(want, goals(ofKind(res, KindPostcondition))); diff != "" {
		t.Fatalf("postconditions (-want +got):\n%s", diff)
	}
}

func TestDiagnostics(t *testing.T) {
	point := ast.Record("Point",
		ast.FieldDecl("x", ast.TypeName("Int")),
		ast.FieldDecl("y", ast.TypeName("Int")),
	)
	color := ast.Enum("Color", "Red", "Green", "Blue")
	tests := []struct {
		name  string
		decls []*ast.Fragment
		want  []diag.Code
	}{
		{
			name: "immutable assignment",
			decls: []*ast.Fragment{ast.Fn("f", ast.FnSig{},
				ast.Let("x", ast.TypeName("Int"), ast.Int(1)),
				ast.Assign(ast.Ident("x"), ast.Int(2)))},
			want: []diag.Code{diag.SemaImmutableAssign},
		},
		{
			name: "missing and unknown field",
			decls: []*ast.Fragment{point, ast.Fn("f", ast.FnSig{},
				ast.Let("p", nil, ast.RecordLit("Point", ast.FieldInit("x", ast.Int(1)), ast.FieldInit("z", ast.Int(2)))))},
			// the record literal precedes its initializers
			want: []diag.Code{diag.SemaMissingField, diag.SemaUnknownField},
		},
		{
			name: "duplicate field initializer",
			decls: []*ast.Fragment{point, ast.Fn("f", ast.FnSig{},
				ast.Let("p", nil, ast.RecordLit("Point",
					ast.FieldInit("x", ast.Int(1)), ast.FieldInit("y", ast.Int(2)), ast.FieldInit("x", ast.Int(3)))))},
			want: []diag.Code{diag.SemaDuplicateField},
		},
		{
			name: "non-exhaustive match",
			decls: []*ast.Fragment{color, ast.Fn("f", ast.FnSig{Params: []*ast.Fragment{ast.Param("c", ast.TypeName("Color"))}},
				ast.Match(ast.Ident("c"),
					ast.Arm(ast.PatVariant("Red")),
					ast.Arm(ast.PatVariant("Green"))))},
			want: []diag.Code{diag.SemaNonexhaustiveMatch},
		},
		{
			name: "wildcard makes match exhaustive",
			decls: []*ast.Fragment{color, ast.Fn("f", ast.FnSig{Params: []*ast.Fragment{ast.Param("c", ast.TypeName("Color"))}},
				ast.Match(ast.Ident("c"),
					ast.Arm(ast.PatVariant("Red")),
					ast.Arm(ast.PatWild())))},
		},
		{
			name: "arity mismatch",
			decls: []*ast.Fragment{ast.Fn("f", ast.FnSig{Effects: []string{"IO"}},
				ast.ExprStmt(ast.Call("print", ast.Str("a"), ast.Str("b"))))},
			want: []diag.Code{diag.SemaArityMismatch},
		},
		{
			name: "unknown function",
			decls: []*ast.Fragment{ast.Fn("f", ast.FnSig{},
				ast.ExprStmt(ast.Call("prnt", ast.Str("a"))))},
			want: []diag.Code{diag.SemaUnknownFunction},
		},
		{
			name: "duplicate declaration",
			decls: []*ast.Fragment{ast.Fn("f", ast.FnSig{}), ast.Fn("f", ast.FnSig{}), ast.Fn("print", ast.FnSig{})},
			want: []diag.Code{diag.SemaDuplicateDecl, diag.SemaDuplicateDecl},
		},
		{
			name: "non-Bool condition",
			decls: []*ast.Fragment{ast.Fn("f", ast.FnSig{},
				ast.If(ast.Int(1), []*ast.Fragment{}, nil))},
			want: []diag.Code{diag.SemaTypeMismatch},
		},
		{
			name: "effectful call in contract",
			decls: []*ast.Fragment{ast.Fn("f", ast.FnSig{
				Requires: []*ast.Fragment{ast.Bin("==", ast.Call("read_line"), ast.Str("y"))},
			})},
			want: []diag.Code{diag.SemaMalformedContract},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res := check(t, tt.decls...)
			if diff := cmp.Diff(tt.want, codes(res)); diff != "" {
				t.Fatalf("codes (-want +got):\n%s\n%v", diff, res.Diagnostics)
			}
		})
	}
}

func TestHoleCandidates(t *testing.T) {
	_, res := check(t, ast.Fn("f", ast.FnSig{
		Params: []*ast.Fragment{intParam("a"), ast.Param("s", ast.TypeName("String")), intParam("b")},
	}, ast.Let("x", ast.TypeName("Int"), ast.Hole("fill"))))

	if len(res.Holes) != 1 {
		t.Fatalf("holes = %v", res.Holes)
	}
	h := res.Holes[0]
	if h.Name != "fill" || h.Expected.String() != "Int" {
		t.Fatalf("hole = %+v", h)
	}
	if diff := cmp.Diff([]string{"a", "b"}, h.Candidates); diff != "" {
		t.Fatalf("candidates (-want +got):\n%s", diff)
	}
}

func TestObligationIDsAreStable(t *testing.T) {
	build := func() []string {
		_, res := check(t, ast.Fn("div", ast.FnSig{
			Params: []*ast.Fragment{intParam("x"), intParam("d")},
			Result: ast.TypeName("Int"),
		}, ast.Return(ast.Bin("/", ast.Ident("x"), ast.Ident("d")))))
		ids := make([]string, len(res.Obligations))
		for i, o := range res.Obligations {
			ids[i] = o.ID
		}
		return ids
	}
	if diff := cmp.Diff(build(), build()); diff != "" {
		t.Fatalf("ids differ between runs:\n%s", diff)
	}
}

func TestMalformedTreeIsRejected(t *testing.T) {
	tree := ast.MustBuild(testSeed, ast.Module(ast.Fn("f", ast.FnSig{})))
	broken := tree.Clone()
	kids := append(slices.Clone(broken.Children(broken.Root())), ast.NodeID(12345))
	if err := broken.SetChildren(broken.Root(), kids); err != nil {
		t.Fatal(err)
	}
	if _, err := Check(broken, Options{}); !errors.Is(err, ast.ErrStructure) {
		t.Fatalf("err = %v, want ErrStructure", err)
	}
}
