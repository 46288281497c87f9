package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"refine/internal/ast"
	"refine/internal/facts"
	"refine/internal/fix"
	"refine/internal/patch"
	"refine/internal/pred"
	"refine/internal/sema"
	"refine/internal/solver"
	"refine/internal/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const seed = 5

func build(decls ...*ast.Fragment) *ast.Tree {
	return ast.MustBuild(seed, ast.Module(decls...))
}

func compile(t *testing.T, tree *ast.Tree) *Result {
	t.Helper()
	res, err := Compile(context.Background(), tree, Options{Workers: 4})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func obligationOf(t *testing.T, res *Result, kind sema.Kind) *sema.Obligation {
	t.Helper()
	for _, o := range res.Obligations {
		if o.Kind == kind {
			return o
		}
	}
	t.Fatalf("no %s obligation in %+v", kind, res.Obligations)
	return nil
}

func obligationByID(res *Result, id string) *sema.Obligation {
	for _, o := range res.Obligations {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// repairsFor returns the referenced repairs in reference order.
func repairsFor(t *testing.T, res *Result, refs []string) []fix.Candidate {
	t.Helper()
	out := make([]fix.Candidate, 0, len(refs))
	for _, id := range refs {
		c, ok := res.Repair(id)
		if !ok {
			t.Fatalf("dangling repair ref %s", id)
		}
		out = append(out, c)
	}
	return out
}

func applyIDs(t *testing.T, res *Result, ids ...string) *ast.Tree {
	t.Helper()
	next, sel, err := ApplyCandidates(res, ids)
	if err != nil {
		t.Fatalf("ApplyCandidates: %v", err)
	}
	if len(sel.Skipped) != 0 {
		t.Fatalf("skipped: %+v", sel.Skipped)
	}
	return next
}

func divFn() *ast.Fragment {
	return ast.Fn("div", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("x", ast.TypeName("Int")), ast.Param("d", ast.TypeName("Int"))},
		Result: ast.TypeName("Int"),
	}, ast.Return(ast.Bin("/", ast.Ident("x"), ast.Ident("d"))))
}

func TestUnconstrainedDivisorIsGuarded(t *testing.T) {
	res := compile(t, build(divFn()))
	if res.Status != StatusIncomplete {
		t.Fatalf("status = %s", res.Status)
	}
	o := obligationOf(t, res, sema.KindRefinement)
	if o.SolverResult != solver.ResultUnknown || o.UnknownReason == nil || o.UnknownReason.Category != solver.CatIncompleteFacts {
		t.Fatalf("obligation = %+v", o)
	}
	var wrap *fix.Candidate
	for _, c := range repairsFor(t, res, o.RepairRefs) {
		if c.Edits[0].Kind == patch.OpWrap {
			wrap = &c
			break
		}
	}
	if wrap == nil {
		t.Fatalf("no wrap among %v", o.RepairRefs)
	}

	next := compile(t, applyIDs(t, res, wrap.ID))
	o2 := obligationByID(next, o.ID)
	if o2 == nil || !o2.Discharged() {
		t.Fatalf("obligation after guard = %+v", o2)
	}
	if !slices.ContainsFunc(o2.Context.Facts, func(f facts.Fact) bool {
		return f.Prop.String() == "d != 0" && f.Provenance == facts.ProvBranch
	}) {
		t.Errorf("facts = %v", o2.Context.Facts)
	}
	if next.Status != StatusSuccess || next.Output == "" {
		t.Errorf("status = %s, output = %q", next.Status, next.Output)
	}
}

func TestContradictedRefinementHasCounterexample(t *testing.T) {
	res := compile(t, build(ast.Fn("f", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("x", ast.Refined(ast.TypeName("Int"), "v", ast.Bin(">", ast.Ident("v"), ast.Int(5))))},
	}, ast.Let("y", ast.Refined(ast.TypeName("Int"), "v", ast.Bin("<=", ast.Ident("v"), ast.Int(5))), ast.Ident("x")))))

	o := obligationOf(t, res, sema.KindRefinement)
	if o.SolverResult != solver.ResultCounterexample {
		t.Fatalf("obligation = %+v", o)
	}
	if diff := cmp.Diff(map[string]string{"x": "6"}, o.Counterexample); diff != "" {
		t.Errorf("counterexample (-want +got):\n%s", diff)
	}
	if len(o.RepairRefs) == 0 {
		t.Errorf("no repairs for a refuted goal")
	}
	if res.Status != StatusIncomplete {
		t.Errorf("status = %s", res.Status)
	}
}

func TestRefinementChainsThroughParameters(t *testing.T) {
	positive := ast.Refined(ast.TypeName("Int"), "v", ast.Bin(">", ast.Ident("v"), ast.Int(0)))
	above := ast.Refined(ast.TypeName("Int"), "v", ast.Bin(">", ast.Ident("v"), ast.Ident("x")))
	res := compile(t, build(ast.Fn("f", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("x", positive), ast.Param("y", above)},
	}, ast.Let("z", ast.Refined(ast.TypeName("Int"), "v", ast.Bin(">", ast.Ident("v"), ast.Int(0))), ast.Ident("y")))))

	o := obligationOf(t, res, sema.KindRefinement)
	if !o.Discharged() {
		t.Fatalf("y > x > 0 should prove y > 0: %+v", o)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %s, diagnostics = %+v", res.Status, res.Diagnostics)
	}
}

func TestLoopIndexWithinBounds(t *testing.T) {
	res := compile(t, build(ast.Fn("sum", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("xs", ast.ListOf(ast.TypeName("Int")))},
		Result: ast.TypeName("Int"),
	},
		ast.LetMut("s", ast.TypeName("Int"), ast.Int(0)),
		ast.For("i", ast.Int(0), ast.Call("len", ast.Ident("xs")),
			ast.Assign(ast.Ident("s"), ast.Bin("+", ast.Ident("s"), ast.Index(ast.Ident("xs"), ast.Ident("i"))))),
		ast.Return(ast.Ident("s")),
	)))

	o := obligationOf(t, res, sema.KindRefinement)
	if !o.Discharged() {
		t.Fatalf("bounds goal %s not discharged: %+v", o.Goal, o)
	}
	if res.Status != StatusSuccess {
		t.Errorf("status = %s", res.Status)
	}
}

func TestMisspelledNameGetsRankedRenames(t *testing.T) {
	res := compile(t, build(ast.Fn("greet", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("hello", ast.TypeName("String")), ast.Param("heap", ast.TypeName("String"))},
		Result: ast.TypeName("String"),
	}, ast.Return(ast.Ident("helo")))))

	if res.Status != StatusError || len(res.Diagnostics) != 1 {
		t.Fatalf("status = %s, diagnostics = %v", res.Status, res.Diagnostics)
	}
	got := repairsFor(t, res, res.Diagnostics[0].RepairRefs)
	if len(got) != 2 {
		t.Fatalf("repairs = %+v", got)
	}
	if got[0].Edits[0].Name != "hello" || got[0].Confidence != fix.ConfidenceHigh {
		t.Errorf("first = %s/%s", got[0].Edits[0].Name, got[0].Confidence)
	}
	if got[1].Edits[0].Name != "heap" || got[1].Confidence != fix.ConfidenceMedium {
		t.Errorf("second = %s/%s", got[1].Edits[0].Name, got[1].Confidence)
	}
	if !slices.Contains(got[0].Compatibility.ConflictsWith, got[1].ID) || !slices.Contains(got[1].Compatibility.ConflictsWith, got[0].ID) {
		t.Errorf("alternatives do not conflict: %+v / %+v", got[0].Compatibility, got[1].Compatibility)
	}
}

func TestPureFunctionDoingIOIsWidened(t *testing.T) {
	res := compile(t, build(ast.Fn("main", ast.FnSig{}, ast.ExprStmt(ast.Call("print", ast.Str("hi"))))))

	o := obligationOf(t, res, sema.KindEffect)
	got := repairsFor(t, res, o.RepairRefs)
	if len(got) != 1 {
		t.Fatalf("repairs = %+v", got)
	}
	c := got[0]
	if c.Edits[0].Kind != patch.OpWidenEffect || c.Confidence != fix.ConfidenceHigh || c.Safety != fix.SafetyLikelyPreserving {
		t.Fatalf("repair = %+v", c)
	}
	if diff := cmp.Diff([]string{"IO"}, c.Edits[0].Effects); diff != "" {
		t.Errorf("effects (-want +got):\n%s", diff)
	}
	if next := compile(t, applyIDs(t, res, c.ID)); next.Status != StatusSuccess {
		t.Errorf("status after widening = %s", next.Status)
	}
}

// countingDecider records how many goals reach the solver.
type countingDecider struct {
	calls atomic.Int64
	next  solver.Decider
}

func (d *countingDecider) Decide(ctx context.Context, goal *pred.Term, facts []*pred.Term) solver.Verdict {
	d.calls.Add(1)
	return d.next.Decide(ctx, goal, facts)
}

func TestUnconsumedHandleIsDecidedWithoutSolver(t *testing.T) {
	tree := build(ast.Fn("main", ast.FnSig{Effects: []string{"IO"}},
		ast.Let("h", nil, ast.Call("open_file", ast.Str("a.txt")))))
	dec := &countingDecider{next: solver.New(solver.DefaultOptions)}
	res, err := Compile(context.Background(), tree, Options{Decider: dec})
	if err != nil {
		t.Fatal(err)
	}

	o := obligationOf(t, res, sema.KindLinearity)
	if !o.Decided || o.SolverResult != solver.ResultCounterexample {
		t.Fatalf("obligation = %+v", o)
	}
	if n := dec.calls.Load(); n != 0 {
		t.Errorf("solver consulted %d times", n)
	}
	got := repairsFor(t, res, o.RepairRefs)
	if len(got) != 1 || got[0].Edits[0].Kind != patch.OpInsertBefore {
		t.Fatalf("repairs = %+v", got)
	}

	next := compile(t, applyIDs(t, res, got[0].ID))
	if next.Status != StatusSuccess {
		t.Fatalf("status after consuming = %s", next.Status)
	}
	want := "fn main() -> Unit ! IO {\n    let h = open_file(\"a.txt\")\n    close_file(h)\n    return\n}"
	if diff := cmp.Diff(want, next.Output); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

// sample mixes every kind of problem the engine reports.
func sample() *ast.Tree {
	return build(
		divFn(),
		ast.Fn("greet", ast.FnSig{
			Params: []*ast.Fragment{ast.Param("hello", ast.TypeName("String"))},
			Result: ast.TypeName("String"),
		}, ast.Return(ast.Ident("helo"))),
		ast.Fn("main", ast.FnSig{}, ast.ExprStmt(ast.Call("print", ast.Str("hi")))),
		ast.Fn("count", ast.FnSig{Result: ast.TypeName("Int")},
			ast.Let("n", ast.TypeName("Int"), ast.Int(0)),
			ast.CompoundAssign("+", ast.Ident("n"), ast.Int(1)),
			ast.Return(ast.Ident("n"))),
	)
}

func encode(t *testing.T, res *Result) []byte {
	t.Helper()
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestPassIsDeterministic(t *testing.T) {
	tree := sample()
	first := encode(t, compile(t, tree))
	for workers := 1; workers <= 8; workers *= 2 {
		res, err := Compile(context.Background(), tree, Options{Workers: workers})
		if err != nil {
			t.Fatal(err)
		}
		if got := encode(t, res); !bytes.Equal(first, got) {
			t.Fatalf("workers=%d: results differ\n%s\n---\n%s", workers, first, got)
		}
	}
}

func TestResultListsAreSortedAndReferenced(t *testing.T) {
	res := compile(t, sample())
	for i := 1; i < len(res.Obligations); i++ {
		a, b := res.Obligations[i-1], res.Obligations[i]
		if byPosition(a.Span, a.ID, b.Span, b.ID) > 0 {
			t.Errorf("obligations out of order: %s before %s", a.ID, b.ID)
		}
	}
	for i := 1; i < len(res.Diagnostics); i++ {
		a, b := res.Diagnostics[i-1], res.Diagnostics[i]
		if byPosition(a.Span, a.ID, b.Span, b.ID) > 0 {
			t.Errorf("diagnostics out of order: %s before %s", a.ID, b.ID)
		}
	}
	referenced := 0
	for _, d := range res.Diagnostics {
		referenced += len(repairsFor(t, res, d.RepairRefs))
	}
	for _, o := range res.Obligations {
		referenced += len(repairsFor(t, res, o.RepairRefs))
		if !res.CanonicalAST.Has(o.Primary) {
			t.Errorf("obligation %s points outside the tree", o.ID)
		}
	}
	if referenced != len(res.Repairs) {
		t.Errorf("%d of %d repairs are referenced", referenced, len(res.Repairs))
	}
	if res.Stats.Repairs != len(res.Repairs) || res.Stats.Obligations != len(res.Obligations) {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.Stats.Timings != nil {
		t.Errorf("timings reported without EnableTimings")
	}
}

func TestEmptyListsAreNotNil(t *testing.T) {
	res := compile(t, build(ast.Fn("id", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("x", ast.TypeName("Int"))},
		Result: ast.TypeName("Int"),
	}, ast.Return(ast.Ident("x")))))
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(encode(t, res), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"repairs", "diagnostics", "obligations", "holes"} {
		if string(raw[key]) == "null" {
			t.Errorf("%s is null", key)
		}
	}
}

func TestSuccessIsFixedPoint(t *testing.T) {
	res := compile(t, build(divFn()))
	var wrap string
	for _, c := range res.Repairs {
		if c.Edits[0].Kind == patch.OpWrap {
			wrap = c.ID
		}
	}
	done := compile(t, applyIDs(t, res, wrap))
	if done.Status != StatusSuccess {
		t.Fatalf("status = %s", done.Status)
	}

	same, err := ApplyRepairs(done.CanonicalAST, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !same.Equal(done.CanonicalAST) {
		t.Fatalf("empty repair set changed the tree")
	}
	again := compile(t, same)
	if again.Status != StatusSuccess {
		t.Errorf("status = %s", again.Status)
	}
	if !bytes.Equal(encode(t, done), encode(t, again)) {
		t.Errorf("re-running a successful pass changed the result")
	}
}

func TestExpectedDeltaHolds(t *testing.T) {
	res := compile(t, sample())
	for _, c := range res.Repairs {
		t.Run(c.Title, func(t *testing.T) {
			next := compile(t, applyIDs(t, res, c.ID))
			for _, id := range c.ExpectedDelta.DiagnosticsResolved {
				for _, d := range next.Diagnostics {
					if d.ID == id {
						t.Errorf("diagnostic %s survived", id)
					}
				}
			}
			for _, id := range c.ExpectedDelta.ObligationsDischarged {
				if o := obligationByID(next, id); o != nil && !o.Discharged() {
					t.Errorf("obligation %s still %s", id, o.SolverResult)
				}
			}
			for _, id := range c.ExpectedDelta.HolesFilled {
				for _, h := range next.Holes {
					if h.ID == id {
						t.Errorf("hole %s survived", id)
					}
				}
			}
		})
	}
}

func TestConverge(t *testing.T) {
	res, steps, err := Converge(context.Background(), sample(), Options{}, ConvergeOptions{
		Select: fix.SelectOptions{Mode: fix.SelectSafe, MaxSafety: fix.SafetyBehaviorChanging},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s after %+v\n%s", res.Status, steps, ast.Render(res.CanonicalAST, res.CanonicalAST.Root()))
	}
	if len(steps) < 2 || len(steps[0].Applied) == 0 {
		t.Errorf("steps = %+v", steps)
	}
	if last := steps[len(steps)-1]; last.Status != StatusSuccess || len(last.Applied) != 0 {
		t.Errorf("last step = %+v", last)
	}
}

func TestCancelledContextFailsBeforePass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compile(ctx, sample(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestSolverTimeoutDegradesToUnknown(t *testing.T) {
	res, err := Compile(context.Background(), build(divFn()), Options{Decider: slowDecider{}, SolverTimeout: 1})
	if err != nil {
		t.Fatal(err)
	}
	o := obligationOf(t, res, sema.KindRefinement)
	if o.SolverResult != solver.ResultUnknown || o.UnknownReason.Category != solver.CatTimeout {
		t.Fatalf("obligation = %+v", o)
	}
}

// slowDecider answers only when its deadline passes.
type slowDecider struct{}

func (slowDecider) Decide(ctx context.Context, goal *pred.Term, facts []*pred.Term) solver.Verdict {
	<-ctx.Done()
	return solver.Verdict{Result: solver.ResultUnknown, Reason: &solver.UnknownReason{Category: solver.CatTimeout}}
}

type panicDecider struct{}

func (panicDecider) Decide(context.Context, *pred.Term, []*pred.Term) solver.Verdict {
	panic("broken decider")
}

func TestWorkerPanicIsStructuralError(t *testing.T) {
	_, err := Compile(context.Background(), build(divFn()), Options{Decider: panicDecider{}})
	if !errors.Is(err, ast.ErrStructure) {
		t.Fatalf("err = %v", err)
	}
}

func TestTimingsAndTrace(t *testing.T) {
	ring := trace.NewRingTracer(256, trace.LevelDetail)
	res, err := Compile(context.Background(), build(divFn()), Options{EnableTimings: true, Tracer: ring})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Timings == nil {
		t.Fatal("no timings")
	}
	var names []string
	for _, p := range res.Stats.Timings.Phases {
		names = append(names, p.Name)
	}
	want := []string{"canonicalize", "check", "solve", "synthesize", "analyze", "report"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("phases (-want +got):\n%s", diff)
	}
	var sawObligation bool
	for _, ev := range ring.Snapshot() {
		if ev.Scope == trace.ScopeItem && ev.Kind == trace.KindSpanEnd && ev.Detail == "unknown" {
			sawObligation = true
		}
	}
	if !sawObligation {
		t.Errorf("no obligation span in trace")
	}
}
