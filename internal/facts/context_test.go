package facts

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"refine/internal/pred"
	"refine/internal/types"
)

func factKeys(fs []Fact) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Prop.String()
	}
	return out
}

func bindInt(c *Context, name, key string, mutable bool) *Binding {
	return c.Bind(Binding{Name: name, Key: key, Type: types.Int, Mutable: mutable, Intro: IntroLet})
}

func TestScopedFactsDoNotLeak(t *testing.T) {
	c := New()
	x := bindInt(c, "x", "x1", false)
	c.Assume(pred.Bin(pred.OpGt, x.Term(), pred.Int(0)), ProvParamRefine)

	c.EnterScope()
	c.Assume(pred.Bin(pred.OpLt, x.Term(), pred.Int(10)), ProvBranch)
	if got := factKeys(c.Snapshot().Facts); len(got) != 2 {
		t.Fatalf("inside branch: %v", got)
	}
	c.ExitScope()

	want := []string{"x > 0"}
	if diff := cmp.Diff(want, factKeys(c.Snapshot().Facts)); diff != "" {
		t.Fatalf("branch fact leaked (-want +got):\n%s", diff)
	}
}

func TestShadowingKeepsOuterBinding(t *testing.T) {
	c := New()
	outer := bindInt(c, "x", "outer", false)
	c.EnterScope()
	inner := bindInt(c, "x", "inner", false)
	if b, _ := c.Lookup("x"); b != inner {
		t.Fatalf("lookup should find the inner binding")
	}
	if n := len(c.Visible()); n != 1 {
		t.Fatalf("shadowed binding must not be visible by name, got %d", n)
	}
	c.ExitScope()
	if b, _ := c.Lookup("x"); b != outer {
		t.Fatalf("outer binding lost after exit")
	}
}

func TestJoinKeepsOnlyCommonFacts(t *testing.T) {
	c := New()
	c.EnterScope()
	x := bindInt(c, "x", "x1", true)
	cond := pred.Bin(pred.OpGt, x.Term(), pred.Int(3))
	shared := pred.Bin(pred.OpGe, x.Term(), pred.Int(0))

	c.EnterScope()
	c.Assume(cond, ProvBranch)
	c.Assume(shared, ProvBranch)
	then := c.ExitScope()

	c.EnterScope()
	c.Assume(pred.Not(cond), ProvBranch)
	c.Assume(shared, ProvBranch)
	els := c.ExitScope()

	c.Join(then, els)
	want := []string{"x >= 0"}
	if diff := cmp.Diff(want, factKeys(c.Snapshot().Facts)); diff != "" {
		t.Fatalf("join (-want +got):\n%s", diff)
	}
}

func TestJoinSkipsDivergingRegions(t *testing.T) {
	c := New()
	c.EnterScope()
	d := bindInt(c, "d", "d1", false)
	nz := pred.Bin(pred.OpNe, d.Term(), pred.Int(0))

	c.EnterScope()
	c.Assume(pred.Not(nz), ProvBranch)
	early := c.ExitScope()
	early.Diverges = true

	c.EnterScope()
	c.Assume(nz, ProvBranch)
	rest := c.ExitScope()

	c.Join(early, rest)
	want := []string{"d != 0"}
	if diff := cmp.Diff(want, factKeys(c.Snapshot().Facts)); diff != "" {
		t.Fatalf("join (-want +got):\n%s", diff)
	}
}

func TestHavocInsideBranchKillsOuterFacts(t *testing.T) {
	c := New()
	c.EnterScope()
	x := bindInt(c, "x", "x1", true)
	c.Assume(pred.Bin(pred.OpEq, x.Term(), pred.Int(1)), ProvAssignment)

	c.EnterScope()
	c.Havoc(x.Key)
	if n := len(c.Snapshot().Facts); n != 0 {
		t.Fatalf("havoc must mask outer facts, %d left", n)
	}
	c.Assume(pred.Bin(pred.OpEq, x.Term(), pred.Int(2)), ProvAssignment)
	assigned := c.ExitScope()
	if diff := cmp.Diff([]string{"x1"}, assigned.Killed); diff != "" {
		t.Fatalf("killed (-want +got):\n%s", diff)
	}

	c.EnterScope()
	untouched := c.ExitScope()

	c.Join(assigned, untouched)
	if got := factKeys(c.Snapshot().Facts); len(got) != 0 {
		t.Fatalf("facts about x must not survive a one-sided assignment: %v", got)
	}
}

func TestJoinOfDivergingRegionsIsUnreachable(t *testing.T) {
	c := New()
	c.EnterScope()
	r := c.ExitScope()
	r.Diverges = true
	c.Join(r)
	facts := c.Snapshot().Facts
	if len(facts) != 1 || facts[0].Prop.Op != pred.OpBool || facts[0].Prop.Bool {
		t.Fatalf("expected false after all paths diverge, got %v", factKeys(facts))
	}
}
