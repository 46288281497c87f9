package pred

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRendering(t *testing.T) {
	x := Var("x", "p1", SortInt)
	d := Var("d", "p2", SortInt)
	tests := []struct {
		name  string
		term  *Term
		plain string
		keyed string
	}{
		{"comparison", Bin(OpNe, d, Int(0)), "d != 0", "p2 != 0"},
		{"nested", Bin(OpLe, Bin(OpAdd, x, Int(1)), Int(5)), "(x + 1) <= 5", "(p1 + 1) <= 5"},
		{"junction", And(Bin(OpGt, x, Int(0)), Not(Bin(OpEq, d, x))), "(x > 0) && !(d == x)", "(p1 > 0) && !(p2 == p1)"},
		{"app", Bin(OpLt, x, Len(Var("xs", "p3", SortOther))), "x < len(xs)", "p1 < len(p3)"},
		{"field", Bin(OpGt, Field(Var("p", "p4", SortOther), "x", SortInt), Int(0)), "p.x > 0", "p4.x > 0"},
		{"app operand", And(App("contains", SortBool, Var("xs", "p3", SortOther), x), Bin(OpGt, x, Int(0))), "contains(xs, x) && (x > 0)", "contains(p3, p1) && (p1 > 0)"},
		{"quant", Quant(OpForall, "i", "q", Bin(OpGe, Var("i", "q", SortInt), Int(0))), "forall i. i >= 0", "forall q. q >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.term.String(); got != tt.plain {
				t.Errorf("String() = %q, want %q", got, tt.plain)
			}
			if got := tt.term.Canonical(); got != tt.keyed {
				t.Errorf("Canonical() = %q, want %q", got, tt.keyed)
			}
		})
	}
}

func TestJunctionFolding(t *testing.T) {
	a := Var("a", "", SortBool)
	if got := And(True, a, True); got != a {
		t.Fatalf("And(true, a, true) = %v", got)
	}
	if got := Or(a, True); got.Op != OpBool || !got.Bool {
		t.Fatalf("Or(a, true) = %v", got)
	}
	if got := And(); got.Op != OpBool || !got.Bool {
		t.Fatalf("empty And = %v", got)
	}
	nested := And(a, And(a, a))
	if len(nested.Args) != 3 {
		t.Fatalf("nested conjunction not flattened: %v", nested)
	}
	if Not(Not(a)) != a {
		t.Fatalf("double negation not folded")
	}
}

func TestSubstRespectsBinders(t *testing.T) {
	i := Var("i", "i", SortInt)
	n := Var("n", "n", SortInt)
	body := Bin(OpLt, i, n)
	q := Quant(OpForall, "i", "i", body)
	out := q.Subst(map[string]*Term{"i": Int(0), "n": Int(9)})
	if got := out.String(); got != "forall i. i < 9" {
		t.Fatalf("subst under binder: %q", got)
	}
	if q.String() != "forall i. i < n" {
		t.Fatalf("original term mutated: %s", q)
	}
}

func TestFreeVarsAndMentions(t *testing.T) {
	x := Var("x", "k2", SortInt)
	y := Var("y", "k1", SortInt)
	bound := Var("z", "k3", SortInt)
	term := And(Bin(OpLt, x, y), Quant(OpExists, "z", "k3", Bin(OpEq, bound, x)))
	want := []VarRef{
		{Name: "y", Key: "k1", Sort: SortInt},
		{Name: "x", Key: "k2", Sort: SortInt},
	}
	if diff := cmp.Diff(want, term.FreeVars()); diff != "" {
		t.Fatalf("free vars mismatch (-want +got):\n%s", diff)
	}
	if !term.Mentions("k1") || term.Mentions("k3") {
		t.Fatalf("Mentions disagrees with FreeVars")
	}
}
