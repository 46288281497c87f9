package patch

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"refine/internal/ast"
)

const seed = 7

// find returns the first node in pre-order with the given kind and name.
func find(t *testing.T, tree *ast.Tree, kind ast.Kind, name string) ast.NodeID {
	t.Helper()
	for _, id := range tree.PreOrder() {
		if n := tree.Node(id); n.Kind == kind && n.Name == name {
			return id
		}
	}
	t.Fatalf("no %s node named %q", kind, name)
	return ast.NoNodeID
}

func count(tree *ast.Tree, kind ast.Kind) int {
	n := 0
	for _, id := range tree.PreOrder() {
		if tree.Kind(id) == kind {
			n++
		}
	}
	return n
}

func divTree() *ast.Tree {
	return ast.MustBuild(seed, ast.Module(ast.Fn("div", ast.FnSig{
		Params: []*ast.Fragment{ast.Param("x", ast.TypeName("Int")), ast.Param("d", ast.TypeName("Int"))},
		Result: ast.TypeName("Int"),
	}, ast.Return(ast.Bin("/", ast.Ident("x"), ast.Ident("d"))))))
}

func TestCanonicalize(t *testing.T) {
	tree := ast.MustBuild(seed, ast.Module(
		ast.Fn("f", ast.FnSig{Params: []*ast.Fragment{ast.Param("c", ast.TypeName("Bool"))}},
			ast.LetMut("x", ast.TypeName("Int"), ast.Paren(ast.Paren(ast.Int(1)))),
			ast.CompoundAssign("+", ast.Ident("x"), ast.Int(2)),
			ast.If(ast.Ident("c"), []*ast.Fragment{ast.Assign(ast.Ident("x"), ast.Int(0))}, nil),
		),
		ast.Fn("g", ast.FnSig{Result: ast.TypeName("Int")},
			ast.ExprStmt(ast.Int(3)),
		),
	))

	out, err := Canonicalize(tree)
	if err != nil {
		t.Fatal(err)
	}
	if n := count(out, ast.KindParen); n != 0 {
		t.Errorf("%d parens left", n)
	}
	for _, id := range out.PreOrder() {
		n := out.Node(id)
		if n.Kind == ast.KindAssign && n.Op != "" {
			t.Errorf("compound assignment %s left", id)
		}
		if n.Kind == ast.KindIf && len(n.Children) != 3 {
			t.Errorf("if %s has no else", id)
		}
	}
	want := "fn f(c: Bool) -> Unit {\n" +
		"    let mut x: Int = 1\n" +
		"    x = x + 2\n" +
		"    if c {\n        x = 0\n    } else {\n    }\n" +
		"    return\n" +
		"}"
	f := find(t, out, ast.KindFn, "f")
	if diff := cmp.Diff(want, ast.Render(out, f)); diff != "" {
		t.Errorf("f (-want +got):\n%s", diff)
	}
	g := find(t, out, ast.KindFn, "g")
	body := out.Children(out.Child(g, 4))
	if len(body) != 1 || out.Kind(body[0]) != ast.KindReturn {
		t.Errorf("g body = %s", ast.Render(out, g))
	}

	again, err := Canonicalize(out)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(out) {
		t.Errorf("canonicalize is not idempotent:\n%s\n---\n%s", ast.Render(out, out.Root()), ast.Render(again, again.Root()))
	}
	if !IsCanonical(out) || IsCanonical(tree) {
		t.Errorf("IsCanonical disagrees with Canonicalize")
	}
}

func TestCanonicalizeKeepsUntouchedIDs(t *testing.T) {
	tree := divTree()
	out, err := Canonicalize(tree)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Equal(tree) {
		t.Fatalf("canonical tree changed")
	}
}

func TestWrapGuard(t *testing.T) {
	tree := divTree()
	d := find(t, tree, ast.KindIdent, "d")
	op := Op{
		Kind:     OpWrap,
		Target:   d,
		Fragment: ast.Cond(ast.Bin("!=", ast.Ident("d"), ast.Int(0)), ast.RefTo(d), ast.Fail("d != 0")),
	}

	out, err := Apply(tree, []Op{op})
	if err != nil {
		t.Fatal(err)
	}
	cond := op.Created(out)
	if out.Kind(cond) != ast.KindCond || out.Child(cond, 1) != d {
		t.Fatalf("wrap did not keep the wrapped node:\n%s", ast.Render(out, out.Root()))
	}
	for _, id := range tree.PreOrder() {
		if !out.Has(id) {
			t.Errorf("node %s lost", id)
		}
	}
	if tree.Kind(tree.Child(find(t, tree, ast.KindBinary, ""), 1)) != ast.KindIdent {
		t.Errorf("input tree was modified")
	}

	again, err := Apply(out, []Op{op})
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(out) {
		t.Fatalf("second application changed the tree")
	}
}

func TestApplyEmptyIsFixedPoint(t *testing.T) {
	tree := divTree()
	out, err := Apply(tree, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Equal(tree) {
		t.Fatalf("empty patch changed a canonical tree")
	}
}

func TestApplyOps(t *testing.T) {
	tree := ast.MustBuild(seed, ast.Module(
		ast.Record("Point", ast.FieldDecl("x", ast.TypeName("Int")), ast.FieldDecl("y", ast.TypeName("Int"))),
		ast.Fn("main", ast.FnSig{Params: []*ast.Fragment{ast.Param("n", ast.TypeName("Int"))}},
			ast.Let("p", nil, ast.RecordLit("Point", ast.FieldInit("x", ast.Int(1)))),
			ast.Let("k", ast.TypeName("Int"), ast.Ident("m")),
			ast.ExprStmt(ast.Call("print", ast.Str("a"), ast.Str("b"))),
			ast.Return(nil),
		),
	))
	fn := find(t, tree, ast.KindFn, "main")
	lit := find(t, tree, ast.KindRecordLit, "Point")
	n := find(t, tree, ast.KindParam, "n")
	m := find(t, tree, ast.KindIdent, "m")
	call := find(t, tree, ast.KindCall, "print")
	extra := tree.Child(call, 1)
	ret := tree.Child(tree.Child(fn, 4), 3)

	ops := []Op{
		{Kind: OpWidenEffect, Target: fn, Effects: []string{"IO"}},
		{Kind: OpAddField, Target: lit, Name: "y", Fragment: ast.Int(0)},
		{Kind: OpRenameSymbol, Target: m, Name: "n"},
		{Kind: OpDeleteNode, Target: extra},
		{Kind: OpAddRefinement, Target: n, Name: "n", Fragment: ast.Bin(">", ast.Ident("n"), ast.Int(0))},
		{Kind: OpInsertBefore, Target: ret, Fragment: ast.ExprStmt(ast.Call("print", ast.Str("done")))},
		{Kind: OpAddParam, Target: fn, Name: "verbose", Fragment: ast.TypeName("Bool")},
	}
	out, err := Apply(tree, ops)
	if err != nil {
		t.Fatal(err)
	}
	want := "fn main(n: {n: Int | n > 0}, verbose: Bool) -> Unit ! IO {\n" +
		"    let p = Point { x: 1, y: 0 }\n" +
		"    let k: Int = n\n" +
		"    print(\"a\")\n" +
		"    print(\"done\")\n" +
		"    return\n" +
		"}"
	if diff := cmp.Diff(want, ast.Render(out, find(t, out, ast.KindFn, "main"))); diff != "" {
		t.Errorf("main (-want +got):\n%s", diff)
	}

	again, err := Apply(out, ops)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(out) {
		t.Errorf("second application changed the tree:\n%s", ast.Render(again, again.Root()))
	}
}

func TestApplyRejects(t *testing.T) {
	tree := divTree()
	bin := find(t, tree, ast.KindBinary, "")
	x := find(t, tree, ast.KindIdent, "x")
	tests := []struct {
		name string
		op   Op
	}{
		{"unknown target", Op{Kind: OpRenameSymbol, Target: ast.NodeID(999), Name: "y"}},
		{"arity", Op{Kind: OpDeleteNode, Target: x}},
		{"wrong kind", Op{Kind: OpRenameField, Target: x, Name: "y"}},
		{"wrap without ref", Op{Kind: OpWrap, Target: bin, Fragment: ast.Int(1)}},
		{"root", Op{Kind: OpReplaceNode, Target: tree.Root(), Fragment: ast.Module()}},
		{"slot kind", Op{Kind: OpReplaceNode, Target: x, Fragment: ast.Return(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tree, []Op{tt.op})
			if !errors.Is(err, ErrNotApplicable) {
				t.Fatalf("err = %v, want ErrNotApplicable", err)
			}
		})
	}
}

func TestRenameDeclaration(t *testing.T) {
	tree := ast.MustBuild(seed, ast.Module(ast.Fn("f", ast.FnSig{
		Params:   []*ast.Fragment{ast.Param("a", ast.TypeName("Int"))},
		Result:   ast.TypeName("Int"),
		Requires: []*ast.Fragment{ast.Bin(">", ast.Ident("a"), ast.Int(0))},
	},
		ast.Let("b", nil, ast.Bin("+", ast.Ident("a"), ast.Int(1))),
		ast.Let("a", nil, ast.Ident("a")),
		ast.Return(ast.Ident("a")),
	)))
	param := find(t, tree, ast.KindParam, "a")

	out, err := Apply(tree, []Op{{Kind: OpRename, Target: param, Name: "z"}})
	if err != nil {
		t.Fatal(err)
	}
	want := "fn f(z: Int) -> Int\n" +
		"    requires z > 0 {\n" +
		"    let b = z + 1\n" +
		"    let a = z\n" +
		"    return a\n" +
		"}"
	if diff := cmp.Diff(want, ast.Render(out, out.Child(out.Root(), 0))); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestOpJSON(t *testing.T) {
	op := Op{Kind: OpWidenEffect, Target: ast.NodeID(42), Effects: []string{"IO"}}
	data, err := json.Marshal(op)
	if err != nil {
		t.Fatal(err)
	}
	var back Op
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(op, back); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if op.Fingerprint() != back.Fingerprint() {
		t.Fatalf("fingerprint changed across encoding")
	}
	other := op
	other.Effects = slices.Clone(op.Effects)
	other.Effects[0] = "Random"
	if other.Salt() == op.Salt() {
		t.Fatalf("different ops share a salt")
	}
}
