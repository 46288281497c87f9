package ast

import (
	"encoding/json"
	"errors"
	"testing"
)

func sampleModule() *Fragment {
	return Module(
		Fn("div", FnSig{
			Params:   []*Fragment{Param("n", TypeName("Int")), Param("d", TypeName("Int"))},
			Result:   TypeName("Int"),
			Requires: []*Fragment{Bin("!=", Ident("d"), Int(0))},
		},
			Return(Bin("/", Ident("n"), Ident("d"))),
		),
	)
}

func TestBuildIsDeterministic(t *testing.T) {
	a := MustBuild(7, sampleModule())
	b := MustBuild(7, sampleModule())
	if !a.Equal(b) {
		t.Fatalf("same input and seed must give identical trees")
	}
	c := MustBuild(8, sampleModule())
	if a.Root() == c.Root() {
		t.Fatalf("different seeds should yield different root ids")
	}
}

func TestIDsSurviveUnrelatedEdits(t *testing.T) {
	base := MustBuild(1, sampleModule())
	fn := base.Child(base.Root(), 0)
	body := base.Child(fn, 4)
	ret := base.Child(body, 0)

	edited := base.Clone()
	stmt, err := edited.Graft(body, "test", ExprStmt(Call("print", Str("hi"))))
	if err != nil {
		t.Fatalf("graft: %v", err)
	}
	if err := edited.SetChildren(body, []NodeID{stmt, ret}); err != nil {
		t.Fatalf("set children: %v", err)
	}
	if err := Validate(edited); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, id := range base.PreOrder() {
		if !edited.Has(id) {
			t.Fatalf("node %s lost by an unrelated insertion", id)
		}
	}
	if base.Len() == edited.Len() {
		t.Fatalf("original tree must not change when the clone is edited")
	}
}

func TestValidateRejectsMalformedTrees(t *testing.T) {
	tree := MustBuild(1, sampleModule())
	fn := tree.Child(tree.Root(), 0)

	t.Run("dangling child", func(t *testing.T) {
		broken := tree.Clone()
		kids := append([]NodeID(nil), broken.Children(broken.Root())...)
		kids = append(kids, NodeID(12345))
		if err := broken.SetChildren(broken.Root(), kids); err != nil {
			t.Fatal(err)
		}
		if err := Validate(broken); !errors.Is(err, ErrStructure) {
			t.Fatalf("expected ErrStructure, got %v", err)
		}
	})

	t.Run("wrong slot", func(t *testing.T) {
		broken := tree.Clone()
		kids := append([]NodeID(nil), broken.Children(fn)...)
		kids[0], kids[4] = kids[4], kids[0]
		if err := broken.SetChildren(fn, kids); err != nil {
			t.Fatal(err)
		}
		if err := Validate(broken); !errors.Is(err, ErrStructure) {
			t.Fatalf("expected ErrStructure, got %v", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := Build(1, Module(&Fragment{Kind: Kind(200)})); !errors.Is(err, ErrStructure) {
			t.Fatalf("expected ErrStructure, got %v", err)
		}
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tree := MustBuild(3, sampleModule())
	data, err := Encode(tree)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !tree.Equal(back) {
		t.Fatalf("decoded tree differs from original")
	}
	f1, _ := Fingerprint(tree)
	f2, _ := Fingerprint(back)
	if f1 != f2 {
		t.Fatalf("fingerprints differ: %x vs %x", f1, f2)
	}

	js, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	var fromJSON Tree
	if err := json.Unmarshal(js, &fromJSON); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	if !tree.Equal(&fromJSON) {
		t.Fatalf("json round trip differs from original")
	}
}

func TestGraftDetectsReapplication(t *testing.T) {
	tree := MustBuild(1, sampleModule())
	anchor := tree.Child(tree.Root(), 0)
	want := tree.GraftRootID(anchor, "wrap#1")
	got, err := tree.Graft(anchor, "wrap#1", Bool(true))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("graft root %s, want %s", got, want)
	}
	if again := tree.FreshID(anchor, "wrap#1", 0); again == got {
		t.Fatalf("fresh id must avoid live nodes")
	}
}

func TestRender(t *testing.T) {
	tree := MustBuild(1, Module(
		Fn("f", FnSig{Params: []*Fragment{Param("x", Refined(TypeName("Int"), "v", Bin(">", Ident("v"), Int(0))))}},
			Let("y", nil, Bin("*", Bin("+", Ident("x"), Int(1)), Int(2))),
		),
	))
	fn := tree.Child(tree.Root(), 0)
	param := tree.Child(tree.Child(fn, 0), 0)
	if got := Render(tree, param); got != "x: {v: Int | v > 0}" {
		t.Fatalf("param render: %q", got)
	}
	let := tree.Child(tree.Child(fn, 4), 0)
	if got := Render(tree, let); got != "let y = (x + 1) * 2" {
		t.Fatalf("let render: %q", got)
	}
}
