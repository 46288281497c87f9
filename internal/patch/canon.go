package patch

import (
	"fmt"
	"slices"

	"refine/internal/ast"
)

// Canonicalize returns the normal form of t: no parentheses, no compound
// assignments, an else block on every if, and an explicit return at the end
// of every function body. Nodes the rewrite does not touch keep their IDs,
// and canonicalizing a canonical tree returns an equal tree.
func Canonicalize(t *ast.Tree) (*ast.Tree, error) {
	if err := ast.Validate(t); err != nil {
		return nil, err
	}
	out := t.Clone()
	canonicalize(out)
	out.Compact()
	if err := ast.Validate(out); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// IsCanonical reports whether canonicalizing t would change nothing.
func IsCanonical(t *ast.Tree) bool {
	c, err := Canonicalize(t)
	return err == nil && c.Equal(t)
}

func canonicalize(t *ast.Tree) {
	dropParens(t)
	for _, id := range t.PreOrder() {
		n := t.Node(id)
		switch n.Kind {
		case ast.KindAssign:
			if n.Op != "" {
				desugarCompound(t, id)
			}
		case ast.KindIf:
			if len(n.Children) == 2 {
				addElse(t, id)
			}
		case ast.KindFn:
			tailReturn(t, id)
		}
	}
}

// dropParens splices every parenthesized expression into its parent.
func dropParens(t *ast.Tree) {
	for _, id := range t.PreOrder() {
		kids := t.Children(id)
		changed := false
		out := slices.Clone(kids)
		for i, kid := range out {
			for t.Kind(kid) == ast.KindParen {
				kid = t.Child(kid, 0)
				changed = true
			}
			out[i] = kid
		}
		if changed {
			_ = t.SetChildren(id, out)
		}
	}
}

// desugarCompound rewrites `x op= e` to `x = x op e`.
func desugarCompound(t *ast.Tree, id ast.NodeID) {
	n := *t.Node(id)
	target, value := n.Children[0], n.Children[1]
	sum, err := t.Graft(id, "canon:compound", ast.Bin(n.Op, ast.CloneOf(target), ast.RefTo(value)))
	if err != nil {
		return
	}
	n.Op = ""
	n.Children = []ast.NodeID{target, sum}
	_ = t.Replace(n)
}

func addElse(t *ast.Tree, id ast.NodeID) {
	els, err := t.Graft(id, "canon:else", ast.Block())
	if err != nil {
		return
	}
	_ = t.SetChildren(id, append(slices.Clone(t.Children(id)), els))
}

// tailReturn makes the end of a function body explicit. A trailing
// expression of a function with a result becomes its return value; a Unit
// function that can fall through gets a bare return.
func tailReturn(t *ast.Tree, fn ast.NodeID) {
	body := t.Child(fn, 4)
	result := t.Node(t.Child(fn, 1))
	unit := result.Kind == ast.KindTypeName && result.Name == "Unit"
	stmts := slices.Clone(t.Children(body))

	if len(stmts) > 0 {
		last := stmts[len(stmts)-1]
		switch t.Kind(last) {
		case ast.KindReturn:
			return
		case ast.KindExprStmt:
			if !unit {
				ret, err := t.Graft(last, "canon:return", ast.Return(ast.RefTo(t.Child(last, 0))))
				if err != nil {
					return
				}
				stmts[len(stmts)-1] = ret
				_ = t.SetChildren(body, stmts)
				return
			}
		}
	}
	if !unit {
		return
	}
	ret, err := t.Graft(body, "canon:return", ast.Return(nil))
	if err != nil {
		return
	}
	_ = t.SetChildren(body, append(stmts, ret))
}
