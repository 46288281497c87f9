package patch

import (
	"cmp"
	"fmt"
	"slices"

	"refine/internal/ast"
	"refine/internal/types"
)

// Apply applies ops to a copy of t in target order and canonicalizes the
// result; t is left untouched. Ops whose new nodes are already present are
// skipped, so applying the same batch to its own output changes nothing.
func Apply(t *ast.Tree, ops []Op) (*ast.Tree, error) {
	out := t.Clone()
	sorted := slices.Clone(ops)
	slices.SortStableFunc(sorted, func(a, b Op) int { return cmp.Compare(a.Target, b.Target) })
	for _, op := range sorted {
		if err := applyOp(out, op); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotApplicable, op, err)
		}
	}
	canonicalize(out)
	out.Compact()
	if err := ast.Validate(out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotApplicable, err)
	}
	return out, nil
}

func applyOp(t *ast.Tree, op Op) error {
	if op.Kind.Grafts() {
		if op.Fragment == nil {
			return fmt.Errorf("%s without a fragment", op.Kind)
		}
		if t.Has(op.Created(t)) {
			return nil
		}
	}
	n := t.Node(op.Target)
	if n == nil {
		if op.Kind == OpDeleteNode {
			return nil
		}
		return fmt.Errorf("unknown target %s", op.Target)
	}

	switch op.Kind {
	case OpReplaceNode:
		return replace(t, op)
	case OpWrap:
		if !slices.Contains(op.Refs(), op.Target) {
			return fmt.Errorf("wrap fragment does not contain %s", op.Target)
		}
		return replace(t, op)
	case OpInsertBefore, OpInsertAfter:
		return insert(t, op)
	case OpDeleteNode:
		return remove(t, op.Target)
	case OpWidenEffect:
		return widenEffect(t, *n, op.Effects)
	case OpRenameSymbol:
		switch n.Kind {
		case ast.KindIdent, ast.KindCall, ast.KindTypeName, ast.KindPatVariant, ast.KindRecordLit:
			return setName(t, op.Target, op.Name)
		}
	case OpRenameField:
		switch n.Kind {
		case ast.KindField, ast.KindFieldInit:
			return setName(t, op.Target, op.Name)
		}
	case OpRename:
		return rename(t, op.Target, op.Name)
	case OpAddField:
		return addField(t, op)
	case OpAddParam:
		return addParam(t, op)
	case OpAddRefinement:
		return addRefinement(t, op)
	default:
		return fmt.Errorf("unknown op kind %d", op.Kind)
	}
	return fmt.Errorf("%s cannot target a %s node", op.Kind, n.Kind)
}

// slot finds the parent of id and its position in the parent's child list.
func slot(t *ast.Tree, id ast.NodeID) (ast.NodeID, []ast.NodeID, int, error) {
	parent, ok := t.Parents()[id]
	if !ok {
		return ast.NoNodeID, nil, 0, fmt.Errorf("%s has no parent", id)
	}
	kids := slices.Clone(t.Children(parent))
	return parent, kids, slices.Index(kids, id), nil
}

func replace(t *ast.Tree, op Op) error {
	parent, kids, i, err := slot(t, op.Target)
	if err != nil {
		return err
	}
	id, err := t.Graft(op.Target, op.Salt(), op.Fragment)
	if err != nil {
		return err
	}
	kids[i] = id
	return t.SetChildren(parent, kids)
}

func insert(t *ast.Tree, op Op) error {
	parent, kids, i, err := slot(t, op.Target)
	if err != nil {
		return err
	}
	id, err := t.Graft(op.Target, op.Salt(), op.Fragment)
	if err != nil {
		return err
	}
	if op.Kind == OpInsertAfter {
		i++
	}
	return t.SetChildren(parent, slices.Insert(kids, i, id))
}

func remove(t *ast.Tree, id ast.NodeID) error {
	parent, kids, i, err := slot(t, id)
	if err != nil {
		return err
	}
	return t.SetChildren(parent, slices.Delete(kids, i, i+1))
}

func setName(t *ast.Tree, id ast.NodeID, name string) error {
	if name == "" {
		return fmt.Errorf("empty name for %s", id)
	}
	n := *t.Node(id)
	n.Name = name
	return t.Replace(n)
}

func widenEffect(t *ast.Tree, n ast.Node, add []string) error {
	if n.Kind != ast.KindFn {
		return fmt.Errorf("widen_effect needs a function, got %s", n.Kind)
	}
	have, err := types.ParseEffects(n.Effects)
	if err != nil {
		return err
	}
	extra, err := types.ParseEffects(add)
	if err != nil {
		return err
	}
	n.Effects = have.Union(extra).Strings()
	return t.Replace(n)
}

func addField(t *ast.Tree, op Op) error {
	n := t.Node(op.Target)
	var f *ast.Fragment
	switch n.Kind {
	case ast.KindRecordLit:
		f = ast.FieldInit(op.Name, op.Fragment)
	case ast.KindRecord:
		f = ast.FieldDecl(op.Name, op.Fragment)
	default:
		return fmt.Errorf("add_field cannot target a %s node", n.Kind)
	}
	kids := slices.Clone(n.Children)
	for _, kid := range kids {
		if t.Node(kid).Name == op.Name {
			return fmt.Errorf("field %q already present", op.Name)
		}
	}
	id, err := t.Graft(op.Target, op.Salt(), f)
	if err != nil {
		return err
	}
	return t.SetChildren(op.Target, append(kids, id))
}

func addParam(t *ast.Tree, op Op) error {
	n := t.Node(op.Target)
	if n.Kind != ast.KindFn {
		return fmt.Errorf("add_param needs a function, got %s", n.Kind)
	}
	params := n.Children[0]
	for _, p := range t.Children(params) {
		if t.Node(p).Name == op.Name {
			return fmt.Errorf("parameter %q already present", op.Name)
		}
	}
	id, err := t.Graft(op.Target, op.Salt(), ast.Param(op.Name, op.Fragment))
	if err != nil {
		return err
	}
	return t.SetChildren(params, append(slices.Clone(t.Children(params)), id))
}

// addRefinement refines the declared type of a parameter or let. An already
// refined type becomes the base of the new refinement, so both predicates
// hold.
func addRefinement(t *ast.Tree, op Op) error {
	n := t.Node(op.Target)
	if n.Kind != ast.KindParam && n.Kind != ast.KindLet {
		return fmt.Errorf("add_refinement needs a parameter or let, got %s", n.Kind)
	}
	if op.Name == "" {
		return fmt.Errorf("add_refinement without a variable name")
	}
	kids := slices.Clone(n.Children)
	if t.Kind(kids[0]) == ast.KindTypeAuto {
		return fmt.Errorf("cannot refine the inferred type of %s", op.Target)
	}
	id, err := t.Graft(op.Target, op.Salt(), ast.Refined(ast.RefTo(kids[0]), op.Name, op.Fragment))
	if err != nil {
		return err
	}
	kids[0] = id
	return t.SetChildren(op.Target, kids)
}
