package ast

import (
	"fmt"

	"refine/internal/source"
)

type builder struct {
	tree      *Tree
	pos       uint32
	anchor    *source.Span
	allowRefs bool
	moved     map[NodeID]bool
}

// Build materializes root into a fresh tree whose IDs derive from seed and
// each node's structural path. Nodes without an explicit span get a synthetic
// pre-order position so that source order equals traversal order.
func Build(seed uint64, root *Fragment) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root fragment", ErrStructure)
	}
	b := &builder{tree: newTree(seed, 64)}
	id, err := b.build(NoNodeID, "module", 0, root)
	if err != nil {
		return nil, err
	}
	b.tree.root = id
	if err := Validate(b.tree); err != nil {
		return nil, err
	}
	return b.tree, nil
}

// MustBuild is Build for fixtures known to be well formed.
func MustBuild(seed uint64, root *Fragment) *Tree {
	t, err := Build(seed, root)
	if err != nil {
		panic(err)
	}
	return t
}

// GraftRootID is the ID the root of a fragment grafted at anchor under salt
// receives when no collision occurs. Callers use it to detect grafts that
// already happened.
func (t *Tree) GraftRootID(anchor NodeID, salt string) NodeID {
	return DeriveID(t.seed, anchor, salt, 0)
}

// Graft materializes f into t and returns the ID of its root. New nodes derive
// their IDs from anchor and salt and inherit the anchor's span. Ref fragments
// must name live nodes; each may be referenced once. The caller is
// responsible for detaching moved nodes from their previous parent.
func (t *Tree) Graft(anchor NodeID, salt string, f *Fragment) (NodeID, error) {
	sp := t.Span(anchor)
	b := &builder{
		tree:      t,
		anchor:    &sp,
		allowRefs: true,
		moved:     make(map[NodeID]bool),
	}
	return b.build(anchor, salt, 0, f)
}

func (b *builder) build(parent NodeID, role string, index int, f *Fragment) (NodeID, error) {
	if f == nil {
		return NoNodeID, fmt.Errorf("%w: nil fragment under %s", ErrStructure, parent)
	}
	if f.Ref.IsValid() {
		if !b.allowRefs {
			return NoNodeID, fmt.Errorf("%w: reference %s outside of a patch", ErrStructure, f.Ref)
		}
		if !b.tree.Has(f.Ref) {
			return NoNodeID, fmt.Errorf("%w: reference to unknown node %s", ErrStructure, f.Ref)
		}
		if b.moved[f.Ref] {
			return NoNodeID, fmt.Errorf("%w: node %s referenced twice", ErrStructure, f.Ref)
		}
		b.moved[f.Ref] = true
		return f.Ref, nil
	}
	if f.Clone.IsValid() {
		if !b.tree.Has(f.Clone) {
			return NoNodeID, fmt.Errorf("%w: clone of unknown node %s", ErrStructure, f.Clone)
		}
		return b.clone(parent, role, index, f.Clone)
	}
	if !f.Kind.Valid() {
		return NoNodeID, fmt.Errorf("%w: fragment kind %s outside vocabulary", ErrStructure, f.Kind)
	}

	id := b.tree.FreshID(parent, role, index)
	n := Node{
		ID:      id,
		Kind:    f.Kind,
		Name:    f.Name,
		Op:      f.Op,
		Value:   f.Value,
		Mutable: f.Mutable,
		Effects: f.Effects,
	}
	switch {
	case f.Span != nil:
		n.Span = *f.Span
	case b.anchor != nil:
		n.Span = *b.anchor
	default:
		n.Span = source.Span{Start: b.pos}
		b.pos++
	}
	// claim the ID before descending so children cannot collide with it
	if err := b.tree.Add(n); err != nil {
		return NoNodeID, err
	}
	kids := make([]NodeID, 0, len(f.Children))
	for i, kid := range f.Children {
		kidID, err := b.build(id, f.Kind.String(), i, kid)
		if err != nil {
			return NoNodeID, err
		}
		kids = append(kids, kidID)
	}
	n.Children = kids
	if f.Span == nil && b.anchor == nil {
		n.Span.End = b.pos
	}
	if err := b.tree.Replace(n); err != nil {
		return NoNodeID, err
	}
	return id, nil
}

func (b *builder) clone(parent NodeID, role string, index int, src NodeID) (NodeID, error) {
	orig := b.tree.Node(src)
	n := copyNode(*orig)
	n.ID = b.tree.FreshID(parent, role, index)
	n.Children = nil
	if err := b.tree.Add(n); err != nil {
		return NoNodeID, err
	}
	kids := make([]NodeID, 0, len(orig.Children))
	for i, kid := range b.tree.Node(src).Children {
		kidID, err := b.clone(n.ID, n.Kind.String(), i, kid)
		if err != nil {
			return NoNodeID, err
		}
		kids = append(kids, kidID)
	}
	return n.ID, b.tree.SetChildren(n.ID, kids)
}
