package ast

import (
	"fmt"
	"slices"

	"refine/internal/source"
)

// Node is one entry of the tree arena. Children are owned by their parent and
// referenced by ID; their role is positional and fixed per Kind.
type Node struct {
	ID       NodeID      `json:"id" msgpack:"id"`
	Kind     Kind        `json:"kind" msgpack:"k"`
	Span     source.Span `json:"span" msgpack:"sp"`
	Name     string      `json:"name,omitempty" msgpack:"n,omitempty"`
	Op       string      `json:"op,omitempty" msgpack:"o,omitempty"`
	Value    string      `json:"value,omitempty" msgpack:"v,omitempty"`
	Mutable  bool        `json:"mutable,omitempty" msgpack:"m,omitempty"`
	Effects  []string    `json:"effects,omitempty" msgpack:"fx,omitempty"`
	Children []NodeID    `json:"children,omitempty" msgpack:"c,omitempty"`
}

func copyNode(n Node) Node {
	n.Effects = slices.Clone(n.Effects)
	n.Children = slices.Clone(n.Children)
	return n
}

func (n *Node) equal(o *Node) bool {
	return n.ID == o.ID && n.Kind == o.Kind && n.Span == o.Span && n.Name == o.Name &&
		n.Op == o.Op && n.Value == o.Value && n.Mutable == o.Mutable &&
		slices.Equal(n.Effects, o.Effects) && slices.Equal(n.Children, o.Children)
}

// Tree is an index-based arena of nodes. A Tree handed out by Build, Decode or
// the patch applier is treated as immutable; edits happen on a Clone.
type Tree struct {
	seed  uint64
	root  NodeID
	nodes *Arena[Node]
	index map[NodeID]uint32
}

func newTree(seed uint64, capHint uint) *Tree {
	return &Tree{
		seed:  seed,
		nodes: NewArena[Node](capHint),
		index: make(map[NodeID]uint32, capHint),
	}
}

// Seed returns the session seed IDs were derived from.
func (t *Tree) Seed() uint64 { return t.seed }

// Root returns the module node ID.
func (t *Tree) Root() NodeID { return t.root }

// Len returns the number of live nodes.
func (t *Tree) Len() int { return len(t.index) }

// Has reports whether id names a live node.
func (t *Tree) Has(id NodeID) bool {
	_, ok := t.index[id]
	return ok
}

// Node returns the node with the given ID or nil. READONLY.
func (t *Tree) Node(id NodeID) *Node {
	slot, ok := t.index[id]
	if !ok {
		return nil
	}
	return t.nodes.Get(slot)
}

// Kind returns the kind of id, or KindInvalid when absent.
func (t *Tree) Kind(id NodeID) Kind {
	if n := t.Node(id); n != nil {
		return n.Kind
	}
	return KindInvalid
}

// Children returns the child IDs of id. READONLY.
func (t *Tree) Children(id NodeID) []NodeID {
	if n := t.Node(id); n != nil {
		return n.Children
	}
	return nil
}

// Child returns the i-th child of id or NoNodeID.
func (t *Tree) Child(id NodeID, i int) NodeID {
	kids := t.Children(id)
	if i < 0 || i >= len(kids) {
		return NoNodeID
	}
	return kids[i]
}

// Span returns the source span of id.
func (t *Tree) Span(id NodeID) source.Span {
	if n := t.Node(id); n != nil {
		return n.Span
	}
	return source.Span{}
}

// Walk visits the subtree rooted at id in pre-order. Returning false from fn
// skips the children of the current node.
func (t *Tree) Walk(id NodeID, fn func(id NodeID, depth int) bool) {
	t.walk(id, 0, fn, make(map[NodeID]bool))
}

func (t *Tree) walk(id NodeID, depth int, fn func(NodeID, int) bool, seen map[NodeID]bool) {
	n := t.Node(id)
	if n == nil || seen[id] {
		return
	}
	seen[id] = true
	if !fn(id, depth) {
		return
	}
	for _, kid := range n.Children {
		t.walk(kid, depth+1, fn, seen)
	}
}

// PreOrder lists every node reachable from the root in pre-order.
func (t *Tree) PreOrder() []NodeID {
	return t.Subtree(t.root)
}

// Subtree lists id and its descendants in pre-order.
func (t *Tree) Subtree(id NodeID) []NodeID {
	out := make([]NodeID, 0, 16)
	t.Walk(id, func(n NodeID, _ int) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Parents maps every reachable non-root node to its parent.
func (t *Tree) Parents() map[NodeID]NodeID {
	parents := make(map[NodeID]NodeID, len(t.index))
	t.Walk(t.root, func(id NodeID, _ int) bool {
		for _, kid := range t.Children(id) {
			parents[kid] = id
		}
		return true
	})
	return parents
}

// Clone returns an independent copy that can be edited.
func (t *Tree) Clone() *Tree {
	out := &Tree{
		seed:  t.seed,
		root:  t.root,
		nodes: t.nodes.Clone(copyNode),
		index: make(map[NodeID]uint32, len(t.index)),
	}
	for id, slot := range t.index {
		out.index[id] = slot
	}
	return out
}

// Equal reports whether both trees have the same seed, root and reachable
// nodes (IDs included).
func (t *Tree) Equal(o *Tree) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.seed != o.seed || t.root != o.root {
		return false
	}
	a, b := t.PreOrder(), o.PreOrder()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !t.Node(a[i]).equal(o.Node(b[i])) {
			return false
		}
	}
	return true
}

// FreshID returns an unused ID derived from parent and role. Collisions with
// live nodes are resolved by probing successive indices, which keeps the
// result a deterministic function of the tree state.
func (t *Tree) FreshID(parent NodeID, role string, index int) NodeID {
	id := DeriveID(t.seed, parent, role, index)
	for probe := 1; t.Has(id); probe++ {
		id = DeriveID(t.seed, parent, fmt.Sprintf("%s#%d", role, probe), index)
	}
	return id
}

// Add stores n under n.ID. It fails if the ID is invalid or already live.
func (t *Tree) Add(n Node) error {
	if !n.ID.IsValid() {
		return fmt.Errorf("%w: node without id", ErrStructure)
	}
	if t.Has(n.ID) {
		return fmt.Errorf("%w: duplicate node id %s", ErrStructure, n.ID)
	}
	t.index[n.ID] = t.nodes.Allocate(copyNode(n))
	return nil
}

// Replace overwrites the stored node with the same ID.
func (t *Tree) Replace(n Node) error {
	slot, ok := t.index[n.ID]
	if !ok {
		return fmt.Errorf("%w: replace of unknown node %s", ErrStructure, n.ID)
	}
	*t.nodes.Get(slot) = copyNode(n)
	return nil
}

// SetChildren replaces the child list of id.
func (t *Tree) SetChildren(id NodeID, kids []NodeID) error {
	n := t.Node(id)
	if n == nil {
		return fmt.Errorf("%w: set children of unknown node %s", ErrStructure, id)
	}
	n.Children = slices.Clone(kids)
	return nil
}

// SetRoot changes the root node.
func (t *Tree) SetRoot(id NodeID) { t.root = id }

// Compact drops nodes that are no longer reachable from the root and stores
// the rest in pre-order, so equal trees also have equal encodings.
func (t *Tree) Compact() {
	order := t.PreOrder()
	nodes := NewArena[Node](uint(len(order)))
	index := make(map[NodeID]uint32, len(order))
	for _, id := range order {
		index[id] = nodes.Allocate(copyNode(*t.Node(id)))
	}
	t.nodes = nodes
	t.index = index
}
