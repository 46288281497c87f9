package patch

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"refine/internal/ast"
)

// ErrNotApplicable is returned when an operation does not fit the tree it is
// applied to.
var ErrNotApplicable = errors.New("patch not applicable")

// OpKind is the closed set of tree edits.
type OpKind uint8

const (
	OpInvalid OpKind = iota
	OpReplaceNode
	OpInsertBefore
	OpInsertAfter
	OpWrap
	OpDeleteNode
	OpWidenEffect
	OpRenameSymbol
	OpRename
	OpRenameField
	OpAddField
	OpAddParam
	OpAddRefinement
)

var opNames = [...]string{
	OpInvalid:       "invalid",
	OpReplaceNode:   "replace_node",
	OpInsertBefore:  "insert_before",
	OpInsertAfter:   "insert_after",
	OpWrap:          "wrap",
	OpDeleteNode:    "delete_node",
	OpWidenEffect:   "widen_effect",
	OpRenameSymbol:  "rename_symbol",
	OpRename:        "rename",
	OpRenameField:   "rename_field",
	OpAddField:      "add_field",
	OpAddParam:      "add_param",
	OpAddRefinement: "add_refinement",
}

func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return "OpKind(" + strconv.Itoa(int(k)) + ")"
}

func (k OpKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OpKind) UnmarshalText(text []byte) error {
	for i, name := range opNames {
		if name == string(text) && i != int(OpInvalid) {
			*k = OpKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown patch op %q", text)
}

// Grafts reports whether the op materializes a fragment as a new subtree.
func (k OpKind) Grafts() bool {
	switch k {
	case OpReplaceNode, OpInsertBefore, OpInsertAfter, OpWrap, OpAddField, OpAddParam, OpAddRefinement:
		return true
	}
	return false
}

// Op is one edit addressed by node ID. Fragment carries new code; Name is the
// new name for renames and the declared name for additions.
//
//	replace_node    Target is replaced by Fragment
//	insert_before   Fragment is inserted before Target in its parent list
//	insert_after    Fragment is inserted after Target in its parent list
//	wrap            Fragment, which refers to Target, takes Target's place
//	delete_node     Target is removed from its parent list
//	widen_effect    Effects are added to the function Target
//	rename_symbol   the reference Target is renamed to Name
//	rename          the declaration Target and its references are renamed to Name
//	rename_field    the field access or initializer Target is renamed to Name
//	add_field       a field Name with value (or type) Fragment is added to Target
//	add_param       a parameter Name of type Fragment is added to the function Target
//	add_refinement  the parameter or let Target is refined by predicate Fragment over Name
type Op struct {
	Kind     OpKind        `json:"op" msgpack:"op"`
	Target   ast.NodeID    `json:"target" msgpack:"target"`
	Name     string        `json:"name,omitempty" msgpack:"name,omitempty"`
	Effects  []string      `json:"effects,omitempty" msgpack:"effects,omitempty"`
	Fragment *ast.Fragment `json:"fragment,omitempty" msgpack:"fragment,omitempty"`
}

func (op Op) String() string {
	if op.Name != "" {
		return fmt.Sprintf("%s %s %q", op.Kind, op.Target, op.Name)
	}
	return fmt.Sprintf("%s %s", op.Kind, op.Target)
}

// Fingerprint is a content hash of the op. Nodes an op creates derive their
// IDs from it, which is how a second application is recognized.
func (op Op) Fingerprint() uint64 {
	data, err := msgpack.Marshal(&op)
	if err != nil {
		// an Op always encodes; fall back to the printable form
		return xxhash.Sum64String(op.String())
	}
	return xxhash.Sum64(data)
}

// Salt is the role under which the op's new nodes are derived.
func (op Op) Salt() string {
	return fmt.Sprintf("patch:%s:%016x", op.Kind, op.Fingerprint())
}

// Created returns the ID the root of the op's new subtree receives in t, or
// NoNodeID for ops that create nothing.
func (op Op) Created(t *ast.Tree) ast.NodeID {
	if !op.Kind.Grafts() {
		return ast.NoNodeID
	}
	return t.GraftRootID(op.Target, op.Salt())
}

// Refs lists the existing nodes the op's fragment moves or copies.
func (op Op) Refs() []ast.NodeID {
	var out []ast.NodeID
	var walk func(f *ast.Fragment)
	walk = func(f *ast.Fragment) {
		if f == nil {
			return
		}
		if f.Ref.IsValid() {
			out = append(out, f.Ref)
		}
		if f.Clone.IsValid() {
			out = append(out, f.Clone)
		}
		for _, c := range f.Children {
			walk(c)
		}
	}
	walk(op.Fragment)
	return out
}

// Names lists the identifiers and callees the op's fragment mentions.
func (op Op) Names() []string {
	var out []string
	var walk func(f *ast.Fragment)
	walk = func(f *ast.Fragment) {
		if f == nil {
			return
		}
		switch f.Kind {
		case ast.KindIdent, ast.KindCall:
			out = append(out, f.Name)
		}
		for _, c := range f.Children {
			walk(c)
		}
	}
	walk(op.Fragment)
	return out
}
