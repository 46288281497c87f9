package patch

import (
	"fmt"

	"refine/internal/ast"
)

// rename renames the declaration at id together with the references that
// resolve to it. Locals are renamed in their scope up to the first
// redeclaration of the old name; module-level names everywhere.
func rename(t *ast.Tree, id ast.NodeID, name string) error {
	n := t.Node(id)
	old := n.Name
	if old == name {
		return nil
	}
	if err := setName(t, id, name); err != nil {
		return err
	}
	parents := t.Parents()
	switch n.Kind {
	case ast.KindFn:
		renameWhere(t, t.Root(), name, func(m *ast.Node) bool {
			return m.Kind == ast.KindCall && m.Name == old
		})
	case ast.KindRecord, ast.KindEnum:
		renameWhere(t, t.Root(), name, func(m *ast.Node) bool {
			return (m.Kind == ast.KindTypeName || m.Kind == ast.KindRecordLit) && m.Name == old
		})
	case ast.KindVariant:
		renameWhere(t, t.Root(), name, func(m *ast.Node) bool {
			return m.Kind == ast.KindPatVariant && m.Name == old
		})
		renameFree(t, t.Root(), old, name)
	case ast.KindFieldDecl:
		record := t.Node(parents[id]).Name
		renameWhere(t, t.Root(), name, func(m *ast.Node) bool {
			if m.Name != old {
				return false
			}
			switch m.Kind {
			case ast.KindField:
				return true
			case ast.KindFieldInit:
				return t.Node(parents[m.ID]).Name == record
			}
			return false
		})
	case ast.KindParam:
		params := parents[id]
		fn := parents[params]
		renameAfter(t, params, id, old, name)
		for _, kid := range t.Children(fn)[1:] {
			renameFree(t, kid, old, name)
		}
	case ast.KindLet:
		renameAfter(t, parents[id], id, old, name)
	case ast.KindFor:
		renameFree(t, n.Children[2], old, name)
	case ast.KindPatBind:
		arm := parents[id]
		renameFree(t, t.Child(arm, 1), old, name)
	default:
		return fmt.Errorf("rename cannot target a %s node", n.Kind)
	}
	return nil
}

// renameAfter renames old in the siblings following id in list, stopping
// after a sibling that redeclares it.
func renameAfter(t *ast.Tree, list, id ast.NodeID, old, name string) {
	seen := false
	for _, kid := range t.Children(list) {
		if !seen {
			seen = kid == id
			continue
		}
		renameFree(t, kid, old, name)
		switch k := t.Node(kid); k.Kind {
		case ast.KindLet, ast.KindParam:
			if k.Name == old {
				return
			}
		}
	}
}

// renameFree renames the identifiers below id that refer to an outer
// binding named old.
func renameFree(t *ast.Tree, id ast.NodeID, old, name string) {
	n := t.Node(id)
	switch n.Kind {
	case ast.KindIdent:
		if n.Name == old {
			_ = setName(t, id, name)
		}
		return
	case ast.KindBlock:
		for _, s := range n.Children {
			renameFree(t, s, old, name)
			if k := t.Node(s); k.Kind == ast.KindLet && k.Name == old {
				return
			}
		}
		return
	case ast.KindFor:
		renameFree(t, n.Children[0], old, name)
		renameFree(t, n.Children[1], old, name)
		if n.Name != old {
			renameFree(t, n.Children[2], old, name)
		}
		return
	case ast.KindArm:
		if p := t.Node(n.Children[0]); p.Kind == ast.KindPatBind && p.Name == old {
			return
		}
	case ast.KindQuant:
		if n.Name == old {
			return
		}
	case ast.KindTypeRefined:
		renameFree(t, n.Children[0], old, name)
		if n.Name != old {
			renameFree(t, n.Children[1], old, name)
		}
		return
	}
	for _, kid := range n.Children {
		renameFree(t, kid, old, name)
	}
}

func renameWhere(t *ast.Tree, root ast.NodeID, name string, match func(*ast.Node) bool) {
	var hits []ast.NodeID
	t.Walk(root, func(id ast.NodeID, _ int) bool {
		if match(t.Node(id)) {
			hits = append(hits, id)
		}
		return true
	})
	for _, id := range hits {
		_ = setName(t, id, name)
	}
}
