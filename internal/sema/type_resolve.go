package sema

import (
	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/pred"
	"refine/internal/types"
)

// resolveType maps a type node to a Type. It returns nil for `_`, which
// callers treat as "infer".
func (c *checker) resolveType(t *ast.Tree, id ast.NodeID) *types.Type {
	n := t.Node(id)
	switch n.Kind {
	case ast.KindTypeAuto:
		return nil
	case ast.KindTypeName:
		return c.namedType(t, id, n.Name)
	case ast.KindTypeList:
		return types.MakeList(orUnknown(c.resolveType(t, n.Children[0])))
	case ast.KindTypeLinear:
		return types.MakeLinear(orUnknown(c.resolveType(t, n.Children[0])))
	case ast.KindTypeRefined:
		return c.refinedType(t, id)
	}
	return types.Unknown
}

func (c *checker) namedType(t *ast.Tree, id ast.NodeID, name string) *types.Type {
	if typ, ok := types.Builtin(name); ok {
		return typ
	}
	if _, ok := c.records[name]; ok {
		return types.MakeNamed(types.KindRecord, name)
	}
	if _, ok := c.enums[name]; ok {
		return types.MakeNamed(types.KindEnum, name)
	}
	if c.opaque[name] {
		return types.MakeNamed(types.KindOpaque, name)
	}
	c.report(t, diag.SemaUnknownType, id, "unknown type '%s'", name).With("name", name).Emit()
	if t == c.tree {
		c.suggest(diag.SemaUnknownType, id, c.typeNames())
	}
	return types.Unknown
}

// refinedType resolves `{v: T | p}`. The refinement variable is bound to
// SelfKey; a refinement on an already refined base is conjoined.
func (c *checker) refinedType(t *ast.Tree, id ast.NodeID) *types.Type {
	n := t.Node(id)
	base := orUnknown(c.resolveType(t, n.Children[0]))
	self := pred.Var(n.Name, types.SelfKey, base.Sort())
	env := (*scopeEnv)(nil).with(n.Name, envVar{term: self, typ: base.Base()})
	p := c.contract(t, n.Children[1], env)
	if base.Refine != nil {
		p = pred.And(base.Refine.Pred, p)
	}
	return base.WithRefinement(&types.Refinement{Var: n.Name, Pred: p, Source: id})
}

func orUnknown(t *types.Type) *types.Type {
	if t == nil {
		return types.Unknown
	}
	return t
}

// instantiate rewrites the refinement of t for a concrete value.
func instantiate(t *types.Type, value *pred.Term, subst map[string]*pred.Term) *pred.Term {
	if t == nil || t.Refine == nil {
		return nil
	}
	m := make(map[string]*pred.Term, len(subst)+1)
	for k, v := range subst {
		m[k] = v
	}
	m[types.SelfKey] = value
	return t.Refine.Pred.Subst(m)
}
