package sema

import (
	"strings"

	"refine/internal/ast"
	"refine/internal/pred"
	"refine/internal/types"
)

// ResultKey is the variable key postconditions use for the returned value.
const ResultKey = "$result"

// Param is one declared parameter. Key is the binding key the parameter has
// inside the function body and in the contract terms.
type Param struct {
	Name string
	Key  string
	Type *types.Type
	Node ast.NodeID
}

// Clause is one requires or ensures expression.
type Clause struct {
	Node ast.NodeID
	Pred *pred.Term
}

// Signature describes a callable function.
type Signature struct {
	Name     string
	Decl     ast.NodeID
	Params   []Param
	Result   *types.Type
	Requires []Clause
	Ensures  []Clause
	Effects  types.EffectSet
	Builtin  bool

	tree *ast.Tree // holds Decl and the clause nodes
}

// Pure reports whether calling s has no effects.
func (s *Signature) Pure() bool { return len(s.Effects) == 0 }

// Consumes reports whether s takes exactly one value of type t and returns
// Unit, which makes it a way to dispose of a linear value.
func (s *Signature) Consumes(t *types.Type) bool {
	return len(s.Params) == 1 && types.Same(s.Params[0].Type.Base(), t.Base()) &&
		s.Result.Kind == types.KindUnit
}

func (s *Signature) String() string {
	var sb strings.Builder
	sb.WriteString("fn " + s.Name + "(")
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name + ": " + p.Type.String())
	}
	sb.WriteString(") -> " + s.Result.String())
	if len(s.Effects) > 0 {
		sb.WriteString(" ! " + strings.Join(s.Effects.Strings(), ", "))
	}
	return sb.String()
}

// FieldInfo is one declared record field.
type FieldInfo struct {
	Name string
	Type *types.Type
	Node ast.NodeID
}

// RecordInfo describes a record declaration.
type RecordInfo struct {
	Name   string
	Decl   ast.NodeID
	Fields []FieldInfo
}

func (r *RecordInfo) Field(name string) (*FieldInfo, bool) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// FieldNames lists the field names in declaration order.
func (r *RecordInfo) FieldNames() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Name
	}
	return out
}

// EnumInfo describes an enum declaration.
type EnumInfo struct {
	Name     string
	Decl     ast.NodeID
	Variants []string
}

func (e *EnumInfo) Type() *types.Type { return types.MakeNamed(types.KindEnum, e.Name) }

// variantTerm is the predicate constant for a variant; distinct variants have
// distinct keys.
func (e *EnumInfo) variantTerm(name string) *pred.Term {
	return pred.Var(name, "variant:"+e.Name+"."+name, pred.SortOther)
}
