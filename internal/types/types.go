package types

import (
	"fmt"
	"strings"

	"refine/internal/ast"
	"refine/internal/pred"
)

// Kind enumerates the base shapes of a type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnknown      // result of an erroneous expression; compatible with everything
	KindUnit
	KindNever
	KindBool
	KindInt
	KindReal
	KindString
	KindList
	KindLinear
	KindRecord
	KindEnum
	KindOpaque // named resource types such as FileHandle
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnknown:
		return "unknown"
	case KindUnit:
		return "Unit"
	case KindNever:
		return "Never"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindReal:
		return "Real"
	case KindString:
		return "String"
	case KindList:
		return "List"
	case KindLinear:
		return "Linear"
	case KindRecord:
		return "record"
	case KindEnum:
		return "enum"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// SelfKey is the variable key refinement predicates use for the refined value.
const SelfKey = "$self"

// Refinement is the predicate part of `{v: T | p}`. Pred mentions the refined
// value through SelfKey; other free variables are keys of bindings that were
// in scope where the type was written.
type Refinement struct {
	Var    string
	Pred   *pred.Term
	Source ast.NodeID // the type_refined node, when the type came from the tree
}

// Type describes a value. Types are shared and never mutated.
type Type struct {
	Kind   Kind
	Name   string // record, enum and opaque names
	Elem   *Type  // List and Linear
	Refine *Refinement
}

var (
	Unknown = &Type{Kind: KindUnknown}
	Unit    = &Type{Kind: KindUnit}
	Never   = &Type{Kind: KindNever}
	Bool    = &Type{Kind: KindBool}
	Int     = &Type{Kind: KindInt}
	Real    = &Type{Kind: KindReal}
	String  = &Type{Kind: KindString}
)

// Builtin resolves the primitive type names.
func Builtin(name string) (*Type, bool) {
	switch name {
	case "Unit":
		return Unit, true
	case "Never":
		return Never, true
	case "Bool":
		return Bool, true
	case "Int":
		return Int, true
	case "Real":
		return Real, true
	case "String":
		return String, true
	}
	return nil, false
}

func MakeList(elem *Type) *Type    { return &Type{Kind: KindList, Elem: elem} }
func MakeLinear(inner *Type) *Type { return &Type{Kind: KindLinear, Elem: inner} }

// MakeNamed describes a user record/enum or an opaque resource type.
func MakeNamed(kind Kind, name string) *Type { return &Type{Kind: kind, Name: name} }

// WithRefinement returns a copy of t carrying r.
func (t *Type) WithRefinement(r *Refinement) *Type {
	out := *t
	out.Refine = r
	return &out
}

// Base drops the refinement.
func (t *Type) Base() *Type {
	if t == nil || t.Refine == nil {
		return t
	}
	out := *t
	out.Refine = nil
	return &out
}

// IsLinear reports whether values of t must be used exactly once.
func (t *Type) IsLinear() bool { return t != nil && t.Kind == KindLinear }

// Sort maps t onto the predicate language.
func (t *Type) Sort() pred.Sort {
	if t == nil {
		return pred.SortUnknown
	}
	switch t.Kind {
	case KindInt:
		return pred.SortInt
	case KindReal:
		return pred.SortReal
	case KindBool:
		return pred.SortBool
	case KindString:
		return pred.SortString
	case KindUnknown, KindInvalid:
		return pred.SortUnknown
	default:
		return pred.SortOther
	}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	if t.Refine != nil {
		sb.WriteString("{" + t.Refine.Var + ": ")
	}
	switch t.Kind {
	case KindList:
		sb.WriteString("List[" + t.Elem.String() + "]")
	case KindLinear:
		sb.WriteString("Linear[" + t.Elem.String() + "]")
	case KindRecord, KindEnum, KindOpaque:
		sb.WriteString(t.Name)
	default:
		sb.WriteString(t.Kind.String())
	}
	if t.Refine != nil {
		self := pred.Var(t.Refine.Var, SelfKey, t.Sort())
		sb.WriteString(" | " + t.Refine.Pred.Subst(map[string]*pred.Term{SelfKey: self}).String() + "}")
	}
	return sb.String()
}

// MarshalText renders the type for reports.
func (t *Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Same reports structural equality of base types, ignoring refinements.
func Same(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Name != b.Name {
		return false
	}
	if a.Elem != nil || b.Elem != nil {
		return Same(a.Elem, b.Elem)
	}
	return true
}

// Assignable reports whether a value of type from may flow into to, ignoring
// refinements (those become obligations). Unknown is compatible both ways and
// Never flows anywhere.
func Assignable(from, to *Type) bool {
	if from == nil || to == nil {
		return false
	}
	if from.Kind == KindUnknown || to.Kind == KindUnknown || from.Kind == KindNever {
		return true
	}
	if from.Kind != to.Kind || from.Name != to.Name {
		return false
	}
	if from.Elem != nil && to.Elem != nil {
		return Assignable(from.Elem, to.Elem)
	}
	return true
}
