package ast

import (
	"strconv"

	"refine/internal/source"
)

// Fragment is an ID-less nested tree. It is the input format of Build and the
// payload of patch operations. A fragment node with Ref set stands for the
// existing node with that ID (moved into place, ID kept); Clone copies an
// existing subtree under fresh IDs.
type Fragment struct {
	Kind     Kind         `json:"kind,omitempty" msgpack:"k,omitempty"`
	Name     string       `json:"name,omitempty" msgpack:"n,omitempty"`
	Op       string       `json:"op,omitempty" msgpack:"o,omitempty"`
	Value    string       `json:"value,omitempty" msgpack:"v,omitempty"`
	Mutable  bool         `json:"mutable,omitempty" msgpack:"m,omitempty"`
	Effects  []string     `json:"effects,omitempty" msgpack:"fx,omitempty"`
	Span     *source.Span `json:"span,omitempty" msgpack:"sp,omitempty"`
	Children []*Fragment  `json:"children,omitempty" msgpack:"c,omitempty"`
	Ref      NodeID       `json:"ref,omitempty" msgpack:"r,omitempty"`
	Clone    NodeID       `json:"clone,omitempty" msgpack:"cl,omitempty"`
}

func leaf(kind Kind, name, value string) *Fragment {
	return &Fragment{Kind: kind, Name: name, Value: value}
}

func node(kind Kind, kids ...*Fragment) *Fragment {
	return &Fragment{Kind: kind, Children: kids}
}

// RefTo stands for an existing node that is moved, keeping its ID.
func RefTo(id NodeID) *Fragment { return &Fragment{Ref: id} }

// CloneOf copies an existing subtree under fresh IDs.
func CloneOf(id NodeID) *Fragment { return &Fragment{Clone: id} }

// At attaches an explicit source span.
func (f *Fragment) At(start, end uint32) *Fragment {
	f.Span = &source.Span{Start: start, End: end}
	return f
}

// Module builds the root node.
func Module(decls ...*Fragment) *Fragment { return node(KindModule, decls...) }

// FnSig groups the optional parts of a function declaration.
type FnSig struct {
	Params   []*Fragment
	Result   *Fragment
	Requires []*Fragment
	Ensures  []*Fragment
	Effects  []string
}

// Fn builds a function declaration with a block body.
func Fn(name string, sig FnSig, body ...*Fragment) *Fragment {
	result := sig.Result
	if result == nil {
		result = TypeName("Unit")
	}
	f := node(KindFn,
		node(KindParams, sig.Params...),
		result,
		node(KindRequires, sig.Requires...),
		node(KindEnsures, sig.Ensures...),
		Block(body...),
	)
	f.Name = name
	f.Effects = sig.Effects
	return f
}

func Param(name string, typ *Fragment) *Fragment {
	f := node(KindParam, typ)
	f.Name = name
	return f
}

func Record(name string, fields ...*Fragment) *Fragment {
	f := node(KindRecord, fields...)
	f.Name = name
	return f
}

func FieldDecl(name string, typ *Fragment) *Fragment {
	f := node(KindFieldDecl, typ)
	f.Name = name
	return f
}

func Enum(name string, variants ...string) *Fragment {
	kids := make([]*Fragment, 0, len(variants))
	for _, v := range variants {
		kids = append(kids, leaf(KindVariant, v, ""))
	}
	f := node(KindEnum, kids...)
	f.Name = name
	return f
}

func Block(stmts ...*Fragment) *Fragment { return node(KindBlock, stmts...) }

func Let(name string, typ, init *Fragment) *Fragment {
	if typ == nil {
		typ = TypeAuto()
	}
	f := node(KindLet, typ, init)
	f.Name = name
	return f
}

func LetMut(name string, typ, init *Fragment) *Fragment {
	f := Let(name, typ, init)
	f.Mutable = true
	return f
}

func Assign(target, value *Fragment) *Fragment { return node(KindAssign, target, value) }

// CompoundAssign builds `target op= value`; canonicalization desugars it.
func CompoundAssign(op string, target, value *Fragment) *Fragment {
	f := node(KindAssign, target, value)
	f.Op = op
	return f
}

func If(cond *Fragment, then []*Fragment, els []*Fragment) *Fragment {
	if els == nil {
		return node(KindIf, cond, Block(then...))
	}
	return node(KindIf, cond, Block(then...), Block(els...))
}

func While(cond *Fragment, body ...*Fragment) *Fragment {
	return node(KindWhile, cond, Block(body...))
}

func For(name string, lo, hi *Fragment, body ...*Fragment) *Fragment {
	f := node(KindFor, lo, hi, Block(body...))
	f.Name = name
	return f
}

func Match(scrutinee *Fragment, arms ...*Fragment) *Fragment {
	return node(KindMatch, append([]*Fragment{scrutinee}, arms...)...)
}

func Arm(pattern *Fragment, body ...*Fragment) *Fragment {
	return node(KindArm, pattern, Block(body...))
}

func Return(value *Fragment) *Fragment {
	if value == nil {
		return node(KindReturn)
	}
	return node(KindReturn, value)
}

func ExprStmt(e *Fragment) *Fragment { return node(KindExprStmt, e) }

func Ident(name string) *Fragment { return leaf(KindIdent, name, "") }

func Int(v int64) *Fragment { return leaf(KindIntLit, "", strconv.FormatInt(v, 10)) }

func Real(text string) *Fragment { return leaf(KindRealLit, "", text) }

func Bool(v bool) *Fragment { return leaf(KindBoolLit, "", strconv.FormatBool(v)) }

func Str(v string) *Fragment { return leaf(KindStringLit, "", v) }

func Bin(op string, l, r *Fragment) *Fragment {
	f := node(KindBinary, l, r)
	f.Op = op
	return f
}

func Unary(op string, x *Fragment) *Fragment {
	f := node(KindUnary, x)
	f.Op = op
	return f
}

func Call(name string, args ...*Fragment) *Fragment {
	f := node(KindCall, args...)
	f.Name = name
	return f
}

func Field(x *Fragment, name string) *Fragment {
	f := node(KindField, x)
	f.Name = name
	return f
}

func Index(x, i *Fragment) *Fragment { return node(KindIndex, x, i) }

func RecordLit(name string, inits ...*Fragment) *Fragment {
	f := node(KindRecordLit, inits...)
	f.Name = name
	return f
}

func FieldInit(name string, value *Fragment) *Fragment {
	f := node(KindFieldInit, value)
	f.Name = name
	return f
}

func Cond(c, then, els *Fragment) *Fragment { return node(KindCond, c, then, els) }

func Fail(msg string) *Fragment { return leaf(KindFail, "", msg) }

func Hole(name string) *Fragment { return leaf(KindHole, name, "") }

func Paren(x *Fragment) *Fragment { return node(KindParen, x) }

func Forall(v string, body *Fragment) *Fragment {
	f := node(KindQuant, body)
	f.Name = v
	f.Op = "forall"
	return f
}

func Exists(v string, body *Fragment) *Fragment {
	f := Forall(v, body)
	f.Op = "exists"
	return f
}

func PatWild() *Fragment { return leaf(KindPatWild, "", "") }

func PatLit(value string) *Fragment { return leaf(KindPatLit, "", value) }

func PatVariant(name string) *Fragment { return leaf(KindPatVariant, name, "") }

func PatBind(name string) *Fragment { return leaf(KindPatBind, name, "") }

func TypeName(name string) *Fragment { return leaf(KindTypeName, name, "") }

// Refined builds `{v: base | pred}`.
func Refined(base *Fragment, v string, pred *Fragment) *Fragment {
	f := node(KindTypeRefined, base, pred)
	f.Name = v
	return f
}

func Linear(inner *Fragment) *Fragment { return node(KindTypeLinear, inner) }

func ListOf(elem *Fragment) *Fragment { return node(KindTypeList, elem) }

func TypeAuto() *Fragment { return leaf(KindTypeAuto, "", "") }
