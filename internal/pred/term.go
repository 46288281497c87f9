// Package pred is the predicate language obligations and facts are written in.
//
// A Term is an immutable tree. Boolean-sorted terms are formulas. Variables
// carry a Key (the identity of the binding they denote) and a display Name;
// two variables are the same iff their keys are equal, which keeps shadowed
// bindings apart.
//
// The supported fragment is linear integer/real arithmetic with boolean
// connectives, equality over every sort, and the uninterpreted functions
// len, contains and at. Anything else is represented (Opaque, Forall/Exists,
// nonlinear products) so the solver can report why it gave up.
package pred

import (
	"fmt"
	"math/big"
	"slices"
	"strings"
)

// Sort is the type of a term.
type Sort uint8

const (
	SortUnknown Sort = iota
	SortInt
	SortReal
	SortBool
	SortString
	SortOther
)

func (s Sort) String() string {
	switch s {
	case SortInt:
		return "Int"
	case SortReal:
		return "Real"
	case SortBool:
		return "Bool"
	case SortString:
		return "String"
	case SortOther:
		return "Other"
	default:
		return "?"
	}
}

// Numeric reports whether s takes part in linear arithmetic.
func (s Sort) Numeric() bool { return s == SortInt || s == SortReal }

// Op tags the variant of a Term.
type Op uint8

const (
	OpInvalid Op = iota
	OpVar
	OpNum
	OpBool
	OpStr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNot
	OpImplies
	OpApp
	OpOpaque
	OpForall
	OpExists
)

var opSymbols = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "&&", OpOr: "||", OpImplies: "==>",
}

// Symbol returns the infix spelling of a binary operator.
func (o Op) Symbol() string { return opSymbols[o] }

// Term is a node of the predicate language. Terms are never mutated after
// construction.
type Term struct {
	Op   Op
	Sort Sort
	Name string   // variable display name, function name, quantified variable
	Key  string   // variable identity; quantified variable key
	Num  *big.Rat // OpNum
	Bool bool     // OpBool
	Str  string   // OpStr literal, OpOpaque rendering
	Args []*Term
}

// Var returns a variable term.
func Var(name, key string, sort Sort) *Term {
	if key == "" {
		key = name
	}
	return &Term{Op: OpVar, Name: name, Key: key, Sort: sort}
}

// Int returns an integer constant.
func Int(v int64) *Term {
	return &Term{Op: OpNum, Sort: SortInt, Num: new(big.Rat).SetInt64(v)}
}

// Num returns a numeric constant of the given sort.
func Num(v *big.Rat, sort Sort) *Term {
	return &Term{Op: OpNum, Sort: sort, Num: new(big.Rat).Set(v)}
}

// Bool returns a boolean constant.
func Bool(v bool) *Term { return &Term{Op: OpBool, Sort: SortBool, Bool: v} }

// True and False are shared constants.
var (
	True  = Bool(true)
	False = Bool(false)
)

// Str returns a string constant.
func Str(v string) *Term { return &Term{Op: OpStr, Sort: SortString, Str: v} }

// Bin builds a binary term; the sort is derived from op and operands.
func Bin(op Op, l, r *Term) *Term {
	t := &Term{Op: op, Args: []*Term{l, r}}
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		t.Sort = joinNumeric(l.Sort, r.Sort)
	default:
		t.Sort = SortBool
	}
	return t
}

func joinNumeric(a, b Sort) Sort {
	if a == SortReal || b == SortReal {
		return SortReal
	}
	if a == SortInt || b == SortInt {
		return SortInt
	}
	return SortUnknown
}

// Neg returns -x.
func Neg(x *Term) *Term { return &Term{Op: OpNeg, Sort: x.Sort, Args: []*Term{x}} }

// Not returns !x, folding constants and double negation.
func Not(x *Term) *Term {
	switch x.Op {
	case OpBool:
		return Bool(!x.Bool)
	case OpNot:
		return x.Args[0]
	}
	return &Term{Op: OpNot, Sort: SortBool, Args: []*Term{x}}
}

// And conjoins terms, flattening nested conjunctions and dropping true.
func And(xs ...*Term) *Term { return junction(OpAnd, xs) }

// Or disjoins terms, flattening nested disjunctions and dropping false.
func Or(xs ...*Term) *Term { return junction(OpOr, xs) }

func junction(op Op, xs []*Term) *Term {
	unit, absorb := true, false
	if op == OpOr {
		unit, absorb = false, true
	}
	args := make([]*Term, 0, len(xs))
	for _, x := range xs {
		switch {
		case x == nil:
			continue
		case x.Op == OpBool && x.Bool == unit:
			continue
		case x.Op == OpBool && x.Bool == absorb:
			return Bool(absorb)
		case x.Op == op:
			args = append(args, x.Args...)
		default:
			args = append(args, x)
		}
	}
	switch len(args) {
	case 0:
		return Bool(unit)
	case 1:
		return args[0]
	}
	return &Term{Op: op, Sort: SortBool, Args: args}
}

// Implies returns a ==> b.
func Implies(a, b *Term) *Term { return &Term{Op: OpImplies, Sort: SortBool, Args: []*Term{a, b}} }

// App applies an uninterpreted function.
func App(name string, sort Sort, args ...*Term) *Term {
	return &Term{Op: OpApp, Name: name, Sort: sort, Args: args}
}

// Len is len(x) of sort Int.
func Len(x *Term) *Term { return App("len", SortInt, x) }

// Field is record field selection, rendered as `x.name`.
func Field(x *Term, name string, sort Sort) *Term { return App("."+name, sort, x) }

// Opaque stands for an expression outside the fragment. Occurrences with the
// same rendering denote the same value.
func Opaque(rendering string, sort Sort) *Term {
	return &Term{Op: OpOpaque, Str: rendering, Sort: sort}
}

// Quant builds forall/exists over a bound variable.
func Quant(op Op, name, key string, body *Term) *Term {
	return &Term{Op: op, Name: name, Key: key, Sort: SortBool, Args: []*Term{body}}
}

// String renders the term with display names.
func (t *Term) String() string {
	var sb strings.Builder
	t.write(&sb, false)
	return sb.String()
}

// Canonical renders the term with variable keys; equal renderings mean equal
// terms.
func (t *Term) Canonical() string {
	var sb strings.Builder
	t.write(&sb, true)
	return sb.String()
}

func (t *Term) write(sb *strings.Builder, keyed bool) {
	switch t.Op {
	case OpVar:
		if keyed {
			sb.WriteString(t.Key)
		} else {
			sb.WriteString(t.Name)
		}
	case OpNum:
		sb.WriteString(ratString(t.Num))
	case OpBool:
		fmt.Fprintf(sb, "%t", t.Bool)
	case OpStr:
		fmt.Fprintf(sb, "%q", t.Str)
	case OpNeg:
		sb.WriteString("-")
		t.Args[0].operand(sb, keyed)
	case OpNot:
		sb.WriteString("!")
		t.Args[0].operand(sb, keyed)
	case OpAnd, OpOr:
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(" " + t.Op.Symbol() + " ")
			}
			a.operand(sb, keyed)
		}
	case OpApp:
		if strings.HasPrefix(t.Name, ".") && len(t.Args) == 1 {
			t.Args[0].operand(sb, keyed)
			sb.WriteString(t.Name)
			return
		}
		sb.WriteString(t.Name + "(")
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			a.write(sb, keyed)
		}
		sb.WriteString(")")
	case OpOpaque:
		sb.WriteString("⟨" + t.Str + "⟩")
	case OpForall, OpExists:
		q := "forall"
		if t.Op == OpExists {
			q = "exists"
		}
		name := t.Name
		if keyed {
			name = t.Key
		}
		sb.WriteString(q + " " + name + ". ")
		t.Args[0].write(sb, keyed)
	default:
		if len(t.Args) == 2 {
			t.Args[0].operand(sb, keyed)
			sb.WriteString(" " + t.Op.Symbol() + " ")
			t.Args[1].operand(sb, keyed)
			return
		}
		sb.WriteString("<invalid>")
	}
}

func (t *Term) operand(sb *strings.Builder, keyed bool) {
	if (len(t.Args) >= 2 && t.Op != OpApp) || t.Op == OpForall || t.Op == OpExists {
		sb.WriteString("(")
		t.write(sb, keyed)
		sb.WriteString(")")
		return
	}
	t.write(sb, keyed)
}

func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return r.RatString()
}

// VarRef identifies a free variable.
type VarRef struct {
	Name string
	Key  string
	Sort Sort
}

// FreeVars lists the free variables of t ordered by key.
func (t *Term) FreeVars() []VarRef {
	seen := make(map[string]VarRef)
	t.freeVars(seen, nil)
	out := make([]VarRef, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b VarRef) int { return strings.Compare(a.Key, b.Key) })
	return out
}

func (t *Term) freeVars(acc map[string]VarRef, bound []string) {
	switch t.Op {
	case OpVar:
		if !slices.Contains(bound, t.Key) {
			acc[t.Key] = VarRef{Name: t.Name, Key: t.Key, Sort: t.Sort}
		}
		return
	case OpForall, OpExists:
		bound = append(bound, t.Key)
	}
	for _, a := range t.Args {
		a.freeVars(acc, bound)
	}
}

// Mentions reports whether the variable key occurs free in t.
func (t *Term) Mentions(key string) bool {
	if t.Op == OpVar {
		return t.Key == key
	}
	if (t.Op == OpForall || t.Op == OpExists) && t.Key == key {
		return false
	}
	for _, a := range t.Args {
		if a.Mentions(key) {
			return true
		}
	}
	return false
}

// Subst replaces free variables by key.
func (t *Term) Subst(m map[string]*Term) *Term {
	if len(m) == 0 {
		return t
	}
	switch t.Op {
	case OpVar:
		if r, ok := m[t.Key]; ok {
			return r
		}
		return t
	case OpForall, OpExists:
		if _, shadowed := m[t.Key]; shadowed {
			inner := make(map[string]*Term, len(m))
			for k, v := range m {
				if k != t.Key {
					inner[k] = v
				}
			}
			m = inner
		}
	}
	if len(t.Args) == 0 {
		return t
	}
	args := make([]*Term, len(t.Args))
	changed := false
	for i, a := range t.Args {
		args[i] = a.Subst(m)
		changed = changed || args[i] != a
	}
	if !changed {
		return t
	}
	out := *t
	out.Args = args
	return &out
}

// Conjuncts splits a top-level conjunction.
func (t *Term) Conjuncts() []*Term {
	if t.Op == OpAnd {
		return t.Args
	}
	if t.Op == OpBool && t.Bool {
		return nil
	}
	return []*Term{t}
}

// MarshalText renders the term for reports.
func (t *Term) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
