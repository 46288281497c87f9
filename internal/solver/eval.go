package solver

import (
	"fmt"
	"math/big"
	"strconv"

	"refine/internal/pred"
)

type valueKind uint8

const (
	valNum valueKind = iota
	valBool
	valStr
)

type value struct {
	kind valueKind
	num  *big.Rat
	b    bool
	s    string
}

// model is a full assignment: numbers for arithmetic atoms, truth values for
// propositional atoms and a representative for every equality class.
type model struct {
	nums   map[string]*big.Rat
	bools  map[string]bool
	labels map[string]string // class root -> value
	uf     *unionFind
	taken  map[string]bool
	fresh  int
}

func (c *cube) model(vals map[string]*big.Rat) *model {
	m := &model{
		nums:   make(map[string]*big.Rat, len(c.atoms)),
		bools:  c.bools,
		labels: make(map[string]string),
		uf:     c.uf,
		taken:  make(map[string]bool, len(c.strs)),
	}
	for key := range c.atoms {
		if v, ok := vals[key]; ok {
			m.nums[key] = v
		} else {
			m.nums[key] = new(big.Rat)
		}
	}
	for s := range c.strs {
		m.taken[s] = true
	}
	for _, key := range c.uf.keys() {
		if t := c.uf.terms[key]; t.Op == pred.OpStr {
			m.labels[c.uf.find(key)] = t.Str
		}
	}
	for _, key := range c.uf.keys() {
		m.class(key, c.uf.terms[key].Sort)
	}
	return m
}

// class returns the value of the equality class of key, inventing a fresh
// one that differs from every other class when it is unconstrained.
func (m *model) class(key string, sort pred.Sort) string {
	root := m.uf.find(key)
	if v, ok := m.labels[root]; ok {
		return v
	}
	var v string
	if sort == pred.SortString {
		for {
			v = freshString(m.fresh)
			m.fresh++
			if !m.taken[v] {
				break
			}
		}
	} else {
		m.fresh++
		v = fmt.Sprintf("#%d", m.fresh)
	}
	m.taken[v] = true
	m.labels[root] = v
	return v
}

func freshString(n int) string {
	if n == 0 {
		return ""
	}
	if n <= 26 {
		return string(rune('a' + n - 1))
	}
	return "s" + strconv.Itoa(n)
}

func (m *model) satisfies(lits []lit) bool {
	for _, l := range lits {
		v, ok := m.eval(l.atom)
		if !ok || v.kind != valBool || v.b == l.neg {
			return false
		}
	}
	return true
}

func (m *model) num(key string) *big.Rat {
	if v, ok := m.nums[key]; ok {
		return v
	}
	v := new(big.Rat)
	m.nums[key] = v
	return v
}

// eval computes t under the model. ok is false for terms that have no
// meaning under a finite assignment (quantifiers, opaque terms, division by
// zero).
func (m *model) eval(t *pred.Term) (value, bool) {
	switch t.Op {
	case pred.OpNum:
		return value{kind: valNum, num: t.Num}, true
	case pred.OpBool:
		return value{kind: valBool, b: t.Bool}, true
	case pred.OpStr:
		return value{kind: valStr, s: t.Str}, true
	case pred.OpVar, pred.OpApp:
		key := t.Canonical()
		switch {
		case t.Sort.Numeric():
			return value{kind: valNum, num: m.num(key)}, true
		case t.Sort == pred.SortBool:
			return value{kind: valBool, b: m.bools[key]}, true
		default:
			return value{kind: valStr, s: m.class(key, t.Sort)}, true
		}
	case pred.OpNeg:
		x, ok := m.eval(t.Args[0])
		if !ok || x.kind != valNum {
			return value{}, false
		}
		return value{kind: valNum, num: new(big.Rat).Neg(x.num)}, true
	case pred.OpAdd, pred.OpSub, pred.OpMul, pred.OpDiv, pred.OpMod:
		return m.arith(t)
	case pred.OpNot:
		x, ok := m.eval(t.Args[0])
		if !ok || x.kind != valBool {
			return value{}, false
		}
		return value{kind: valBool, b: !x.b}, true
	case pred.OpAnd, pred.OpOr:
		want := t.Op == pred.OpOr
		for _, a := range t.Args {
			x, ok := m.eval(a)
			if !ok || x.kind != valBool {
				return value{}, false
			}
			if x.b == want {
				return value{kind: valBool, b: want}, true
			}
		}
		return value{kind: valBool, b: !want}, true
	case pred.OpImplies:
		return m.eval(pred.Or(pred.Not(t.Args[0]), t.Args[1]))
	}
	if isComparison(t.Op) {
		return m.compare(t)
	}
	return value{}, false
}

func (m *model) arith(t *pred.Term) (value, bool) {
	l, ok1 := m.eval(t.Args[0])
	r, ok2 := m.eval(t.Args[1])
	if !ok1 || !ok2 || l.kind != valNum || r.kind != valNum {
		return value{}, false
	}
	out := new(big.Rat)
	switch t.Op {
	case pred.OpAdd:
		out.Add(l.num, r.num)
	case pred.OpSub:
		out.Sub(l.num, r.num)
	case pred.OpMul:
		out.Mul(l.num, r.num)
	case pred.OpDiv, pred.OpMod:
		if r.num.Sign() == 0 {
			return value{}, false
		}
		if t.Sort != pred.SortInt {
			if t.Op == pred.OpMod {
				return value{}, false
			}
			out.Quo(l.num, r.num)
			break
		}
		if !l.num.IsInt() || !r.num.IsInt() {
			return value{}, false
		}
		q, rem := new(big.Int).QuoRem(l.num.Num(), r.num.Num(), new(big.Int))
		if t.Op == pred.OpDiv {
			out.SetInt(q)
		} else {
			out.SetInt(rem)
		}
	}
	return value{kind: valNum, num: out}, true
}

func (m *model) compare(t *pred.Term) (value, bool) {
	l, ok1 := m.eval(t.Args[0])
	r, ok2 := m.eval(t.Args[1])
	if !ok1 || !ok2 || l.kind != r.kind {
		return value{}, false
	}
	var cmp int
	switch l.kind {
	case valNum:
		cmp = l.num.Cmp(r.num)
	case valStr:
		switch {
		case l.s < r.s:
			cmp = -1
		case l.s > r.s:
			cmp = 1
		}
	case valBool:
		if t.Op != pred.OpEq && t.Op != pred.OpNe {
			return value{}, false
		}
		if l.b != r.b {
			cmp = 1
		}
	}
	var b bool
	switch t.Op {
	case pred.OpEq:
		b = cmp == 0
	case pred.OpNe:
		b = cmp != 0
	case pred.OpLt:
		b = cmp < 0
	case pred.OpLe:
		b = cmp <= 0
	case pred.OpGt:
		b = cmp > 0
	case pred.OpGe:
		b = cmp >= 0
	}
	return value{kind: valBool, b: b}, true
}

// render reports one value per free variable, keyed by display name.
func (m *model) render(vars []pred.VarRef) map[string]string {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		name := v.Name
		for {
			if _, dup := out[name]; !dup {
				break
			}
			name += "'"
		}
		t := pred.Var(v.Name, v.Key, v.Sort)
		val, ok := m.eval(t)
		if !ok {
			continue
		}
		switch {
		case val.kind == valNum:
			out[name] = ratText(val.num)
		case val.kind == valBool:
			out[name] = strconv.FormatBool(val.b)
		case v.Sort == pred.SortString:
			out[name] = strconv.Quote(val.s)
		default:
			out[name] = m.opaqueText(v.Key, val.s)
		}
	}
	return out
}

func (m *model) opaqueText(key, label string) string {
	if n, ok := m.nums[pred.Len(pred.Var("", key, pred.SortOther)).Canonical()]; ok {
		return fmt.Sprintf("<value %s, len %s>", label, ratText(n))
	}
	return "<value " + label + ">"
}

func ratText(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return r.RatString()
}
