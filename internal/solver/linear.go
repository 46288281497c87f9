package solver

import (
	"math/big"
	"slices"
	"strings"
)

// linExpr is Σ coef[x]·x + k over exact rationals. Zero coefficients are
// never stored.
type linExpr struct {
	coef map[string]*big.Rat
	k    *big.Rat
}

func constExpr(v *big.Rat) linExpr {
	return linExpr{coef: map[string]*big.Rat{}, k: new(big.Rat).Set(v)}
}

func varExpr(key string) linExpr {
	return linExpr{coef: map[string]*big.Rat{key: big.NewRat(1, 1)}, k: new(big.Rat)}
}

func (e linExpr) isConst() bool { return len(e.coef) == 0 }

// plus returns e + s·o.
func (e linExpr) plus(o linExpr, s *big.Rat) linExpr {
	out := e.scale(big.NewRat(1, 1))
	for x, c := range o.coef {
		add := new(big.Rat).Mul(c, s)
		if cur, ok := out.coef[x]; ok {
			add.Add(add, cur)
		}
		if add.Sign() == 0 {
			delete(out.coef, x)
		} else {
			out.coef[x] = add
		}
	}
	out.k.Add(out.k, new(big.Rat).Mul(o.k, s))
	return out
}

// scale returns s·e as a fresh expression.
func (e linExpr) scale(s *big.Rat) linExpr {
	out := linExpr{coef: make(map[string]*big.Rat, len(e.coef)), k: new(big.Rat).Mul(e.k, s)}
	if s.Sign() == 0 {
		return out
	}
	for x, c := range e.coef {
		out.coef[x] = new(big.Rat).Mul(c, s)
	}
	return out
}

func (e linExpr) vars() []string {
	out := make([]string, 0, len(e.coef))
	for x := range e.coef {
		out = append(out, x)
	}
	slices.Sort(out)
	return out
}

// substitute replaces x by the expression by.
func (e linExpr) substitute(x string, by linExpr) linExpr {
	c, ok := e.coef[x]
	if !ok {
		return e
	}
	rest := e.scale(big.NewRat(1, 1))
	delete(rest.coef, x)
	return rest.plus(by, c)
}

// eval computes e under vals; missing variables count as zero.
func (e linExpr) eval(vals map[string]*big.Rat) *big.Rat {
	out := new(big.Rat).Set(e.k)
	for x, c := range e.coef {
		if v, ok := vals[x]; ok {
			out.Add(out, new(big.Rat).Mul(c, v))
		}
	}
	return out
}

func (e linExpr) String() string {
	var sb strings.Builder
	for _, x := range e.vars() {
		sb.WriteString(e.coef[x].RatString())
		sb.WriteString("*")
		sb.WriteString(x)
		sb.WriteString(" + ")
	}
	sb.WriteString(e.k.RatString())
	return sb.String()
}

type rel uint8

const (
	relEq rel = iota
	relLe
	relLt
)

func (r rel) String() string {
	switch r {
	case relEq:
		return "= 0"
	case relLe:
		return "<= 0"
	default:
		return "< 0"
	}
}

// constraint is `e rel 0`.
type constraint struct {
	e   linExpr
	rel rel
}

func (c constraint) key() string { return c.e.String() + " " + c.rel.String() }

// holds evaluates a constraint whose expression is constant or fully
// assigned.
func (c constraint) holds(vals map[string]*big.Rat) bool {
	v := c.e.eval(vals)
	switch c.rel {
	case relEq:
		return v.Sign() == 0
	case relLe:
		return v.Sign() <= 0
	default:
		return v.Sign() < 0
	}
}

func lcm(a, b *big.Int) *big.Int {
	g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(a), new(big.Int).Abs(b))
	out := new(big.Int).Mul(a, b)
	out.Abs(out)
	return out.Quo(out, g)
}

// floorRat uses Euclidean division, which floors for the positive
// denominators big.Rat keeps.
func floorRat(r *big.Rat) *big.Int {
	return new(big.Int).Div(r.Num(), r.Denom())
}

func ceilRat(r *big.Rat) *big.Int {
	q := floorRat(r)
	if !r.IsInt() {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// tighten normalizes a constraint over integer variables: coefficients
// become coprime integers, strict inequalities become non-strict and the
// constant is rounded toward the feasible side. ok is false when an equality
// has no integer solution.
func tighten(c constraint) (constraint, bool) {
	if c.e.isConst() {
		return c, true
	}
	den := big.NewInt(1)
	for _, x := range c.e.vars() {
		den = lcm(den, new(big.Int).Set(c.e.coef[x].Denom()))
	}
	den = lcm(den, new(big.Int).Set(c.e.k.Denom()))
	e := c.e.scale(new(big.Rat).SetInt(den))
	r := c.rel
	if r == relLt {
		e.k.Add(e.k, big.NewRat(1, 1))
		r = relLe
	}
	g := new(big.Int)
	for _, x := range e.vars() {
		g.GCD(nil, nil, g, new(big.Int).Abs(e.coef[x].Num()))
	}
	if g.Sign() == 0 || g.Cmp(big.NewInt(1)) == 0 {
		return constraint{e: e, rel: r}, true
	}
	gr := new(big.Rat).SetInt(g)
	if r == relEq {
		if new(big.Int).Rem(e.k.Num(), g).Sign() != 0 {
			return constraint{}, false
		}
		return constraint{e: e.scale(new(big.Rat).Inv(gr)), rel: r}, true
	}
	out := linExpr{coef: make(map[string]*big.Rat, len(e.coef))}
	for x, cf := range e.coef {
		out.coef[x] = new(big.Rat).Quo(cf, gr)
	}
	out.k = new(big.Rat).SetInt(ceilRat(new(big.Rat).Quo(e.k, gr)))
	return constraint{e: out, rel: r}, true
}
