package solver

import (
	"math/big"
	"slices"
)

// stage records how one variable was eliminated so a model can be rebuilt
// in reverse order.
type stage struct {
	v      string
	subst  *linExpr     // v = subst, from an equality
	bounds []constraint // constraints mentioning v when it was projected out
}

// normalize tightens integer constraints, evaluates constant ones and drops
// duplicates. ok is false on a contradiction.
func (c *cube) normalize(in []constraint) ([]constraint, bool) {
	out := make([]constraint, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		if !k.e.isConst() && c.allInt(k.e) {
			var ok bool
			if k, ok = tighten(k); !ok {
				return nil, false
			}
		}
		if k.e.isConst() {
			if !k.holds(nil) {
				return nil, false
			}
			continue
		}
		key := k.key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out, true
}

func (c *cube) allInt(e linExpr) bool {
	for x := range e.coef {
		if !c.isInt(x) {
			return false
		}
	}
	return true
}

// pivot picks the variable an equality is solved for: an integer variable
// with a unit coefficient keeps the substitution exact.
func (c *cube) pivot(e linExpr) string {
	vars := e.vars()
	for _, x := range vars {
		if c.isInt(x) && new(big.Rat).Abs(e.coef[x]).Cmp(big.NewRat(1, 1)) == 0 {
			return x
		}
	}
	for _, x := range vars {
		if !c.isInt(x) {
			return x
		}
	}
	return vars[0]
}

// fm decides a conjunction of linear constraints and, when it is
// satisfiable, builds a model preferring values of small magnitude.
func (c *cube) fm(input []constraint) (map[string]*big.Rat, status, error) {
	work, ok := c.normalize(input)
	if !ok {
		return nil, statusUnsat, nil
	}
	var stages []stage

	for {
		idx := slices.IndexFunc(work, func(k constraint) bool { return k.rel == relEq })
		if idx < 0 {
			break
		}
		eq := work[idx]
		x := c.pivot(eq.e)
		a := eq.e.coef[x]
		rest := eq.e.scale(big.NewRat(1, 1))
		delete(rest.coef, x)
		by := rest.scale(new(big.Rat).Neg(new(big.Rat).Inv(a)))
		stages = append(stages, stage{v: x, subst: &by})

		next := make([]constraint, 0, len(work)-1)
		for j, k := range work {
			if j != idx {
				next = append(next, constraint{e: k.e.substitute(x, by), rel: k.rel})
			}
		}
		if err := c.s.tick(len(next)); err != nil {
			return nil, statusUnknown, err
		}
		if work, ok = c.normalize(next); !ok {
			return nil, statusUnsat, nil
		}
	}

	for len(work) > 0 {
		x := c.eliminationOrder(work)
		var lower, upper, keep []constraint
		for _, k := range work {
			cf, ok := k.e.coef[x]
			if !ok {
				keep = append(keep, k)
				continue
			}
			if cf.Sign() > 0 {
				upper = append(upper, k)
			} else {
				lower = append(lower, k)
			}
		}
		stages = append(stages, stage{v: x, bounds: slices.Concat(lower, upper)})
		if err := c.s.tick(len(lower) * len(upper)); err != nil {
			return nil, statusUnknown, err
		}
		for _, l := range lower {
			al := new(big.Rat).Neg(l.e.coef[x])
			for _, u := range upper {
				au := u.e.coef[x]
				comb := l.e.scale(au).plus(u.e, al)
				delete(comb.coef, x)
				r := relLe
				if l.rel == relLt || u.rel == relLt {
					r = relLt
				}
				keep = append(keep, constraint{e: comb, rel: r})
			}
		}
		if work, ok = c.normalize(keep); !ok {
			return nil, statusUnsat, nil
		}
	}

	vals := make(map[string]*big.Rat)
	for i := len(stages) - 1; i >= 0; i-- {
		st := stages[i]
		if st.subst != nil {
			v := st.subst.eval(vals)
			if c.isInt(st.v) && !v.IsInt() {
				return nil, statusUnknown, nil
			}
			vals[st.v] = v
			continue
		}
		v, ok := c.pick(st.v, st.bounds, vals)
		if !ok {
			return nil, statusUnknown, nil
		}
		vals[st.v] = v
	}
	return vals, statusSat, nil
}

// eliminationOrder picks the variable whose projection creates the fewest
// new constraints; ties go to the smallest key.
func (c *cube) eliminationOrder(work []constraint) string {
	lo := make(map[string]int)
	hi := make(map[string]int)
	for _, k := range work {
		for x, cf := range k.e.coef {
			if cf.Sign() > 0 {
				hi[x]++
			} else {
				lo[x]++
			}
		}
	}
	vars := make([]string, 0, len(lo)+len(hi))
	for x := range lo {
		vars = append(vars, x)
	}
	for x := range hi {
		if _, dup := lo[x]; !dup {
			vars = append(vars, x)
		}
	}
	slices.Sort(vars)
	best, bestCost := vars[0], -1
	for _, x := range vars {
		cost := lo[x] * hi[x]
		if bestCost < 0 || cost < bestCost {
			best, bestCost = x, cost
		}
	}
	return best
}

type bound struct {
	val    *big.Rat
	strict bool
}

// pick chooses a value for x within the bounds implied by cons once every
// other variable is fixed: zero when allowed, otherwise the feasible value
// closest to zero.
func (c *cube) pick(x string, cons []constraint, vals map[string]*big.Rat) (*big.Rat, bool) {
	var lo, hi *bound
	for _, k := range cons {
		a := k.e.coef[x]
		rest := k.e.scale(big.NewRat(1, 1))
		delete(rest.coef, x)
		limit := new(big.Rat).Quo(new(big.Rat).Neg(rest.eval(vals)), a)
		b := &bound{val: limit, strict: k.rel == relLt}
		if a.Sign() > 0 {
			if hi == nil || limit.Cmp(hi.val) < 0 || (limit.Cmp(hi.val) == 0 && b.strict) {
				hi = b
			}
		} else {
			if lo == nil || limit.Cmp(lo.val) > 0 || (limit.Cmp(lo.val) == 0 && b.strict) {
				lo = b
			}
		}
	}
	if c.isInt(x) {
		return pickInt(lo, hi)
	}
	return pickReal(lo, hi)
}

func pickInt(lo, hi *bound) (*big.Rat, bool) {
	var l, h *big.Int
	if lo != nil {
		if lo.strict {
			l = new(big.Int).Add(floorRat(lo.val), big.NewInt(1))
		} else {
			l = ceilRat(lo.val)
		}
	}
	if hi != nil {
		if hi.strict {
			h = new(big.Int).Sub(ceilRat(hi.val), big.NewInt(1))
		} else {
			h = floorRat(hi.val)
		}
	}
	if l != nil && h != nil && l.Cmp(h) > 0 {
		return nil, false
	}
	switch {
	case l != nil && l.Sign() > 0:
		return new(big.Rat).SetInt(l), true
	case h != nil && h.Sign() < 0:
		return new(big.Rat).SetInt(h), true
	default:
		return new(big.Rat), true
	}
}

func pickReal(lo, hi *bound) (*big.Rat, bool) {
	zero := new(big.Rat)
	okLo := lo == nil || lo.val.Cmp(zero) < 0 || (lo.val.Sign() == 0 && !lo.strict)
	okHi := hi == nil || hi.val.Cmp(zero) > 0 || (hi.val.Sign() == 0 && !hi.strict)
	if okLo && okHi {
		return zero, true
	}
	if lo != nil && hi != nil {
		cmp := lo.val.Cmp(hi.val)
		if cmp > 0 || (cmp == 0 && (lo.strict || hi.strict)) {
			return nil, false
		}
	}
	if !okLo {
		if !lo.strict {
			return new(big.Rat).Set(lo.val), true
		}
		next := new(big.Rat).Add(lo.val, big.NewRat(1, 1))
		if hi == nil || next.Cmp(hi.val) < 0 || (next.Cmp(hi.val) == 0 && !hi.strict) {
			return next, true
		}
		return new(big.Rat).Quo(new(big.Rat).Add(lo.val, hi.val), big.NewRat(2, 1)), true
	}
	if !hi.strict {
		return new(big.Rat).Set(hi.val), true
	}
	next := new(big.Rat).Sub(hi.val, big.NewRat(1, 1))
	if lo == nil || next.Cmp(lo.val) > 0 || (next.Cmp(lo.val) == 0 && !lo.strict) {
		return next, true
	}
	return new(big.Rat).Quo(new(big.Rat).Add(lo.val, hi.val), big.NewRat(2, 1)), true
}
