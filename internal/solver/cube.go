package solver

import (
	"math/big"
	"slices"
	"strings"

	"refine/internal/pred"
)

type atomKind uint8

const (
	atomVar     atomKind = iota // program variable
	atomFree                    // uninterpreted application: len, at, opaque
	atomDerived                 // nonlinear subterm; its value follows from its arguments
)

type atom struct {
	term  *pred.Term
	isInt bool
	kind  atomKind
}

// cube collects the literals of one disjunct split by theory.
type cube struct {
	s       *search
	lits    []lit
	atoms   map[string]*atom
	cons    []constraint
	diseqs  []linExpr
	bools   map[string]bool
	uf      *unionFind
	ufNe    [][2]string
	strs    map[string]bool // string constants mentioned anywhere
	approx  Category
	details []string
}

func (c *cube) note(cat Category, detail string) {
	if cat.rank() > c.approx.rank() {
		c.approx = cat
	}
	if !slices.Contains(c.details, detail) {
		c.details = append(c.details, detail)
	}
}

func (s *search) solveCube(lits []lit) outcome {
	c := &cube{
		s:     s,
		lits:  lits,
		atoms: make(map[string]*atom),
		bools: make(map[string]bool),
		uf:    newUnionFind(),
		strs:  make(map[string]bool),
	}
	for _, l := range lits {
		if !c.add(l) {
			return outcome{status: statusUnsat}
		}
	}
	if !c.closeEqualities() {
		return outcome{status: statusUnsat}
	}
	vals, st, cat, err := c.arith(c.cons, c.diseqs)
	if err != nil {
		return outcome{status: statusUnknown, cat: CatTimeout, detail: "arithmetic budget exceeded"}
	}
	switch st {
	case statusUnsat:
		return outcome{status: statusUnsat}
	case statusUnknown:
		return outcome{status: statusUnknown, cat: cat, detail: "no integer point found in the relaxed solution space"}
	}
	m := c.model(vals)
	if !m.satisfies(lits) {
		cat := c.approx
		if cat == "" {
			cat = CatUnsupported
		}
		return outcome{status: statusUnknown, cat: cat, detail: strings.Join(c.details, "; ")}
	}
	return outcome{status: statusSat, model: m}
}

// add files a literal; false means the cube is already contradictory.
func (c *cube) add(l lit) bool {
	t := l.atom
	switch {
	case isComparison(t.Op):
		return c.addComparison(t)
	case t.Op == pred.OpForall || t.Op == pred.OpExists:
		c.note(CatQuantified, "quantified subformula "+t.String())
		return true
	case t.Op == pred.OpOpaque:
		c.note(CatUnsupported, "opaque term "+t.String())
	}
	key := t.Canonical()
	want := !l.neg
	if have, ok := c.bools[key]; ok && have != want {
		return false
	}
	c.bools[key] = want
	return true
}

func (c *cube) addComparison(t *pred.Term) bool {
	l, r := t.Args[0], t.Args[1]
	if !l.Sort.Numeric() && !r.Sort.Numeric() {
		switch t.Op {
		case pred.OpEq:
			c.uf.union(c.ufTerm(l), c.ufTerm(r))
		case pred.OpNe:
			c.ufNe = append(c.ufNe, [2]string{c.ufTerm(l), c.ufTerm(r)})
		default:
			c.ufTerm(l)
			c.ufTerm(r)
			c.note(CatUnsupported, "ordering over "+l.Sort.String()+" values")
		}
		return true
	}
	e := c.lin(l).plus(c.lin(r), big.NewRat(-1, 1))
	switch t.Op {
	case pred.OpEq:
		c.cons = append(c.cons, constraint{e: e, rel: relEq})
	case pred.OpNe:
		if e.isConst() {
			return e.k.Sign() != 0
		}
		c.diseqs = append(c.diseqs, e)
	case pred.OpLt:
		c.cons = append(c.cons, constraint{e: e, rel: relLt})
	case pred.OpLe:
		c.cons = append(c.cons, constraint{e: e, rel: relLe})
	case pred.OpGt:
		c.cons = append(c.cons, constraint{e: e.scale(big.NewRat(-1, 1)), rel: relLt})
	case pred.OpGe:
		c.cons = append(c.cons, constraint{e: e.scale(big.NewRat(-1, 1)), rel: relLe})
	}
	return true
}

func (c *cube) ufTerm(t *pred.Term) string {
	key := t.Canonical()
	c.uf.add(key, t)
	switch t.Op {
	case pred.OpStr:
		c.strs[t.Str] = true
	case pred.OpOpaque:
		c.note(CatUnsupported, "opaque term "+t.String())
	}
	return key
}

// lin linearizes a numeric term. Subterms outside linear arithmetic become
// atoms, which relaxes the formula.
func (c *cube) lin(t *pred.Term) linExpr {
	switch t.Op {
	case pred.OpNum:
		return constExpr(t.Num)
	case pred.OpAdd:
		return c.lin(t.Args[0]).plus(c.lin(t.Args[1]), big.NewRat(1, 1))
	case pred.OpSub:
		return c.lin(t.Args[0]).plus(c.lin(t.Args[1]), big.NewRat(-1, 1))
	case pred.OpNeg:
		return c.lin(t.Args[0]).scale(big.NewRat(-1, 1))
	case pred.OpMul:
		l, r := c.lin(t.Args[0]), c.lin(t.Args[1])
		if l.isConst() {
			return r.scale(l.k)
		}
		if r.isConst() {
			return l.scale(r.k)
		}
		c.note(CatNonlinear, "nonlinear product "+t.String())
		return c.atom(t, atomDerived)
	case pred.OpDiv:
		r := c.lin(t.Args[1])
		if t.Sort == pred.SortReal && r.isConst() && r.k.Sign() != 0 {
			return c.lin(t.Args[0]).scale(new(big.Rat).Inv(r.k))
		}
		c.note(CatNonlinear, "division "+t.String())
		return c.atom(t, atomDerived)
	case pred.OpMod:
		c.note(CatNonlinear, "remainder "+t.String())
		return c.atom(t, atomDerived)
	case pred.OpVar:
		return c.atom(t, atomVar)
	case pred.OpApp:
		return c.atom(t, atomFree)
	case pred.OpOpaque:
		c.note(CatUnsupported, "opaque term "+t.String())
		return c.atom(t, atomFree)
	default:
		c.note(CatUnsupported, "term "+t.String()+" in arithmetic")
		return c.atom(t, atomFree)
	}
}

func (c *cube) atom(t *pred.Term, kind atomKind) linExpr {
	key := t.Canonical()
	if _, ok := c.atoms[key]; !ok {
		c.atoms[key] = &atom{term: t, isInt: t.Sort == pred.SortInt, kind: kind}
		if t.Op == pred.OpApp && t.Name == "len" {
			// len(x) >= 0
			c.cons = append(c.cons, constraint{e: varExpr(key).scale(big.NewRat(-1, 1)), rel: relLe})
		}
	}
	return varExpr(key)
}

func (c *cube) isInt(key string) bool {
	a, ok := c.atoms[key]
	return ok && a.isInt
}

// closeEqualities checks the equality classes of non-numeric terms and adds
// congruence equalities between numeric applications whose arguments are
// known equal.
func (c *cube) closeEqualities() bool {
	consts := make(map[string]string)
	for _, key := range c.uf.keys() {
		t := c.uf.terms[key]
		if t.Op != pred.OpStr {
			continue
		}
		root := c.uf.find(key)
		if have, ok := consts[root]; ok && have != t.Str {
			return false
		}
		consts[root] = t.Str
	}
	for _, ne := range c.ufNe {
		if c.uf.find(ne[0]) == c.uf.find(ne[1]) {
			return false
		}
	}

	groups := make(map[string][]string)
	keys := make([]string, 0, len(c.atoms))
	for key := range c.atoms {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		a := c.atoms[key]
		if a.kind != atomFree || a.term.Op != pred.OpApp {
			continue
		}
		sig := a.term.Name
		for _, arg := range a.term.Args {
			sig += "|" + c.uf.find(arg.Canonical())
		}
		groups[sig] = append(groups[sig], key)
	}
	sigs := make([]string, 0, len(groups))
	for sig := range groups {
		sigs = append(sigs, sig)
	}
	slices.Sort(sigs)
	for _, sig := range sigs {
		members := groups[sig]
		for _, other := range members[1:] {
			e := varExpr(members[0]).plus(varExpr(other), big.NewRat(-1, 1))
			c.cons = append(c.cons, constraint{e: e, rel: relEq})
		}
	}
	return true
}

// arith solves the linear part, splitting disequalities lazily: only those
// the current model violates are split into < and >.
func (c *cube) arith(cons []constraint, diseqs []linExpr) (map[string]*big.Rat, status, Category, error) {
	vals, st, err := c.fm(cons)
	if err != nil || st != statusSat {
		return nil, st, CatUnsupported, err
	}
	for i, d := range diseqs {
		if d.eval(vals).Sign() != 0 {
			continue
		}
		rest := slices.Concat(diseqs[:i], diseqs[i+1:])
		above := append(slices.Clone(cons), constraint{e: d.scale(big.NewRat(-1, 1)), rel: relLt})
		v1, st1, cat1, err := c.arith(above, rest)
		if err != nil {
			return nil, statusUnknown, CatTimeout, err
		}
		if st1 == statusSat {
			return v1, st1, "", nil
		}
		below := append(slices.Clone(cons), constraint{e: d, rel: relLt})
		v2, st2, cat2, err := c.arith(below, rest)
		if err != nil {
			return nil, statusUnknown, CatTimeout, err
		}
		if st2 == statusSat {
			return v2, st2, "", nil
		}
		if st1 == statusUnsat && st2 == statusUnsat {
			return nil, statusUnsat, "", nil
		}
		if cat2.rank() > cat1.rank() {
			cat1 = cat2
		}
		return nil, statusUnknown, cat1, nil
	}
	return vals, statusSat, "", nil
}

type unionFind struct {
	parent map[string]string
	terms  map[string]*pred.Term
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), terms: make(map[string]*pred.Term)}
}

func (u *unionFind) add(key string, t *pred.Term) {
	if _, ok := u.parent[key]; !ok {
		u.parent[key] = key
		u.terms[key] = t
	}
}

func (u *unionFind) find(key string) string {
	p, ok := u.parent[key]
	if !ok {
		return key
	}
	if p == key {
		return key
	}
	root := u.find(p)
	u.parent[key] = root
	return root
}

// union keeps the smaller key as root so classes are named deterministically.
func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

func (u *unionFind) keys() []string {
	out := make([]string, 0, len(u.parent))
	for k := range u.parent {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
