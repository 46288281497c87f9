package solver

import (
	"refine/internal/pred"
)

// lit is an atomic proposition with a polarity. Comparisons are always kept
// positive: negation flips the operator instead.
type lit struct {
	atom *pred.Term
	neg  bool
}

type formOp uint8

const (
	formTrue formOp = iota
	formFalse
	formLit
	formAnd
	formOr
)

// form is a formula in negation normal form.
type form struct {
	op   formOp
	kids []*form
	lit  lit
}

var dualOp = map[pred.Op]pred.Op{
	pred.OpEq: pred.OpNe, pred.OpNe: pred.OpEq,
	pred.OpLt: pred.OpGe, pred.OpGe: pred.OpLt,
	pred.OpLe: pred.OpGt, pred.OpGt: pred.OpLe,
}

func isComparison(op pred.Op) bool {
	_, ok := dualOp[op]
	return ok
}

// nnf pushes negations down to atoms.
func nnf(t *pred.Term, neg bool) *form {
	switch t.Op {
	case pred.OpBool:
		if t.Bool != neg {
			return &form{op: formTrue}
		}
		return &form{op: formFalse}
	case pred.OpNot:
		return nnf(t.Args[0], !neg)
	case pred.OpAnd, pred.OpOr:
		op := formAnd
		if (t.Op == pred.OpOr) != neg {
			op = formOr
		}
		f := &form{op: op, kids: make([]*form, len(t.Args))}
		for i, a := range t.Args {
			f.kids[i] = nnf(a, neg)
		}
		return f
	case pred.OpImplies:
		return nnf(pred.Or(pred.Not(t.Args[0]), t.Args[1]), neg)
	}
	if isComparison(t.Op) {
		l, r := t.Args[0], t.Args[1]
		if (t.Op == pred.OpEq || t.Op == pred.OpNe) && (l.Sort == pred.SortBool || r.Sort == pred.SortBool) {
			same := t.Op == pred.OpEq
			if neg {
				same = !same
			}
			if same {
				return nnf(pred.Or(pred.And(l, r), pred.And(pred.Not(l), pred.Not(r))), false)
			}
			return nnf(pred.Or(pred.And(l, pred.Not(r)), pred.And(pred.Not(l), r)), false)
		}
		if neg {
			t = pred.Bin(dualOp[t.Op], l, r)
		}
		return &form{op: formLit, lit: lit{atom: t}}
	}
	return &form{op: formLit, lit: lit{atom: t, neg: neg}}
}

// dnf expands f into a list of cubes. It fails with errBudget once the number
// of cubes would exceed the configured bound.
func (s *search) dnf(f *form) ([][]lit, error) {
	switch f.op {
	case formTrue:
		return [][]lit{{}}, nil
	case formFalse:
		return nil, nil
	case formLit:
		return [][]lit{{f.lit}}, nil
	case formOr:
		var out [][]lit
		for _, k := range f.kids {
			cubes, err := s.dnf(k)
			if err != nil {
				return nil, err
			}
			out = append(out, cubes...)
			if len(out) > s.opts.MaxDisjuncts {
				return nil, errBudget
			}
		}
		return out, nil
	default:
		out := [][]lit{{}}
		for _, k := range f.kids {
			cubes, err := s.dnf(k)
			if err != nil {
				return nil, err
			}
			if len(out)*len(cubes) > s.opts.MaxDisjuncts {
				return nil, errBudget
			}
			next := make([][]lit, 0, len(out)*len(cubes))
			for _, a := range out {
				for _, b := range cubes {
					cube := make([]lit, 0, len(a)+len(b))
					cube = append(cube, a...)
					cube = append(cube, b...)
					next = append(next, cube)
				}
			}
			if err := s.tick(len(next)); err != nil {
				return nil, err
			}
			out = next
		}
		return out, nil
	}
}
