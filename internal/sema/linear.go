package sema

import (
	"strconv"

	"refine/internal/ast"
	"refine/internal/facts"
	"refine/internal/pred"
	"refine/internal/solver"
	"refine/internal/types"
)

// useMask is the set of use counts a linear binding may have reached on the
// paths into the current point.
type useMask uint8

const (
	usedNever useMask = 1 << iota
	usedOnce
	usedMore
)

func (m useMask) bump() useMask {
	var out useMask
	if m&usedNever != 0 {
		out |= usedOnce
	}
	if m&(usedOnce|usedMore) != 0 {
		out |= usedMore
	}
	return out
}

type linVar struct {
	key  string
	name string
	typ  *types.Type
	decl ast.NodeID
	loop int // loop depth at the declaration
	uses useMask
	snap facts.Snapshot

	// first violation
	bad      bool
	unused   bool // every path reached the exit without a use
	count    int
	anchor   ast.NodeID
	place    Placement
	badFacts facts.Snapshot
}

// linearity tracks the use counts of the linear bindings of one function.
type linearity struct {
	frames [][]*linVar
	all    []*linVar
	byKey  map[string]*linVar
	loop   int
}

func newLinearity() *linearity {
	return &linearity{byKey: make(map[string]*linVar)}
}

func (l *linearity) push() { l.frames = append(l.frames, nil) }

func (l *linearity) pop() { l.frames = l.frames[:len(l.frames)-1] }

func (l *linearity) top() []*linVar { return l.frames[len(l.frames)-1] }

func (l *linearity) declare(b *facts.Binding, decl ast.NodeID, snap facts.Snapshot) {
	v := &linVar{key: b.Key, name: b.Name, typ: b.Type, decl: decl, loop: l.loop, uses: usedNever, snap: snap}
	l.frames[len(l.frames)-1] = append(l.top(), v)
	l.all = append(l.all, v)
	l.byKey[v.key] = v
}

// use counts one use; a use inside a loop the binding was declared outside
// of may happen any number of times.
func (l *linearity) use(key string) {
	v, ok := l.byKey[key]
	if !ok {
		return
	}
	if l.loop > v.loop {
		v.uses = usedMore
		return
	}
	v.uses = v.uses.bump()
}

func (l *linearity) live() []*linVar {
	var out []*linVar
	for _, f := range l.frames {
		out = append(out, f...)
	}
	return out
}

func (l *linearity) save() map[string]useMask {
	state := make(map[string]useMask)
	for _, v := range l.live() {
		state[v.key] = v.uses
	}
	return state
}

func (l *linearity) restore(state map[string]useMask) {
	for _, v := range l.live() {
		if m, ok := state[v.key]; ok {
			v.uses = m
		}
	}
}

// merge joins the states at the end of the paths that reach a merge point.
// With no such path the point is unreachable and nothing can be wrong there.
func (l *linearity) merge(states []map[string]useMask) {
	for _, v := range l.live() {
		if len(states) == 0 {
			v.uses = usedOnce
			continue
		}
		var m useMask
		for _, s := range states {
			m |= s[v.key]
		}
		v.uses = m
	}
}

// checkExit records a violation for every binding in vars that has not been
// used exactly once when control leaves through anchor.
func (c *checker) checkExit(vars []*linVar, anchor ast.NodeID, place Placement) {
	for _, v := range vars {
		if v.bad || v.uses == usedOnce {
			continue
		}
		v.bad = true
		v.anchor, v.place = anchor, place
		v.badFacts = c.ctx.Snapshot()
		switch {
		case v.uses&usedMore != 0:
			v.count = 2
		default:
			v.count = 0
			v.unused = v.uses == usedNever
		}
	}
}

// exitAnchor is the anchor for code that runs when block falls through.
func (c *checker) exitAnchor(block ast.NodeID) (ast.NodeID, Placement) {
	kids := c.tree.Children(block)
	if len(kids) == 0 {
		return block, PlaceInside
	}
	return kids[len(kids)-1], PlaceAfter
}

// linearObligations settles one obligation per linear binding.
func (c *checker) linearObligations() {
	for _, v := range c.fn.lin.all {
		self := pred.Var(v.name, v.key, pred.SortOther)
		goal := pred.Bin(pred.OpEq, pred.App("uses", pred.SortInt, self), pred.Int(1))
		o := c.obligate(KindLinearity, v.decl, 0, goal)
		if o == nil {
			continue
		}
		o.Decided = true
		o.Hint.Guard = nil
		o.Hint.Params = nil
		o.Context = v.snap
		if !v.bad {
			o.SolverResult = solver.ResultDischarged
			continue
		}
		o.SolverResult = solver.ResultCounterexample
		o.Counterexample = map[string]string{"uses": strconv.Itoa(v.count)}
		o.Context = v.badFacts
		if v.unused {
			o.Hint.Binding = v.name
			o.Hint.BindingType = v.typ
			o.Hint.Anchor = v.anchor
			o.Hint.Place = v.place
		}
	}
}
