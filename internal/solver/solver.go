// Package solver decides proof goals against known facts.
//
// The decision procedure covers boolean combinations of linear integer and
// real comparisons, equality over every sort and the uninterpreted functions
// len, contains and at. It refutes facts ∧ ¬goal: negation normal form, a
// bounded disjunctive expansion, equality classes for non-numeric terms and
// Fourier–Motzkin elimination with integer tightening for arithmetic.
// Anything outside the fragment is abstracted away, which can only make
// refutation harder, so a discharged verdict is always backed by a real
// refutation.
package solver

import (
	"context"
	"errors"
	"fmt"

	"refine/internal/pred"
)

// Result is the outcome of deciding one goal.
type Result uint8

const (
	ResultUnknown Result = iota
	ResultDischarged
	ResultCounterexample
)

func (r Result) String() string {
	switch r {
	case ResultDischarged:
		return "discharged"
	case ResultCounterexample:
		return "counterexample"
	default:
		return "unknown"
	}
}

func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Result) UnmarshalText(text []byte) error {
	switch string(text) {
	case "discharged":
		*r = ResultDischarged
	case "counterexample":
		*r = ResultCounterexample
	case "unknown":
		*r = ResultUnknown
	default:
		return fmt.Errorf("unknown solver result %q", text)
	}
	return nil
}

// Category classifies unknown verdicts.
type Category string

const (
	CatIncompleteFacts Category = "incomplete_facts"
	CatNonlinear       Category = "nonlinear"
	CatQuantified      Category = "quantified"
	CatTimeout         Category = "timeout"
	CatUnsupported     Category = "unsupported"
)

// rank orders categories when several cubes give up for different reasons.
func (c Category) rank() int {
	switch c {
	case CatTimeout:
		return 4
	case CatQuantified:
		return 3
	case CatNonlinear:
		return 2
	case CatUnsupported:
		return 1
	default:
		return 0
	}
}

// UnknownReason explains an unknown verdict. Witness, when present, is an
// assignment that satisfies the facts but violates the goal.
type UnknownReason struct {
	Category Category          `json:"category" msgpack:"c"`
	Detail   string            `json:"detail,omitempty" msgpack:"d,omitempty"`
	Witness  map[string]string `json:"witness,omitempty" msgpack:"w,omitempty"`
}

// Verdict is the answer for one goal.
type Verdict struct {
	Result         Result            `json:"result" msgpack:"r"`
	Counterexample map[string]string `json:"counterexample,omitempty" msgpack:"cx,omitempty"`
	Reason         *UnknownReason    `json:"unknown_reason,omitempty" msgpack:"u,omitempty"`
}

func unknown(cat Category, detail string) Verdict {
	return Verdict{Result: ResultUnknown, Reason: &UnknownReason{Category: cat, Detail: detail}}
}

// Decider is the pluggable decision procedure.
type Decider interface {
	Decide(ctx context.Context, goal *pred.Term, facts []*pred.Term) Verdict
}

// Options bound the work done for a single goal.
type Options struct {
	MaxSteps     int
	MaxDisjuncts int
}

// DefaultOptions are used for zero fields.
var DefaultOptions = Options{MaxSteps: 20000, MaxDisjuncts: 512}

// Solver is the built-in Decider. It holds no mutable state and is safe for
// concurrent use.
type Solver struct {
	opts Options
}

// New returns a solver with the given budgets.
func New(opts Options) *Solver {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultOptions.MaxSteps
	}
	if opts.MaxDisjuncts <= 0 {
		opts.MaxDisjuncts = DefaultOptions.MaxDisjuncts
	}
	return &Solver{opts: opts}
}

var errBudget = errors.New("solver budget exhausted")

// search carries the budget of one Decide call.
type search struct {
	ctx   context.Context
	opts  Options
	steps int
}

func (s *search) tick(n int) error {
	s.steps += n
	if s.steps > s.opts.MaxSteps {
		return errBudget
	}
	if s.ctx.Err() != nil {
		return errBudget
	}
	return nil
}

// Decide implements Decider.
func (sv *Solver) Decide(ctx context.Context, goal *pred.Term, facts []*pred.Term) Verdict {
	if ctx.Err() != nil {
		return unknown(CatTimeout, "deadline exceeded before solving")
	}
	s := &search{ctx: ctx, opts: sv.opts}
	premise := pred.And(facts...)
	vars := pred.And(premise, goal).FreeVars()

	refute := s.satisfy(pred.And(premise, pred.Not(goal)))
	switch refute.status {
	case statusUnsat:
		return Verdict{Result: ResultDischarged}
	case statusUnknown:
		return unknown(refute.cat, refute.detail)
	}

	witness := refute.model.render(vars)
	holds := s.satisfy(pred.And(premise, goal))
	if holds.status == statusUnsat {
		return Verdict{Result: ResultCounterexample, Counterexample: witness}
	}
	v := unknown(CatIncompleteFacts, "the known facts neither prove nor refute the goal")
	v.Reason.Witness = witness
	return v
}

type status uint8

const (
	statusUnsat status = iota
	statusSat
	statusUnknown
)

type outcome struct {
	status status
	model  *model
	cat    Category
	detail string
}

// satisfy looks for a verified model of f.
func (s *search) satisfy(f *pred.Term) outcome {
	cubes, err := s.dnf(nnf(f, false))
	if err != nil {
		return outcome{status: statusUnknown, cat: CatTimeout, detail: "case split budget exceeded"}
	}
	best := outcome{status: statusUnsat}
	for _, cube := range cubes {
		res := s.solveCube(cube)
		switch res.status {
		case statusSat:
			return res
		case statusUnknown:
			if res.cat == CatTimeout {
				return res
			}
			if best.status != statusUnknown || res.cat.rank() > best.cat.rank() {
				best = res
			}
		}
	}
	return best
}
