package sema

import (
	"fmt"
	"maps"

	"refine/internal/ast"
	"refine/internal/facts"
	"refine/internal/pred"
	"refine/internal/solver"
	"refine/internal/source"
	"refine/internal/types"
)

// Kind classifies obligations by the rule that produced them.
type Kind uint8

const (
	KindRefinement Kind = iota + 1
	KindPrecondition
	KindPostcondition
	KindEffect
	KindLinearity
)

func (k Kind) String() string {
	switch k {
	case KindRefinement:
		return "refinement"
	case KindPrecondition:
		return "precondition"
	case KindPostcondition:
		return "postcondition"
	case KindEffect:
		return "effect"
	case KindLinearity:
		return "linearity"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Obligation is one proof goal at one use site. Only the verdict fields and
// RepairRefs change after extraction.
type Obligation struct {
	ID             string                `json:"id"`
	Kind           Kind                  `json:"kind"`
	Goal           *pred.Term            `json:"goal"`
	Primary        ast.NodeID            `json:"primary_node_id"`
	Span           source.Span           `json:"span"`
	Context        facts.Snapshot        `json:"context"`
	Related        []ast.NodeID          `json:"related_node_ids,omitempty"`
	SolverResult   solver.Result         `json:"solver_result"`
	Counterexample map[string]string     `json:"counterexample,omitempty"`
	UnknownReason  *solver.UnknownReason `json:"unknown_reason,omitempty"`
	RepairRefs     []string              `json:"repair_refs"`

	// Decided marks obligations settled during extraction (effects and
	// linearity). The solver is never consulted for them.
	Decided bool `json:"-"`
	Hint    Hint `json:"-"`
}

// ObligationID derives the ID from the rule, the site and the clause index, so
// an obligation keeps its ID across passes while its site survives.
func ObligationID(kind Kind, node ast.NodeID, clause int) string {
	return fmt.Sprintf("%s@%s#%d", kind, node, clause)
}

// Settle records a solver verdict.
func (o *Obligation) Settle(v solver.Verdict) {
	o.SolverResult = v.Result
	o.Counterexample = maps.Clone(v.Counterexample)
	o.UnknownReason = nil
	if v.Reason != nil {
		r := *v.Reason
		r.Witness = maps.Clone(r.Witness)
		o.UnknownReason = &r
	}
}

// Discharged reports whether the goal was proven.
func (o *Obligation) Discharged() bool { return o.SolverResult == solver.ResultDischarged }

// Premises returns the fact propositions the goal is checked against.
func (o *Obligation) Premises() []*pred.Term { return facts.Props(o.Context.Facts) }

// Hint carries what the repair templates need to know about the site.
type Hint struct {
	// Fn is the enclosing function declaration.
	Fn ast.NodeID
	// Guard is the goal as an expression of the program, ready to wrap
	// Primary with; nil when the goal has no faithful source form.
	Guard *ast.Fragment
	// Params lists the parameters of Fn the goal is about when it mentions
	// nothing else, in declaration order.
	Params []ast.NodeID
	// Missing is the effect set a function lacks.
	Missing types.EffectSet
	// Binding and BindingType name the linear value.
	Binding     string
	BindingType *types.Type
	// Anchor is where a consuming call goes; Place says how.
	Anchor ast.NodeID
	Place  Placement
}

// Placement says where a consuming call goes relative to Hint.Anchor.
type Placement uint8

const (
	PlaceBefore Placement = iota
	PlaceAfter
	PlaceInside // Anchor is an empty block
)

// Hole is a typed hole `?name` left in the program.
type Hole struct {
	ID         string      `json:"id"`
	Node       ast.NodeID  `json:"node_id"`
	Name       string      `json:"name"`
	Span       source.Span `json:"span"`
	Expected   *types.Type `json:"expected_type"`
	Candidates []string    `json:"candidates"`
}

// HoleID derives the ID of the hole at node.
func HoleID(node ast.NodeID) string { return "hole@" + node.String() }
