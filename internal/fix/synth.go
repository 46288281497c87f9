// Package fix synthesizes repair candidates for the problems a pass found,
// analyzes which of them can be applied together and selects batches.
package fix

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/patch"
	"refine/internal/sema"
	"refine/internal/solver"
	"refine/internal/source"
)

// ErrNoCandidates is returned when a selection picks nothing.
var ErrNoCandidates = errors.New("no applicable repair candidates")

// Options tune the templates.
type Options struct {
	// HighDistance is the largest edit distance a rename suggestion may
	// have and still be proposed with high confidence.
	HighDistance int `toml:"high_distance" validate:"gte=0,ltefield=MaxDistance"`
	// MaxDistance is the largest edit distance proposed at all.
	MaxDistance int `toml:"max_distance" validate:"gte=0,lte=8"`
}

var DefaultOptions = Options{HighDistance: 1, MaxDistance: 3}

// TargetKind says what a Target refers to.
type TargetKind uint8

const (
	TargetDiagnostic TargetKind = iota + 1
	TargetObligation
	TargetHole
)

func (k TargetKind) String() string {
	switch k {
	case TargetDiagnostic:
		return "diagnostic"
	case TargetObligation:
		return "obligation"
	case TargetHole:
		return "hole"
	}
	return fmt.Sprintf("TargetKind(%d)", k)
}

// Target is one problem repairs can be synthesized for.
type Target struct {
	Kind TargetKind
	ID   string
	Node ast.NodeID
	Span source.Span
}

// Synthesizer builds candidates over one checked tree. It only reads the
// tree and the check result, so Synthesize may run concurrently.
type Synthesizer struct {
	tree *ast.Tree
	res  *sema.Result
	opts Options

	diags map[string]*diag.Diagnostic
	obls  map[string]*sema.Obligation
	holes map[string]*sema.Hole
}

// NewSynthesizer prepares templates for tree and the result of checking it.
// Obligations must already carry their verdicts. Zero options mean
// DefaultOptions.
func NewSynthesizer(tree *ast.Tree, res *sema.Result, opts Options) *Synthesizer {
	if opts == (Options{}) {
		opts = DefaultOptions
	}
	opts.HighDistance = min(opts.HighDistance, opts.MaxDistance)
	s := &Synthesizer{
		tree:  tree,
		res:   res,
		opts:  opts,
		diags: make(map[string]*diag.Diagnostic, len(res.Diagnostics)),
		obls:  make(map[string]*sema.Obligation, len(res.Obligations)),
		holes: make(map[string]*sema.Hole, len(res.Holes)),
	}
	for i := range res.Diagnostics {
		s.diags[res.Diagnostics[i].ID] = &res.Diagnostics[i]
	}
	for _, o := range res.Obligations {
		s.obls[o.ID] = o
	}
	for i := range res.Holes {
		s.holes[res.Holes[i].ID] = &res.Holes[i]
	}
	return s
}

// Targets lists every diagnostic, every obligation that is not discharged
// and every hole.
func (s *Synthesizer) Targets() []Target {
	out := make([]Target, 0, len(s.diags)+len(s.holes))
	for _, d := range s.res.Diagnostics {
		out = append(out, Target{Kind: TargetDiagnostic, ID: d.ID, Node: d.Primary, Span: d.Span})
	}
	for _, o := range s.res.Obligations {
		if o.SolverResult != solver.ResultDischarged {
			out = append(out, Target{Kind: TargetObligation, ID: o.ID, Node: o.Primary, Span: o.Span})
		}
	}
	for _, h := range s.res.Holes {
		out = append(out, Target{Kind: TargetHole, ID: h.ID, Node: h.Node, Span: h.Span})
	}
	return out
}

// Synthesize returns the ranked candidates for one target. Targets without
// a matching template get none.
func (s *Synthesizer) Synthesize(tg Target) []Candidate {
	var cands []Candidate
	var code string
	switch tg.Kind {
	case TargetDiagnostic:
		d, ok := s.diags[tg.ID]
		if !ok {
			return nil
		}
		cands = s.forDiagnostic(d)
		code = d.Code.ID()
	case TargetObligation:
		o, ok := s.obls[tg.ID]
		if !ok {
			return nil
		}
		cands = s.forObligation(o)
	case TargetHole:
		h, ok := s.holes[tg.ID]
		if !ok {
			return nil
		}
		cands = s.forHole(h)
	}

	out := cands[:0]
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		if len(c.Edits) == 0 {
			continue
		}
		s.finish(&c, tg, code)
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	Rank(out)
	return out
}

// finish fills what every candidate of a target shares.
func (s *Synthesizer) finish(c *Candidate, tg Target, code string) {
	c.target = tg.ID
	c.Targets.NodeIDs = []ast.NodeID{tg.Node}
	c.ExpectedDelta = Delta{
		DiagnosticsResolved:   []string{},
		ObligationsDischarged: []string{},
		HolesFilled:           []string{},
	}
	switch tg.Kind {
	case TargetDiagnostic:
		c.Targets.DiagnosticCodes = []string{code}
		c.ExpectedDelta.DiagnosticsResolved = []string{tg.ID}
	case TargetObligation:
		c.Targets.ObligationIDs = []string{tg.ID}
		c.ExpectedDelta.ObligationsDischarged = []string{tg.ID}
	case TargetHole:
		c.Targets.HoleIDs = []string{tg.ID}
		c.ExpectedDelta.HolesFilled = []string{tg.ID}
	}
	c.Scope.NodeCount = 0
	for _, op := range c.Edits {
		c.Scope.NodeCount += s.weight(op)
	}
	c.ID = makeID(tg.ID, c.Edits)
}

// weight counts the nodes an op creates, removes or renames.
func (s *Synthesizer) weight(op patch.Op) int {
	switch op.Kind {
	case patch.OpDeleteNode:
		return len(s.tree.Subtree(op.Target))
	case patch.OpWidenEffect, patch.OpRenameSymbol, patch.OpRenameField, patch.OpRename:
		return 1
	}
	return fragmentSize(s.tree, op.Fragment)
}

func fragmentSize(t *ast.Tree, f *ast.Fragment) int {
	if f == nil {
		return 0
	}
	switch {
	case f.Ref.IsValid():
		return 0
	case f.Clone.IsValid():
		return len(t.Subtree(f.Clone))
	}
	n := 1
	for _, kid := range f.Children {
		n += fragmentSize(t, kid)
	}
	return n
}

// signatureNames lists the declared and built-in function names.
func (s *Synthesizer) signatureNames() []string {
	return slices.Sorted(maps.Keys(s.res.Signatures))
}
