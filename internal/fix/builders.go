package fix

import (
	"refine/internal/ast"
	"refine/internal/patch"
)

// Option mutates a candidate during construction.
type Option func(*Candidate)

// WithConfidence overrides the confidence.
func WithConfidence(c Confidence) Option {
	return func(cand *Candidate) {
		cand.Confidence = c
	}
}

// WithSafety overrides the safety classification.
func WithSafety(s Safety) Option {
	return func(cand *Candidate) {
		cand.Safety = s
	}
}

// WithKind overrides the repair kind.
func WithKind(k Kind) Option {
	return func(cand *Candidate) {
		cand.Kind = k
	}
}

// WithRationale explains the candidate to a reviewer.
func WithRationale(text string) Option {
	return func(cand *Candidate) {
		cand.Rationale = text
	}
}

// CrossesFunction marks candidates whose effect reaches callers.
func CrossesFunction() Option {
	return func(cand *Candidate) {
		cand.Scope.CrossesFunction = true
	}
}

// WithEdits appends more edits to the candidate.
func WithEdits(ops ...patch.Op) Option {
	return func(cand *Candidate) {
		cand.Edits = append(cand.Edits, ops...)
	}
}

func applyOptions(c Candidate, opts []Option) Candidate {
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

func newCandidate(title string, op patch.Op, opts []Option) Candidate {
	c := Candidate{
		Title:      title,
		Confidence: ConfidenceMedium,
		Safety:     SafetyBehaviorChanging,
		Kind:       KindLocalFix,
		Edits:      []patch.Op{op},
	}
	return applyOptions(c, opts)
}

// Wrap builds a candidate that puts target inside frag; frag refers to the
// target with ast.RefTo.
func Wrap(title string, target ast.NodeID, frag *ast.Fragment, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpWrap, Target: target, Fragment: frag}, opts)
}

// ReplaceNode swaps target for frag.
func ReplaceNode(title string, target ast.NodeID, frag *ast.Fragment, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpReplaceNode, Target: target, Fragment: frag}, opts)
}

// InsertBefore places frag in front of target in its parent list.
func InsertBefore(title string, target ast.NodeID, frag *ast.Fragment, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpInsertBefore, Target: target, Fragment: frag}, opts)
}

// InsertAfter places frag behind target in its parent list.
func InsertAfter(title string, target ast.NodeID, frag *ast.Fragment, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpInsertAfter, Target: target, Fragment: frag}, opts)
}

// DeleteNode removes target from its parent list.
func DeleteNode(title string, target ast.NodeID, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpDeleteNode, Target: target}, opts)
}

// WidenEffect adds effects to the function fn.
func WidenEffect(title string, fn ast.NodeID, effects []string, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpWidenEffect, Target: fn, Effects: effects}, opts)
}

// RenameSymbol points the reference target at name.
func RenameSymbol(title string, target ast.NodeID, name string, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpRenameSymbol, Target: target, Name: name}, opts)
}

// RenameField renames a field access or initializer.
func RenameField(title string, target ast.NodeID, name string, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpRenameField, Target: target, Name: name}, opts)
}

// AddField adds a field initialized to value to a record literal.
func AddField(title string, target ast.NodeID, name string, value *ast.Fragment, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpAddField, Target: target, Name: name, Fragment: value}, opts)
}

// AddRefinement refines the declared type of a parameter or let with the
// predicate p over v.
func AddRefinement(title string, target ast.NodeID, v string, p *ast.Fragment, opts ...Option) Candidate {
	return newCandidate(title, patch.Op{Kind: patch.OpAddRefinement, Target: target, Name: v, Fragment: p}, opts)
}
