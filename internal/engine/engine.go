// Package engine runs passes of the obligation engine. A pass canonicalizes
// the input tree, extracts obligations and diagnostics, solves the
// obligations on a worker pool, synthesizes repair candidates and analyzes
// which of them can be applied together. Applying repairs is left to the
// caller (ApplyRepairs, ApplyCandidates) or to Converge.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/fix"
	"refine/internal/observ"
	"refine/internal/sema"
	"refine/internal/solver"
	"refine/internal/trace"
)

// Status summarizes a pass.
type Status uint8

const (
	// StatusSuccess means no diagnostics, every obligation discharged and
	// no holes left.
	StatusSuccess Status = iota
	// StatusIncomplete means no diagnostics, but some obligation is not
	// discharged or some hole is unfilled.
	StatusIncomplete
	// StatusError means at least one diagnostic.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusIncomplete:
		return "incomplete"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Options configure a pass. The zero value is usable.
type Options struct {
	// Workers bounds the solving and synthesis pool; zero means GOMAXPROCS.
	Workers int
	// SolverTimeout bounds a single goal; zero leaves only the step budget.
	SolverTimeout time.Duration
	Solver        solver.Options
	// Decider replaces the built-in solver.
	Decider solver.Decider
	// Cache memoizes verdicts, also across passes.
	Cache solver.Cache
	Fix   fix.Options

	Logger *zap.Logger
	Tracer trace.Tracer
	// EnableTimings adds phase timings to the stats. Off by default so
	// results of identical passes compare equal.
	EnableTimings  bool
	MaxDiagnostics int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = trace.Nop
	}
	if o.Decider == nil {
		o.Decider = solver.New(o.Solver)
	}
	if o.Cache != nil {
		o.Decider = solver.Cached{Decider: o.Decider, Cache: o.Cache}
	}
	return o
}

// Stats counts what a pass produced.
type Stats struct {
	Nodes           int            `json:"nodes"`
	Obligations     int            `json:"obligations"`
	Discharged      int            `json:"discharged"`
	Counterexamples int            `json:"counterexamples"`
	Unknown         int            `json:"unknown"`
	Diagnostics     int            `json:"diagnostics"`
	Holes           int            `json:"holes"`
	Repairs         int            `json:"repairs"`
	Batches         int            `json:"batches"`
	Timings         *observ.Report `json:"timings,omitempty"`
}

// Result is the outcome of one pass. Lists are never nil and are sorted by
// the source position of their primary node, then by ID. Repairs are
// grouped by the problem they address and ranked within a group.
type Result struct {
	Status       Status             `json:"status"`
	CanonicalAST *ast.Tree          `json:"canonical_ast"`
	Repairs      []fix.Candidate    `json:"repairs"`
	Diagnostics  []diag.Diagnostic  `json:"diagnostics"`
	Obligations  []*sema.Obligation `json:"obligations"`
	Holes        []sema.Hole        `json:"holes"`
	// Output is the rendered program of a successful pass.
	Output string `json:"output,omitempty"`
	Stats  Stats  `json:"stats"`
}

// Repair returns the candidate with the given ID.
func (r *Result) Repair(id string) (fix.Candidate, bool) {
	for _, c := range r.Repairs {
		if c.ID == id {
			return c, true
		}
	}
	return fix.Candidate{}, false
}

// Compile runs one pass over tree, which is not modified. A context that is
// already done fails the pass; once started, a pass runs to completion and
// solver deadlines come from SolverTimeout alone. Malformed trees and
// panics inside the pass are reported as errors wrapping ast.ErrStructure.
func Compile(ctx context.Context, tree *ast.Tree, opts Options) (res *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: nil tree", ast.ErrStructure)
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.FromContext(ctx)
	}
	opts = opts.withDefaults()
	span := trace.Begin(opts.Tracer, trace.ScopeDriver, "compile", trace.ParentID(ctx))
	p := &pass{
		opts:  opts,
		log:   opts.Logger,
		span:  span.ID(),
		timer: observ.NewTimer(),
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: pass aborted: %v", ast.ErrStructure, r)
			p.log.Error("pass aborted", zap.Any("panic", r))
		}
		detail := "failed"
		if res != nil {
			detail = res.Status.String()
		}
		span.End(detail)
	}()
	return p.run(context.WithoutCancel(ctx), tree)
}
