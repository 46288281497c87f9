package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"refine/internal/ast"
	"refine/internal/fix"
	"refine/internal/observ"
	"refine/internal/patch"
	"refine/internal/sema"
	"refine/internal/solver"
	"refine/internal/trace"
)

// pass holds the state of one Compile call.
type pass struct {
	opts  Options
	log   *zap.Logger
	span  uint64
	timer *observ.Timer
}

// phase runs fn as a named, traced and timed step. fn receives the span ID
// its own spans nest under and returns a note for the trace.
func (p *pass) phase(name string, fn func(parent uint64) string) {
	span := trace.Begin(p.opts.Tracer, trace.ScopePass, name, p.span)
	took := p.timer.Measure(name, func() string {
		note := fn(span.ID())
		span.End(note)
		return note
	})
	p.log.Debug("phase done", zap.String("phase", name), zap.Duration("took", took))
}

func (p *pass) run(ctx context.Context, input *ast.Tree) (*Result, error) {
	var (
		tree *ast.Tree
		res  *sema.Result
		err  error
	)
	p.phase("canonicalize", func(uint64) string {
		tree, err = patch.Canonicalize(input)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%d nodes", tree.Len())
	})
	if err != nil {
		return nil, err
	}

	p.phase("check", func(parent uint64) string {
		res, err = sema.Check(tree, sema.Options{
			Tracer:         p.opts.Tracer,
			Parent:         parent,
			MaxDiagnostics: p.opts.MaxDiagnostics,
		})
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%d obligations, %d diagnostics, %d holes", len(res.Obligations), len(res.Diagnostics), len(res.Holes))
	})
	if err != nil {
		return nil, err
	}

	p.phase("solve", func(parent uint64) string {
		err = p.solve(ctx, parent, res.Obligations)
		return ""
	})
	if err != nil {
		return nil, err
	}

	var repairs []fix.Candidate
	p.phase("synthesize", func(parent uint64) string {
		repairs, err = p.synthesize(tree, res, parent)
		return fmt.Sprintf("%d candidates", len(repairs))
	})
	if err != nil {
		return nil, err
	}

	p.phase("analyze", func(uint64) string {
		fix.Analyze(tree, repairs)
		return ""
	})

	var out *Result
	p.phase("report", func(uint64) string {
		out, err = report(tree, res, repairs)
		if err != nil {
			return err.Error()
		}
		return out.Status.String()
	})
	if err != nil {
		return nil, err
	}
	if p.opts.EnableTimings {
		r := p.timer.Report()
		out.Stats.Timings = &r
		if slow, ok := r.Slowest(); ok {
			p.log.Debug("timings", zap.Object("phases", r), zap.String("slowest", slow.Name))
		}
	}
	p.log.Info("pass complete",
		zap.Stringer("status", out.Status),
		zap.Int("obligations", out.Stats.Obligations),
		zap.Int("discharged", out.Stats.Discharged),
		zap.Int("diagnostics", out.Stats.Diagnostics),
		zap.Int("repairs", out.Stats.Repairs))
	return out, nil
}

// solve settles every obligation extraction left open. Each goroutine owns
// one obligation, so no locking is needed.
func (p *pass) solve(ctx context.Context, parent uint64, obls []*sema.Obligation) error {
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for _, o := range obls {
		if o.Decided {
			continue
		}
		g.Go(recovered(func() error {
			p.decide(ctx, parent, o)
			return nil
		}))
	}
	return g.Wait()
}

func (p *pass) decide(ctx context.Context, parent uint64, o *sema.Obligation) {
	span := trace.Begin(p.opts.Tracer, trace.ScopeItem, "obligation:"+o.ID, parent)
	if p.opts.SolverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.SolverTimeout)
		defer cancel()
	}
	v := p.opts.Decider.Decide(ctx, o.Goal, o.Premises())
	o.Settle(v)
	if v.Reason != nil {
		span.WithExtra("category", string(v.Reason.Category))
		if v.Reason.Category == solver.CatTimeout {
			p.log.Warn("goal timed out", zap.String("obligation", o.ID), zap.String("goal", o.Goal.String()))
		}
	}
	span.End(v.Result.String())
}

// synthesize runs the templates for every target. Results are collected by
// target index, so their order does not depend on scheduling.
func (p *pass) synthesize(tree *ast.Tree, res *sema.Result, parent uint64) ([]fix.Candidate, error) {
	syn := fix.NewSynthesizer(tree, res, p.opts.Fix)
	targets := syn.Targets()
	groups := make([]group, len(targets))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, tg := range targets {
		g.Go(recovered(func() error {
			span := trace.Begin(p.opts.Tracer, trace.ScopeItem, "target:"+tg.ID, parent)
			groups[i] = group{target: tg, cands: syn.Synthesize(tg)}
			span.End(fmt.Sprintf("%d candidates", len(groups[i].cands)))
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return flatten(groups), nil
}

// recovered turns a panic inside a worker into a structural error.
func recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: worker panic: %v", ast.ErrStructure, r)
			}
		}()
		return fn()
	}
}
