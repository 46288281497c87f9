package diag

import (
	"refine/internal/ast"
	"refine/internal/source"
)

// Reporter receives diagnostics as the checker finds them.
type Reporter interface {
	Report(d Diagnostic)
}

// BagReporter stores into a Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag != nil {
		r.Bag.Add(d)
	}
}

// DedupReporter forwards the first diagnostic of every ID and drops the
// rest, so a problem found twice on one node is reported once.
type DedupReporter struct {
	next Reporter
	seen map[string]struct{}
}

func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{next: next, seen: make(map[string]struct{})}
}

func (r *DedupReporter) Report(d Diagnostic) {
	if _, ok := r.seen[d.ID]; ok {
		return
	}
	r.seen[d.ID] = struct{}{}
	if r.next != nil {
		r.next.Report(d)
	}
}

// ReportBuilder fills in a diagnostic before it reaches a Reporter. All
// methods accept a nil builder, which the checker returns for problems it
// does not report.
type ReportBuilder struct {
	to   Reporter
	d    Diagnostic
	sent bool
}

// ReportError starts an error diagnostic; nothing is reported until Emit.
func ReportError(r Reporter, code Code, primary ast.NodeID, sp source.Span, msg string) *ReportBuilder {
	return &ReportBuilder{to: r, d: New(SevError, code, primary, sp, msg)}
}

func (b *ReportBuilder) WithNote(id ast.NodeID, sp source.Span, msg string) *ReportBuilder {
	if b != nil {
		b.d = b.d.WithNote(id, sp, msg)
	}
	return b
}

func (b *ReportBuilder) WithSecondary(ids ...ast.NodeID) *ReportBuilder {
	if b != nil {
		b.d = b.d.WithSecondary(ids...)
	}
	return b
}

func (b *ReportBuilder) With(key, value string) *ReportBuilder {
	if b != nil {
		b.d = b.d.With(key, value)
	}
	return b
}

// Emit reports the diagnostic. Later calls do nothing.
func (b *ReportBuilder) Emit() {
	if b == nil || b.sent {
		return
	}
	b.sent = true
	if b.to != nil {
		b.to.Report(b.d)
	}
}

func (b *ReportBuilder) Diagnostic() Diagnostic {
	if b == nil {
		return Diagnostic{}
	}
	return b.d
}
