package diagfmt

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"refine/internal/ast"
	"refine/internal/diag"
	"refine/internal/engine"
	"refine/internal/sema"
	"refine/internal/solver"
	"refine/internal/source"
)

type palette struct {
	err, warn, info *color.Color
	ok, unknown     *color.Color
	loc, gutter     *color.Color
	accent, dim     *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:     color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow, color.Bold),
		info:    color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgGreen, color.Bold),
		unknown: color.New(color.FgMagenta, color.Bold),
		loc:     color.New(color.FgBlue),
		gutter:  color.New(color.FgBlue, color.Bold),
		accent:  color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.ok, p.unknown, p.loc, p.gutter, p.accent, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

type printer struct {
	w    io.Writer
	res  *engine.Result
	fs   *source.FileSet
	opts PrettyOpts
	pal  palette
}

// Pretty writes a human-readable report of res: diagnostics, then every
// obligation that is not discharged, then unfilled holes, then a summary
// line. Each item shows its location as path:line:col with the source line
// when fs resolves its span, and as a node ID otherwise.
func Pretty(w io.Writer, res *engine.Result, fs *source.FileSet, opts PrettyOpts) {
	if opts.Preview {
		opts.Repairs = true
	}
	p := &printer{w: w, res: res, fs: fs, opts: opts, pal: newPalette(opts.Color)}

	for i := range res.Diagnostics {
		p.diagnostic(&res.Diagnostics[i])
	}
	for _, o := range res.Obligations {
		if o.SolverResult == solver.ResultDischarged && !opts.Discharged {
			continue
		}
		p.obligation(o)
	}
	for i := range res.Holes {
		p.hole(&res.Holes[i])
	}
	if opts.Timings && res.Stats.Timings != nil {
		p.timings()
	}
	p.summary()
}

func (p *printer) diagnostic(d *diag.Diagnostic) {
	sev := p.pal.err
	switch d.Severity {
	case diag.SevWarning:
		sev = p.pal.warn
	case diag.SevInfo:
		sev = p.pal.info
	}
	label := d.Severity.String()
	fmt.Fprintf(p.w, "%s%s %s\n", sev.Sprintf("%s[%s]", label, d.Code.ID()), p.pal.accent.Sprint(":"), p.fit(d.Message))
	p.location(d.Primary, d.Span)
	for _, n := range d.Notes {
		fmt.Fprintf(p.w, "  %s note: %s\n", p.pal.gutter.Sprint("="), p.fit(n.Msg))
		p.location(n.Node, n.Span)
	}
	p.repairs(d.RepairRefs)
	fmt.Fprintln(p.w)
}

func (p *printer) obligation(o *sema.Obligation) {
	verdict := p.pal.ok
	switch o.SolverResult {
	case solver.ResultCounterexample:
		verdict = p.pal.err
	case solver.ResultUnknown:
		verdict = p.pal.unknown
	}
	fmt.Fprintf(p.w, "%s %s: %s\n", p.pal.accent.Sprint("obligation"), o.ID, verdict.Sprint(o.SolverResult.String()))
	p.location(o.Primary, o.Span)
	if o.Goal != nil {
		fmt.Fprintf(p.w, "  %s goal: %s\n", p.pal.gutter.Sprint("="), p.fit(o.Goal.String()))
	}
	if len(o.Counterexample) > 0 {
		fmt.Fprintf(p.w, "  %s counterexample: %s\n", p.pal.gutter.Sprint("="), p.fit(formatModel(o.Counterexample)))
	}
	if r := o.UnknownReason; r != nil {
		msg := string(r.Category)
		if r.Detail != "" {
			msg += ": " + r.Detail
		}
		fmt.Fprintf(p.w, "  %s unknown: %s\n", p.pal.gutter.Sprint("="), p.fit(msg))
		if len(r.Witness) > 0 {
			fmt.Fprintf(p.w, "  %s witness: %s\n", p.pal.gutter.Sprint("="), p.fit(formatModel(r.Witness)))
		}
	}
	p.repairs(o.RepairRefs)
	fmt.Fprintln(p.w)
}

func (p *printer) hole(h *sema.Hole) {
	msg := "?" + h.Name
	if h.Expected != nil {
		msg += " : " + h.Expected.String()
	}
	fmt.Fprintf(p.w, "%s %s: %s\n", p.pal.accent.Sprint("hole"), h.ID, p.pal.unknown.Sprint(msg))
	p.location(h.Node, h.Span)
	if len(h.Candidates) > 0 {
		fmt.Fprintf(p.w, "  %s candidates: %s\n", p.pal.gutter.Sprint("="), p.fit(strings.Join(h.Candidates, ", ")))
	}
	fmt.Fprintln(p.w)
}

// location prints the "-->" line and, when the span resolves, the source
// line with the span underlined.
func (p *printer) location(id ast.NodeID, span source.Span) {
	arrow := p.pal.gutter.Sprint("-->")
	start, end, ok := p.fs.Resolve(span)
	if !ok {
		fmt.Fprintf(p.w, "  %s %s\n", arrow, p.pal.loc.Sprintf("%s @ %d..%d", id, span.Start, span.End))
		return
	}
	path := formatPath(p.fs.Get(span.File).Path, p.opts.PathMode, p.opts.BaseDir)
	fmt.Fprintf(p.w, "  %s %s\n", arrow, p.pal.loc.Sprintf("%s:%d:%d", path, start.Line, start.Col))

	line := p.fs.Get(span.File).Line(start.Line)
	if line == "" {
		return
	}
	num := strconv.FormatUint(uint64(start.Line), 10)
	pad := strings.Repeat(" ", len(num))
	bar := p.pal.gutter.Sprint("|")
	fmt.Fprintf(p.w, " %s %s\n", pad, bar)
	fmt.Fprintf(p.w, " %s %s %s\n", p.pal.gutter.Sprint(num), bar, line)
	fmt.Fprintf(p.w, " %s %s %s\n", pad, bar, p.pal.err.Sprint(underline(line, start, end)))
}

// underline returns the caret line for the columns [start, end) of line.
// Spans that continue past the line are underlined to its end. Widths are
// display columns, so wide runes get as many carets as they occupy.
func underline(line string, start, end source.LineCol) string {
	from := min(int(start.Col)-1, len(line))
	to := len(line)
	if end.Line == start.Line {
		to = min(max(int(end.Col)-1, from), len(line))
	}
	lead := runewidth.StringWidth(strings.ReplaceAll(line[:from], "\t", " "))
	carets := max(runewidth.StringWidth(line[from:to]), 1)
	return strings.Repeat(" ", lead) + strings.Repeat("^", carets)
}

func (p *printer) repairs(refs []string) {
	if !p.opts.Repairs {
		return
	}
	for _, id := range refs {
		c, ok := p.res.Repair(id)
		if !ok {
			continue
		}
		tag := p.pal.dim.Sprintf("(%s, %s)", c.Confidence, c.Safety)
		fmt.Fprintf(p.w, "  %s repair %s: %s %s\n", p.pal.gutter.Sprint("="), p.pal.accent.Sprint(c.ID), p.fit(c.Title), tag)
		if !p.opts.Preview {
			continue
		}
		pv, err := buildRepairPreview(p.res.CanonicalAST, c)
		if err != nil {
			fmt.Fprintf(p.w, "      %s\n", p.pal.dim.Sprintf("preview unavailable: %v", err))
			continue
		}
		for _, l := range pv.before {
			fmt.Fprintf(p.w, "      %s\n", p.pal.err.Sprint("- "+l))
		}
		for _, l := range pv.after {
			fmt.Fprintf(p.w, "      %s\n", p.pal.ok.Sprint("+ "+l))
		}
	}
}

func (p *printer) timings() {
	report := p.res.Stats.Timings
	width := 0
	for _, ph := range report.Phases {
		width = max(width, runewidth.StringWidth(ph.Name))
	}
	fmt.Fprintln(p.w, p.pal.accent.Sprint("timings:"))
	for _, ph := range report.Phases {
		fmt.Fprintf(p.w, "  %s %8.2fms", runewidth.FillRight(ph.Name, width), ph.DurationMS)
		if ph.Note != "" {
			fmt.Fprintf(p.w, "  %s", p.pal.dim.Sprint(ph.Note))
		}
		fmt.Fprintln(p.w)
	}
	fmt.Fprintf(p.w, "  %s %8.2fms\n\n", runewidth.FillRight("total", width), report.TotalMS)
}

func (p *printer) summary() {
	st := p.res.Stats
	status := p.pal.ok
	switch p.res.Status {
	case engine.StatusIncomplete:
		status = p.pal.unknown
	case engine.StatusError:
		status = p.pal.err
	}
	fmt.Fprintf(p.w, "%s %s: %s, %d discharged, %d counterexample, %d unknown, %s, %s\n",
		p.pal.accent.Sprint("status"),
		status.Sprint(p.res.Status.String()),
		plural(st.Obligations, "obligation"),
		st.Discharged, st.Counterexamples, st.Unknown,
		plural(st.Diagnostics, "diagnostic"),
		plural(st.Repairs, "repair"),
	)
}

func (p *printer) fit(s string) string {
	if p.opts.Width <= 0 || runewidth.StringWidth(s) <= p.opts.Width {
		return s
	}
	if p.opts.Width <= 3 {
		return runewidth.Truncate(s, p.opts.Width, "")
	}
	return runewidth.Truncate(s, p.opts.Width, "...")
}

func formatModel(m map[string]string) string {
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, k+" = "+m[k])
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
