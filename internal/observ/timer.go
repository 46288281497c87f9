// Package observ measures how long the phases of a pass take.
package observ

import (
	"time"

	"go.uber.org/zap/zapcore"
)

type phase struct {
	name string
	took time.Duration
	note string
}

// Timer records phases in the order they run. A pass owns its timer; it is
// not safe for concurrent use.
type Timer struct {
	now    func() time.Time
	phases []phase
}

func NewTimer() *Timer { return &Timer{now: time.Now} }

// Measure runs fn as the phase name and keeps the note fn returns. It
// returns the time fn took.
func (t *Timer) Measure(name string, fn func() string) time.Duration {
	start := t.now()
	note := fn()
	took := t.now().Sub(start)
	t.phases = append(t.phases, phase{name: name, took: took, note: note})
	return took
}

// PhaseReport is one measured phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report lists the phases of one pass with their sum.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

func (t *Timer) Report() Report {
	r := Report{Phases: make([]PhaseReport, 0, len(t.phases))}
	var total time.Duration
	for _, p := range t.phases {
		total += p.took
		r.Phases = append(r.Phases, PhaseReport{Name: p.name, DurationMS: millis(p.took), Note: p.note})
	}
	r.TotalMS = millis(total)
	return r
}

// Slowest returns the phase with the largest duration.
func (r Report) Slowest() (PhaseReport, bool) {
	if len(r.Phases) == 0 {
		return PhaseReport{}, false
	}
	best := r.Phases[0]
	for _, p := range r.Phases[1:] {
		if p.DurationMS > best.DurationMS {
			best = p
		}
	}
	return best, true
}

// MarshalLogObject lets a report be logged with zap.Object.
func (r Report) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, p := range r.Phases {
		enc.AddFloat64(p.Name+"_ms", p.DurationMS)
	}
	enc.AddFloat64("total_ms", r.TotalMS)
	return nil
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
