package trace

import (
	"sync/atomic"
	"time"
)

var (
	seq     atomic.Uint64
	spanIDs atomic.Uint64
)

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 { return seq.Add(1) }

// Span is an open span. A Span from a disabled tracer or a filtered scope
// is inert: its methods do nothing and ID is 0, so children of a filtered
// span become roots.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// Begin opens a span under parent (0 for a root) and emits its begin event.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{}
	}
	s := &Span{tracer: t, id: spanIDs.Add(1), parent: parent, scope: scope, name: name, started: time.Now()}
	ev := s.event(KindSpanBegin, name, "")
	ev.Time = s.started
	t.Emit(ev)
	return s
}

func (s *Span) live() bool { return s != nil && s.tracer != nil }

func (s *Span) event(kind Kind, name, detail string) *Event {
	return &Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     name,
		Detail:   detail,
	}
}

// End emits the end event with detail and returns how long the span was
// open.
func (s *Span) End(detail string) time.Duration {
	if !s.live() {
		return 0
	}
	ev := s.event(KindSpanEnd, s.name, detail)
	ev.Elapsed = ev.Time.Sub(s.started)
	ev.Extra = s.extra
	s.tracer.Emit(ev)
	return ev.Elapsed
}

// Point emits an instant event inside the span.
func (s *Span) Point(name, detail string) {
	if s.live() {
		s.tracer.Emit(s.event(KindPoint, name, detail))
	}
}

// WithExtra attaches key=value to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if !s.live() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 1)
	}
	s.extra[key] = value
	return s
}

func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}
