package trace

import (
	"fmt"
	"time"
)

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat // periodic liveness signal
)

var kindNames = [...]string{"unknown", "begin", "end", "point", "heartbeat"}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return kindNames[0]
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	// ScopeDriver is a whole Compile or Converge call.
	ScopeDriver Scope = iota + 1
	// ScopePass is one phase of a pass: canonicalize, check, solve, synthesize,
	// analyze or report.
	ScopePass
	// ScopeItem is the work on one obligation or repair target.
	ScopeItem
	ScopeNode
)

var scopeNames = [...]string{"unknown", "driver", "pass", "item", "node"}

func (s Scope) String() string {
	if int(s) >= len(scopeNames) {
		return scopeNames[0]
	}
	return scopeNames[s]
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event is a single trace record. Its JSON form is one NDJSON line.
type Event struct {
	Time     time.Time         `json:"time"`
	Seq      uint64            `json:"seq"`
	Kind     Kind              `json:"kind"`
	Scope    Scope             `json:"scope"`
	SpanID   uint64            `json:"span_id"`
	ParentID uint64            `json:"parent_id,omitempty"`
	Name     string            `json:"name"` // "solve", "obligation:refinement@n…#0"
	Detail   string            `json:"detail,omitempty"`
	Elapsed  time.Duration     `json:"elapsed_ns,omitempty"` // span end only
	Extra    map[string]string `json:"extra,omitempty"`
}

func (ev *Event) String() string {
	return fmt.Sprintf("%s %s %s#%d", ev.Kind, ev.Scope, ev.Name, ev.SpanID)
}
