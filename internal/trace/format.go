package trace

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Format is the encoding of written events.
type Format uint8

const (
	FormatAuto   Format = iota
	FormatText          // one indented line per event
	FormatNDJSON        // one JSON object per line
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".jsonl", ".json":
		return FormatNDJSON
	}
	return FormatText
}

// FormatEvent encodes ev as one line.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Appendf(nil, "{\"seq\":%d,\"error\":%q}\n", ev.Seq, err.Error())
		}
		return append(data, '\n')
	}
	return formatText(ev)
}

// formatText renders
//
//	15:04:05.000000 #12<3 > solve (discharged) 1.2ms {k=v}
//
// where #12<3 is the span and its parent and the arrow is ">" for begin,
// "<" for end, "." for a point and "~" for a heartbeat.
func formatText(ev *Event) []byte {
	var sb strings.Builder
	sb.WriteString(ev.Time.Format("15:04:05.000000"))
	fmt.Fprintf(&sb, " #%d", ev.SpanID)
	if ev.ParentID != 0 {
		fmt.Fprintf(&sb, "<%d", ev.ParentID)
	}
	sb.WriteString(strings.Repeat("  ", max(int(ev.Scope)-1, 0)))
	switch ev.Kind {
	case KindSpanBegin:
		sb.WriteString(" > ")
	case KindSpanEnd:
		sb.WriteString(" < ")
	case KindHeartbeat:
		sb.WriteString(" ~ ")
	default:
		sb.WriteString(" . ")
	}
	sb.WriteString(ev.Name)
	if ev.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", ev.Detail)
	}
	if ev.Kind == KindSpanEnd {
		fmt.Fprintf(&sb, " %s", ev.Elapsed.Round(time.Microsecond))
	}
	if len(ev.Extra) > 0 {
		keys := make([]string, 0, len(ev.Extra))
		for k := range ev.Extra {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k + "=" + ev.Extra[k])
		}
		sb.WriteString("}")
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}
