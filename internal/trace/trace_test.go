package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func names(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind.String()+":"+ev.Name)
	}
	return out
}

func TestLevelFiltersScopes(t *testing.T) {
	ring := NewRingTracer(16, LevelPhase)
	root := Begin(ring, ScopeDriver, "compile", 0)
	phase := Begin(ring, ScopePass, "solve", root.ID())
	item := Begin(ring, ScopeItem, "obligation:x", phase.ID())
	if item.ID() != 0 {
		t.Errorf("item span opened at phase level")
	}
	item.End("discharged")
	phase.End("")
	root.End("success")

	want := []string{"begin:compile", "begin:solve", "end:solve", "end:compile"}
	got := ring.Snapshot()
	if diff := cmp.Diff(want, names(got)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if got[1].ParentID != root.ID() || got[3].Detail != "success" {
		t.Errorf("events = %+v", got)
	}
}

func TestRingWraps(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	sp := Begin(ring, ScopeDriver, "d", 0)
	for _, n := range []string{"a", "b", "c", "e"} {
		sp.Point(n, "")
	}
	if diff := cmp.Diff([]string{"point:b", "point:c", "point:e"}, names(ring.Snapshot())); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"off", "Phase", "DETAIL"} {
		l, err := ParseLevel(s)
		if err != nil || !strings.EqualFold(l.String(), s) {
			t.Errorf("ParseLevel(%q) = %v, %v", s, l, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Errorf("unknown level accepted")
	}
	if m, err := ParseMode("both"); err != nil || m != ModeBoth {
		t.Errorf("ParseMode = %v, %v", m, err)
	}
	if _, err := ParseMode("unknown"); err == nil {
		t.Errorf("unknown mode accepted")
	}
}

func TestStreamFormats(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Mode: ModeStream, Output: &buf, Format: FormatNDJSON})
	if err != nil {
		t.Fatal(err)
	}
	Begin(tr, ScopePass, "check", 7).WithExtra("nodes", "12").End("ok")
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	var end struct {
		Kind     string            `json:"kind"`
		Scope    string            `json:"scope"`
		ParentID uint64            `json:"parent_id"`
		Detail   string            `json:"detail"`
		Extra    map[string]string `json:"extra"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &end); err != nil {
		t.Fatal(err)
	}
	if end.Kind != "end" || end.Scope != "pass" || end.ParentID != 7 || end.Detail != "ok" || end.Extra["nodes"] != "12" {
		t.Errorf("end event = %+v", end)
	}

	text := string(formatText(&Event{Kind: KindSpanEnd, Scope: ScopeItem, SpanID: 4, ParentID: 2, Name: "target:t", Detail: "3", Elapsed: time.Millisecond, Extra: map[string]string{"b": "2", "a": "1"}}))
	if !strings.HasSuffix(text, " #4<2     < target:t (3) 1ms {a=1, b=2}\n") {
		t.Errorf("text = %q", text)
	}
}

func TestOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff, Mode: ModeStream, OutputPath: "/nonexistent/dir/trace"})
	if err != nil || tr != Nop {
		t.Fatalf("New = %v, %v", tr, err)
	}
	sp := Begin(tr, ScopeDriver, "compile", 0)
	if sp.ID() != 0 || sp.End("x") != 0 {
		t.Errorf("span from Nop is live")
	}
}

func TestDumpBoth(t *testing.T) {
	var stream bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Mode: ModeBoth, Output: &stream, Format: FormatText})
	if err != nil {
		t.Fatal(err)
	}
	Begin(tr, ScopeDriver, "compile", 0).End("error")
	var dump bytes.Buffer
	if err := Dump(tr, &dump, FormatText); err != nil {
		t.Fatal(err)
	}
	if dump.String() != stream.String() || !strings.Contains(dump.String(), "< compile (error)") {
		t.Errorf("dump = %q, stream = %q", dump.String(), stream.String())
	}
}

func TestContext(t *testing.T) {
	ring := NewRingTracer(8, LevelPhase)
	ctx := WithTracer(context.Background(), ring)
	if FromContext(ctx) != ring || FromContext(context.Background()) != Nop {
		t.Fatalf("FromContext lost the tracer")
	}
	sp := Begin(ring, ScopeDriver, "converge", 0)
	ctx = WithSpan(ctx, sp)
	if ParentID(ctx) != sp.ID() || ParentID(context.Background()) != 0 {
		t.Errorf("parent = %d, want %d", ParentID(ctx), sp.ID())
	}
}

func TestHeartbeat(t *testing.T) {
	ring := NewRingTracer(64, LevelPhase)
	h := StartHeartbeat(ring, time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for len(ring.Snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	h.Stop()
	evs := ring.Snapshot()
	if len(evs) < 2 || evs[0].Kind != KindHeartbeat || evs[0].Detail != "#1" {
		t.Fatalf("events = %+v", evs)
	}
	if StartHeartbeat(Nop, time.Millisecond) != nil {
		t.Errorf("heartbeat started on Nop")
	}
}
