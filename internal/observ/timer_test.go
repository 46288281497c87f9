package observ

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zapcore"
)

// stepClock advances by step on every reading.
func stepClock(step time.Duration) func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	tm.now = stepClock(2 * time.Millisecond)
	if r := tm.Report(); r.Phases == nil || len(r.Phases) != 0 || r.TotalMS != 0 {
		t.Fatalf("empty report = %+v", r)
	}

	if took := tm.Measure("extract", func() string { return "3 obligations" }); took != 2*time.Millisecond {
		t.Errorf("took = %v", took)
	}
	tm.Measure("solve", func() string { return "" })

	want := Report{
		TotalMS: 4,
		Phases: []PhaseReport{
			{Name: "extract", DurationMS: 2, Note: "3 obligations"},
			{Name: "solve", DurationMS: 2},
		},
	}
	if diff := cmp.Diff(want, tm.Report()); diff != "" {
		t.Errorf("report (-want +got):\n%s", diff)
	}
}

func TestSlowest(t *testing.T) {
	if _, ok := (Report{}).Slowest(); ok {
		t.Errorf("empty report has a slowest phase")
	}
	r := Report{Phases: []PhaseReport{{Name: "a", DurationMS: 1}, {Name: "b", DurationMS: 5}, {Name: "c", DurationMS: 5}}}
	if p, _ := r.Slowest(); p.Name != "b" {
		t.Errorf("slowest = %+v", p)
	}
}

func TestMarshalLogObject(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	r := Report{TotalMS: 3, Phases: []PhaseReport{{Name: "solve", DurationMS: 3}}}
	if err := r.MarshalLogObject(enc); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"solve_ms": 3.0, "total_ms": 3.0}
	if diff := cmp.Diff(want, enc.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
}
