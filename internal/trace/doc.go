// Package trace records what a pass spends its time on: the driver span of
// each Compile call, one span per phase, and with LevelDetail one span per
// obligation solved and per repair target synthesized. It exists to find
// slow goals and hung workers.
//
// Tracing is off unless asked for:
//
//	refine check --trace=- --trace-level=phase program.json
//	refine fix --trace=run.ndjson --trace-level=detail --trace-heartbeat=1s program.json
//
// A StreamTracer writes each event as it happens, a RingTracer keeps the
// most recent ones in memory, and ModeBoth does both. Spans are opened with
// Begin and closed with End; the parent span ID links phases to their
// Compile call and obligations to the solve phase.
//
//	span := trace.Begin(t, trace.ScopePass, "solve", parent)
//	defer span.End("")
package trace
