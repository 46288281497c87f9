// Package diag defines the diagnostic model shared by the checker, the repair
// synthesizer and the renderers.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - ID – derived from Code and the primary node (see MakeID), stable across
//     passes as long as the node survives.
//   - Severity – info, warning or error.
//   - Code – numeric identifier rendered as SEMnnnn, with a kind and a title.
//   - Primary – the node the problem is attached to; Span is its source span.
//   - Secondary and Notes – related nodes.
//   - Structured – machine-readable details keyed by name, always with "kind".
//   - RepairRefs – IDs of repair candidates, filled after synthesis.
//
// Diagnostics only describe static errors that are not proof obligations;
// failed refinements, contracts, effects and linearity live in package sema
// as obligations.
//
// # Emitting diagnostics
//
// The checker emits through a Reporter with ReportError and the builder chain
// (WithNote, With, Emit). DedupReporter drops repeated IDs and BagReporter
// collects into a Bag, which caps the count and sorts by span.
//
// Rendering lives in internal/diagfmt.
package diag
