package diag

import (
	"fmt"

	"refine/internal/ast"
	"refine/internal/source"
)

type Note struct {
	Node ast.NodeID  `json:"node_id"`
	Span source.Span `json:"span"`
	Msg  string      `json:"message"`
}

// Structured carries machine-readable details. The "kind" entry is always
// present; the rest depends on the code (name, field, expected, got, ...).
type Structured map[string]string

func (s Structured) Kind() string { return s["kind"] }

type Diagnostic struct {
	ID         string       `json:"id"`
	Severity   Severity     `json:"severity"`
	Code       Code         `json:"code"`
	Message    string       `json:"message"`
	Primary    ast.NodeID   `json:"primary_node_id"`
	Span       source.Span  `json:"span"`
	Secondary  []ast.NodeID `json:"secondary_node_ids"`
	Notes      []Note       `json:"notes,omitempty"`
	Structured Structured   `json:"structured"`
	RepairRefs []string     `json:"repair_refs"`
}

// MakeID derives the diagnostic ID from its code and primary node, so the
// same problem keeps its ID across passes.
func MakeID(code Code, primary ast.NodeID) string {
	return fmt.Sprintf("%s@%s", code.ID(), primary)
}
