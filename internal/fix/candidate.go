package fix

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"refine/internal/ast"
	"refine/internal/patch"
)

// Confidence is how sure a template is that the candidate is what the
// author meant.
type Confidence uint8

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

func (c Confidence) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Confidence) UnmarshalText(text []byte) error {
	switch string(text) {
	case "high":
		*c = ConfidenceHigh
	case "medium":
		*c = ConfidenceMedium
	case "low":
		*c = ConfidenceLow
	default:
		return fmt.Errorf("unknown confidence %q", text)
	}
	return nil
}

// Safety classifies what applying a candidate can do to code that already
// runs.
type Safety uint8

const (
	SafetyBehaviorPreserving Safety = iota
	SafetyLikelyPreserving
	SafetyBehaviorChanging
)

func (s Safety) String() string {
	switch s {
	case SafetyBehaviorPreserving:
		return "behavior_preserving"
	case SafetyLikelyPreserving:
		return "likely_preserving"
	default:
		return "behavior_changing"
	}
}

func (s Safety) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Safety) UnmarshalText(text []byte) error {
	switch string(text) {
	case "behavior_preserving":
		*s = SafetyBehaviorPreserving
	case "likely_preserving":
		*s = SafetyLikelyPreserving
	case "behavior_changing":
		*s = SafetyBehaviorChanging
	default:
		return fmt.Errorf("unknown safety %q", text)
	}
	return nil
}

// Kind classifies the change a candidate makes.
type Kind uint8

const (
	KindLocalFix Kind = iota
	KindRefactor
	KindBoundaryValidation
	KindSemanticsChange
)

func (k Kind) String() string {
	switch k {
	case KindRefactor:
		return "refactor"
	case KindBoundaryValidation:
		return "boundary_validation"
	case KindSemanticsChange:
		return "semantics_change"
	default:
		return "local_fix"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "local_fix":
		*k = KindLocalFix
	case "refactor":
		*k = KindRefactor
	case "boundary_validation":
		*k = KindBoundaryValidation
	case "semantics_change":
		*k = KindSemanticsChange
	default:
		return fmt.Errorf("unknown repair kind %q", text)
	}
	return nil
}

type Scope struct {
	NodeCount       int  `json:"node_count"`
	CrossesFunction bool `json:"crosses_function"`
}

// Targets names what a candidate is meant to address.
type Targets struct {
	NodeIDs         []ast.NodeID `json:"node_ids,omitempty"`
	DiagnosticCodes []string     `json:"diagnostic_codes,omitempty"`
	ObligationIDs   []string     `json:"obligation_ids,omitempty"`
	HoleIDs         []string     `json:"hole_ids,omitempty"`
}

// Delta lists what must be gone from the next pass once the candidate is
// applied.
type Delta struct {
	DiagnosticsResolved   []string `json:"diagnostics_resolved"`
	ObligationsDischarged []string `json:"obligations_discharged"`
	HolesFilled           []string `json:"holes_filled"`
}

// Compatibility is filled by Analyze.
type Compatibility struct {
	ConflictsWith []string `json:"conflicts_with,omitempty"`
	Requires      []string `json:"requires,omitempty"`
	BatchKey      string   `json:"batch_key,omitempty"`
}

// Candidate is one machine-applicable repair.
type Candidate struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Confidence    Confidence    `json:"confidence"`
	Safety        Safety        `json:"safety"`
	Kind          Kind          `json:"kind"`
	Scope         Scope         `json:"scope"`
	Targets       Targets       `json:"targets"`
	Edits         []patch.Op    `json:"edits"`
	ExpectedDelta Delta         `json:"expected_delta"`
	Compatibility Compatibility `json:"compatibility"`
	Rationale     string        `json:"rationale"`

	// target is the ID of the diagnostic, obligation or hole the candidate
	// was synthesized for.
	target string
}

// Target returns the ID of the diagnostic, obligation or hole the
// candidate addresses.
func (c *Candidate) Target() string { return c.target }

// makeID hashes the target and the edits, so identical repairs for the same
// problem get the same ID in every pass.
func makeID(target string, edits []patch.Op) string {
	h := xxhash.New()
	_, _ = h.WriteString(target)
	for _, op := range edits {
		_, _ = fmt.Fprintf(h, "|%016x", op.Fingerprint())
	}
	return fmt.Sprintf("fix-%016x", h.Sum64())
}
