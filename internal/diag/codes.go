package diag

import "fmt"

// Code identifies a kind of static error. Codes in 3000..3999 belong to the
// checker and render as SEMnnnn.
type Code uint16

const (
	UnknownCode Code = 0

	SemaUnresolvedName     Code = 3001
	SemaUnknownFunction    Code = 3002
	SemaArityMismatch      Code = 3003
	SemaUnknownField       Code = 3004
	SemaMissingField       Code = 3005
	SemaDuplicateField     Code = 3006
	SemaImmutableAssign    Code = 3007
	SemaNonexhaustiveMatch Code = 3008
	SemaDuplicateDecl      Code = 3009
	SemaTypeMismatch       Code = 3010
	SemaUnknownType        Code = 3011
	SemaMalformedContract  Code = 3012
)

type codeInfo struct {
	kind  string // Structured["kind"]
	title string
}

var codeTable = map[Code]codeInfo{
	SemaUnresolvedName:     {"unresolved_name", "Unresolved name"},
	SemaUnknownFunction:    {"unknown_function", "Unknown function"},
	SemaArityMismatch:      {"arity_mismatch", "Wrong number of arguments"},
	SemaUnknownField:       {"unknown_field", "Unknown field"},
	SemaMissingField:       {"missing_field", "Missing field in record literal"},
	SemaDuplicateField:     {"duplicate_field", "Duplicate field initializer"},
	SemaImmutableAssign:    {"immutable_assignment", "Assignment to immutable binding"},
	SemaNonexhaustiveMatch: {"non_exhaustive_match", "Non-exhaustive pattern match"},
	SemaDuplicateDecl:      {"duplicate_declaration", "Duplicate declaration"},
	SemaTypeMismatch:       {"type_mismatch", "Type mismatch"},
	SemaUnknownType:        {"unknown_type", "Unknown type"},
	SemaMalformedContract:  {"malformed_contract", "Contract outside the predicate language"},
}

func (c Code) ID() string {
	if c >= 3000 && c < 4000 {
		return fmt.Sprintf("SEM%04d", uint16(c))
	}
	return "E0000"
}

func (c Code) Title() string {
	if info, ok := codeTable[c]; ok {
		return info.title
	}
	return "Unknown error"
}

// Kind is the machine-readable name stored under Structured["kind"].
func (c Code) Kind() string {
	if info, ok := codeTable[c]; ok {
		return info.kind
	}
	return "other"
}

func (c Code) String() string { return c.ID() + ": " + c.Title() }

func (c Code) MarshalText() ([]byte, error) { return []byte(c.ID()), nil }

// ParseCode accepts an ID such as "SEM3001" or a kind such as
// "unresolved_name".
func ParseCode(s string) (Code, bool) {
	for c, info := range codeTable {
		if c.ID() == s || info.kind == s {
			return c, true
		}
	}
	return UnknownCode, false
}

// Codes returns every known code in ascending order.
func Codes() []Code {
	out := make([]Code, 0, len(codeTable))
	for c := SemaUnresolvedName; c <= SemaMalformedContract; c++ {
		if _, ok := codeTable[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
