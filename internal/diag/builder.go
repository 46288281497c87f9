package diag

import (
	"refine/internal/ast"
	"refine/internal/source"
)

func New(sev Severity, code Code, primary ast.NodeID, sp source.Span, msg string) Diagnostic {
	return Diagnostic{
		ID:         MakeID(code, primary),
		Severity:   sev,
		Code:       code,
		Primary:    primary,
		Span:       sp,
		Message:    msg,
		Secondary:  []ast.NodeID{},
		Structured: Structured{"kind": code.Kind()},
		RepairRefs: []string{},
	}
}

func NewError(code Code, primary ast.NodeID, sp source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, sp, msg)
}

func (d Diagnostic) WithNote(id ast.NodeID, sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Node: id, Span: sp, Msg: msg})
	return d
}

func (d Diagnostic) WithSecondary(ids ...ast.NodeID) Diagnostic {
	d.Secondary = append(append([]ast.NodeID{}, d.Secondary...), ids...)
	return d
}

func (d Diagnostic) With(key, value string) Diagnostic {
	s := make(Structured, len(d.Structured)+1)
	for k, v := range d.Structured {
		s[k] = v
	}
	s[key] = value
	d.Structured = s
	return d
}
