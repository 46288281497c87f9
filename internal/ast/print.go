package ast

import (
	"strconv"
	"strings"
)

// Render prints the subtree at id in the engine's pseudo-syntax. It is meant
// for messages, titles and tests, not as a round-trippable pretty-printer.
func Render(t *Tree, id NodeID) string {
	var sb strings.Builder
	p := printer{t: t, sb: &sb}
	p.node(id, 0)
	return sb.String()
}

type printer struct {
	t  *Tree
	sb *strings.Builder
}

func (p *printer) w(s ...string) {
	for _, part := range s {
		p.sb.WriteString(part)
	}
}

func (p *printer) indent(depth int) {
	p.sb.WriteString(strings.Repeat("    ", depth))
}

func (p *printer) kid(id NodeID, i int) NodeID { return p.t.Child(id, i) }

func (p *printer) list(ids []NodeID, sep string, depth int) {
	for i, id := range ids {
		if i > 0 {
			p.w(sep)
		}
		p.node(id, depth)
	}
}

func (p *printer) block(id NodeID, depth int) {
	p.w("{\n")
	for _, stmt := range p.t.Children(id) {
		p.indent(depth + 1)
		p.node(stmt, depth+1)
		p.w("\n")
	}
	p.indent(depth)
	p.w("}")
}

func (p *printer) node(id NodeID, depth int) {
	n := p.t.Node(id)
	if n == nil {
		p.w("<missing ", id.String(), ">")
		return
	}
	switch n.Kind {
	case KindModule:
		for i, decl := range n.Children {
			if i > 0 {
				p.w("\n\n")
			}
			p.node(decl, depth)
		}
	case KindFn:
		p.w("fn ", n.Name, "(")
		p.list(p.t.Children(p.kid(id, 0)), ", ", depth)
		p.w(") -> ")
		p.node(p.kid(id, 1), depth)
		if len(n.Effects) > 0 {
			p.w(" ! ", strings.Join(n.Effects, ", "))
		}
		for _, req := range p.t.Children(p.kid(id, 2)) {
			p.w("\n")
			p.indent(depth + 1)
			p.w("requires ")
			p.node(req, depth)
		}
		for _, ens := range p.t.Children(p.kid(id, 3)) {
			p.w("\n")
			p.indent(depth + 1)
			p.w("ensures ")
			p.node(ens, depth)
		}
		p.w(" ")
		p.block(p.kid(id, 4), depth)
	case KindParam, KindFieldDecl:
		p.w(n.Name, ": ")
		p.node(p.kid(id, 0), depth)
	case KindParams, KindRequires, KindEnsures:
		p.list(n.Children, ", ", depth)
	case KindRecord:
		p.w("record ", n.Name, " { ")
		p.list(n.Children, ", ", depth)
		p.w(" }")
	case KindEnum:
		p.w("enum ", n.Name, " { ")
		p.list(n.Children, " | ", depth)
		p.w(" }")
	case KindVariant, KindIdent, KindPatVariant, KindPatBind, KindTypeName:
		p.w(n.Name)
	case KindBlock:
		p.block(id, depth)
	case KindLet:
		p.w("let ")
		if n.Mutable {
			p.w("mut ")
		}
		p.w(n.Name)
		if p.t.Kind(p.kid(id, 0)) != KindTypeAuto {
			p.w(": ")
			p.node(p.kid(id, 0), depth)
		}
		p.w(" = ")
		p.node(p.kid(id, 1), depth)
	case KindAssign:
		p.node(p.kid(id, 0), depth)
		p.w(" ", n.Op, "= ")
		p.node(p.kid(id, 1), depth)
	case KindIf:
		p.w("if ")
		p.node(p.kid(id, 0), depth)
		p.w(" ")
		p.block(p.kid(id, 1), depth)
		if len(n.Children) > 2 {
			p.w(" else ")
			p.block(p.kid(id, 2), depth)
		}
	case KindWhile:
		p.w("while ")
		p.node(p.kid(id, 0), depth)
		p.w(" ")
		p.block(p.kid(id, 1), depth)
	case KindFor:
		p.w("for ", n.Name, " in ")
		p.node(p.kid(id, 0), depth)
		p.w("..")
		p.node(p.kid(id, 1), depth)
		p.w(" ")
		p.block(p.kid(id, 2), depth)
	case KindMatch:
		p.w("match ")
		p.node(p.kid(id, 0), depth)
		p.w(" {\n")
		for _, arm := range n.Children[1:] {
			p.indent(depth + 1)
			p.node(arm, depth+1)
			p.w("\n")
		}
		p.indent(depth)
		p.w("}")
	case KindArm:
		p.node(p.kid(id, 0), depth)
		p.w(" => ")
		p.block(p.kid(id, 1), depth)
	case KindReturn:
		p.w("return")
		if len(n.Children) > 0 {
			p.w(" ")
			p.node(p.kid(id, 0), depth)
		}
	case KindExprStmt:
		p.node(p.kid(id, 0), depth)
	case KindIntLit, KindRealLit, KindBoolLit, KindPatLit:
		p.w(n.Value)
	case KindStringLit:
		p.w(strconv.Quote(n.Value))
	case KindBinary:
		p.operand(p.kid(id, 0), depth)
		p.w(" ", n.Op, " ")
		p.operand(p.kid(id, 1), depth)
	case KindUnary:
		p.w(n.Op)
		p.operand(p.kid(id, 0), depth)
	case KindCall:
		p.w(n.Name, "(")
		p.list(n.Children, ", ", depth)
		p.w(")")
	case KindField:
		p.operand(p.kid(id, 0), depth)
		p.w(".", n.Name)
	case KindIndex:
		p.operand(p.kid(id, 0), depth)
		p.w("[")
		p.node(p.kid(id, 1), depth)
		p.w("]")
	case KindRecordLit:
		p.w(n.Name, " { ")
		p.list(n.Children, ", ", depth)
		p.w(" }")
	case KindFieldInit:
		p.w(n.Name, ": ")
		p.node(p.kid(id, 0), depth)
	case KindCond:
		p.w("if ")
		p.node(p.kid(id, 0), depth)
		p.w(" then ")
		p.node(p.kid(id, 1), depth)
		p.w(" else ")
		p.node(p.kid(id, 2), depth)
	case KindFail:
		p.w("fail ", strconv.Quote(n.Value))
	case KindHole:
		p.w("?", n.Name)
	case KindParen:
		p.w("(")
		p.node(p.kid(id, 0), depth)
		p.w(")")
	case KindQuant:
		p.w(n.Op, " ", n.Name, ". ")
		p.node(p.kid(id, 0), depth)
	case KindPatWild:
		p.w("_")
	case KindTypeRefined:
		p.w("{", n.Name, ": ")
		p.node(p.kid(id, 0), depth)
		p.w(" | ")
		p.node(p.kid(id, 1), depth)
		p.w("}")
	case KindTypeLinear:
		p.w("Linear[")
		p.node(p.kid(id, 0), depth)
		p.w("]")
	case KindTypeList:
		p.w("List[")
		p.node(p.kid(id, 0), depth)
		p.w("]")
	case KindTypeAuto:
		p.w("_")
	default:
		p.w("<", n.Kind.String(), ">")
	}
}

// operand parenthesizes compound operands so the output stays unambiguous.
func (p *printer) operand(id NodeID, depth int) {
	switch p.t.Kind(id) {
	case KindBinary, KindCond, KindQuant:
		p.w("(")
		p.node(id, depth)
		p.w(")")
	default:
		p.node(id, depth)
	}
}
