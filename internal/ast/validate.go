package ast

import (
	"errors"
	"fmt"
)

// ErrStructure marks malformed trees: dangling IDs, kinds outside the closed
// vocabulary, wrong child counts or misplaced children. It is a driver-level
// failure, never a diagnostic.
var ErrStructure = errors.New("malformed ast")

// slot constraints: the category (or exact kind) each child position accepts
type slotRule struct {
	kinds []Kind
	cat   Category
}

func kindsRule(kinds ...Kind) slotRule { return slotRule{kinds: kinds} }
func catRule(cat Category) slotRule    { return slotRule{cat: cat} }

func (r slotRule) accepts(k Kind) bool {
	if r.cat != CatInvalid {
		return k.Category() == r.cat
	}
	for _, want := range r.kinds {
		if k == want {
			return true
		}
	}
	return false
}

func (r slotRule) String() string {
	if r.cat != CatInvalid {
		return r.cat.String()
	}
	return fmt.Sprint(r.kinds)
}

var (
	exprSlot  = catRule(CatExpr)
	typeSlot  = catRule(CatType)
	stmtSlot  = catRule(CatStmt)
	blockSlot = kindsRule(KindBlock)
)

// slotFor returns the rule for child i of a node of kind k.
func slotFor(k Kind, i int) slotRule {
	switch k {
	case KindModule:
		return kindsRule(KindFn, KindRecord, KindEnum)
	case KindFn:
		return [...]slotRule{
			kindsRule(KindParams), typeSlot, kindsRule(KindRequires), kindsRule(KindEnsures), blockSlot,
		}[i]
	case KindParams:
		return kindsRule(KindParam)
	case KindParam, KindFieldDecl, KindTypeLinear, KindTypeList:
		return typeSlot
	case KindRequires, KindEnsures, KindBinary, KindUnary, KindCall, KindField, KindIndex,
		KindFieldInit, KindCond, KindParen, KindQuant, KindExprStmt, KindReturn:
		return exprSlot
	case KindRecord:
		return kindsRule(KindFieldDecl)
	case KindEnum:
		return kindsRule(KindVariant)
	case KindBlock:
		return stmtSlot
	case KindLet:
		if i == 0 {
			return typeSlot
		}
		return exprSlot
	case KindAssign:
		if i == 0 {
			return kindsRule(KindIdent, KindField, KindIndex)
		}
		return exprSlot
	case KindIf, KindWhile:
		if i == 0 {
			return exprSlot
		}
		return blockSlot
	case KindFor:
		if i < 2 {
			return exprSlot
		}
		return blockSlot
	case KindMatch:
		if i == 0 {
			return exprSlot
		}
		return kindsRule(KindArm)
	case KindArm:
		if i == 0 {
			return catRule(CatPattern)
		}
		return blockSlot
	case KindRecordLit:
		return kindsRule(KindFieldInit)
	case KindTypeRefined:
		if i == 0 {
			return typeSlot
		}
		return exprSlot
	}
	return slotRule{}
}

// Validate checks the structural invariants of t: the root is a module, every
// reachable node has a known kind and a legal child list, every child exists
// and is owned by exactly one parent, and no unreachable nodes remain.
func Validate(t *Tree) error {
	if t == nil {
		return fmt.Errorf("%w: nil tree", ErrStructure)
	}
	root := t.Node(t.root)
	if root == nil {
		return fmt.Errorf("%w: root %s not present", ErrStructure, t.root)
	}
	if root.Kind != KindModule {
		return fmt.Errorf("%w: root %s is %s, want module", ErrStructure, t.root, root.Kind)
	}
	owner := make(map[NodeID]NodeID, t.Len())
	stack := []NodeID{t.root}
	reached := 0
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.Node(id)
		reached++
		if !n.Kind.Valid() {
			return fmt.Errorf("%w: node %s has kind %s outside vocabulary", ErrStructure, id, n.Kind)
		}
		minKids, maxKids := n.Kind.Arity()
		if len(n.Children) < minKids || (maxKids >= 0 && len(n.Children) > maxKids) {
			return fmt.Errorf("%w: %s node %s has %d children", ErrStructure, n.Kind, id, len(n.Children))
		}
		for i, kid := range n.Children {
			kn := t.Node(kid)
			if kn == nil {
				return fmt.Errorf("%w: %s node %s references missing child %s", ErrStructure, n.Kind, id, kid)
			}
			if prev, dup := owner[kid]; dup || kid == t.root {
				return fmt.Errorf("%w: node %s owned by both %s and %s", ErrStructure, kid, prev, id)
			}
			owner[kid] = id
			if rule := slotFor(n.Kind, i); !rule.accepts(kn.Kind) {
				return fmt.Errorf("%w: %s node %s child %d is %s, want %s", ErrStructure, n.Kind, id, i, kn.Kind, rule)
			}
			stack = append(stack, kid)
		}
	}
	if reached != t.Len() {
		return fmt.Errorf("%w: %d unreachable nodes", ErrStructure, t.Len()-reached)
	}
	return nil
}
