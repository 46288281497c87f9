package ast

import "fmt"

// Kind is the closed vocabulary of node variants.
type Kind uint8

const (
	KindInvalid Kind = iota

	// declarations
	KindModule
	KindFn
	KindParams
	KindParam
	KindRequires
	KindEnsures
	KindRecord
	KindFieldDecl
	KindEnum
	KindVariant

	// statements
	KindBlock
	KindLet
	KindAssign
	KindIf
	KindWhile
	KindFor
	KindMatch
	KindArm
	KindReturn
	KindExprStmt

	// expressions
	KindIdent
	KindIntLit
	KindRealLit
	KindBoolLit
	KindStringLit
	KindBinary
	KindUnary
	KindCall
	KindField
	KindIndex
	KindRecordLit
	KindFieldInit
	KindCond
	KindFail
	KindHole
	KindParen
	KindQuant

	// patterns
	KindPatWild
	KindPatLit
	KindPatVariant
	KindPatBind

	// types
	KindTypeName
	KindTypeRefined
	KindTypeLinear
	KindTypeList
	KindTypeAuto

	kindCount
)

// Category groups kinds into the tagged-variant families consumers switch on.
type Category uint8

const (
	CatInvalid Category = iota
	CatDecl
	CatStmt
	CatExpr
	CatPattern
	CatType
)

func (c Category) String() string {
	switch c {
	case CatDecl:
		return "decl"
	case CatStmt:
		return "stmt"
	case CatExpr:
		return "expr"
	case CatPattern:
		return "pattern"
	case CatType:
		return "type"
	default:
		return "invalid"
	}
}

type kindInfo struct {
	name    string
	cat     Category
	minKids int
	maxKids int // -1: variadic
}

var kindTable = [kindCount]kindInfo{
	KindInvalid:     {"invalid", CatInvalid, 0, 0},
	KindModule:      {"module", CatDecl, 0, -1},
	KindFn:          {"fn", CatDecl, 5, 5},
	KindParams:      {"params", CatDecl, 0, -1},
	KindParam:       {"param", CatDecl, 1, 1},
	KindRequires:    {"requires", CatDecl, 0, -1},
	KindEnsures:     {"ensures", CatDecl, 0, -1},
	KindRecord:      {"record", CatDecl, 0, -1},
	KindFieldDecl:   {"field_decl", CatDecl, 1, 1},
	KindEnum:        {"enum", CatDecl, 0, -1},
	KindVariant:     {"variant", CatDecl, 0, 0},
	KindBlock:       {"block", CatStmt, 0, -1},
	KindLet:         {"let", CatStmt, 2, 2},
	KindAssign:      {"assign", CatStmt, 2, 2},
	KindIf:          {"if", CatStmt, 2, 3},
	KindWhile:       {"while", CatStmt, 2, 2},
	KindFor:         {"for", CatStmt, 3, 3},
	KindMatch:       {"match", CatStmt, 1, -1},
	KindArm:         {"arm", CatStmt, 2, 2},
	KindReturn:      {"return", CatStmt, 0, 1},
	KindExprStmt:    {"expr_stmt", CatStmt, 1, 1},
	KindIdent:       {"ident", CatExpr, 0, 0},
	KindIntLit:      {"int", CatExpr, 0, 0},
	KindRealLit:     {"real", CatExpr, 0, 0},
	KindBoolLit:     {"bool", CatExpr, 0, 0},
	KindStringLit:   {"string", CatExpr, 0, 0},
	KindBinary:      {"binary", CatExpr, 2, 2},
	KindUnary:       {"unary", CatExpr, 1, 1},
	KindCall:        {"call", CatExpr, 0, -1},
	KindField:       {"field", CatExpr, 1, 1},
	KindIndex:       {"index", CatExpr, 2, 2},
	KindRecordLit:   {"record_lit", CatExpr, 0, -1},
	KindFieldInit:   {"field_init", CatExpr, 1, 1},
	KindCond:        {"cond", CatExpr, 3, 3},
	KindFail:        {"fail", CatExpr, 0, 0},
	KindHole:        {"hole", CatExpr, 0, 0},
	KindParen:       {"paren", CatExpr, 1, 1},
	KindQuant:       {"quant", CatExpr, 1, 1},
	KindPatWild:     {"pat_wild", CatPattern, 0, 0},
	KindPatLit:      {"pat_lit", CatPattern, 0, 0},
	KindPatVariant:  {"pat_variant", CatPattern, 0, 0},
	KindPatBind:     {"pat_bind", CatPattern, 0, 0},
	KindTypeName:    {"type_name", CatType, 0, 0},
	KindTypeRefined: {"type_refined", CatType, 2, 2},
	KindTypeLinear:  {"type_linear", CatType, 1, 1},
	KindTypeList:    {"type_list", CatType, 1, 1},
	KindTypeAuto:    {"type_auto", CatType, 0, 0},
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := KindInvalid + 1; k < kindCount; k++ {
		m[kindTable[k].name] = k
	}
	return m
}()

// Valid reports whether k belongs to the closed vocabulary.
func (k Kind) Valid() bool { return k > KindInvalid && k < kindCount }

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindTable[k].name
}

func (k Kind) Category() Category {
	if !k.Valid() {
		return CatInvalid
	}
	return kindTable[k].cat
}

// Arity returns the allowed child count range; max is -1 for variadic kinds.
func (k Kind) Arity() (minKids, maxKids int) {
	if !k.Valid() {
		return 0, 0
	}
	info := kindTable[k]
	return info.minKids, info.maxKids
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindByName[s]; ok {
		return k, nil
	}
	return KindInvalid, fmt.Errorf("unknown node kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
