package compiler

import "github.com/mna/aster/lang/token"

// Precedence follows spec.md §4.2's table exactly, lowest to highest.
type Precedence uint8

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(c *compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// rules is the Pratt table: one {prefix, infix, precedence} triple per token
// kind, per spec.md §4.2 and §9's "table indexed by token kind" design note.
// `equals` and `is` are wired to the same infix handler as `==`; `assigned`
// is handled as a plain assignment-only synonym for `=` by matchAssign (used
// by variable declarations and the assignment paths of namedVariable and dot
// in expression.go), never registered here as
// an infix operator — this is the Open Question resolution documented in
// SPEC_FULL.md/DESIGN.md for the "bare `=` as equality" bug noted in
// spec.md §9.
var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LPAREN:        {prefix: grouping, infix: call, precedence: PrecCall},
		token.DOT:           {infix: dot, precedence: PrecCall},
		token.MINUS:         {prefix: unary, infix: binary, precedence: PrecTerm},
		token.PLUS:          {infix: binary, precedence: PrecTerm},
		token.SLASH:         {infix: binary, precedence: PrecFactor},
		token.STAR:          {infix: binary, precedence: PrecFactor},
		token.PERCENT:       {infix: binary, precedence: PrecFactor},
		token.BANG:          {prefix: unary},
		token.BANG_EQUAL:    {infix: binary, precedence: PrecEquality},
		token.EQUAL_EQUAL:   {infix: binary, precedence: PrecEquality},
		token.EQUALS:        {infix: binary, precedence: PrecEquality},
		token.IS:            {infix: binary, precedence: PrecEquality},
		token.GREATER:       {infix: binary, precedence: PrecComparison},
		token.GREATER_EQUAL: {infix: binary, precedence: PrecComparison},
		token.LESS:          {infix: binary, precedence: PrecComparison},
		token.LESS_EQUAL:    {infix: binary, precedence: PrecComparison},
		token.IDENT:         {prefix: variable},
		token.STRING:        {prefix: stringLiteral},
		token.NUMBER:        {prefix: number},
		token.AND:           {infix: and_, precedence: PrecAnd},
		token.OR:            {infix: or_, precedence: PrecOr},
		token.FALSE:         {prefix: literal},
		token.TRUE:          {prefix: literal},
		token.NULL:          {prefix: literal},
		token.THIS:          {prefix: this_},
		token.SUPER:         {prefix: super_},
	}
}

func getRule(k token.Kind) parseRule {
	return rules[k]
}
