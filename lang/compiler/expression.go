package compiler

import (
	"strconv"

	"github.com/mna/aster/lang/token"
	"github.com/mna/aster/lang/value"
)

func (c *compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence is the heart of the Pratt parser (spec.md §4.2): advance,
// run the prefix rule for the consumed token, then keep consuming infix
// operators whose precedence is at least p.
func (c *compiler) parsePrecedence(p Precedence) {
	c.advance()
	rule := getRule(c.previous.Kind)
	if rule.prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := p <= PrecAssignment
	rule.prefix(c, canAssign)

	for p <= getRule(c.current.Kind).precedence {
		c.advance()
		infix := getRule(c.previous.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.matchAssignPeek() {
		c.error("Invalid assignment target.")
	}
}

// matchAssignPeek reports (without consuming) whether an unconsumed `=` or
// `assigned` remains — used only to produce the "invalid assignment target"
// diagnostic once no prefix/infix rule has claimed it.
func (c *compiler) matchAssignPeek() bool {
	return c.check(token.EQUAL) || c.check(token.ASSIGNED)
}

func grouping(c *compiler, _ bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func unary(c *compiler, _ bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case token.BANG:
		c.emitOp(OpNot)
	case token.MINUS:
		c.emitOp(OpNegate)
	}
}

// binary compiles the right operand at precedence+1 (left associative) then
// emits the operator, synthesizing `!=`, `<=`, `>=` from two instructions
// exactly as spec.md §4.2 prescribes.
func binary(c *compiler, _ bool) {
	opKind := c.previous.Kind
	rule := getRule(opKind)
	c.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case token.BANG_EQUAL:
		c.emitOp(OpEqual)
		c.emitOp(OpNot)
	case token.EQUAL_EQUAL, token.EQUALS, token.IS:
		c.emitOp(OpEqual)
	case token.GREATER:
		c.emitOp(OpGreater)
	case token.GREATER_EQUAL:
		c.emitOp(OpLess)
		c.emitOp(OpNot)
	case token.LESS:
		c.emitOp(OpLess)
	case token.LESS_EQUAL:
		c.emitOp(OpGreater)
		c.emitOp(OpNot)
	case token.PLUS:
		c.emitOp(OpAdd)
	case token.MINUS:
		c.emitOp(OpSubtract)
	case token.STAR:
		c.emitOp(OpMultiply)
	case token.SLASH:
		c.emitOp(OpDivide)
	case token.PERCENT:
		c.emitOp(OpModulo)
	}
}

func literal(c *compiler, _ bool) {
	switch c.previous.Kind {
	case token.FALSE:
		c.emitOp(OpFalse)
	case token.TRUE:
		c.emitOp(OpTrue)
	case token.NULL:
		c.emitOp(OpNull)
	}
}

func number(c *compiler, _ bool) {
	n, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(value.Number_(n))
}

func stringLiteral(c *compiler, _ bool) {
	raw := c.previous.Lexeme
	// Strip the surrounding quotes; string literals carry no escape
	// processing per spec.md's byte-sequence, non-Unicode-aware Non-goal.
	s := raw[1 : len(raw)-1]
	c.emitConstant(value.Obj_(c.h.CopyString([]byte(s))))
}

// and_ short-circuits: if the left operand is falsey, jump over the right
// operand, leaving the falsey left value as the expression's result.
func and_(c *compiler, _ bool) {
	endJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

// or_ short-circuits the other way: if the left operand is truthy, jump
// over the right operand.
func or_(c *compiler, _ bool) {
	elseJump := c.emitJump(OpJumpIfFalse)
	endJump := c.emitJump(OpJump)
	c.patchJump(elseJump)
	c.emitOp(OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func variable(c *compiler, canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp OpCode
	arg := c.resolveLocal(c.fs, name)
	if arg != -1 {
		getOp, setOp = OpGetLocal, OpSetLocal
	} else if arg = c.resolveUpvalue(c.fs, name); arg != -1 {
		getOp, setOp = OpGetUpvalue, OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = OpGetGlobal, OpSetGlobal
	}

	if canAssign && c.matchAssign() {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func (c *compiler) argumentList() byte {
	var argc int
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if argc == maxArgs {
				c.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(argc)
}

func call(c *compiler, _ bool) {
	argc := c.argumentList()
	c.emitOpByte(OpCall, argc)
}

func dot(c *compiler, canAssign bool) {
	c.consume(token.IDENT, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.matchAssign():
		c.expression()
		c.emitOpByte(OpSetProperty, name)
	case c.match(token.LPAREN):
		argc := c.argumentList()
		c.emitOpByte(OpInvoke, name)
		c.emitByte(argc)
	default:
		c.emitOpByte(OpGetProperty, name)
	}
}

var thisToken = token.Token{Kind: token.IDENT, Lexeme: "this"}
var superToken = token.Token{Kind: token.IDENT, Lexeme: "super"}

func this_(c *compiler, _ bool) {
	if c.cc == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable(thisToken, false)
}

func super_(c *compiler, _ bool) {
	if c.cc == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.cc.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.DOT, "Expect '.' after 'super'.")
	c.consume(token.IDENT, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)

	c.namedVariable(thisToken, false)
	if c.match(token.LPAREN) {
		argc := c.argumentList()
		c.namedVariable(superToken, false)
		c.emitOpByte(OpSuperInvoke, name)
		c.emitByte(argc)
	} else {
		c.namedVariable(superToken, false)
		c.emitOpByte(OpGetSuper, name)
	}
}
