package compiler

import "github.com/mna/aster/lang/token"

// classDeclaration parses `class Name (< Super)? { (method)* }`. spec.md
// §4.2 notes the class body parser in the core only asserts `{ }` and
// leaves methods/inheritance/super as an extension point fully supported by
// the VM's opcode set; SPEC_FULL.md's REDESIGN FLAGS resolution implements
// that extension here.
func (c *compiler) classDeclaration() {
	c.consume(token.IDENT, "Expect class name.")
	nameTok := c.previous
	nameConst := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitOpByte(OpClass, nameConst)
	c.defineVariable(nameConst)

	cc := &classState{enclosing: c.cc}
	c.cc = cc

	if c.match(token.LESS) {
		c.consume(token.IDENT, "Expect superclass name.")
		c.namedVariable(c.previous, false)

		if identifiersEqual(nameTok, c.previous) {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal(superToken)
		c.defineVariable(0)

		c.namedVariable(nameTok, false)
		c.emitOp(OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(nameTok, false)
	c.consume(token.LBRACE, "Expect '{' before class body.")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBRACE, "Expect '}' after class body.")
	c.emitOp(OpPop) // pop the class itself, pushed by namedVariable above

	if cc.hasSuperclass {
		c.endScope()
	}
	c.cc = cc.enclosing
}

func (c *compiler) method() {
	c.consume(token.IDENT, "Expect method name.")
	nameTok := c.previous
	nameConst := c.identifierConstant(nameTok)

	kind := MethodFunc
	if nameTok.Lexeme == "init" {
		kind = InitializerFunc
	}
	c.function(kind)
	c.emitOpByte(OpMethod, nameConst)
}
