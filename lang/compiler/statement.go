package compiler

import (
	"github.com/dolthub/swiss"

	"github.com/mna/aster/lang/token"
)

func (c *compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.FUN), c.match(token.FUNCTION):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.matchAssign() {
		c.expression()
	} else {
		c.emitOp(OpNull)
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(PlainFunc)
	c.defineVariable(global)
}

// function compiles one function body (script-level `fun`/`function`, or a
// method body from classes.go) into a nested funcState, then emits
// OP_CLOSURE with its upvalue-capture operand bytes into the enclosing
// chunk, per spec.md §4.2's "Functions" rule.
func (c *compiler) function(kind FuncKind) {
	name := c.previous
	fn := c.h.NewFunction()

	// Link fn into the funcState chain (which MarkRoots walks) before making
	// any further allocation: CopyString below can itself trigger a
	// collection, and until fn hangs off c.fs it is reachable from no root.
	enclosing := c.fs
	c.fs = &funcState{
		enclosing:  enclosing,
		function:   fn,
		chunk:      NewChunk(),
		kind:       kind,
		identCache: swiss.NewMap[string, byte](16),
	}
	fn.Chunk = c.fs.chunk
	fn.Name = c.h.CopyString([]byte(name.Lexeme))

	if kind != ScriptFunc {
		// slot 0 holds the receiver for methods/initializers, or is unused
		// (but still reserved) for plain functions.
		recv := "this"
		if kind == PlainFunc {
			recv = ""
		}
		c.fs.locals = append(c.fs.locals, local{name: token.Token{Lexeme: recv}, depth: 0})
	}

	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after function name.")
	if !c.check(token.RPAREN) {
		for {
			fn.Arity++
			if fn.Arity > maxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConst)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after parameters.")
	c.consume(token.LBRACE, "Expect '{' before function body.")
	c.block()

	c.endCompiler()
}

func (c *compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.REPEAT):
		c.repeatStatement()
	case c.match(token.SWITCH):
		c.switchStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.CONTINUE):
		c.continueStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emitOp(OpPrint)
}

func (c *compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emitOp(OpPop)
}

// ifStatement implements `if (cond) then stmt (elf (cond) then stmt)* (else
// stmt)?`, per spec.md §4.2 and the `then`/`elf` grammar decided in
// SPEC_FULL.md/DESIGN.md.
func (c *compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")
	c.consume(token.THEN, "Expect 'then' after condition.")

	thenJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.statement()

	elseJump := c.emitJump(OpJump)
	c.patchJump(thenJump)
	c.emitOp(OpPop)

	switch {
	case c.match(token.ELF):
		c.ifStatement()
	case c.match(token.ELSE):
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *compiler) pushLoop() *loopCtx {
	lc := &loopCtx{}
	c.fs.loops = append(c.fs.loops, lc)
	return lc
}

func (c *compiler) popLoop() {
	lc := c.fs.loops[len(c.fs.loops)-1]
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
	for _, j := range lc.breakJumps {
		c.patchJump(j)
	}
}

func (c *compiler) currentLoop() *loopCtx {
	if len(c.fs.loops) == 0 {
		return nil
	}
	return c.fs.loops[len(c.fs.loops)-1]
}

func (c *compiler) whileStatement() {
	loopStart := len(c.fs.chunk.Code)
	lc := c.pushLoop()
	lc.continueTarget = loopStart

	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")
	c.consume(token.DO, "Expect 'do' after condition.")

	exitJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(OpPop)
	c.popLoop()
}

// repeatStatement implements `repeat stmt until (cond);`: body runs at least
// once, loop continues while cond is falsey (Lua-style post-condition
// loop), per SPEC_FULL.md's supplemented-loop decision.
func (c *compiler) repeatStatement() {
	loopStart := len(c.fs.chunk.Code)
	lc := c.pushLoop()

	c.statement()
	lc.continueTarget = len(c.fs.chunk.Code)

	c.consume(token.UNTIL, "Expect 'until' after repeat body.")
	c.consume(token.LPAREN, "Expect '(' after 'until'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")
	c.consume(token.SEMICOLON, "Expect ';' after 'until' condition.")

	c.emitCondLoop(OpLoopIfFalse, loopStart)
	c.popLoop()
}

func (c *compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")

	switch {
	case c.match(token.SEMICOLON):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.fs.chunk.Code)
	lc := c.pushLoop()
	lc.continueTarget = loopStart

	exitJump := -1
	if !c.check(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = c.emitJump(OpJumpIfFalse)
		c.emitOp(OpPop)
	} else {
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")
	}

	if !c.check(token.RPAREN) {
		bodyJump := c.emitJump(OpJump)
		incrStart := len(c.fs.chunk.Code)
		c.expression()
		c.emitOp(OpPop)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrStart
		lc.continueTarget = incrStart
		c.patchJump(bodyJump)
	} else {
		c.consume(token.RPAREN, "Expect ')' after for clauses.")
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(OpPop)
	}
	c.popLoop()
	c.endScope()
}

// switchStatement implements spec.md §4.2's switch: the subject stays on
// the stack (compared non-destructively via OP_SWITCH_EQUAL) until every
// case has been tried, then is popped once at the end.
func (c *compiler) switchStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'switch'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after switch subject.")
	c.consume(token.COLON, "Expect ':' after switch subject.")

	var doneJumps []int
	for c.match(token.CASE) {
		c.expression()
		c.consume(token.COLON, "Expect ':' after case expression.")
		c.emitOp(OpSwitchEqual)
		falseJump := c.emitJump(OpJumpIfFalse)
		c.emitOp(OpPop) // discard the comparison result (true branch)
		c.statement()
		doneJumps = append(doneJumps, c.emitJump(OpJump))
		c.patchJump(falseJump)
		c.emitOp(OpPop) // discard the comparison result (false branch)
	}
	if c.match(token.DEFAULT) {
		c.consume(token.COLON, "Expect ':' after 'default'.")
		c.statement()
	}
	for _, j := range doneJumps {
		c.patchJump(j)
	}
	c.emitOp(OpPop) // discard the switch subject
}

func (c *compiler) breakStatement() {
	lc := c.currentLoop()
	if lc == nil {
		c.error("Can't use 'break' outside of a loop.")
		c.consume(token.SEMICOLON, "Expect ';' after 'break'.")
		return
	}
	c.consume(token.SEMICOLON, "Expect ';' after 'break'.")
	lc.breakJumps = append(lc.breakJumps, c.emitJump(OpJump))
}

func (c *compiler) continueStatement() {
	lc := c.currentLoop()
	if lc == nil {
		c.error("Can't use 'continue' outside of a loop.")
		c.consume(token.SEMICOLON, "Expect ';' after 'continue'.")
		return
	}
	c.consume(token.SEMICOLON, "Expect ';' after 'continue'.")
	c.emitLoop(lc.continueTarget)
}

func (c *compiler) returnStatement() {
	if c.fs.kind == ScriptFunc {
		c.error("Can't return from top-level code.")
	}
	if c.match(token.SEMICOLON) {
		c.emitReturn()
		return
	}
	if c.fs.kind == InitializerFunc {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after return value.")
	c.emitOp(OpReturn)
}
