// Package compiler implements the single-pass Pratt parser and bytecode
// emitter of spec.md §4.2: there is no intermediate AST — each expression
// resolves precedence and emits bytecode into the current function's Chunk
// in the same walk that parses it.
package compiler

import (
	"fmt"

	"github.com/dolthub/swiss"

	"github.com/mna/aster/lang/heap"
	"github.com/mna/aster/lang/scanner"
	"github.com/mna/aster/lang/token"
	"github.com/mna/aster/lang/value"
)

const (
	maxLocals    = 256
	maxUpvalues  = 256
	maxConstants = 256
	maxArgs      = 255
	maxJump      = 1 << 16
)

// FuncKind tags what a nested compiler is building, distinguishing the
// top-level script from ordinary functions, methods, and constructors — the
// latter two matter only once class bodies are parsed (classes.go).
type FuncKind uint8

const (
	ScriptFunc FuncKind = iota
	PlainFunc
	MethodFunc
	InitializerFunc
)

type local struct {
	name       token.Token
	depth      int // -1 means "declared but not yet initialized"
	isCaptured bool
}

type upvalRef struct {
	isLocal bool
	index   uint8
}

type loopCtx struct {
	continueTarget int
	breakJumps     []int
}

// funcState is "Compiler state (per function being compiled)" from spec.md
// §3: a stack of Locals, an Upvalue array, a scope depth, a link to the
// enclosing compiler, the Function being built, and a function-kind tag.
type funcState struct {
	enclosing  *funcState
	function   *value.Function
	chunk      *Chunk
	kind       FuncKind
	locals     []local
	upvalues   []upvalRef
	scopeDepth int
	loops      []*loopCtx

	// identCache deduplicates identifier-name constants (global, property,
	// and method names) within this function's own constant pool, mirroring
	// the teacher's own pcomp.constants map[interface{}]uint32 dedup cache —
	// ported here to swiss.Map per SPEC_FULL.md §6.6, since this cache
	// carries none of the intern table's identity invariants and is free to
	// use a library map. Scoped per funcState (not per compiler) because,
	// unlike the teacher's single program-wide constant pool, each compiled
	// function here owns its own Chunk and constant pool.
	identCache *swiss.Map[string, byte]
}

// classState tracks nested class declarations, needed to validate `this`
// and `super` usage and whether the enclosing class has a superclass.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// compiler is the whole single-pass compilation process: scanner, one-token
// lookahead, error/panic state, and the funcState/classState chains.
type compiler struct {
	sc  *scanner.Scanner
	h   *heap.Heap
	src string

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errors    []error

	fs *funcState
	cc *classState
}

var _ heap.RootSource = (*compiler)(nil)

// MarkRoots marks every Function reachable from the compiler chain: during
// compilation those functions aren't yet wrapped in a Closure and held by
// any VM root, so the heap must be told about them explicitly while a
// collection can still happen mid-compile (spec.md §4.5 mark-roots step 1).
func (c *compiler) MarkRoots(h *heap.Heap) {
	for fs := c.fs; fs != nil; fs = fs.enclosing {
		h.MarkObject(fs.function)
	}
}

// Result is the outcome of compiling one source unit.
type Result struct {
	Function *value.Function
	Errors   []error
}

// Compile compiles src into a top-level script Function. On any compile
// error the returned Function must be discarded (spec.md §7: "compile
// errors prevent execution").
func Compile(src string, h *heap.Heap) Result {
	c := &compiler{sc: scanner.New(src), h: h, src: src}
	h.SetCompilerRoots(c)
	defer h.SetCompilerRoots(nil)

	c.fs = &funcState{function: h.NewFunction(), chunk: NewChunk(), kind: ScriptFunc, identCache: swiss.NewMap[string, byte](16)}
	c.fs.function.Chunk = c.fs.chunk
	// slot 0 of every call frame is reserved: it holds the callee itself (the
	// script's or function's own closure, or the receiver for methods).
	c.fs.locals = append(c.fs.locals, local{name: token.Token{Lexeme: ""}, depth: 0})

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endCompiler()

	return Result{Function: fn, Errors: c.errors}
}

// --- token stream -----------------------------------------------------

func (c *compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.sc.Scan()
		if c.current.Kind != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *compiler) check(k token.Kind) bool { return c.current.Kind == k }

func (c *compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

// matchAssign matches either `=` or its word-form synonym `assigned`.
func (c *compiler) matchAssign() bool {
	return c.match(token.EQUAL) || c.match(token.ASSIGNED)
}

func (c *compiler) consume(k token.Kind, msg string) {
	if c.current.Kind == k {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

// --- error reporting ----------------------------------------------------

func (c *compiler) errorAt(t token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	where := "'" + t.Lexeme + "'"
	if t.Kind == token.EOF {
		where = "end"
	} else if t.IsError() {
		where = ""
	}
	text := fmt.Sprintf("Error at [Line %d]", t.Line)
	if where != "" {
		text += " at " + where
	}
	text += ": " + msg
	c.errors = append(c.errors, fmt.Errorf("%s", text))
}

func (c *compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *compiler) error(msg string)          { c.errorAt(c.previous, msg) }

// synchronize skips tokens until a likely statement boundary, clearing panic
// mode so a single malformed statement doesn't cascade into spurious errors
// for the rest of the file.
func (c *compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.SEMICOLON {
			return
		}
		switch c.current.Kind {
		case token.CLASS, token.FUN, token.FUNCTION, token.VAR, token.FOR, token.IF,
			token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- byte emission -------------------------------------------------------

func (c *compiler) emitByte(b byte) { c.fs.chunk.writeByte(b, c.previous.Line) }
func (c *compiler) emitOp(op OpCode) { c.emitByte(byte(op)) }
func (c *compiler) emitOpByte(op OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *compiler) emitReturn() {
	if c.fs.kind == InitializerFunc {
		c.emitOpByte(OpGetLocal, 0)
	} else {
		c.emitOp(OpNull)
	}
	c.emitOp(OpReturn)
}

func (c *compiler) makeConstant(v value.Value) byte {
	idx := c.fs.chunk.AddConstant(v)
	if idx >= maxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *compiler) emitConstant(v value.Value) {
	c.emitOpByte(OpConstant, c.makeConstant(v))
}

// emitJump writes op followed by a two-byte placeholder, returning the
// placeholder's offset for a later patchJump call.
func (c *compiler) emitJump(op OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.fs.chunk.Code) - 2
}

// patchJump fills in the placeholder at offset with the big-endian distance
// from just past the placeholder to the current end of code.
func (c *compiler) patchJump(offset int) {
	jump := len(c.fs.chunk.Code) - offset - 2
	if jump >= maxJump {
		c.error("Too much code to jump over.")
		return
	}
	c.fs.chunk.Code[offset] = byte((jump >> 8) & 0xff)
	c.fs.chunk.Code[offset+1] = byte(jump & 0xff)
}

// emitLoop writes OP_LOOP followed by the big-endian distance back to
// loopStart: offset = currentCount - loopStart + 2, where the "+2" accounts
// for the two operand bytes not yet written when currentCount is read (the
// opcode byte itself is already included in currentCount at this point).
// spec.md §9 flags an earlier revision that used `=` where `-` was intended
// in this computation; this is the corrected form.
func (c *compiler) emitLoop(loopStart int) {
	c.emitOp(OpLoop)
	offset := len(c.fs.chunk.Code) - loopStart + 2
	if offset >= maxJump {
		c.error("Loop body too large.")
		return
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// emitCondLoop emits OP_LOOP_IF_FALSE/OP_LOOP_IF_TRUE for repeat/until's
// post-condition test; same offset accounting as emitLoop.
func (c *compiler) emitCondLoop(op OpCode, loopStart int) {
	c.emitOp(op)
	offset := len(c.fs.chunk.Code) - loopStart + 2
	if offset >= maxJump {
		c.error("Loop body too large.")
		return
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

func (c *compiler) endCompiler() *value.Function {
	c.emitReturn()
	fn := c.fs.function
	fn.UpvalueCount = len(c.fs.upvalues)
	upvalues := c.fs.upvalues
	c.fs = c.fs.enclosing
	if c.fs != nil {
		c.emitOpByte(OpClosure, c.makeConstant(value.Obj_(fn)))
		for _, uv := range upvalues {
			var isLocalByte byte
			if uv.isLocal {
				isLocalByte = 1
			}
			c.emitByte(isLocalByte)
			c.emitByte(uv.index)
		}
	}
	return fn
}

// --- scopes and locals ---------------------------------------------------

func (c *compiler) beginScope() { c.fs.scopeDepth++ }

func (c *compiler) endScope() {
	c.fs.scopeDepth--
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		last := c.fs.locals[len(c.fs.locals)-1]
		if last.isCaptured {
			c.emitOp(OpCloseUpvalue)
		} else {
			c.emitOp(OpPop)
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
}

func identifiersEqual(a, b token.Token) bool { return a.Lexeme == b.Lexeme }

func (c *compiler) addLocal(name token.Token) {
	if len(c.fs.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1})
}

func (c *compiler) declareVariable() {
	if c.fs.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		if identifiersEqual(name, l.name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *compiler) parseVariable(errMsg string) byte {
	c.consume(token.IDENT, errMsg)
	c.declareVariable()
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

// identifierConstant interns name as a heap string and adds it to the
// constant pool, reusing the same constant-pool slot for repeated uses of
// the same identifier within one function (every global/property/method
// name reference re-reads the same lexeme, so without this cache a chatty
// script would blow through the 256-constant ceiling on name constants
// alone).
func (c *compiler) identifierConstant(name token.Token) byte {
	if idx, ok := c.fs.identCache.Get(name.Lexeme); ok {
		return idx
	}
	idx := c.makeConstant(value.Obj_(c.h.CopyString([]byte(name.Lexeme))))
	c.fs.identCache.Put(name.Lexeme, idx)
	return idx
}

func (c *compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

func (c *compiler) defineVariable(global byte) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(OpDefineGlobal, global)
}

func (c *compiler) resolveLocal(fs *funcState, name token.Token) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if identifiersEqual(name, l.name) {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *compiler) resolveUpvalue(fs *funcState, name token.Token) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fs, uint8(local), true)
	}
	if up := c.resolveUpvalue(fs.enclosing, name); up != -1 {
		return c.addUpvalue(fs, uint8(up), false)
	}
	return -1
}

func (c *compiler) addUpvalue(fs *funcState, index uint8, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalRef{isLocal: isLocal, index: index})
	return len(fs.upvalues) - 1
}
