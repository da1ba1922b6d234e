// Package compiler translates Chef source into bytecode in a single pass:
// recursive descent over statements, precedence climbing over expressions,
// with instructions emitted as soon as they are parsed. No syntax tree is
// built.
package compiler

import (
	"chef/internal/bytecode"
	cheferrors "chef/internal/errors"
	"chef/internal/lexer"
)

// Compile turns source into the top-level script function. On failure it
// returns every diagnostic collected for the source as a
// *errors.CompileErrorList; no function reaches the VM in that case.
func Compile(source string) (*bytecode.Function, error) {
	c := &Compiler{
		scanner: lexer.NewScanner(source),
		errs:    &cheferrors.CompileErrorList{},
		globals: make(map[string]bool),
	}
	c.context = newContext(nil, "")

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}
	fn := c.endContext()
	if c.errs.HasErrors() {
		return nil, c.errs
	}
	return fn, nil
}

// Compiler holds the parser state shared by every function context of one
// compilation.
type Compiler struct {
	scanner   *lexer.Scanner
	previous  lexer.Token
	current   lexer.Token
	context   *context
	errs      *cheferrors.CompileErrorList
	panicMode bool

	// top-level names already declared in this compilation unit
	globals map[string]bool
}

// local is one declared variable of the function being compiled. depth is
// -1 until the initializer has finished, which is what catches a local
// read inside its own initializer.
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// context is the per-function compiler state. Contexts nest through
// enclosing while nested utensil bodies compile.
type context struct {
	enclosing  *context
	function   *bytecode.Function
	locals     []local
	scopeDepth int
}

func newContext(enclosing *context, name string) *context {
	return &context{
		enclosing: enclosing,
		function:  bytecode.NewFunction(name),
	}
}

func (c *Compiler) endContext() *bytecode.Function {
	c.emitReturn()
	fn := c.context.function
	c.context = c.context.enclosing
	return fn
}

// --- declarations and statements ---

func (c *Compiler) declaration() {
	if c.match(lexer.TokenIngredient) {
		c.varDeclaration()
	} else if c.match(lexer.TokenRecipe) {
		c.funDeclaration()
	} else {
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	c.consume(lexer.TokenIdent, "Expect ingredient name.")
	name := c.previous.Lexeme
	c.declareVariable(name)
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after ingredient declaration.")
	c.defineVariable(name)
}

func (c *Compiler) funDeclaration() {
	c.consume(lexer.TokenIdent, "Expect utensil name.")
	name := c.previous.Lexeme
	c.declareVariable(name)
	// A utensil may call itself; its name is usable inside its own body.
	c.markInitialized()
	c.function(name)
	c.defineVariable(name)
}

func (c *Compiler) function(name string) {
	c.context = newContext(c.context, name)
	c.beginScope()

	c.consume(lexer.TokenLParen, "Expect '(' after utensil name.")
	if !c.check(lexer.TokenRParen) {
		for {
			if c.context.function.Arity == bytecode.MaxArity {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			c.context.function.Arity++
			c.consume(lexer.TokenIdent, "Expect parameter name.")
			c.declareVariable(c.previous.Lexeme)
			c.markInitialized()
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLBrace, "Expect '{' before utensil body.")
	c.block()

	fn := c.endContext()
	index, err := c.currentChunk().AddConstant(fn)
	if err != nil {
		c.error("Too many constants in one chunk.")
		return
	}
	c.emitOp(bytecode.OpClosure)
	c.emitByte(byte(index))
	for _, up := range fn.Upvalues {
		isLocal := byte(0)
		if up.IsLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitByte(up.Index)
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenTaste):
		c.printStatement()
	case c.match(lexer.TokenCheck):
		c.checkStatement()
	case c.match(lexer.TokenStir):
		c.stirStatement()
	case c.match(lexer.TokenServe):
		c.serveStatement()
	case c.match(lexer.TokenLBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(lexer.TokenOtherwise):
		c.error("'otherwise' without a matching 'check'.")
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) checkStatement() {
	c.expression()
	c.consume(lexer.TokenThen, "Expect 'then' after check condition.")
	c.consume(lexer.TokenLBrace, "Expect '{' after 'then'.")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.beginScope()
	c.block()
	c.endScope()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(lexer.TokenOtherwise) {
		c.consume(lexer.TokenLBrace, "Expect '{' after 'otherwise'.")
		c.beginScope()
		c.block()
		c.endScope()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) stirStatement() {
	loopStart := len(c.currentChunk().Code)
	c.expression()
	c.consume(lexer.TokenLBrace, "Expect '{' after stir condition.")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.beginScope()
	c.block()
	c.endScope()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) serveStatement() {
	if c.context.function.IsScript() {
		c.error("Can't serve from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after serve value.")
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRBrace, "Expect '}' after block.")
}

// --- scopes and variable resolution ---

func (c *Compiler) beginScope() {
	c.context.scopeDepth++
}

// endScope pops the scope's locals. A captured local is promoted to its
// closed upvalue cell instead of being discarded.
func (c *Compiler) endScope() {
	ctx := c.context
	ctx.scopeDepth--
	for len(ctx.locals) > 0 && ctx.locals[len(ctx.locals)-1].depth > ctx.scopeDepth {
		if ctx.locals[len(ctx.locals)-1].isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		ctx.locals = ctx.locals[:len(ctx.locals)-1]
	}
}

func (c *Compiler) declareVariable(name string) {
	if c.context.scopeDepth == 0 {
		if c.globals[name] {
			c.error("Already an ingredient with this name in this scope.")
		}
		c.globals[name] = true
		return
	}
	ctx := c.context
	for i := len(ctx.locals) - 1; i >= 0; i-- {
		l := ctx.locals[i]
		if l.depth != -1 && l.depth < ctx.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already an ingredient with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) addLocal(name string) {
	if len(c.context.locals) >= bytecode.MaxLocals {
		c.error("Too many local ingredients in one utensil.")
		return
	}
	c.context.locals = append(c.context.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.context.scopeDepth == 0 {
		return
	}
	c.context.locals[len(c.context.locals)-1].depth = c.context.scopeDepth
}

func (c *Compiler) defineVariable(name string) {
	if c.context.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	index, err := c.currentChunk().AddConstant(name)
	if err != nil {
		c.error("Too many constants in one chunk.")
		return
	}
	c.emitOp(bytecode.OpDefineGlobal)
	c.emitByte(byte(index))
}

// resolveLocal returns the slot of name in ctx, or -1. Reading a local
// inside its own initializer is a compile error.
func (c *Compiler) resolveLocal(ctx *context, name string) int {
	for i := len(ctx.locals) - 1; i >= 0; i-- {
		if ctx.locals[i].name == name {
			if ctx.locals[i].depth == -1 {
				c.error("Can't read ingredient in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue finds name in an enclosing function and threads a capture
// chain down to ctx, one upvalue per level crossed.
func (c *Compiler) resolveUpvalue(ctx *context, name string) int {
	if ctx.enclosing == nil {
		return -1
	}
	if slot := c.resolveLocal(ctx.enclosing, name); slot != -1 {
		ctx.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(ctx, byte(slot), true)
	}
	if index := c.resolveUpvalue(ctx.enclosing, name); index != -1 {
		return c.addUpvalue(ctx, byte(index), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(ctx *context, index byte, isLocal bool) int {
	for i, up := range ctx.function.Upvalues {
		if up.Index == index && up.IsLocal == isLocal {
			return i
		}
	}
	if len(ctx.function.Upvalues) >= bytecode.MaxUpvalues {
		c.error("Too many captured ingredients in one utensil.")
		return 0
	}
	ctx.function.Upvalues = append(ctx.function.Upvalues, bytecode.UpvalueRef{
		IsLocal: isLocal,
		Index:   index,
	})
	return len(ctx.function.Upvalues) - 1
}

// namedVariable emits the get or set sequence for an identifier, resolved
// as local, upvalue, or late-bound global, in that order.
func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	var arg int
	if slot := c.resolveLocal(c.context, name); slot != -1 {
		getOp, setOp, arg = bytecode.OpGetLocal, bytecode.OpSetLocal, slot
	} else if index := c.resolveUpvalue(c.context, name); index != -1 {
		getOp, setOp, arg = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, index
	} else {
		index, err := c.currentChunk().AddConstant(name)
		if err != nil {
			c.error("Too many constants in one chunk.")
			return
		}
		getOp, setOp, arg = bytecode.OpGetGlobal, bytecode.OpSetGlobal, index
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOp(setOp)
		c.emitByte(byte(arg))
	} else {
		c.emitOp(getOp)
		c.emitByte(byte(arg))
	}
}

// --- token plumbing ---

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAt(c.current, c.current.Lexeme)
	}
}

func (c *Compiler) consume(kind lexer.TokenType, message string) {
	if c.current.Type == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) match(kind lexer.TokenType) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) check(kind lexer.TokenType) bool {
	return c.current.Type == kind
}

// synchronize discards tokens until a statement boundary so one bad
// statement does not suppress diagnostics for the next one.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenIngredient, lexer.TokenRecipe, lexer.TokenCheck,
			lexer.TokenStir, lexer.TokenTaste, lexer.TokenServe:
			return
		}
		c.advance()
	}
}

// --- emission ---

func (c *Compiler) currentChunk() *bytecode.Chunk {
	return c.context.function.Chunk
}

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op bytecode.OpCode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitReturn() {
	c.emitOp(bytecode.OpNil)
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) emitConstant(val interface{}) {
	index, err := c.currentChunk().AddConstant(val)
	if err != nil {
		c.error("Too many constants in one chunk.")
		return
	}
	c.emitOp(bytecode.OpConstant)
	c.emitByte(byte(index))
}

// emitJump writes op with a placeholder offset and returns the position to
// patch once the target is known.
func (c *Compiler) emitJump(op bytecode.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > bytecode.MaxJump {
		c.error("Too much code to jump over.")
		return
	}
	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(bytecode.OpLoop)
	offset := len(c.currentChunk().Code) + 2 - loopStart
	if offset > bytecode.MaxJump {
		c.error("Loop body too large.")
		return
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// --- error recording ---

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

// errorAt records one diagnostic and enters panic mode; further errors are
// swallowed until synchronize resets at a statement boundary.
func (c *Compiler) errorAt(token lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	compileErr := &cheferrors.CompileError{
		Line:    token.Line,
		Message: message,
	}
	switch token.Type {
	case lexer.TokenEOF:
		compileErr.AtEnd = true
	case lexer.TokenError:
		// the message already describes the malformed token
	default:
		compileErr.Where = token.Lexeme
	}
	c.errs.Add(compileErr)
}
