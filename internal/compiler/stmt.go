package compiler

import (
	"github.com/crispy-lang/crispy/internal/bytecode"
	"github.com/crispy-lang/crispy/internal/token"
)

// statement compiles one statement. topLevel is true only for statements
// compiled directly by program()'s loop (not nested inside a block, if,
// while, or lambda body); it gates the interactive "print last
// expression" rule (§4.2).
func (c *Compiler) statement(topLevel bool) {
	switch {
	case c.check(token.WHILE):
		c.whileStatement()
	case c.check(token.LBRACE):
		c.blockStatement(topLevel)
	case c.check(token.RETURN):
		c.returnStatement()
	case c.check(token.VAR) || c.check(token.VAL):
		c.varDecl()
	default:
		c.exprStatement(topLevel)
	}
}

// whileStatement: `while` expr block_stmt. The body is a block_stmt: it
// follows the same dict-literal-ambiguity check as block_expr (§4.2), but
// unlike block_expr it never produces a value of its own.
func (c *Compiler) whileStatement() {
	c.advance() // 'while'
	start := len(c.currentFrame().frame.Code)
	c.expr()
	exit := c.emitJump(bytecode.JMF)
	if !c.check(token.LBRACE) {
		c.errorAtCurrent("Expected '{' after while condition")
	}
	c.blockStatement(false)
	c.emitOp(bytecode.JMP)
	c.emitU16(uint16(start))
	c.patchJump(exit)
}

// blockStatement compiles a `{ ... }` used as a statement. It still
// checks for the dict-literal form first: a bare `{k: v}` appearing in
// statement position is a legal expression statement (printed or
// popped like any other), not a nested block (§4.2). Otherwise it opens
// a new scope and compiles each inner statement for effect only — no
// value survives the block.
func (c *Compiler) blockStatement(topLevel bool) {
	c.advance() // '{'

	if c.check(token.RBRACE) || c.checkNext(token.COLON) {
		c.dictLiteral()
		c.finishExprStatement(topLevel)
		return
	}

	fc := c.currentFrame()
	fc.pushScope()
	for !c.check(token.RBRACE) && !c.atEnd() {
		c.statement(false)
	}
	c.expect(token.RBRACE, "Expected '}' to close block")
	fc.popScope()
}

// returnStatement: `return` [expr] ';'? — only valid inside a lambda
// body (frame depth > 1).
func (c *Compiler) returnStatement() {
	line := c.cur.Line
	c.advance() // 'return'
	if len(c.frames) <= 1 {
		c.errorAt(line, "'return' outside of a lambda")
	}
	if c.check(token.SEMICOLON) || c.check(token.RBRACE) || c.atEnd() {
		c.emitOp(bytecode.NIL)
	} else {
		c.expr()
	}
	c.match(token.SEMICOLON)
	c.emitOp(bytecode.RETURN)
}

// varDecl: ('var'|'val') IDENT '=' expr ';'?
func (c *Compiler) varDecl() {
	assignable := c.cur.Kind == token.VAR
	c.advance() // 'var' | 'val'
	name := c.expect(token.IDENTIFIER, "Expected variable name").Literal
	c.expect(token.ASSIGN, "Expected '=' in variable declaration")
	c.expr()
	v := c.declare(name, assignable)
	c.emitStore(v)
	c.match(token.SEMICOLON)
}

// exprStatement: expr ';'? — in interactive mode, a top-level expression
// statement prints its value instead of discarding it (§4.2's
// print_expr latch).
func (c *Compiler) exprStatement(topLevel bool) {
	c.expr()
	c.finishExprStatement(topLevel)
}

// finishExprStatement consumes the value an expression statement left
// on the stack: printed when it's a top-level statement in an
// interactive session, discarded otherwise.
func (c *Compiler) finishExprStatement(topLevel bool) {
	c.match(token.SEMICOLON)
	if topLevel && c.interactive && len(c.frames) == 1 {
		c.emitOp(bytecode.PRINT)
		return
	}
	c.emitOp(bytecode.POP)
}

// statementTrackingExpr compiles one statement the way statement(false)
// does, but also reports whether it was a plain expression statement —
// used by block_expr to decide whether the block's trailing POP should
// be stripped to leave the expression's value as the block's value
// (§4.2).
func (c *Compiler) statementTrackingExpr() bool {
	switch {
	case c.check(token.WHILE):
		c.whileStatement()
	case c.check(token.LBRACE):
		c.blockStatement(false)
	case c.check(token.RETURN):
		c.returnStatement()
	case c.check(token.VAR) || c.check(token.VAL):
		c.varDecl()
	default:
		c.exprStatement(false)
		return true
	}
	return false
}
