package compiler

import (
	"strconv"

	"github.com/crispy-lang/crispy/internal/bytecode"
	"github.com/crispy-lang/crispy/internal/object"
	"github.com/crispy-lang/crispy/internal/token"
)

// expr compiles one expression, dispatching on the grammar's top-level
// alternatives before falling through to the assignment/precedence chain
// (§4.2).
func (c *Compiler) expr() {
	switch {
	case c.check(token.FUN):
		c.lambdaExpr()
	case c.check(token.LBRACE):
		c.bracedExpr()
	case c.check(token.IF):
		c.ifExpr()
	default:
		c.assignment()
	}
}

func (c *Compiler) assignment() {
	c.logicOr(true)
	if c.check(token.ASSIGN) {
		c.errorAtCurrent("Invalid assignment target")
	}
}

func (c *Compiler) logicOr(canAssign bool) {
	c.logicAnd(canAssign)
	for c.check(token.OR) {
		c.advance()
		c.logicAnd(false)
		c.emitOp(bytecode.OR)
	}
}

func (c *Compiler) logicAnd(canAssign bool) {
	c.equality(canAssign)
	for c.check(token.AND) {
		c.advance()
		c.equality(false)
		c.emitOp(bytecode.AND)
	}
}

func (c *Compiler) equality(canAssign bool) {
	c.comparison(canAssign)
	for c.check(token.EQ) || c.check(token.NEQ) {
		op := c.cur.Kind
		c.advance()
		c.comparison(false)
		if op == token.EQ {
			c.emitOp(bytecode.EQUAL)
		} else {
			c.emitOp(bytecode.NOT_EQUAL)
		}
	}
}

func (c *Compiler) comparison(canAssign bool) {
	c.arith(canAssign)
	for c.check(token.LT) || c.check(token.LE) || c.check(token.GT) || c.check(token.GE) {
		op := c.cur.Kind
		c.advance()
		c.arith(false)
		switch op {
		case token.LT:
			c.emitOp(bytecode.LT)
		case token.LE:
			c.emitOp(bytecode.LE)
		case token.GT:
			c.emitOp(bytecode.GT)
		case token.GE:
			c.emitOp(bytecode.GE)
		}
	}
}

func (c *Compiler) arith(canAssign bool) {
	c.term(canAssign)
	for c.check(token.PLUS) || c.check(token.MINUS) {
		op := c.cur.Kind
		c.advance()
		c.term(false)
		if op == token.PLUS {
			c.emitOp(bytecode.ADD)
		} else {
			c.emitOp(bytecode.SUB)
		}
	}
}

func (c *Compiler) term(canAssign bool) {
	c.factor(canAssign)
	for c.check(token.STAR) || c.check(token.SLASH) || c.check(token.PERCENT) {
		op := c.cur.Kind
		c.advance()
		c.factor(false)
		switch op {
		case token.STAR:
			c.emitOp(bytecode.MUL)
		case token.SLASH:
			c.emitOp(bytecode.DIV)
		case token.PERCENT:
			c.emitOp(bytecode.MOD)
		}
	}
}

// factor handles unary prefix operators and (uniquely in this grammar)
// `**`, treated here as a tight binary level above unary so `-2 ** 2`
// negates the result (`-(2 ** 2)`) rather than the base.
func (c *Compiler) factor(canAssign bool) {
	if c.check(token.BANG) || c.check(token.MINUS) {
		op := c.cur.Kind
		c.advance()
		c.factor(false)
		if op == token.BANG {
			c.emitOp(bytecode.NOT)
		} else {
			c.emitOp(bytecode.NEGATE)
		}
		return
	}
	c.power(canAssign)
}

func (c *Compiler) power(canAssign bool) {
	c.primaryExpr(canAssign)
	if c.check(token.STARSTAR) {
		c.advance()
		c.factor(false)
		c.emitOp(bytecode.POW)
	}
}

// primaryExpr parses one `primary postfix*` production, handling the
// identifier special cases (bare assignment, bare ++/--) before falling
// into the generic postfix loop that every other primary also goes
// through (§4.2).
func (c *Compiler) primaryExpr(canAssign bool) {
	if c.check(token.IDENTIFIER) {
		c.identifierPrimary(canAssign)
		c.postfixChain(canAssign)
		return
	}
	c.literalPrimary()
	c.postfixChain(canAssign)
}

func (c *Compiler) literalPrimary() {
	switch {
	case c.check(token.NUMBER):
		c.numberLiteral()
	case c.check(token.STRING):
		c.stringLiteral()
	case c.check(token.TRUE):
		c.advance()
		c.emitOp(bytecode.TRUE)
	case c.check(token.FALSE):
		c.advance()
		c.emitOp(bytecode.FALSE)
	case c.check(token.NIL):
		c.advance()
		c.emitOp(bytecode.NIL)
	case c.check(token.LPAREN):
		c.advance()
		c.expr()
		c.expect(token.RPAREN, "Expected ')' after expression")
	default:
		c.errorAtCurrent("Unexpected token %s in expression", c.cur.Kind)
	}
}

func (c *Compiler) numberLiteral() {
	lit := c.cur.Literal
	line := c.cur.Line
	c.advance()
	n, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		c.errorAt(line, "Invalid number literal %q", lit)
	}
	c.emitConstant(object.NumberValue(n))
}

// stringLiteral interns the raw bytes between the token's quotes (no
// escape processing, §4.1) and emits the resulting String as a constant.
func (c *Compiler) stringLiteral() {
	lit := c.cur.Literal
	c.advance()
	raw := lit
	if len(raw) >= 2 {
		raw = raw[1 : len(raw)-1]
	}
	s := c.internString(raw)
	c.emitConstant(object.ObjectValue(s))
}

// identifierPrimary resolves name and handles the two forms that bind
// tightest to a bare identifier: `name = expr` and postfix `name++` /
// `name--`. Any other continuation (a postfix `.`/`[`/`(` chain, or
// nothing at all) falls through to a plain LOAD.
func (c *Compiler) identifierPrimary(canAssign bool) {
	name := c.cur.Literal
	line := c.cur.Line
	c.advance()
	v, ok := c.resolve(name)
	if !ok {
		c.errorAt(line, "Undeclared variable %q", name)
	}

	if canAssign && c.check(token.ASSIGN) {
		c.advance()
		if !v.Assignable {
			c.errorAt(line, "Cannot reassign val %q", name)
		}
		c.expr()
		c.emitStore(v)
		c.emitLoad(v)
		return
	}

	if canAssign && (c.check(token.INC) || c.check(token.DEC)) {
		dec := c.cur.Kind == token.DEC
		c.advance()
		if !v.Assignable {
			c.errorAt(line, "Cannot modify val %q", name)
		}
		c.emitIncDecVar(v, dec)
		return
	}

	c.emitLoad(v)
}

// emitIncDecVar compiles a postfix `++`/`--` on a plain variable,
// leaving the pre-increment value as the expression's result. INC_1/
// DEC_1 is only a single-byte-operand fast path for the current frame;
// an enclosing frame's variable (reached through LOAD_OFFSET/
// STORE_OFFSET) is adjusted with the general load-dup-add-store
// sequence instead, since neither opcode carries a frame operand.
func (c *Compiler) emitIncDecVar(v *Variable, dec bool) {
	if v.FrameDepth == c.currentFrame().depth {
		if dec {
			c.emitOp(bytecode.DEC_1)
		} else {
			c.emitOp(bytecode.INC_1)
		}
		c.emitByte(byte(v.Index))
		return
	}
	c.emitLoad(v)
	c.emitOp(bytecode.DUP)
	c.emitConstant(object.NumberValue(1))
	if dec {
		c.emitOp(bytecode.SUB)
	} else {
		c.emitOp(bytecode.ADD)
	}
	c.emitStore(v)
}

// postfixChain compiles zero or more call/field/index postfixes
// following a primary (§4.2's `postfix*`).
func (c *Compiler) postfixChain(canAssign bool) {
	for {
		switch {
		case c.check(token.LPAREN):
			c.advance()
			argc := c.argList()
			c.expect(token.RPAREN, "Expected ')' after argument list")
			c.emitOp(bytecode.CALL)
			c.emitByte(byte(argc))
		case c.check(token.DOT):
			c.advance()
			name := c.expect(token.IDENTIFIER, "Expected field name after '.'").Literal
			key := c.internString(name)
			c.emitConstant(object.ObjectValue(key))
			c.accessOrMutate(canAssign)
		case c.check(token.LBRACKET):
			c.advance()
			c.expr()
			c.expect(token.RBRACKET, "Expected ']' after index expression")
			c.accessOrMutate(canAssign)
		default:
			return
		}
	}
}

// accessOrMutate compiles the tail of a `.field`/`[expr]` postfix once
// the container and key are both already pushed: a plain DICT_GET, an
// assignment (`= expr`, via DICT_PUT), or a peek-adjust-put `++`/`--`
// (§4.2 assign_or_get, §4.3 DICT_PEEK).
func (c *Compiler) accessOrMutate(canAssign bool) {
	switch {
	case canAssign && c.check(token.ASSIGN):
		c.advance()
		c.expr()
		c.emitOp(bytecode.DICT_PUT)
	case canAssign && c.check(token.INC):
		c.advance()
		c.emitOp(bytecode.DICT_PEEK)
		c.emitConstant(object.NumberValue(1))
		c.emitOp(bytecode.ADD)
		c.emitOp(bytecode.DICT_PUT)
	case canAssign && c.check(token.DEC):
		c.advance()
		c.emitOp(bytecode.DICT_PEEK)
		c.emitConstant(object.NumberValue(1))
		c.emitOp(bytecode.SUB)
		c.emitOp(bytecode.DICT_PUT)
	default:
		c.emitOp(bytecode.DICT_GET)
	}
}

func (c *Compiler) argList() int {
	argc := 0
	if c.check(token.RPAREN) {
		return 0
	}
	for {
		c.expr()
		argc++
		if !c.match(token.COMMA) {
			break
		}
	}
	return argc
}

// lambdaExpr: `fun` params `->` expr. Parameters are bound directly from
// the call's argument values by the VM's CALL dispatch (internal/vm),
// not by an emitted STORE prelude, so the compiled body contains only
// the parameter declarations' reserved slots and the body expression.
func (c *Compiler) lambdaExpr() {
	c.advance() // 'fun'

	frame := object.NewFrame()
	fc := newFrameCtx(frame, len(c.frames)+1)
	c.frames = append(c.frames, fc)

	arity := 0
	if !c.check(token.ARROW) {
		for {
			name := c.expect(token.IDENTIFIER, "Expected parameter name").Literal
			c.declare(name, true)
			arity++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	if arity > 255 {
		c.errorAtCurrent("A lambda may only have 255 parameters")
	}
	c.expect(token.ARROW, "Expected '->' after lambda parameters")

	c.expr()
	c.emitOp(bytecode.RETURN)

	c.frames = c.frames[:len(c.frames)-1]

	lambda := object.NewLambda(arity, frame)
	c.emitConstant(object.ObjectValue(lambda))
}

// ifExpr: `if` expr block_expr (`else` (if_expr|block_expr))?
func (c *Compiler) ifExpr() {
	c.advance() // 'if'
	c.expr()
	falseJump := c.emitJump(bytecode.JMF)
	if !c.check(token.LBRACE) {
		c.errorAtCurrent("Expected '{' after if condition")
	}
	c.bracedExpr()
	exitJump := c.emitJump(bytecode.JMP)
	c.patchJump(falseJump)

	if c.match(token.ELSE) {
		if c.check(token.IF) {
			c.ifExpr()
		} else {
			if !c.check(token.LBRACE) {
				c.errorAtCurrent("Expected '{' after else")
			}
			c.bracedExpr()
		}
	} else {
		c.emitOp(bytecode.NIL)
	}
	c.patchJump(exitJump)
}

// bracedExpr compiles a `{`-led construct in expression position (an if
// body, a lambda body wrapped in braces, or a bare block expression): an
// empty `{}` or a `{key: value, ...}` pair list compiles as a dict
// literal; anything else is a block of statements whose value is the
// last expression statement's value. That last statement's trailing POP
// is stripped so its value is left on the stack as the block's result;
// if the last statement wasn't a plain expression statement (it was a
// `var`/`val`/`while`/`return`/nested block), the block's value is NIL
// (§4.2).
func (c *Compiler) bracedExpr() {
	c.advance() // '{'

	if c.check(token.RBRACE) || c.checkNext(token.COLON) {
		c.dictLiteral()
		return
	}

	fc := c.currentFrame()
	fc.pushScope()
	lastWasExpr := false
	for !c.check(token.RBRACE) && !c.atEnd() {
		lastWasExpr = c.statementTrackingExpr()
	}
	c.expect(token.RBRACE, "Expected '}' to close block")

	if lastWasExpr {
		code := fc.frame.Code
		if n := len(code); n > 0 && bytecode.Op(code[n-1]) == bytecode.POP {
			fc.frame.Code = code[:n-1]
			fc.frame.Lines = fc.frame.Lines[:n-1]
		}
	} else {
		c.emitOp(bytecode.NIL)
	}
	fc.popScope()
}

// dictLiteral compiles `{` already consumed `key: value, ...` `}`.
func (c *Compiler) dictLiteral() {
	c.emitOp(bytecode.DICT_NEW)
	if !c.check(token.RBRACE) {
		for {
			var key *object.String
			switch {
			case c.check(token.IDENTIFIER):
				key = c.internString(c.cur.Literal)
				c.advance()
			case c.check(token.STRING):
				raw := c.cur.Literal
				if len(raw) >= 2 {
					raw = raw[1 : len(raw)-1]
				}
				key = c.internString(raw)
				c.advance()
			default:
				c.errorAtCurrent("Expected dict key")
			}
			c.emitConstant(object.ObjectValue(key))
			c.expect(token.COLON, "Expected ':' between key and value in dictionary")
			c.expr()
			c.emitOp(bytecode.DICT_PUT)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.expect(token.RBRACE, "Expected '}' after dictionary literal")
}
