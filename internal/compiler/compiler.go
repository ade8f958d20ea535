// Package compiler implements Crispy's single-pass compiler: a
// recursive-descent, precedence-climbing parser that emits bytecode
// directly into a call frame's code buffer as it recognizes each
// production, with no intermediate syntax tree (§4.2).
package compiler

import (
	"github.com/crispy-lang/crispy/internal/bytecode"
	"github.com/crispy-lang/crispy/internal/lexer"
	"github.com/crispy-lang/crispy/internal/object"
	"github.com/crispy-lang/crispy/internal/token"
)

// Compiler holds everything §3.4 calls "the compiler state": the scanner,
// the previous/current/next token window, the compile-time frame stack
// (one entry per lambda nesting level, plus the permanent global frame at
// depth 1), and the interactive-shell bookkeeping.
//
// A single Compiler is reused across every line submitted to the shell so
// that global variable declarations and the global frame's constant pool
// persist between lines, matching a long-lived REPL session; file mode
// constructs one Compiler, calls Compile once, and discards it.
type Compiler struct {
	lex *lexer.Lexer

	prev, cur, next token.Token

	frames []*frameCtx

	interns     *object.InternTable
	interactive bool
}

// New creates a Compiler over the permanent global frame. reserved is the
// set of standard-library names registered in global scope before any
// user source is compiled (§6). They are declared first, in order, so
// they occupy globalFrame.Variables[0..len(reserved)-1]; the caller fills
// those slots with the native function values after New returns (see
// stdlib.Register) and before running any compiled code.
func New(globalFrame *object.Frame, interns *object.InternTable, interactive bool, reserved []string) *Compiler {
	c := &Compiler{interns: interns, interactive: interactive}
	c.frames = []*frameCtx{newFrameCtx(globalFrame, 1)}
	for _, name := range reserved {
		c.declare(name, false)
	}
	return c
}

// GlobalFrame returns the frame the compiler's outermost scope emits
// into.
func (c *Compiler) GlobalFrame() *object.Frame {
	return c.frames[0].frame
}

// Compile compiles a complete program (file mode): every top-level
// statement in src, followed by a trailing RETURN so the interpreter loop
// terminates normally at frame depth 1 (§4.4).
func (c *Compiler) Compile(src string) (err error) {
	defer c.recoverCompileError(&err)
	c.resetSource(src)
	c.program()
	c.emitOp(bytecode.RETURN)
	return nil
}

// CompileLine compiles one shell input (interactive mode): the global
// frame's code buffer is replaced (old bytecode is never re-run), but its
// constants, variables, and scope symbol tables persist across lines, the
// same way the underlying VM's variable storage persists between REPL
// submissions.
func (c *Compiler) CompileLine(src string) (err error) {
	defer c.recoverCompileError(&err)
	global := c.frames[0].frame
	global.Code = nil
	global.Lines = nil
	global.IP = 0
	c.resetSource(src)
	c.program()
	c.emitOp(bytecode.RETURN)
	return nil
}

func (c *Compiler) recoverCompileError(err *error) {
	if r := recover(); r != nil {
		a, ok := r.(abort)
		if !ok {
			panic(r)
		}
		*err = a.err
	}
}

func (c *Compiler) resetSource(src string) {
	c.lex = lexer.New(src)
	c.prev = token.Token{Kind: token.ERROR, Line: 1}
	c.cur = c.scan()
	c.next = c.scan()
}

// scan pulls the next non-ERROR token from the lexer, turning a lexical
// ERROR token straight into a compile error (§7).
func (c *Compiler) scan() token.Token {
	t := c.lex.NextToken()
	if t.Kind == token.ERROR {
		c.errorAt(t.Line, "%s", t.Literal)
	}
	return t
}

func (c *Compiler) advance() {
	c.prev = c.cur
	c.cur = c.next
	c.next = c.scan()
}

func (c *Compiler) check(k token.Kind) bool {
	return c.cur.Kind == k
}

func (c *Compiler) checkNext(k token.Kind) bool {
	return c.next.Kind == k
}

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) expect(k token.Kind, msg string) token.Token {
	if !c.check(k) {
		c.errorAtCurrent("%s (got %s)", msg, c.cur.Kind)
	}
	t := c.cur
	c.advance()
	return t
}

func (c *Compiler) atEnd() bool {
	return c.cur.Kind == token.EOF
}

func (c *Compiler) program() {
	for !c.atEnd() {
		c.statement(true)
	}
}

// --- emission helpers -------------------------------------------------

func (c *Compiler) emitByte(b byte) {
	fc := c.currentFrame()
	fc.frame.Code = append(fc.frame.Code, b)
	fc.frame.Lines = append(fc.frame.Lines, c.prev.Line)
}

func (c *Compiler) emitOp(op bytecode.Op) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitU16(v uint16) {
	c.emitByte(byte(v >> 8))
	c.emitByte(byte(v))
}

// emitJump writes op followed by a placeholder address and returns the
// patch site (the offset of the placeholder itself), per §4.2.
func (c *Compiler) emitJump(op bytecode.Op) int {
	c.emitOp(op)
	site := len(c.currentFrame().frame.Code)
	c.emitU16(bytecode.MaxJumpAddress)
	return site
}

// patchJump fills in the placeholder at site with the current code
// length (the jump-to-here address).
func (c *Compiler) patchJump(site int) {
	c.patchJumpTo(site, len(c.currentFrame().frame.Code))
}

func (c *Compiler) patchJumpTo(site int, addr int) {
	if addr > bytecode.MaxJumpAddress {
		c.errorAtCurrent("Jump target %d exceeds the maximum of %d", addr, bytecode.MaxJumpAddress)
	}
	bytecode.PatchU16(c.currentFrame().frame.Code, site, uint16(addr))
}

// addConstant appends v to the current frame's constant pool and returns
// its index, failing the compile if the pool overflows (§3.5).
func (c *Compiler) addConstant(v object.Value) int {
	fc := c.currentFrame()
	if len(fc.frame.Constants) >= bytecode.MaxConstants {
		c.errorAtCurrent("Too many constants in one frame (max %d)", bytecode.MaxConstants)
	}
	fc.frame.Constants = append(fc.frame.Constants, v)
	return len(fc.frame.Constants) - 1
}

// emitConstant emits the load for v, taking the LDC_0/LDC_1 shortcuts for
// the literals 0 and 1 and LDC/LDC_W depending on how large the resulting
// index is (§4.2).
func (c *Compiler) emitConstant(v object.Value) {
	if v.Kind == object.Number {
		if v.Num == 0 {
			c.emitOp(bytecode.LDC_0)
			return
		}
		if v.Num == 1 {
			c.emitOp(bytecode.LDC_1)
			return
		}
	}
	idx := c.addConstant(v)
	if idx <= 0xFF {
		c.emitOp(bytecode.LDC)
		c.emitByte(byte(idx))
	} else {
		c.emitOp(bytecode.LDC_W)
		c.emitU16(uint16(idx))
	}
}

// internString interns raw's bytes (the token literal between its
// quotes, unescaped per §4.1) and returns the canonical String; callers
// emit it as a constant themselves.
func (c *Compiler) internString(raw string) *object.String {
	return c.interns.Intern([]byte(raw))
}

func (c *Compiler) emitLoad(v *Variable) {
	fc := c.currentFrame()
	if v.FrameDepth == fc.depth {
		c.emitOp(bytecode.LOAD)
		c.emitByte(byte(v.Index))
		return
	}
	c.emitOp(bytecode.LOAD_OFFSET)
	c.emitByte(byte(v.FrameDepth))
	c.emitByte(byte(v.Index))
}

func (c *Compiler) emitStore(v *Variable) {
	fc := c.currentFrame()
	if v.FrameDepth == fc.depth {
		c.emitOp(bytecode.STORE)
		c.emitByte(byte(v.Index))
		return
	}
	c.emitOp(bytecode.STORE_OFFSET)
	c.emitByte(byte(v.FrameDepth))
	c.emitByte(byte(v.Index))
}
