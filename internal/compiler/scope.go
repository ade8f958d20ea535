package compiler

import "github.com/crispy-lang/crispy/internal/object"

// Variable is what a scope's symbol table maps an identifier to: the slot
// it occupies in its owning frame, which frame that is (1-based, matching
// the LOAD_OFFSET/STORE_OFFSET `frame` operand), and whether `val`
// forbids reassignment (§4.2).
type Variable struct {
	Index      int
	FrameDepth int
	Assignable bool
}

// frameCtx tracks one compile-time frame while it is being emitted into:
// its own scope stack (nested blocks), the next free variable slot, and
// its depth in the compiler's frame stack (§3.4's "per-scope variable
// table array", specialized per frame since lambdas nest frames, not just
// blocks).
type frameCtx struct {
	frame    *object.Frame
	scopes   []map[string]*Variable
	nextSlot int
	depth    int // 1-based; global frame is 1
}

func newFrameCtx(frame *object.Frame, depth int) *frameCtx {
	fc := &frameCtx{frame: frame, depth: depth}
	fc.pushScope()
	return fc
}

func (fc *frameCtx) pushScope() {
	fc.scopes = append(fc.scopes, map[string]*Variable{})
}

func (fc *frameCtx) popScope() {
	fc.scopes = fc.scopes[:len(fc.scopes)-1]
}

func (fc *frameCtx) currentScope() map[string]*Variable {
	return fc.scopes[len(fc.scopes)-1]
}

func (c *Compiler) currentFrame() *frameCtx {
	return c.frames[len(c.frames)-1]
}

// declare reserves a new variable slot in the innermost scope of the
// current frame. Redeclaration in the same scope and slot overflow past
// 256 are both compile errors (§3.5, §4.2).
func (c *Compiler) declare(name string, assignable bool) *Variable {
	fc := c.currentFrame()
	scope := fc.currentScope()
	if _, ok := scope[name]; ok {
		c.errorAtCurrent("Variable %q already declared in this scope", name)
	}
	if fc.nextSlot >= 256 {
		c.errorAtCurrent("Too many variables in one frame (max 256)")
	}
	v := &Variable{Index: fc.nextSlot, FrameDepth: fc.depth, Assignable: assignable}
	fc.nextSlot++
	scope[name] = v

	// Keep the frame's Variables vector sized to the slots declared so
	// far, so a lambda's template frame is already the right size by the
	// time a call clones it, and the global frame grows in place across
	// successive REPL lines without disturbing values already stored.
	if len(fc.frame.Variables) < fc.nextSlot {
		grown := make([]object.Value, fc.nextSlot)
		copy(grown, fc.frame.Variables)
		fc.frame.Variables = grown
	}

	return v
}

// resolve walks scope tables from the current frame/scope outward to the
// global frame, returning the first match (§4.2's "walk scope tables from
// current depth down to 0"). Unknown names are a compile error at the
// call site, left to callers so they can phrase the message.
func (c *Compiler) resolve(name string) (*Variable, bool) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		fc := c.frames[i]
		for j := len(fc.scopes) - 1; j >= 0; j-- {
			if v, ok := fc.scopes[j][name]; ok {
				return v, true
			}
		}
	}
	return nil, false
}
