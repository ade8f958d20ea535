package compiler

import "fmt"

// CompileError is a single compile-time failure: an unexpected token, an
// undeclared name, a redeclaration, reassignment of a `val`, a pool that
// overflowed, or a jump target too large (§7). Exactly one CompileError
// ever escapes a single Compile call — the compiler aborts at the first
// one rather than accumulating a list.
type CompileError struct {
	Line int
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("[Line %d] %s", e.Line, e.Msg)
}

// abort is the payload panicked by errorAt and recovered only at the top
// of Compile/CompileLine. This plays the role of the original
// implementation's longjmp out of deeply recursive parsing (§9): a
// panic/recover pair scoped to this package rather than a non-local jump,
// and it never crosses the package boundary unrecovered.
type abort struct{ err *CompileError }

func (c *Compiler) errorAt(line int, format string, args ...interface{}) {
	panic(abort{&CompileError{Line: line, Msg: fmt.Sprintf(format, args...)}})
}

func (c *Compiler) errorAtCurrent(format string, args ...interface{}) {
	c.errorAt(c.cur.Line, format, args...)
}
