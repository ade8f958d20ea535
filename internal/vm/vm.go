// Package vm implements Crispy's stack-based interpreter (§4.4): a
// single fetch-decode-dispatch loop over a shared operand stack and an
// explicit frame stack, the CALL/RETURN calling convention for both
// lambdas and native functions, and the mark-and-sweep collector that
// drives internal/object's Heap (§4.5).
package vm

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/crispy-lang/crispy/internal/bytecode"
	"github.com/crispy-lang/crispy/internal/object"
)

// StackCapacity bounds the shared operand stack (§3.4, §3.5). Exceeding
// it is a FatalError, the same class of failure as a call stack that
// outgrows maxCallDepth.
const StackCapacity = 256

// maxCallDepth bounds the frame stack. Crispy has no tail-call
// elimination, so unbounded recursion must fail with a FatalError
// rather than exhaust the host process's own stack.
const maxCallDepth = 256

// VM is a reusable Crispy interpreter: one heap, one interned-string
// table, and the operand/frame stacks an in-progress Run call uses.
// A single VM persists across an interactive session's successive
// CompileLine/Run round-trips the same way its heap and interned
// strings do, matching the compiler's own reused-across-lines design.
type VM struct {
	heap    *object.Heap
	interns *object.InternTable

	stack []object.Value
	calls []*object.Frame

	callLine int // source line of the CALL currently dispatching a native, for Fail's trace

	Stdout io.Writer
	Stdin  io.Reader
}

// New creates a VM with a fresh heap (triggering its first collection at
// gcThreshold bytes allocated) and a fresh interned-string table.
func New(gcThreshold int) *VM {
	return &VM{
		heap:    object.NewHeap(gcThreshold),
		interns: object.NewInternTable(),
		Stdout:  os.Stdout,
		Stdin:   os.Stdin,
	}
}

// Heap returns the VM's object heap, for stdlib natives that allocate
// (str, split, input, list all register what they build).
func (vm *VM) Heap() *object.Heap { return vm.heap }

// Interns returns the VM's interned-string table, shared with the
// compiler so that equal literals compiled on different shell lines are
// the same object. Strings built at runtime (concatenation, stdlib
// natives) are not interned.
func (vm *VM) Interns() *object.InternTable { return vm.interns }

// Fail raises a RuntimeError carrying msg from within a native function
// (§6's native-function ABI, `err_flag`). It implements object.VMHandle.
// Like every error path in Run, it works by panicking a payload Run's
// own deferred recover catches — a native's Fail never returns.
func (vm *VM) Fail(msg string) {
	panic(runtimeAbort{&RuntimeError{Msg: msg, Frames: vm.trace(vm.callLine)}})
}

// Exit raises an ExitError carrying code from the `exit` native. Exit
// does not call os.Exit itself; see ExitError's doc comment.
func (vm *VM) Exit(code int) {
	panic(exitAbort{&ExitError{Code: code}})
}

func (vm *VM) runtimeErrorf(line int, format string, args ...interface{}) {
	panic(runtimeAbort{&RuntimeError{Msg: fmt.Sprintf(format, args...), Frames: vm.trace(line)}})
}

func (vm *VM) fatalErrorf(format string, args ...interface{}) {
	panic(fatalAbort{&FatalError{Msg: fmt.Sprintf(format, args...)}})
}

// trace builds a RuntimeError's stack trace from the VM's active frame
// stack: the line an error raised at in the topmost frame, and for every
// enclosing frame the line its own CALL is about to resume at.
func (vm *VM) trace(line int) []TraceFrame {
	frames := make([]TraceFrame, len(vm.calls))
	for i, fr := range vm.calls {
		if i == len(vm.calls)-1 {
			frames[i] = TraceFrame{Line: line}
		} else {
			frames[i] = TraceFrame{Line: fr.LineAt(fr.IP)}
		}
	}
	return frames
}

func (vm *VM) push(v object.Value) {
	if len(vm.stack) >= StackCapacity {
		vm.fatalErrorf("stack overflow")
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() object.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

// Run executes frame from its current IP to the RETURN that unwinds back
// out of it, returning the value that RETURN carried (Nil if none was on
// the stack — the trailing RETURN every compiled frame ends with has
// nothing left to return once every statement already consumed its own
// value). Calls made from within frame push further frames onto the same
// dispatch loop rather than recursing into Run again, so a deeply nested
// Crispy call stack costs one Go-level Run frame, not one per call.
func (vm *VM) Run(frame *object.Frame) (result object.Value, err error) {
	if frame.Ancestors == nil {
		frame.Ancestors = []*object.Frame{frame}
	}
	base := len(vm.calls)
	vm.calls = append(vm.calls, frame)

	defer func() {
		if r := recover(); r != nil {
			vm.calls = vm.calls[:base]
			switch a := r.(type) {
			case runtimeAbort:
				err = a.err
			case fatalAbort:
				err = a.err
			case exitAbort:
				err = a.err
			default:
				panic(r)
			}
		}
	}()

	for {
		cur := vm.calls[len(vm.calls)-1]
		op := bytecode.Op(cur.Code[cur.IP])
		line := cur.LineAt(cur.IP)
		cur.IP++

		switch op {
		case bytecode.NOP:

		case bytecode.TRUE:
			vm.push(object.BoolValue(true))
		case bytecode.FALSE:
			vm.push(object.BoolValue(false))
		case bytecode.NIL:
			vm.push(object.NilValue)

		case bytecode.LDC:
			idx := int(cur.Code[cur.IP])
			cur.IP++
			vm.push(vm.loadConstant(cur, idx))
		case bytecode.LDC_W:
			idx := int(bytecode.ReadU16(cur.Code, cur.IP))
			cur.IP += 2
			vm.push(vm.loadConstant(cur, idx))
		case bytecode.LDC_0:
			vm.push(object.NumberValue(0))
		case bytecode.LDC_1:
			vm.push(object.NumberValue(1))

		case bytecode.LOAD:
			idx := cur.Code[cur.IP]
			cur.IP++
			vm.push(cur.Variables[idx])
		case bytecode.STORE:
			idx := cur.Code[cur.IP]
			cur.IP++
			cur.Variables[idx] = vm.pop()
		case bytecode.LOAD_OFFSET:
			depth := cur.Code[cur.IP]
			idx := cur.Code[cur.IP+1]
			cur.IP += 2
			vm.push(cur.Ancestors[depth-1].Variables[idx])
		case bytecode.STORE_OFFSET:
			depth := cur.Code[cur.IP]
			idx := cur.Code[cur.IP+1]
			cur.IP += 2
			cur.Ancestors[depth-1].Variables[idx] = vm.pop()

		case bytecode.DUP:
			vm.push(vm.stack[len(vm.stack)-1])
		case bytecode.POP:
			vm.pop()

		case bytecode.ADD:
			vm.execAdd(line)
		case bytecode.SUB:
			vm.execArith(line, "-", func(a, b float64) float64 { return a - b })
		case bytecode.MUL:
			vm.execArith(line, "*", func(a, b float64) float64 { return a * b })
		case bytecode.DIV:
			b := vm.pop()
			a := vm.pop()
			if a.Kind != object.Number || b.Kind != object.Number {
				vm.runtimeErrorf(line, "cannot divide %s by %s", a.TypeName(), b.TypeName())
			}
			if b.Num == 0 {
				vm.fatalErrorf("division by zero")
			}
			vm.push(object.NumberValue(a.Num / b.Num))
		case bytecode.MOD:
			b := vm.pop()
			a := vm.pop()
			if a.Kind != object.Number || b.Kind != object.Number {
				vm.runtimeErrorf(line, "cannot divide %s by %s", a.TypeName(), b.TypeName())
			}
			if b.Num == 0 {
				vm.fatalErrorf("division by zero")
			}
			vm.push(object.NumberValue(math.Mod(a.Num, b.Num)))
		case bytecode.POW:
			vm.execArith(line, "**", math.Pow)

		case bytecode.NEGATE:
			a := vm.pop()
			if a.Kind != object.Number {
				vm.runtimeErrorf(line, "cannot negate a %s", a.TypeName())
			}
			vm.push(object.NumberValue(-a.Num))
		case bytecode.NOT:
			a := vm.pop()
			vm.push(object.BoolValue(!a.IsTruthy()))

		case bytecode.AND:
			b := vm.pop()
			a := vm.pop()
			vm.push(object.BoolValue(a.IsTruthy() && b.IsTruthy()))
		case bytecode.OR:
			b := vm.pop()
			a := vm.pop()
			vm.push(object.BoolValue(a.IsTruthy() || b.IsTruthy()))

		case bytecode.EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(object.BoolValue(object.Equal(a, b)))
		case bytecode.NOT_EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(object.BoolValue(!object.Equal(a, b)))
		case bytecode.LT:
			vm.execCompare(line, func(cmp int) bool { return cmp < 0 })
		case bytecode.LE:
			vm.execCompare(line, func(cmp int) bool { return cmp <= 0 })
		case bytecode.GT:
			vm.execCompare(line, func(cmp int) bool { return cmp > 0 })
		case bytecode.GE:
			vm.execCompare(line, func(cmp int) bool { return cmp >= 0 })

		case bytecode.JMP:
			addr := bytecode.ReadU16(cur.Code, cur.IP)
			cur.IP = int(addr)
		case bytecode.JMT:
			addr := bytecode.ReadU16(cur.Code, cur.IP)
			cur.IP += 2
			if vm.pop().IsTruthy() {
				cur.IP = int(addr)
			}
		case bytecode.JMF:
			addr := bytecode.ReadU16(cur.Code, cur.IP)
			cur.IP += 2
			if !vm.pop().IsTruthy() {
				cur.IP = int(addr)
			}
		case bytecode.JEQ, bytecode.JNE, bytecode.JLT, bytecode.JLE, bytecode.JGT, bytecode.JGE:
			addr := bytecode.ReadU16(cur.Code, cur.IP)
			cur.IP += 2
			b := vm.pop()
			a := vm.pop()
			if vm.legacyBranchHolds(line, op, a, b) {
				cur.IP = int(addr)
			}

		case bytecode.INC_1, bytecode.DEC_1:
			idx := cur.Code[cur.IP]
			cur.IP++
			old := cur.Variables[idx]
			if old.Kind != object.Number {
				vm.runtimeErrorf(line, "cannot increment a %s", old.TypeName())
			}
			vm.push(old)
			if op == bytecode.INC_1 {
				cur.Variables[idx] = object.NumberValue(old.Num + 1)
			} else {
				cur.Variables[idx] = object.NumberValue(old.Num - 1)
			}

		case bytecode.CALL:
			argc := int(cur.Code[cur.IP])
			cur.IP++
			vm.execCall(line, argc)

		case bytecode.RETURN:
			rv := object.NilValue
			if len(vm.stack) > 0 {
				rv = vm.pop()
			}
			if len(vm.calls) == base+1 {
				vm.calls = vm.calls[:base]
				return rv, nil
			}
			vm.calls = vm.calls[:len(vm.calls)-1]
			vm.push(rv)

		case bytecode.DICT_NEW:
			d := object.NewDict()
			vm.heap.Register(d)
			vm.push(object.ObjectValue(d))
		case bytecode.DICT_PUT:
			value := vm.pop()
			key := vm.pop()
			dict := vm.pop()
			d, ks := vm.asDict(line, dict), vm.asKeyString(line, key)
			d.Put(ks, value)
			vm.push(dict)
		case bytecode.DICT_GET:
			key := vm.pop()
			dict := vm.pop()
			d, ks := vm.asDict(line, dict), vm.asKeyString(line, key)
			vm.push(d.Get(ks))
		case bytecode.DICT_PEEK:
			n := len(vm.stack)
			key := vm.stack[n-1]
			dict := vm.stack[n-2]
			d, ks := vm.asDict(line, dict), vm.asKeyString(line, key)
			vm.push(d.Get(ks))

		case bytecode.LIST_NEW:
			l := object.NewList()
			vm.heap.Register(l)
			vm.push(object.ObjectValue(l))
		case bytecode.LIST_SET:
			value := vm.pop()
			index := vm.pop()
			list := vm.pop()
			l := vm.asList(line, list)
			i := vm.listIndex(line, l, index)
			l.Elems[i] = value
			vm.push(list)
		case bytecode.LIST_GET:
			index := vm.pop()
			list := vm.pop()
			l := vm.asList(line, list)
			i := vm.listIndex(line, l, index)
			vm.push(l.Elems[i])

		case bytecode.PRINT:
			v := vm.pop()
			fmt.Fprintf(vm.Stdout, "> %s\n", v.String())

		default:
			vm.fatalErrorf("unknown opcode %d", op)
		}

		vm.maybeCollect()
	}
}

// loadConstant returns the constant at idx in frame's pool, wrapping a
// raw *object.Lambda into a fresh *object.Closure that captures the
// currently executing frame's Ancestors (§3.3, §9): this is what makes a
// lambda expression's evaluation (as opposed to its definition) produce
// a value that still reaches its defining scope after that scope's own
// call has returned (S2).
func (vm *VM) loadConstant(frame *object.Frame, idx int) object.Value {
	v := frame.Constants[idx]
	if v.Kind != object.ObjRef {
		return v
	}
	lambda, ok := v.Obj.(*object.Lambda)
	if !ok {
		return v
	}
	captured := make([]*object.Frame, len(frame.Ancestors))
	copy(captured, frame.Ancestors)
	closure := object.NewClosure(lambda, captured)
	vm.heap.Register(closure)
	return object.ObjectValue(closure)
}

func (vm *VM) execCall(line, argc int) {
	calleeIdx := len(vm.stack) - argc - 1
	if calleeIdx < 0 {
		vm.fatalErrorf("call stack underflow")
	}
	callee := vm.stack[calleeIdx]
	if callee.Kind != object.ObjRef {
		vm.runtimeErrorf(line, "%s is not callable", callee.TypeName())
	}

	switch fn := callee.Obj.(type) {
	case *object.NativeFunc:
		if fn.Arity != argc {
			vm.runtimeErrorf(line, "%s/%d expects %d argument(s), got %d", fn.Name, fn.Arity, fn.Arity, argc)
		}
		args := append([]object.Value(nil), vm.stack[calleeIdx+1:]...)
		vm.callLine = line
		var result object.Value
		if fn.NeedsVM {
			result = fn.FnVM(args, vm)
		} else {
			result = fn.Fn(args)
		}
		vm.stack = vm.stack[:calleeIdx]
		vm.push(result)

	case *object.Closure:
		tmpl := fn.Template
		if tmpl.Arity != argc {
			vm.runtimeErrorf(line, "lambda expects %d argument(s), got %d", tmpl.Arity, argc)
		}
		if len(vm.calls) >= maxCallDepth {
			vm.fatalErrorf("stack overflow")
		}
		newFrame := tmpl.Frame.CloneRuntime()
		copy(newFrame.Variables, vm.stack[calleeIdx+1:])
		ancestors := make([]*object.Frame, len(fn.Captured)+1)
		copy(ancestors, fn.Captured)
		ancestors[len(ancestors)-1] = newFrame
		newFrame.Ancestors = ancestors

		vm.stack = vm.stack[:calleeIdx]
		vm.calls = append(vm.calls, newFrame)

	default:
		vm.runtimeErrorf(line, "%s is not callable", callee.TypeName())
	}
}

func (vm *VM) execAdd(line int) {
	b := vm.pop()
	a := vm.pop()
	switch {
	case a.Kind == object.Number && b.Kind == object.Number:
		vm.push(object.NumberValue(a.Num + b.Num))
	case isString(a) && isString(b):
		as := a.Obj.(*object.String)
		bs := b.Obj.(*object.String)
		joined := append(append([]byte(nil), as.Bytes...), bs.Bytes...)
		s := object.NewString(joined)
		vm.heap.Register(s)
		vm.push(object.ObjectValue(s))
	case isList(a):
		al := a.Obj.(*object.List)
		elems := append(append([]object.Value(nil), al.Elems...), b)
		l := object.NewList()
		l.Elems = elems
		vm.heap.Register(l)
		vm.push(object.ObjectValue(l))
	default:
		vm.runtimeErrorf(line, "cannot add %s and %s", a.TypeName(), b.TypeName())
	}
}

func (vm *VM) execArith(line int, symbol string, f func(a, b float64) float64) {
	b := vm.pop()
	a := vm.pop()
	if a.Kind != object.Number || b.Kind != object.Number {
		vm.runtimeErrorf(line, "cannot apply %q to %s and %s", symbol, a.TypeName(), b.TypeName())
	}
	vm.push(object.NumberValue(f(a.Num, b.Num)))
}

func (vm *VM) execCompare(line int, holds func(cmp int) bool) {
	b := vm.pop()
	a := vm.pop()
	cmp, ok := object.Compare(a, b)
	if !ok {
		vm.runtimeErrorf(line, "cannot compare %s and %s", a.TypeName(), b.TypeName())
	}
	vm.push(object.BoolValue(holds(cmp)))
}

// legacyBranchHolds evaluates a JEQ/JNE/JLT/JLE/JGT/JGE condition. These
// opcodes are not emitted by the compiler (§4.3 marks them legacy,
// superseded by the compare-then-JMF sequence JMF itself relies on) but
// remain part of the closed instruction set for the disassembler and
// hand-assembled test bytecode to exercise.
func (vm *VM) legacyBranchHolds(line int, op bytecode.Op, a, b object.Value) bool {
	if op == bytecode.JEQ {
		return object.Equal(a, b)
	}
	if op == bytecode.JNE {
		return !object.Equal(a, b)
	}
	cmp, ok := object.Compare(a, b)
	if !ok {
		vm.runtimeErrorf(line, "cannot compare %s and %s", a.TypeName(), b.TypeName())
	}
	switch op {
	case bytecode.JLT:
		return cmp < 0
	case bytecode.JLE:
		return cmp <= 0
	case bytecode.JGT:
		return cmp > 0
	case bytecode.JGE:
		return cmp >= 0
	default:
		return false
	}
}

func (vm *VM) asDict(line int, v object.Value) *object.Dict {
	if v.Kind == object.ObjRef {
		if d, ok := v.Obj.(*object.Dict); ok {
			return d
		}
	}
	vm.runtimeErrorf(line, "cannot access a field on a %s", v.TypeName())
	return nil
}

func (vm *VM) asKeyString(line int, v object.Value) *object.String {
	if v.Kind == object.ObjRef {
		if s, ok := v.Obj.(*object.String); ok {
			return s
		}
	}
	vm.runtimeErrorf(line, "field name must be a string, got %s", v.TypeName())
	return nil
}

func (vm *VM) asList(line int, v object.Value) *object.List {
	if v.Kind == object.ObjRef {
		if l, ok := v.Obj.(*object.List); ok {
			return l
		}
	}
	vm.runtimeErrorf(line, "expected a list, got %s", v.TypeName())
	return nil
}

func (vm *VM) listIndex(line int, l *object.List, v object.Value) int {
	if v.Kind != object.Number {
		vm.runtimeErrorf(line, "list index must be a number, got %s", v.TypeName())
	}
	i := int(v.Num)
	if i < 0 || i >= len(l.Elems) {
		vm.runtimeErrorf(line, "list index %d out of range [0, %d)", i, len(l.Elems))
	}
	return i
}

func isString(v object.Value) bool {
	if v.Kind != object.ObjRef {
		return false
	}
	_, ok := v.Obj.(*object.String)
	return ok
}

func isList(v object.Value) bool {
	if v.Kind != object.ObjRef {
		return false
	}
	_, ok := v.Obj.(*object.List)
	return ok
}
