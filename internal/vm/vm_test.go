package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crispy-lang/crispy/internal/bytecode"
	"github.com/crispy-lang/crispy/internal/object"
)

func newTestFrame() *object.Frame {
	return object.NewFrame()
}

func emit(f *object.Frame, line int, bytes_ ...byte) {
	for _, b := range bytes_ {
		f.Code = append(f.Code, b)
		f.Lines = append(f.Lines, line)
	}
}

func TestVM_ArithmeticPrecedence(t *testing.T) {
	// var0 = 1 + 2 * 3 ; return var0
	f := newTestFrame()
	f.Variables = make([]object.Value, 1)
	f.Constants = []object.Value{object.NumberValue(1), object.NumberValue(2), object.NumberValue(3)}
	emit(f, 1, byte(bytecode.LDC), 0)
	emit(f, 1, byte(bytecode.LDC), 1)
	emit(f, 1, byte(bytecode.LDC), 2)
	emit(f, 1, byte(bytecode.MUL))
	emit(f, 1, byte(bytecode.ADD))
	emit(f, 1, byte(bytecode.STORE), 0)
	emit(f, 1, byte(bytecode.LOAD), 0)
	emit(f, 1, byte(bytecode.RETURN))

	machine := New(object.InitialGCThreshold)
	result, err := machine.Run(f)
	require.NoError(t, err)
	require.Equal(t, object.NumberValue(7), result)
}

func TestVM_DivisionByZeroIsFatal(t *testing.T) {
	f := newTestFrame()
	f.Constants = []object.Value{object.NumberValue(1), object.NumberValue(0)}
	emit(f, 1, byte(bytecode.LDC), 0)
	emit(f, 1, byte(bytecode.LDC), 1)
	emit(f, 1, byte(bytecode.DIV))
	emit(f, 1, byte(bytecode.RETURN))

	machine := New(object.InitialGCThreshold)
	_, err := machine.Run(f)
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
}

func TestVM_StringConcatenationAllocatesOnHeap(t *testing.T) {
	f := newTestFrame()
	interns := object.NewInternTable()
	f.Constants = []object.Value{
		object.ObjectValue(interns.Intern([]byte("foo"))),
		object.ObjectValue(interns.Intern([]byte("bar"))),
	}
	emit(f, 1, byte(bytecode.LDC), 0)
	emit(f, 1, byte(bytecode.LDC), 1)
	emit(f, 1, byte(bytecode.ADD))
	emit(f, 1, byte(bytecode.RETURN))

	machine := New(object.InitialGCThreshold)
	result, err := machine.Run(f)
	require.NoError(t, err)
	require.Equal(t, "foobar", result.String())

	var found bool
	machine.Heap().Walk(func(o object.Object) {
		if s, ok := o.(*object.String); ok && string(s.Bytes) == "foobar" {
			found = true
		}
	})
	require.True(t, found, "the concatenated string must be registered on the heap")
}

func TestVM_DictPutGetAndPeekIncrement(t *testing.T) {
	// d = {}; d.count = 1; d.count++; return d.count
	f := newTestFrame()
	interns := object.NewInternTable()
	key := interns.Intern([]byte("count"))
	f.Variables = make([]object.Value, 1)
	f.Constants = []object.Value{object.ObjectValue(key), object.NumberValue(1)}

	emit(f, 1, byte(bytecode.DICT_NEW))
	emit(f, 1, byte(bytecode.STORE), 0)

	emit(f, 2, byte(bytecode.LOAD), 0)
	emit(f, 2, byte(bytecode.LDC), 0)
	emit(f, 2, byte(bytecode.LDC), 1)
	emit(f, 2, byte(bytecode.DICT_PUT))
	emit(f, 2, byte(bytecode.POP))

	emit(f, 3, byte(bytecode.LOAD), 0)
	emit(f, 3, byte(bytecode.LDC), 0)
	emit(f, 3, byte(bytecode.DICT_PEEK))
	emit(f, 3, byte(bytecode.LDC_1))
	emit(f, 3, byte(bytecode.ADD))
	emit(f, 3, byte(bytecode.DICT_PUT))
	emit(f, 3, byte(bytecode.POP))

	emit(f, 4, byte(bytecode.LOAD), 0)
	emit(f, 4, byte(bytecode.LDC), 0)
	emit(f, 4, byte(bytecode.DICT_GET))
	emit(f, 4, byte(bytecode.RETURN))

	machine := New(object.InitialGCThreshold)
	result, err := machine.Run(f)
	require.NoError(t, err)
	require.Equal(t, object.NumberValue(2), result)
}

func TestVM_NativeArityMismatchIsRuntimeError(t *testing.T) {
	f := newTestFrame()
	native := object.NewNativeFunc("double", 1, func(args []object.Value) object.Value {
		return object.NumberValue(args[0].Num * 2)
	})
	f.Constants = []object.Value{object.ObjectValue(native)}
	emit(f, 5, byte(bytecode.LDC), 0)
	emit(f, 5, byte(bytecode.CALL), 0) // wrong argc: native wants 1, got 0
	emit(f, 5, byte(bytecode.RETURN))

	machine := New(object.InitialGCThreshold)
	_, err := machine.Run(f)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Contains(t, rerr.Msg, "double/1 expects 1 argument(s), got 0")
}

func TestVM_PrintOpcodeFormatsWithArrow(t *testing.T) {
	f := newTestFrame()
	f.Constants = []object.Value{object.NumberValue(42)}
	emit(f, 1, byte(bytecode.LDC), 0)
	emit(f, 1, byte(bytecode.PRINT))
	emit(f, 1, byte(bytecode.RETURN))

	var out bytes.Buffer
	machine := New(object.InitialGCThreshold)
	machine.Stdout = &out
	_, err := machine.Run(f)
	require.NoError(t, err)
	require.Equal(t, "> 42\n", out.String())
}

// TestVM_ClosureOutlivesDefiningCall builds, by hand, a lambda A that
// creates and returns a nested lambda B closing over A's own parameter.
// B is invoked only after A's call frame has already been popped off the
// VM's call stack (in a separate Run invocation entirely, the way a
// second REPL line would), proving the closure reaches its captured
// frame through Ancestors rather than through the live call stack (§3.3,
// scenario S2).
func TestVM_ClosureOutlivesDefiningCall(t *testing.T) {
	global := object.NewFrame()
	global.Variables = make([]object.Value, 1)

	// lambda B (depth 3): no params, body `LOAD_OFFSET frame=2 idx=0; RETURN`
	frameB := object.NewFrame()
	emit(frameB, 10, byte(bytecode.LOAD_OFFSET), 2, 0)
	emit(frameB, 10, byte(bytecode.RETURN))
	lambdaB := object.NewLambda(0, frameB)

	// lambda A (depth 2): param n (idx 0), body `push closure(B); RETURN`
	frameA := object.NewFrame()
	frameA.Variables = make([]object.Value, 1)
	frameA.Constants = []object.Value{object.ObjectValue(lambdaB)}
	emit(frameA, 5, byte(bytecode.LDC), 0)
	emit(frameA, 5, byte(bytecode.RETURN))
	lambdaA := object.NewLambda(1, frameA)

	global.Constants = []object.Value{object.ObjectValue(lambdaA)}
	emit(global, 1, byte(bytecode.LDC), 0) // push closure(A)
	emit(global, 1, byte(bytecode.LDC_W), 0, 0)
	global.Constants = append(global.Constants, object.NumberValue(42))
	// fix the LDC_W operand to point at the just-appended constant (index 1)
	bytecode.PatchU16(global.Code, len(global.Code)-2, 1)
	emit(global, 1, byte(bytecode.CALL), 1) // A(42) -> closure(B)
	emit(global, 1, byte(bytecode.STORE), 0)
	emit(global, 1, byte(bytecode.RETURN))

	machine := New(object.InitialGCThreshold)
	_, err := machine.Run(global)
	require.NoError(t, err)
	require.Equal(t, 0, len(machine.calls), "the defining call's frame must be gone after Run returns")

	// Second, independent Run invocation: load the saved closure and call it.
	second := object.NewFrame()
	second.Ancestors = []*object.Frame{global}
	emit(second, 20, byte(bytecode.LOAD_OFFSET), 1, 0)
	emit(second, 20, byte(bytecode.CALL), 0)
	emit(second, 20, byte(bytecode.RETURN))

	result, err := machine.Run(second)
	require.NoError(t, err)
	require.Equal(t, object.NumberValue(42), result)
}

func TestVM_GCSweepsUnreachableStrings(t *testing.T) {
	f := newTestFrame()
	interns := object.NewInternTable()
	f.Variables = make([]object.Value, 1)
	f.Constants = []object.Value{
		object.ObjectValue(interns.Intern([]byte("a"))),
		object.ObjectValue(interns.Intern([]byte("b"))),
	}
	// "a" + "b", popped at once (garbage, never stored anywhere reachable after this line)
	emit(f, 1, byte(bytecode.LDC), 0)
	emit(f, 1, byte(bytecode.LDC), 1)
	emit(f, 1, byte(bytecode.ADD))
	emit(f, 1, byte(bytecode.POP))
	// var0 = "a" + "b" again, this time kept
	emit(f, 2, byte(bytecode.LDC), 0)
	emit(f, 2, byte(bytecode.LDC), 1)
	emit(f, 2, byte(bytecode.ADD))
	emit(f, 2, byte(bytecode.STORE), 0)
	emit(f, 2, byte(bytecode.RETURN))

	machine := New(1) // force a collection on every allocation past the first
	_, err := machine.Run(f)
	require.NoError(t, err)

	var live int
	machine.Heap().Walk(func(object.Object) { live++ })
	require.Equal(t, 1, live, "only the string reachable from var0 should survive collection")
}
