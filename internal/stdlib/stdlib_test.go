package stdlib

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crispy-lang/crispy/internal/object"
	"github.com/crispy-lang/crispy/internal/vm"
)

func setup(t *testing.T, stdin string) (*vm.VM, *object.Frame, *bytes.Buffer) {
	t.Helper()
	machine := vm.New(object.InitialGCThreshold)
	var out bytes.Buffer
	machine.Stdout = &out
	machine.Stdin = strings.NewReader(stdin)

	global := object.NewFrame()
	global.Variables = make([]object.Value, len(Names))
	Register(machine, global)
	return machine, global, &out
}

func native(t *testing.T, global *object.Frame, name string) *object.NativeFunc {
	t.Helper()
	for i, n := range Names {
		if n == name {
			v := global.Variables[i]
			require.Equal(t, object.ObjRef, v.Kind)
			fn, ok := v.Obj.(*object.NativeFunc)
			require.True(t, ok)
			return fn
		}
	}
	t.Fatalf("no such native: %s", name)
	return nil
}

func call(t *testing.T, machine *vm.VM, fn *object.NativeFunc, args ...object.Value) object.Value {
	t.Helper()
	require.Equal(t, len(args), fn.Arity)
	if fn.NeedsVM {
		return fn.FnVM(args, machine)
	}
	return fn.Fn(args)
}

func str(s string) object.Value {
	return object.ObjectValue(object.NewString([]byte(s)))
}

func TestRegister_InstallsEveryNameInOrder(t *testing.T) {
	_, global, _ := setup(t, "")
	for i, name := range Names {
		v := global.Variables[i]
		require.Equal(t, object.ObjRef, v.Kind)
		fn, ok := v.Obj.(*object.NativeFunc)
		require.True(t, ok)
		require.Equal(t, name, fn.Name)
	}
}

func TestPrintlnWritesWithNewline(t *testing.T) {
	machine, global, out := setup(t, "")
	fn := native(t, global, "println")
	result := call(t, machine, fn, str("hi"))
	require.Equal(t, object.NilValue, result)
	require.Equal(t, "hi\n", out.String())
}

func TestPrintWritesWithoutNewline(t *testing.T) {
	machine, global, out := setup(t, "")
	fn := native(t, global, "print")
	call(t, machine, fn, str("hi"))
	require.Equal(t, "hi", out.String())
}

func TestStrConvertsNumberToString(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "str")
	result := call(t, machine, fn, object.NumberValue(7))
	require.Equal(t, "7", result.String())
}

func TestLenOnStringListAndDict(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "len")

	require.Equal(t, object.NumberValue(3), call(t, machine, fn, str("abc")))

	list := object.NewList()
	list.Elems = []object.Value{object.NumberValue(1), object.NumberValue(2)}
	require.Equal(t, object.NumberValue(2), call(t, machine, fn, object.ObjectValue(list)))

	dict := object.NewDict()
	dict.Put(object.NewString([]byte("k")), object.NumberValue(1))
	require.Equal(t, object.NumberValue(1), call(t, machine, fn, object.ObjectValue(dict)))
}

func TestLenOnUnmeasurableTypeFails(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "len")
	require.Panics(t, func() {
		call(t, machine, fn, object.NumberValue(1))
	})
}

func TestSplitBreaksOnSeparator(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "split")
	result := call(t, machine, fn, str("a,b,c"), str(","))

	require.Equal(t, object.ObjRef, result.Kind)
	list, ok := result.Obj.(*object.List)
	require.True(t, ok)
	require.Len(t, list.Elems, 3)
	require.Equal(t, "a", list.Elems[0].String())
	require.Equal(t, "b", list.Elems[1].String())
	require.Equal(t, "c", list.Elems[2].String())
}

func TestInputReadsOneLineAndTrimsNewline(t *testing.T) {
	machine, global, _ := setup(t, "first\nsecond\n")
	fn := native(t, global, "input")

	first := call(t, machine, fn)
	require.Equal(t, "first", first.String())

	second := call(t, machine, fn)
	require.Equal(t, "second", second.String())
}

func TestInputReturnsNilAtEOF(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "input")
	require.Equal(t, object.NilValue, call(t, machine, fn))
}

func TestListConstructsNilFilledVector(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "list")
	result := call(t, machine, fn, object.NumberValue(3))

	list, ok := result.Obj.(*object.List)
	require.True(t, ok)
	require.Len(t, list.Elems, 3)
	for _, e := range list.Elems {
		require.Equal(t, object.NilValue, e)
	}
}

func TestListRejectsNegativeOrFractionalSize(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "list")
	require.Panics(t, func() { call(t, machine, fn, object.NumberValue(-1)) })
	require.Panics(t, func() { call(t, machine, fn, object.NumberValue(1.5)) })
}

func TestNumParsesFloatAndTrimsWhitespace(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "num")
	require.Equal(t, object.NumberValue(42), call(t, machine, fn, str("  42  ")))
	require.Equal(t, object.NumberValue(3.5), call(t, machine, fn, str("3.5")))
}

func TestNumRejectsInvalidText(t *testing.T) {
	machine, global, _ := setup(t, "")
	fn := native(t, global, "num")
	require.Panics(t, func() { call(t, machine, fn, str("not a number")) })
}
