// Package stdlib implements Crispy's built-in native functions (§6):
// the small set of names every global scope starts out reserved with,
// registered against a VM and a compiler's global frame before any user
// source is compiled. println, print, exit, and str are grounded in the
// original implementation's four natives; len, split, input, list, and
// num have no such grounding and are implemented directly against Go's
// standard library, per the native-function calling convention §4.4
// defines (a plain `fn(args)` native or a "system" `fn(args, vm)` native
// that can allocate, fail the call, or — only for exit — terminate the
// process through the VM rather than calling os.Exit itself).
package stdlib

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/crispy-lang/crispy/internal/object"
	"github.com/crispy-lang/crispy/internal/vm"
)

// Names lists the reserved global identifiers, in the exact order their
// values must be installed into a global frame's variable slots: a
// Compiler built with compiler.New(..., Names) declares these names
// first, in this order, so Register can fill in globalFrame.Variables[i]
// by index without needing to resolve names itself.
var Names = []string{
	"println", "print", "exit", "str",
	"len", "split", "input", "list", "num",
}

// Register builds every native in Names and installs it at its reserved
// slot in globalFrame.Variables. It must run after a Compiler has
// already been constructed with Names as its reserved set, so the slots
// exist and are correctly ordered.
func Register(v *vm.VM, globalFrame *object.Frame) {
	in := bufio.NewReader(v.Stdin)

	natives := []*object.NativeFunc{
		object.NewNativeFunc("println", 1, func(args []object.Value) object.Value {
			fmt.Fprintln(v.Stdout, args[0].String())
			return object.NilValue
		}),
		object.NewNativeFunc("print", 1, func(args []object.Value) object.Value {
			fmt.Fprint(v.Stdout, args[0].String())
			return object.NilValue
		}),
		object.NewSystemNativeFunc("exit", 1, func(args []object.Value, _ object.VMHandle) object.Value {
			code := 1
			if args[0].Kind == object.Number {
				code = int(args[0].Num)
			}
			v.Exit(code)
			return object.NilValue
		}),
		object.NewSystemNativeFunc("str", 1, func(args []object.Value, _ object.VMHandle) object.Value {
			s := object.NewString([]byte(args[0].String()))
			v.Heap().Register(s)
			return object.ObjectValue(s)
		}),
		object.NewSystemNativeFunc("len", 1, func(args []object.Value, h object.VMHandle) object.Value {
			return object.NumberValue(float64(length(args[0], h)))
		}),
		object.NewSystemNativeFunc("split", 2, func(args []object.Value, h object.VMHandle) object.Value {
			return split(v, args[0], args[1], h)
		}),
		object.NewSystemNativeFunc("input", 0, func(args []object.Value, _ object.VMHandle) object.Value {
			line, err := in.ReadString('\n')
			if err != nil && line == "" {
				return object.NilValue
			}
			s := object.NewString([]byte(strings.TrimRight(line, "\r\n")))
			v.Heap().Register(s)
			return object.ObjectValue(s)
		}),
		object.NewSystemNativeFunc("list", 1, func(args []object.Value, h object.VMHandle) object.Value {
			return makeList(v, args[0], h)
		}),
		object.NewSystemNativeFunc("num", 1, func(args []object.Value, h object.VMHandle) object.Value {
			return parseNum(args[0], h)
		}),
	}

	for i, n := range natives {
		globalFrame.Variables[i] = object.ObjectValue(n)
	}
}

// length implements len/1: a string's byte length, a list's element
// count, or a dict's key count.
func length(v object.Value, h object.VMHandle) int {
	if v.Kind == object.ObjRef {
		switch o := v.Obj.(type) {
		case *object.String:
			return len(o.Bytes)
		case *object.List:
			return len(o.Elems)
		case *object.Dict:
			return o.Table.Len()
		}
	}
	h.Fail(fmt.Sprintf("len: cannot measure a %s", v.TypeName()))
	return 0
}

// split implements split/2: break a string into a list of strings at
// every occurrence of a separator string.
func split(v *vm.VM, a, b object.Value, h object.VMHandle) object.Value {
	s, ok := stringOf(a)
	if !ok {
		h.Fail(fmt.Sprintf("split: first argument must be a string, got %s", a.TypeName()))
	}
	sep, ok := stringOf(b)
	if !ok {
		h.Fail(fmt.Sprintf("split: second argument must be a string, got %s", b.TypeName()))
	}

	parts := strings.Split(string(s.Bytes), string(sep.Bytes))
	list := object.NewList()
	list.Elems = make([]object.Value, len(parts))
	for i, p := range parts {
		ps := object.NewString([]byte(p))
		v.Heap().Register(ps)
		list.Elems[i] = object.ObjectValue(ps)
	}
	v.Heap().Register(list)
	return object.ObjectValue(list)
}

// makeList implements list/1: allocate a new list of n nil elements,
// the constructor LIST_SET/LIST_GET expect to index into afterward.
func makeList(v *vm.VM, n object.Value, h object.VMHandle) object.Value {
	if n.Kind != object.Number || n.Num < 0 || n.Num != float64(int(n.Num)) {
		h.Fail(fmt.Sprintf("list: argument must be a non-negative integer, got %s", n.String()))
	}
	l := object.NewList()
	l.Elems = make([]object.Value, int(n.Num))
	for i := range l.Elems {
		l.Elems[i] = object.NilValue
	}
	v.Heap().Register(l)
	return object.ObjectValue(l)
}

// parseNum implements num/1: parse a string as a number, the inverse of
// str/1 for numeric values.
func parseNum(v object.Value, h object.VMHandle) object.Value {
	s, ok := stringOf(v)
	if !ok {
		h.Fail(fmt.Sprintf("num: argument must be a string, got %s", v.TypeName()))
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(s.Bytes)), 64)
	if err != nil {
		h.Fail(fmt.Sprintf("num: %q is not a valid number", string(s.Bytes)))
	}
	return object.NumberValue(f)
}

func stringOf(v object.Value) (*object.String, bool) {
	if v.Kind != object.ObjRef {
		return nil, false
	}
	s, ok := v.Obj.(*object.String)
	return s, ok
}
