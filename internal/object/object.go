package object

import "fmt"

// ObjectKind tags the concrete representation of a heap Object (§3.2).
type ObjectKind uint8

const (
	KindString ObjectKind = iota
	KindLambda
	KindClosure
	KindNativeFunc
	KindDict
	KindList
)

func (k ObjectKind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindLambda:
		return "Lambda"
	case KindClosure:
		return "Closure"
	case KindNativeFunc:
		return "NativeFunction"
	case KindDict:
		return "Dict"
	case KindList:
		return "List"
	default:
		return "Unknown"
	}
}

// Header is the fixed prefix every heap Object carries: its kind tag, the
// GC's mark bit, and the intrusive next-pointer that threads every
// allocation owned by the VM into one sweep list (§3.2, §4.5).
type Header struct {
	Kind   ObjectKind
	Marked bool
	Next   Object
}

// ObjHeader returns h itself; embedding Header in a concrete object type
// satisfies the Object interface for free via method promotion.
func (h *Header) ObjHeader() *Header { return h }

// Object is any Crispy heap allocation: a String, Lambda, Closure,
// NativeFunc, Dict, or List.
type Object interface {
	ObjHeader() *Header
}

// String is an immutable byte sequence with a cached djb2 hash (§3.2).
// Equal-valued string literals are interned (internal/object's InternTable)
// so that pointer identity implies content equality for literals, though
// Equal/Compare in value.go always fall back to content comparison regardless.
type String struct {
	Header
	Bytes  []byte
	hash   uint32
	hashed bool
}

// NewString allocates a String object wrapping data. data is not copied;
// callers that mutate their buffer after constructing a String must copy
// first.
func NewString(data []byte) *String {
	return &String{Header: Header{Kind: KindString}, Bytes: data}
}

// Hash returns the string's djb2 hash, computing and caching it on first
// use.
func (s *String) Hash() uint32 {
	if !s.hashed {
		s.hash = djb2(s.Bytes)
		s.hashed = true
	}
	return s.hash
}

// Frame is a call frame's owned state: its code buffer, instruction
// cursor, constant pool, and variable slots (§3.3). A Lambda owns a
// template Frame built at compile time; calling it clones the template
// into a fresh runtime Frame so that recursive calls don't alias the
// variables vector.
type Frame struct {
	Code      []byte  // bytecode for this frame; never mutated after compile
	Lines     []int   // Lines[i] is the source line the byte at Code[i] was emitted for
	Constants []Value // constant pool, bounded to 65535 entries (§3.5)
	Variables []Value // local variable slots, indexed 0..255 (§3.5)
	IP        int     // instruction cursor into Code

	// Ancestors is the lexical frame chain this runtime activation sees for
	// LOAD_OFFSET/STORE_OFFSET: Ancestors[0] is the global frame,
	// Ancestors[len-1] is this frame itself. It is built at call time from
	// the enclosing Closure's captured chain (§3.3, §9 "frame offset"),
	// not from the live VM call stack, so a closure keeps reaching its
	// defining frame's variables after that frame's own call has returned
	// (S2).
	Ancestors []*Frame
}

// NewFrame creates an empty template frame ready for the compiler to emit
// into.
func NewFrame() *Frame {
	return &Frame{}
}

// CloneRuntime returns a fresh runtime Frame sharing f's Code and
// Constants by reference but owning a new, independently-mutable
// Variables slice sized to f's, per §3.3 and §4.4's call convention.
// Callers are responsible for setting Ancestors once the clone's own
// identity is known.
func (f *Frame) CloneRuntime() *Frame {
	vars := make([]Value, len(f.Variables))
	return &Frame{
		Code:      f.Code,
		Lines:     f.Lines,
		Constants: f.Constants,
		Variables: vars,
	}
}

// LineAt returns the source line associated with the instruction at
// offset ip, or 0 if unknown.
func (f *Frame) LineAt(ip int) int {
	if ip < 0 || ip >= len(f.Lines) {
		return 0
	}
	return f.Lines[ip]
}

// Lambda is a user-defined function: an arity and an owned call-frame
// template (§3.2).
type Lambda struct {
	Header
	Arity int
	Frame *Frame
	Name  string // best-effort, for stack traces; "" for anonymous lambdas
}

// NewLambda allocates a Lambda object.
func NewLambda(arity int, frame *Frame) *Lambda {
	return &Lambda{Header: Header{Kind: KindLambda}, Arity: arity, Frame: frame}
}

// Closure is the runtime value produced when a lambda expression is
// evaluated: a reference to its compile-time Lambda template plus the
// chain of enclosing frames active at the moment it was created (§3.3,
// §9). Calling a Closure clones the template's Frame and roots the
// clone's Ancestors in Captured, which is how a closure keeps access to
// its defining scope's variables after that scope's own call returns.
type Closure struct {
	Header
	Template *Lambda
	Captured []*Frame
}

// NewClosure allocates a Closure wrapping template, capturing the frame
// chain active at creation time.
func NewClosure(template *Lambda, captured []*Frame) *Closure {
	return &Closure{Header: Header{Kind: KindClosure}, Template: template, Captured: captured}
}

// VMHandle is the minimal capability a "needs-vm" native function is
// given: the ability to signal a runtime error (§6 Native-function ABI).
// Defined here rather than imported from internal/vm to avoid a package
// cycle (internal/vm imports internal/object for Value).
type VMHandle interface {
	Fail(msg string)
}

// NativeFunc wraps a host function with an arity and a calling
// convention selector (§3.2, §6). Exactly one of Fn / FnVM is set,
// selected by NeedsVM.
type NativeFunc struct {
	Header
	Name    string
	Arity   int
	NeedsVM bool
	Fn      func(args []Value) Value
	FnVM    func(args []Value, vm VMHandle) Value
}

// NewNativeFunc allocates a non-system native function (the `fn(args)
// -> Value` calling convention).
func NewNativeFunc(name string, arity int, fn func(args []Value) Value) *NativeFunc {
	return &NativeFunc{Header: Header{Kind: KindNativeFunc}, Name: name, Arity: arity, Fn: fn}
}

// NewSystemNativeFunc allocates a "system" native function (the
// `fn(args, vm) -> Value` calling convention, selected at CALL time by
// NeedsVM).
func NewSystemNativeFunc(name string, arity int, fn func(args []Value, vm VMHandle) Value) *NativeFunc {
	return &NativeFunc{Header: Header{Kind: KindNativeFunc}, Name: name, Arity: arity, NeedsVM: true, FnVM: fn}
}

// Dict is a hash table keyed by interned String objects (§3.2).
type Dict struct {
	Header
	Table *Table[Value]
}

// NewDict allocates an empty Dict.
func NewDict() *Dict {
	return &Dict{Header: Header{Kind: KindDict}, Table: NewTable[Value](8)}
}

// Get looks up key (an interned *String) and returns its value, or Nil if
// absent (§4.3 DICT_GET).
func (d *Dict) Get(key *String) Value {
	if v, ok := d.Table.Get(StringKey{key}); ok {
		return v
	}
	return NilValue
}

// Put sets key to value (§4.3 DICT_PUT).
func (d *Dict) Put(key *String, value Value) {
	d.Table.Put(StringKey{key}, value)
}

// String renders a Dict the way `str`/`println` do: a brace-delimited,
// comma-separated list of key:value pairs.
func (d *Dict) String() string {
	s := "{"
	first := true
	d.Table.Each(func(k Key, v Value) {
		if !first {
			s += ", "
		}
		first = false
		sk := k.(StringKey)
		s += fmt.Sprintf("%q: %s", string(sk.S.Bytes), v.String())
	})
	return s + "}"
}

// List is a growable Value vector (§3.2).
type List struct {
	Header
	Elems []Value
}

// NewList allocates an empty List.
func NewList() *List {
	return &List{Header: Header{Kind: KindList}}
}

// Append adds value to the end of the list, mutating in place.
func (l *List) Append(value Value) {
	l.Elems = append(l.Elems, value)
}

// String renders a List the way `str`/`println` do: a bracket-delimited,
// comma-separated element list.
func (l *List) String() string {
	s := "["
	for i, e := range l.Elems {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + "]"
}

// MarkChildren returns the Values a container object directly references,
// so the GC's mark phase (internal/vm) can recurse into Dict/List
// contents without internal/vm needing to know their internal layout.
func MarkChildren(o Object) []Value {
	switch obj := o.(type) {
	case *Dict:
		var children []Value
		obj.Table.Each(func(k Key, v Value) {
			sk := k.(StringKey)
			children = append(children, ObjectValue(sk.S), v)
		})
		return children
	case *List:
		return obj.Elems
	case *Closure:
		var children []Value
		for _, fr := range obj.Captured {
			children = append(children, fr.Variables...)
		}
		return children
	default:
		return nil
	}
}

// Size estimates an object's heap footprint in bytes for GC threshold
// accounting (§4.5). It does not need to be exact, only monotonic in the
// object's actual size.
func Size(o Object) int {
	const headerSize = 24
	switch obj := o.(type) {
	case *String:
		return headerSize + len(obj.Bytes)
	case *Lambda:
		return headerSize + len(obj.Frame.Code) + len(obj.Frame.Constants)*16
	case *Closure:
		return headerSize + len(obj.Captured)*8
	case *NativeFunc:
		return headerSize + 16
	case *Dict:
		return headerSize + obj.Table.Len()*32
	case *List:
		return headerSize + len(obj.Elems)*16
	default:
		return headerSize
	}
}
