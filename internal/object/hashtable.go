package object

import "bytes"

// Key is a hash-table key. The three concrete key kinds below mirror the
// original C implementation's HTKeyType variants (§2 "Hash table
// (generic)"): a raw byte-string key (C-string / interned identifier),
// an interned String-object key, and a uint32 key.
type Key interface {
	Hash() uint32
	Equal(Key) bool
}

// ByteKey keys a Table entry by the djb2 hash of a raw byte slice. Used
// for the interned-string table (source-literal bytes) and for any
// C-string-like lookup.
type ByteKey []byte

func (k ByteKey) Hash() uint32 { return djb2(k) }

func (k ByteKey) Equal(other Key) bool {
	o, ok := other.(ByteKey)
	return ok && bytes.Equal(k, o)
}

// StringKey keys a Table entry by an interned *String object: pointer
// identity is checked first (the common case, since literals are
// interned), falling back to content comparison for Strings built at
// runtime (e.g. via concatenation) that happen to collide.
type StringKey struct {
	S *String
}

func (k StringKey) Hash() uint32 { return k.S.Hash() }

func (k StringKey) Equal(other Key) bool {
	o, ok := other.(StringKey)
	if !ok {
		return false
	}
	if k.S == o.S {
		return true
	}
	return bytes.Equal(k.S.Bytes, o.S.Bytes)
}

// Uint32Key keys a Table entry by a plain uint32 (§2's "u32" key
// variant). Nothing else in the module keys a Table this way.
type Uint32Key uint32

func (k Uint32Key) Hash() uint32 { return hashUint32(uint32(k)) }

func (k Uint32Key) Equal(other Key) bool {
	o, ok := other.(Uint32Key)
	return ok && o == k
}

// djb2 is Dan Bernstein's string hash, used to hash both string literals
// and String object contents (§3.2).
func djb2(data []byte) uint32 {
	var h uint32 = 5381
	for _, b := range data {
		h = ((h << 5) + h) + uint32(b)
	}
	return h
}

// hashUint32 mixes a 32-bit integer to spread its bits across buckets,
// per the public-domain integer hash referenced by value.h.
func hashUint32(x uint32) uint32 {
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = (x >> 16) ^ x
	return x
}

// entry is one chained bucket node.
type entry[V any] struct {
	key   Key
	value V
	next  *entry[V]
}

// Table is a generic chained-bucket hash table (§2 "Hash table
// (generic)"). It grows by doubling whenever size exceeds capacity,
// mirroring the original's resize-on-overflow policy.
type Table[V any] struct {
	buckets []*entry[V]
	size    int
}

// NewTable creates a Table with capacity rounded up to the next power of
// two, minimum 8.
func NewTable[V any](initCap int) *Table[V] {
	cap := 8
	for cap < initCap {
		cap <<= 1
	}
	return &Table[V]{buckets: make([]*entry[V], cap)}
}

// Len returns the number of entries stored.
func (t *Table[V]) Len() int { return t.size }

func (t *Table[V]) indexFor(k Key) int {
	return int(k.Hash()) & (len(t.buckets) - 1)
}

// Get returns the value stored for k, or the zero value and false if
// absent.
func (t *Table[V]) Get(k Key) (V, bool) {
	idx := t.indexFor(k)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key.Equal(k) {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// Put inserts or replaces the value stored for k.
func (t *Table[V]) Put(k Key, v V) {
	idx := t.indexFor(k)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key.Equal(k) {
			e.value = v
			return
		}
	}
	t.buckets[idx] = &entry[V]{key: k, value: v, next: t.buckets[idx]}
	t.size++
	if t.size > len(t.buckets) {
		t.resize()
	}
}

// Delete removes the entry keyed by k, if present.
func (t *Table[V]) Delete(k Key) {
	idx := t.indexFor(k)
	var prev *entry[V]
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key.Equal(k) {
			if prev == nil {
				t.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			t.size--
			return
		}
		prev = e
	}
}

// Each calls fn once per stored entry. Iteration order is unspecified
// (bucket order), matching the original's hash-table semantics.
func (t *Table[V]) Each(fn func(k Key, v V)) {
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			fn(e.key, e.value)
		}
	}
}

func (t *Table[V]) resize() {
	bigger := make([]*entry[V], len(t.buckets)*2)
	mask := len(bigger) - 1
	for _, head := range t.buckets {
		for e := head; e != nil; {
			next := e.next
			idx := int(e.key.Hash()) & mask
			e.next = bigger[idx]
			bigger[idx] = e
			e = next
		}
	}
	t.buckets = bigger
}
