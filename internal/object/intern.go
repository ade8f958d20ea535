package object

// InternTable deduplicates string literals by content (§4.6). The
// original C implementation keys by (source pointer, length); Go strings
// are immutable and already content-addressable, so keying by the byte
// content itself gives the same externally-observable guarantee —
// "every occurrence of an equal-valued literal yields the same Object
// identity" (§8 invariant 4) — without resorting to unsafe pointer
// arithmetic over the source buffer.
type InternTable struct {
	table *Table[*String]
}

// NewInternTable creates an empty interned-string table.
func NewInternTable() *InternTable {
	return &InternTable{table: NewTable[*String](16)}
}

// Intern returns the canonical *String for data, allocating and
// registering a new one on first sight and reusing it on every
// subsequent sight of an equal byte sequence.
func (t *InternTable) Intern(data []byte) *String {
	key := ByteKey(data)
	if s, ok := t.table.Get(key); ok {
		return s
	}
	s := NewString(append([]byte(nil), data...))
	t.table.Put(ByteKey(s.Bytes), s)
	return s
}

// Len reports how many distinct literals have been interned.
func (t *InternTable) Len() int { return t.table.Len() }
