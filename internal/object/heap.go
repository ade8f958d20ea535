package object

// InitialGCThreshold is the memory-use high-water mark that triggers the
// first collection (§4.5): 1 MiB.
const InitialGCThreshold = 1 << 20

// Heap owns the singly linked list of every live allocation (the GC
// root's sweep target) plus the allocation-byte accounting that drives
// collection triggers (§3.4, §4.5).
type Heap struct {
	head      Object
	Allocated int
	Threshold int
}

// NewHeap creates an empty Heap with the given initial threshold.
func NewHeap(threshold int) *Heap {
	return &Heap{Threshold: threshold}
}

// Register links o into the heap's object list and accounts for its
// size. The object constructors do not call it: code that allocates at
// run time (the VM and the stdlib natives) registers what it builds,
// while compile-time constants are never registered and so are never
// swept.
func (h *Heap) Register(o Object) {
	hdr := o.ObjHeader()
	hdr.Next = h.head
	h.head = o
	h.Allocated += Size(o)
}

// NeedsCollection reports whether Allocated has crossed Threshold (§4.5's
// allocation-triggered check).
func (h *Heap) NeedsCollection() bool {
	return h.Allocated >= h.Threshold
}

// Sweep walks the object list, unlinking and discarding any object whose
// Marked flag is clear, clearing Marked on survivors, and returns the
// number of objects freed. After Sweep, Threshold is doubled against the
// new Allocated figure by the caller (internal/vm), per §4.5.
func (h *Heap) Sweep() (freed int) {
	var survivors Object
	var tail Object
	for o := h.head; o != nil; {
		hdr := o.ObjHeader()
		next := hdr.Next
		if hdr.Marked {
			hdr.Marked = false
			hdr.Next = nil
			if survivors == nil {
				survivors = o
			} else {
				tail.ObjHeader().Next = o
			}
			tail = o
		} else {
			h.Allocated -= Size(o)
			freed++
		}
		o = next
	}
	h.head = survivors
	return freed
}

// Walk calls fn once for every live object in the heap's list, in
// insertion order (most-recent first). Used by tests to assert sweep
// behavior without exposing the list structure itself.
func (h *Heap) Walk(fn func(Object)) {
	for o := h.head; o != nil; o = o.ObjHeader().Next {
		fn(o)
	}
}
