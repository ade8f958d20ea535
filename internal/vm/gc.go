package vm

import "github.com/crispy-lang/crispy/internal/object"

// maybeCollect runs a collection when the heap has crossed its
// threshold. It is called once per dispatch loop iteration, which is
// frequent enough that no allocation goes more than one instruction
// past crossing the threshold before triggering (§4.5).
func (vm *VM) maybeCollect() {
	if !vm.heap.NeedsCollection() {
		return
	}
	vm.collect()
}

// collect runs one full mark-and-sweep cycle (§4.5): every active
// frame's variable slots and constant pool, plus the operand stack, are
// roots; marking recurses into container values via object.MarkChildren
// so a Dict/List/Closure keeps everything it references alive. Sweep
// then reclaims anything left unmarked, and the threshold doubles
// against the post-sweep allocation figure so the next collection is
// proportional to how much survived this one.
func (vm *VM) collect() {
	for _, fr := range vm.calls {
		markValues(fr.Variables)
		markValues(fr.Constants)
	}
	markValues(vm.stack)

	vm.heap.Sweep()
	vm.heap.Threshold = 2 * vm.heap.Allocated
}

func markValues(values []object.Value) {
	for _, v := range values {
		markValue(v)
	}
}

func markValue(v object.Value) {
	if v.Kind != object.ObjRef || v.Obj == nil {
		return
	}
	markObject(v.Obj)
}

func markObject(o object.Object) {
	hdr := o.ObjHeader()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	for _, child := range object.MarkChildren(o) {
		markValue(child)
	}
}
