// Package disasm renders a compiled call frame's bytecode as a
// human-readable table (§2, §4.3): one row per instruction, its decoded
// operand, and — for constant loads — the constant's own textual form.
// Disassembly is purely a function of a Frame's Code/Constants, so two
// runs over the same compiled program always produce byte-identical
// output (§8's round-trip law), which is why this package never prints
// anything address- or time-derived.
package disasm

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/crispy-lang/crispy/internal/bytecode"
	"github.com/crispy-lang/crispy/internal/object"
)

// Frame renders label's table of instructions to w, then recurses into
// every lambda constant's own frame — labeling each with the constant
// index it was loaded from — so a whole program disassembles
// transitively starting from its entry frame.
func Frame(w io.Writer, label string, frame *object.Frame) {
	fmt.Fprintf(w, "== %s ==\n", label)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Offset", "Op", "Operand", "Constant"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)

	var nested []lambdaConst

	ip := 0
	for ip < len(frame.Code) {
		op := bytecode.Op(frame.Code[ip])
		operand, constant := decodeOperand(frame, op, ip)
		if l, ok := constantLambda(frame, op, ip); ok {
			nested = append(nested, l)
		}
		table.Append([]string{fmt.Sprintf("%04d", ip), op.String(), operand, constant})
		ip += 1 + op.OperandWidth()
	}
	table.Render()

	for _, l := range nested {
		Frame(w, fmt.Sprintf("%s const[%d] <lambda/%d>", label, l.index, l.lambda.Arity), l.lambda.Frame)
	}
}

type lambdaConst struct {
	index  int
	lambda *object.Lambda
}

func decodeOperand(frame *object.Frame, op bytecode.Op, ip int) (operand, constant string) {
	switch op.OperandWidth() {
	case 1:
		v := frame.Code[ip+1]
		operand = fmt.Sprintf("%d", v)
		if op == bytecode.LDC {
			constant = constantString(frame, int(v))
		}
	case 2:
		if op == bytecode.LOAD_OFFSET || op == bytecode.STORE_OFFSET {
			operand = fmt.Sprintf("frame=%d idx=%d", frame.Code[ip+1], frame.Code[ip+2])
		} else {
			addr := bytecode.ReadU16(frame.Code, ip+1)
			operand = fmt.Sprintf("%d", addr)
			if op == bytecode.LDC_W {
				constant = constantString(frame, int(addr))
			}
		}
	}
	return operand, constant
}

func constantLambda(frame *object.Frame, op bytecode.Op, ip int) (lambdaConst, bool) {
	var idx int
	switch op {
	case bytecode.LDC:
		idx = int(frame.Code[ip+1])
	case bytecode.LDC_W:
		idx = int(bytecode.ReadU16(frame.Code, ip+1))
	default:
		return lambdaConst{}, false
	}
	if idx < 0 || idx >= len(frame.Constants) {
		return lambdaConst{}, false
	}
	if l, ok := frame.Constants[idx].Obj.(*object.Lambda); ok {
		return lambdaConst{index: idx, lambda: l}, true
	}
	return lambdaConst{}, false
}

func constantString(frame *object.Frame, idx int) string {
	if idx < 0 || idx >= len(frame.Constants) {
		return ""
	}
	return frame.Constants[idx].String()
}
