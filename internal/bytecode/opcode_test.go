package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOp_String(t *testing.T) {
	require.Equal(t, "LDC", LDC.String())
	require.Equal(t, "LDC_W", LDC_W.String())
	require.Equal(t, "RETURN", RETURN.String())
}

func TestOp_OperandWidth(t *testing.T) {
	require.Equal(t, 0, RETURN.OperandWidth())
	require.Equal(t, 1, LDC.OperandWidth())
	require.Equal(t, 2, LDC_W.OperandWidth())
	require.Equal(t, 2, JMP.OperandWidth())
	require.Equal(t, 1, CALL.OperandWidth())
}

func TestWriteReadPatchU16(t *testing.T) {
	var code []byte
	code = WriteOp(code, JMP)
	site := len(code)
	code = WriteU16(code, 0xFFFF) // placeholder

	require.Equal(t, uint16(0xFFFF), ReadU16(code, site))

	PatchU16(code, site, 0x1234)
	require.Equal(t, uint16(0x1234), ReadU16(code, site))
}
