package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjpearse/lumen/bytecode"
	"github.com/kjpearse/lumen/source"
)

func TestBufferRoundTripsFourByteInstruction(t *testing.T) {
	var buf bytecode.Buffer
	off, err := buf.Add(bytecode.Move, 1, 2, 0, 0, false, source.Span{})
	require.NoError(t, err)
	assert.Equal(t, 0, off)
	assert.Equal(t, 4, buf.Len())

	insts := buf.Decode(0)
	require.Len(t, insts, 1)
	assert.Equal(t, bytecode.Move, insts[0].Op)
	assert.EqualValues(t, 1, insts[0].Operand1)
	assert.EqualValues(t, 2, insts[0].Operand2)
	assert.False(t, insts[0].HasOperand4)
}

func TestBufferRoundTripsEightByteInstructionWithImmediate(t *testing.T) {
	var buf bytecode.Buffer
	off, err := buf.Add(bytecode.LoadInteger, 3, 0, 0, -42, true, source.Span{})
	require.NoError(t, err)
	assert.Equal(t, 8, buf.Len())

	insts := buf.Decode(off)
	require.Len(t, insts, 1)
	assert.Equal(t, bytecode.LoadInteger, insts[0].Op)
	assert.True(t, insts[0].HasOperand4)
	assert.EqualValues(t, -42, insts[0].Operand4)
}

func TestBufferPatchesJumpTarget(t *testing.T) {
	var buf bytecode.Buffer
	off, err := buf.Add(bytecode.Jump, 0, 0, 0, 0, true, source.Span{})
	require.NoError(t, err)
	buf.SetOperand4(off, 123)

	insts := buf.Decode(off)
	require.Len(t, insts, 1)
	assert.EqualValues(t, 123, insts[0].Operand4)
}

func TestBufferDecodesSequentialInstructions(t *testing.T) {
	var buf bytecode.Buffer
	_, err := buf.Add(bytecode.Move, 0, 1, 0, 0, false, source.Span{})
	require.NoError(t, err)
	_, err = buf.Add(bytecode.Negate, 0, 0, 0, 0, false, source.Span{})
	require.NoError(t, err)

	insts := buf.Decode(0)
	require.Len(t, insts, 2)
	assert.Equal(t, bytecode.Move, insts[0].Op)
	assert.Equal(t, bytecode.Negate, insts[1].Op)
}
