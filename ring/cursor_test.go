package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func chainOf(bufs ...[]byte) *Chain {
	return &Chain{buffers: bufs}
}

func TestCursorPeekAndSkip(t *testing.T) {
	c := NewCursor(chainOf([]byte("hello")))
	assert.Equal(t, []byte("hel"), c.Peek(3))
	assert.Equal(t, 5, c.Left())

	n := c.Skip(3)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("lo"), c.Bytes())
}

func TestCursorPeekShortReadReturnsWhatsThere(t *testing.T) {
	c := NewCursor(chainOf([]byte("ab")))
	got := c.Peek(10)
	assert.Equal(t, []byte("ab"), got)
}

func TestCursorAdvanceAcrossBuffers(t *testing.T) {
	c := NewCursor(chainOf([]byte("ab"), []byte("cd")))
	c.Skip(2)
	assert.True(t, c.Done())
	assert.True(t, c.Advance())
	assert.False(t, c.Done())
	assert.Equal(t, []byte("cd"), c.Bytes())

	assert.False(t, c.Advance(), "no third buffer")
}

func TestCursorCloneIsIndependent(t *testing.T) {
	c := NewCursor(chainOf([]byte("abcdef")))
	c.Skip(2)
	clone := c.Clone()
	clone.Skip(2)

	assert.Equal(t, []byte("cdef"), c.Bytes())
	assert.Equal(t, []byte("ef"), clone.Bytes())
}

func TestCopyBytesStopsAtShorterBuffer(t *testing.T) {
	dst := NewCursor(chainOf(make([]byte, 3)))
	src := NewCursor(chainOf([]byte("hello")))

	n := CopyBytes(dst, src, -1)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("hel"), dst.chain.buffers[0])
	assert.Equal(t, []byte("lo"), src.Bytes())
}

func TestCopyBytesRespectsMax(t *testing.T) {
	dst := NewCursor(chainOf(make([]byte, 10)))
	src := NewCursor(chainOf([]byte("hello")))

	n := CopyBytes(dst, src, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("llo"), src.Bytes())
}

func TestCopyBytesEmptySourceReturnsZero(t *testing.T) {
	dst := NewCursor(chainOf(make([]byte, 10)))
	src := NewCursor(chainOf([]byte{}))
	assert.Equal(t, 0, CopyBytes(dst, src, -1))
}
