package virtionet

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Hdr{
		Flags:      FlagNeedsCsum,
		GSOType:    GSOTCPv4,
		HdrLen:     1500,
		GSOSize:    1460,
		CsumStart:  34,
		CsumOffset: 16,
		NumBuffers: 3,
	}
	buf := make([]byte, HdrLen)
	assert.NoError(t, h.Encode(buf))

	got, err := Decode(buf)
	assert.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderEncodeShortBuffer(t *testing.T) {
	var h Hdr
	assert.ErrorIs(t, h.Encode(make([]byte, 4)), io.ErrShortBuffer)
}

func TestHeaderDecodeShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, 4))
	assert.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestSetNumBuffersPatchesInPlace(t *testing.T) {
	h := Hdr{Flags: FlagDataValid, CsumStart: 99}
	buf := make([]byte, HdrLen)
	assert.NoError(t, h.Encode(buf))

	SetNumBuffers(buf, 7)

	got, err := Decode(buf)
	assert.NoError(t, err)
	assert.Equal(t, uint16(7), got.NumBuffers)
	assert.Equal(t, uint16(99), got.CsumStart, "patching NumBuffers must not disturb other fields")
}

func TestNeedsCsum(t *testing.T) {
	assert.True(t, Hdr{Flags: FlagNeedsCsum}.NeedsCsum())
	assert.False(t, Hdr{Flags: FlagDataValid}.NeedsCsum())
}
