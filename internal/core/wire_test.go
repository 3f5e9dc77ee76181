package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_FixedWidthFields(t *testing.T) {
	w := NewWriter(0)
	w.PutU8(0xAB)
	w.PutU16(0x1234)
	w.PutU32(0xDEADBEEF)
	w.PutI32(-1)
	w.PutBytes([]byte{0x01, 0x02, 0x03})
	w.PutZeros(2)

	want := []byte{
		0xAB,
		0x12, 0x34,
		0xDE, 0xAD, 0xBE, 0xEF,
		0xFF, 0xFF, 0xFF, 0xFF,
		0x01, 0x02, 0x03,
		0x00, 0x00,
	}
	assert.Equal(t, want, w.Bytes())
}

func TestWriter_PatchU16(t *testing.T) {
	w := NewWriter(0)
	w.PutU16(0)
	w.PutBytes([]byte{1, 2, 3})
	w.PatchU16(0, uint16(w.Len()))
	assert.Equal(t, uint16(5), uint16(w.Bytes()[0])<<8|uint16(w.Bytes()[1]))
}

func TestReader_RoundTripsWriter(t *testing.T) {
	w := NewWriter(0)
	w.PutU8(7).PutU16(5000).PutU32(123456789).PutBytes([]byte("hello"))

	r := NewReader(w.Bytes())
	u8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), u8)

	u16, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(5000), u16)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(123456789), u32)

	b, err := r.ReadBytes(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	assert.Equal(t, 0, r.remaining())
}

func TestReader_ShortReadIsIOShort(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadU32()
	require.Error(t, err)
	assert.True(t, IsKind(err, IOShort))
}

func TestReader_SkipAndRemaining(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	require.NoError(t, r.Skip(2))
	assert.Equal(t, []byte{3, 4, 5}, r.Remaining())
	assert.Equal(t, 2, r.Len())
}
