package wire

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mcquery/pkg/mcerr"
)

func TestPrefixedString_RoundTripProperty(t *testing.T) {
	property := func(s string) bool {
		w := NewWriter(len(s) + MaxVarIntLen)
		w.PrefixedString(s)

		r := NewReader(w.Bytes())
		got, err := r.PrefixedString()
		return err == nil && got == s && r.Len() == 0
	}

	require.NoError(t, quick.Check(property, nil))
}

func TestPrefixedString_Truncated(t *testing.T) {
	// declares 10 bytes, carries 3
	r := NewReader([]byte{0x0a, 'a', 'b', 'c'})

	_, err := r.PrefixedString()
	require.ErrorIs(t, err, mcerr.ErrMalformedPrimitive)
}

func TestPrefixedString_NegativeLength(t *testing.T) {
	r := NewReader(AppendVarInt(nil, -1))

	_, err := r.PrefixedString()
	require.ErrorIs(t, err, mcerr.ErrMalformedPrimitive)
}

func TestCString(t *testing.T) {
	r := NewReader([]byte("hostname\x00MyServer\x00tail"))

	k, err := r.CString()
	require.NoError(t, err)
	v, err := r.CString()
	require.NoError(t, err)
	assert.Equal(t, "hostname", k)
	assert.Equal(t, "MyServer", v)

	_, err = r.CString()
	require.ErrorIs(t, err, mcerr.ErrMalformedPrimitive)
}

func TestFixedWidth(t *testing.T) {
	w := new(Writer)
	w.Uint16BE(25565).Uint16LE(25565).Int32BE(-2).Int32LE(0x01020304).Int64BE(-42)

	assert.Equal(t, []byte{0x63, 0xdd, 0xdd, 0x63}, w.Bytes()[:4])

	r := NewReader(w.Bytes())
	u16be, err := r.Uint16BE()
	require.NoError(t, err)
	u16le, err := r.Uint16LE()
	require.NoError(t, err)
	i32be, err := r.Int32BE()
	require.NoError(t, err)
	i32le, err := r.Int32LE()
	require.NoError(t, err)
	i64, err := r.Int64BE()
	require.NoError(t, err)

	assert.Equal(t, uint16(25565), u16be)
	assert.Equal(t, uint16(25565), u16le)
	assert.Equal(t, int32(-2), i32be)
	assert.Equal(t, int32(0x01020304), i32le)
	assert.Equal(t, int64(-42), i64)
	assert.Zero(t, r.Len())

	_, err = r.Byte()
	require.ErrorIs(t, err, mcerr.ErrMalformedPrimitive)
}

func TestFrame(t *testing.T) {
	assert.Equal(t, []byte{0x02, 0x01, 0x00}, Frame([]byte{0x01, 0x00}))
}
