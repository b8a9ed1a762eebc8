// Package wire implements the primitive encodings used by the Minecraft status,
// query and rcon protocols: var-ints, length-prefixed strings, null-terminated
// strings and fixed-width integers in both byte orders.
package wire

import (
	"io"
)

// MaxVarIntLen is the largest encoded size of a 32-bit var-int.
const MaxVarIntLen = 5

const (
	segmentBits  = 0x7F
	continueBit  = 0x80
	maxSegShifts = 7 * MaxVarIntLen
)

// AppendVarInt appends the var-int encoding of v to b.
// Negative values are encoded as their unsigned 32-bit pattern and always take 5 bytes.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u >= continueBit {
		b = append(b, byte(u&segmentBits)|continueBit)
		u >>= 7
	}

	return append(b, byte(u))
}

// VarIntSize returns the number of bytes AppendVarInt would produce for v.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= continueBit {
		u >>= 7
		n++
	}

	return n
}

// ReadVarInt decodes one var-int from r and returns it with the number of bytes consumed.
// Errors from r are returned unchanged; a sixth continuation byte or bits beyond 32 yield a *FormatError.
func ReadVarInt(r io.ByteReader) (int32, int, error) {
	var (
		result uint32
		shift  uint
		n      int
	)

	for shift < maxSegShifts {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		n++

		// the fifth byte holds only the top 4 bits of a 32-bit value
		if n == MaxVarIntLen && b&0x70 != 0 {
			return 0, n, formatErr(n-1, "var-int overflows 32 bits")
		}
		result |= uint32(b&segmentBits) << shift
		if b&continueBit == 0 {
			return int32(result), n, nil
		}
		shift += 7
	}

	return 0, n, formatErr(n-1, "var-int longer than %d bytes", MaxVarIntLen)
}

// DecodeVarInt decodes one var-int from the start of b.
// A truncated input yields a *FormatError rather than io.EOF.
func DecodeVarInt(b []byte) (int32, int, error) {
	r := NewReader(b)
	v, err := r.VarInt()
	return v, r.Offset(), err
}
