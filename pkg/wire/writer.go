package wire

import (
	"encoding/binary"
)

// Writer accumulates an encoded frame. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded frame.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of encoded bytes.
func (w *Writer) Len() int { return len(w.buf) }

// Reset discards the encoded bytes and keeps the capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Byte appends a single byte.
func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// VarInt appends a var-int.
func (w *Writer) VarInt(v int32) *Writer {
	w.buf = AppendVarInt(w.buf, v)
	return w
}

// PrefixedString appends a var-int byte length followed by s.
func (w *Writer) PrefixedString(s string) *Writer {
	w.buf = AppendVarInt(w.buf, int32(len(s))) //nolint:gosec
	w.buf = append(w.buf, s...)
	return w
}

// CString appends s followed by 0x00.
func (w *Writer) CString(s string) *Writer {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// Uint16BE appends a big-endian uint16.
func (w *Writer) Uint16BE(v uint16) *Writer {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return w
}

// Uint16LE appends a little-endian uint16.
func (w *Writer) Uint16LE(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

// Int32BE appends a big-endian int32.
func (w *Writer) Int32BE(v int32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	return w
}

// Int32LE appends a little-endian int32.
func (w *Writer) Int32LE(v int32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
	return w
}

// Int64BE appends a big-endian int64.
func (w *Writer) Int64BE(v int64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
	return w
}

// Frame returns payload prefixed with its var-int length.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+MaxVarIntLen)
	out = AppendVarInt(out, int32(len(payload))) //nolint:gosec
	return append(out, payload...)
}
