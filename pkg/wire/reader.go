package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Reader decodes primitives from a fully received frame.
// Every method fails with a *FormatError when the frame is too short.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte { return r.buf[r.off:] }

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.off]
	r.off++

	return b, nil
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, formatErr(r.off, "need 1 byte, have 0")
	}

	return b, nil
}

// Bytes reads exactly n bytes. The returned slice aliases the frame.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, formatErr(r.off, "need %d bytes, have %d", n, r.Len())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n

	return b, nil
}

// Skip discards exactly n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.Bytes(n)
	return err
}

// VarInt reads a var-int.
func (r *Reader) VarInt() (int32, error) {
	start := r.off
	v, _, err := ReadVarInt(r)
	if errors.Is(err, io.EOF) {
		return 0, formatErr(start, "truncated var-int")
	}

	return v, err
}

// PrefixedString reads a var-int length followed by that many bytes.
func (r *Reader) PrefixedString() (string, error) {
	start := r.off
	n, err := r.VarInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", formatErr(start, "negative string length %d", n)
	}
	if int(n) > r.Len() {
		return "", formatErr(start, "string length %d exceeds remaining %d bytes", n, r.Len())
	}
	b, _ := r.Bytes(int(n))

	return string(b), nil
}

// CString reads bytes up to the next 0x00 and consumes the terminator.
func (r *Reader) CString() (string, error) {
	i := bytes.IndexByte(r.Rest(), 0)
	if i < 0 {
		return "", formatErr(r.off, "missing string terminator")
	}
	s := string(r.buf[r.off : r.off+i])
	r.off += i + 1

	return s, nil
}

// Uint16BE reads a big-endian uint16.
func (r *Reader) Uint16BE() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

// Uint16LE reads a little-endian uint16.
func (r *Reader) Uint16LE() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

// Int32BE reads a big-endian int32.
func (r *Reader) Int32BE() (int32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}

	return int32(binary.BigEndian.Uint32(b)), nil
}

// Int32LE reads a little-endian int32.
func (r *Reader) Int32LE() (int32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}

	return int32(binary.LittleEndian.Uint32(b)), nil
}

// Int64BE reads a big-endian int64.
func (r *Reader) Int64BE() (int64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(b)), nil
}
