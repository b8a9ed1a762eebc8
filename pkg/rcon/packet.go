package rcon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/woozymasta/mcquery/pkg/mcerr"
	"github.com/woozymasta/mcquery/pkg/wire"
)

// WrapperSize is the number of bytes counted by the length field besides the body:
// the id and type fields plus the two terminating zero bytes.
const WrapperSize = 4 + 4 + 2

const (
	// MaxPayloadSize is the largest body a server accepts from a client.
	MaxPayloadSize = 1446

	// MaxFragmentSize is the largest number of characters a server puts in one response packet.
	MaxFragmentSize = 4096

	// MaxPacketSize is the largest length field accepted from the server:
	// a full fragment of 4-byte UTF-8 characters plus the wrapper.
	MaxPacketSize = 4*MaxFragmentSize + WrapperSize
)

const (
	// TypeAuth is a login request carrying the password.
	TypeAuth int32 = 3

	// TypeAuthResponse answers TypeAuth; an id of -1 means the password was rejected.
	TypeAuthResponse int32 = 2

	// TypeExecCommand is a command request.
	TypeExecCommand int32 = 2

	// TypeResponseValue carries command output.
	TypeResponseValue int32 = 0
)

// ErrPayloadTooLong is returned before any I/O when a password or command exceeds MaxPayloadSize.
var ErrPayloadTooLong = errors.New("rcon: payload exceeds 1446 bytes")

// Packet is one RCON frame.
type Packet struct {
	Body []byte
	ID   int32
	Type int32
}

// MarshalBinary encodes p with its little-endian length prefix.
// It implements encoding.BinaryMarshaler.
func (p Packet) MarshalBinary() ([]byte, error) {
	size := len(p.Body) + WrapperSize
	if size > MaxPacketSize {
		return nil, mcerr.Newf("rcon encode", mcerr.ErrMalformedPrimitive, "packet size %d exceeds %d", size, MaxPacketSize)
	}

	w := wire.NewWriter(size + 4).
		Int32LE(int32(size)). //nolint:gosec
		Int32LE(p.ID).
		Int32LE(p.Type).
		Raw(p.Body).
		Byte(0).
		Byte(0)

	return w.Bytes(), nil
}

// WriteTo writes the encoded packet to w. It implements io.WriterTo.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	b, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)

	return int64(n), err
}

// UnmarshalBinary decodes exactly one packet from b.
// It implements encoding.BinaryUnmarshaler.
func (p *Packet) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)
	if _, err := p.ReadFrom(r); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return mcerr.New("rcon decode", mcerr.ErrUnexpectedEOF, err)
		}
		return err
	}
	if r.Len() != 0 {
		return mcerr.Newf("rcon decode", mcerr.ErrMalformedResponse, "%d trailing bytes", r.Len())
	}

	return nil
}

// ReadFrom reads exactly one packet from r. It implements io.ReaderFrom.
// Errors from r are returned unchanged.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	const op = "rcon decode"

	var head [4]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil {
		return int64(n), err
	}

	size := int32(binary.LittleEndian.Uint32(head[:]))
	if size < WrapperSize || size > MaxPacketSize {
		return int64(n), mcerr.Newf(op, mcerr.ErrMalformedResponse, "packet size %d out of range", size)
	}

	buf := make([]byte, size)
	m, err := io.ReadFull(r, buf)
	total := int64(n + m)
	if err != nil {
		return total, err
	}

	if buf[size-2] != 0 || buf[size-1] != 0 {
		return total, mcerr.New(op, mcerr.ErrMalformedResponse, errors.New("packet not terminated by two zero bytes"))
	}

	p.ID = int32(binary.LittleEndian.Uint32(buf[0:4]))
	p.Type = int32(binary.LittleEndian.Uint32(buf[4:8]))
	p.Body = buf[8 : size-2]

	return total, nil
}

// Equal reports whether both packets carry the same id, type and body.
func (p Packet) Equal(o Packet) bool {
	return p.ID == o.ID && p.Type == o.Type && bytes.Equal(p.Body, o.Body)
}
