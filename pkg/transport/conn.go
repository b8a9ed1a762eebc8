// Package transport wraps TCP streams and connected UDP sockets with per-operation
// deadlines, context cancellation and error classification into mcerr kinds.
//
// A Conn is single-use: the first failure closes it and every later call fails.
// It is not safe for concurrent use.
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/woozymasta/mcquery/pkg/mcerr"
	"github.com/woozymasta/mcquery/pkg/wire"
)

// DefaultDatagramSize is the receive buffer used for a single UDP datagram.
const DefaultDatagramSize = 4096

// ErrClosed is the cause reported by operations on a closed or broken Conn.
var ErrClosed = errors.New("connection closed")

// Conn is one TCP stream or connected UDP socket bound to a single remote endpoint.
type Conn struct {
	ctx     context.Context
	conn    net.Conn
	br      *bufio.Reader
	stop    func() bool
	err     error
	timeout time.Duration
	stream  bool
}

// Dial opens a connection to host:port. network is "tcp" or "udp".
// timeout bounds the dial and, later, every single read or write; zero disables it.
// ctx only bounds the dial itself, use Bind to tie later operations to a context.
func Dial(ctx context.Context, network, host string, port uint16, timeout time.Duration) (*Conn, error) {
	const op = "dial"

	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, network, net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, classify(ctx, op, err)
	}

	return Wrap(nc, timeout), nil
}

// Wrap adopts an established connection.
// Stream framing (buffered reads) is used unless nc is a net.PacketConn.
func Wrap(nc net.Conn, timeout time.Duration) *Conn {
	c := &Conn{
		ctx:     context.Background(),
		conn:    nc,
		timeout: timeout,
		stream:  true,
	}
	if _, ok := nc.(net.PacketConn); ok {
		c.stream = false
	} else {
		c.br = bufio.NewReader(nc)
	}

	return c
}

// Bind ties the connection to ctx until the returned func is called.
// Cancelling ctx closes the connection, and its deadline caps every operation.
func (c *Conn) Bind(ctx context.Context) (release func()) {
	c.ctx = ctx
	c.stop = context.AfterFunc(ctx, func() { _ = c.conn.Close() })

	return func() {
		if c.stop != nil {
			c.stop()
			c.stop = nil
		}
		c.ctx = context.Background()
	}
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Err returns the error that broke the connection, if any.
func (c *Conn) Err() error { return c.err }

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	if c.err == nil {
		c.err = mcerr.New("closed", mcerr.ErrIO, ErrClosed)
	}

	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Write writes all of p.
func (c *Conn) Write(p []byte) error {
	const op = "write"
	if err := c.begin(op); err != nil {
		return err
	}

	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return c.fail(op, err)
		}
		p = p[n:]
	}

	return nil
}

// ReadFull reads exactly len(p) bytes from the stream.
func (c *Conn) ReadFull(p []byte) error {
	const op = "read"
	if err := c.begin(op); err != nil {
		return err
	}

	if _, err := io.ReadFull(c.reader(), p); err != nil {
		return c.fail(op, err)
	}

	return nil
}

// Read implements io.Reader with the same deadline and error rules as ReadFull.
func (c *Conn) Read(p []byte) (int, error) {
	const op = "read"
	if err := c.begin(op); err != nil {
		return 0, err
	}

	n, err := c.reader().Read(p)
	if err != nil {
		return n, c.fail(op, err)
	}

	return n, nil
}

// ReadByte reads a single byte from the stream. It implements io.ByteReader.
func (c *Conn) ReadByte() (byte, error) {
	const op = "read"
	if err := c.begin(op); err != nil {
		return 0, err
	}

	var (
		b   byte
		err error
	)
	if c.br != nil {
		b, err = c.br.ReadByte()
	} else {
		var one [1]byte
		_, err = io.ReadFull(c.conn, one[:])
		b = one[0]
	}
	if err != nil {
		return 0, c.fail(op, err)
	}

	return b, nil
}

// ReadVarInt reads one var-int from the stream.
func (c *Conn) ReadVarInt() (int32, error) {
	v, _, err := wire.ReadVarInt(c)
	if err != nil {
		var fe *wire.FormatError
		if errors.As(err, &fe) {
			return 0, c.fail("read var-int", err)
		}

		return 0, err
	}

	return v, nil
}

// ReadDatagram receives one datagram of at most size bytes.
func (c *Conn) ReadDatagram(size int) ([]byte, error) {
	const op = "receive"
	if err := c.begin(op); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultDatagramSize
	}

	buf := make([]byte, size)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, c.fail(op, err)
	}

	return buf[:n], nil
}

// Fail closes the connection on behalf of a caller that found a protocol error.
// err is returned unchanged and remembered for later calls.
func (c *Conn) Fail(err error) error {
	if c.err == nil {
		c.err = err
	}
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	_ = c.conn.Close()

	return err
}

func (c *Conn) reader() io.Reader {
	if c.br != nil {
		return c.br
	}

	return c.conn
}

// begin refuses work on a broken connection and arms the deadline for one operation.
func (c *Conn) begin(op string) error {
	if c.err != nil {
		return c.err
	}
	if err := c.ctx.Err(); err != nil {
		return c.Fail(mcerr.New(op, mcerr.ErrTimeout, err))
	}

	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := c.ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return c.fail(op, err)
	}

	return nil
}

func (c *Conn) fail(op string, err error) error {
	return c.Fail(classify(c.ctx, op, err))
}

// classify maps a transport error onto an mcerr kind.
func classify(ctx context.Context, op string, err error) error {
	if mcerr.KindOf(err) != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return mcerr.New(op, mcerr.ErrTimeout, ctxErr)
	}

	var ne net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return mcerr.New(op, mcerr.ErrTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return mcerr.New(op, mcerr.ErrUnexpectedEOF, err)
	default:
		return mcerr.New(op, mcerr.ErrIO, err)
	}
}
