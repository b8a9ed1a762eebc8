// Package rcon implements a remote console client: password authentication followed
// by command execution with reassembly of fragmented responses.
package rcon

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/woozymasta/mcquery/pkg/mcerr"
	"github.com/woozymasta/mcquery/pkg/transport"
)

var errPasswordRejected = errors.New("password was rejected")

// DefaultMaxResponseSize bounds the reassembled output of a single command.
const DefaultMaxResponseSize = 1 << 20

// FragmentStrategy selects how the end of a multi-packet response is detected.
type FragmentStrategy int

const (
	// FragmentSentinel follows the command with an empty command under a second id
	// and treats the echo of that id as the end of the response.
	FragmentSentinel FragmentStrategy = iota

	// FragmentShortPacket treats the first body shorter than MaxFragmentSize characters as the last one.
	// A response that is an exact multiple of MaxFragmentSize waits for the timeout.
	FragmentShortPacket
)

// String returns the flag value of the strategy.
func (s FragmentStrategy) String() string {
	switch s {
	case FragmentSentinel:
		return "sentinel"
	case FragmentShortPacket:
		return "short"
	default:
		return "unknown"
	}
}

// ParseFragmentStrategy parses "sentinel" or "short".
func ParseFragmentStrategy(s string) (FragmentStrategy, bool) {
	switch s {
	case "sentinel", "":
		return FragmentSentinel, true
	case "short":
		return FragmentShortPacket, true
	default:
		return FragmentSentinel, false
	}
}

// Config controls a Client.
type Config struct {
	// Logger receives packet dumps at debug level. The zero value discards them.
	Logger zerolog.Logger

	// Timeout bounds every single read and write. Zero disables it.
	Timeout time.Duration

	// Fragment selects the end-of-response detection.
	Fragment FragmentStrategy

	// MaxResponseSize bounds the reassembled output. Zero means DefaultMaxResponseSize.
	MaxResponseSize int

	// StartingSeq is the first request id. Negative values are ignored.
	StartingSeq int32

	// LogAuthPackets includes the plaintext password in packet dumps.
	LogAuthPackets bool
}

type state int

const (
	stateConnected state = iota
	stateAuthenticated
	stateRejected
	stateClosed
)

// Client is one RCON connection. It is safe for concurrent use; calls are serialized.
type Client struct {
	// conn carries the packets and owns deadlines and cancellation.
	conn *transport.Conn

	log zerolog.Logger
	cfg Config

	// mu serializes requests; the protocol has no pipelining.
	mu sync.Mutex

	// seq is the next request id, between 0 and math.MaxInt32.
	seq int32

	state state
}

// Dial connects to host:port over TCP and returns an unauthenticated Client.
// timeout bounds the dial and every later read or write.
func Dial(ctx context.Context, host string, port uint16, timeout time.Duration, cfg Config) (*Client, error) {
	conn, err := transport.Dial(ctx, "tcp", host, port, timeout)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = timeout

	return newClient(conn, cfg), nil
}

// NewClient adopts an established connection, for example a TLS or Unix socket stream.
func NewClient(nc net.Conn, cfg Config) *Client {
	return newClient(transport.Wrap(nc, cfg.Timeout), cfg)
}

func newClient(conn *transport.Conn, cfg Config) *Client {
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}

	c := &Client{
		conn: conn,
		log:  cfg.Logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		cfg:  cfg,
	}
	if cfg.StartingSeq > 0 {
		c.seq = cfg.StartingSeq
	}

	return c
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = stateClosed
	return c.conn.Close()
}

// Authenticated reports whether a login succeeded on this connection.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateAuthenticated
}

// Authenticate logs in with password. A rejected password closes the connection
// and fails with mcerr.ErrAuthenticationFailed.
func (c *Client) Authenticate(ctx context.Context, password string) error {
	const op = "rcon auth"

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return err
	}
	if len(password) > MaxPayloadSize {
		return ErrPayloadTooLong
	}

	release := c.conn.Bind(ctx)
	defer release()

	id := c.nextID()
	if err := c.send(Packet{ID: id, Type: TypeAuth, Body: []byte(password)}); err != nil {
		return err
	}

	skippedEmpty := false
	for {
		resp, err := c.receive()
		if err != nil {
			return err
		}

		switch {
		case resp.ID == -1:
			c.state = stateRejected
			return c.conn.Fail(mcerr.New(op, mcerr.ErrAuthenticationFailed, nil))

		case resp.Type == TypeResponseValue && len(resp.Body) == 0 && !skippedEmpty:
			// Source engine servers send an empty value packet ahead of the auth response
			skippedEmpty = true
			continue

		case resp.Type != TypeAuthResponse || resp.ID != id:
			return c.conn.Fail(mcerr.Newf(op, mcerr.ErrProtocolDesync, "packet id %d type %d, want id %d type %d",
				resp.ID, resp.Type, id, TypeAuthResponse))
		}

		c.state = stateAuthenticated
		c.log.Debug().Int32("id", id).Msg("RCON authenticated")
		return nil
	}
}

// RunCommand executes command and returns its complete output.
// It fails with mcerr.ErrNotAuthenticated, without any I/O, until Authenticate succeeded.
func (c *Client) RunCommand(ctx context.Context, command string) (string, error) {
	const op = "rcon command"

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return "", err
	}
	if c.state != stateAuthenticated {
		return "", mcerr.New(op, mcerr.ErrNotAuthenticated, nil)
	}
	if len(command) > MaxPayloadSize {
		return "", ErrPayloadTooLong
	}

	release := c.conn.Bind(ctx)
	defer release()

	id := c.nextID()
	if err := c.send(Packet{ID: id, Type: TypeExecCommand, Body: []byte(command)}); err != nil {
		return "", err
	}

	var (
		out        []byte
		sentinelID int32 = -1
	)
	for fragments := 0; ; fragments++ {
		resp, err := c.receive()
		if err != nil {
			return "", err
		}

		switch {
		case resp.ID == -1:
			c.state = stateRejected
			return "", c.conn.Fail(mcerr.New(op, mcerr.ErrAuthenticationFailed, nil))

		case sentinelID != -1 && resp.ID == sentinelID:
			c.log.Debug().Int32("id", id).Int("fragments", fragments).Int("bytes", len(out)).Msg("RCON response complete")
			return string(out), nil

		case resp.ID != id || resp.Type != TypeResponseValue:
			return "", c.conn.Fail(mcerr.Newf(op, mcerr.ErrProtocolDesync, "packet id %d type %d, want id %d type %d",
				resp.ID, resp.Type, id, TypeResponseValue))
		}

		if len(out)+len(resp.Body) > c.cfg.MaxResponseSize {
			return "", c.conn.Fail(mcerr.Newf(op, mcerr.ErrMalformedResponse, "response exceeds %d bytes", c.cfg.MaxResponseSize))
		}
		out = append(out, resp.Body...)

		switch c.cfg.Fragment {
		case FragmentShortPacket:
			// servers split output by characters, not bytes
			if utf8.RuneCount(resp.Body) < MaxFragmentSize {
				return string(out), nil
			}

		default:
			// sent only after the first fragment so the server never sees both requests in one read
			if sentinelID == -1 {
				sentinelID = c.nextID()
				if err := c.send(Packet{ID: sentinelID, Type: TypeExecCommand}); err != nil {
					return "", err
				}
			}
		}
	}
}

// usable reports why the client cannot issue a request, if it cannot.
func (c *Client) usable() error {
	switch c.state {
	case stateClosed:
		return mcerr.New("rcon", mcerr.ErrIO, transport.ErrClosed)
	case stateRejected:
		return mcerr.New("rcon", mcerr.ErrNotAuthenticated, errPasswordRejected)
	}

	return c.conn.Err()
}

func (c *Client) send(p Packet) error {
	b, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	c.logPacket("RCON packet sent", p, b)

	return c.conn.Write(b)
}

func (c *Client) receive() (Packet, error) {
	var p Packet
	if _, err := p.ReadFrom(c.conn); err != nil {
		return p, c.conn.Fail(err)
	}
	c.logPacket("RCON packet received", p, nil)

	return p, nil
}

// nextID returns the current sequence value and advances it, wrapping to zero after math.MaxInt32.
func (c *Client) nextID() int32 {
	id := c.seq
	if c.seq == math.MaxInt32 {
		c.seq = 0
	} else {
		c.seq++
	}

	return id
}

// logPacket dumps a packet at debug level. Outbound auth bodies are masked
// unless Config.LogAuthPackets is set.
func (c *Client) logPacket(msg string, p Packet, encoded []byte) {
	e := c.log.Debug()
	if !e.Enabled() {
		return
	}

	if p.Type == TypeAuth && encoded != nil && !c.cfg.LogAuthPackets {
		p.Body = []byte("xxxxx")
		encoded = nil
	}
	if encoded == nil {
		var err error
		if encoded, err = p.MarshalBinary(); err != nil {
			e.Discard()
			return
		}
	}

	e.Int32("id", p.ID).Int32("type", p.Type).Str("packet", hex.EncodeToString(encoded)).Msg(msg)
}
