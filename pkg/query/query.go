// Package query implements the UDP Query protocol: a token handshake followed by
// a basic or full stat request.
//
// Every call performs its own handshake and sends exactly one stat request.
// Datagrams may be dropped silently; a missing answer surfaces as mcerr.ErrTimeout
// and retrying is left to the caller.
package query

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/mcquery/pkg/mcerr"
	"github.com/woozymasta/mcquery/pkg/transport"
	"github.com/woozymasta/mcquery/pkg/wire"
)

const (
	// MaxDatagramSize bounds a single response datagram.
	MaxDatagramSize = 65535

	// SessionMask keeps only the low nibble of every session id byte.
	SessionMask = 0x0F0F0F0F

	magic0 = 0xFE
	magic1 = 0xFD

	typeStat      byte = 0x00
	typeHandshake byte = 0x09
)

type config struct {
	logger zerolog.Logger
}

// Option configures Basic and Full.
type Option func(*config)

// WithLogger sets the logger for debug records.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Basic performs a handshake and a basic stat request against host:port.
func Basic(ctx context.Context, host string, port uint16, timeout time.Duration, opts ...Option) (*BasicStat, error) {
	var stat *BasicStat
	err := run(ctx, host, port, timeout, opts, false, func(r *wire.Reader) error {
		var err error
		stat, err = parseBasic(r)
		return err
	})

	return stat, err
}

// Full performs a handshake and a full stat request against host:port.
func Full(ctx context.Context, host string, port uint16, timeout time.Duration, opts ...Option) (*FullStat, error) {
	var stat *FullStat
	err := run(ctx, host, port, timeout, opts, true, func(r *wire.Reader) error {
		var err error
		stat, err = parseFull(r)
		return err
	})

	return stat, err
}

func run(
	ctx context.Context,
	host string,
	port uint16,
	timeout time.Duration,
	opts []Option,
	full bool,
	parse func(*wire.Reader) error,
) error {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := transport.Dial(ctx, "udp", host, port, timeout)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	release := conn.Bind(ctx)
	defer release()

	log := cfg.logger.With().Str("host", host).Uint16("port", port).Logger()
	session := NewSessionID()

	token, err := handshake(conn, session)
	if err != nil {
		return err
	}
	log.Debug().Int32("session", session).Int32("token", token).Bool("full", full).Msg("Query handshake complete")

	if err := conn.Write(statRequest(session, token, full)); err != nil {
		return err
	}

	r, err := receive(conn, typeStat, session)
	if err != nil {
		return err
	}
	if err := parse(r); err != nil {
		return conn.Fail(err)
	}

	return nil
}

// NewSessionID returns a random session id with the mask applied.
func NewSessionID() int32 {
	return rand.Int32() & SessionMask //nolint:gosec
}

func handshake(conn *transport.Conn, session int32) (int32, error) {
	req := wire.NewWriter(7).Byte(magic0).Byte(magic1).Byte(typeHandshake).Int32BE(session)
	if err := conn.Write(req.Bytes()); err != nil {
		return 0, err
	}

	r, err := receive(conn, typeHandshake, session)
	if err != nil {
		return 0, err
	}
	text, err := r.CString()
	if err != nil {
		return 0, conn.Fail(err)
	}
	token, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return 0, conn.Fail(mcerr.New("query handshake", mcerr.ErrMalformedResponse, err))
	}

	return int32(token), nil
}

func statRequest(session, token int32, full bool) []byte {
	w := wire.NewWriter(15).Byte(magic0).Byte(magic1).Byte(typeStat).Int32BE(session).Int32BE(token)
	if full {
		w.Raw([]byte{0, 0, 0, 0})
	}

	return w.Bytes()
}

// receive reads one datagram and checks its type and session id.
func receive(conn *transport.Conn, wantType byte, session int32) (*wire.Reader, error) {
	const op = "query response"

	d, err := conn.ReadDatagram(MaxDatagramSize)
	if err != nil {
		return nil, err
	}

	r := wire.NewReader(d)
	typ, err := r.Byte()
	if err != nil {
		return nil, conn.Fail(err)
	}
	got, err := r.Int32BE()
	if err != nil {
		return nil, conn.Fail(err)
	}
	if typ != wantType {
		return nil, conn.Fail(mcerr.Newf(op, mcerr.ErrProtocolDesync, "packet type 0x%02x, want 0x%02x", typ, wantType))
	}
	if got != session {
		return nil, conn.Fail(mcerr.Newf(op, mcerr.ErrProtocolDesync, "session 0x%08x, want 0x%08x", got, session))
	}

	return r, nil
}
