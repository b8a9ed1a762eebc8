// Package status implements the Server List Ping protocol: a handshake, a status
// request answered with a JSON document, and an optional ping/pong round trip.
package status

import (
	"context"
	"errors"
	"time"

	"github.com/woozymasta/mcquery/pkg/mcerr"
	"github.com/woozymasta/mcquery/pkg/transport"
	"github.com/woozymasta/mcquery/pkg/wire"
)

// MaxPacketLength is the largest packet accepted from the server (the largest 3-byte var-int).
const MaxPacketLength = 1<<21 - 1

const (
	packetHandshake int32 = 0x00
	packetStatus    int32 = 0x00
	packetPing      int32 = 0x01
	nextStateStatus int32 = 1
)

// Fetch connects to host:port over TCP and returns the server status.
// timeout bounds the dial and every single read or write; ctx bounds the whole call.
func Fetch(ctx context.Context, host string, port uint16, timeout time.Duration, opts ...Option) (*Response, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := transport.Dial(ctx, "tcp", host, port, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	release := conn.Bind(ctx)
	defer release()

	return fetch(conn, host, port, cfg)
}

func fetch(conn *transport.Conn, host string, port uint16, cfg config) (*Response, error) {
	log := cfg.logger.With().Str("host", host).Uint16("port", port).Logger()

	handshake := wire.NewWriter(len(host) + 16).
		VarInt(packetHandshake).
		VarInt(cfg.protocol).
		PrefixedString(host).
		Uint16BE(port).
		VarInt(nextStateStatus)

	out := wire.Frame(handshake.Bytes())
	out = append(out, wire.Frame(wire.AppendVarInt(nil, packetStatus))...)
	if err := conn.Write(out); err != nil {
		return nil, err
	}
	log.Debug().Int32("protocol", cfg.protocol).Msg("Handshake and status request sent")

	r, err := readPacket(conn, packetStatus)
	if err != nil {
		return nil, err
	}
	doc, err := r.PrefixedString()
	if err != nil {
		return nil, conn.Fail(err)
	}

	resp, err := parseResponse([]byte(doc))
	if err != nil {
		return nil, conn.Fail(err)
	}
	log.Debug().Int("bytes", len(doc)).Msg("Status response decoded")

	if !cfg.ping {
		return resp, nil
	}

	latency, err := ping(conn)
	switch {
	case err == nil:
		resp.Latency = latency
		resp.LatencyMS = latency.Milliseconds()
		log.Debug().Dur("latency", latency).Msg("Pong received")
	case errors.Is(err, mcerr.ErrUnexpectedEOF):
		// legacy servers hang up after the status response
		log.Debug().Err(err).Msg("Server closed before pong, latency not measured")
	default:
		return nil, err
	}

	return resp, nil
}

// ping sends a ping packet and waits for the pong echoing its payload.
func ping(conn *transport.Conn) (time.Duration, error) {
	payload := time.Now().UnixMilli()
	packet := wire.NewWriter(10).VarInt(packetPing).Int64BE(payload)

	start := time.Now()
	if err := conn.Write(wire.Frame(packet.Bytes())); err != nil {
		return 0, err
	}

	r, err := readPacket(conn, packetPing)
	if err != nil {
		return 0, err
	}
	echo, err := r.Int64BE()
	if err != nil {
		return 0, conn.Fail(err)
	}
	if echo != payload {
		return 0, conn.Fail(mcerr.Newf("pong", mcerr.ErrProtocolDesync, "payload %d, want %d", echo, payload))
	}

	return time.Since(start), nil
}

// readPacket reads one length-prefixed packet and checks its id.
// The returned reader is positioned after the id.
func readPacket(conn *transport.Conn, wantID int32) (*wire.Reader, error) {
	const op = "read packet"

	length, err := conn.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if length < 1 || length > MaxPacketLength {
		return nil, conn.Fail(mcerr.Newf(op, mcerr.ErrMalformedResponse, "packet length %d out of range", length))
	}

	buf := make([]byte, length)
	if err := conn.ReadFull(buf); err != nil {
		return nil, err
	}

	r := wire.NewReader(buf)
	id, err := r.VarInt()
	if err != nil {
		return nil, conn.Fail(err)
	}
	if id != wantID {
		return nil, conn.Fail(mcerr.Newf(op, mcerr.ErrProtocolDesync, "packet id 0x%02x, want 0x%02x", id, wantID))
	}

	return r, nil
}

