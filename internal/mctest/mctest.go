// Package mctest provides in-process Minecraft status and query servers for tests.
package mctest

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mcquery/pkg/wire"
)

// Doc is a minimal valid status document.
const Doc = `{"version":{"name":"1.21.4","protocol":769},"players":{"max":20,"online":2,"sample":[{"name":"Alice","id":"00000000-0000-0000-0000-000000000001"}]},"description":{"text":"A Minecraft Server"},"favicon":"data:image/png;base64,iVBORw0KGgo="}`

const token = "9513307"

// StatusServer answers the status handshake with doc and echoes pings, on any number of connections.
func StatusServer(t testing.TB, doc string) (host string, port uint16) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveStatus(c, doc)
		}
	}()

	return split(t, ln.Addr())
}

func serveStatus(c net.Conn, doc string) {
	defer func() { _ = c.Close() }()
	br := bufio.NewReader(c)

	// handshake and status request
	for range 2 {
		if _, err := readFrame(br); err != nil {
			return
		}
	}

	body := wire.NewWriter(len(doc) + 8).VarInt(0).PrefixedString(doc)
	if _, err := c.Write(wire.Frame(body.Bytes())); err != nil {
		return
	}

	ping, err := readFrame(br)
	if err != nil {
		return
	}
	_, _ = c.Write(wire.Frame(ping))
}

func readFrame(br *bufio.Reader) ([]byte, error) {
	n, _, err := wire.ReadVarInt(br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	_, err = io.ReadFull(br, buf)

	return buf, err
}

// KV is one key/value pair of a full stat reply, in wire order.
type KV struct {
	Key   string
	Value string
}

// QueryServer answers query handshakes and stat requests built from kv and players.
// Basic stat takes hostname, gametype, map, numplayers, maxplayers, hostport and hostip from kv.
func QueryServer(t testing.TB, kv []KV, players []string) uint16 {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if out := queryReply(buf[:n], kv, players); out != nil {
				_, _ = pc.WriteTo(out, addr)
			}
		}
	}()

	return uint16(pc.LocalAddr().(*net.UDPAddr).Port) //nolint:gosec
}

func queryReply(req []byte, kv []KV, players []string) []byte {
	if len(req) < 7 || req[0] != 0xFE || req[1] != 0xFD {
		return nil
	}
	session := int32(binary.BigEndian.Uint32(req[3:7])) //nolint:gosec

	switch req[2] {
	case 9:
		return wire.NewWriter(16).Byte(9).Int32BE(session).CString(token).Bytes()

	case 0:
		want, _ := strconv.ParseInt(token, 10, 32)
		if len(req) < 11 || int64(binary.BigEndian.Uint32(req[7:11])) != want {
			return nil
		}

		w := wire.NewWriter(256).Byte(0).Int32BE(session)
		if len(req) == 15 {
			w.Raw([]byte("splitnum\x00\x80\x00"))
			for _, p := range kv {
				w.CString(p.Key).CString(p.Value)
			}
			w.Byte(0)
			w.Raw([]byte("\x01player_\x00\x00"))
			for _, name := range players {
				w.CString(name)
			}
			w.Byte(0)

			return w.Bytes()
		}

		get := func(key string) string {
			for _, p := range kv {
				if p.Key == key {
					return p.Value
				}
			}
			return ""
		}
		port, _ := strconv.ParseUint(get("hostport"), 10, 16)
		w.CString(get("hostname")).CString(get("gametype")).CString(get("map")).
			CString(get("numplayers")).CString(get("maxplayers")).
			Uint16LE(uint16(port)).CString(get("hostip"))

		return w.Bytes()
	}

	return nil
}

// ClosedPort returns a local TCP port that nothing listens on.
func ClosedPort(t testing.TB) uint16 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port := split(t, ln.Addr())
	require.NoError(t, ln.Close())

	return port
}

func split(t testing.TB, addr net.Addr) (string, uint16) {
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)

	return host, uint16(port)
}
