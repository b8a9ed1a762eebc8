package status

import "github.com/rs/zerolog"

// DefaultProtocolVersion is sent in the handshake when no version is configured.
// Servers accept -1 for status-only connections.
const DefaultProtocolVersion int32 = -1

type config struct {
	logger   zerolog.Logger
	protocol int32
	ping     bool
}

func defaultConfig() config {
	return config{
		logger:   zerolog.Nop(),
		protocol: DefaultProtocolVersion,
		ping:     true,
	}
}

// Option configures Fetch.
type Option func(*config)

// WithProtocolVersion sets the protocol version announced in the handshake.
func WithProtocolVersion(v int32) Option {
	return func(c *config) { c.protocol = v }
}

// WithoutPing skips the ping/pong round trip; Latency stays zero.
func WithoutPing() Option {
	return func(c *config) { c.ping = false }
}

// WithLogger sets the logger for debug records.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}
