// Package mcerr defines the error kinds shared by the status, query and rcon clients.
//
// Every error returned by those packages matches exactly one kind with errors.Is:
//
//	if errors.Is(err, mcerr.ErrTimeout) { ... }
//
// All kinds are terminal for the connection that produced them.
package mcerr

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is returned when the transport failed (refused, reset, unreachable).
	ErrIO = errors.New("i/o error")

	// ErrTimeout is returned when an operation deadline elapsed or the context was done.
	ErrTimeout = errors.New("timeout")

	// ErrUnexpectedEOF is returned when the peer closed before the declared length was read.
	ErrUnexpectedEOF = errors.New("unexpected eof")

	// ErrMalformedPrimitive is returned for a bad var-int, string length or terminator.
	ErrMalformedPrimitive = errors.New("malformed primitive")

	// ErrMalformedResponse is returned when a frame decoded but its content is invalid.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrProtocolDesync is returned for an unexpected packet id, type or session.
	ErrProtocolDesync = errors.New("protocol desync")

	// ErrAuthenticationFailed is returned when the RCON server rejected the password.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNotAuthenticated is returned when a command is issued before a successful login.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Error carries the failed operation together with its kind and cause.
type Error struct {
	Kind error  // one of the Err* sentinels
	Err  error  // underlying cause, may be nil
	Op   string // operation name, e.g. "status handshake"
}

// New builds an *Error of the given kind.
func New(op string, kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Newf builds an *Error of the given kind with a formatted cause.
func Newf(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}

	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// KindOf reports the sentinel kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotAuthenticated,
		ErrAuthenticationFailed,
		ErrProtocolDesync,
		ErrMalformedResponse,
		ErrMalformedPrimitive,
		ErrUnexpectedEOF,
		ErrTimeout,
		ErrIO,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return nil
}
