package transport

import "errors"

// --------------------------------------------------------------------------
// Errors returned by client transports
// --------------------------------------------------------------------------

// All errors returned by a client transport wrap one of these, use errors.Is to match them.
var (
	// ErrClosed is returned for every operation on a transport that was closed by the caller
	ErrClosed = errors.New("transport is closed")
	// ErrConnect is returned if no connection could be established within the connect window
	ErrConnect = errors.New("connect failed")
	// ErrTimeout is returned if the server did not start answering within the timeout.
	// The connection is closed and will be reestablished by the next request.
	ErrTimeout = errors.New("request timed out")
	// ErrProtocol is returned for malformed or unexpected frames. The connection is closed.
	ErrProtocol = errors.New("protocol error")
	// ErrPayloadTooLarge is returned if a frame exceeds the configured maximum frame size
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrTransfer is returned if a bulk transfer was aborted. It is always combined with the cause.
	ErrTransfer = errors.New("bulk transfer aborted")
)

// --------------------------------------------------------------------------
// Connection state
// --------------------------------------------------------------------------

// ConnState is the state of the connection owned by a client transport
type ConnState int32

const (
	StateDisconnected ConnState = iota // no connection, the next request connects
	StateConnecting                    // a connect attempt is running
	StateConnected                     // ready
	StateClosed                        // closed by the caller, final
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
