package transport

import (
	"net"

	"github.com/ValentinKolb/smap/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IServerHandler receives the payloads of all frames read by a server transport.
// Frames of one connection are handed to the handler in the order they were received,
// the next frame is only read after the response to the previous one was written.
type IServerHandler interface {
	// HandleRequest processes a request of the given connection and returns the response payload.
	// req is only valid for the duration of the call.
	HandleRequest(connID, shardID uint64, req []byte) (resp []byte)
	// HandleOverflow returns the response for a frame of the given size that exceeded the frame limit.
	// For requests the payload was already discarded.
	HandleOverflow(connID, shardID uint64, size int) (resp []byte)
	// ConnectionClosed is called once after a connection was closed, for any reason
	ConnectionClosed(connID uint64)
}

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for all received frames.
	// It must be called before Serve.
	RegisterHandler(handler IServerHandler)
	// Listen binds the configured endpoint, it does not accept connections yet
	Listen(config common.ServerConfig) error
	// Serve accepts connections until Close is called. It returns nil after Close.
	Serve() error
	// Addr returns the address the transport is bound to (nil before Listen)
	Addr() net.Addr
	// Close stops accepting, closes all open connections and waits for their handlers
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// SendFunc sends one request within a stream and returns the response
type SendFunc func(req []byte) (resp []byte, err error)

// IRPCClientTransport is the interface for the RPC client transport.
// A client transport owns exactly one connection and has at most one request in flight.
// Concurrent callers are serialized.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration. The connection itself
	// is established by the first request, so a client may be created before its server.
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// The returned slice belongs to the caller.
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Stream runs fn with exclusive use of the connection, all requests sent by fn use
	// the same connection. The first send reconnects and retries like Send, once a request
	// of the stream reached the server a failing connection makes every further send fail with ErrTransfer.
	Stream(shardId uint64, fn func(send SendFunc) error) error
	// State returns the current connection state
	State() ConnState
	// Close closes the transport connection. Close is idempotent.
	Close() error
}
