package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality.
// Every connection is served by its own goroutine, frames of one connection are
// handled strictly in order (chunks of a bulk transfer depend on that).
type serverTransport struct {
	connector  IServerConnector
	handler    transport.IServerHandler
	config     common.ServerConfig
	listener   net.Listener
	metrics    *serverMetrics
	conns      *xsync.MapOf[uint64, net.Conn]
	nextConnID atomic.Uint64
	closed     atomic.Bool
	wg         sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		metrics:   newServerMetrics(connector.GetName()),
		conns:     xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.IServerHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if config.InitialBufferBytes <= 0 {
		config.InitialBufferBytes = common.DefaultInitialBufferBytes
	}
	if config.MaxFrameBytes < config.InitialBufferBytes {
		config.MaxFrameBytes = max(common.DefaultMaxFrameBytes, config.InitialBufferBytes)
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener

	Logger.Infof("Listening with %s transport on %s", t.connector.GetName(), listener.Addr())
	return nil
}

func (t *serverTransport) Serve() error {
	if t.listener == nil {
		return fmt.Errorf("transport is not listening")
	}
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}

	// Accept connections
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		connID := t.nextConnID.Add(1)
		t.conns.Store(connID, conn)
		t.metrics.connections.Inc()

		// closed between Accept and Store
		if t.closed.Load() {
			t.conns.Delete(connID)
			_ = conn.Close()
			return nil
		}

		// Handle the connection in a goroutine
		t.wg.Add(1)
		go t.handleConnection(connID, conn)
	}
}

func (t *serverTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}

	t.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	t.wg.Wait()

	Logger.Infof("Stopped %s transport", t.connector.GetName())
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection serves all frames of one connection until it is closed
func (t *serverTransport) handleConnection(connID uint64, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		t.conns.Delete(connID)
		t.handler.ConnectionClosed(connID)
		t.wg.Done()
	}()

	Logger.Debugf("Connection %d from %s accepted", connID, conn.RemoteAddr())

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	buf := NewBuffer(t.config.InitialBufferBytes, t.config.MaxFrameBytes)
	buf.onGrow = func(from, to int) {
		Logger.Debugf("Buffer of connection %d grew from %d to %d bytes", connID, from, to)
	}
	header := make([]byte, frameHeaderSize)

	setDeadline := func(set func(time.Time) error) error {
		if timeout <= 0 {
			return nil
		}
		return set(time.Now().Add(timeout))
	}

	for {
		// idle connections are fine, the timeout only applies once a frame started
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			Logger.Errorf("Failed to reset read deadline: %v", err)
			return
		}

		h, err := readHeader(conn, header)
		if err != nil {
			if errors.Is(err, io.EOF) || t.closed.Load() {
				Logger.Debugf("Connection %d closed by client", connID)
			} else {
				Logger.Errorf("Error reading frame header on connection %d: %v", connID, err)
			}
			return
		}
		if h.magic != magicRequest {
			Logger.Errorf("Invalid frame magic 0x%02x on connection %d, closing", h.magic, connID)
			return
		}

		if err := setDeadline(conn.SetReadDeadline); err != nil {
			Logger.Errorf("Failed to set read deadline: %v", err)
			return
		}

		start := time.Now()
		var resp []byte

		if h.length > buf.Max() {
			// the request is dropped, the connection stays in sync
			t.metrics.overflows.Inc()
			Logger.Warningf("Request of %d bytes on connection %d exceeds the frame limit of %d bytes",
				h.length, connID, buf.Max())
			if _, err := io.CopyN(io.Discard, conn, int64(h.length)); err != nil {
				Logger.Errorf("Failed to discard oversized request on connection %d: %v", connID, err)
				return
			}
			resp = t.handler.HandleOverflow(connID, h.shardID, h.length)
		} else {
			data, err := readPayload(conn, buf, h.length)
			if err != nil {
				Logger.Errorf("Incomplete request on connection %d: %v", connID, err)
				return
			}
			resp = t.handler.HandleRequest(connID, h.shardID, data)
		}

		if len(resp) > t.config.MaxFrameBytes {
			t.metrics.overflows.Inc()
			resp = t.handler.HandleOverflow(connID, h.shardID, len(resp))
		}

		if err := setDeadline(conn.SetWriteDeadline); err != nil {
			Logger.Errorf("Failed to set write deadline: %v", err)
			return
		}

		// Write the response with the same correlation id
		if err := writeFrame(conn, magicResponse, h.shardID, h.correlationID, resp); err != nil {
			Logger.Errorf("Failed to write response on connection %d: %v", connID, err)
			return
		}

		t.metrics.frames.Inc()
		t.metrics.duration.UpdateDuration(start)
	}
}
