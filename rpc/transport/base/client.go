package base

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// Backoff between connect attempts
const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.).
// All requests run synchronously on the calling goroutine.
type clientTransport struct {
	connector IClientConnector
	metrics   *clientMetrics
	state     atomic.Int32

	// mu guards everything below, it is held for a whole request (or stream)
	mu         sync.Mutex
	config     common.ClientConfig
	configured bool
	conn       net.Conn
	// generation is incremented for every new connection
	generation        uint64
	nextCorrelationID uint64
	readBuf           *Buffer
	writeBuf          *Buffer
	header            [frameHeaderSize]byte
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		metrics:   newClientMetrics(connector.GetName()),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State() == transport.StateClosed {
		return transport.ErrClosed
	}

	// a new config always starts with a new connection
	t.closeConn()

	t.config = config
	t.readBuf = NewBuffer(config.InitialBufferBytes, config.MaxFrameBytes)
	t.writeBuf = NewBuffer(config.InitialBufferBytes, config.MaxFrameBytes+frameHeaderSize)

	onGrow := func(from, to int) {
		t.metrics.bufferGrowth.Inc()
		Logger.Debugf("Buffer for %s grew from %d to %d bytes", config.Endpoint, from, to)
	}
	t.readBuf.onGrow = onGrow
	t.writeBuf.onGrow = onGrow

	t.configured = true

	Logger.Debugf("Configured %s transport for %s", t.connector.GetName(), config.Endpoint)
	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	resp, err = t.sendWithRetry(shardId, req)
	if err != nil {
		t.metrics.errors.Inc()
	}
	return resp, err
}

func (t *clientTransport) Stream(shardId uint64, fn func(send transport.SendFunc) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureConnected(); err != nil {
		t.metrics.errors.Inc()
		return err
	}
	generation := t.generation
	first := true

	send := func(req []byte) ([]byte, error) {
		if first {
			// nothing of the stream reached the server yet, so a stale connection is replaced
			first = false
			data, err := t.sendWithRetry(shardId, req)
			if err != nil {
				t.metrics.errors.Inc()
				return nil, fmt.Errorf("%w: %w", transport.ErrTransfer, err)
			}
			generation = t.generation
			return data, nil
		}

		if t.conn == nil || t.generation != generation {
			return nil, fmt.Errorf("%w: connection to %s was lost", transport.ErrTransfer, t.config.Endpoint)
		}

		data, _, err := t.roundTrip(shardId, req)
		if err != nil {
			t.metrics.errors.Inc()
			return nil, fmt.Errorf("%w: %w", transport.ErrTransfer, err)
		}
		return data, nil
	}

	return fn(send)
}

func (t *clientTransport) State() transport.ConnState {
	return transport.ConnState(t.state.Load())
}

func (t *clientTransport) Close() error {
	if transport.ConnState(t.state.Swap(int32(transport.StateClosed))) == transport.StateClosed {
		return nil
	}

	// waits for a running request
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.conn != nil {
		err = t.conn.Close()
		t.conn = nil
	}
	Logger.Debugf("Closed %s transport for %s", t.connector.GetName(), t.config.Endpoint)
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// setState changes the state unless the transport is closed
func (t *clientTransport) setState(s transport.ConnState) bool {
	for {
		cur := t.state.Load()
		if transport.ConnState(cur) == transport.StateClosed {
			return false
		}
		if t.state.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}

func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// closeConn drops the current connection, the next request reconnects
func (t *clientTransport) closeConn() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.setState(transport.StateDisconnected)
}

// sendWithRetry sends a single request. We always try at least once, only requests
// that could not be written (or hit a dead connection) are sent again on a new connection.
func (t *clientTransport) sendWithRetry(shardId uint64, req []byte) ([]byte, error) {
	attempts := max(t.config.RetryCount+1, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := t.ensureConnected(); err != nil {
			return nil, err
		}

		data, retry, err := t.roundTrip(shardId, req)
		if err == nil {
			return data, nil
		}

		lastErr = err
		if !retry || i == attempts-1 {
			break
		}

		t.metrics.retries.Inc()
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, attempts, err)
	}
	return nil, lastErr
}

// ensureConnected establishes the connection if there is none. A server that is not
// reachable yet is retried with exponential backoff until the connect window is over.
func (t *clientTransport) ensureConnected() error {
	if t.State() == transport.StateClosed {
		return transport.ErrClosed
	}
	if t.conn != nil {
		return nil
	}
	if !t.configured {
		return fmt.Errorf("%w: transport is not configured", transport.ErrConnect)
	}

	t.setState(transport.StateConnecting)

	endpoint := t.config.Endpoint
	window := time.Duration(t.config.ConnectTimeoutSecond) * time.Second
	deadline := time.Now().Add(window)
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		if t.State() == transport.StateClosed {
			return transport.ErrClosed
		}

		dialTimeout := t.timeout()
		if remaining := time.Until(deadline); remaining > 0 && (dialTimeout == 0 || remaining < dialTimeout) {
			dialTimeout = remaining
		}

		conn, err := t.connector.Connect(endpoint, dialTimeout)
		if err == nil {
			if err = t.connector.UpgradeConnection(conn, t.config); err == nil {
				t.conn = conn
				t.generation++
				t.setState(transport.StateConnected)
				t.metrics.connects.Inc()
				Logger.Debugf("Connected to %s using %s transport (attempt %d)", endpoint, t.connector.GetName(), attempt)
				return nil
			}
			_ = conn.Close()
			err = fmt.Errorf("failed to upgrade connection: %w", err)
		}

		if attempt == 1 {
			Logger.Warningf("Failed to connect to %s, retrying for up to %s: %v", endpoint, window, err)
		} else {
			Logger.Debugf("Connect attempt %d to %s failed: %v", attempt, endpoint, err)
		}

		// Exponential backoff with a small random jitter (+-10%)
		jitter := float64(backoff) * (0.9 + 0.2*rand.Float64())
		sleep := time.Duration(jitter)
		if time.Now().Add(sleep).After(deadline) {
			t.setState(transport.StateDisconnected)
			return fmt.Errorf("%w: %s not reachable after %d attempts: %w", transport.ErrConnect, endpoint, attempt, err)
		}
		time.Sleep(sleep)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// roundTrip writes one request frame and reads the matching response.
// retry is true if the request never reached the server and may be sent again.
func (t *clientTransport) roundTrip(shardID uint64, req []byte) (resp []byte, retry bool, err error) {
	start := time.Now()
	t.metrics.requests.Inc()
	defer t.metrics.duration.UpdateDuration(start)

	t.nextCorrelationID++
	correlationID := t.nextCorrelationID

	// payload too large is detected before anything is sent, the connection stays usable
	if err := encodeFrame(t.writeBuf, magicRequest, shardID, correlationID, req, t.config.MaxFrameBytes); err != nil {
		return nil, false, err
	}

	timeout := t.timeout()
	endpoint := t.config.Endpoint

	if timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			t.closeConn()
			return nil, true, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if _, err := t.conn.Write(t.writeBuf.Bytes()); err != nil {
		t.closeConn()
		if isTimeout(err) {
			return nil, false, fmt.Errorf("%w: writing to %s stalled for %s: %w", transport.ErrTimeout, endpoint, timeout, err)
		}
		return nil, true, fmt.Errorf("failed to write request to %s: %w", endpoint, err)
	}

	if timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			t.closeConn()
			return nil, false, fmt.Errorf("%w: failed to set read deadline: %w", transport.ErrProtocol, err)
		}
	}

	h, err := readHeader(t.conn, t.header[:])
	if err != nil {
		t.closeConn()
		switch {
		case isTimeout(err):
			return nil, false, fmt.Errorf("%w: no response from %s within %s: %w", transport.ErrTimeout, endpoint, timeout, err)
		case isConnLost(err):
			// the server dropped a stale connection before reading the request
			return nil, true, fmt.Errorf("connection to %s lost: %w", endpoint, err)
		default:
			return nil, false, fmt.Errorf("%w: failed to read response header: %w", transport.ErrProtocol, err)
		}
	}

	switch {
	case h.magic != magicResponse:
		err = fmt.Errorf("%w: invalid frame magic 0x%02x", transport.ErrProtocol, h.magic)
	case h.correlationID != correlationID:
		err = fmt.Errorf("%w: unexpected correlation id %d, expected %d", transport.ErrProtocol, h.correlationID, correlationID)
	case h.shardID != shardID:
		err = fmt.Errorf("%w: response for shard %d, expected %d", transport.ErrProtocol, h.shardID, shardID)
	case h.length > t.config.MaxFrameBytes:
		err = fmt.Errorf("%w: response of %d bytes exceeds the frame limit of %d bytes",
			transport.ErrPayloadTooLarge, h.length, t.config.MaxFrameBytes)
	}
	if err != nil {
		Logger.Errorf("Closing connection to %s: %v", endpoint, err)
		t.closeConn()
		return nil, false, err
	}

	data, err := readPayload(t.conn, t.readBuf, h.length)
	if err != nil {
		t.closeConn()
		Logger.Errorf("Incomplete response from %s: %v", endpoint, err)
		return nil, false, fmt.Errorf("%w: response payload of %d bytes incomplete: %w", transport.ErrProtocol, h.length, err)
	}

	resp = make([]byte, len(data))
	copy(resp, data)
	return resp, false, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnLost(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
