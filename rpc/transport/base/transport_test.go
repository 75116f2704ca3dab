package base

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/transport"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

type testConnector struct{}

func (c *testConnector) GetName() string { return "test" }

func (c *testConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (c *testConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

func (c *testConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Endpoint)
}

// testServerConnector adapts testConnector to IServerConnector
type testServerConnector struct{ testConnector }

func (c *testServerConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

// echoHandler answers every request with its payload, "slow" requests take 1.5 seconds
type echoHandler struct {
	mu     sync.Mutex
	closed []uint64
}

func (h *echoHandler) HandleRequest(_, _ uint64, req []byte) []byte {
	if string(req) == "slow" {
		time.Sleep(1500 * time.Millisecond)
	}
	return append([]byte(nil), req...)
}

func (h *echoHandler) HandleOverflow(_, _ uint64, size int) []byte {
	return []byte(fmt.Sprintf("overflow:%d", size))
}

func (h *echoHandler) ConnectionClosed(connID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, connID)
}

func (h *echoHandler) closedConns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.closed)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}

func startServer(t *testing.T, config common.ServerConfig, handler transport.IServerHandler) transport.IRPCServerTransport {
	t.Helper()
	server := NewBaseServerTransport(&testServerConnector{})
	server.RegisterHandler(handler)
	if err := server.Listen(config); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go func() {
		if err := server.Serve(); err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	}()
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func serverConfig(endpoint string) common.ServerConfig {
	return common.ServerConfig{
		Endpoint:           endpoint,
		TimeoutSecond:      5,
		InitialBufferBytes: 1024,
		MaxFrameBytes:      1024 * 1024,
	}
}

func newClient(t *testing.T, config common.ClientConfig) transport.IRPCClientTransport {
	t.Helper()
	client := NewBaseClientTransport(&testConnector{})
	if err := client.Connect(config); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func clientConfig(endpoint string) common.ClientConfig {
	config := common.DefaultClientConfig(endpoint)
	config.InitialBufferBytes = 1024
	config.MaxFrameBytes = 1024 * 1024
	config.ChunkBytes = 512
	config.ConnectTimeoutSecond = 2
	return config
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestSendEcho(t *testing.T) {
	server := startServer(t, serverConfig("127.0.0.1:0"), &echoHandler{})
	client := newClient(t, clientConfig(server.Addr().String()))

	if client.State() != transport.StateDisconnected {
		t.Errorf("Expected lazy connect, state is %s", client.State())
	}

	for _, size := range []int{0, 10, 1000, 100_000} {
		payload := bytes.Repeat([]byte("a"), size)
		resp, err := client.Send(1, payload)
		if err != nil {
			t.Fatalf("Send of %d bytes failed: %v", size, err)
		}
		if !bytes.Equal(resp, payload) {
			t.Errorf("Echo of %d bytes returned %d bytes", size, len(resp))
		}
	}

	if client.State() != transport.StateConnected {
		t.Errorf("Expected state connected, got %s", client.State())
	}
}

func TestClientBeforeServer(t *testing.T) {
	addr := freeAddr(t)

	config := clientConfig(addr)
	config.ConnectTimeoutSecond = 5
	client := newClient(t, config)

	server := NewBaseServerTransport(&testServerConnector{})
	server.RegisterHandler(&echoHandler{})
	t.Cleanup(func() { _ = server.Close() })

	go func() {
		time.Sleep(300 * time.Millisecond)
		if err := server.Listen(serverConfig(addr)); err != nil {
			t.Errorf("Listen failed: %v", err)
			return
		}
		_ = server.Serve()
	}()

	resp, err := client.Send(1, []byte("hello"))
	if err != nil {
		t.Fatalf("Send to late server failed: %v", err)
	}
	if string(resp) != "hello" {
		t.Errorf("Expected 'hello', got %q", resp)
	}
}

func TestConnectWindowExceeded(t *testing.T) {
	config := clientConfig(freeAddr(t))
	config.ConnectTimeoutSecond = 0
	client := newClient(t, config)

	_, err := client.Send(1, []byte("hello"))
	if !errors.Is(err, transport.ErrConnect) {
		t.Errorf("Expected ErrConnect, got %v", err)
	}
	if client.State() != transport.StateDisconnected {
		t.Errorf("Expected state disconnected, got %s", client.State())
	}
}

func TestRequestTooLarge(t *testing.T) {
	server := startServer(t, serverConfig("127.0.0.1:0"), &echoHandler{})

	config := clientConfig(server.Addr().String())
	config.MaxFrameBytes = 4096
	client := newClient(t, config)

	_, err := client.Send(1, make([]byte, 5000))
	if !errors.Is(err, transport.ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}

	// nothing was sent, the connection is still usable
	if resp, err := client.Send(1, []byte("ok")); err != nil || string(resp) != "ok" {
		t.Errorf("Expected client to stay usable, got %q (err=%v)", resp, err)
	}
}

func TestServerOverflow(t *testing.T) {
	config := serverConfig("127.0.0.1:0")
	config.MaxFrameBytes = 2048
	server := startServer(t, config, &echoHandler{})
	client := newClient(t, clientConfig(server.Addr().String()))

	resp, err := client.Send(1, make([]byte, 4096))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "overflow:4096" {
		t.Errorf("Expected overflow response, got %q", resp)
	}

	// the oversized request was discarded and the connection is in sync
	if resp, err := client.Send(1, []byte("next")); err != nil || string(resp) != "next" {
		t.Errorf("Expected 'next', got %q (err=%v)", resp, err)
	}
}

func TestResponseTooLarge(t *testing.T) {
	raw := rawServer(t, func(conn net.Conn, h frameHeader, _ []byte) {
		_ = writeFrame(conn, magicResponse, h.shardID, h.correlationID, make([]byte, 2000))
	})

	config := clientConfig(raw)
	config.InitialBufferBytes = 512
	config.MaxFrameBytes = 1024
	client := newClient(t, config)

	_, err := client.Send(1, []byte("x"))
	if !errors.Is(err, transport.ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if client.State() != transport.StateDisconnected {
		t.Errorf("Expected the connection to be dropped, state is %s", client.State())
	}
}

func TestTimeout(t *testing.T) {
	server := startServer(t, serverConfig("127.0.0.1:0"), &echoHandler{})

	config := clientConfig(server.Addr().String())
	config.TimeoutSecond = 1
	client := newClient(t, config)

	_, err := client.Send(1, []byte("slow"))
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if client.State() != transport.StateDisconnected {
		t.Errorf("Expected state disconnected after timeout, got %s", client.State())
	}

	// the next request reconnects
	if resp, err := client.Send(1, []byte("fast")); err != nil || string(resp) != "fast" {
		t.Errorf("Expected reconnect to work, got %q (err=%v)", resp, err)
	}
}

func TestCorrelationMismatch(t *testing.T) {
	raw := rawServer(t, func(conn net.Conn, h frameHeader, data []byte) {
		_ = writeFrame(conn, magicResponse, h.shardID, h.correlationID+1, data)
	})
	client := newClient(t, clientConfig(raw))

	_, err := client.Send(1, []byte("x"))
	if !errors.Is(err, transport.ErrProtocol) {
		t.Errorf("Expected ErrProtocol, got %v", err)
	}
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	raw := rawServer(t, func(conn net.Conn, h frameHeader, data []byte) {
		mu.Lock()
		if seen[h.correlationID] {
			t.Errorf("Correlation id %d was used twice", h.correlationID)
		}
		seen[h.correlationID] = true
		mu.Unlock()
		_ = writeFrame(conn, magicResponse, h.shardID, h.correlationID, data)
	})
	client := newClient(t, clientConfig(raw))

	for i := 0; i < 50; i++ {
		if _, err := client.Send(uint64(i%3), []byte("x")); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
}

func TestConcurrentSend(t *testing.T) {
	server := startServer(t, serverConfig("127.0.0.1:0"), &echoHandler{})
	client := newClient(t, clientConfig(server.Addr().String()))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				payload := []byte(fmt.Sprintf("%d-%d", g, i))
				resp, err := client.Send(1, payload)
				if err != nil {
					t.Errorf("Send failed: %v", err)
					return
				}
				if !bytes.Equal(resp, payload) {
					t.Errorf("Interleaved response: sent %q, got %q", payload, resp)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestStream(t *testing.T) {
	server := startServer(t, serverConfig("127.0.0.1:0"), &echoHandler{})
	client := newClient(t, clientConfig(server.Addr().String()))

	var responses []string
	err := client.Stream(1, func(send transport.SendFunc) error {
		for i := 0; i < 5; i++ {
			resp, err := send([]byte(fmt.Sprintf("chunk-%d", i)))
			if err != nil {
				return err
			}
			responses = append(responses, string(resp))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(responses) != 5 || responses[4] != "chunk-4" {
		t.Errorf("Unexpected responses %v", responses)
	}
}

func TestStreamAbortsOnLinkFailure(t *testing.T) {
	// answers the first request of a connection and drops the connection afterwards
	raw := rawServer(t, func(conn net.Conn, h frameHeader, data []byte) {
		if h.correlationID == 1 {
			_ = writeFrame(conn, magicResponse, h.shardID, h.correlationID, data)
			return
		}
		_ = conn.Close()
	})
	client := newClient(t, clientConfig(raw))

	calls := 0
	err := client.Stream(1, func(send transport.SendFunc) error {
		for i := 0; i < 3; i++ {
			if _, err := send([]byte("chunk")); err != nil {
				return err
			}
			calls++
		}
		return nil
	})
	if !errors.Is(err, transport.ErrTransfer) {
		t.Fatalf("Expected ErrTransfer, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected exactly one successful chunk, got %d", calls)
	}
}

// restartServer closes server and serves a new one on the same address
func restartServer(t *testing.T, server transport.IRPCServerTransport) transport.IRPCServerTransport {
	t.Helper()
	addr := server.Addr().String()
	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return startServer(t, serverConfig(addr), &echoHandler{})
}

func TestReconnectAfterServerRestart(t *testing.T) {
	server := startServer(t, serverConfig(freeAddr(t)), &echoHandler{})
	client := newClient(t, clientConfig(server.Addr().String()))
	retries := client.(*clientTransport).metrics.retries

	if _, err := client.Send(1, []byte("before")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// the old connection is dead, the client only notices on the next request
	server = restartServer(t, server)
	before := retries.Get()
	resp, err := client.Send(1, []byte("after"))
	if err != nil || string(resp) != "after" {
		t.Fatalf("Expected Send to reconnect, got %q (err=%v)", resp, err)
	}
	if retries.Get() <= before {
		t.Errorf("Expected the request to be retried on a new connection")
	}

	// the same holds for the first request of a stream
	restartServer(t, server)
	var responses []string
	err = client.Stream(1, func(send transport.SendFunc) error {
		for i := 0; i < 3; i++ {
			resp, err := send([]byte(fmt.Sprintf("chunk-%d", i)))
			if err != nil {
				return err
			}
			responses = append(responses, string(resp))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected Stream to reconnect, got %v", err)
	}
	if len(responses) != 3 || responses[0] != "chunk-0" || responses[2] != "chunk-2" {
		t.Errorf("Unexpected responses %v", responses)
	}
}

func TestNoRetryWithoutRetryCount(t *testing.T) {
	server := startServer(t, serverConfig(freeAddr(t)), &echoHandler{})
	config := clientConfig(server.Addr().String())
	config.RetryCount = 0
	client := newClient(t, config)

	if _, err := client.Send(1, []byte("before")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	server = restartServer(t, server)
	if _, err := client.Send(1, []byte("lost")); err == nil {
		t.Fatalf("Expected the dead connection to surface without retries")
	}
	if client.State() != transport.StateDisconnected {
		t.Errorf("Expected state disconnected, got %s", client.State())
	}

	// the next request connects again
	if resp, err := client.Send(1, []byte("again")); err != nil || string(resp) != "again" {
		t.Errorf("Expected Send on a new connection, got %q (err=%v)", resp, err)
	}

	restartServer(t, server)
	err := client.Stream(1, func(send transport.SendFunc) error {
		_, err := send([]byte("chunk"))
		return err
	})
	if !errors.Is(err, transport.ErrTransfer) {
		t.Errorf("Expected ErrTransfer from Stream, got %v", err)
	}
}

func TestClose(t *testing.T) {
	handler := &echoHandler{}
	server := startServer(t, serverConfig("127.0.0.1:0"), handler)
	client := NewBaseClientTransport(&testConnector{})
	if err := client.Connect(clientConfig(server.Addr().String())); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if _, err := client.Send(1, []byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Second Close must be a no-op, got %v", err)
	}
	if client.State() != transport.StateClosed {
		t.Errorf("Expected state closed, got %s", client.State())
	}

	if _, err := client.Send(1, []byte("x")); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := client.Stream(1, func(transport.SendFunc) error { return nil }); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Expected ErrClosed from Stream, got %v", err)
	}

	// the server notices the closed connection
	deadline := time.Now().Add(2 * time.Second)
	for handler.closedConns() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if handler.closedConns() != 1 {
		t.Errorf("Expected ConnectionClosed to be called once, got %d", handler.closedConns())
	}
}

func TestServerClose(t *testing.T) {
	server := NewBaseServerTransport(&testServerConnector{})
	server.RegisterHandler(&echoHandler{})
	if err := server.Listen(serverConfig("127.0.0.1:0")); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	client := newClient(t, clientConfig(server.Addr().String()))
	if _, err := client.Send(1, []byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v after Close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}
}

// rawServer accepts connections and calls respond for every request frame
func rawServer(t *testing.T, respond func(conn net.Conn, h frameHeader, data []byte)) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				header := make([]byte, frameHeaderSize)
				buf := NewBuffer(1024, 1024*1024)
				for {
					h, err := readHeader(conn, header)
					if err != nil {
						return
					}
					data, err := readPayload(conn, buf, h.length)
					if err != nil {
						return
					}
					respond(conn, h, data)
				}
			}()
		}
	}()
	return l.Addr().String()
}
