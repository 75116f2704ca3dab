package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/db/engines/xmap"
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/lib/store/dstore"
	"github.com/ValentinKolb/smap/lib/store/lstore"
	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/serializer"
	"github.com/ValentinKolb/smap/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard (a map) in the RPC server
// It contains the store it encapsulates and the adapter that handles requests for the store
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if config.InitialBufferBytes <= 0 {
		config.InitialBufferBytes = common.DefaultInitialBufferBytes
	}
	if config.MaxFrameBytes < config.InitialBufferBytes {
		config.MaxFrameBytes = max(common.DefaultMaxFrameBytes, config.InitialBufferBytes)
	}

	// Create the RPC server
	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// RPCServer serves the configured maps over a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	nodeHost      *dragonboat.NodeHost
	metricsServer *http.Server

	listenOnce sync.Once
	listenErr  error
	closeOnce  sync.Once
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Listen creates all shards and binds the endpoint. Clients may connect after Listen
// returned, their requests are answered once Serve runs.
func (s *RPCServer) Listen() error {
	s.listenOnce.Do(func() {
		if s.listenErr = s.init(); s.listenErr != nil {
			return
		}
		s.transport.RegisterHandler(s)
		s.listenErr = s.transport.Listen(s.config)
	})
	return s.listenErr
}

// Serve starts the RPC server and blocks until Close is called
// This function will also initialize the server plus the shards if Listen was not called before
func (s *RPCServer) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.transport.Serve()
}

// Addr returns the address the server is bound to (nil before Listen)
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// Store returns the store serving the map with the given id. Maps exist after Listen.
func (s *RPCServer) Store(shardID uint64) (store.IStore, bool) {
	shard, ok := s.shards.Load(shardID)
	return shard.Store, ok
}

// Close stops the transport and closes all stores
func (s *RPCServer) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if err := s.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}

		s.shards.Range(func(shardID uint64, shard serverShard) bool {
			if err := shard.Store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close map %d: %w", shardID, err))
			}
			return true
		})

		if s.nodeHost != nil {
			s.nodeHost.Close()
		}

		if s.metricsServer != nil {
			if err := s.metricsServer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close metrics endpoint: %w", err))
			}
		}

		Logger.Infof("RPC server stopped")
	})
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerHandler)
// --------------------------------------------------------------------------

func (s *RPCServer) HandleRequest(connID, shardID uint64, req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	// Get appropriate shard
	shard, ok := s.shards.Load(shardID)

	if !ok {
		// Case shard does not exist -> error
		resp = common.NewErrorResponse(fmt.Sprintf("map %d not found", shardID))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		// Let the adapter handle the request
		resp = shard.Adapter.Handle(connID, &msg, shard.Store)
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`smap_server_requests_total{op=%q}`, msg.MsgType)).Inc()
	if resp.Status == common.StatusError {
		metrics.GetOrCreateCounter(fmt.Sprintf(`smap_server_request_errors_total{op=%q}`, msg.MsgType)).Inc()
		Logger.Debugf("%s request on map %d failed: %s", msg.MsgType, shardID, resp.Err)
	}

	data := s.encode(resp)
	if len(data) > s.config.MaxFrameBytes {
		if ok {
			shard.Adapter.DropSession(connID)
		}
		Logger.Warningf("%s response of %d bytes exceeds the frame limit of %d bytes", msg.MsgType, len(data), s.config.MaxFrameBytes)
		data = s.encode(common.NewOverflowResponse(msg.MsgType,
			fmt.Sprintf("response of %d bytes exceeds the frame limit of %d bytes", len(data), s.config.MaxFrameBytes)))
	}
	return data
}

func (s *RPCServer) HandleOverflow(connID, shardID uint64, size int) []byte {
	// a dropped chunk invalidates the running transfer
	if shard, ok := s.shards.Load(shardID); ok {
		shard.Adapter.DropSession(connID)
	}
	return s.encode(common.NewOverflowResponse(common.MsgTUnknown,
		fmt.Sprintf("request of %d bytes exceeds the frame limit of %d bytes", size, s.config.MaxFrameBytes)))
}

func (s *RPCServer) ConnectionClosed(connID uint64) {
	s.shards.Range(func(_ uint64, shard serverShard) bool {
		shard.Adapter.DropSession(connID)
		return true
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) encode(resp *common.Message) []byte {
	data, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("Failed to serialize %s response: %v", resp.MsgType, err)
		data, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return data
}

func (s *RPCServer) init() error {

	// Init logger
	if s.config.LogLevel != "" {
		if err := common.InitLoggers(s.config.LogLevel); err != nil {
			return err
		}
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Function to create a new database instance
	dbFactory := func() db.MapDB { return xmap.NewXMapDB(nil) }

	// Create the Dragonboat NodeHost
	if s.config.HasReplicatedShard() {
		// Only create the NodeHost if we have replicated shards
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	// Configure the timeout for the distributed store
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE SHARDS

	/*
		Note: A single RPC Server can serve any number of local and replicated maps.
		Every map is addressed by its shard id in the frames.
	*/

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("map %d is configured twice", shardConfig.ShardID)
		}

		switch shardConfig.Type {
		case common.ShardTypeLocal:
			s.shards.Store(shardConfig.ShardID, serverShard{
				Store:   lstore.NewLocalStore(dbFactory),
				Adapter: NewIStoreServerAdapter(),
			})
			Logger.Infof("created local store for map %d", shardConfig.ShardID)

		case common.ShardTypeReplicated:
			// Start Raft for the shard
			if err := s.nodeHost.StartConcurrentReplica(
				s.config.Replication.ClusterMembers,
				false,
				dstore.CreateStateMachineFactory(dbFactory),
				s.config.ToDragonboatConfig(shardConfig.ShardID),
			); err != nil {
				return fmt.Errorf("failed to start map %d: %w", shardConfig.ShardID, err)
			}

			s.shards.Store(shardConfig.ShardID, serverShard{
				Store:   dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout),
				Adapter: NewIStoreServerAdapter(),
			})
			Logger.Infof("created replicated store for map %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	if s.config.MetricsEndpoint != "" {
		s.startMetricsEndpoint()
	}

	Logger.Infof("smap setup completed successfully")
	return nil
}

// startMetricsEndpoint exposes all metrics in the Prometheus text format on /metrics
func (s *RPCServer) startMetricsEndpoint() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	s.metricsServer = &http.Server{
		Addr:              s.config.MetricsEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}
