package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.Replication.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.Replication.SnapshotEntries,
		CompactionOverhead: c.Replication.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.Replication.DataDir,
		NodeHostDir:    c.Replication.DataDir,
		RTTMillisecond: c.Replication.RTTMillisecond,
		RaftAddress:    c.Replication.ClusterMembers[c.Replication.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Shared transport configuration
// --------------------------------------------------------------------------

// Default buffer settings for client and server
const (
	DefaultInitialBufferBytes = 64 * 1024        // 64 KB
	DefaultMaxFrameBytes      = 64 * 1024 * 1024 // 64 MB
)

// TransportConfig holds the socket options applied to every connection.
// Zero values keep the operating system defaults.
type TransportConfig struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative keeps the OS default
	WriteBufferSize int // SO_SNDBUF
	ReadBufferSize  int // SO_RCVBUF
}

// DefaultTransportConfig returns the socket options used by the CLI
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		TCPNoDelay:      true,
		TCPKeepAliveSec: 30,
		TCPLingerSec:    -1,
	}
}

func (c *TransportConfig) addFields(addField func(name, value string)) {
	addField("TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPLingerSec))
	addField("Socket Write Buffer", formatBytes(c.WriteBufferSize))
	addField("Socket Read Buffer", formatBytes(c.ReadBufferSize))
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShardType is the kind of store backing a map served by the server
type ServerShardType string

const (
	ShardTypeLocal      ServerShardType = "local"      // lstore, only on this node
	ShardTypeReplicated ServerShardType = "replicated" // dstore, replicated with raft
)

// ServerShard is a single map served by the server, addressed by its ID in every frame
type ServerShard struct {
	// ShardID is the ID of the map
	ShardID uint64
	// Type of the store serving the map
	Type ServerShardType
}

// ReplicationConfig is handed to the replication engine as is. Clients never see it,
// they only dial the server endpoint.
type ReplicationConfig struct {
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
}

// ServerConfig holds all configuration parameters of an smap server.
type ServerConfig struct {
	// the maps served by this server
	Shards []ServerShard

	// Dragonboat parameters, only used if a replicated shard exists
	Replication ReplicationConfig

	// Read/write timeout per frame and raft timeout
	TimeoutSecond int64

	// API settings
	Endpoint           string
	InitialBufferBytes int
	MaxFrameBytes      int
	Transport          TransportConfig

	// Prometheus metrics endpoint (disabled if empty)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// HasReplicatedShard checks if the configuration contains any replicated shards
func (c *ServerConfig) HasReplicatedShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeReplicated {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Initial Buffer", formatBytes(c.InitialBufferBytes))
	addField("Max Frame", formatBytes(c.MaxFrameBytes))
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	addSection("Transport")
	c.Transport.addFields(addField)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Maps")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	if c.HasReplicatedShard() {
		r := c.Replication

		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", r.ClusterMembers[r.ReplicaID])
		addField("Node ID", strconv.FormatUint(r.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", r.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", r.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", r.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", r.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", r.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", r.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range r.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, r.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures a single client connection to one server endpoint
type ClientConfig struct {
	// Endpoint is the address of the server (host:port or socket path)
	Endpoint string
	// TimeoutSecond bounds every blocking read and write (0 disables the timeout)
	TimeoutSecond int
	// ConnectTimeoutSecond is the window in which connecting is retried with backoff.
	// It allows creating a client before its server is listening.
	ConnectTimeoutSecond int
	// RetryCount is the number of reconnect attempts for a request whose write failed
	RetryCount int

	// InitialBufferBytes is the starting capacity of the read and write buffer
	InitialBufferBytes int
	// MaxFrameBytes is the limit the buffers may grow to
	MaxFrameBytes int
	// ChunkBytes is the payload budget of a single bulk transfer chunk (at most MaxFrameBytes/2)
	ChunkBytes int

	// Response mode: ask the server for the previous value of Put and Remove
	PutReturnsPrevious    bool
	RemoveReturnsPrevious bool

	Transport TransportConfig
}

// DefaultClientConfig returns the client defaults for the given endpoint
func DefaultClientConfig(endpoint string) ClientConfig {
	return ClientConfig{
		Endpoint:              endpoint,
		TimeoutSecond:         5,
		ConnectTimeoutSecond:  10,
		RetryCount:            3,
		InitialBufferBytes:    DefaultInitialBufferBytes,
		MaxFrameBytes:         DefaultMaxFrameBytes,
		ChunkBytes:            DefaultInitialBufferBytes / 2,
		PutReturnsPrevious:    true,
		RemoveReturnsPrevious: true,
		Transport:             DefaultTransportConfig(),
	}
}

// Validate checks the buffer settings for consistency
func (c *ClientConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if c.InitialBufferBytes <= 0 {
		return fmt.Errorf("initial buffer size must be positive, got %d", c.InitialBufferBytes)
	}
	if c.MaxFrameBytes < c.InitialBufferBytes {
		return fmt.Errorf("max frame size %d is smaller than the initial buffer size %d", c.MaxFrameBytes, c.InitialBufferBytes)
	}
	// a chunk needs room for its message header and the encoding overhead of the serializer
	if c.ChunkBytes <= 0 || c.ChunkBytes > c.MaxFrameBytes/2 {
		return fmt.Errorf("chunk size must be in (0, %d] (half the max frame size), got %d", c.MaxFrameBytes/2, c.ChunkBytes)
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Connect Timeout", fmt.Sprintf("%d sec", c.ConnectTimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	addSection("Buffers")
	addField("Initial Buffer", formatBytes(c.InitialBufferBytes))
	addField("Max Frame", formatBytes(c.MaxFrameBytes))
	addField("Chunk Size", formatBytes(c.ChunkBytes))

	addSection("Response Mode")
	addField("Put Returns Previous", strconv.FormatBool(c.PutReturnsPrevious))
	addField("Remove Returns Prev.", strconv.FormatBool(c.RemoveReturnsPrevious))

	addSection("Transport")
	c.Transport.addFields(addField)

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func formatBytes(n int) string {
	switch {
	case n <= 0:
		return "default"
	case n%(1024*1024) == 0:
		return fmt.Sprintf("%d MB", n/(1024*1024))
	case n%1024 == 0:
		return fmt.Sprintf("%d KB", n/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
