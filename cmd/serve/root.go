package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/smap/cmd/util"
	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the smap server",
		Long: `Start the smap server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SMAP_<flag> (e.g. SMAP_TIMEOUT=15).

Every map served by the server has a numeric ID. Clients address a map by its ID, any number of clients may work on the same map.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := common.DefaultClientConfig("")
	flags := ServeCmd.PersistentFlags()

	key := "shards"
	flags.String(key, "1=local", cmdUtil.WrapString("Comma-separated list of maps to serve. Format: ID=TYPE where TYPE is one of: local, replicated"))

	key = "rtt-millisecond"
	flags.Int(key, 100, cmdUtil.WrapString("(replicated maps) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two servers. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value*1) are derived from this value"))

	key = "snapshot-entries"
	flags.Int(key, 10_000, cmdUtil.WrapString("(replicated maps) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	flags.Int(key, 5_000, cmdUtil.WrapString("(replicated maps) CompactionOverhead defines the number of log entries kept after a snapshot was taken. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	flags.String(key, "data", cmdUtil.WrapString("(replicated maps) DataDir is the directory used for the raft log and the snapshots"))

	key = "replica-id"
	flags.String(key, "", cmdUtil.WrapString("(replicated maps) ReplicaID is the unique name of this server in the cluster (e.g. 'node-1')"))

	key = "cluster-members"
	flags.String(key, "", cmdUtil.WrapString("(replicated maps) ClusterMembers is a comma-separated list of raft addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	flags.Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for reading a frame, writing a response and for raft proposals"))

	key = "endpoint"
	flags.String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/smap.sock, ...)"))

	key = "initial-buffer"
	flags.Int(key, defaults.InitialBufferBytes/1024, cmdUtil.WrapString("Initial size of the buffers of every connection (in KB)"))

	key = "max-frame"
	flags.Int(key, defaults.MaxFrameBytes/1024, cmdUtil.WrapString("Largest frame the server accepts or sends (in KB). Larger requests are answered with an overflow response"))

	key = "metrics-endpoint"
	flags.String(key, "", cmdUtil.WrapString("Address of the Prometheus metrics endpoint (e.g. localhost:9090), disabled if empty"))

	key = "log-level"
	flags.String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	cmdUtil.SetupSocketFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.InitialBufferBytes = viper.GetInt("initial-buffer") * 1024
	serveCmdConfig.MaxFrameBytes = viper.GetInt("max-frame") * 1024
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = cmdUtil.GetSocketConfig()

	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	replication := &serveCmdConfig.Replication
	replication.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	replication.SnapshotEntries = viper.GetUint64("snapshot-entries")
	replication.CompactionOverhead = viper.GetUint64("compaction-overhead")
	replication.DataDir = viper.GetString("data-dir")

	// the replication settings are only required if a replicated map is served
	if !serveCmdConfig.HasReplicatedShard() {
		return nil
	}

	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required for replicated maps")
	}
	replication.ReplicaID = cmdUtil.HashString(id)

	if replication.ClusterMembers, err = ParseClusterMembers(viper.GetString("cluster-members")); err != nil {
		return err
	}
	if _, ok := replication.ClusterMembers[replication.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica %s in cluster members", id)
	}
	return nil
}

// run starts the server and blocks until it receives SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	srv := server.NewRPCServer(*serveCmdConfig, t, s)
	if err := srv.Listen(); err != nil {
		_ = srv.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}
	if closeErr := srv.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ParseShards parses a list of maps in the format "ID=TYPE,ID=TYPE"
func ParseShards(s string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	for _, shardConfig := range strings.Split(s, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid map format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid map ID %s: %v", parts[0], err)
		}

		shardType := common.ServerShardType(strings.TrimSpace(parts[1]))
		switch shardType {
		case common.ShardTypeLocal, common.ShardTypeReplicated:
		default:
			return nil, fmt.Errorf("invalid map type: %s (expected one of: local, replicated)", shardType)
		}

		shards = append(shards, common.ServerShard{
			ShardID: shardID,
			Type:    shardType,
		})
	}
	return shards, nil
}

// ParseClusterMembers parses "name=address,..." into raft addresses by replica ID
func ParseClusterMembers(s string) (map[uint64]string, error) {
	if s == "" {
		return nil, fmt.Errorf("cluster-members is required for replicated maps")
	}
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected NAME=address)", member)
		}
		members[cmdUtil.HashString(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return members, nil
}
