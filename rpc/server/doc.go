// Package server implements the RPC server that hosts the maps. Every configured map
// (shard) is a store.IStore, either local (lstore) or replicated with raft (dstore),
// wrapped by an adapter that translates messages into store calls.
//
// Key Components:
//
//   - RPCServer: creates the shards, implements transport.IServerHandler and replaces
//     responses larger than MaxFrameBytes with an overflow response. Optionally exposes
//     Prometheus metrics on MetricsEndpoint.
//
//   - IRPCServerAdapter / NewIStoreServerAdapter: handles all message types. Bulk
//     transfers keep per connection state (a session): PutAll chunks are staged and
//     written with a single store.PutAll when the last chunk arrives, snapshot
//     transfers take the snapshot with the first request and hand it out chunk by chunk.
//     Sessions are dropped when the connection closes.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards:        []common.ServerShard{{ShardID: 1, Type: common.ShardTypeLocal}},
//	  Endpoint:      "localhost:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  panic(err)
//	}
package server
