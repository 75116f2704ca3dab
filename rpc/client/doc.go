// Package client implements the RPC client of smap. NewRPCStore returns a
// store.IStore whose operations are forwarded to one map on a remote server.
//
// The client keeps no local copy of the map. Every call is a request/response
// round trip over the configured transport, so all clients of the same map
// observe each other's writes.
//
// Bulk operations are chunked:
//
//   - PutAll splits the entries into chunks of at most ClientConfig.ChunkBytes
//     payload bytes. The server acknowledges every chunk and applies the whole
//     batch when the last chunk arrives.
//   - Entries, Keys and Values ask the server for a snapshot and fetch it chunk
//     by chunk. The total number of entries announced with the first chunk is
//     checked against what was received.
//
// Errors reported by the server are returned as *common.RemoteError. Link and
// framing problems are returned as the transport errors (transport.ErrTimeout,
// transport.ErrPayloadTooLarge, ...), wrapped in transport.ErrTransfer if they
// interrupted a bulk transfer.
//
// Usage Example:
//
//	config := common.DefaultClientConfig("localhost:8080")
//	s, err := client.NewRPCStore(1, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	s.Put([]byte("key"), []byte("value"))
//	value, found, _ := s.Get([]byte("key"))
//
// A client is safe for concurrent use. Requests are sent one at a time over a
// single connection.
package client
