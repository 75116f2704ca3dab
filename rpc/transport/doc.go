// Package transport defines the contract between the RPC layer and the network.
// A transport moves opaque payloads in frames addressed by a map (shard) id, it knows
// nothing about messages or serializers.
//
// Key Components:
//
//   - IRPCClientTransport: one exclusive connection per client, connected lazily and
//     retried with backoff, one request in flight at a time. Stream gives a bulk transfer
//     exclusive use of the connection and aborts it with ErrTransfer if the link fails.
//
//   - IRPCServerTransport: accepts connections and hands every frame to an IServerHandler.
//
//   - Error values (ErrClosed, ErrTimeout, ErrProtocol, ErrPayloadTooLarge, ErrTransfer,
//     ErrConnect) that let callers tell failures apart with errors.Is.
//
// The implementations live in base (protocol independent), tcp and unix.
package transport
