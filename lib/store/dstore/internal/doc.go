// Package internal provides the communication structures between the dstore
// client side and the replicated state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command: a write operation (Put, PutIfAbsent, Remove, PutAll, Clear). Commands
//     are serialized, proposed to the RAFT shard and applied on every replica.
//   - Query: a read operation (Get, Size, snapshots, ...). Queries are executed on the
//     local replica and are never serialized.
//
// Command Format:
//
//	- 1 byte:  Command type
//	- 4 bytes: Key length (uint32, big endian), followed by the key
//	- 4 bytes: Value length (uint32, big endian), followed by the value
//	- 4 bytes: Entry count (uint32, big endian)
//	- per entry: 4 bytes key length, key, 4 bytes value length, value
//
// A PutAll is a single command, so a batch becomes visible on all replicas at once.
package internal
