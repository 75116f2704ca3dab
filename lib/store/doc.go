// Package store provides the map-level interface every backend of smap implements.
// It sits on top of the lower-level db.MapDB engines and adds a uniform error
// model, bulk operations and snapshot reads.
//
// Key Components:
//
//   - IStore Interface: The core abstraction for a map of opaque byte keys to
//     opaque byte values. Writes report the value they replaced, bulk loads go
//     through PutAll and reads of the whole map return snapshots (Entries, Keys,
//     Values). The typed facade in lib/smap and the server adapter in rpc/server
//     both program against this interface only.
//
//   - Error System: Failures are reported as *store.Error carrying a RetCode, so
//     callers can tell a closed store from an unsupported operation without
//     parsing messages. A missing key is never an error.
//
//   - DBFactory: A function type that abstracts the creation of the underlying
//     db.MapDB, so each store can be combined with any engine.
//
// Implementations:
//
//	- Local Store (lstore): serves a db.MapDB of the current process directly.
//	  Used by servers for non-replicated maps and by tests as a reference map.
//
//	- Replicated Store (dstore): proposes every write through a Dragonboat RAFT
//	  shard and answers reads from the replicated state machine.
//
//	- Remote Store (rpc/client): forwards every operation over the wire to an
//	  smap server, which in turn serves one of the two stores above.
package store
