// Package dstore implements a replicated store.IStore on top of the Dragonboat
// RAFT consensus library. A server uses it for maps that must survive the loss of
// a node: every replica holds the full map and all writes are linearizable.
//
// Architecture:
//
//   - Store Client (store.go): implements store.IStore. Writes are serialized into
//     internal.Command values and proposed with SyncPropose, reads are sent to the
//     local replica as internal.Query values with SyncRead.
//
//   - State Machine (statemachine.go): a Dragonboat IConcurrentStateMachine holding
//     a db.MapDB. Update applies committed commands, Lookup answers queries.
//
// Write Results:
//
//	The state machine reports the outcome of a command in its sm.Result: the value
//	carries a store.RetCode and the data carries either the error message, or a flag
//	byte followed by the previous value of the key. This lets Put, PutIfAbsent and
//	Remove report what they replaced without a second read.
//
// Bulk Writes:
//
//	PutAll is proposed as a single command, so a batch is applied atomically on every
//	replica. Snapshot reads (Entries, Keys, Values) run against the local replica after
//	SyncRead has made sure it caught up with the leader.
//
// Snapshotting and Recovery:
//
//	The state machine takes fuzzy snapshots through db.MapDB.Save and restores them
//	through db.MapDB.Load, so the engine must support both features.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.MapDB { return xmap.NewXMapDB(nil) }
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// Closing the store only rejects further calls, the shard keeps running until the
// NodeHost is closed by its owner.
package dstore
