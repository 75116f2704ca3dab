// Package xmap implements an in-memory storage engine satisfying db.MapDB.
//
// Entries live in a single xsync.MapOf keyed by the string form of the key.
// xsync shards its buckets internally, so reads never block and writes only
// contend on the bucket they touch. Values are copied on the way in and on
// the way out of Get, callers never share memory with the engine.
//
// Snapshots (Save/Load) use a small length-prefixed binary format and are fuzzy:
// writes racing a Save may or may not be part of it. This is sufficient for raft
// snapshots because the log is replayed on top of the snapshot.
package xmap
