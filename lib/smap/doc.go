// Package smap provides Map, a typed map whose entries live on an smap server.
//
// A Map created with Dial holds no data. Every call is a round trip to the server,
// so any number of clients (in any number of processes) see the same entries.
// Keys and values are converted to bytes by a Codec (String, Int, Bytes, JSON, Gob).
//
// Semantics:
//
//   - Missing keys are not errors. Get, Remove and MapForKey report them with found == false.
//   - PutAll is transferred in chunks and applied by the server when the last chunk
//     arrived. If the transfer fails nothing was applied.
//   - EntrySet, KeySet and Values return snapshots. A view fetches the snapshot the
//     first time it is used and never again, a new call on the Map fetches a new one.
//   - MapForKey runs the transform on the caller's side, it never crosses the network.
//   - Equals compares the entries of a snapshot with a local map.
//
// Failures wrap one of ErrClosed, ErrConnect, ErrTimeout, ErrProtocol, ErrPayloadTooLarge
// and ErrTransfer, or are a *common.RemoteError reported by the server.
//
// New wraps any store.IStore, e.g. the store of a server or a lstore.NewLocalStore,
// which is useful for tests and for comparing a remote map with local contents.
package smap
