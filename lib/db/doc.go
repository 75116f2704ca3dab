// Package db provides a standardized interface for the storage engine a server
// hosts for each of its maps. It abstracts the engine behind the MapDB interface
// so the store layer (local or replicated) can be combined with any backend.
//
// The package focuses on:
//   - A map-like interface whose writes report the value they replaced
//   - Feature discovery through capability flags
//   - Standardized persistence operations (used for raft snapshots)
//
// Key Components:
//
//   - MapDB Interface: The core interface that all engines must satisfy.
//     It provides Get, Put, PutIfAbsent, Remove, Clear, Size and Range, plus
//     Save and Load for snapshotting.
//
//   - Entry: A key-value pair of opaque bytes. It is shared by the store layer,
//     the RPC message format and the client facade.
//
//   - Feature Flags: The Feature type defines capability flags that engines
//     advertise through SupportsFeature.
//
// Implementations:
//
//   - xmap (lib/db/engines/xmap): an in-memory engine backed by xsync.MapOf.
//
// A reusable test suite for engines lives in lib/db/testing.
package db
