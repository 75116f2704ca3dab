// Package lstore implements a local, in-memory, single-node store based on the
// store.IStore interface. It is a thin wrapper around any db.MapDB engine.
// Data is stored entirely in memory and is not persisted between process restarts.
//
// Key Features:
//   - Direct integration with db.MapDB implementations
//   - Feature detection to handle unsupported operations gracefully
//   - Snapshot reads (Entries, Keys, Values) return copies owned by the caller
//   - Thread-safe operations for concurrent access
//
// PutAll applies entries one by one. Other clients may observe a partially
// applied batch; atomicity towards concurrent readers is not provided.
//
// Usage Example:
//
//	s := lstore.NewLocalStore(func() db.MapDB { return xmap.NewXMapDB(nil) })
//	s.Put([]byte("key"), []byte("value"))
//	value, found, _ := s.Get([]byte("key"))
package lstore
