// Package testing provides a conformance suite for store.IStore implementations.
//
// The suite is shared by the local store, the replicated store and the remote
// client, so all three are held to the same map semantics: previous values on
// writes, PutAll of thousands of entries, snapshot reads and Clear.
//
// Usage:
//
//	func TestStore(t *testing.T) {
//	    storetesting.RunStoreTests(t, "MyStore", func(t *testing.T) store.IStore {
//	        return newMyStore(t)
//	    })
//	}
package testing
