package testing

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/store"
)

// StoreFactory creates a fresh, empty store for one test. Implementations register
// their own cleanup on t (e.g. stopping a server).
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the conformance suite for store.IStore implementations.
// Remote implementations are expected to be configured to return previous values.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(t))
		})

		t.Run("PutIfAbsent", func(t *testing.T) {
			testPutIfAbsent(t, factory(t))
		})

		t.Run("PutAll", func(t *testing.T) {
			testPutAll(t, factory(t))
		})

		t.Run("Snapshots", func(t *testing.T) {
			testSnapshots(t, factory(t))
		})

		t.Run("Contains", func(t *testing.T) {
			testContains(t, factory(t))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t))
		})

		t.Run("LargeValue", func(t *testing.T) {
			testLargeValue(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func mustSize(t *testing.T, s store.IStore, expected int) {
	t.Helper()
	size, err := s.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != expected {
		t.Errorf("Expected size %d, got %d", expected, size)
	}
}

// payload returns n entries of the form i -> "some value=i"
func payload(n int) []db.Entry {
	entries := make([]db.Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = db.Entry{
			Key:   []byte(fmt.Sprintf("%d", i)),
			Value: []byte(fmt.Sprintf("some value=%d", i)),
		}
	}
	return entries
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s store.IStore) {
	defer s.Close()

	if _, ok, err := s.Get([]byte("1")); err != nil || ok {
		t.Fatalf("Expected absent key, got ok=%v err=%v", ok, err)
	}

	prev, replaced, err := s.Put([]byte("1"), []byte("some value"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if replaced || prev != nil {
		t.Errorf("Expected first Put to replace nothing, got %q", prev)
	}

	value, ok, err := s.Get([]byte("1"))
	if err != nil || !ok || string(value) != "some value" {
		t.Errorf("Expected 'some value', got %q (ok=%v, err=%v)", value, ok, err)
	}
	mustSize(t, s, 1)

	prev, replaced, err = s.Put([]byte("1"), []byte("other value"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !replaced || string(prev) != "some value" {
		t.Errorf("Expected Put to return 'some value', got %q (replaced=%v)", prev, replaced)
	}
	mustSize(t, s, 1)

	// empty values are not absent values
	if _, _, err := s.Put([]byte("empty"), []byte{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value, ok, err = s.Get([]byte("empty"))
	if err != nil || !ok || len(value) != 0 {
		t.Errorf("Expected empty value, got %q (ok=%v, err=%v)", value, ok, err)
	}
}

func testRemove(t *testing.T, s store.IStore) {
	defer s.Close()

	if _, _, err := s.Put([]byte("1"), []byte("some value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	mustSize(t, s, 1)

	prev, removed, err := s.Remove([]byte("1"))
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed || string(prev) != "some value" {
		t.Errorf("Expected Remove to return 'some value', got %q (removed=%v)", prev, removed)
	}

	if _, ok, _ := s.Get([]byte("1")); ok {
		t.Errorf("Expected key to be absent after Remove")
	}
	mustSize(t, s, 0)

	// removing an absent key is not an error and does not change the size
	prev, removed, err = s.Remove([]byte("1"))
	if err != nil || removed || prev != nil {
		t.Errorf("Expected no-op Remove, got prev=%q removed=%v err=%v", prev, removed, err)
	}
	mustSize(t, s, 0)
}

func testPutIfAbsent(t *testing.T, s store.IStore) {
	defer s.Close()

	existing, loaded, err := s.PutIfAbsent([]byte("k"), []byte("first"))
	if err != nil || loaded || existing != nil {
		t.Fatalf("Expected PutIfAbsent to store, got existing=%q loaded=%v err=%v", existing, loaded, err)
	}

	existing, loaded, err = s.PutIfAbsent([]byte("k"), []byte("second"))
	if err != nil || !loaded || string(existing) != "first" {
		t.Errorf("Expected existing 'first', got existing=%q loaded=%v err=%v", existing, loaded, err)
	}

	value, _, _ := s.Get([]byte("k"))
	if string(value) != "first" {
		t.Errorf("PutIfAbsent must not overwrite, got %q", value)
	}
}

func testPutAll(t *testing.T, s store.IStore) {
	defer s.Close()

	// one entry present before the bulk load
	if _, _, err := s.Put([]byte("existing"), []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries := payload(2500)
	if err := s.PutAll(entries); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	mustSize(t, s, 2501)

	value, ok, err := s.Get([]byte("2490"))
	if err != nil || !ok || string(value) != "some value=2490" {
		t.Errorf("Expected 'some value=2490', got %q (ok=%v, err=%v)", value, ok, err)
	}

	for _, e := range entries {
		value, ok, err := s.Get(e.Key)
		if err != nil || !ok || !bytes.Equal(value, e.Value) {
			t.Fatalf("Expected %q for key %s, got %q (ok=%v, err=%v)", e.Value, e.Key, value, ok, err)
		}
	}

	// an empty batch is a no-op
	if err := s.PutAll(nil); err != nil {
		t.Errorf("PutAll(nil) failed: %v", err)
	}
	mustSize(t, s, 2501)
}

func testSnapshots(t *testing.T, s store.IStore) {
	defer s.Close()

	entries := payload(2500)
	if err := s.PutAll(entries); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	snapshot, err := s.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(snapshot) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(snapshot))
	}
	for _, e := range snapshot {
		if string(e.Value) != "some value="+string(e.Key) {
			t.Errorf("Unexpected entry %s=%s", e.Key, e.Value)
		}
	}

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != len(entries) {
		t.Fatalf("Expected %d keys, got %d", len(entries), len(keys))
	}
	unique := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		unique[string(k)] = struct{}{}
	}
	if len(unique) != len(entries) {
		t.Errorf("Expected %d distinct keys, got %d", len(entries), len(unique))
	}

	values, err := s.Values()
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if len(values) != len(entries) {
		t.Fatalf("Expected %d values, got %d", len(entries), len(values))
	}
	got := make([]string, len(values))
	for i, v := range values {
		got[i] = string(v)
	}
	want := make([]string, len(entries))
	for i, e := range entries {
		want[i] = string(e.Value)
	}
	sort.Strings(got)
	sort.Strings(want)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Value multiset mismatch at %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	// snapshots of an empty store are empty, not errors
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	snapshot, err = s.Entries()
	if err != nil || len(snapshot) != 0 {
		t.Errorf("Expected empty snapshot, got %d entries (err=%v)", len(snapshot), err)
	}
}

func testContains(t *testing.T, s store.IStore) {
	defer s.Close()

	if _, _, err := s.Put([]byte("10"), []byte("Hello World")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if ok, err := s.ContainsKey([]byte("10")); err != nil || !ok {
		t.Errorf("Expected ContainsKey(10) to be true, got %v (err=%v)", ok, err)
	}
	if ok, err := s.ContainsKey([]byte("11")); err != nil || ok {
		t.Errorf("Expected ContainsKey(11) to be false, got %v (err=%v)", ok, err)
	}
	if ok, err := s.ContainsValue([]byte("Hello World")); err != nil || !ok {
		t.Errorf("Expected ContainsValue to be true, got %v (err=%v)", ok, err)
	}
	if ok, err := s.ContainsValue([]byte("Goodbye")); err != nil || ok {
		t.Errorf("Expected ContainsValue to be false, got %v (err=%v)", ok, err)
	}
}

func testClear(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.PutAll(payload(100)); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	mustSize(t, s, 100)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	mustSize(t, s, 0)
}

func testLargeValue(t *testing.T, s store.IStore) {
	defer s.Close()

	large := bytes.Repeat([]byte("0123456789"), 100_000) // 1 MB
	if _, _, err := s.Put([]byte("large"), large); err != nil {
		t.Fatalf("Put of large value failed: %v", err)
	}

	value, ok, err := s.Get([]byte("large"))
	if err != nil || !ok || !bytes.Equal(value, large) {
		t.Errorf("Expected large value of %d bytes, got %d bytes (ok=%v, err=%v)", len(large), len(value), ok, err)
	}

	// a bulk load where single entries are larger than a chunk
	entries := []db.Entry{
		{Key: []byte("a"), Value: large},
		{Key: []byte("b"), Value: []byte("small")},
		{Key: []byte("c"), Value: large},
	}
	if err := s.PutAll(entries); err != nil {
		t.Fatalf("PutAll with large values failed: %v", err)
	}
	snapshot, err := s.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(snapshot) != 4 {
		t.Errorf("Expected 4 entries, got %d", len(snapshot))
	}
}
