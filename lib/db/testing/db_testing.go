package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
)

// DBFactory is a function that creates a new instance of a MapDB implementation
type DBFactory func() db.MapDB

// RunMapDBTests runs a comprehensive test suite for a MapDB implementation.
func RunMapDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("PutIfAbsent", func(t *testing.T) {
			testPutIfAbsent(t, factory())
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory())
		})

		t.Run("SizeAndClear", func(t *testing.T) {
			testSizeAndClear(t, factory())
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentUsage", func(t *testing.T) {
			testConcurrentUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.MapDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.MapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	prev, replaced := database.Put(testKey, testValue1)
	if replaced || prev != nil {
		t.Errorf("Expected first Put to replace nothing, got %q", prev)
	}

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	prev, replaced = database.Put(testKey, testValue2)
	if !replaced || !bytes.Equal(prev, testValue1) {
		t.Errorf("Expected Put to replace %s, got %s (replaced=%v)", testValue1, prev, replaced)
	}

	result, _ = database.Get(testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get([]byte("nonexistent-key")); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// the engine must not keep a reference to the callers buffer
	input := []byte("mutable")
	database.Put([]byte("mutable-key"), input)
	input[0] = 'X'
	stored, _ := database.Get([]byte("mutable-key"))
	if !bytes.Equal(stored, []byte("mutable")) {
		t.Errorf("Put should copy the value, got %s", stored)
	}
}

func testPutIfAbsent(t *testing.T, database db.MapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePutIfAbsent|db.FeatureGet)

	key := []byte("absent-key")

	existing, loaded := database.PutIfAbsent(key, []byte("first"))
	if loaded || existing != nil {
		t.Errorf("Expected PutIfAbsent on a new key to store, got loaded=%v existing=%s", loaded, existing)
	}

	existing, loaded = database.PutIfAbsent(key, []byte("second"))
	if !loaded || !bytes.Equal(existing, []byte("first")) {
		t.Errorf("Expected PutIfAbsent to return the existing value 'first', got loaded=%v existing=%s", loaded, existing)
	}

	value, _ := database.Get(key)
	if !bytes.Equal(value, []byte("first")) {
		t.Errorf("PutIfAbsent must not overwrite, got %s", value)
	}
}

func testRemove(t *testing.T, database db.MapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureRemove|db.FeatureGet)

	key := []byte("remove-key")
	database.Put(key, []byte("value"))

	prev, removed := database.Remove(key)
	if !removed || !bytes.Equal(prev, []byte("value")) {
		t.Errorf("Expected Remove to return 'value', got %s (removed=%v)", prev, removed)
	}

	if _, exists := database.Get(key); exists {
		t.Errorf("Expected key %s to be gone after Remove", key)
	}

	prev, removed = database.Remove(key)
	if removed || prev != nil {
		t.Errorf("Expected second Remove to be a no-op, got %s (removed=%v)", prev, removed)
	}
}

func testSizeAndClear(t *testing.T, database db.MapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureRemove|db.FeatureClear)

	if database.Size() != 0 {
		t.Fatalf("Expected empty database, got size %d", database.Size())
	}

	for i := 0; i < 100; i++ {
		database.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
	}
	// overwriting must not change the size
	database.Put([]byte("key-0"), []byte("w"))
	if database.Size() != 100 {
		t.Errorf("Expected size 100, got %d", database.Size())
	}

	database.Remove([]byte("key-1"))
	database.Remove([]byte("not-there"))
	if database.Size() != 99 {
		t.Errorf("Expected size 99 after one remove, got %d", database.Size())
	}

	if info := database.GetInfo(); info.Entries != 99 {
		t.Errorf("Expected info to report 99 entries, got %d", info.Entries)
	}

	database.Clear()
	if database.Size() != 0 {
		t.Errorf("Expected size 0 after Clear, got %d", database.Size())
	}
}

func testRange(t *testing.T, database db.MapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureRange)

	expected := make(map[string]string)
	for i := 0; i < 500; i++ {
		k, v := fmt.Sprintf("range-key-%d", i), fmt.Sprintf("range-value-%d", i)
		expected[k] = v
		database.Put([]byte(k), []byte(v))
	}

	seen := make(map[string]string)
	database.Range(func(key, value []byte) bool {
		seen[string(key)] = string(value)
		return true
	})

	if len(seen) != len(expected) {
		t.Fatalf("Expected Range to visit %d entries, visited %d", len(expected), len(seen))
	}
	for k, v := range expected {
		if seen[k] != v {
			t.Errorf("Range value mismatch for %s: expected %s, got %s", k, v, seen[k])
		}
	}

	// early termination
	visited := 0
	database.Range(func(_, _ []byte) bool {
		visited++
		return visited < 10
	})
	if visited != 10 {
		t.Errorf("Expected Range to stop after 10 entries, visited %d", visited)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.Put([]byte(fmt.Sprintf("save-load-test-key-%d", i)), []byte(fmt.Sprintf("save-load-test-value-%d", i)))
	}
	// empty values must survive a round trip
	database.Put([]byte("empty"), []byte{})

	// stale content of the target is replaced
	database2.Put([]byte("stale"), []byte("x"))

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}

	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	if database2.Size() != numEntries+1 {
		t.Errorf("Expected %d entries after Load, got %d", numEntries+1, database2.Size())
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		expectedValue := []byte(fmt.Sprintf("save-load-test-value-%d", i))

		actualValue, exists := database2.Get([]byte(key))
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	if v, ok := database2.Get([]byte("empty")); !ok || len(v) != 0 {
		t.Errorf("Expected empty value to survive Save/Load, got %v (found=%v)", v, ok)
	}
	if _, ok := database2.Get([]byte("stale")); ok {
		t.Errorf("Load should replace existing content")
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected Load of garbage to fail")
	}
}

func testEdgeCases(t *testing.T, database db.MapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	// empty key
	database.Put([]byte{}, []byte("empty-key-value"))
	if v, ok := database.Get([]byte{}); !ok || !bytes.Equal(v, []byte("empty-key-value")) {
		t.Errorf("Expected empty key to be usable, got %s (found=%v)", v, ok)
	}

	// empty value is distinguishable from absent
	database.Put([]byte("empty-value"), []byte{})
	if v, ok := database.Get([]byte("empty-value")); !ok || v == nil || len(v) != 0 {
		t.Errorf("Expected empty non-nil value, got %v (found=%v)", v, ok)
	}

	// binary keys
	binaryKey := []byte{0, 1, 2, 255, 0}
	database.Put(binaryKey, []byte("binary"))
	if v, ok := database.Get(binaryKey); !ok || !bytes.Equal(v, []byte("binary")) {
		t.Errorf("Expected binary key to be usable, got %s (found=%v)", v, ok)
	}

	// large value
	large := bytes.Repeat([]byte("x"), 1<<20)
	database.Put([]byte("large"), large)
	if v, ok := database.Get([]byte("large")); !ok || len(v) != len(large) {
		t.Errorf("Expected large value of %d bytes, got %d", len(large), len(v))
	}
}

func testConcurrentUsage(t *testing.T, database db.MapDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureRemove)

	numWorkers := 8
	opsPerWorker := 1000

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := []byte(fmt.Sprintf("worker-%d-key-%d", workerId, i))
				database.Put(key, []byte(fmt.Sprintf("%d", i)))
				if i%10 == 9 {
					database.Remove(key)
				}
				// hot key shared by all workers
				database.Put([]byte("hot-key"), []byte(fmt.Sprintf("%d", workerId)))
			}
		}(w)
	}

	wg.Wait()

	expected := numWorkers*(opsPerWorker-opsPerWorker/10) + 1
	if size := database.Size(); size != expected {
		t.Errorf("Expected %d entries after concurrent usage, got %d", expected, size)
	}
}
