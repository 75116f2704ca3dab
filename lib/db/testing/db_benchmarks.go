package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
)

// RunMapDBBenchmarks runs all benchmarks for a MapDB implementation
func RunMapDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Remove", func(b *testing.B) {
		benchmarkRemove(b, factory())
	})

	b.Run("Range", func(b *testing.B) {
		benchmarkRange(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, database db.MapDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	value := []byte("test-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Put([]byte(fmt.Sprintf("key-%d", counter%1000)), value)
			counter++
		}
	})
}

func benchmarkPutLargeValue(b *testing.B, database db.MapDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	value := bytes.Repeat([]byte("x"), 100*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Put([]byte(fmt.Sprintf("key-%d", i%100)), value)
	}
}

func benchmarkGet(b *testing.B, database db.MapDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet)

	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
		database.Put(keys[i], []byte("test-value"))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(keys[counter%len(keys)])
			counter++
		}
	})
}

func benchmarkRemove(b *testing.B, database db.MapDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureRemove)

	for i := 0; i < b.N; i++ {
		database.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Remove([]byte(fmt.Sprintf("key-%d", i)))
	}
}

func benchmarkRange(b *testing.B, database db.MapDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureRange)

	for i := 0; i < 10_000; i++ {
		database.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		database.Range(func(_, _ []byte) bool {
			count++
			return true
		})
	}
}

func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 10_000; i++ {
		database.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i)))
	}

	var snapshot bytes.Buffer
	if err := database.Save(&snapshot); err != nil {
		b.Fatalf("save failed: %v", err)
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := database.Save(&buf); err != nil {
				b.Fatalf("save failed: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(snapshot.Bytes())); err != nil {
				b.Fatalf("load failed: %v", err)
			}
		}
	})
}
