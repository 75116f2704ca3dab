package xmap

import (
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
	dbtesting "github.com/ValentinKolb/smap/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunMapDBTests(t, "XMapDB", func() db.MapDB {
		return NewXMapDB(nil)
	})
}

func TestPresized(t *testing.T) {
	dbtesting.RunMapDBTests(t, "XMapDB(presized)", func() db.MapDB {
		return NewXMapDB(&DBOptions{PresizeEntries: 4096})
	})
}

func TestInfo(t *testing.T) {
	database := NewXMapDB(nil)
	defer database.Close()

	database.Put([]byte("abc"), []byte("12345"))
	database.Put([]byte("abc"), []byte("1"))

	info := database.GetInfo()
	if info.DbType != db.ImplXMap {
		t.Errorf("Expected db type %s, got %s", db.ImplXMap, info.DbType)
	}
	if info.Entries != 1 {
		t.Errorf("Expected 1 entry, got %d", info.Entries)
	}
	if info.SizeBytes != 4 {
		t.Errorf("Expected 4 payload bytes, got %d", info.SizeBytes)
	}
	if len(info.SupportedFeatures) != 8 {
		t.Errorf("Expected 8 supported features, got %v", info.SupportedFeatures)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunMapDBBenchmarks(b, "XMapDB", func() db.MapDB {
		return NewXMapDB(nil)
	})
}
