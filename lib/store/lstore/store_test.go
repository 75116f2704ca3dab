package lstore

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/db/engines/xmap"
	"github.com/ValentinKolb/smap/lib/store"
	storetesting "github.com/ValentinKolb/smap/lib/store/testing"
)

func newTestStore() store.IStore {
	return NewLocalStore(func() db.MapDB { return xmap.NewXMapDB(nil) })
}

func TestLocalStore(t *testing.T) {
	storetesting.RunStoreTests(t, "LocalStore", func(t *testing.T) store.IStore {
		return newTestStore()
	})
}

func TestClosedStore(t *testing.T) {
	s := newTestStore()

	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error on Close: %v", err)
	}
	// Close is idempotent
	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error on second Close: %v", err)
	}

	_, _, err := s.Get([]byte("key"))
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCClosed {
		t.Errorf("Expected RetCClosed error, got %v", err)
	}
}
