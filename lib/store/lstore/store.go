package lstore

import (
	"bytes"
	"sync/atomic"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/store"
)

type storeImpl struct {
	db     db.MapDB
	closed atomic.Bool
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// It serves the database created by the factory directly.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db: factory(),
	}
}

// require checks that the store is open and the database supports the feature
func (s *storeImpl) require(feature db.Feature, op string) error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, op+" on closed store")
	}
	if !s.db.SupportsFeature(feature) {
		return store.NewError(store.RetCUnsupportedOperation, op+" operation is not supported")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key []byte) ([]byte, bool, error) {
	if err := s.require(db.FeatureGet, "Get"); err != nil {
		return nil, false, err
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *storeImpl) Put(key, value []byte) ([]byte, bool, error) {
	if err := s.require(db.FeaturePut, "Put"); err != nil {
		return nil, false, err
	}
	prev, replaced := s.db.Put(key, value)
	return prev, replaced, nil
}

func (s *storeImpl) PutIfAbsent(key, value []byte) ([]byte, bool, error) {
	if err := s.require(db.FeaturePutIfAbsent, "PutIfAbsent"); err != nil {
		return nil, false, err
	}
	existing, loaded := s.db.PutIfAbsent(key, value)
	return existing, loaded, nil
}

func (s *storeImpl) Remove(key []byte) ([]byte, bool, error) {
	if err := s.require(db.FeatureRemove, "Remove"); err != nil {
		return nil, false, err
	}
	prev, removed := s.db.Remove(key)
	return prev, removed, nil
}

func (s *storeImpl) PutAll(entries []db.Entry) error {
	if err := s.require(db.FeaturePut, "PutAll"); err != nil {
		return err
	}
	for _, e := range entries {
		s.db.Put(e.Key, e.Value)
	}
	return nil
}

func (s *storeImpl) Clear() error {
	if err := s.require(db.FeatureClear, "Clear"); err != nil {
		return err
	}
	s.db.Clear()
	return nil
}

func (s *storeImpl) Size() (int, error) {
	if s.closed.Load() {
		return 0, store.NewError(store.RetCClosed, "Size on closed store")
	}
	return s.db.Size(), nil
}

func (s *storeImpl) ContainsKey(key []byte) (bool, error) {
	if err := s.require(db.FeatureGet, "ContainsKey"); err != nil {
		return false, err
	}
	_, ok := s.db.Get(key)
	return ok, nil
}

func (s *storeImpl) ContainsValue(value []byte) (bool, error) {
	if err := s.require(db.FeatureRange, "ContainsValue"); err != nil {
		return false, err
	}
	found := false
	s.db.Range(func(_, v []byte) bool {
		found = bytes.Equal(v, value)
		return !found
	})
	return found, nil
}

func (s *storeImpl) Entries() ([]db.Entry, error) {
	if err := s.require(db.FeatureRange, "Entries"); err != nil {
		return nil, err
	}
	entries := make([]db.Entry, 0, s.db.Size())
	s.db.Range(func(k, v []byte) bool {
		entries = append(entries, db.Entry{Key: bytes.Clone(k), Value: bytes.Clone(v)})
		return true
	})
	return entries, nil
}

func (s *storeImpl) Keys() ([][]byte, error) {
	if err := s.require(db.FeatureRange, "Keys"); err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, s.db.Size())
	s.db.Range(func(k, _ []byte) bool {
		keys = append(keys, bytes.Clone(k))
		return true
	})
	return keys, nil
}

func (s *storeImpl) Values() ([][]byte, error) {
	if err := s.require(db.FeatureRange, "Values"); err != nil {
		return nil, err
	}
	values := make([][]byte, 0, s.db.Size())
	s.db.Range(func(_, v []byte) bool {
		values = append(values, bytes.Clone(v))
		return true
	})
	return values, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
