package smap

import (
	"iter"
	"reflect"
	"sync"
)

// Entry is a decoded key-value pair of a Map
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// View is a read only snapshot of a Map. The snapshot is fetched once, on the first
// call of any method, and kept for the lifetime of the view. Later writes to the map
// are not reflected, writes to the returned slices do not reach the server.
type View[T any] struct {
	fetch func() ([]T, error)

	once  sync.Once
	items []T
	err   error
}

func newView[T any](fetch func() ([]T, error)) *View[T] {
	return &View[T]{fetch: fetch}
}

func (v *View[T]) load() ([]T, error) {
	v.once.Do(func() {
		v.items, v.err = v.fetch()
	})
	return v.items, v.err
}

// Len returns the number of items in the snapshot
func (v *View[T]) Len() (int, error) {
	items, err := v.load()
	return len(items), err
}

// Slice returns the snapshot. The slice is shared by all calls on this view.
func (v *View[T]) Slice() ([]T, error) {
	return v.load()
}

// All iterates over the snapshot. If fetching fails nothing is yielded and Err reports why.
func (v *View[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		items, _ := v.load()
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}

// Err returns the error of fetching the snapshot. It fetches the snapshot if no other
// method did so before.
func (v *View[T]) Err() error {
	if v == nil {
		return nil
	}
	_, err := v.load()
	return err
}

// EntrySet is the snapshot returned by Map.EntrySet
type EntrySet[K comparable, V any] struct {
	*View[Entry[K, V]]
}

// Pairs iterates over the snapshot as key-value pairs
func (s *EntrySet[K, V]) Pairs() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for e := range s.All() {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// ToMap copies the snapshot into a new map
func (s *EntrySet[K, V]) ToMap() (map[K]V, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make(map[K]V, len(entries))
	for _, e := range entries {
		result[e.Key] = e.Value
	}
	return result, nil
}

// KeySet is the snapshot returned by Map.KeySet
type KeySet[K comparable] struct {
	*View[K]
}

// Contains reports whether key is part of the snapshot
func (s *KeySet[K]) Contains(key K) (bool, error) {
	keys, err := s.load()
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

// ValueCollection is the snapshot returned by Map.Values, duplicates included
type ValueCollection[V any] struct {
	*View[V]
}

// Contains reports whether value is part of the snapshot (compared with reflect.DeepEqual)
func (s *ValueCollection[V]) Contains(value V) (bool, error) {
	values, err := s.load()
	if err != nil {
		return false, err
	}
	for _, v := range values {
		if reflect.DeepEqual(v, value) {
			return true, nil
		}
	}
	return false, nil
}
