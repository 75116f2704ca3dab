package smap

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/rpc/client"
	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/serializer"
	"github.com/ValentinKolb/smap/rpc/transport"
	"github.com/ValentinKolb/smap/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("smap")

// Failures of a Map, matchable with errors.Is. A missing key is never an error.
var (
	ErrClosed          = transport.ErrClosed
	ErrConnect         = transport.ErrConnect
	ErrTimeout         = transport.ErrTimeout
	ErrProtocol        = transport.ErrProtocol
	ErrPayloadTooLarge = transport.ErrPayloadTooLarge
	ErrTransfer        = transport.ErrTransfer
)

// Map is a typed map whose entries live in a store.IStore. Created with Dial,
// the store is a remote map on an smap server and the Map holds no data itself.
type Map[K comparable, V any] struct {
	store  store.IStore
	keys   Codec[K]
	values Codec[V]
	closed atomic.Bool
}

// New wraps a store. The Map takes ownership of the store and closes it on Close.
func New[K comparable, V any](s store.IStore, keys Codec[K], values Codec[V]) *Map[K, V] {
	return &Map[K, V]{
		store:  s,
		keys:   keys,
		values: values,
	}
}

// Option configures Dial
type Option func(*dialOptions)

type dialOptions struct {
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// WithTransport replaces the default TCP transport (e.g. with unix.NewUnixClientTransport())
func WithTransport(t transport.IRPCClientTransport) Option {
	return func(o *dialOptions) { o.transport = t }
}

// WithSerializer replaces the default binary serializer. It must match the server.
func WithSerializer(s serializer.IRPCSerializer) Option {
	return func(o *dialOptions) { o.serializer = s }
}

// Dial returns a Map backed by the map with the given id on the server at config.Endpoint.
// The connection is opened by the first operation, so the server does not have to be
// running yet.
//
// Usage:
//
//	m, err := smap.Dial(common.DefaultClientConfig("localhost:8080"), 1, smap.Int(), smap.String())
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	m.Put(10, "Hello World")
//	greeting, found, err := smap.MapForKey(m, 10, strings.ToUpper)
func Dial[K comparable, V any](config common.ClientConfig, mapID uint64, keys Codec[K], values Codec[V], opts ...Option) (*Map[K, V], error) {
	o := dialOptions{
		transport:  tcp.NewTCPClientTransport(),
		serializer: serializer.NewBinarySerializer(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := client.NewRPCStore(mapID, config, o.transport, o.serializer)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for map %d at %s: %w", mapID, config.Endpoint, err)
	}
	Logger.Debugf("created client for map %d at %s", mapID, config.Endpoint)
	return New(s, keys, values), nil
}

// --------------------------------------------------------------------------
// Single entry operations
// --------------------------------------------------------------------------

// Get returns the value for key. found is false if the key does not exist.
func (m *Map[K, V]) Get(key K) (value V, found bool, err error) {
	k, err := m.encodeKey(key)
	if err != nil {
		return value, false, err
	}
	data, found, err := m.store.Get(k)
	if err != nil || !found {
		return value, false, err
	}
	value, err = m.values.Decode(data)
	return value, err == nil, err
}

// Put stores value for key and returns the replaced value. replaced is false if the
// key was absent or the client is configured not to return previous values.
func (m *Map[K, V]) Put(key K, value V) (prev V, replaced bool, err error) {
	k, v, err := m.encodeEntry(key, value)
	if err != nil {
		return prev, false, err
	}
	data, replaced, err := m.store.Put(k, v)
	return m.decodeOptional(data, replaced, err)
}

// PutIfAbsent stores value only if key is absent. If it exists the current value is
// returned and loaded is true.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (existing V, loaded bool, err error) {
	k, v, err := m.encodeEntry(key, value)
	if err != nil {
		return existing, false, err
	}
	data, loaded, err := m.store.PutIfAbsent(k, v)
	return m.decodeOptional(data, loaded, err)
}

// Remove deletes key and returns the removed value (see Put for when it is reported).
func (m *Map[K, V]) Remove(key K) (prev V, removed bool, err error) {
	k, err := m.encodeKey(key)
	if err != nil {
		return prev, false, err
	}
	data, removed, err := m.store.Remove(k)
	return m.decodeOptional(data, removed, err)
}

// ContainsKey reports whether key exists
func (m *Map[K, V]) ContainsKey(key K) (bool, error) {
	k, err := m.encodeKey(key)
	if err != nil {
		return false, err
	}
	return m.store.ContainsKey(k)
}

// ContainsValue reports whether any entry holds value. Values are compared by their encoding.
func (m *Map[K, V]) ContainsValue(value V) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	v, err := m.values.Encode(value)
	if err != nil {
		return false, fmt.Errorf("failed to encode value: %w", err)
	}
	return m.store.ContainsValue(v)
}

// MapForKey fetches the value for key and returns fn applied to it. fn runs on the
// caller's side and is not called if the key does not exist.
func MapForKey[K comparable, V any, R any](m *Map[K, V], key K, fn func(V) R) (result R, found bool, err error) {
	value, found, err := m.Get(key)
	if err != nil || !found {
		return result, false, err
	}
	return fn(value), true, nil
}

// --------------------------------------------------------------------------
// Whole map operations
// --------------------------------------------------------------------------

// PutAll stores all entries. It returns once the server applied the whole batch,
// on error none of the entries were handed to the store.
func (m *Map[K, V]) PutAll(entries map[K]V) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	batch := make([]db.Entry, 0, len(entries))
	for key, value := range entries {
		k, v, err := m.encodeEntry(key, value)
		if err != nil {
			return err
		}
		batch = append(batch, db.Entry{Key: k, Value: v})
	}
	return m.store.PutAll(batch)
}

// Size returns the number of entries currently on the server
func (m *Map[K, V]) Size() (int, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	size, err := m.store.Size()
	return max(size, 0), err
}

// IsEmpty reports whether the map has no entries
func (m *Map[K, V]) IsEmpty() (bool, error) {
	size, err := m.Size()
	return size == 0, err
}

// Clear removes all entries
func (m *Map[K, V]) Clear() error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.store.Clear()
}

// EntrySet returns a snapshot view of all entries. The snapshot is fetched on first use.
func (m *Map[K, V]) EntrySet() *EntrySet[K, V] {
	return &EntrySet[K, V]{newView(m.fetchEntries)}
}

// KeySet returns a snapshot view of all keys. The snapshot is fetched on first use.
func (m *Map[K, V]) KeySet() *KeySet[K] {
	return &KeySet[K]{newView(m.fetchKeys)}
}

// Values returns a snapshot view of all values. The snapshot is fetched on first use.
func (m *Map[K, V]) Values() *ValueCollection[V] {
	return &ValueCollection[V]{newView(m.fetchValues)}
}

// Snapshot copies all entries into a local map
func (m *Map[K, V]) Snapshot() (map[K]V, error) {
	return m.EntrySet().ToMap()
}

// Equals reports whether the map holds exactly the entries of other.
// Values are compared with reflect.DeepEqual.
func (m *Map[K, V]) Equals(other map[K]V) (bool, error) {
	entries, err := m.EntrySet().Slice()
	if err != nil {
		return false, err
	}
	if len(entries) != len(other) {
		return false, nil
	}
	for _, e := range entries {
		v, ok := other[e.Key]
		if !ok || !reflect.DeepEqual(v, e.Value) {
			return false, nil
		}
	}
	return true, nil
}

// Info returns diagnostics about the storage engine behind the map
func (m *Map[K, V]) Info() (db.DatabaseInfo, error) {
	if err := m.checkOpen(); err != nil {
		return db.DatabaseInfo{}, err
	}
	return m.store.GetDBInfo()
}

// Close releases the connection. Every later operation fails with ErrClosed.
func (m *Map[K, V]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.store.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (m *Map[K, V]) checkOpen() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (m *Map[K, V]) encodeKey(key K) ([]byte, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	k, err := m.keys.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key %v: %w", key, err)
	}
	return k, nil
}

func (m *Map[K, V]) encodeEntry(key K, value V) ([]byte, []byte, error) {
	k, err := m.encodeKey(key)
	if err != nil {
		return nil, nil, err
	}
	v, err := m.values.Encode(value)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode value of key %v: %w", key, err)
	}
	return k, v, nil
}

// decodeOptional decodes the value returned by a write if the store reported one
func (m *Map[K, V]) decodeOptional(data []byte, ok bool, err error) (value V, _ bool, _ error) {
	if err != nil || !ok {
		return value, false, err
	}
	if value, err = m.values.Decode(data); err != nil {
		return value, false, fmt.Errorf("failed to decode value: %w", err)
	}
	return value, true, nil
}

func (m *Map[K, V]) fetchEntries() ([]Entry[K, V], error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	raw, err := m.store.Entries()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry[K, V], len(raw))
	for i, e := range raw {
		if entries[i].Key, err = m.keys.Decode(e.Key); err != nil {
			return nil, fmt.Errorf("failed to decode key: %w", err)
		}
		if entries[i].Value, err = m.values.Decode(e.Value); err != nil {
			return nil, fmt.Errorf("failed to decode value: %w", err)
		}
	}
	return entries, nil
}

func (m *Map[K, V]) fetchKeys() ([]K, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	raw, err := m.store.Keys()
	if err != nil {
		return nil, err
	}
	return decodeAll(raw, m.keys)
}

func (m *Map[K, V]) fetchValues() ([]V, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	raw, err := m.store.Values()
	if err != nil {
		return nil, err
	}
	return decodeAll(raw, m.values)
}

func decodeAll[T any](raw [][]byte, codec Codec[T]) ([]T, error) {
	result := make([]T, len(raw))
	var errs []error
	for i, data := range raw {
		v, err := codec.Decode(data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result[i] = v
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to decode %d of %d items: %w", len(errs), len(raw), errors.Join(errs...))
	}
	return result, nil
}
