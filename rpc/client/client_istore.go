package client

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/serializer"
	"github.com/ValentinKolb/smap/rpc/transport"
)

// NewRPCStore creates a new RPC store for the map with the given shard ID.
// The transport is configured but not connected yet, the first operation connects.
// It returns a store.IStore and an error
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {

	// Configure the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	// Create a new RPC store
	s := rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC store
	return &s, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Get(key []byte) (value []byte, loaded bool, err error) {
	resp, err := i.invoke(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) Put(key, value []byte) (prev []byte, replaced bool, err error) {
	resp, err := i.invoke(common.NewPutRequest(key, value, i.config.PutReturnsPrevious))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) PutIfAbsent(key, value []byte) (existing []byte, loaded bool, err error) {
	resp, err := i.invoke(common.NewPutIfAbsentRequest(key, value))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) Remove(key []byte) (prev []byte, removed bool, err error) {
	resp, err := i.invoke(common.NewRemoveRequest(key, i.config.RemoveReturnsPrevious))
	if err != nil {
		return nil, false, err
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) PutAll(entries []db.Entry) (err error) {
	return i.sendChunked(entries)
}

func (i *rpcStore) Clear() (err error) {
	_, err = i.invoke(common.NewSimpleRequest(common.MsgTClear))
	return err
}

func (i *rpcStore) Size() (size int, err error) {
	resp, err := i.invoke(common.NewSimpleRequest(common.MsgTSize))
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

func (i *rpcStore) ContainsKey(key []byte) (ok bool, err error) {
	resp, err := i.invoke(common.NewContainsKeyRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) ContainsValue(value []byte) (ok bool, err error) {
	resp, err := i.invoke(common.NewContainsValueRequest(value))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Entries() (entries []db.Entry, err error) {
	return i.receiveSnapshot(common.MsgTEntrySet)
}

func (i *rpcStore) Keys() (keys [][]byte, err error) {
	entries, err := i.receiveSnapshot(common.MsgTKeySet)
	if err != nil {
		return nil, err
	}
	keys = make([][]byte, len(entries))
	for j, e := range entries {
		keys[j] = e.Key
	}
	return keys, nil
}

func (i *rpcStore) Values() (values [][]byte, err error) {
	entries, err := i.receiveSnapshot(common.MsgTValues)
	if err != nil {
		return nil, err
	}
	values = make([][]byte, len(entries))
	for j, e := range entries {
		values[j] = e.Value
	}
	return values, nil
}

func (i *rpcStore) GetDBInfo() (info db.DatabaseInfo, err error) {
	resp, err := i.invoke(common.NewSimpleRequest(common.MsgTDBInfo))
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	if err := json.Unmarshal(resp.Value, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("invalid db info: %w", err)
	}
	return info, nil
}

func (i *rpcStore) Close() (err error) {
	// tell the server to drop the state of this connection, best effort only
	if i.transport.State() == transport.StateConnected {
		if _, err := i.invoke(common.NewSimpleRequest(common.MsgTClose)); err != nil {
			Logger.Debugf("Close request for shard %d failed: %v", i.shardId, err)
		}
	}
	return i.transport.Close()
}
