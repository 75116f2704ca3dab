package dstore

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// MapStateMachine is a state machine implementation for Dragonboat RAFT
type MapStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.MapDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &MapStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding MapDB method.
func (fsm *MapStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet, internal.QueryTContainsKey:
		if !fsm.database.SupportsFeature(db.FeatureGet) {
			return nil, store.NewError(store.RetCUnsupportedOperation, q.Type.String()+" operation is not supported")
		}
		val, ok := fsm.database.Get(q.Key)
		if q.Type == internal.QueryTContainsKey {
			return ok, nil
		}
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTSize:
		return fsm.database.Size(), nil
	case internal.QueryTContainsValue, internal.QueryTEntries, internal.QueryTKeys, internal.QueryTValues:
		if !fsm.database.SupportsFeature(db.FeatureRange) {
			return nil, store.NewError(store.RetCUnsupportedOperation, q.Type.String()+" operation is not supported")
		}
		return fsm.rangeQuery(q), nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// rangeQuery answers all queries that need to visit every entry.
// Keys and values handed to the range callback are copied, they must not escape.
func (fsm *MapStateMachine) rangeQuery(q internal.Query) interface{} {
	switch q.Type {
	case internal.QueryTContainsValue:
		found := false
		fsm.database.Range(func(_, v []byte) bool {
			found = bytes.Equal(v, q.Value)
			return !found
		})
		return found
	case internal.QueryTEntries:
		entries := make([]db.Entry, 0, fsm.database.Size())
		fsm.database.Range(func(k, v []byte) bool {
			entries = append(entries, db.Entry{Key: bytes.Clone(k), Value: bytes.Clone(v)})
			return true
		})
		return entries
	case internal.QueryTKeys:
		keys := make([][]byte, 0, fsm.database.Size())
		fsm.database.Range(func(k, _ []byte) bool {
			keys = append(keys, bytes.Clone(k))
			return true
		})
		return keys
	default:
		values := make([][]byte, 0, fsm.database.Size())
		fsm.database.Range(func(_, v []byte) bool {
			values = append(values, bytes.Clone(v))
			return true
		})
		return values
	}
}

// Update handles write commands on the MapDB instance
// All write operations are serialized into []byte and are accessible via the entries struct.
//
// On success the result value is store.RetCSuccess and the first data byte reports whether a
// previous value existed, followed by that value. On failure the data holds the error message.
func (fsm *MapStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = failure(store.RetCInvalidOperation, "empty command ignored")
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = failure(store.RetCInternalError, fmt.Sprintf("failed to deserialize command: %v", err))
			continue
		}

		// Check if the db supports the operation
		feat, err := cmd.Type.ToDBFeature()
		if err != nil {
			entries[idx].Result = failure(store.RetCInvalidOperation, fmt.Sprintf("unknown Command operation: %s", cmd.Type))
			continue
		}
		if !fsm.database.SupportsFeature(feat) {
			entries[idx].Result = failure(store.RetCUnsupportedOperation, fmt.Sprintf("%s operation is not supported", cmd.Type))
			continue
		}

		switch cmd.Type {
		case internal.CommandTPut:
			entries[idx].Result = success(fsm.database.Put(cmd.Key, cmd.Value))
		case internal.CommandTPutIfAbsent:
			entries[idx].Result = success(fsm.database.PutIfAbsent(cmd.Key, cmd.Value))
		case internal.CommandTRemove:
			entries[idx].Result = success(fsm.database.Remove(cmd.Key))
		case internal.CommandTPutAll:
			for _, entry := range cmd.Entries {
				fsm.database.Put(entry.Key, entry.Value)
			}
			entries[idx].Result = success(nil, false)
		case internal.CommandTClear:
			fsm.database.Clear()
			entries[idx].Result = success(nil, false)
		}
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms:", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func success(prev []byte, found bool) sm.Result {
	data := make([]byte, 1+len(prev))
	if found {
		data[0] = 1
	}
	copy(data[1:], prev)
	return sm.Result{Value: uint64(store.RetCSuccess), Data: data}
}

func failure(code store.RetCode, msg string) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(msg)}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *MapStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *MapStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used MapDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the database content with the snapshot.
func (fsm *MapStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used MapDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *MapStateMachine) Close() error {
	return fsm.database.Close()
}
