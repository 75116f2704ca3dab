package dstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the replicated store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	closed  atomic.Bool
}

// NewDistributedStore creates a new replicated store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The NodeHost is owned by the caller, closing the store does not stop the shard.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns the previous value reported by the state machine, or a *store.Error.
func (s *storeImpl) write(cmd internal.Command) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, store.NewError(store.RetCClosed, cmd.Type.String()+" on closed store")
	}

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return nil, false, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return nil, false, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		if len(res.Data) == 0 || res.Data[0] == 0 {
			return nil, false, nil
		}
		return res.Data[1:], true, nil
	}
	return nil, false, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	if r.closed.Load() {
		return zero, store.NewError(store.RetCClosed, q.Type.String()+" on closed store")
	}

	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key []byte) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) Put(key, value []byte) ([]byte, bool, error) {
	return s.write(internal.Command{
		Type:  internal.CommandTPut,
		Key:   key,
		Value: value,
	})
}

func (s *storeImpl) PutIfAbsent(key, value []byte) ([]byte, bool, error) {
	return s.write(internal.Command{
		Type:  internal.CommandTPutIfAbsent,
		Key:   key,
		Value: value,
	})
}

func (s *storeImpl) Remove(key []byte) ([]byte, bool, error) {
	return s.write(internal.Command{
		Type: internal.CommandTRemove,
		Key:  key,
	})
}

func (s *storeImpl) PutAll(entries []db.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, _, err := s.write(internal.Command{
		Type:    internal.CommandTPutAll,
		Entries: entries,
	})
	return err
}

func (s *storeImpl) Clear() error {
	_, _, err := s.write(internal.Command{Type: internal.CommandTClear})
	return err
}

func (s *storeImpl) Size() (int, error) {
	return read[int](s, internal.Query{Type: internal.QueryTSize}, false)
}

func (s *storeImpl) ContainsKey(key []byte) (bool, error) {
	return read[bool](s, internal.Query{
		Type: internal.QueryTContainsKey,
		Key:  key,
	}, false)
}

func (s *storeImpl) ContainsValue(value []byte) (bool, error) {
	return read[bool](s, internal.Query{
		Type:  internal.QueryTContainsValue,
		Value: value,
	}, false)
}

func (s *storeImpl) Entries() ([]db.Entry, error) {
	return read[[]db.Entry](s, internal.Query{Type: internal.QueryTEntries}, false)
}

func (s *storeImpl) Keys() ([][]byte, error) {
	return read[[][]byte](s, internal.Query{Type: internal.QueryTKeys}, false)
}

func (s *storeImpl) Values() ([][]byte, error) {
	return read[[][]byte](s, internal.Query{Type: internal.QueryTValues}, false)
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}

func (s *storeImpl) Close() error {
	s.closed.Store(true)
	return nil
}
