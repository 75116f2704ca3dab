package server

import (
	"fmt"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// NewIStoreServerAdapter creates the adapter that serves a store.IStore
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{
		sessions: xsync.NewMapOf[uint64, *session](),
	}
}

type iStoreServerAdapterImpl struct {
	sessions *xsync.MapOf[uint64, *session]
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IRPCServerAdapter)
// --------------------------------------------------------------------------

func (adapter *iStoreServerAdapterImpl) Handle(connID uint64, req *common.Message, store store.IStore) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTGet:
		val, ok, err := store.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTPut:
		prev, replaced, err := store.Put(req.Key, req.Value)
		return common.NewWriteResponse(common.MsgTPut, prev, replaced && req.WantPrev, err)
	case common.MsgTPutIfAbsent:
		existing, loaded, err := store.PutIfAbsent(req.Key, req.Value)
		return common.NewWriteResponse(common.MsgTPutIfAbsent, existing, loaded, err)
	case common.MsgTRemove:
		prev, removed, err := store.Remove(req.Key)
		return common.NewWriteResponse(common.MsgTRemove, prev, removed && req.WantPrev, err)
	case common.MsgTContainsKey:
		ok, err := store.ContainsKey(req.Key)
		return common.NewBoolResponse(common.MsgTContainsKey, ok, err)
	case common.MsgTContainsValue:
		ok, err := store.ContainsValue(req.Value)
		return common.NewBoolResponse(common.MsgTContainsValue, ok, err)
	case common.MsgTSize:
		size, err := store.Size()
		return common.NewSizeResponse(size, err)
	case common.MsgTClear:
		err := store.Clear()
		return common.NewBoolResponse(common.MsgTClear, true, err)
	case common.MsgTDBInfo:
		info, err := store.GetDBInfo()
		return common.NewDBInfoResponse(info, err)
	case common.MsgTPutAll:
		return adapter.handlePutAll(connID, req, store)
	case common.MsgTEntrySet, common.MsgTKeySet, common.MsgTValues:
		return adapter.startSnapshot(connID, req, store)
	case common.MsgTNextChunk:
		return adapter.nextChunk(connID, req)
	case common.MsgTClose:
		adapter.DropSession(connID)
		return common.NewBoolResponse(common.MsgTClose, true, nil)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

func (adapter *iStoreServerAdapterImpl) DropSession(connID uint64) {
	adapter.sessions.Delete(connID)
}

// --------------------------------------------------------------------------
// Bulk transfers
// --------------------------------------------------------------------------

func (adapter *iStoreServerAdapterImpl) session(connID uint64) *session {
	sess, _ := adapter.sessions.LoadOrCompute(connID, func() *session { return &session{} })
	return sess
}

// handlePutAll stages the chunks of a PutAll transfer and writes all entries at once
// when the last chunk arrives. A chunk with sequence number 0 starts a new transfer.
func (adapter *iStoreServerAdapterImpl) handlePutAll(connID uint64, req *common.Message, store store.IStore) *common.Message {
	sess := adapter.session(connID)

	if req.Seq == 0 {
		sess.resetPutAll()
	}
	if req.Seq != sess.nextSeq {
		expected := sess.nextSeq
		sess.resetPutAll()
		return common.NewPutAllAck(req.Seq, fmt.Errorf("unexpected putAll chunk %d, expected %d", req.Seq, expected))
	}

	sess.staged = append(sess.staged, req.Entries...)
	sess.nextSeq++

	if req.More {
		return common.NewPutAllAck(req.Seq, nil)
	}

	entries := sess.staged
	sess.resetPutAll()
	Logger.Debugf("Applying putAll of %d entries in %d chunks (connection %d)", len(entries), req.Seq+1, connID)
	return common.NewPutAllAck(req.Seq, store.PutAll(entries))
}

// startSnapshot takes a snapshot of the store and returns its first chunk
func (adapter *iStoreServerAdapterImpl) startSnapshot(connID uint64, req *common.Message, s store.IStore) *common.Message {
	var entries []db.Entry
	var err error

	switch req.MsgType {
	case common.MsgTEntrySet:
		entries, err = s.Entries()
	case common.MsgTKeySet:
		var keys [][]byte
		if keys, err = s.Keys(); err == nil {
			entries = make([]db.Entry, len(keys))
			for i, k := range keys {
				entries[i].Key = k
			}
		}
	case common.MsgTValues:
		var values [][]byte
		if values, err = s.Values(); err == nil {
			entries = make([]db.Entry, len(values))
			for i, v := range values {
				entries[i].Value = v
			}
		}
	}
	if err != nil {
		adapter.DropSession(connID)
		return common.NewBoolResponse(req.MsgType, false, err)
	}

	sess := adapter.session(connID)
	sess.resetSnapshot()
	sess.snapshot = entries
	sess.snapType = req.MsgType

	return adapter.chunk(sess, req.MsgType, 0, req.Count)
}

// nextChunk returns the requested chunk of the running snapshot transfer
func (adapter *iStoreServerAdapterImpl) nextChunk(connID uint64, req *common.Message) *common.Message {
	sess, ok := adapter.sessions.Load(connID)
	if !ok || sess.snapshot == nil {
		return common.NewBoolResponse(common.MsgTNextChunk, false, fmt.Errorf("no snapshot transfer running"))
	}
	if req.Seq != sess.lastSeq+1 {
		expected := sess.lastSeq + 1
		sess.resetSnapshot()
		return common.NewBoolResponse(common.MsgTNextChunk, false,
			fmt.Errorf("unexpected snapshot chunk %d, expected %d", req.Seq, expected))
	}
	return adapter.chunk(sess, common.MsgTNextChunk, req.Seq, req.Count)
}

func (adapter *iStoreServerAdapterImpl) chunk(sess *session, t common.MessageType, seq uint32, budget uint64) *common.Message {
	total := uint64(len(sess.snapshot))
	entries, more := sess.nextChunk(budget)
	sess.lastSeq = seq
	if !more {
		sess.resetSnapshot()
	}
	return common.NewSnapshotChunk(t, seq, entries, more, total)
}
