package server

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/db/engines/xmap"
	"github.com/ValentinKolb/smap/lib/store"
	"github.com/ValentinKolb/smap/lib/store/lstore"
	"github.com/ValentinKolb/smap/rpc/common"
)

func newTestStore(t *testing.T) store.IStore {
	t.Helper()
	s := lstore.NewLocalStore(func() db.MapDB { return xmap.NewXMapDB(nil) })
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entries(from, to int) []db.Entry {
	result := make([]db.Entry, 0, to-from)
	for i := from; i < to; i++ {
		result = append(result, db.Entry{
			Key:   []byte(fmt.Sprintf("%d", i)),
			Value: []byte(fmt.Sprintf("some value=%d", i)),
		})
	}
	return result
}

func mustSize(t *testing.T, s store.IStore, expected int) {
	t.Helper()
	size, err := s.Size()
	if err != nil || size != expected {
		t.Errorf("Expected size %d, got %d (err=%v)", expected, size, err)
	}
}

func TestPutAllStaging(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)

	resp := adapter.Handle(1, common.NewPutAllChunk(0, entries(0, 10), true), s)
	if resp.Status != common.StatusOK || !resp.Ok || resp.Seq != 0 {
		t.Fatalf("Unexpected ack %+v", resp)
	}

	// nothing is visible before the last chunk
	mustSize(t, s, 0)

	resp = adapter.Handle(1, common.NewPutAllChunk(1, entries(10, 20), false), s)
	if resp.Status != common.StatusOK || resp.Seq != 1 {
		t.Fatalf("Unexpected ack %+v", resp)
	}
	mustSize(t, s, 20)
}

func TestPutAllSessionsPerConnection(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)

	adapter.Handle(1, common.NewPutAllChunk(0, entries(0, 10), true), s)
	adapter.Handle(2, common.NewPutAllChunk(0, entries(10, 15), false), s)
	mustSize(t, s, 5)

	adapter.Handle(1, common.NewPutAllChunk(1, entries(15, 20), false), s)
	mustSize(t, s, 20)
}

func TestPutAllSequenceMismatch(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)

	adapter.Handle(1, common.NewPutAllChunk(0, entries(0, 10), true), s)
	resp := adapter.Handle(1, common.NewPutAllChunk(2, entries(10, 20), false), s)
	if resp.Status != common.StatusError {
		t.Fatalf("Expected error for skipped chunk, got %+v", resp)
	}

	// the staged chunk was dropped
	resp = adapter.Handle(1, common.NewPutAllChunk(1, entries(10, 20), false), s)
	if resp.Status != common.StatusError {
		t.Errorf("Expected error for chunk of a dropped transfer, got %+v", resp)
	}
	mustSize(t, s, 0)

	// a new transfer starts with chunk 0
	resp = adapter.Handle(1, common.NewPutAllChunk(0, entries(0, 5), false), s)
	if resp.Status != common.StatusOK {
		t.Errorf("Expected new transfer to succeed, got %+v", resp)
	}
	mustSize(t, s, 5)
}

func TestDropSession(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)

	adapter.Handle(1, common.NewPutAllChunk(0, entries(0, 10), true), s)
	adapter.DropSession(1)

	resp := adapter.Handle(1, common.NewPutAllChunk(1, entries(10, 20), false), s)
	if resp.Status != common.StatusError {
		t.Errorf("Expected error after the session was dropped, got %+v", resp)
	}
	mustSize(t, s, 0)
}

func TestSnapshotTransfer(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)
	if err := s.PutAll(entries(0, 100)); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	for _, msgType := range []common.MessageType{common.MsgTEntrySet, common.MsgTKeySet, common.MsgTValues} {
		t.Run(msgType.String(), func(t *testing.T) {
			budget := uint64(200)
			resp := adapter.Handle(1, common.NewSnapshotRequest(msgType, budget), s)
			if resp.MsgType != msgType || resp.Seq != 0 || !resp.More || resp.Count != 100 {
				t.Fatalf("Unexpected first chunk %+v", resp)
			}

			received := resp.Entries
			for seq := uint32(1); resp.More; seq++ {
				resp = adapter.Handle(1, common.NewNextChunkRequest(seq, budget), s)
				if resp.Status != common.StatusOK || resp.MsgType != common.MsgTNextChunk || resp.Seq != seq {
					t.Fatalf("Unexpected chunk %+v", resp)
				}
				received = append(received, resp.Entries...)
			}

			if len(received) != 100 {
				t.Fatalf("Expected 100 entries, got %d", len(received))
			}
			for _, e := range received {
				switch msgType {
				case common.MsgTKeySet:
					if e.Key == nil || e.Value != nil {
						t.Fatalf("Expected keys only, got %q=%q", e.Key, e.Value)
					}
				case common.MsgTValues:
					if e.Key != nil || e.Value == nil {
						t.Fatalf("Expected values only, got %q=%q", e.Key, e.Value)
					}
				}
			}

			// the transfer is over
			resp = adapter.Handle(1, common.NewNextChunkRequest(99, budget), s)
			if resp.Status != common.StatusError {
				t.Errorf("Expected error for a finished transfer, got %+v", resp)
			}
		})
	}
}

func TestSnapshotIsolation(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)
	if err := s.PutAll(entries(0, 50)); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	resp := adapter.Handle(1, common.NewSnapshotRequest(common.MsgTEntrySet, 100), s)
	received := resp.Entries

	// writes after the first chunk do not change the running transfer
	if err := s.PutAll(entries(50, 60)); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	for seq := uint32(1); resp.More; seq++ {
		resp = adapter.Handle(1, common.NewNextChunkRequest(seq, 100), s)
		if resp.Count != 50 {
			t.Fatalf("Expected total of 50, got %d", resp.Count)
		}
		received = append(received, resp.Entries...)
	}
	if len(received) != 50 {
		t.Errorf("Expected 50 entries, got %d", len(received))
	}
}

func TestSnapshotErrors(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)
	if err := s.PutAll(entries(0, 50)); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	resp := adapter.Handle(1, common.NewNextChunkRequest(1, 100), s)
	if resp.Status != common.StatusError {
		t.Errorf("Expected error without a running transfer, got %+v", resp)
	}

	adapter.Handle(1, common.NewSnapshotRequest(common.MsgTEntrySet, 100), s)
	resp = adapter.Handle(1, common.NewNextChunkRequest(3, 100), s)
	if resp.Status != common.StatusError {
		t.Errorf("Expected error for a skipped chunk, got %+v", resp)
	}
}

func TestEmptySnapshot(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	resp := adapter.Handle(1, common.NewSnapshotRequest(common.MsgTKeySet, 100), newTestStore(t))
	if resp.Status != common.StatusOK || resp.More || resp.Count != 0 || len(resp.Entries) != 0 {
		t.Errorf("Unexpected response for an empty map %+v", resp)
	}
}

func TestWantPrev(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)

	adapter.Handle(1, common.NewPutRequest([]byte("k"), []byte("v1"), true), s)

	resp := adapter.Handle(1, common.NewPutRequest([]byte("k"), []byte("v2"), true), s)
	if !resp.Ok || string(resp.Value) != "v1" {
		t.Errorf("Expected previous value v1, got %+v", resp)
	}

	resp = adapter.Handle(1, common.NewPutRequest([]byte("k"), []byte("v3"), false), s)
	if resp.Ok || resp.Value != nil {
		t.Errorf("Expected no previous value, got %+v", resp)
	}

	resp = adapter.Handle(1, common.NewRemoveRequest([]byte("k"), false), s)
	if resp.Ok || resp.Value != nil {
		t.Errorf("Expected no previous value, got %+v", resp)
	}
	mustSize(t, s, 0)
}

func TestGetNotFound(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	resp := adapter.Handle(1, common.NewGetRequest([]byte("missing")), newTestStore(t))
	if resp.Status != common.StatusNotFound || resp.Ok || resp.Err != "" {
		t.Errorf("Expected not found without error, got %+v", resp)
	}
}

func TestUnsupportedMessage(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	resp := adapter.Handle(1, &common.Message{MsgType: common.MsgTError}, newTestStore(t))
	if resp.MsgType != common.MsgTError || resp.Status != common.StatusError {
		t.Errorf("Expected error response, got %+v", resp)
	}
}
