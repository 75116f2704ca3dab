package dstore

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/lib/db/engines/xmap"
	"github.com/ValentinKolb/smap/lib/store"
	storetesting "github.com/ValentinKolb/smap/lib/store/testing"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
)

const replicaID = 1

// freeAddr returns a local address that was free a moment ago
func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}

// startNodeHost starts a single node host which is stopped when the test ends
func startNodeHost(t *testing.T) (*dragonboat.NodeHost, string) {
	addr := freeAddr(t)
	dir := t.TempDir()
	nh, err := dragonboat.NewNodeHost(config.NodeHostConfig{
		WALDir:         dir,
		NodeHostDir:    dir,
		RTTMillisecond: 5,
		RaftAddress:    addr,
	})
	if err != nil {
		t.Fatalf("failed to create node host: %v", err)
	}
	t.Cleanup(nh.Close)
	return nh, addr
}

// startShard starts a single replica shard and waits until it has elected itself
func startShard(t *testing.T, nh *dragonboat.NodeHost, addr string, shardID uint64) store.IStore {
	err := nh.StartConcurrentReplica(
		map[uint64]string{replicaID: addr},
		false,
		CreateStateMachineFactory(func() db.MapDB { return xmap.NewXMapDB(nil) }),
		config.Config{
			ReplicaID:          replicaID,
			ShardID:            shardID,
			ElectionRTT:        10,
			HeartbeatRTT:       1,
			CheckQuorum:        true,
			SnapshotEntries:    100,
			CompactionOverhead: 50,
		},
	)
	if err != nil {
		t.Fatalf("failed to start shard %d: %v", shardID, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, _, ok, err := nh.GetLeaderID(shardID); err == nil && ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("shard %d did not elect a leader in time", shardID)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return NewDistributedStore(nh, shardID, 5*time.Second)
}

func TestDistributedStore(t *testing.T) {
	nh, addr := startNodeHost(t)

	shardID := uint64(100)
	storetesting.RunStoreTests(t, "DistributedStore", func(t *testing.T) store.IStore {
		shardID++
		return startShard(t, nh, addr, shardID)
	})
}

func TestDistributedStoreSnapshotRecovery(t *testing.T) {
	nh, addr := startNodeHost(t)
	s := startShard(t, nh, addr, 1)

	// exceed SnapshotEntries so dragonboat saves at least one snapshot
	for i := 0; i < 250; i++ {
		if _, _, err := s.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	size, err := s.Size()
	if err != nil || size != 250 {
		t.Fatalf("Expected size 250, got %d (err=%v)", size, err)
	}

	info, err := s.GetDBInfo()
	if err != nil {
		t.Fatalf("GetDBInfo failed: %v", err)
	}
	if info.DbType != db.ImplXMap {
		t.Errorf("Expected db type %s, got %s", db.ImplXMap, info.DbType)
	}
}

func TestDistributedStoreClosed(t *testing.T) {
	nh, addr := startNodeHost(t)
	s := startShard(t, nh, addr, 1)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, _, err := s.Put([]byte("k"), []byte("v"))
	var se *store.Error
	if !errors.As(err, &se) || se.Code != store.RetCClosed {
		t.Errorf("Expected closed error after Close, got %v", err)
	}
	if _, err := s.Size(); !errors.As(err, &se) || se.Code != store.RetCClosed {
		t.Errorf("Expected closed error after Close, got %v", err)
	}
}
