package serve

import (
	"testing"

	cmdUtil "github.com/ValentinKolb/smap/cmd/util"
	"github.com/ValentinKolb/smap/rpc/common"
)

func TestParseShards(t *testing.T) {
	shards, err := ParseShards("1=local, 2 = replicated")
	if err != nil {
		t.Fatalf("ParseShards failed: %v", err)
	}
	expected := []common.ServerShard{
		{ShardID: 1, Type: common.ShardTypeLocal},
		{ShardID: 2, Type: common.ShardTypeReplicated},
	}
	if len(shards) != len(expected) {
		t.Fatalf("Expected %d maps, got %d", len(expected), len(shards))
	}
	for i := range expected {
		if shards[i] != expected[i] {
			t.Errorf("Expected %+v, got %+v", expected[i], shards[i])
		}
	}

	for _, invalid := range []string{"", "1", "x=local", "1=lstore", "1=local=2"} {
		if _, err := ParseShards(invalid); err == nil {
			t.Errorf("Expected error for %q", invalid)
		}
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := ParseClusterMembers("node-1=localhost:63001,node-2=localhost:63002")
	if err != nil {
		t.Fatalf("ParseClusterMembers failed: %v", err)
	}
	if members[cmdUtil.HashString("node-2")] != "localhost:63002" || len(members) != 2 {
		t.Errorf("Unexpected members %v", members)
	}

	if _, err := ParseClusterMembers(""); err == nil {
		t.Errorf("Expected error for missing members")
	}
	if _, err := ParseClusterMembers("node-1"); err == nil {
		t.Errorf("Expected error for member without address")
	}
}
