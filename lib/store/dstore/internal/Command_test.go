package internal

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:  CommandTPut,
				Key:   []byte("testkey"),
				Value: []byte("testvalue"),
			},
			expected: 1 + 4 + 7 + 4 + 9 + 4, // Type + KeyLen + Key + ValueLen + Value + Count
		},
		{
			name: "Command without payload",
			command: Command{
				Type: CommandTClear,
			},
			expected: 1 + 4 + 4 + 4,
		},
		{
			name: "Command with entries",
			command: Command{
				Type: CommandTPutAll,
				Entries: []db.Entry{
					{Key: []byte("a"), Value: []byte("bc")},
					{Key: []byte("def"), Value: []byte{}},
				},
			},
			expected: 1 + 4 + 4 + 4 + (4 + 1 + 4 + 2) + (4 + 3 + 4 + 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Put with value",
			command: Command{
				Type:  CommandTPut,
				Key:   []byte("testkey"),
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Remove without value",
			command: Command{
				Type: CommandTRemove,
				Key:  []byte("testkey"),
			},
		},
		{
			name: "Put with empty key",
			command: Command{
				Type:  CommandTPut,
				Key:   []byte{},
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Binary key and value",
			command: Command{
				Type:  CommandTPutIfAbsent,
				Key:   []byte{0, 255, 0},
				Value: []byte{0, 1, 2, 3, 254, 255},
			},
		},
		{
			name: "PutAll with entries",
			command: Command{
				Type: CommandTPutAll,
				Entries: []db.Entry{
					{Key: []byte("1"), Value: []byte("some value=1")},
					{Key: []byte("2"), Value: []byte{}},
					{Key: []byte("你好世界"), Value: []byte("unicode test")},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			if err := newCommand.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if !bytes.Equal(newCommand.Key, tt.command.Key) {
				t.Errorf("Key mismatch: got %q, want %q", newCommand.Key, tt.command.Key)
			}
			if !bytes.Equal(newCommand.Value, tt.command.Value) {
				t.Errorf("Value mismatch: got %v, want %v", newCommand.Value, tt.command.Value)
			}
			if len(newCommand.Entries) != len(tt.command.Entries) {
				t.Fatalf("Entry count mismatch: got %d, want %d", len(newCommand.Entries), len(tt.command.Entries))
			}
			for i, e := range tt.command.Entries {
				if !bytes.Equal(newCommand.Entries[i].Key, e.Key) || !bytes.Equal(newCommand.Entries[i].Value, e.Value) {
					t.Errorf("Entry %d mismatch: got %q=%q, want %q=%q",
						i, newCommand.Entries[i].Key, newCommand.Entries[i].Value, e.Key, e.Value)
				}
			}

			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d",
					tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectedErr: "data too short for command",
		},
		{
			name:        "Data too short (less than header)",
			data:        []byte{1, 2, 3, 4, 5},
			expectedErr: "data too short for command",
		},
		{
			name: "Invalid key length",
			data: func() []byte {
				data := make([]byte, headerSize)
				data[0] = byte(CommandTPut)
				binary.BigEndian.PutUint32(data[1:5], 1000)
				return data
			}(),
			expectedErr: "data too short for key of length 1000",
		},
		{
			name: "Entry count exceeds data",
			data: func() []byte {
				data := make([]byte, headerSize)
				data[0] = byte(CommandTPutAll)
				binary.BigEndian.PutUint32(data[9:13], 1<<30)
				return data
			}(),
			expectedErr: "data too short for 1073741824 entries",
		},
		{
			name:        "Trailing bytes",
			data:        append((&Command{Type: CommandTClear}).Serialize(), 0xff),
			expectedErr: "1 trailing bytes after command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)

			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{
		Type:  CommandTPut,
		Key:   []byte("testkey"),
		Value: []byte("testvalue"),
	}

	expected := make([]byte, cmd.SizeBytes())
	expected[0] = byte(CommandTPut)
	binary.BigEndian.PutUint32(expected[1:5], 7)
	copy(expected[5:12], "testkey")
	binary.BigEndian.PutUint32(expected[12:16], 9)
	copy(expected[16:25], "testvalue")
	binary.BigEndian.PutUint32(expected[25:29], 0)

	serialized := cmd.Serialize()
	if !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

// TestDeserializeCopies ensures the decoded command does not alias the raft log buffer
func TestDeserializeCopies(t *testing.T) {
	data := (&Command{Type: CommandTPut, Key: []byte("key"), Value: []byte("value")}).Serialize()

	var cmd Command
	if err := cmd.Deserialize(data); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	for i := range data {
		data[i] = 0
	}
	if string(cmd.Key) != "key" || string(cmd.Value) != "value" {
		t.Errorf("Deserialized command aliases input: key=%q value=%q", cmd.Key, cmd.Value)
	}
}

func TestToDBFeature(t *testing.T) {
	for ct, want := range map[CommandType]db.Feature{
		CommandTPut:         db.FeaturePut,
		CommandTPutAll:      db.FeaturePut,
		CommandTPutIfAbsent: db.FeaturePutIfAbsent,
		CommandTRemove:      db.FeatureRemove,
		CommandTClear:       db.FeatureClear,
	} {
		got, err := ct.ToDBFeature()
		if err != nil || got != want {
			t.Errorf("%s.ToDBFeature() = %v, %v; want %v", ct, got, err, want)
		}
	}
	if _, err := CommandType(99).ToDBFeature(); err == nil {
		t.Errorf("Expected error for unknown command type")
	}
}
