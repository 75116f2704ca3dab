package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSize},

		// Put request
		*common.NewPutRequest([]byte("test-key"), []byte("test-value"), true),

		// Get response
		*common.NewGetResponse([]byte("test-value"), true, nil),

		// Get response for a missing key
		*common.NewGetResponse(nil, false, nil),

		// Error response
		*common.NewErrorResponse("test error message"),

		// PutAll chunk
		*common.NewPutAllChunk(3, []db.Entry{
			{Key: []byte("1"), Value: []byte("some value=1")},
			{Key: []byte("2"), Value: []byte("some value=2")},
		}, true),

		// Snapshot chunk
		*common.NewSnapshotChunk(common.MsgTEntrySet, 1, []db.Entry{
			{Key: []byte("2490"), Value: []byte("some value=2490")},
		}, false, 2500),

		// Overflow response
		*common.NewOverflowResponse(common.MsgTValues, "frame too large"),
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTGet; msgType <= common.MsgTError; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestDeserializeResetsMessage ensures that fields of a reused message do not leak into the next one
func TestDeserializeResetsMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			full, _ := serializer.Serialize(*common.NewPutRequest([]byte("k"), []byte("v"), true))
			empty, _ := serializer.Serialize(common.Message{MsgType: common.MsgTClear})

			var msg common.Message
			if err := serializer.Deserialize(full, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if err := serializer.Deserialize(empty, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if msg.Key != nil || msg.Value != nil || msg.WantPrev {
				t.Errorf("Expected a clean message, got %+v", msg)
			}
		})
	}
}

// TestDeserializeDoesNotAlias ensures decoded messages stay valid when the input buffer is reused
func TestDeserializeDoesNotAlias(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, _ := serializer.Serialize(*common.NewPutAllChunk(0, []db.Entry{
				{Key: []byte("key"), Value: []byte("value")},
			}, false))

			var msg common.Message
			if err := serializer.Deserialize(data, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			for i := range data {
				data[i] = 0
			}
			if string(msg.Entries[0].Key) != "key" || string(msg.Entries[0].Value) != "value" {
				t.Errorf("Decoded entry changed with the input buffer: %q=%q", msg.Entries[0].Key, msg.Entries[0].Value)
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty key and value are not nil",
			msg: common.Message{
				MsgType: common.MsgTPut,
				Key:     []byte{},
				Value:   []byte{},
			},
		},
		{
			name: "Entries with nil and empty fields",
			msg: common.Message{
				MsgType: common.MsgTKeySet,
				Entries: []db.Entry{
					{Key: []byte("only-key"), Value: nil},
					{Key: []byte{}, Value: []byte{}},
					{Key: nil, Value: []byte("only-value")},
				},
			},
		},
		{
			name: "Empty entries slice",
			msg: common.Message{
				MsgType: common.MsgTEntrySet,
				Entries: []db.Entry{},
			},
		},
		{
			name: "All flags set",
			msg: common.Message{
				MsgType:  common.MsgTRemove,
				Status:   common.StatusNotFound,
				Key:      []byte("k"),
				Value:    []byte("v"),
				Seq:      1<<32 - 1,
				Count:    1<<64 - 1,
				More:     true,
				WantPrev: true,
				Ok:       true,
				Err:      "err",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// DeepEqual distinguishes nil from empty slices
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %#v\nResult: %#v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0, 0},
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 0, 2, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Entry count exceeds data",
			data:        []byte{1, 0, 0, 4, 0xff, 0xff, 0xff, 0xff},
			expectError: true,
		},
		{
			name:        "Trailing bytes",
			data:        []byte{1, 0, 0, 0, 42},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
