package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/smap/lib/db"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message, a response always echoes the type of its request
	MsgType MessageType `json:"msg_type"`
	// Status of a response (always StatusOK for requests)
	Status Status `json:"status,omitempty"`

	// General fields
	Key   []byte `json:"key"`   // Used for: Get, Put, PutIfAbsent, Remove, ContainsKey
	Value []byte `json:"value"` // Used for: Put, PutIfAbsent, ContainsValue (request), Get, Put, Remove, DBInfo (response)

	// Bulk transfer fields
	Entries []db.Entry `json:"entries,omitempty"` // Used for: PutAll (request), EntrySet, KeySet, Values, NextChunk (response)
	Seq     uint32     `json:"seq,omitempty"`     // Sequence number of a chunk within one transfer
	More    bool       `json:"more,omitempty"`    // More chunks follow this one

	// Count is the chunk budget in bytes for snapshot requests, the number of entries
	// for Size responses and the total number of entries for snapshot responses.
	Count uint64 `json:"count,omitempty"`

	// WantPrev asks the server to return the previous value of Put and Remove
	WantPrev bool `json:"want_prev,omitempty"`

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: Get, Put, PutIfAbsent, Remove, ContainsKey, ContainsValue responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response. A missing key is reported with StatusNotFound.
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTGet,
		Ok:      ok,
		Value:   value,
	}
	if !ok {
		msg.Status = StatusNotFound
	}
	return withErr(msg, err)
}

// NewPutRequest creates a new Put request
func NewPutRequest(key, value []byte, wantPrev bool) *Message {
	return &Message{
		MsgType:  MsgTPut,
		Key:      key,
		Value:    value,
		WantPrev: wantPrev,
	}
}

// NewPutIfAbsentRequest creates a new PutIfAbsent request
func NewPutIfAbsentRequest(key, value []byte) *Message {
	return &Message{
		MsgType: MsgTPutIfAbsent,
		Key:     key,
		Value:   value,
	}
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key []byte, wantPrev bool) *Message {
	return &Message{
		MsgType:  MsgTRemove,
		Key:      key,
		WantPrev: wantPrev,
	}
}

// NewWriteResponse creates the response for Put, PutIfAbsent and Remove.
// prev is only sent if found is true.
func NewWriteResponse(t MessageType, prev []byte, found bool, err error) *Message {
	msg := &Message{
		MsgType: t,
		Ok:      found,
	}
	if found {
		msg.Value = prev
	}
	return withErr(msg, err)
}

// NewPutAllChunk creates a single chunk of a PutAll transfer
func NewPutAllChunk(seq uint32, entries []db.Entry, more bool) *Message {
	return &Message{
		MsgType: MsgTPutAll,
		Entries: entries,
		Seq:     seq,
		More:    more,
	}
}

// NewPutAllAck acknowledges a PutAll chunk
func NewPutAllAck(seq uint32, err error) *Message {
	return withErr(&Message{
		MsgType: MsgTPutAll,
		Seq:     seq,
		Ok:      err == nil,
	}, err)
}

// NewSnapshotRequest starts a snapshot transfer (t is one of MsgTEntrySet, MsgTKeySet, MsgTValues).
// budget is the maximum number of payload bytes the client accepts per chunk.
func NewSnapshotRequest(t MessageType, budget uint64) *Message {
	return &Message{
		MsgType: t,
		Count:   budget,
	}
}

// NewNextChunkRequest requests the chunk with the given sequence number of a running snapshot transfer
func NewNextChunkRequest(seq uint32, budget uint64) *Message {
	return &Message{
		MsgType: MsgTNextChunk,
		Seq:     seq,
		Count:   budget,
	}
}

// NewSnapshotChunk creates a single chunk of a snapshot transfer
func NewSnapshotChunk(t MessageType, seq uint32, entries []db.Entry, more bool, total uint64) *Message {
	return &Message{
		MsgType: t,
		Entries: entries,
		Seq:     seq,
		More:    more,
		Count:   total,
	}
}

// NewSimpleRequest creates a request without any payload (Size, Clear, DBInfo, Close)
func NewSimpleRequest(t MessageType) *Message {
	return &Message{MsgType: t}
}

// NewSizeResponse creates a new Size response
func NewSizeResponse(size int, err error) *Message {
	msg := &Message{MsgType: MsgTSize}
	if size > 0 {
		msg.Count = uint64(size)
	}
	return withErr(msg, err)
}

// NewContainsKeyRequest creates a new ContainsKey request
func NewContainsKeyRequest(key []byte) *Message {
	return &Message{
		MsgType: MsgTContainsKey,
		Key:     key,
	}
}

// NewContainsValueRequest creates a new ContainsValue request
func NewContainsValueRequest(value []byte) *Message {
	return &Message{
		MsgType: MsgTContainsValue,
		Value:   value,
	}
}

// NewBoolResponse creates a response that only carries a boolean result
func NewBoolResponse(t MessageType, ok bool, err error) *Message {
	return withErr(&Message{
		MsgType: t,
		Ok:      ok,
	}, err)
}

// NewDBInfoResponse creates a new DBInfo response, the info is sent JSON encoded in the value
func NewDBInfoResponse(info db.DatabaseInfo, err error) *Message {
	msg := &Message{MsgType: MsgTDBInfo}
	if err == nil {
		msg.Value, err = json.Marshal(info)
	}
	return withErr(msg, err)
}

// NewErrorResponse creates a new Error response for requests that could not be attributed to a type
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Status:  StatusError,
		Err:     err,
	}
}

// NewOverflowResponse signals that a frame exceeded the frame limit of the sender or receiver
func NewOverflowResponse(t MessageType, msg string) *Message {
	return &Message{
		MsgType: t,
		Status:  StatusOverflow,
		Err:     msg,
	}
}

func withErr(msg *Message, err error) *Message {
	if err != nil {
		msg.Status = StatusError
		msg.Err = err.Error()
		msg.Ok = false
	}
	return msg
}

// --------------------------------------------------------------------------
// Remote Error
// --------------------------------------------------------------------------

// RemoteError is returned by clients if the server answered a request with StatusError
type RemoteError struct {
	Op  MessageType
	Msg string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s): %s", e.Op, e.Msg)
}

// --------------------------------------------------------------------------
// Status Definition
// --------------------------------------------------------------------------

// Status is the outcome of a request as reported by the server
type Status uint8

const (
	StatusOK       Status = iota // Request succeeded
	StatusNotFound               // Key does not exist (never an error)
	StatusOverflow               // A frame exceeded the frame limit
	StatusError                  // Request failed, see Message.Err
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusOverflow:
		return "overflow"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:       "unknown",
	MsgTGet:           "get",
	MsgTPut:           "put",
	MsgTPutIfAbsent:   "putIfAbsent",
	MsgTRemove:        "remove",
	MsgTPutAll:        "putAll",
	MsgTClear:         "clear",
	MsgTSize:          "size",
	MsgTContainsKey:   "containsKey",
	MsgTContainsValue: "containsValue",
	MsgTEntrySet:      "entrySet",
	MsgTKeySet:        "keySet",
	MsgTValues:        "values",
	MsgTNextChunk:     "nextChunk",
	MsgTDBInfo:        "dbInfo",
	MsgTClose:         "close",
	MsgTError:         "error",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsSnapshot reports whether the type starts a snapshot transfer
func (t MessageType) IsSnapshot() bool {
	return t == MsgTEntrySet || t == MsgTKeySet || t == MsgTValues
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota

	// Single entry operations

	MsgTGet           // Get a value by key
	MsgTPut           // Insert or update a key-value pair
	MsgTPutIfAbsent   // Insert a key-value pair if the key is absent
	MsgTRemove        // Remove a key-value pair
	MsgTContainsKey   // Check if a key exists
	MsgTContainsValue // Check if a value exists

	// Whole map operations

	MsgTSize   // Number of entries
	MsgTClear  // Remove all entries
	MsgTDBInfo // Metadata about the map

	// Bulk transfers

	MsgTPutAll    // One chunk of a bulk load
	MsgTEntrySet  // Start a snapshot transfer of all entries
	MsgTKeySet    // Start a snapshot transfer of all keys
	MsgTValues    // Start a snapshot transfer of all values
	MsgTNextChunk // Fetch the next chunk of a running snapshot transfer

	// Control messages

	MsgTClose // Client is about to disconnect
	MsgTError // Indicates an error occurred
)
