package serializer

import "github.com/ValentinKolb/smap/rpc/common"

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message
	// It takes a byte array and a pointer to a Message as parameters.
	// The message must not alias b after the call, b may be reused by the caller.
	// It returns an error if any
	Deserialize(b []byte, msg *common.Message) error
}
