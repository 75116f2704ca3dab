// Package serializer encodes the common.Message payload carried inside every frame.
// Client and server must be configured with the same implementation.
//
// Implementations:
//
//   - binarySerializerImpl: custom format, a 4 byte header (type, status, field flags)
//     followed by the present fields only. It keeps the difference between nil and empty
//     byte slices, which matters for keys and values of bulk chunks (a KeySet chunk
//     carries entries without values). Recommended.
//
//   - jsonSerializerImpl: human readable, useful for debugging with tcpdump.
//
//   - gobSerializerImpl: Go's gob encoding. Empty byte slices arrive as nil, the remote
//     client compensates for that where the difference is visible.
//
// Deserialize never aliases its input, so transports may reuse their read buffers.
// All implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewGetRequest([]byte("k")))
//	// ... send data ...
//	var msg common.Message
//	err = s.Deserialize(received, &msg)
package serializer
