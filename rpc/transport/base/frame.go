package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/ValentinKolb/smap/rpc/transport"
)

// A frame has the format:
//   - 1 byte: magic (0xE2 request, 0xE3 response)
//   - 8 bytes: shardID (uint64, big endian)
//   - 8 bytes: correlationID (uint64, big endian)
//   - 4 bytes: payload length (uint32, big endian)
//   - N bytes: payload
const (
	frameHeaderSize = 21

	magicRequest  byte = 0xE2
	magicResponse byte = 0xE3
)

type frameHeader struct {
	magic         byte
	shardID       uint64
	correlationID uint64
	length        int
}

func putHeader(dst []byte, h frameHeader) {
	dst[0] = h.magic
	binary.BigEndian.PutUint64(dst[1:9], h.shardID)
	binary.BigEndian.PutUint64(dst[9:17], h.correlationID)
	binary.BigEndian.PutUint32(dst[17:21], uint32(h.length))
}

func parseHeader(src []byte) frameHeader {
	return frameHeader{
		magic:         src[0],
		shardID:       binary.BigEndian.Uint64(src[1:9]),
		correlationID: binary.BigEndian.Uint64(src[9:17]),
		length:        int(binary.BigEndian.Uint32(src[17:21])),
	}
}

// encodeFrame writes a complete frame into buf (after resetting it).
// maxPayload bounds the payload independent of the buffer limit.
func encodeFrame(buf *Buffer, magic byte, shardID, correlationID uint64, data []byte, maxPayload int) error {
	if len(data) > maxPayload {
		return fmt.Errorf("%w: request of %d bytes exceeds the frame limit of %d bytes",
			transport.ErrPayloadTooLarge, len(data), maxPayload)
	}

	buf.Reset()
	frame, err := buf.Extend(frameHeaderSize + len(data))
	if err != nil {
		return err
	}
	putHeader(frame, frameHeader{
		magic:         magic,
		shardID:       shardID,
		correlationID: correlationID,
		length:        len(data),
	})
	copy(frame[frameHeaderSize:], data)
	return nil
}

// writeFrame writes a frame without copying the payload. net.Buffers combines header and
// payload into a single writev call where the connection supports it.
func writeFrame(conn net.Conn, magic byte, shardID, correlationID uint64, data []byte) error {
	header := make([]byte, frameHeaderSize)
	putHeader(header, frameHeader{
		magic:         magic,
		shardID:       shardID,
		correlationID: correlationID,
		length:        len(data),
	})

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readHeader reads and parses a frame header using hdr as scratch space
func readHeader(r io.Reader, hdr []byte) (frameHeader, error) {
	if _, err := io.ReadFull(r, hdr[:frameHeaderSize]); err != nil {
		return frameHeader{}, err
	}
	return parseHeader(hdr), nil
}

// readPayload reads length bytes into buf (after resetting it), growing it if necessary
func readPayload(r io.Reader, buf *Buffer, length int) ([]byte, error) {
	buf.Reset()
	data, err := buf.Extend(length)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
