package serializer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/ValentinKolb/smap/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	1 byte MsgType | 1 byte Status | 2 bytes flags | optional fields in flag order
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey       uint16 = 1 << 0
	hasValue     uint16 = 1 << 1
	hasEntries   uint16 = 1 << 2
	hasSeq       uint16 = 1 << 3
	hasCount     uint16 = 1 << 4
	hasErr       uint16 = 1 << 5
	flagMore     uint16 = 1 << 6
	flagWantPrev uint16 = 1 << 7
	flagOk       uint16 = 1 << 8
)

const (
	headerSize = 4
	// nilLen marks a nil byte slice inside an entry
	nilLen = math.MaxUint32
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	result[0] = byte(msg.MsgType)
	result[1] = byte(msg.Status)

	var flags uint16
	pos := headerSize

	if msg.Key != nil {
		flags |= hasKey
		pos = putBytes(result, pos, msg.Key)
	}

	if msg.Value != nil {
		flags |= hasValue
		pos = putBytes(result, pos, msg.Value)
	}

	if msg.Entries != nil {
		flags |= hasEntries
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Entries)))
		pos += 4
		for _, e := range msg.Entries {
			pos = putNullableBytes(result, pos, e.Key)
			pos = putNullableBytes(result, pos, e.Value)
		}
	}

	if msg.Seq > 0 {
		flags |= hasSeq
		binary.BigEndian.PutUint32(result[pos:pos+4], msg.Seq)
		pos += 4
	}

	if msg.Count > 0 {
		flags |= hasCount
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Count)
		pos += 8
	}

	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}

	// Boolean fields are encoded in the flags only
	if msg.More {
		flags |= flagMore
	}
	if msg.WantPrev {
		flags |= flagWantPrev
	}
	if msg.Ok {
		flags |= flagOk
	}

	binary.BigEndian.PutUint16(result[2:4], flags)

	if pos != len(result) {
		return nil, fmt.Errorf("size mismatch: wrote %d of %d bytes", pos, len(result))
	}
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{
		MsgType: common.MessageType(data[0]),
		Status:  common.Status(data[1]),
	}
	flags := binary.BigEndian.Uint16(data[2:4])
	pos := headerSize

	var err error

	if flags&hasKey != 0 {
		if msg.Key, pos, err = readBytes(data, pos, "key"); err != nil {
			return err
		}
	}

	if flags&hasValue != 0 {
		if msg.Value, pos, err = readBytes(data, pos, "value"); err != nil {
			return err
		}
	}

	if flags&hasEntries != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for entry count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		// every entry takes at least 8 bytes
		if uint64(count)*8 > uint64(len(data)-pos) {
			return fmt.Errorf("data too short for %d entries", count)
		}

		msg.Entries = make([]db.Entry, count)
		for i := range msg.Entries {
			if msg.Entries[i].Key, pos, err = readNullableBytes(data, pos, "entry key"); err != nil {
				return err
			}
			if msg.Entries[i].Value, pos, err = readNullableBytes(data, pos, "entry value"); err != nil {
				return err
			}
		}
	}

	if flags&hasSeq != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for Seq")
		}
		msg.Seq = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	if flags&hasCount != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for Count")
		}
		msg.Count = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}

	if flags&hasErr != 0 {
		var errBytes []byte
		if errBytes, pos, err = readBytes(data, pos, "error"); err != nil {
			return err
		}
		msg.Err = string(errBytes)
	}

	msg.More = flags&flagMore != 0
	msg.WantPrev = flags&flagWantPrev != 0
	msg.Ok = flags&flagOk != 0

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.Key != nil {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Entries != nil {
		size += 4
		for _, e := range msg.Entries {
			size += 8 + len(e.Key) + len(e.Value)
		}
	}
	if msg.Seq > 0 {
		size += 4
	}
	if msg.Count > 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	return size
}

func putBytes(dst []byte, pos int, b []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(b)))
	pos += 4
	return pos + copy(dst[pos:], b)
}

func putNullableBytes(dst []byte, pos int, b []byte) int {
	if b == nil {
		binary.BigEndian.PutUint32(dst[pos:pos+4], nilLen)
		return pos + 4
	}
	return putBytes(dst, pos, b)
}

// readBytes reads a length prefixed byte slice and returns a copy (never nil)
func readBytes(data []byte, pos int, what string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", what)
	}
	n := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if uint64(n) > uint64(len(data)-pos) {
		return nil, pos, fmt.Errorf("data too short for %s data", what)
	}
	out := make([]byte, n)
	copy(out, data[pos:pos+int(n)])
	return out, pos + int(n), nil
}

func readNullableBytes(data []byte, pos int, what string) ([]byte, int, error) {
	if pos+4 <= len(data) && binary.BigEndian.Uint32(data[pos:pos+4]) == nilLen {
		return nil, pos + 4, nil
	}
	return readBytes(data, pos, what)
}
