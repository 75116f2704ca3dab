package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/smap/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTPut         CommandType = iota // Insert or update an entry.
	CommandTPutIfAbsent                    // Insert an entry if it does not exist.
	CommandTRemove                         // Remove an entry.
	CommandTPutAll                         // Insert or update a batch of entries.
	CommandTClear                          // Remove all entries.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPut:
		return "Put"
	case CommandTPutIfAbsent:
		return "PutIfAbsent"
	case CommandTRemove:
		return "Remove"
	case CommandTPutAll:
		return "PutAll"
	case CommandTClear:
		return "Clear"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTPut, CommandTPutAll:
		return db.FeaturePut, nil
	case CommandTPutIfAbsent:
		return db.FeaturePutIfAbsent, nil
	case CommandTRemove:
		return db.FeatureRemove, nil
	case CommandTClear:
		return db.FeatureClear, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type    CommandType
	Key     []byte
	Value   []byte
	Entries []db.Entry // only used by CommandTPutAll
}

const headerSize = 1 + 4 + 4 + 4 // Type + KeyLen + ValueLen + EntryCount

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerSize + len(command.Key) + len(command.Value)
	for _, e := range command.Entries {
		size += 8 + len(e.Key) + len(e.Value)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for key length (big endian), N bytes for key data,
// 4 bytes for value length (big endian), N bytes for value data,
// 4 bytes for the number of entries (big endian),
// per entry: 4 bytes key length, key, 4 bytes value length, value
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	off := 1
	off = putBytes(result, off, command.Key)
	off = putBytes(result, off, command.Value)

	binary.BigEndian.PutUint32(result[off:], uint32(len(command.Entries)))
	off += 4
	for _, e := range command.Entries {
		off = putBytes(result, off, e.Key)
		off = putBytes(result, off, e.Value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
// The returned slices are copies and do not alias data.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	off := 1

	var err error
	if command.Key, off, err = readBytes(data, off, "key"); err != nil {
		return err
	}
	if command.Value, off, err = readBytes(data, off, "value"); err != nil {
		return err
	}

	if len(data) < off+4 {
		return fmt.Errorf("data too short for entry count")
	}
	count := binary.BigEndian.Uint32(data[off:])
	off += 4

	// every entry needs at least 8 bytes, reject counts that cannot fit
	if uint64(count)*8 > uint64(len(data)-off) {
		return fmt.Errorf("data too short for %d entries", count)
	}

	command.Entries = nil
	if count > 0 {
		command.Entries = make([]db.Entry, count)
		for i := range command.Entries {
			if command.Entries[i].Key, off, err = readBytes(data, off, "entry key"); err != nil {
				return err
			}
			if command.Entries[i].Value, off, err = readBytes(data, off, "entry value"); err != nil {
				return err
			}
		}
	}

	if off != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-off)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func putBytes(dst []byte, off int, b []byte) int {
	binary.BigEndian.PutUint32(dst[off:], uint32(len(b)))
	off += 4
	return off + copy(dst[off:], b)
}

func readBytes(data []byte, off int, what string) ([]byte, int, error) {
	if len(data) < off+4 {
		return nil, off, fmt.Errorf("data too short for %s length", what)
	}
	n := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if len(data)-off < n {
		return nil, off, fmt.Errorf("data too short for %s of length %d", what, n)
	}
	out := make([]byte, n)
	copy(out, data[off:off+n])
	return out, off + n, nil
}
