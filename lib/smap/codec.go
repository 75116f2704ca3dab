package smap

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"strconv"
)

// Codec converts keys or values of a Map to the opaque bytes stored on the server.
// Two equal values must encode to the same bytes if the codec is used for keys.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// CodecFuncs adapts a pair of functions to the Codec interface
type CodecFuncs[T any] struct {
	EncodeFunc func(v T) ([]byte, error)
	DecodeFunc func(data []byte) (T, error)
}

func (c CodecFuncs[T]) Encode(v T) ([]byte, error)    { return c.EncodeFunc(v) }
func (c CodecFuncs[T]) Decode(data []byte) (T, error) { return c.DecodeFunc(data) }

// String stores strings as their UTF-8 bytes
func String() Codec[string] {
	return CodecFuncs[string]{
		EncodeFunc: func(v string) ([]byte, error) { return []byte(v), nil },
		DecodeFunc: func(data []byte) (string, error) { return string(data), nil },
	}
}

// Bytes stores byte slices as they are (decoded values are copies)
func Bytes() Codec[[]byte] {
	return CodecFuncs[[]byte]{
		EncodeFunc: func(v []byte) ([]byte, error) {
			if v == nil {
				return []byte{}, nil
			}
			return v, nil
		},
		DecodeFunc: func(data []byte) ([]byte, error) { return bytes.Clone(data), nil },
	}
}

// Int stores integers in decimal notation, so they are readable with the CLI
func Int() Codec[int] {
	return CodecFuncs[int]{
		EncodeFunc: func(v int) ([]byte, error) { return strconv.AppendInt(nil, int64(v), 10), nil },
		DecodeFunc: func(data []byte) (int, error) {
			v, err := strconv.Atoi(string(data))
			if err != nil {
				return 0, fmt.Errorf("invalid int %q: %w", data, err)
			}
			return v, nil
		},
	}
}

// JSON stores any JSON encodable type, e.g. map valued values like map[string]string.
// JSON must not be used for map keys whose encoding is not canonical.
func JSON[T any]() Codec[T] {
	return CodecFuncs[T]{
		EncodeFunc: func(v T) ([]byte, error) { return json.Marshal(v) },
		DecodeFunc: func(data []byte) (T, error) {
			var v T
			err := json.Unmarshal(data, &v)
			return v, err
		},
	}
}

// Gob stores any gob encodable type
func Gob[T any]() Codec[T] {
	return CodecFuncs[T]{
		EncodeFunc: func(v T) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		DecodeFunc: func(data []byte) (T, error) {
			var v T
			err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
			return v, err
		},
	}
}
