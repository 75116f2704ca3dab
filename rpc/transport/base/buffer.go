package base

import (
	"fmt"

	"github.com/ValentinKolb/smap/rpc/transport"
)

// Buffer is a growable byte buffer with an upper bound. Growing doubles the capacity
// (or grows to fit) and keeps the buffered bytes.
type Buffer struct {
	data []byte
	n    int
	max  int

	// onGrow is called after every reallocation
	onGrow func(from, to int)
}

// NewBuffer creates a buffer with the given initial capacity that never grows beyond max bytes
func NewBuffer(initial, max int) *Buffer {
	if initial <= 0 {
		initial = 1
	}
	if max < initial {
		max = initial
	}
	return &Buffer{
		data: make([]byte, initial),
		max:  max,
	}
}

// Len returns the number of buffered bytes
func (b *Buffer) Len() int { return b.n }

// Cap returns the current capacity
func (b *Buffer) Cap() int { return len(b.data) }

// Max returns the maximum capacity
func (b *Buffer) Max() int { return b.max }

// Bytes returns the buffered bytes. The slice is valid until the next call that modifies the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Reset empties the buffer but keeps its capacity
func (b *Buffer) Reset() { b.n = 0 }

// Grow makes room for n more bytes. It fails with transport.ErrPayloadTooLarge
// if that would exceed the maximum capacity; the buffer is unchanged then.
func (b *Buffer) Grow(n int) error {
	need := b.n + n
	if need <= len(b.data) {
		return nil
	}
	if n < 0 || need > b.max {
		return fmt.Errorf("%w: %d bytes exceed the limit of %d bytes", transport.ErrPayloadTooLarge, need, b.max)
	}

	size := len(b.data)
	for size < need {
		size *= 2
	}
	if size > b.max {
		size = b.max
	}

	data := make([]byte, size)
	copy(data, b.data[:b.n])
	from := len(b.data)
	b.data = data

	if b.onGrow != nil {
		b.onGrow(from, size)
	}
	return nil
}

// Write appends p to the buffer, growing it if necessary
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.Grow(len(p)); err != nil {
		return 0, err
	}
	copy(b.data[b.n:], p)
	b.n += len(p)
	return len(p), nil
}

// Extend appends n bytes to the buffer and returns them for the caller to fill
func (b *Buffer) Extend(n int) ([]byte, error) {
	if err := b.Grow(n); err != nil {
		return nil, err
	}
	p := b.data[b.n : b.n+n]
	b.n += n
	return p, nil
}
