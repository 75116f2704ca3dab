package base

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ValentinKolb/smap/rpc/transport"
)

func TestBufferGrowKeepsContent(t *testing.T) {
	buf := NewBuffer(4, 64)

	var growths [][2]int
	buf.onGrow = func(from, to int) {
		growths = append(growths, [2]int{from, to})
	}

	if _, err := buf.Write([]byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.Cap() != 4 {
		t.Errorf("Expected capacity 4, got %d", buf.Cap())
	}

	// needs 3 + 10 bytes, 4 -> 8 -> 16
	if _, err := buf.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.Cap() != 16 {
		t.Errorf("Expected capacity 16, got %d", buf.Cap())
	}
	if !bytes.Equal(buf.Bytes(), []byte("abc0123456789")) {
		t.Errorf("Buffered bytes corrupted by growth: %q", buf.Bytes())
	}
	if len(growths) != 1 || growths[0] != [2]int{4, 16} {
		t.Errorf("Expected one growth from 4 to 16, got %v", growths)
	}
}

func TestBufferLimit(t *testing.T) {
	buf := NewBuffer(8, 20)

	if _, err := buf.Extend(20); err != nil {
		t.Fatalf("Extend to the limit failed: %v", err)
	}
	if buf.Cap() != 20 {
		t.Errorf("Expected capacity to be capped at 20, got %d", buf.Cap())
	}

	_, err := buf.Write([]byte{1})
	if !errors.Is(err, transport.ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 20 {
		t.Errorf("Failed write must not change the buffer, len is %d", buf.Len())
	}

	buf.Reset()
	if buf.Len() != 0 || buf.Cap() != 20 {
		t.Errorf("Reset must keep the capacity, got len=%d cap=%d", buf.Len(), buf.Cap())
	}
}

func TestFrameEncoding(t *testing.T) {
	buf := NewBuffer(8, 1024)
	payload := bytes.Repeat([]byte("x"), 100)

	if err := encodeFrame(buf, magicRequest, 7, 42, payload, 1000); err != nil {
		t.Fatalf("encodeFrame failed: %v", err)
	}
	if buf.Len() != frameHeaderSize+len(payload) {
		t.Fatalf("Expected frame of %d bytes, got %d", frameHeaderSize+len(payload), buf.Len())
	}

	r := bytes.NewReader(buf.Bytes())
	h, err := readHeader(r, make([]byte, frameHeaderSize))
	if err != nil {
		t.Fatalf("readHeader failed: %v", err)
	}
	if h.magic != magicRequest || h.shardID != 7 || h.correlationID != 42 || h.length != len(payload) {
		t.Errorf("Unexpected header %+v", h)
	}

	readBuf := NewBuffer(8, 1024)
	data, err := readPayload(r, readBuf, h.length)
	if err != nil {
		t.Fatalf("readPayload failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Payload mismatch")
	}
	if readBuf.Cap() != 128 {
		t.Errorf("Expected read buffer to grow to 128, got %d", readBuf.Cap())
	}
}

func TestFrameEncodingLimit(t *testing.T) {
	buf := NewBuffer(8, 1024)
	err := encodeFrame(buf, magicRequest, 1, 1, make([]byte, 101), 100)
	if !errors.Is(err, transport.ErrPayloadTooLarge) {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadPayloadShort(t *testing.T) {
	_, err := readPayload(bytes.NewReader([]byte("abc")), NewBuffer(8, 64), 10)
	if err == nil {
		t.Errorf("Expected error for truncated payload")
	}
}
