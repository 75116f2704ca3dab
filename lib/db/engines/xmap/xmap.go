package xmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ValentinKolb/smap/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum    = "XMAPDB\x00\x00" // File format identifier
	xmapVersion = 1                 // Snapshot format version
)

// supportedFeatures lists every feature the engine implements
const supportedFeatures = db.FeatureGet | db.FeaturePut | db.FeaturePutIfAbsent | db.FeatureRemove |
	db.FeatureRange | db.FeatureClear | db.FeatureSave | db.FeatureLoad

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// xmapImpl stores entries in a single xsync.MapOf keyed by the string form of the key
type xmapImpl struct {
	data      *xsync.MapOf[string, []byte]
	sizeBytes atomic.Int64 // estimated payload size (keys + values)
}

// DBOptions configures the engine during initialization
type DBOptions struct {
	PresizeEntries int // Initial capacity hint (0 = xsync default)
}

// NewXMapDB creates a new in-memory engine with the specified options (optional)
func NewXMapDB(opts *DBOptions) db.MapDB {
	var data *xsync.MapOf[string, []byte]
	if opts != nil && opts.PresizeEntries > 0 {
		data = xsync.NewMapOf[string, []byte](xsync.WithPresize(opts.PresizeEntries))
	} else {
		data = xsync.NewMapOf[string, []byte]()
	}
	return &xmapImpl{data: data}
}

// --------------------------------------------------------------------------
// Write Operations (docu see db.MapDB)
// --------------------------------------------------------------------------

func (x *xmapImpl) Put(key, value []byte) ([]byte, bool) {
	v := clone(value)
	prev, replaced := x.data.LoadAndStore(string(key), v)
	if replaced {
		x.sizeBytes.Add(int64(len(v) - len(prev)))
	} else {
		x.sizeBytes.Add(int64(len(key) + len(v)))
	}
	return prev, replaced
}

func (x *xmapImpl) PutIfAbsent(key, value []byte) ([]byte, bool) {
	existing, loaded := x.data.LoadOrStore(string(key), clone(value))
	if loaded {
		return clone(existing), true
	}
	x.sizeBytes.Add(int64(len(key) + len(value)))
	return nil, false
}

func (x *xmapImpl) Remove(key []byte) ([]byte, bool) {
	prev, removed := x.data.LoadAndDelete(string(key))
	if removed {
		x.sizeBytes.Add(-int64(len(key) + len(prev)))
	}
	return prev, removed
}

func (x *xmapImpl) Clear() {
	x.data.Clear()
	x.sizeBytes.Store(0)
}

// --------------------------------------------------------------------------
// Query Operations (docu see db.MapDB)
// --------------------------------------------------------------------------

func (x *xmapImpl) Get(key []byte) ([]byte, bool) {
	v, ok := x.data.Load(string(key))
	if !ok {
		return nil, false
	}
	return clone(v), true
}

func (x *xmapImpl) Size() int {
	return x.data.Size()
}

func (x *xmapImpl) Range(fn func(key, value []byte) bool) {
	x.data.Range(func(k string, v []byte) bool {
		return fn([]byte(k), v)
	})
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a fuzzy snapshot with the format:
// magic (8 bytes), version (1 byte), count (8 bytes), then per entry
// key length (4 bytes), key, value length (4 bytes), value.
// The count is written last-known; entries added during the save may be skipped.
func (x *xmapImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Collect a copy first so the count in the header matches the body
	entries := make([]db.Entry, 0, x.data.Size())
	x.data.Range(func(k string, v []byte) bool {
		entries = append(entries, db.Entry{Key: []byte(k), Value: v})
		return true
	})

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := bw.WriteByte(xmapVersion); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	var lenBuf [4]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Key)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(e.Key); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.Value)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(e.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load replaces the current content with a snapshot written by Save
func (x *xmapImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magic := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if string(magic) != magicNum {
		return fmt.Errorf("invalid snapshot header %q", magic)
	}

	version, err := br.ReadByte()
	if err != nil {
		return err
	}
	if version != xmapVersion {
		return fmt.Errorf("unsupported snapshot version %d (expected %d)", version, xmapVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	x.Clear()

	var lenBuf [4]byte
	readField := func() ([]byte, error) {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, err
		}
		field := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(br, field); err != nil {
			return nil, err
		}
		return field, nil
	}

	for i := uint64(0); i < count; i++ {
		key, err := readField()
		if err != nil {
			return fmt.Errorf("failed to read key of entry %d: %w", i, err)
		}
		value, err := readField()
		if err != nil {
			return fmt.Errorf("failed to read value of entry %d: %w", i, err)
		}
		x.data.Store(string(key), value)
		x.sizeBytes.Add(int64(len(key) + len(value)))
	}

	return nil
}

// --------------------------------------------------------------------------
// Feature Support
// --------------------------------------------------------------------------

func (x *xmapImpl) SupportsFeature(feature db.Feature) bool {
	return feature&supportedFeatures == feature
}

func (x *xmapImpl) GetInfo() db.DatabaseInfo {
	features := make([]db.Feature, 0, 8)
	for f := db.FeatureGet; f <= db.FeatureLoad; f <<= 1 {
		if x.SupportsFeature(f) {
			features = append(features, f)
		}
	}
	return db.DatabaseInfo{
		Entries:           x.data.Size(),
		SizeBytes:         int(x.sizeBytes.Load()),
		DbType:            db.ImplXMap,
		SupportedFeatures: features,
	}
}

func (x *xmapImpl) Close() error {
	x.Clear()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// clone returns a copy of b that is never nil, empty values stay distinguishable from absent ones
func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
