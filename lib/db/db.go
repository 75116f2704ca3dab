package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplXMap Implementation = "xmap"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureGet           Feature = 1 << iota // Support for Get operations
	FeaturePut                               // Support for Put operations
	FeaturePutIfAbsent                       // Support for PutIfAbsent operations
	FeatureRemove                            // Support for Remove operations
	FeatureRange                             // Support for Range (snapshot) operations
	FeatureClear                             // Support for Clear operations
	FeatureSave                              // Support for Save operations
	FeatureLoad                              // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeaturePut:
		return "Put"
	case FeaturePutIfAbsent:
		return "PutIfAbsent"
	case FeatureRemove:
		return "Remove"
	case FeatureRange:
		return "Range"
	case FeatureClear:
		return "Clear"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

// Entry is a single key-value pair. Keys and values are opaque bytes, encoding
// them is the concern of the caller.
type Entry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// SizeBytes returns the number of payload bytes held by the entry
func (e Entry) SizeBytes() int {
	return len(e.Key) + len(e.Value)
}

type DatabaseInfo struct {
	Entries           int            `json:"entries"`
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// MapDB defines the storage engine hosted by a server for a single map.
// It mirrors the contract of an associative container: every write reports the
// value it replaced so callers can implement "return previous value" semantics.
// Implementations must be safe for concurrent use.
type MapDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or updates the entry for key and returns the replaced value, if any.
	Put(key, value []byte) (prev []byte, replaced bool)

	// PutIfAbsent inserts the entry only if key is not present.
	// It returns the existing value and true if the key was already present.
	PutIfAbsent(key, value []byte) (existing []byte, loaded bool)

	// Remove deletes the entry for key and returns the removed value, if any.
	Remove(key []byte) (prev []byte, removed bool)

	// Clear removes all entries.
	Clear()

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is a copy owned by the caller.
	Get(key []byte) (value []byte, loaded bool)

	// Size returns the number of entries.
	Size() int

	// Range calls fn for every entry until fn returns false. The slices passed to
	// fn must not be retained. Range is not a consistent snapshot under concurrent
	// writes, but every entry present for the whole call is visited exactly once.
	Range(fn func(key, value []byte) bool)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
