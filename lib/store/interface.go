package store

import (
	"fmt"

	"github.com/ValentinKolb/smap/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.MapDB

// IStore is the generic interface for interacting with a map of opaque byte keys and values.
// A missing key is never an error: reads report it through the boolean return value.
type IStore interface {
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key []byte) (value []byte, loaded bool, err error)
	// Put inserts or updates a key–value pair and returns the replaced value.
	// Implementations may elect not to report the previous value (replaced is false then).
	Put(key, value []byte) (prev []byte, replaced bool, err error)
	// PutIfAbsent inserts a key–value pair only if the key does not exist.
	// If the key exists, the existing value is returned and loaded is true.
	PutIfAbsent(key, value []byte) (existing []byte, loaded bool, err error)
	// Remove deletes a key–value pair and returns the removed value.
	// Implementations may elect not to report the previous value (removed is false then).
	Remove(key []byte) (prev []byte, removed bool, err error)
	// PutAll inserts or updates all given entries. Either all entries are handed to the
	// storage or an error is returned and none are.
	PutAll(entries []db.Entry) (err error)
	// Clear removes all entries.
	Clear() (err error)
	// Size returns the current number of entries.
	Size() (size int, err error)
	// ContainsKey reports whether the key is present.
	ContainsKey(key []byte) (ok bool, err error)
	// ContainsValue reports whether any entry holds the given value.
	ContainsValue(value []byte) (ok bool, err error)
	// Entries returns a snapshot of all entries.
	Entries() (entries []db.Entry, err error)
	// Keys returns a snapshot of all keys.
	Keys() (keys [][]byte, err error)
	// Values returns a snapshot of all values (one per entry, duplicates included).
	Values() (values [][]byte, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases all resources held by the store. Close is idempotent.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCClosed                              // 4: The store was already closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
