package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet           QueryType = iota // Retrieve an entry by key.
	QueryTContainsKey                    // Check if a key is present.
	QueryTContainsValue                  // Check if any entry holds a value.
	QueryTSize                           // Count the entries.
	QueryTEntries                        // Snapshot all entries.
	QueryTKeys                           // Snapshot all keys.
	QueryTValues                         // Snapshot all values.
	QueryTGetDBInfo                      // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTContainsKey:
		return "ContainsKey"
	case QueryTContainsValue:
		return "ContainsValue"
	case QueryTSize:
		return "Size"
	case QueryTEntries:
		return "Entries"
	case QueryTKeys:
		return "Keys"
	case QueryTValues:
		return "Values"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type  QueryType // The type of Query to perform.
	Key   []byte    // The key for the Query (empty for most queries).
	Value []byte    // The value for QueryTContainsValue.
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types or predefined structs (bool, int, []db.Entry, db.DatabaseInfo).
type QueryResult struct {
	Ok    bool
	Value []byte
}
