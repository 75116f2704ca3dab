// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the db.MapDB interface.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.MapDB {
//		return NewMyEngine()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunMapDBTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunMapDBBenchmarks(b, "MyEngine", factory)
package testing
