// Package testing provides standardised tests and benchmarks for
// implementations of the entitylock.IEntityLocker interface.
//
// The package contains:
//   - testing: A conformance suite for mutual exclusion, isolation, reentrancy,
//     deadlock prevention, bounded waits and interruption
//   - benchmark: Throughput of uncontended, contended and reentrant locking
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() entitylock.IEntityLocker[int] {
//		return entitylock.New[int](nil)
//	}
//
//	// Running the standard test suite
//	locktesting.RunEntityLockerTests(t, "EntityLocker", factory)
//
//	// Running performance benchmarks
//	locktesting.RunEntityLockerBenchmarks(b, "EntityLocker", factory)
package testing
