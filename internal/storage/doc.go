// Package storage persists run history.
//
// Two drivers share one contract:
//   - "file": one JSON document per run under the history directory
//   - "sqlite": a single SQLite database (pure Go driver)
//
// Reads are newest-first by start time; entries that started in the same
// millisecond come back in insertion order.
package storage
