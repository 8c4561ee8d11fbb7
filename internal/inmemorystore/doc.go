// Package inmemorystore provides a thread-safe, in-memory store of live cell
// states. The executor writes to it as cells progress; the status endpoint
// reads snapshots from it.
package inmemorystore
