// Package driftfs is the Go SDK for the DriftFS distributed filesystem. It
// layers POSIX-compatible sessions, buffered file streams and path
// operations on top of the native DriftFS client library.
//
// A Session owns one native mount. Files opened from it are buffered
// streams with the usual read/write/seek contract; path operations (stat,
// listdir, makedirs, symlinks, xattrs) go straight to the native metadata
// calls with error translation.
//
// The SDK adds no locking of its own beyond session lifecycle bookkeeping:
// operations on distinct files are safe concurrently, concurrent operations
// on the same File must be serialized by the caller, matching the native
// client's guarantees.
package driftfs
