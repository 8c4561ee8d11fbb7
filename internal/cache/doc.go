// Package cache stores and restores the cached paths of a cell.
//
// Entries are immutable by key: a blob is a compressed tar of the declared
// paths (zstd or lz4) and its metadata carries a BLAKE3 content digest. Reads
// are best-effort; a missing entry is a miss and an entry whose digest does
// not verify is reported as ErrCorrupt so callers can log it distinctly and
// carry on as if it were a miss. Writing the same content twice is a no-op.
//
// Three stores are provided: FileStore on a local directory, MemoryStore for
// tests, and S3Store on any S3-compatible object store through minio-go.
package cache
