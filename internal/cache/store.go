package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

var (
	// ErrNotFound is returned by Get when the key has no entry.
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorrupt is returned by Get when an entry exists but is unreadable
	// or fails verification.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// Meta describes a stored blob.
type Meta struct {
	Key     string    `json:"key" cbor:"1,keyasint"`
	Digest  string    `json:"digest" cbor:"2,keyasint"`
	Size    int64     `json:"size" cbor:"3,keyasint"`
	Codec   Codec     `json:"codec" cbor:"4,keyasint"`
	Created time.Time `json:"created" cbor:"5,keyasint"`
}

// Store is a key to blob store. Implementations must be safe for concurrent
// use and replace entries atomically.
type Store interface {
	// Get returns the blob and its metadata, ErrNotFound or ErrCorrupt.
	Get(ctx context.Context, key string) ([]byte, Meta, error)
	// Put stores data under key. It returns false without writing when an
	// entry with the same digest is already present.
	Put(ctx context.Context, key string, data []byte, meta Meta) (bool, error)
}

// Digest returns the hex BLAKE3 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// verify checks a blob against its metadata.
func verify(data []byte, meta Meta) error {
	if meta.Size != int64(len(data)) {
		return fmt.Errorf("%w: size mismatch", ErrCorrupt)
	}
	if Digest(data) != meta.Digest {
		return fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return nil
}
