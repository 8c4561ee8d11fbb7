// Package cachekey derives deterministic cache keys for matrix cells.
//
// A key is a composite of the cell's OS identity, architecture, toolchain
// fingerprint and lock-file content hash. Its string form is
//
//	<prefix>-<os>-<arch>-<digest>
//
// where digest is a domain-keyed BLAKE3 hash over all four components, so any
// change to the lock files produces a different key.
package cachekey

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/matrixgrid/internal/fsutil"
	"github.com/zeebo/blake3"
)

// DefaultPrefix is used when a job's cache declares none.
const DefaultPrefix = "cache"

type domainKey [32]byte

// Domain separation keys: ASCII domain names zero-padded to 32 bytes.
// Changing them invalidates every existing key.
var (
	keyDomain       = newDomainKey("matrixgrid.cachekey.key")
	lockDomain      = newDomainKey("matrixgrid.cachekey.lock")
	toolchainDomain = newDomainKey("matrixgrid.cachekey.toolchain")
)

func newDomainKey(name string) domainKey {
	var k domainKey
	copy(k[:], name)
	return k
}

// Inputs are the components of a cache key.
type Inputs struct {
	Prefix    string
	OS        string
	Arch      string
	Toolchain string
	LockHash  string
}

// Key is a derived cache key.
type Key struct {
	Inputs
	Digest string
}

// String returns the storage key.
func (k Key) String() string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return strings.Join([]string{Sanitize(prefix), Sanitize(k.OS), Sanitize(k.Arch), k.Digest}, "-")
}

// Derive computes the key for the given inputs. It is pure.
func Derive(in Inputs) Key {
	h := newHasher(keyDomain)
	for _, field := range []string{in.Prefix, in.OS, in.Arch, in.Toolchain, in.LockHash} {
		writeField(h, field)
	}
	return Key{Inputs: in, Digest: hex.EncodeToString(h.Sum(nil))}
}

// Fingerprint hashes an ordered list of toolchain descriptors.
func Fingerprint(parts ...string) string {
	h := newHasher(toolchainDomain)
	for _, p := range parts {
		writeField(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashLockFiles hashes the files under root matching patterns. Files are
// visited sorted by relative path and both path and content are length
// prefixed. It returns the hex digest and the matched relative paths.
func HashLockFiles(root string, patterns []string) (string, []string, error) {
	files, err := fsutil.MatchFiles(root, patterns)
	if err != nil {
		return "", nil, err
	}

	h := newHasher(lockDomain)
	for _, rel := range files {
		if err := hashFile(h, root, rel); err != nil {
			return "", nil, err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), files, nil
}

func hashFile(h hash.Hash, root, rel string) error {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", rel, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat lock file %s: %w", rel, err)
	}

	writeField(h, rel)
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(info.Size()))
	h.Write(size[:])
	n, err := io.Copy(h, f)
	if err != nil {
		return fmt.Errorf("reading lock file %s: %w", rel, err)
	}
	if n != info.Size() {
		return fmt.Errorf("lock file %s changed while hashing", rel)
	}
	return nil
}

func newHasher(key domainKey) *blake3.Hasher {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("cachekey: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return h
}

func writeField(h io.Writer, s string) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(s)))
	h.Write(size[:])
	io.WriteString(h, s)
}

// Sanitize maps a key component onto the characters safe for file names and
// object keys.
func Sanitize(s string) string {
	if s == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			return r
		}
		return '_'
	}, s)
}
