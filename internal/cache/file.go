package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

const blobExt = ".blob"

// FileStore keeps entries under Dir as <dir>/<key[:2]>/<key>.blob. An entry
// is one file: a CBOR encoded Meta header followed by the blob. Entries are
// replaced with temp file and rename, so readers see either the old or the
// new entry, never a mix.
type FileStore struct {
	Dir string
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) paths(key string) (dir, entry string) {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	dir = filepath.Join(s.Dir, shard)
	return dir, filepath.Join(dir, key+blobExt)
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, err
	}
	_, entryPath := s.paths(key)

	raw, err := os.ReadFile(entryPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Meta{}, ErrNotFound
		}
		return nil, Meta{}, err
	}
	var meta Meta
	data, err := cbor.UnmarshalFirst(raw, &meta)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %s: header: %v", ErrCorrupt, key, err)
	}
	if err := verify(data, meta); err != nil {
		return nil, Meta{}, fmt.Errorf("%s: %w", key, err)
	}
	return data, meta, nil
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, meta Meta) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, entryPath := s.paths(key)

	if existing, size, err := readHeader(entryPath); err == nil && existing.Digest == meta.Digest && size == existing.Size {
		return false, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("creating shard directory: %w", err)
	}
	header, err := cbor.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("encoding metadata: %w", err)
	}
	entry := make([]byte, 0, len(header)+len(data))
	entry = append(append(entry, header...), data...)
	if err := writeFileAtomic(entryPath, entry); err != nil {
		return false, err
	}
	return true, nil
}

// readHeader decodes the Meta header of an entry and returns it with the
// size of the blob that follows it.
func readHeader(path string) (Meta, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Meta{}, 0, ErrNotFound
		}
		return Meta{}, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Meta{}, 0, err
	}
	dec := cbor.NewDecoder(f)
	var meta Meta
	if err := dec.Decode(&meta); err != nil {
		return Meta{}, 0, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	return meta, info.Size() - int64(dec.NumBytesRead()), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
