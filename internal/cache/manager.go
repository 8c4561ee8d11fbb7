package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vk/matrixgrid/internal/ctxlog"
)

// Status is the outcome of one cache operation.
type Status string

const (
	StatusHit       Status = "hit"
	StatusMiss      Status = "miss"
	StatusCorrupt   Status = "corrupt"
	StatusSaved     Status = "saved"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// Manager restores and saves the cached paths of cells.
type Manager struct {
	Store     Store
	Codec     Codec
	Workspace string
}

// Restore extracts the entry for key into the workspace. It never fails the
// cell: every problem is reported through the returned status and logged.
func (m *Manager) Restore(ctx context.Context, key string) Status {
	logger := ctxlog.FromContext(ctx).With("cache_key", key)

	data, meta, err := m.Store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info("Cache miss.")
		return StatusMiss
	case errors.Is(err, ErrCorrupt):
		logger.Warn("Cache entry corrupt, treating as miss.", "event", "cache-corrupt", "error", err)
		return StatusCorrupt
	case err != nil:
		logger.Warn("Cache read failed, treating as miss.", "error", err)
		return StatusError
	}

	if err := Unpack(m.Workspace, data, meta.Codec); err != nil {
		if errors.Is(err, ErrCorrupt) {
			logger.Warn("Cache entry corrupt, treating as miss.", "event", "cache-corrupt", "error", err)
			return StatusCorrupt
		}
		logger.Warn("Cache restore failed.", "error", err)
		return StatusError
	}
	logger.Info("♻️ Cache restored.", "size", meta.Size, "codec", meta.Codec)
	return StatusHit
}

// Save packs paths and stores them under key. Identical content already
// stored under the key is left alone. A cancelled context saves nothing.
func (m *Manager) Save(ctx context.Context, key string, paths []string) Status {
	logger := ctxlog.FromContext(ctx).With("cache_key", key)
	if ctx.Err() != nil {
		logger.Debug("Context done, not saving cache.")
		return StatusSkipped
	}

	codec := m.Codec
	if codec == "" {
		codec = CodecZstd
	}
	data, packed, err := Pack(m.Workspace, paths, codec)
	if err != nil {
		logger.Warn("Packing cache paths failed.", "error", err)
		return StatusError
	}
	if len(packed) == 0 {
		logger.Info("No cache paths exist, nothing to save.", "paths", paths)
		return StatusSkipped
	}

	meta := Meta{
		Key:     key,
		Digest:  Digest(data),
		Size:    int64(len(data)),
		Codec:   codec,
		Created: time.Now().UTC(),
	}
	written, err := m.Store.Put(ctx, key, data, meta)
	if err != nil {
		logger.Warn("Cache write failed.", "error", err)
		return StatusError
	}
	if !written {
		logger.Info("Cache entry unchanged.", "digest", meta.Digest)
		return StatusUnchanged
	}
	logger.Info("💾 Cache saved.", "size", meta.Size, "paths", packed)
	return StatusSaved
}
