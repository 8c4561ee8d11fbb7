package cache

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names the compression of a blob.
type Codec string

const (
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// ParseCodec accepts "zstd" (also the empty string) and "lz4".
func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToLower(s)) {
	case "", CodecZstd:
		return CodecZstd, nil
	case CodecLZ4:
		return CodecLZ4, nil
	}
	return "", fmt.Errorf("unknown cache codec %q", s)
}

func compressor(codec Codec, w io.Writer) (io.WriteCloser, error) {
	switch codec {
	case CodecZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("unknown cache codec %q", codec)
}

func decompressor(codec Codec, r io.Reader) (io.Reader, func(), error) {
	switch codec {
	case CodecZstd, "":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case CodecLZ4:
		return lz4.NewReader(r), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown cache codec %q", codec)
}

// Pack archives the given paths, relative to root, into a compressed tar.
// Paths that do not exist are skipped; it returns the archived paths.
// Entries are written in sorted order so identical trees pack to identical
// bytes.
func Pack(root string, paths []string, codec Codec) ([]byte, []string, error) {
	var buf bytes.Buffer
	zw, err := compressor(codec, &buf)
	if err != nil {
		return nil, nil, err
	}
	tw := tar.NewWriter(zw)

	var packed []string
	for _, p := range sortedClean(paths) {
		full := filepath.Join(root, filepath.FromSlash(p))
		if _, err := os.Lstat(full); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := addTree(tw, root, full); err != nil {
			return nil, nil, fmt.Errorf("archiving %s: %w", p, err)
		}
		packed = append(packed, p)
	}

	if err := tw.Close(); err != nil {
		return nil, nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), packed, nil
}

func sortedClean(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{})
	for _, p := range paths {
		c := filepath.ToSlash(filepath.Clean(p))
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func addTree(tw *tar.Writer, root, start string) error {
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("path %s is outside %s", p, root)
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		// Stable output for identical content: directory times change
		// whenever children are extracted, so they are not recorded.
		hdr.ModTime = hdr.ModTime.Truncate(time.Second)
		if info.IsDir() {
			hdr.Name += "/"
			hdr.ModTime = time.Unix(0, 0)
		}
		hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}
		hdr.Uname, hdr.Gname = "", ""
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// Unpack extracts an archive produced by Pack under root. Entries that would
// land outside root are rejected.
func Unpack(root string, data []byte, codec Codec) error {
	r, closeFn, err := decompressor(codec, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		target := filepath.Join(root, filepath.FromSlash(hdr.Name))
		rel, err := filepath.Rel(root, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: entry %q escapes the workspace", ErrCorrupt, hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode)&fs.ModePerm|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := extractFile(tr, target, fs.FileMode(hdr.Mode)&fs.ModePerm); err != nil {
				return err
			}
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func extractFile(r io.Reader, target string, mode fs.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return f.Close()
}
