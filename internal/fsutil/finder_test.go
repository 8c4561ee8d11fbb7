package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o600))
	}
}

func TestFindFilesByExtension(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	writeTree(t, root, "ci.hcl", "nested/lint.hcl", "nested/wf.yml", "README.md")
	single := filepath.Join(root, "ci.hcl")

	// --- Act ---
	files, err := FindFilesByExtension([]string{root, single, filepath.Join(root, "missing")}, ".hcl")

	// --- Assert ---
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "ci.hcl"),
		filepath.Join(root, "nested", "lint.hcl"),
	}, files)

	yamlFiles, err := FindFilesByExtension([]string{root}, ".yml", ".yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "nested", "wf.yml")}, yamlFiles)
}

func TestMatchFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root,
		"Cargo.lock",
		"crates/a/Cargo.lock",
		"crates/a/Cargo.toml",
		"go.sum",
		".git/Cargo.lock",
	)

	cases := map[string]struct {
		patterns []string
		want     []string
	}{
		"top level only": {[]string{"Cargo.lock"}, []string{"Cargo.lock"}},
		"any depth":      {[]string{"**/Cargo.lock"}, []string{"Cargo.lock", "crates/a/Cargo.lock"}},
		"single star":    {[]string{"crates/*/Cargo.*"}, []string{"crates/a/Cargo.lock", "crates/a/Cargo.toml"}},
		"several":        {[]string{"go.sum", "./Cargo.lock"}, []string{"Cargo.lock", "go.sum"}},
		"no patterns":    {nil, nil},
	}
	for name, tc := range cases {
		got, err := MatchFiles(root, tc.patterns)
		require.NoError(t, err, name)
		assert.Equal(t, tc.want, got, name)
	}
}

func TestCopyTree(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "src", "deep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "src", "deep", "main.rs"), []byte("fn main() {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "run.sh"), []byte("#!/bin/sh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.Symlink("run.sh", filepath.Join(src, "link.sh")))
	dst := filepath.Join(t.TempDir(), "copy")

	// --- Act ---
	err := CopyTree(src, dst, func(rel string) bool { return rel == ".git" })

	// --- Assert ---
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dst, "src", "deep", "main.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}", string(got))
	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	link, err := os.Readlink(filepath.Join(dst, "link.sh"))
	require.NoError(t, err)
	assert.Equal(t, "run.sh", link)
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
}
