package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/clonestream/internal/vcs"
)

func TestFilesystemSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "A.java"), []byte("int a;"), 0644))

	src := NewFilesystem(dir)
	content, err := src.Read("src/A.java")
	require.NoError(t, err)
	assert.Equal(t, "int a;", string(content))

	content, err = NewFilesystem("").Read(filepath.Join(dir, "src", "A.java"))
	require.NoError(t, err)
	assert.Equal(t, "int a;", string(content))

	_, err = src.Read("nonexistent.java")
	assert.Error(t, err)
}

type mapTree map[string]string

func (m mapTree) Entries() ([]vcs.TreeEntry, error) {
	var out []vcs.TreeEntry
	for p, body := range m {
		out = append(out, vcs.TreeEntry{Path: p, Size: int64(len(body))})
	}
	return out, nil
}

func (m mapTree) File(path string) ([]byte, error) {
	body, ok := m[path]
	if !ok {
		return nil, vcs.ErrNotFound
	}
	return []byte(body), nil
}

func TestTreeSource(t *testing.T) {
	src := NewTree(mapTree{"src/A.java": "int a;"})

	content, err := src.Read("src/A.java")
	require.NoError(t, err)
	assert.Equal(t, "int a;", string(content))

	_, err = src.Read("src/B.java")
	assert.ErrorIs(t, err, vcs.ErrNotFound)
}

func TestLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Big.java"), []byte("0123456789"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Small.java"), []byte("int a;"), 0644))

	fs := NewFilesystem(dir)
	assert.Same(t, fs, Limit(fs, 0), "no limit returns the source")

	limited := Limit(fs, 8)
	content, err := limited.Read("Small.java")
	require.NoError(t, err)
	assert.Equal(t, "int a;", string(content))

	_, err = limited.Read("Big.java")
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(10), tooLarge.Size)
	assert.Equal(t, int64(8), tooLarge.Limit)

	// Tree sources cannot stat, so the check happens after the read.
	tree := Limit(NewTree(mapTree{"Big.java": "0123456789"}), 8)
	_, err = tree.Read("Big.java")
	require.ErrorAs(t, err, &tooLarge)
}
