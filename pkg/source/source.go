// Package source reads the contents of files to ingest.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/panbanda/clonestream/internal/vcs"
)

// ContentSource provides file content from a specific source.
type ContentSource interface {
	// Read returns the content of the file at path.
	Read(path string) ([]byte, error)
}

// FilesystemSource reads files from the local filesystem, relative to an
// optional root.
type FilesystemSource struct {
	root string
}

// NewFilesystem creates a source that reads from the filesystem. Relative
// paths are resolved against root when it is non-empty.
func NewFilesystem(root string) *FilesystemSource {
	return &FilesystemSource{root: root}
}

func (f *FilesystemSource) resolve(path string) string {
	if f.root != "" && !filepath.IsAbs(path) {
		return filepath.Join(f.root, filepath.FromSlash(path))
	}
	return path
}

// Read implements ContentSource.
func (f *FilesystemSource) Read(path string) ([]byte, error) {
	return os.ReadFile(f.resolve(path))
}

// Size returns the size of the file on disk without reading it.
func (f *FilesystemSource) Size(path string) (int64, error) {
	info, err := os.Stat(f.resolve(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// TreeSource reads files from a git tree.
// It is safe for concurrent use by multiple goroutines.
type TreeSource struct {
	tree vcs.Tree
	mu   sync.Mutex
}

// NewTree creates a source that reads from a git tree.
func NewTree(tree vcs.Tree) *TreeSource {
	return &TreeSource{tree: tree}
}

// Read implements ContentSource.
func (t *TreeSource) Read(path string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.File(path)
}

// TooLargeError reports a file over the limit of a Limit source.
type TooLargeError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: file size %d exceeds limit %d", e.Path, e.Size, e.Limit)
}

// sizer is implemented by sources that can report a size before reading.
type sizer interface {
	Size(path string) (int64, error)
}

type limitedSource struct {
	src ContentSource
	max int64
}

// Limit wraps src so that files larger than max bytes fail with a
// *TooLargeError. Sources that can stat a file are checked before the read.
// A max of zero or less returns src unchanged.
func Limit(src ContentSource, max int64) ContentSource {
	if max <= 0 {
		return src
	}
	return &limitedSource{src: src, max: max}
}

func (l *limitedSource) Read(path string) ([]byte, error) {
	if sz, ok := l.src.(sizer); ok {
		if n, err := sz.Size(path); err == nil && n > l.max {
			return nil, &TooLargeError{Path: path, Size: n, Limit: l.max}
		}
	}
	data, err := l.src.Read(path)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.max {
		return nil, &TooLargeError{Path: path, Size: int64(len(data)), Limit: l.max}
	}
	return data, nil
}
