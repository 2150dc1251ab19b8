// Package vcs provides version control system abstractions.
package vcs

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a path does not exist in a tree.
var ErrNotFound = errors.New("not found in tree")

// Opener opens git repositories.
type Opener interface {
	// PlainOpen opens an existing git repository.
	PlainOpen(path string) (Repository, error)
	// PlainOpenWithDetect opens a git repository, detecting .git in parent directories.
	PlainOpenWithDetect(path string) (Repository, error)
}

// Repository provides access to git repository operations.
type Repository interface {
	// Resolve returns the commit a revision ("HEAD", a branch, a tag or a
	// hash) points to.
	Resolve(rev string) (Commit, error)
	// RepoPath returns the root path of the repository.
	RepoPath() string
}

// Commit is a resolved revision.
type Commit struct {
	Hash    string
	Author  string
	When    time.Time
	Message string
	Tree    Tree
}

// TreeEntry represents a file in a git tree.
type TreeEntry struct {
	Path string
	Size int64
}

// Tree represents a git tree object.
type Tree interface {
	// Entries returns all regular files in the tree (recursively), in tree order.
	Entries() ([]TreeEntry, error)
	// File returns the contents of the file at path.
	File(path string) ([]byte, error)
}
