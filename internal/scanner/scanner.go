// Package scanner finds the files to ingest in a directory or a git tree.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/clonestream/internal/vcs"
	"github.com/panbanda/clonestream/pkg/config"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

// File is a file selected for ingestion.
type File struct {
	// Path locates the file for reading: a filesystem path or a tree path.
	Path string
	// Name is the corpus name: the slash-separated path relative to the
	// scanned root.
	Name string
}

// Scanner finds source files accepted by a pipeline policy.
type Scanner struct {
	config *config.Config
	policy *pipeline.Policy
}

// NewScanner creates a new file scanner. Nil arguments select the defaults.
func NewScanner(cfg *config.Config, policy *pipeline.Policy) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if policy == nil {
		policy = pipeline.DefaultPolicy()
	}
	return &Scanner{config: cfg, policy: policy}
}

// excluder matches paths against the configured patterns and, when enabled,
// the .gitignore files of the enclosing repository.
type excluder struct {
	dirs    []string
	config  gitignore.Matcher
	git     gitignore.Matcher
	gitBase []string
}

func (s *Scanner) newExcluder(root string) *excluder {
	ex := &excluder{dirs: s.config.Exclude.Dirs}

	var patterns []gitignore.Pattern
	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}
	if len(patterns) > 0 {
		ex.config = gitignore.NewMatcher(patterns)
	}

	if !s.config.Exclude.Gitignore || root == "" {
		return ex
	}
	gitRoot := findGitRoot(root)
	if gitRoot == "" {
		return ex
	}
	gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil)
	if err != nil || len(gitPatterns) == 0 {
		return ex
	}
	ex.git = gitignore.NewMatcher(gitPatterns)
	if rel, err := filepath.Rel(gitRoot, root); err == nil && rel != "." {
		ex.gitBase = strings.Split(filepath.ToSlash(rel), "/")
	}
	return ex
}

// excluded reports whether rel, a slash path relative to the scanned root,
// is excluded.
func (ex *excluder) excluded(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")
	if isDir && slices.Contains(ex.dirs, parts[len(parts)-1]) {
		return true
	}
	if !isDir {
		for _, dir := range parts[:len(parts)-1] {
			if slices.Contains(ex.dirs, dir) {
				return true
			}
		}
	}
	if ex.config != nil && ex.config.Match(parts, isDir) {
		return true
	}
	if ex.git != nil {
		full := append(slices.Clone(ex.gitBase), parts...)
		if ex.git.Match(full, isDir) {
			return true
		}
	}
	return false
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ScanDir recursively scans a directory for accepted files, sorted by name.
// Symlinks that leave the root are skipped.
func (s *Scanner) ScanDir(root string) ([]File, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	ex := s.newExcluder(absRoot)
	var files []File

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if ex.excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if ex.excluded(rel, false) || !s.policy.Accepts(rel) {
			return nil
		}
		files = append(files, File{Path: path, Name: rel})
		return nil
	})

	sortFiles(files)
	return files, walkErr
}

// ScanTree selects the accepted, non-excluded entries of a git tree, sorted
// by name. .gitignore files on disk are not consulted.
func (s *Scanner) ScanTree(entries []vcs.TreeEntry) []File {
	ex := s.newExcluder("")
	var files []File
	for _, e := range entries {
		if ex.excluded(e.Path, false) || !s.policy.Accepts(e.Path) {
			continue
		}
		files = append(files, File{Path: e.Path, Name: e.Path})
	}
	sortFiles(files)
	return files
}

// ScanFile checks if a single file should be ingested.
func (s *Scanner) ScanFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	return s.policy.Accepts(filepath.ToSlash(path)), nil
}

// ScanPaths expands each argument: directories are scanned, accepted files
// are kept as given.
func (s *Scanner) ScanPaths(paths []string) ([]File, error) {
	var files []File
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			found, err := s.ScanDir(p)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}
		if s.policy.Accepts(filepath.ToSlash(p)) {
			files = append(files, File{Path: p, Name: filepath.ToSlash(filepath.Clean(p))})
		}
	}
	return files, nil
}

func sortFiles(files []File) {
	slices.SortFunc(files, func(a, b File) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}
