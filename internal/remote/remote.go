// Package remote clones repositories named on the command line so their
// trees can be ingested without a local checkout.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/panbanda/clonestream/internal/vcs"
)

// Source is a remote repository and an optional revision.
type Source struct {
	URL string // normalized git URL
	Ref string // branch, tag, or SHA (empty = default branch)
}

func (s *Source) String() string {
	if s.Ref == "" {
		return s.URL
	}
	return s.URL + "@" + s.Ref
}

// Parse detects a remote reference. It returns nil for existing local
// paths and for anything that does not look like a repository URL.
//
// Accepted forms, each optionally followed by @ref:
//
//	owner/repo                   (GitHub)
//	host.tld/owner/repo
//	https://host/owner/repo      (also http, ssh, git, file schemes)
//	git@host:owner/repo.git
func Parse(path string) (*Source, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, nil
	}

	path, ref, hasRef := splitRef(path)
	if hasRef && ref == "" {
		return nil, fmt.Errorf("empty ref in %q", path+"@")
	}

	var url string
	switch {
	case strings.Contains(path, "://"):
		url = path
	case isSCPLike(path):
		url = path
	case isGitHubShorthand(path):
		url = "https://github.com/" + path
	case isHostPath(path):
		url = "https://" + path
	default:
		return nil, nil
	}
	return &Source{URL: url, Ref: ref}, nil
}

// splitRef splits "url@ref". An @ that belongs to the user part of the URL
// is not a ref separator.
func splitRef(path string) (string, string, bool) {
	start := 0
	if i := strings.Index(path, "://"); i != -1 {
		start = i + 3
		if slash := strings.Index(path[start:], "/"); slash != -1 {
			start += slash
		}
	} else if isSCPLike(path) {
		start = strings.Index(path, ":")
	}
	idx := strings.Index(path[start:], "@")
	if idx == -1 {
		return path, "", false
	}
	idx += start
	return path[:idx], path[idx+1:], true
}

// isSCPLike matches user@host:path.
func isSCPLike(path string) bool {
	at := strings.Index(path, "@")
	colon := strings.Index(path, ":")
	return at > 0 && colon > at && !strings.Contains(path[:colon], "/")
}

// isGitHubShorthand returns true if path matches owner/repo.
func isGitHubShorthand(path string) bool {
	slashIdx := strings.Index(path, "/")
	if slashIdx <= 0 || slashIdx == len(path)-1 {
		return false
	}
	if strings.Count(path, "/") != 1 {
		return false
	}
	// A dot before the slash is a domain.
	return !strings.Contains(path[:slashIdx], ".")
}

// isHostPath matches host.tld/owner/repo.
func isHostPath(path string) bool {
	parts := strings.Split(path, "/")
	return len(parts) >= 3 && strings.Contains(parts[0], ".") && !strings.HasPrefix(parts[0], ".") &&
		parts[1] != "" && parts[2] != ""
}

// Clone fetches the repository into memory. A shallow clone fetches only
// the tip of Ref, or of the default branch when Ref is empty. Progress
// messages from the server go to progress, which may be nil.
func (s *Source) Clone(ctx context.Context, progress io.Writer, shallow bool) (vcs.Repository, error) {
	opts := &git.CloneOptions{URL: s.URL, Progress: progress}
	if !shallow {
		repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", s.URL, err)
		}
		return vcs.FromGit(repo, ""), nil
	}

	opts.Depth = 1
	opts.SingleBranch = true
	if s.Ref == "" {
		repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", s.URL, err)
		}
		return vcs.FromGit(repo, ""), nil
	}

	// A shallow clone needs a reference name, so try the ref as a branch
	// and then as a tag.
	var lastErr error
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(s.Ref),
		plumbing.NewTagReferenceName(s.Ref),
	} {
		opts.ReferenceName = name
		repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
		if err == nil {
			return vcs.FromGit(repo, ""), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("clone %s at %s: %w", s.URL, s.Ref, lastErr)
}

// Resolve returns the commit Ref names in repo, HEAD when Ref is empty.
// Branches of a clone exist only as remote-tracking refs, so origin/<ref>
// is tried as well.
func (s *Source) Resolve(repo vcs.Repository) (vcs.Commit, error) {
	commit, err := repo.Resolve(s.Ref)
	if err == nil || s.Ref == "" {
		return commit, err
	}
	if tracking, terr := repo.Resolve("origin/" + s.Ref); terr == nil {
		return tracking, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return vcs.Commit{}, fmt.Errorf("ref %q not found in %s", s.Ref, s.URL)
	}
	return vcs.Commit{}, err
}
