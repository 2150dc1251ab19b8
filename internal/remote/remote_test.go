package remote

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestParse_LocalPath(t *testing.T) {
	dir := t.TempDir()

	src, err := Parse(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src != nil {
		t.Errorf("expected nil for local path, got %+v", src)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantURL string
		wantRef string
	}{
		{"shorthand", "facebook/react", "https://github.com/facebook/react", ""},
		{"shorthand with tag", "facebook/react@v18.2.0", "https://github.com/facebook/react", "v18.2.0"},
		{"shorthand with slashed branch", "owner/repo@feature/x", "https://github.com/owner/repo", "feature/x"},
		{"host without scheme", "github.com/golang/go", "https://github.com/golang/go", ""},
		{"host with ref", "github.com/golang/go@go1.21.0", "https://github.com/golang/go", "go1.21.0"},
		{"https URL", "https://gitlab.com/group/project", "https://gitlab.com/group/project", ""},
		{"https URL with user", "https://bot@gitlab.com/group/project@main", "https://bot@gitlab.com/group/project", "main"},
		{"scp URL", "git@github.com:owner/repo.git", "git@github.com:owner/repo.git", ""},
		{"scp URL with ref", "git@github.com:owner/repo.git@abc123", "git@github.com:owner/repo.git", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src == nil {
				t.Fatal("expected Source, got nil")
			}
			if src.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", src.URL, tt.wantURL)
			}
			if src.Ref != tt.wantRef {
				t.Errorf("Ref = %q, want %q", src.Ref, tt.wantRef)
			}
		})
	}
}

func TestParse_NotRemote(t *testing.T) {
	for _, input := range []string{"src", "./missing/dir/here", "../x", "a/b/c", "/abs/missing"} {
		t.Run(input, func(t *testing.T) {
			src, err := Parse(input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src != nil {
				t.Errorf("Parse(%q) = %+v, want nil", input, src)
			}
		})
	}
}

func TestParse_EmptyRef(t *testing.T) {
	if _, err := Parse("owner/repo@"); err == nil {
		t.Error("expected an error for an empty ref")
	}
}

func TestSource_String(t *testing.T) {
	if got := (&Source{URL: "https://github.com/a/b"}).String(); got != "https://github.com/a/b" {
		t.Errorf("String() = %q", got)
	}
	if got := (&Source{URL: "https://github.com/a/b", Ref: "v1"}).String(); got != "https://github.com/a/b@v1" {
		t.Errorf("String() = %q", got)
	}
}

// initOrigin creates a repository with two commits and a "feature" branch
// at the first one. It returns the path and the first commit hash.
func initOrigin(t *testing.T) (string, plumbing.Hash) {
	t.Helper()
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("git-upload-pack not installed")
	}
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	commit := func(name, body string) plumbing.Hash {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatal(err)
		}
		h, err := wt.Commit("add "+name, &git.CommitOptions{
			Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
		})
		if err != nil {
			t.Fatal(err)
		}
		return h
	}

	first := commit("A.java", "int a;\n")
	commit("B.java", "int b;\n")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("feature"), first)); err != nil {
		t.Fatal(err)
	}
	return dir, first
}

func TestSource_Clone(t *testing.T) {
	dir, first := initOrigin(t)

	src := &Source{URL: dir}
	repo, err := src.Clone(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	head, err := src.Resolve(repo)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := head.Tree.File("B.java"); err != nil {
		t.Errorf("HEAD should contain B.java: %v", err)
	}

	src.Ref = "feature"
	feature, err := src.Resolve(repo)
	if err != nil {
		t.Fatalf("Resolve(feature) error = %v", err)
	}
	if feature.Hash != first.String() {
		t.Errorf("feature = %s, want %s", feature.Hash, first)
	}

	src.Ref = "missing"
	if _, err := src.Resolve(repo); err == nil {
		t.Error("expected an error for a missing ref")
	}
}
