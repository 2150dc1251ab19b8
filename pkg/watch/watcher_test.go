package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/clonestream/pkg/config"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		debounce time.Duration
		want     time.Duration
	}{
		{"default debounce", 0, DefaultDebounce},
		{"custom debounce", time.Second, time.Second},
		{"negative debounce defaults", -time.Second, DefaultDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWatcher(tmpDir, nil, WithDebounce(tt.debounce))
			if err != nil {
				t.Fatalf("NewWatcher() error = %v", err)
			}
			defer w.Stop()

			if w.debounce != tt.want {
				t.Errorf("debounce = %v, want %v", w.debounce, tt.want)
			}
			if w.config == nil || w.policy == nil {
				t.Error("defaults should be filled in")
			}
		})
	}
}

func TestHandleEvent_Filters(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	w, err := NewWatcher(root, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	events := []fsnotify.Event{
		{Name: filepath.Join(root, "A.java"), Op: fsnotify.Create},
		{Name: filepath.Join(root, "src", "B.java"), Op: fsnotify.Write},
		{Name: filepath.Join(root, "notes.txt"), Op: fsnotify.Write},
		{Name: filepath.Join(root, "C.java"), Op: fsnotify.Remove},
		{Name: filepath.Join(root, "build", "D.java"), Op: fsnotify.Write},
	}
	for _, e := range events {
		w.handleEvent(e)
	}

	if len(w.pending) != 2 {
		t.Fatalf("pending = %v, want A.java and src/B.java", w.pending)
	}

	if got := w.ready(time.Now()); len(got) != 0 {
		t.Errorf("ready() before the debounce = %v", got)
	}
	got := w.ready(time.Now().Add(time.Second))
	if len(got) != 2 || got[0].Name != "A.java" || got[1].Name != "src/B.java" {
		t.Errorf("ready() = %v", got)
	}
	if len(w.pending) != 0 {
		t.Error("ready() should drain pending changes")
	}
}

func TestHandleEvent_CustomPolicy(t *testing.T) {
	root := t.TempDir()
	policy, err := pipeline.NewPolicy("*.kt")
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(root, nil, WithPolicy(policy))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "A.java"), Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "a.kt"), Op: fsnotify.Create})
	if len(w.pending) != 1 {
		t.Errorf("pending = %v, want only a.kt", w.pending)
	}
}

func TestWatcher_Start(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0755); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(root, nil, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	changes := make(chan Change, 4)
	w.SetCallback(func(_ context.Context, c Change) { changes <- c })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	// Wait until the root is watched before writing.
	deadline := time.Now().Add(5 * time.Second)
	for len(w.WatchedDirs()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	for _, dir := range w.WatchedDirs() {
		if filepath.Base(dir) == "node_modules" {
			t.Error("excluded directory should not be watched")
		}
	}

	if err := os.WriteFile(filepath.Join(root, "A.java"), []byte("int a;\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.Name != "A.java" {
			t.Errorf("change = %+v, want A.java", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the change")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() = %v, want nil after cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}
