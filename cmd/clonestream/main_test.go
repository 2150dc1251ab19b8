package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/clonestream/internal/output"
	"github.com/panbanda/clonestream/pkg/config"
	"github.com/panbanda/clonestream/pkg/models"
)

// run executes the CLI with args and returns what it wrote to App.Writer.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"clonestream"}, args...))
	return stdout.String(), err
}

func TestGetPaths(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{"no args defaults to current dir", nil, []string{"."}},
		{"single path", []string{"/foo/bar"}, []string{"/foo/bar"}},
		{"multiple paths", []string{"/foo", "/bar"}, []string{"/foo", "/bar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			app := &cli.App{Action: func(c *cli.Context) error {
				got = getPaths(c)
				return nil
			}}
			if err := app.Run(append([]string{"test"}, tt.args...)); err != nil {
				t.Fatal(err)
			}
			if strings.Join(got, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("getPaths() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// probeConfig runs loadConfig under the real global flags.
func probeConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var (
		cfg     *config.Config
		loadErr error
	)
	app := newApp()
	app.Commands = append(app.Commands, &cli.Command{
		Name: "probe",
		Action: func(c *cli.Context) error {
			cfg, loadErr = loadConfig(c)
			return nil
		},
	})
	if err := app.Run(append(append([]string{"clonestream"}, args...), "probe")); err != nil {
		t.Fatal(err)
	}
	return cfg, loadErr
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := probeConfig(t, "--chunk-size", "7", "--verbose")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Detector.ChunkSize != 7 {
		t.Errorf("ChunkSize = %d, want 7", cfg.Detector.ChunkSize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadConfig_ChunkSizeEnv(t *testing.T) {
	t.Setenv("CHUNKSIZE", "9")
	cfg, err := probeConfig(t)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Detector.ChunkSize != 9 {
		t.Errorf("ChunkSize = %d, want 9 from CHUNKSIZE", cfg.Detector.ChunkSize)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	if _, err := probeConfig(t, "--chunk-size", "0"); err == nil {
		t.Error("chunk size 0 should fail validation")
	}
	if _, err := probeConfig(t, "--config", filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("a missing config file should be an error")
	}
}

func TestGenerateDefaultConfig_RoundTrip(t *testing.T) {
	content, err := generateDefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "clonestream.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(generated) error: %v", err)
	}
	def := config.DefaultConfig()
	if cfg.Detector.ChunkSize != def.Detector.ChunkSize ||
		cfg.Store.Path != def.Store.Path ||
		cfg.Monitor.Interval != def.Monitor.Interval ||
		len(cfg.Exclude.Dirs) != len(def.Exclude.Dirs) {
		t.Errorf("round trip changed the defaults:\n%+v\nwant\n%+v", cfg, def)
	}
	if err := cfg.Validate(); err != nil {
		t.Error(err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "clonestream.toml")

	if _, err := run(t, "config", "init", "--path", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := run(t, "config", "init", "--path", path); err == nil {
		t.Error("config init should refuse to overwrite without --force")
	}
	if _, err := run(t, "config", "init", "--path", path, "--force"); err != nil {
		t.Errorf("config init --force: %v", err)
	}
	if _, err := run(t, "--config", path, "config", "validate"); err != nil {
		t.Errorf("config validate: %v", err)
	}

	out, err := run(t, "--config", path, "config", "show", "--format", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "# Configuration from: "+path) || !strings.Contains(out, "chunk_size: 5") {
		t.Errorf("config show output:\n%s", out)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[detector]\nchunk_size = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", bad, "config", "validate"); err == nil {
		t.Error("config validate should reject chunk_size = 0")
	}
	if _, err := run(t, "--config", path, "config", "show", "--format", "ini"); err == nil {
		t.Error("unknown encodings should be an error")
	}
}

func javaLines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "total += values[%d];\n", i)
	}
	return b.String()
}

func TestIngestThenQuery(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"A.java":    javaLines(6),
		"B.java":    javaLines(6),
		"notes.txt": javaLines(6),
	} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfgPath := filepath.Join(dir, "clonestream.toml")
	cfgBody := fmt.Sprintf("[store]\ndriver = \"sqlite\"\npath = %q\n\n[log]\nlevel = \"error\"\n", filepath.Join(dir, "db", "corpus.db"))
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatal(err)
	}

	ingestOut := filepath.Join(dir, "ingest.json")
	if _, err := run(t, "--config", cfgPath, "-f", "json", "-o", ingestOut, "ingest", "--no-progress", src); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var res output.IngestResult
	readJSON(t, ingestOut, &res)
	if res.Files != 2 || res.Accepted != 2 || res.Clones != 1 {
		t.Errorf("ingest result = %+v, want 2 files, 2 accepted, 1 clone", res)
	}

	// A second run finds every file already stored.
	if _, err := run(t, "--config", cfgPath, "-f", "json", "-o", ingestOut, "ingest", "--no-progress", src); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	readJSON(t, ingestOut, &res)
	if res.Accepted != 0 || res.Rejected["already_processed"] != 2 {
		t.Errorf("second ingest = %+v, want 2 already processed", res)
	}

	clonesOut := filepath.Join(dir, "clones.json")
	if _, err := run(t, "--config", cfgPath, "-f", "json", "-o", clonesOut, "clones"); err != nil {
		t.Fatalf("clones: %v", err)
	}
	var listed struct {
		Clones []models.Clone `json:"clones"`
	}
	readJSON(t, clonesOut, &listed)
	if len(listed.Clones) != 1 {
		t.Fatalf("clones = %+v, want 1", listed.Clones)
	}
	c := listed.Clones[0]
	if c.SourceFile != "A.java" || c.SourceStart != 1 || c.SourceEnd != 6 {
		t.Errorf("clone source = %s, want A.java:1-6", c.Key())
	}
	if len(c.Targets) != 1 || c.Targets[0] != (models.CloneTarget{File: "B.java", StartLine: 1, EndLine: 6}) {
		t.Errorf("clone targets = %v, want B.java:1-6", c.Targets)
	}

	if _, err := run(t, "--config", cfgPath, "-f", "json", "-o", clonesOut, "clones", "--min-lines", "7"); err != nil {
		t.Fatal(err)
	}
	readJSON(t, clonesOut, &listed)
	if len(listed.Clones) != 0 {
		t.Errorf("--min-lines 7 should hide the 6-line clone")
	}

	statsOut := filepath.Join(dir, "stats.json")
	if _, err := run(t, "--config", cfgPath, "-f", "json", "-o", statsOut, "stats"); err != nil {
		t.Fatalf("stats: %v", err)
	}
	var st output.CorpusStats
	readJSON(t, statsOut, &st)
	if st.Files != 2 || st.Clones != 1 {
		t.Errorf("stats = %+v, want 2 files and 1 clone", st)
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decoding %s: %v\n%s", path, err, data)
	}
}

func TestMCPManifest(t *testing.T) {
	out, err := run(t, "mcp", "manifest")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "io.github.panbanda/clonestream"`) {
		t.Errorf("manifest output:\n%s", out)
	}
}

func TestCloneInvolves(t *testing.T) {
	c := models.Clone{
		SourceFile: "A.java",
		Targets:    []models.CloneTarget{{File: "B.java"}},
	}
	for file, want := range map[string]bool{"A.java": true, "B.java": true, "C.java": false} {
		if got := cloneInvolves(c, file); got != want {
			t.Errorf("cloneInvolves(%s) = %v, want %v", file, got, want)
		}
	}
}
