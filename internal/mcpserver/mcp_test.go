package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/clonestream/internal/output"
	"github.com/panbanda/clonestream/internal/store"
	"github.com/panbanda/clonestream/pkg/models"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

func body(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("call%d();", i)
	}
	return strings.Join(lines, "\n")
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := store.NewMemoryStore()
	return NewServer("test", pipeline.New(s, s), s, s)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func ingest(t *testing.T, s *Server, name, contents string) pipeline.Outcome {
	t.Helper()
	res, _, err := s.handleIngestFile(context.Background(), nil, IngestFileInput{
		FormatInput: FormatInput{Format: "json"},
		Name:        name,
		Contents:    contents,
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var out struct {
		Name   string         `json:"name"`
		Status string         `json:"status"`
		Reason string         `json:"reason"`
		Clones []models.Clone `json:"clones"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	got := pipeline.Outcome{Name: out.Name, Clones: out.Clones}
	if out.Status == "rejected" {
		got.Status = pipeline.Rejected
	}
	switch out.Reason {
	case "already_processed":
		got.Reason = pipeline.AlreadyProcessed
	case "unsupported_file_type":
		got.Reason = pipeline.UnsupportedFileType
	}
	return got
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s.server)

	empty := NewServer("", nil, nil, nil)
	assert.NotNil(t, empty.server)
}

func TestToolDescriptions(t *testing.T) {
	for name, fn := range map[string]func() string{
		"list_clones":  describeListClones,
		"corpus_stats": describeCorpusStats,
		"ingest_file":  describeIngestFile,
	} {
		t.Run(name, func(t *testing.T) {
			desc := fn()
			assert.Contains(t, desc, "USE WHEN:")
			assert.Contains(t, desc, "INTERPRETING RESULTS:")
			assert.Contains(t, desc, "RETURNS:")
		})
	}
}

func TestGetFormat(t *testing.T) {
	tests := []struct {
		in   string
		want output.Format
	}{
		{"", output.FormatTOON},
		{"toon", output.FormatTOON},
		{"json", output.FormatJSON},
		{"md", output.FormatMarkdown},
		{"markdown", output.FormatMarkdown},
		{"xml", output.FormatTOON},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getFormat(FormatInput{Format: tt.in}), "format %q", tt.in)
	}
}

func TestToolError(t *testing.T) {
	res, out, err := toolError("boom")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: boom", resultText(t, res))
}

func TestFormatOutput_Markdown(t *testing.T) {
	text, err := formatOutput(map[string]int{"files": 1}, output.FormatMarkdown)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "```\n"))
	assert.True(t, strings.HasSuffix(text, "\n```"))
	assert.Contains(t, text, "files")
}

func TestIngestFile(t *testing.T) {
	s := newTestServer(t)

	first := ingest(t, s, "A.java", body(6))
	assert.Equal(t, pipeline.Accepted, first.Status)
	assert.Empty(t, first.Clones)

	second := ingest(t, s, "B.java", body(6))
	require.Len(t, second.Clones, 1)
	c := second.Clones[0]
	assert.Equal(t, "A.java", c.SourceFile)
	assert.Equal(t, 1, c.SourceStart)
	assert.Equal(t, 6, c.SourceEnd)
	assert.Equal(t, []models.CloneTarget{{File: "B.java", StartLine: 1, EndLine: 6}}, c.Targets)

	again := ingest(t, s, "B.java", body(6))
	assert.Equal(t, pipeline.Rejected, again.Status)
	assert.Equal(t, pipeline.AlreadyProcessed, again.Reason)

	unsupported := ingest(t, s, "notes.txt", body(6))
	assert.Equal(t, pipeline.UnsupportedFileType, unsupported.Reason)
}

func TestIngestFile_MissingName(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleIngestFile(context.Background(), nil, IngestFileInput{Contents: body(6)})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListClones(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s, "A.java", body(6))
	ingest(t, s, "B.java", body(6))
	ingest(t, s, "C.java", "int unrelated;\n"+body(6))
	ingest(t, s, "D.java", "other();\n")

	list := func(in ListClonesInput) cloneList {
		t.Helper()
		in.Format = "json"
		res, _, err := s.handleListClones(context.Background(), nil, in)
		require.NoError(t, err)
		require.False(t, res.IsError, resultText(t, res))
		var got cloneList
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
		return got
	}

	// A:1-6 is repeated by B and C; B:1-6 is repeated by C.
	all := list(ListClonesInput{})
	assert.Equal(t, 2, all.Total)
	require.Len(t, all.Clones, 2)
	targets := 0
	for _, c := range all.Clones {
		targets += len(c.Targets)
	}
	assert.Equal(t, 3, targets)

	assert.Equal(t, 2, list(ListClonesInput{File: "C.java"}).Total)
	assert.Equal(t, 0, list(ListClonesInput{File: "D.java"}).Total)

	limited := list(ListClonesInput{Limit: 1})
	assert.Equal(t, 2, limited.Total)
	assert.Len(t, limited.Clones, 1)

	res, _, err := s.handleListClones(context.Background(), nil, ListClonesInput{Limit: -1})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCorpusStats(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s, "A.java", body(6))
	ingest(t, s, "B.java", body(6))

	res, _, err := s.handleCorpusStats(context.Background(), nil, CorpusStatsInput{FormatInput{Format: "json"}})
	require.NoError(t, err)

	var got corpusStats
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, corpusStats{Files: 2, Clones: 1, Targets: 1}, got)

	toonRes, _, err := s.handleCorpusStats(context.Background(), nil, CorpusStatsInput{})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, toonRes), "files")
}

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantDesc string
		wantArgs int
		wantBody string
	}{
		{
			name:     "with arguments",
			content:  "---\ndescription: Check it\narguments:\n  - name: file\n---\nBody {{file}}\n",
			wantDesc: "Check it",
			wantArgs: 1,
			wantBody: "Body {{file}}\n",
		},
		{
			name:     "no frontmatter",
			content:  "Just a body",
			wantBody: "Just a body",
		},
		{
			name:     "unterminated",
			content:  "---\ndescription: x\nBody",
			wantBody: "---\ndescription: x\nBody",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, b := parseFrontmatter([]byte(tt.content))
			assert.Equal(t, tt.wantDesc, fm.Description)
			assert.Len(t, fm.Arguments, tt.wantArgs)
			assert.Equal(t, tt.wantBody, b)
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"name", "file"}, placeholders("{{name}} and {{file}} and {{name}}"))
	assert.Empty(t, placeholders("no {{ end"))
}

func TestEmbeddedPrompts(t *testing.T) {
	entries, err := promptFiles.ReadDir("prompts")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		t.Run(entry.Name(), func(t *testing.T) {
			content, err := promptFiles.ReadFile("prompts/" + entry.Name())
			require.NoError(t, err)
			fm, b := parseFrontmatter(content)
			assert.NotEmpty(t, fm.Description)
			for _, arg := range fm.Arguments {
				assert.Contains(t, b, "{{"+arg.Name+"}}", "argument %s is never used", arg.Name)
			}
		})
	}
}

func TestPromptHandler(t *testing.T) {
	handler := makePromptHandler("Check", "Ingest {{name}} then report {{name}}.")
	res, err := handler(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{
			Name:      "check-upload",
			Arguments: map[string]string{"name": "src/A.java"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Check", res.Description)
	require.Len(t, res.Messages, 1)
	assert.EqualValues(t, "user", res.Messages[0].Role)
	text, ok := res.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Ingest src/A.java then report src/A.java.", text.Text)

	res, err = handler(context.Background(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{}})
	require.NoError(t, err)
	assert.Equal(t, "Ingest  then report .", res.Messages[0].Content.(*mcp.TextContent).Text)
}

func TestGenerateManifest(t *testing.T) {
	data, err := GenerateManifest("1.2.3")
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "io.github.panbanda/clonestream", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	require.Len(t, m.Packages, 1)
	assert.Equal(t, "ghcr.io/panbanda/clonestream:1.2.3", m.Packages[0].Identifier)
	assert.Equal(t, "stdio", m.Packages[0].Transport.Type)

	data, err = GenerateManifest("")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "0.0.0"`)
}
