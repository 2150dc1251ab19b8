package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	toon "github.com/toon-format/toon-go"

	"github.com/panbanda/clonestream/internal/output"
	"github.com/panbanda/clonestream/pkg/models"
)

// FormatInput selects the encoding of a tool result.
type FormatInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// ListClonesInput filters the clone listing.
type ListClonesInput struct {
	FormatInput
	File  string `json:"file,omitempty" jsonschema:"Only clones whose source or a target is this file."`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of clones to return. 0 returns all."`
}

// CorpusStatsInput takes only the output format.
type CorpusStatsInput struct {
	FormatInput
}

// IngestFileInput is one file to add to the corpus.
type IngestFileInput struct {
	FormatInput
	Name     string `json:"name" jsonschema:"File name, including its extension, e.g. src/Foo.java."`
	Contents string `json:"contents" jsonschema:"Full text of the file."`
}

type cloneList struct {
	Total  int            `json:"total"`
	Clones []models.Clone `json:"clones"`
}

type corpusStats struct {
	Files   int `json:"files"`
	Clones  int `json:"clones"`
	Targets int `json:"targets"`
}

func getFormat(in FormatInput) output.Format {
	switch in.Format {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func formatOutput(data any, format output.Format) (string, error) {
	switch format {
	case output.FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case output.FormatMarkdown:
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return "```\n" + string(out) + "\n```", nil
	default:
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + msg}},
		IsError: true,
	}, nil, nil
}

func involves(c models.Clone, file string) bool {
	if c.SourceFile == file {
		return true
	}
	for _, t := range c.Targets {
		if t.File == file {
			return true
		}
	}
	return false
}

func (s *Server) handleListClones(ctx context.Context, _ *mcp.CallToolRequest, in ListClonesInput) (*mcp.CallToolResult, any, error) {
	if in.Limit < 0 {
		return toolError("limit must not be negative")
	}
	all, err := s.clones.Clones(ctx)
	if err != nil {
		return toolError(err.Error())
	}

	selected := make([]models.Clone, 0, len(all))
	for _, c := range all {
		if in.File == "" || involves(c, in.File) {
			selected = append(selected, c)
		}
	}
	list := cloneList{Total: len(selected), Clones: selected}
	if in.Limit > 0 && len(selected) > in.Limit {
		list.Clones = selected[:in.Limit]
	}
	return toolResult(list, getFormat(in.FormatInput))
}

func (s *Server) handleCorpusStats(ctx context.Context, _ *mcp.CallToolRequest, in CorpusStatsInput) (*mcp.CallToolResult, any, error) {
	files, err := s.files.NumberOfFiles(ctx)
	if err != nil {
		return toolError(err.Error())
	}
	clones, err := s.clones.Clones(ctx)
	if err != nil {
		return toolError(err.Error())
	}

	st := corpusStats{Files: files, Clones: len(clones)}
	for _, c := range clones {
		st.Targets += len(c.Targets)
	}
	return toolResult(st, getFormat(in.FormatInput))
}

func (s *Server) handleIngestFile(ctx context.Context, _ *mcp.CallToolRequest, in IngestFileInput) (*mcp.CallToolResult, any, error) {
	if in.Name == "" {
		return toolError("name is required")
	}
	out, err := s.pipeline.Process(ctx, in.Name, in.Contents)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return toolError(err.Error())
	}
	if out.Clones == nil {
		out.Clones = []models.Clone{}
	}
	s.logger.Info().
		Str("file", out.Name).
		Stringer("status", out.Status).
		Int("clones", len(out.Clones)).
		Msg("ingested over mcp")
	return toolResult(out, getFormat(in.FormatInput))
}
