package mcpserver

import (
	"bytes"
	"context"
	"embed"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.md
var promptFiles embed.FS

type promptFrontmatter struct {
	Description string `yaml:"description"`
	Arguments   []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"arguments"`
}

// registerPrompts registers every embedded prompt file under its base name.
func (s *Server) registerPrompts() {
	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFiles.ReadFile(path.Join("prompts", entry.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("prompt", entry.Name()).Msg("reading prompt")
			continue
		}

		fm, body := parseFrontmatter(content)
		prompt := &mcp.Prompt{
			Name:        strings.TrimSuffix(entry.Name(), ".md"),
			Description: fm.Description,
		}
		for _, arg := range fm.Arguments {
			prompt.Arguments = append(prompt.Arguments, &mcp.PromptArgument{
				Name:        arg.Name,
				Description: arg.Description,
			})
		}
		s.server.AddPrompt(prompt, makePromptHandler(fm.Description, body))
	}
}

// parseFrontmatter splits YAML frontmatter from the prompt body. Content
// without valid frontmatter is returned whole.
func parseFrontmatter(content []byte) (promptFrontmatter, string) {
	var fm promptFrontmatter
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return fm, string(content)
	}
	rest := content[4:]
	end := bytes.Index(rest, []byte("\n---\n"))
	if end == -1 {
		return fm, string(content)
	}
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return promptFrontmatter{}, string(content)
	}
	return fm, strings.TrimPrefix(string(rest[end+5:]), "\n")
}

// substituteArgs replaces {{name}} placeholders with argument values.
// Missing arguments become empty strings.
func substituteArgs(body string, args map[string]string, names []string) string {
	for _, name := range names {
		body = strings.ReplaceAll(body, "{{"+name+"}}", args[name])
	}
	return body
}

func makePromptHandler(description, body string) mcp.PromptHandler {
	names := placeholders(body)
	return func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		return &mcp.GetPromptResult{
			Description: description,
			Messages: []*mcp.PromptMessage{{
				Role:    "user",
				Content: &mcp.TextContent{Text: substituteArgs(body, args, names)},
			}},
		}, nil
	}
}

// placeholders returns the distinct {{name}} placeholders in body.
func placeholders(body string) []string {
	var names []string
	seen := make(map[string]bool)
	for rest := body; ; {
		start := strings.Index(rest, "{{")
		if start == -1 {
			return names
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return names
		}
		name := rest[start+2 : start+end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[start+end+2:]
	}
}
