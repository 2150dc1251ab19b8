// Package mcpserver exposes the clone corpus to MCP clients over stdio.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/panbanda/clonestream/internal/store"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

// Server wraps the MCP server and the corpus it serves.
type Server struct {
	server   *mcp.Server
	pipeline *pipeline.Pipeline
	files    store.FileStore
	clones   store.CloneStore
	logger   zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to stdout, which carries
// the protocol.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server with the corpus tools and prompts
// registered.
func NewServer(version string, p *pipeline.Pipeline, files store.FileStore, clones store.CloneStore, opts ...Option) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "clonestream",
			Version: version,
		}, nil),
		pipeline: p,
		files:    files,
		clones:   clones,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Msg("mcp server listening on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_clones",
		Description: describeListClones(),
	}, s.handleListClones)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "corpus_stats",
		Description: describeCorpusStats(),
	}, s.handleCorpusStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_file",
		Description: describeIngestFile(),
	}, s.handleIngestFile)
}
