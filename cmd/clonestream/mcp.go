package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/clonestream/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start an MCP (Model Context Protocol) server on stdio",
		Description: `Exposes the corpus to MCP clients over stdio. Logs go to stderr.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "clonestream": {
        "command": "clonestream",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - list_clones    Clones in the corpus, optionally for one file
  - corpus_stats   File, clone and target counts
  - ingest_file    Add a file and return the clones it contains`,
		Action: runMCPCmd,
		Subcommands: []*cli.Command{
			{
				Name:  "manifest",
				Usage: "Print the MCP registry server.json",
				Action: func(c *cli.Context) error {
					data, err := mcpserver.GenerateManifest(version)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, string(data))
					return err
				},
			},
		},
	}
}

func runMCPCmd(c *cli.Context) error {
	cp, err := openCorpus(c)
	if err != nil {
		return err
	}
	defer cp.Close()

	ctx, stop := signalContext(c)
	defer stop()

	srv := mcpserver.NewServer(version, cp.pipeline, cp.store, cp.store,
		mcpserver.WithLogger(cp.logger.With().Str("component", "mcp").Logger()))
	return srv.Run(ctx)
}
