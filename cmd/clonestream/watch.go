package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/clonestream/pkg/pipeline"
	"github.com/panbanda/clonestream/pkg/watch"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Ingest files as they are created or modified",
		ArgsUsage: "[dir]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "How long a file must be quiet before it is ingested",
			},
		},
		Action: runWatchCmd,
	}
}

func runWatchCmd(c *cli.Context) error {
	cp, err := openCorpus(c)
	if err != nil {
		return err
	}
	defer cp.Close()

	root, err := filepath.Abs(getPaths(c)[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	watcher, err := watch.NewWatcher(root, cp.cfg,
		watch.WithDebounce(c.Duration("debounce")),
		watch.WithLogger(cp.logger.With().Str("component", "watch").Logger()),
		watch.WithPolicy(cp.pipeline.Policy()),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()

	watcher.SetCallback(func(ctx context.Context, ch watch.Change) {
		ingestChange(ctx, cp.pipeline, ch)
	})

	ctx, stop := signalContext(c)
	defer stop()

	color.Cyan("Watching %s (Ctrl+C to stop)", root)
	return watcher.Start(ctx)
}

// ingestChange processes one settled file and prints the result.
func ingestChange(ctx context.Context, p *pipeline.Pipeline, ch watch.Change) {
	data, err := os.ReadFile(ch.Path)
	if err != nil {
		color.Red("%s: %v", ch.Name, err)
		return
	}
	out, err := p.Process(ctx, ch.Name, string(data))
	if err != nil {
		color.Red("%s: %v", ch.Name, err)
		return
	}
	if !out.Accepted() {
		color.Yellow("%s: rejected (%s)", ch.Name, out.Reason)
		return
	}
	if len(out.Clones) == 0 {
		color.Green("%s: no clones", ch.Name)
		return
	}
	color.Yellow("%s: %d clones", ch.Name, len(out.Clones))
	for _, cl := range out.Clones {
		for _, t := range cl.Targets {
			fmt.Printf("  %s -> %s\n", cl.Key(), t)
		}
	}
}
