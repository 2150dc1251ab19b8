package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/clonestream/internal/fileproc"
	"github.com/panbanda/clonestream/internal/output"
	"github.com/panbanda/clonestream/internal/progress"
	"github.com/panbanda/clonestream/internal/remote"
	"github.com/panbanda/clonestream/internal/scanner"
	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/internal/vcs"
	"github.com/panbanda/clonestream/pkg/pipeline"
	"github.com/panbanda/clonestream/pkg/source"
)

func ingestCmd() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Add files to the corpus and report the clones found",
		ArgsUsage: "[path...]",
		Description: `Scans each path (directories recursively, honoring exclusions and
.gitignore) and ingests the accepted files in name order. With --ref the
files come from a git revision instead of the working tree. --repo also
accepts a remote repository (owner/repo, a URL, or either with @ref),
which is cloned into memory and ingested at its default branch or ref.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Concurrent ingestion workers (overrides config)",
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "Ingest the tree of this git revision (branch, tag or hash)",
			},
			&cli.StringFlag{
				Name:  "repo",
				Value: ".",
				Usage: "Repository to read --ref from: a local path, owner/repo[@ref] or a git URL",
			},
			&cli.BoolFlag{
				Name:  "shallow",
				Usage: "Fetch only the requested revision of a remote --repo",
			},
			&cli.Int64Flag{
				Name:  "max-file-size",
				Usage: "Skip files larger than this many bytes (default: server.max_upload_bytes)",
			},
			&cli.BoolFlag{
				Name:  "timing",
				Usage: "Also report timing statistics for the accepted files",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Hide the progress bar",
			},
		},
		Action: runIngestCmd,
	}
}

func runIngestCmd(c *cli.Context) error {
	history := timing.NewHistory(0)
	cp, err := openCorpus(c, pipeline.WithObserver(func(o *pipeline.Outcome) {
		if o.Accepted() {
			history.Add(timing.NewSample(o.Name, o.LOC, o.Timers))
		}
	}))
	if err != nil {
		return err
	}
	defer cp.Close()

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	ctx, stop := signalContext(c)
	defer stop()

	files, src, err := ingestSources(ctx, c, cp, scanner.NewScanner(cp.cfg, cp.pipeline.Policy()))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		formatter.Warning("No accepted files found")
		return nil
	}

	opts := fileproc.IngestOptions{
		Workers:     cp.cfg.Ingest.Workers,
		MaxFileSize: cp.cfg.Server.MaxUploadBytes,
	}
	if c.IsSet("workers") {
		opts.Workers = c.Int("workers")
	}
	if c.IsSet("max-file-size") {
		opts.MaxFileSize = c.Int64("max-file-size")
	}

	var tracker *progress.Tracker
	if !c.Bool("no-progress") && formatter.Format() == output.FormatText {
		tracker = progress.NewTracker("ingesting", len(files))
		opts.OnProgress = tracker.Tick
	}

	sum := fileproc.Ingest(ctx, cp.pipeline, src, files, opts)
	if tracker != nil {
		if ctx.Err() != nil {
			tracker.FinishError(ctx.Err())
		} else {
			tracker.FinishSuccess()
		}
	}
	cp.logger.Info().
		Int("files", sum.Files).
		Int("accepted", sum.Accepted).
		Int("clones", sum.Clones).
		Dur("elapsed", sum.Elapsed).
		Msg("ingest finished")

	if err := formatter.Output(output.IngestReport(sum)); err != nil {
		return err
	}
	if c.Bool("timing") {
		summary := history.Summary()
		st := output.CorpusStats{Timing: &summary}
		if st.Files, err = cp.store.NumberOfFiles(ctx); err != nil {
			return err
		}
		if st.Clones, err = cp.store.NumberOfClones(ctx); err != nil {
			return err
		}
		if err := formatter.Output(output.StatsReport(st)); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sum.Errors.HasErrors() {
		return fmt.Errorf("ingest: %w", sum.Errors)
	}
	return nil
}

// ingestSources lists the files to ingest and where to read them from.
func ingestSources(ctx context.Context, c *cli.Context, cp *corpus, sc *scanner.Scanner) ([]scanner.File, source.ContentSource, error) {
	ref := c.String("ref")
	rem, err := remote.Parse(c.String("repo"))
	if err != nil {
		return nil, nil, err
	}
	if ref == "" && rem == nil {
		files, err := sc.ScanPaths(getPaths(c))
		if err != nil {
			return nil, nil, err
		}
		return files, source.NewFilesystem(""), nil
	}

	var rev vcs.Commit
	if rem != nil {
		if ref != "" {
			rem.Ref = ref
		}
		cp.logger.Info().Str("repo", rem.String()).Bool("shallow", c.Bool("shallow")).Msg("cloning")
		repo, err := rem.Clone(ctx, c.App.ErrWriter, c.Bool("shallow"))
		if err != nil {
			return nil, nil, err
		}
		if rev, err = rem.Resolve(repo); err != nil {
			return nil, nil, err
		}
		ref = rem.String()
	} else {
		repo, err := vcs.DefaultOpener().PlainOpenWithDetect(c.String("repo"))
		if err != nil {
			return nil, nil, fmt.Errorf("open repository: %w", err)
		}
		if rev, err = repo.Resolve(ref); err != nil {
			return nil, nil, err
		}
	}

	entries, err := rev.Tree.Entries()
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", ref, err)
	}
	cp.logger.Info().
		Str("ref", ref).
		Str("commit", rev.Hash).
		Str("author", rev.Author).
		Int("entries", len(entries)).
		Msg("ingesting git tree")
	return sc.ScanTree(entries), source.NewTree(rev.Tree), nil
}
