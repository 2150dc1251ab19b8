package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/clonestream/internal/cache"
	"github.com/panbanda/clonestream/internal/logger"
	"github.com/panbanda/clonestream/internal/output"
	"github.com/panbanda/clonestream/internal/store"
	"github.com/panbanda/clonestream/pkg/config"
	"github.com/panbanda/clonestream/pkg/detector"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

// getPaths returns paths from positional args, defaulting to ["."]
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"."}
}

// loadConfig reads --config, or the first config file found, applies the
// command-line overrides and validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}

	if c.IsSet("chunk-size") {
		cfg.Detector.ChunkSize = c.Int("chunk-size")
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg *config.Config) (zerolog.Logger, error) {
	return logger.New(cfg.Log, c.App.ErrWriter)
}

func openStore(cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path, log.With().Str("component", "store").Logger())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return st, nil
}

// newPipeline builds the pipeline the configuration describes over st.
// Extra options are applied last.
func newPipeline(cfg *config.Config, st store.Store, log zerolog.Logger, extra ...pipeline.Option) (*pipeline.Pipeline, error) {
	policy, err := pipeline.NewPolicy(cfg.Detector.Accept...)
	if err != nil {
		return nil, err
	}
	opts := []pipeline.Option{
		pipeline.WithChunkSize(cfg.Detector.ChunkSize),
		pipeline.WithPolicy(policy),
		pipeline.WithLogger(log.With().Str("component", "pipeline").Logger()),
	}
	if cfg.Detector.CacheEntries > 0 {
		prepared, err := cache.New[*detector.PreparedFile](cfg.Detector.CacheEntries)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithCache(prepared))
	}
	return pipeline.New(st, st, append(opts, extra...)...), nil
}

// corpus bundles what most commands need.
type corpus struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    store.Store
	pipeline *pipeline.Pipeline
}

func openCorpus(c *cli.Context, extra ...pipeline.Option) (*corpus, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(c, cfg)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	p, err := newPipeline(cfg, st, log, extra...)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &corpus{cfg: cfg, logger: log, store: st, pipeline: p}, nil
}

func (cp *corpus) Close() error {
	return cp.store.Close()
}

func newFormatter(c *cli.Context) (*output.Formatter, error) {
	return output.NewFormatter(output.ParseFormat(c.String("format")), c.String("output"), !color.NoColor)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
