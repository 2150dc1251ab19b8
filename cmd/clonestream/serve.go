package main

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/panbanda/clonestream/internal/monitor"
	"github.com/panbanda/clonestream/internal/server"
	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Accept files over HTTP and report the clones they contain",
		Description: `Starts the ingestion server.

  POST /            multipart form: name, data (file)
  POST /api/files   JSON: {"name": "...", "contents": "..."}
  GET  /            statistics, timers and every clone found
  GET  /timers      per-file timing history`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-monitor",
				Usage: "Disable the periodic count sampler",
			},
		},
		Action: runServeCmd,
	}
}

func runServeCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	log, err := newLogger(c, cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		mon      *monitor.Monitor
		pipeOpts []pipeline.Option
	)
	if cfg.Monitor.Enabled && !c.Bool("no-monitor") {
		mon = monitor.New(st, st,
			monitor.WithInterval(cfg.Monitor.Interval),
			monitor.WithMaxSamples(cfg.Monitor.MaxSamples),
			monitor.WithLogger(log.With().Str("component", "monitor").Logger()),
		)
		pipeOpts = append(pipeOpts, pipeline.WithObserver(mon.Observe))
	}

	p, err := newPipeline(cfg, st, log, pipeOpts...)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{
		server.WithAddr(cfg.Server.Addr),
		server.WithLogger(log.With().Str("component", "server").Logger()),
		server.WithHistory(timing.NewHistory(cfg.Server.StatsHistory)),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithStatsEvery(cfg.Server.StatsEvery),
	}
	if mon != nil {
		srvOpts = append(srvOpts, server.WithMonitor(mon))
	}
	srv, err := server.New(p, st, st, srvOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if mon != nil {
		g.Go(func() error { return mon.Run(ctx) })
	}
	return g.Wait()
}
