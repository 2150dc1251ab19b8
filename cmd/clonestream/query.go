package main

import (
	"github.com/urfave/cli/v2"

	"github.com/panbanda/clonestream/internal/output"
	"github.com/panbanda/clonestream/pkg/models"
)

func clonesCmd() *cli.Command {
	return &cli.Command{
		Name:  "clones",
		Usage: "List the clones stored in the corpus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Only clones whose source or a target is this file",
			},
			&cli.IntFlag{
				Name:  "min-lines",
				Usage: "Only clones spanning at least this many source lines",
			},
		},
		Action: runClonesCmd,
	}
}

func runClonesCmd(c *cli.Context) error {
	cp, err := openCorpus(c)
	if err != nil {
		return err
	}
	defer cp.Close()

	all, err := cp.store.Clones(c.Context)
	if err != nil {
		return err
	}
	file, minLines := c.String("file"), c.Int("min-lines")
	clones := make([]models.Clone, 0, len(all))
	for _, cl := range all {
		if cl.Lines() < minLines {
			continue
		}
		if file != "" && !cloneInvolves(cl, file) {
			continue
		}
		clones = append(clones, cl)
	}

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.ClonesTable(clones))
}

func cloneInvolves(c models.Clone, file string) bool {
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

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show corpus file and clone counts",
		Action: runStatsCmd,
	}
}

func runStatsCmd(c *cli.Context) error {
	cp, err := openCorpus(c)
	if err != nil {
		return err
	}
	defer cp.Close()

	var st output.CorpusStats
	if st.Files, err = cp.store.NumberOfFiles(c.Context); err != nil {
		return err
	}
	if st.Clones, err = cp.store.NumberOfClones(c.Context); err != nil {
		return err
	}

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.StatsReport(st))
}
