package output

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/panbanda/clonestream/internal/fileproc"
	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/pkg/models"
	"github.com/panbanda/clonestream/pkg/pipeline"
	"github.com/panbanda/clonestream/pkg/stats"
)

// ClonesTable lists each clone with its source span and every target.
func ClonesTable(clones []models.Clone) *Table {
	rows := make([][]string, 0, len(clones))
	targets := 0
	for _, c := range clones {
		names := make([]string, len(c.Targets))
		for i, t := range c.Targets {
			names[i] = t.String()
		}
		targets += len(c.Targets)
		rows = append(rows, []string{
			c.Key().String(),
			strconv.Itoa(c.Lines()),
			strings.Join(names, ", "),
		})
	}
	data := clones
	if data == nil {
		data = []models.Clone{}
	}
	return NewTable(
		"Clones",
		[]string{"Source", "Lines", "Found In"},
		rows,
		[]string{fmt.Sprintf("%d clones", len(clones)), "", fmt.Sprintf("%d targets", targets)},
		map[string]any{"clones": data},
	)
}

// CorpusStats are the corpus totals plus the timing history, if any.
type CorpusStats struct {
	Files  int             `json:"files"`
	Clones int             `json:"clones"`
	Timing *timing.Summary `json:"timing,omitempty"`
}

// StatsReport renders corpus totals and, when samples exist, a timing table.
func StatsReport(s CorpusStats) *Report {
	r := &Report{
		Title: "Corpus Statistics",
		Data:  s,
		Sections: []Renderable{&Section{
			Content: fmt.Sprintf("Processed %d files containing %d clones.", s.Files, s.Clones),
		}},
	}
	if s.Timing == nil || s.Timing.Samples == 0 {
		return r
	}
	row := func(label string, v stats.Summary) []string {
		return []string{label, fixed(v.Mean), fixed(v.StdDev), fixed(v.P50), fixed(v.P95), fixed(v.Max)}
	}
	r.Sections = append(r.Sections, NewTable(
		fmt.Sprintf("Timing (%d samples)", s.Timing.Samples),
		[]string{"Metric", "Mean", "StdDev", "P50", "P95", "Max"},
		[][]string{
			row("total µs", s.Timing.Total),
			row("match µs", s.Timing.Match),
			row("µs per LOC", s.Timing.PerLOC),
		},
		nil, s.Timing,
	))
	return r
}

// IngestResult is the serialized form of a batch ingestion.
type IngestResult struct {
	Files      int            `json:"files"`
	Accepted   int            `json:"accepted"`
	Rejected   map[string]int `json:"rejected"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Clones     int            `json:"clones"`
	Chunks     int            `json:"chunks"`
	Candidates int            `json:"candidates"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	Errors     []FileError    `json:"errors,omitempty"`
}

// FileError is one failed file of a batch.
type FileError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// IngestReport summarizes a batch ingestion and lists failed files.
func IngestReport(sum *fileproc.Summary) *Report {
	res := IngestResult{
		Files:      sum.Files,
		Accepted:   sum.Accepted,
		Rejected:   make(map[string]int, len(sum.Rejected)),
		Skipped:    sum.Skipped,
		Failed:     sum.Failed,
		Clones:     sum.Clones,
		Chunks:     sum.Chunks,
		Candidates: sum.Candidates,
		ElapsedMS:  sum.Elapsed.Milliseconds(),
	}
	for reason, n := range sum.Rejected {
		res.Rejected[reason.String()] = n
	}
	if sum.Errors.HasErrors() {
		for _, e := range sum.Errors.Errors {
			res.Errors = append(res.Errors, FileError{Name: e.Path, Error: e.Err.Error()})
		}
	}

	rows := [][]string{
		{"Files", strconv.Itoa(sum.Files)},
		{"Accepted", strconv.Itoa(sum.Accepted)},
	}
	for _, reason := range []pipeline.Reason{pipeline.AlreadyProcessed, pipeline.UnsupportedFileType} {
		if n := sum.Rejected[reason]; n > 0 {
			rows = append(rows, []string{"Rejected (" + reason.String() + ")", strconv.Itoa(n)})
		}
	}
	rows = append(rows,
		[]string{"Skipped", strconv.Itoa(sum.Skipped)},
		[]string{"Failed", strconv.Itoa(sum.Failed)},
		[]string{"Clones", strconv.Itoa(sum.Clones)},
		[]string{"Chunks", strconv.Itoa(sum.Chunks)},
		[]string{"Candidates", strconv.Itoa(sum.Candidates)},
		[]string{"Elapsed", sum.Elapsed.Round(time.Millisecond).String()},
	)

	r := &Report{
		Title:    "Ingestion Summary",
		Data:     res,
		Sections: []Renderable{NewTable("", []string{"Metric", "Value"}, rows, nil, nil)},
	}
	if len(res.Errors) > 0 {
		errRows := make([][]string, len(res.Errors))
		for i, e := range res.Errors {
			errRows[i] = []string{e.Name, e.Error}
		}
		sort.Slice(errRows, func(i, j int) bool { return errRows[i][0] < errRows[j][0] })
		r.Sections = append(r.Sections, NewTable("Failed Files", []string{"File", "Error"}, errRows, nil, nil))
	}
	return r
}

func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
