package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path"
	"slices"
	"strconv"
	"time"

	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// timersPageSamples is the number of recent samples on the timers page.
const timersPageSamples = 200

func parsePages() (*template.Template, error) {
	funcs := template.FuncMap{
		"micros": func(d time.Duration) int64 { return d.Microseconds() },
		"fixed": func(prec int, v float64) string {
			return strconv.FormatFloat(v, 'f', prec, 64)
		},
		"base": path.Base,
	}
	return template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

type indexPage struct {
	Files      int
	CloneCount int
	Timers     []timing.Timing
	Clones     []models.Clone
	FileNames  []string
}

// handleIndex renders corpus statistics, the timers of the last file,
// every clone and the processed file list.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := s.files.AllFiles(ctx)
	if err != nil {
		http.Error(w, "loading files: "+err.Error(), http.StatusInternalServerError)
		return
	}
	clones, err := s.clones.Clones(ctx)
	if err != nil {
		http.Error(w, "loading clones: "+err.Error(), http.StatusInternalServerError)
		return
	}

	page := indexPage{
		Files:      len(records),
		CloneCount: len(clones),
		Clones:     clones,
		FileNames:  make([]string, len(records)),
	}
	for i, rec := range records {
		page.FileNames[i] = rec.Name
	}
	s.lastMu.RLock()
	if s.last != nil {
		page.Timers = s.last.Timers.All()
	}
	s.lastMu.RUnlock()

	s.render(w, "index.html", page)
}

type timersPage struct {
	Samples    int
	AvgTotal   float64
	AvgMatch   float64
	AvgPerLOC  float64
	Recent     []timing.Sample
	RecentSize int
}

// handleTimers renders the timing table for the latest samples.
func (s *Server) handleTimers(w http.ResponseWriter, _ *http.Request) {
	sum := s.history.Summary()
	recent := s.history.Latest(timersPageSamples)
	slices.Reverse(recent)

	s.render(w, "timers.html", timersPage{
		Samples:    sum.Samples,
		AvgTotal:   sum.Total.Mean,
		AvgMatch:   sum.Match.Mean,
		AvgPerLOC:  sum.PerLOC.Mean,
		Recent:     recent,
		RecentSize: timersPageSamples,
	})
}

func (s *Server) handleTimersJSON(w http.ResponseWriter, _ *http.Request) {
	samples := s.history.Samples()
	if samples == nil {
		samples = []timing.Sample{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"samples": samples})
}

func (s *Server) handleClones(w http.ResponseWriter, r *http.Request) {
	clones, err := s.clones.Clones(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if clones == nil {
		clones = []models.Clone{}
	}
	s.jsonResponse(w, http.StatusOK, clones)
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Files     int            `json:"files"`
	Clones    int            `json:"clones"`
	Processed int64          `json:"processed"`
	Timing    timing.Summary `json:"timing"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	files, err := s.files.NumberOfFiles(ctx)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	clones, err := s.clones.NumberOfClones(ctx)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, StatsResponse{
		Files:     files,
		Clones:    clones,
		Processed: s.processed.Load(),
		Timing:    s.history.Summary(),
	})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.errorResponse(w, http.StatusNotFound, "monitor is not enabled")
		return
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	s.jsonResponse(w, http.StatusOK, s.monitor.Samples(limit))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.errorResponse(w, http.StatusNotFound, "monitor is not enabled")
		return
	}
	sum, err := s.monitor.Summary(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, sum)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("rendering page")
	}
}
