package server

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/pkg/models"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

//go:embed schemas/ingest.json
var ingestSchema []byte

const ingestSchemaURL = "https://clonestream.local/schemas/ingest.json"

func compileIngestSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(ingestSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(ingestSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(ingestSchemaURL)
}

// IngestRequest is the body of POST /api/files.
type IngestRequest struct {
	Name     string `json:"name"`
	Contents string `json:"contents"`
}

// IngestResponse is returned for every ingestion request that reached the
// pipeline.
type IngestResponse struct {
	Name   string          `json:"name"`
	Status string          `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Clones []models.Clone `json:"clones"`
}

// handleUpload accepts a multipart form with a "name" field and a "data"
// file part. Requests without a data part never reach the pipeline.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("data")
	if err != nil {
		s.logger.Warn().Err(err).Msg("skipping upload without file data")
		s.errorResponse(w, http.StatusBadRequest, `missing file part "data"`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "reading file data: "+err.Error())
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	if name == "" {
		s.errorResponse(w, http.StatusBadRequest, "file name is required")
		return
	}

	s.ingest(w, r, name, string(data))
}

// handleIngestJSON accepts {"name": ..., "contents": ...}.
func (s *Server) handleIngestJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.schema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			s.errorResponse(w, http.StatusBadRequest, "invalid request: "+verr.Error())
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.ingest(w, r, req.Name, req.Contents)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, name, contents string) {
	out, err := s.pipeline.Process(r.Context(), name, contents)
	if err != nil {
		s.logger.Error().Err(err).Str("file", name).Msg("processing failed")
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := IngestResponse{
		Name:   out.Name,
		Status: out.Status.String(),
		Reason: out.Reason.String(),
		Clones: out.Clones,
	}
	if resp.Clones == nil {
		resp.Clones = []models.Clone{}
	}

	switch {
	case out.Accepted():
		s.record(r.Context(), out)
		s.jsonResponse(w, http.StatusCreated, resp)
	case out.Reason == pipeline.AlreadyProcessed:
		s.jsonResponse(w, http.StatusConflict, resp)
	case out.Reason == pipeline.UnsupportedFileType:
		s.jsonResponse(w, http.StatusUnsupportedMediaType, resp)
	default:
		s.jsonResponse(w, http.StatusUnprocessableEntity, resp)
	}
}

// record keeps the timing sample of an accepted file and logs corpus
// statistics every statsEvery files.
func (s *Server) record(ctx context.Context, out *pipeline.Outcome) {
	s.history.Add(timing.NewSample(out.Name, out.LOC, out.Timers))

	s.lastMu.Lock()
	s.last = out
	s.lastMu.Unlock()

	n := s.processed.Add(1)
	if s.statsEvery <= 0 || n%s.statsEvery != 0 {
		return
	}

	files, _ := s.files.NumberOfFiles(ctx)
	clones, _ := s.clones.NumberOfClones(ctx)
	var timers strings.Builder
	for i, t := range out.Timers.All() {
		if i > 0 {
			timers.WriteByte(' ')
		}
		fmt.Fprintf(&timers, "%s: %d µs", t.Label, t.Duration.Microseconds())
	}
	s.logger.Info().
		Int64("processed", n).
		Int("files", files).
		Int("clones", clones).
		Str("timers", timers.String()).
		Str("url", s.publicURL).
		Msg("corpus statistics")
}
