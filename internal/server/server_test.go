package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/clonestream/internal/monitor"
	"github.com/panbanda/clonestream/internal/store"
	"github.com/panbanda/clonestream/pkg/models"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

func body(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("call%d();", i)
	}
	return strings.Join(lines, "\n")
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	srv, err := New(pipeline.New(s, s), s, s, opts...)
	require.NoError(t, err)
	return srv, s
}

func multipartUpload(t *testing.T, name, filename, contents string, withData bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		require.NoError(t, mw.WriteField("name", name))
	}
	if withData {
		fw, err := mw.CreateFormFile("data", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestUpload(t *testing.T) {
	srv, st := newTestServer(t)

	w := serve(srv, multipartUpload(t, "A.java", "a.tmp", body(6), true))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(srv, multipartUpload(t, "B.java", "b.tmp", body(6), true))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "B.java", resp.Name)
	assert.Equal(t, "accepted", resp.Status)
	require.Len(t, resp.Clones, 1)
	assert.Equal(t, "A.java", resp.Clones[0].SourceFile)

	t.Run("already processed", func(t *testing.T) {
		w := serve(srv, multipartUpload(t, "A.java", "a.tmp", body(3), true))
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp IngestResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "already_processed", resp.Reason)
	})

	t.Run("unsupported type", func(t *testing.T) {
		w := serve(srv, multipartUpload(t, "README.md", "r.md", "hello", true))
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("name defaults to filename", func(t *testing.T) {
		w := serve(srv, multipartUpload(t, "", "C.java", body(2), true))
		assert.Equal(t, http.StatusCreated, w.Code)
		ok, _ := st.IsFileProcessed(context.Background(), "C.java")
		assert.True(t, ok)
	})

	t.Run("missing data is rejected before the pipeline", func(t *testing.T) {
		before, _ := st.NumberOfFiles(context.Background())
		w := serve(srv, multipartUpload(t, "D.java", "", "", false))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		after, _ := st.NumberOfFiles(context.Background())
		assert.Equal(t, before, after)
	})
}

func TestIngestJSON(t *testing.T) {
	srv, st := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"name":"A.java","contents":"int a;"}`, http.StatusCreated},
		{"missing contents", `{"name":"B.java"}`, http.StatusBadRequest},
		{"empty name", `{"name":"","contents":"x"}`, http.StatusBadRequest},
		{"unknown field", `{"name":"C.java","contents":"x","extra":1}`, http.StatusBadRequest},
		{"not json", `name=A.java`, http.StatusBadRequest},
		{"duplicate", `{"name":"A.java","contents":"int b;"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/files", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := serve(srv, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	n, _ := st.NumberOfFiles(context.Background())
	assert.Equal(t, 1, n)
}

func TestIndexPage(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No clone data found.")
	assert.Contains(t, w.Body.String(), "Processed 0 files containing 0 clones.")

	serve(srv, multipartUpload(t, "A.java", "a", body(6), true))
	serve(srv, multipartUpload(t, "B.java", "b", body(6), true))

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	page := w.Body.String()
	assert.Contains(t, page, "Processed 2 files containing 1 clones.")
	assert.Contains(t, page, "Source File: A.java")
	assert.Contains(t, page, "Found in B.java starting at line 1")
	assert.Contains(t, page, "call5();")
	assert.Contains(t, page, "Timers for last file processed:")
	assert.NotContains(t, page, "No clone data found.")
}

func TestTimers(t *testing.T) {
	srv, _ := newTestServer(t)
	serve(srv, multipartUpload(t, "A.java", "a", body(6), true))
	serve(srv, multipartUpload(t, "src/B.java", "b", body(6), true))
	serve(srv, multipartUpload(t, "A.java", "a", body(6), true)) // rejected, not sampled

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/timers.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Samples []struct {
			Name string `json:"name"`
			LOC  int    `json:"loc"`
		} `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Samples, 2)
	assert.Equal(t, "A.java", resp.Samples[0].Name)
	assert.Equal(t, 6, resp.Samples[0].LOC)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/timers", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Samples: 2")
	assert.Contains(t, w.Body.String(), `title="src/B.java"`)
}

func TestAPIViews(t *testing.T) {
	srv, st := newTestServer(t)
	serve(srv, multipartUpload(t, "A.java", "a", body(6), true))
	serve(srv, multipartUpload(t, "B.java", "b", body(6), true))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/clones", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var clones []models.Clone
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clones))
	require.Len(t, clones, 1)
	assert.Equal(t, "B.java", clones[0].Targets[0].File)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.Clones)
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, 2, stats.Timing.Samples)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/samples", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	m := monitor.New(st, st)
	_, err := m.SampleOnce(context.Background())
	require.NoError(t, err)
	srv.monitor = m

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/samples?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var samples []monitor.Sample
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 2, samples[0].Files)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/samples?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var sum monitor.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 2, sum.Counts.Files)
}

type brokenStore struct {
	*store.MemoryStore
}

func (b *brokenStore) AllFiles(context.Context) ([]models.FileRecord, error) {
	return nil, errors.New("connection reset")
}

func TestStorageFailureIs500(t *testing.T) {
	bs := &brokenStore{MemoryStore: store.NewMemoryStore()}
	srv, err := New(pipeline.New(bs, bs), bs, bs)
	require.NoError(t, err)

	w := serve(srv, multipartUpload(t, "A.java", "a", body(6), true))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	w = serve(srv, req)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", w.Header().Get("X-Request-ID"))
}

func TestStatsEveryLogsWithoutFailing(t *testing.T) {
	srv, _ := newTestServer(t, WithStatsEvery(1))
	w := serve(srv, multipartUpload(t, "A.java", "a", body(6), true))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(1), srv.processed.Load())
}
