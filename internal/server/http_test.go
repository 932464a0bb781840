package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/studentmarks-service/internal/config"
	"github.com/skypro1111/studentmarks-service/internal/loader"
	"github.com/skypro1111/studentmarks-service/internal/metrics"
	"github.com/skypro1111/studentmarks-service/internal/protocol"
	"github.com/skypro1111/studentmarks-service/internal/store"
)

// stubLoader replaces the store contents with records, or fails with err
type stubLoader struct {
	store   *store.Store
	records []protocol.StudentRecord
	err     error
	calls   int
}

func (s *stubLoader) Load() error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.store.Replace(s.records)
	return nil
}

func (s *stubLoader) Status() loader.Status {
	status := loader.Status{Loads: uint64(s.calls), Records: s.store.Len()}
	if s.err != nil {
		status.LastError = s.err.Error()
	}
	return status
}

func newTestHTTPServer(t *testing.T) (*HTTPServer, *store.Store, *stubLoader, *metrics.Metrics) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	st := store.New()
	st.Replace([]protocol.StudentRecord{{Name: "alice", Mark: 90}, {Name: "bob", Mark: 75}})
	ld := &stubLoader{store: st}

	cfg := config.HTTPConfig{
		Address:        "127.0.0.1",
		Port:           8000,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
	info := ServiceInfo{Name: "studentmarks-test", Version: "9.8.7"}
	return NewHTTPServer(cfg, info, logger, st, ld, m, reg), st, ld, m
}

func doRequest(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStudentList(t *testing.T) {
	h, _, _, _ := newTestHTTPServer(t)

	rec := doRequest(h.Handler(), http.MethodGet, "/api/studentlist", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"name":"alice","mark":90},{"name":"bob","mark":75}]`, rec.Body.String())
}

func TestStudentListEmpty(t *testing.T) {
	h, st, _, _ := newTestHTTPServer(t)
	st.Replace(nil)

	rec := doRequest(h.Handler(), http.MethodGet, "/api/studentlist", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStudentMark(t *testing.T) {
	h, _, _, _ := newTestHTTPServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "existing student", path: "/api/studentmark/alice", wantStatus: http.StatusOK, wantBody: `{"name":"alice","mark":90}`},
		{name: "unknown student", path: "/api/studentmark/zoe", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
		{name: "empty name", path: "/api/studentmark/", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
		{name: "nested path", path: "/api/studentmark/alice/extra", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h.Handler(), http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestAddStudent(t *testing.T) {
	h, st, _, m := newTestHTTPServer(t)

	rec := doRequest(h.Handler(), http.MethodPost, "/api/student", `{"student":"carol","mark":60}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(h.Handler(), http.MethodPost, "/api/student", `{"student":"alice","mark":99}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []protocol.StudentRecord{
		{Name: "alice", Mark: 99},
		{Name: "bob", Mark: 75},
		{Name: "carol", Mark: 60},
	}, st.All())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upserts.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upserts.WithLabelValues("update")))
}

func TestAddStudentBadRequests(t *testing.T) {
	h, st, _, _ := newTestHTTPServer(t)

	tests := []struct {
		name     string
		body     string
		errorMsg string
	}{
		{name: "not JSON", body: `student=carol`, errorMsg: "invalid JSON body"},
		{name: "missing student", body: `{"mark":60}`, errorMsg: "student is required"},
		{name: "empty student", body: `{"student":"","mark":60}`, errorMsg: "student is required"},
		{name: "missing mark", body: `{"student":"carol"}`, errorMsg: "mark is required"},
		{name: "fractional mark", body: `{"student":"carol","mark":60.5}`, errorMsg: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h.Handler(), http.MethodPost, "/api/student", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.errorMsg)
		})
	}

	assert.Equal(t, 2, st.Len())
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _, m := newTestHTTPServer(t)

	rec := doRequest(h.Handler(), http.MethodGet, "/api/student", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(h.Handler(), http.MethodPost, "/api/studentlist", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPErrors.WithLabelValues(http.MethodGet, "/api/student", "client_error")))
}

func TestStats(t *testing.T) {
	h, _, _, _ := newTestHTTPServer(t)

	rec := doRequest(h.Handler(), http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2,"average":82.5,"min":75,"max":90}`, rec.Body.String())
}

func TestRefresh(t *testing.T) {
	h, st, ld, _ := newTestHTTPServer(t)
	ld.records = []protocol.StudentRecord{{Name: "dave", Mark: 40}}

	rec := doRequest(h.Handler(), http.MethodPost, "/api/refresh", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","records":1}`, rec.Body.String())
	assert.Equal(t, []protocol.StudentRecord{{Name: "dave", Mark: 40}}, st.All())

	ld.err = errors.New("fetch mark list: timed out waiting for reply")
	rec = doRequest(h.Handler(), http.MethodPost, "/api/refresh", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "timed out")
	assert.Equal(t, 1, st.Len(), "failed refresh must keep existing records")
}

func TestCORS(t *testing.T) {
	h, _, _, _ := newTestHTTPServer(t)

	t.Run("allowed origin", func(t *testing.T) {
		rec := doRequest(h.Handler(), http.MethodGet, "/api/studentlist", "", map[string]string{"Origin": "http://localhost:3000"})
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("other origin", func(t *testing.T) {
		rec := doRequest(h.Handler(), http.MethodGet, "/api/studentlist", "", map[string]string{"Origin": "http://evil.example"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("non api route", func(t *testing.T) {
		rec := doRequest(h.Handler(), http.MethodGet, "/health", "", map[string]string{"Origin": "http://localhost:3000"})
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		rec := doRequest(h.Handler(), http.MethodOptions, "/api/student", "", map[string]string{
			"Origin":                         "http://localhost:3000",
			"Access-Control-Request-Method":  "POST",
			"Access-Control-Request-Headers": "Content-Type",
		})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	})
}

func TestRequestID(t *testing.T) {
	h, _, _, _ := newTestHTTPServer(t)

	rec := doRequest(h.Handler(), http.MethodGet, "/api/studentlist", "", nil)
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	rec = doRequest(h.Handler(), http.MethodGet, "/api/studentlist", "", map[string]string{requestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestHealth(t *testing.T) {
	h, _, ld, _ := newTestHTTPServer(t)

	rec := doRequest(h.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, map[string]interface{}{"name": "studentmarks-test", "version": "9.8.7"}, health["service"])

	ld.err = errors.New("unreachable")
	rec = doRequest(h.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, "source failures must not make the service unhealthy")
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestRootAndMetrics(t *testing.T) {
	h, _, _, _ := newTestHTTPServer(t)

	rec := doRequest(h.Handler(), http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/studentlist")
	assert.Contains(t, rec.Body.String(), `"version":"9.8.7"`)

	rec = doRequest(h.Handler(), http.MethodGet, "/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doRequest(h.Handler(), http.MethodGet, "/api/studentlist", "", nil)
	rec = doRequest(h.Handler(), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marks_http_requests_total")
}
