package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/studentmarks-service/internal/config"
	"github.com/skypro1111/studentmarks-service/internal/loader"
	"github.com/skypro1111/studentmarks-service/internal/metrics"
	"github.com/skypro1111/studentmarks-service/internal/store"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 16
)

// ServiceInfo identifies the running service in health and index responses
type ServiceInfo struct {
	Name    string
	Version string
}

// MarkLoader reloads the mark list on demand and reports recent outcomes
type MarkLoader interface {
	Load() error
	Status() loader.Status
}

// HTTPServer exposes the record store over a small REST API
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	store    *store.Store
	loader   MarkLoader
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	origins  map[string]bool
	info     ServiceInfo

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, info ServiceInfo, logger *slog.Logger, st *store.Store,
	ld MarkLoader, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		store:     st,
		loader:    ld,
		metrics:   m,
		gatherer:  gatherer,
		origins:   make(map[string]bool, len(cfg.AllowedOrigins)),
		info:      info,
		startTime: time.Now(),
	}
	for _, origin := range cfg.AllowedOrigins {
		h.origins[origin] = true
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.withRequestID(h.withCORS(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Student record endpoints
	mux.HandleFunc("/api/studentlist", h.withMetrics("/api/studentlist", h.handleStudentList))
	mux.HandleFunc("/api/studentmark/", h.withMetrics("/api/studentmark/{name}", h.handleStudentMark))
	mux.HandleFunc("/api/student", h.withMetrics("/api/student", h.handleAddStudent))
	mux.HandleFunc("/api/stats", h.withMetrics("/api/stats", h.handleStats))
	mux.HandleFunc("/api/refresh", h.withMetrics("/api/refresh", h.handleRefresh))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the root handler, including CORS and request ID middleware
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime)
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration.Seconds())

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}

		h.logger.Debug("HTTP request handled",
			slog.String("request_id", w.Header().Get(requestIDHeader)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.statusCode),
			slog.Duration("duration", duration),
		)
	}
}

// withRequestID propagates or assigns an X-Request-ID for every request
func (h *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// withCORS applies the cross-origin policy to /api/ routes and answers preflights
func (h *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		allowed := origin != "" && (h.origins[origin] || h.origins["*"])
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if headers := r.Header.Get("Access-Control-Request-Headers"); headers != "" {
					w.Header().Set("Access-Control-Allow-Headers", headers)
				}
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleStudentList implements GET /api/studentlist
func (h *HTTPServer) handleStudentList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.store.All())
}

// handleStudentMark implements GET /api/studentmark/{name}
func (h *HTTPServer) handleStudentMark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/studentmark/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	record, exists := h.store.Get(name)
	if !exists {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// addStudentRequest is the body of POST /api/student
type addStudentRequest struct {
	Student *string `json:"student"`
	Mark    *int    `json:"mark"`
}

// handleAddStudent implements POST /api/student
func (h *HTTPServer) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req addStudentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	if req.Student == nil || *req.Student == "" {
		writeError(w, http.StatusBadRequest, "student is required")
		return
	}
	if req.Mark == nil {
		writeError(w, http.StatusBadRequest, "mark is required")
		return
	}

	created := h.store.Upsert(*req.Student, *req.Mark)
	h.metrics.RecordUpsert(created)
	h.metrics.SetStoredRecords(h.store.Len())

	h.logger.Info("Student record saved",
		slog.String("request_id", w.Header().Get(requestIDHeader)),
		slog.String("student", *req.Student),
		slog.Int("mark", *req.Mark),
		slog.Bool("created", created),
	)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats implements GET /api/stats
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.store.Stats())
}

// handleRefresh implements POST /api/refresh
func (h *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.loader.Load(); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"records": h.store.Len(),
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	loadStatus := h.loader.Status()
	sourceStatus := "ok"
	if loadStatus.LastError != "" {
		sourceStatus = "degraded"
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    h.info.Name,
			"version": h.info.Version,
		},
		"components": map[string]interface{}{
			"source": map[string]interface{}{
				"status": sourceStatus,
				"loads":  loadStatus,
			},
			"store": map[string]interface{}{
				"status":  "running",
				"records": h.store.Len(),
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Student Marks Service",
		"version": h.info.Version,
		"endpoints": map[string]interface{}{
			"GET /":                       "API documentation",
			"GET /health":                 "Service health check",
			"GET /metrics":                "Prometheus metrics",
			"GET /api/studentlist":        "List all student records",
			"GET /api/studentmark/{name}": "Get one student's mark",
			"POST /api/student":           "Add or update a student record",
			"GET /api/stats":              "Mark count, average, min and max",
			"POST /api/refresh":           "Reload the mark list from the source",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
