// Package server provides the HTTP trigger surface for the glasscam capture
// pipeline.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zero2005x/glasscam/internal/app"
	"github.com/zero2005x/glasscam/internal/store"
)

// CaptureService triggers a capture and reports the outcome. Implemented by
// *app.App.
type CaptureService interface {
	RequestCapture(ctx context.Context) (*app.CaptureResult, error)
}

// Config holds the server configuration.
type Config struct {
	Capture CaptureService
	Store   *store.Store
	// States broadcasts controller transitions to WebSocket clients.
	States *StateHub
	// Metrics serves the Prometheus registry; nil disables /metrics.
	Metrics http.Handler
}

// Server represents the HTTP server for the glasscam daemon.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Capture != nil {
		s.mux.HandleFunc("/api/capture", s.handleCapture)
	}
	if s.config.Store != nil {
		photoHandler := http.HandlerFunc(s.handlePhotos)
		s.mux.Handle("/api/photos", photoHandler)
		s.mux.Handle("/api/photos/", photoHandler)
	}
	if s.config.States != nil {
		s.mux.Handle("/api/state", s.config.States)
	}
	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type captureResponse struct {
	Photo      store.Photo `json:"photo"`
	EstimateMs int64       `json:"estimate_ms"`
}

type listPhotosResponse struct {
	Photos []store.Photo `json:"photos"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	})
}

// handleCapture handles POST requests to /api/capture: it triggers one
// capture and blocks until a terminal state.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.config.Capture.RequestCapture(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, captureResponse{
		Photo:      result.Photo,
		EstimateMs: result.Estimate.Milliseconds(),
	})
}

// handlePhotos routes /api/photos, /api/photos/{id} and /api/photos/{id}/file.
func (s *Server) handlePhotos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/photos")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		s.listPhotos(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	photo, err := s.config.Store.Photos().Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "photo not found"})
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodDelete:
		if err := s.config.Store.Photos().Delete(id); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if err := os.Remove(photo.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("delete photo file %s: %v", photo.FilePath, err)
		}
		w.WriteHeader(http.StatusNoContent)
	case rest == "":
		writeJSON(w, http.StatusOK, photo)
	case rest == "file":
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, photo.FilePath)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) listPhotos(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	photos, err := s.config.Store.Photos().List(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if photos == nil {
		photos = []store.Photo{}
	}
	writeJSON(w, http.StatusOK, listPhotosResponse{Photos: photos})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
