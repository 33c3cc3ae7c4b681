// Package api exposes the driver's introspection HTTP surface: Prometheus
// metrics, a liveness/readiness endpoint, process status, and a snapshot of
// the most recent fetch for debugging.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkantaria/pgcolumn/internal/config"
	"github.com/jkantaria/pgcolumn/internal/health"
	"github.com/jkantaria/pgcolumn/internal/metrics"
)

// LastFetch is a snapshot of the most recently completed (or failed) fetch,
// exposed at /debug/lastfetch for ad hoc inspection.
type LastFetch struct {
	SQL      string        `json:"sql"`
	Protocol string        `json:"protocol"`
	Rows     int           `json:"rows"`
	Columns  []string      `json:"columns"`
	Duration time.Duration `json:"duration_ns"`
	Err      string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

// Server is the introspection HTTP server.
type Server struct {
	prober     *health.Prober
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
	apiCfg     config.APIConfig

	mu   sync.RWMutex
	last *LastFetch
}

// NewServer creates a new introspection API server.
func NewServer(p *health.Prober, m *metrics.Collector, apiCfg config.APIConfig) *Server {
	return &Server{
		prober:    p,
		metrics:   m,
		startTime: time.Now(),
		apiCfg:    apiCfg,
	}
}

// RecordFetch stores the outcome of a fetch for later inspection via
// /debug/lastfetch. Safe to call from any goroutine.
func (s *Server) RecordFetch(lf LastFetch) {
	lf.At = time.Now()
	s.mu.Lock()
	s.last = &lf
	s.mu.Unlock()
}

// Start starts the HTTP API server.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.HandleFunc("/debug/lastfetch", s.lastFetchHandler).Methods("GET")
	r.Handle("/metrics", s.metricsHandler())

	addr := fmt.Sprintf("%s:%d", s.apiCfg.Bind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.authMiddleware(r),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[api] introspection API listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// authMiddleware requires a bearer token matching apiCfg.APIKey on every
// route except the endpoints a load balancer or scraper needs unauthenticated.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiCfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		switch r.URL.Path {
		case "/healthz", "/ready", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) || auth[len(prefix):] != s.apiCfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsHandler serves the collector's own registry rather than the global
// default one, since metrics.New creates an independent registry per
// Collector instance.
func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil || s.metrics.Registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.prober == nil || s.prober.IsHealthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	resp := map[string]interface{}{"status": boolToStatus(healthy)}
	if s.prober != nil {
		st, lastCheck, failures := s.prober.StatusSnapshot()
		resp["last_check"] = lastCheck
		resp["consecutive_failures"] = failures
		resp["detail"] = st.String()
	}
	writeJSON(w, status, resp)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil || s.prober.IsHealthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
	})
}

func (s *Server) lastFetchHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	lf := s.last
	s.mu.RUnlock()

	if lf == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no fetch recorded yet"})
		return
	}
	writeJSON(w, http.StatusOK, lf)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
