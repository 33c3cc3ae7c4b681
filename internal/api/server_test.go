package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/jkantaria/pgcolumn/internal/config"
	"github.com/jkantaria/pgcolumn/internal/health"
	"github.com/jkantaria/pgcolumn/internal/metrics"
)

func newTestServer(apiKey string) (*Server, http.Handler) {
	m := metrics.New()
	p := health.NewProber(health.PingFunc(func() bool { return true }), m, 10*time.Millisecond, 2)

	s := NewServer(p, m, config.APIConfig{Bind: "127.0.0.1", Port: 0, APIKey: apiKey})

	r := mux.NewRouter()
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.HandleFunc("/debug/lastfetch", s.lastFetchHandler).Methods("GET")
	r.HandleFunc("/metrics", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	return s, s.authMiddleware(r)
}

func TestHealthzEndpoint(t *testing.T) {
	_, handler := newTestServer("")

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	_, handler := newTestServer("")

	req := httptest.NewRequest("GET", "/ready", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, handler := newTestServer("")

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := result["go_version"]; !ok {
		t.Error("expected go_version in status response")
	}
}

func TestLastFetchEndpointEmpty(t *testing.T) {
	_, handler := newTestServer("")

	req := httptest.NewRequest("GET", "/debug/lastfetch", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestLastFetchEndpointRecorded(t *testing.T) {
	s, handler := newTestServer("")

	s.RecordFetch(LastFetch{
		SQL:      "SELECT 1",
		Protocol: "extended",
		Rows:     1,
		Columns:  []string{"?column?"},
	})

	req := httptest.NewRequest("GET", "/debug/lastfetch", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var result LastFetch
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.SQL != "SELECT 1" {
		t.Errorf("expected recorded SQL, got %q", result.SQL)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, handler := newTestServer("test-secret-key")

	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer test-secret-key")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", rr.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, handler := newTestServer("test-secret-key")

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with missing token, got %d", rr.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	_, handler := newTestServer("test-secret-key")

	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with invalid token, got %d", rr.Code)
	}
}

func TestAuthMiddleware_ExemptEndpoints(t *testing.T) {
	_, handler := newTestServer("test-secret-key")

	for _, path := range []string{"/healthz", "/ready", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code == http.StatusUnauthorized {
			t.Errorf("%s should not require auth, got 401", path)
		}
	}
}

func TestAuthMiddleware_NoKeyConfigured(t *testing.T) {
	_, handler := newTestServer("")

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 when no API key configured, got %d", rr.Code)
	}
}
