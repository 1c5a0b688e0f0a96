// Package api exposes the ambient HTTP surface: health and Prometheus
// metrics. The order-placement/subscription gateway the full spec
// describes is out of scope (spec.md §1); this mirrors only the
// teacher's /health and /metrics handlers, analogous in shape but
// backed by the real Prometheus registry instead of a hand-rolled
// metrics struct.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"exchangecore/internal/metrics"
)

// Server is the minimal ambient HTTP server.
type Server struct {
	listenAddr string
	registry   *prometheus.Registry
	startTime  time.Time
}

// NewServer builds a Server that serves /healthz and /metrics.
func NewServer(listenAddr string, registry *prometheus.Registry) *Server {
	return &Server{listenAddr: listenAddr, registry: registry, startTime: time.Now()}
}

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler(s.registry))
	return http.ListenAndServe(s.listenAddr, mux)
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", UptimeSeconds: int64(time.Since(s.startTime).Seconds())}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
