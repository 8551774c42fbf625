// cmd/worker-manager/server.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crm-assistant/internal/common/database"
)

// newServer exposes liveness, readiness and Prometheus metrics.
func newServer(port int, deps []database.Pinger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
	})
	mux.HandleFunc("/ready", readyHandler(deps))
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func readyHandler(deps []database.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := database.CheckAll(r.Context(), 2*time.Second, deps...)
		if len(failures) == 0 {
			writeStatus(w, http.StatusOK, map[string]interface{}{"status": "ready"})
			return
		}
		details := make(map[string]string, len(failures))
		for name, err := range failures {
			details[name] = err.Error()
		}
		writeStatus(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not ready",
			"failures": details,
		})
	}
}

func writeStatus(w http.ResponseWriter, code int, body map[string]interface{}) {
	body["time"] = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func shutdownServer(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
