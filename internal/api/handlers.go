package api

import (
	"encoding/json"
	"net/http"
)

// StatusFunc returns a JSON-serialisable snapshot of the daemon's state.
type StatusFunc func() any

func newMux(health *HealthService, metrics http.Handler, status StatusFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth(health))
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	if status != nil {
		mux.HandleFunc("GET /status", handleStatus(status))
	}
	return mux
}

// handleHealth answers 200 "ok" while serving and 503 otherwise.
func handleHealth(health *HealthService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !health.Serving() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not serving\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}
}

// handleStatus serialises the current status snapshot.
func handleStatus(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status())
	}
}
