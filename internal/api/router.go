package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.HandleReady)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.HandleStatus(w, r)
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		// /api/sessions/{id}/events
		path := strings.TrimSuffix(r.URL.Path, "/")
		const prefix = "/api/sessions/"
		if !strings.HasPrefix(path, prefix) {
			http.NotFound(w, r)
			return
		}
		parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
		if len(parts) != 2 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		id := parts[0]

		switch parts[1] {
		case "events":
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.HandleListEvents(w, r, id)
		default:
			http.NotFound(w, r)
		}
	})

	if h.gateway != nil {
		mux.HandleFunc("/ws", h.gateway.HandleWS)
		mux.HandleFunc("/socket", h.gateway.HandleWS)
	}

	return mux
}
