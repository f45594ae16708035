package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"swiftdrop/server/internal/events"
	"swiftdrop/server/internal/gateway"
	"swiftdrop/server/internal/health"
	"swiftdrop/server/internal/store"
)

type Handlers struct {
	store   *store.Store
	events  *events.Memory
	sweeper health.Sweeper
	gateway *gateway.Server
}

// NewHandlers wires the read-only HTTP surface. gw may be nil when the
// websocket gateway is mounted elsewhere.
func NewHandlers(st *store.Store, evlog *events.Memory, sw health.Sweeper, gw *gateway.Server) *Handlers {
	return &Handlers{store: st, events: evlog, sweeper: sw, gateway: gw}
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.store.Stats()
	body := map[string]any{
		"status":   "ok",
		"sessions": st.Sessions,
		"devices":  st.Devices,
	}
	if h.gateway != nil {
		body["connections"] = h.gateway.Connections()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st := health.CheckAll(ctx, h.store, h.sweeper)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	evts := h.events.List(id)
	if len(evts) == 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     evts,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
