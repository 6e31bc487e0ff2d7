package handlers

import (
	"net/http"

	"clipflow/internal/startup"
)

// Health reports liveness. The database ping is cheap enough to run on
// every probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports build information.
func (h *Handlers) Version(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, startup.GetBuildInfo())
}
