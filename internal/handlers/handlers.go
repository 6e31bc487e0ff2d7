package handlers

import (
	"encoding/json"
	"net/http"

	"clipflow/internal/database"
	"clipflow/internal/logging"
	"clipflow/internal/notify"
	"clipflow/internal/pipeline"
	"clipflow/internal/startup"
	"clipflow/internal/streamer"
)

// Handlers bundles the HTTP surface with its collaborators.
type Handlers struct {
	db       *database.Database
	cfg      *startup.Config
	hub      *notify.Hub
	pipeline *pipeline.Manager
	streamer *streamer.Streamer
}

// New wires the HTTP handlers.
func New(db *database.Database, cfg *startup.Config, hub *notify.Hub, pl *pipeline.Manager, str *streamer.Streamer) *Handlers {
	return &Handlers{
		db:       db,
		cfg:      cfg,
		hub:      hub,
		pipeline: pl,
		streamer: str,
	}
}

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn("handlers: write response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Success: false, Message: message})
}

// decodeJSON reads a small JSON request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
