package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes attaches every handler to the router. Upload, listing,
// streaming, and the websocket all require authentication; only the
// auth endpoints and system probes are public.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/api/version", h.Version).Methods(http.MethodGet)

	auth := router.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	private := router.PathPrefix("/api").Subrouter()
	private.Use(h.RequireAuth)
	private.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	private.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
	private.HandleFunc("/auth/change-password", h.ChangePassword).Methods(http.MethodPost)

	private.HandleFunc("/video/upload", h.Upload).Methods(http.MethodPost)
	private.HandleFunc("/video/all", h.List).Methods(http.MethodGet)
	private.HandleFunc("/video/stream/{id}", h.Stream).Methods(http.MethodGet)
	private.HandleFunc("/video/{id}", h.Get).Methods(http.MethodGet)
	private.HandleFunc("/video/{id}", h.Delete).Methods(http.MethodDelete)

	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(h.RequireAuth)
	ws.HandleFunc("", h.Websocket)
}
