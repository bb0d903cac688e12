// Package server wires HTTP handlers into a router for the relay.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter configures the HTTP surface: the WebSocket event channel,
// the keep-alive probe, and the static client shell served from
// staticDir.
func NewRouter(hub *Hub, staticDir string) *mux.Router {
	r := mux.NewRouter()
	// The websocket handler does its own method check so non-GET
	// requests get a 405 instead of falling through to the file server.
	r.HandleFunc("/ws", NewWebSocketHandler(hub))
	r.HandleFunc("/keep-alive", KeepAliveHandler).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	return r
}
