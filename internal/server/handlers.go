// Package server exposes the HTTP handlers: WebSocket upgrades and the
// keep-alive probe.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler returns the handler for the event channel
// endpoint. It upgrades the connection, queues the connected
// acknowledgment ahead of all other traffic, and registers the client;
// the hub launches the pump goroutines.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		client.queueConnected()
		hub.register <- client
	}
}

// KeepAliveHandler answers uptime probes with a tiny JSON body carrying
// a millisecond timestamp.
func KeepAliveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"alive": true, "ts": time.Now().UnixMilli()}); err != nil {
		slog.Warn("error writing keep-alive response", "error", err)
		return
	}
	slog.Info("keep-alive ping received", "remote", r.RemoteAddr)
}
