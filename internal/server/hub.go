// Package server coordinates client registration, room-scoped event
// fan-out, and connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/roomloft/roomloft/internal/chat"
)

// Hub tracks every live WebSocket connection by its connection id and
// delivers room broadcasts to the connections the registry lists as
// members at the moment of the call. Registration and unregistration
// run on the hub's event loop; fan-outs are serialized so that all
// members of a room observe the same relative message order.
type Hub struct {
	registry   *chat.Registry
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	sendMu     sync.Mutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub bound to the given room registry. The returned
// Hub is ready once Run is started in its own goroutine.
func NewHub(registry *chat.Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   registry,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the room registry the hub routes against.
func (h *Hub) Registry() *chat.Registry {
	return h.registry
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's event loop, handling client registration and
// unregistration until Shutdown cancels it. Call in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("received nil client registration; skipping")
				continue
			}

			h.mu.Lock()
			client.closed = false
			h.clients[client.session.ConnID] = client
			clientCount := len(h.clients)
			h.mu.Unlock()
			slog.Info("client registered", "addr", client.addr, "conn", client.session.ConnID, "total", clientCount)

			if client.conn == nil {
				continue
			}
			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.session.ConnID]; ok {
				delete(h.clients, client.session.ConnID)
				client.closed = true
				clientCount := len(h.clients)
				h.mu.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				slog.Info("client unregistered", "addr", client.addr, "conn", client.session.ConnID, "total", clientCount)
			} else {
				h.mu.Unlock()
			}
		}
	}
}

// BroadcastRoom delivers event to every connection the registry lists as
// a member of roomID right now. Delivery is best-effort: a member whose
// connection is already gone is skipped, and one whose send buffer is
// full is reaped; neither is an error for the sender.
func (h *Hub) BroadcastRoom(roomID string, event chat.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal broadcast event", "room", roomID, "error", err)
		return
	}

	h.sendMu.Lock()
	members := h.registry.Members(roomID)
	var failed []*Client
	for connID := range members {
		h.mu.RLock()
		client, ok := h.clients[connID]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.sendMu.Unlock()

	slog.Debug("room broadcast", "room", roomID, "event", event.Event, "members", len(members))
	h.removeFailedClients(failed)
}

// AnnounceShutdown sends the shutdown notice to every live room. Called
// before the process stops accepting traffic so members learn why their
// connection is about to drop.
func (h *Hub) AnnounceShutdown() {
	for _, roomID := range h.registry.RoomIDs() {
		h.BroadcastRoom(roomID, chat.ServerEvent{
			Event: chat.EventChatMessage,
			Data:  chat.SystemMessage("*** Server is shutting down ***"),
		})
	}
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send so unregister cannot close
	// the channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	current, exists := h.clients[client.session.ConnID]
	if !exists || current != client || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients drops clients whose send buffers overflowed and
// closes their channels; their pumps notice and run the leave path.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mu.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client.session.ConnID]; exists {
			delete(h.clients, client.session.ConnID)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			slog.Warn("client removed due to full send buffer", "addr", client.addr, "conn", client.session.ConnID)
		}
	}
	h.mu.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	slog.Info("shutting down all client connections")

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					slog.Warn("error closing client connection", "addr", client.addr, "error", err)
				}
			}
		}
	}

	slog.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the event loop, closes every connection, and waits for
// the pump goroutines to finish or the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
