package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/roomloft/roomloft/internal/chat"
)

func startHub(t *testing.T) (*Hub, *chat.Registry) {
	t.Helper()
	registry := chat.NewRegistry()
	hub := NewHub(registry)
	go hub.Run()
	t.Cleanup(func() {
		if err := hub.Shutdown(time.Second); err != nil {
			t.Errorf("hub shutdown: %v", err)
		}
	})
	return hub, registry
}

// registerClient adds a pump-less client and waits for the hub loop to
// pick it up.
func registerClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClient(nil, hub, "127.0.0.1:0")
	hub.GetRegisterChan() <- client
	time.Sleep(10 * time.Millisecond)
	return client
}

func expectFrame(t *testing.T, client *Client) chat.Envelope {
	t.Helper()
	select {
	case payload := <-client.GetSendChan():
		var env chat.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("invalid frame %s: %v", payload, err)
		}
		return env
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no frame delivered")
		return chat.Envelope{}
	}
}

func expectNoFrame(t *testing.T, client *Client) {
	t.Helper()
	select {
	case payload, ok := <-client.GetSendChan():
		if ok {
			t.Fatalf("unexpected frame delivered: %s", payload)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// TestBroadcastRoomTargetsMembersOnly verifies that a room broadcast
// reaches every registered member of that room and nobody else.
func TestBroadcastRoomTargetsMembersOnly(t *testing.T) {
	hub, registry := startHub(t)

	alice := registerClient(t, hub)
	bob := registerClient(t, hub)
	outsider := registerClient(t, hub)

	roomID := registry.CreateRoom("")
	registry.AddMember(roomID, alice.Session().ConnID, "alice")
	registry.AddMember(roomID, bob.Session().ConnID, "bob")

	hub.BroadcastRoom(roomID, chat.ServerEvent{
		Event: chat.EventChatMessage,
		Data:  chat.NewMessage("alice", "hi", nil),
	})

	for _, member := range []*Client{alice, bob} {
		env := expectFrame(t, member)
		if env.Event != chat.EventChatMessage {
			t.Errorf("member got event %q, want chatMessage", env.Event)
		}
		var msg chat.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatalf("invalid message payload: %v", err)
		}
		if msg.From != "alice" || msg.Text != "hi" {
			t.Errorf("message = %+v", msg)
		}
	}

	expectNoFrame(t, outsider)
}

// TestBroadcastRoomSkipsDepartedConnections verifies that a member whose
// connection is already unregistered is silently skipped.
func TestBroadcastRoomSkipsDepartedConnections(t *testing.T) {
	hub, registry := startHub(t)

	alice := registerClient(t, hub)

	roomID := registry.CreateRoom("")
	registry.AddMember(roomID, alice.Session().ConnID, "alice")
	// A member entry with no live connection behind it.
	registry.AddMember(roomID, "gone-conn", "ghost")

	hub.BroadcastRoom(roomID, chat.ServerEvent{
		Event: chat.EventChatMessage,
		Data:  chat.SystemMessage("still here"),
	})

	env := expectFrame(t, alice)
	if env.Event != chat.EventChatMessage {
		t.Errorf("got event %q, want chatMessage", env.Event)
	}
}

// TestBroadcastRoomUnknownRoom verifies that broadcasting to a dead room
// id delivers nothing and does not panic.
func TestBroadcastRoomUnknownRoom(t *testing.T) {
	hub, _ := startHub(t)
	client := registerClient(t, hub)

	hub.BroadcastRoom("no-such-room", chat.ServerEvent{Event: chat.EventChatMessage})
	expectNoFrame(t, client)
}

// TestAnnounceShutdownReachesEveryRoom verifies that the shutdown notice
// lands in each live room with the system sender.
func TestAnnounceShutdownReachesEveryRoom(t *testing.T) {
	hub, registry := startHub(t)

	alice := registerClient(t, hub)
	bob := registerClient(t, hub)

	roomA := registry.CreateRoom("")
	roomB := registry.CreateRoom("x")
	registry.AddMember(roomA, alice.Session().ConnID, "alice")
	registry.AddMember(roomB, bob.Session().ConnID, "bob")

	hub.AnnounceShutdown()

	for _, member := range []*Client{alice, bob} {
		env := expectFrame(t, member)
		var msg chat.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatalf("invalid message payload: %v", err)
		}
		if msg.From != chat.SystemSender || msg.Text != "*** Server is shutting down ***" {
			t.Errorf("shutdown notice = %+v", msg)
		}
	}
}

// TestUnregisterClosesSendChannel verifies that unregistration closes
// the client's send channel and drops it from the hub.
func TestUnregisterClosesSendChannel(t *testing.T) {
	hub, registry := startHub(t)

	client := registerClient(t, hub)
	roomID := registry.CreateRoom("")
	registry.AddMember(roomID, client.Session().ConnID, "alice")

	hub.GetUnregisterChan() <- client
	time.Sleep(10 * time.Millisecond)

	select {
	case _, ok := <-client.GetSendChan():
		if ok {
			t.Error("expected closed channel, got a frame")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("send channel not closed after unregister")
	}

	// Unregistering twice must not panic or double-close.
	hub.GetUnregisterChan() <- client
	time.Sleep(10 * time.Millisecond)

	// Broadcasting to the still-listed member is now a silent skip.
	hub.BroadcastRoom(roomID, chat.ServerEvent{Event: chat.EventChatMessage})
}

// TestNilClientRegistration verifies the hub survives a nil registration.
func TestNilClientRegistration(t *testing.T) {
	hub, _ := startHub(t)

	hub.GetRegisterChan() <- nil
	time.Sleep(10 * time.Millisecond)
}
