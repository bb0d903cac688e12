package chat

import "encoding/json"

// Client to server event names.
const (
	EventHost        = "host"
	EventJoin        = "join"
	EventSetName     = "setName"
	EventSendMessage = "sendMessage"
	EventLeave       = "leave"
)

// Server to client event names.
const (
	EventConnected    = "connected"
	EventRoomCreated  = "roomCreated"
	EventNeedPasskey  = "needPasskey"
	EventNeedUsername = "needUsername"
	EventJoinedRoom   = "joinedRoom"
	EventChatMessage  = "chatMessage"
	EventError        = "error"
)

// Envelope is the frame carried on the wire in both directions. Data is
// left raw so the session machine can decode it per event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is an outbound event before marshaling.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// HostRequest asks the server to create a room. The passkey is honored
// only when Private is set.
type HostRequest struct {
	Private bool   `json:"private"`
	Passkey string `json:"passkey,omitempty"`
}

// JoinRequest asks to enter an existing room.
type JoinRequest struct {
	RoomID  string `json:"roomId"`
	Passkey string `json:"passkey,omitempty"`
}

// SetNameRequest claims a display name in the bound room.
type SetNameRequest struct {
	Name string `json:"name"`
}

// SendMessageRequest carries a chat line. RepliedTo is an opaque client
// payload echoed back on the broadcast message, never validated.
type SendMessageRequest struct {
	Text      string          `json:"text"`
	RepliedTo json.RawMessage `json:"repliedTo,omitempty"`
}

// RoomCreatedPayload acknowledges a host request.
type RoomCreatedPayload struct {
	RoomID          string `json:"roomId"`
	PasskeyRequired bool   `json:"passkeyRequired"`
	Message         string `json:"message,omitempty"`
}

// NeedPasskeyPayload prompts the client to retry a join with a passkey.
type NeedPasskeyPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message,omitempty"`
}

// NeedUsernamePayload prompts for a display name, both on first join and
// as the duplicate-name re-prompt.
type NeedUsernamePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message,omitempty"`
}

// JoinedRoomPayload acknowledges completed room entry to the joining
// connection only.
type JoinedRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

// ErrorPayload reports a rejected request to the originating connection.
type ErrorPayload struct {
	Message string `json:"message"`
}
