package chat

import (
	"encoding/json"
	"strings"
)

// Step is how far a connection has progressed through the room protocol.
type Step int

const (
	StepConnected Step = iota
	StepAwaitingUsername
	StepActive
	StepDisconnected
)

func (s Step) String() string {
	switch s {
	case StepConnected:
		return "connected"
	case StepAwaitingUsername:
		return "awaiting-username"
	case StepActive:
		return "active"
	case StepDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// RoomBroadcast pairs a message with the room whose members should
// receive it.
type RoomBroadcast struct {
	RoomID  string
	Message Message
}

// Outcome is the complete effect of handling one inbound event: replies
// for the originating connection, broadcasts for room members, and
// whether the connection should be closed. Rejected requests carry
// replies only and leave registry state untouched.
type Outcome struct {
	Replies    []ServerEvent
	Broadcasts []RoomBroadcast
	Close      bool
}

func (o *Outcome) reply(event string, data any) {
	o.Replies = append(o.Replies, ServerEvent{Event: event, Data: data})
}

func (o *Outcome) fail(message string) {
	o.reply(EventError, ErrorPayload{Message: message})
}

func (o *Outcome) broadcast(roomID string, msg Message) {
	o.Broadcasts = append(o.Broadcasts, RoomBroadcast{RoomID: roomID, Message: msg})
}

// Session tracks one connection's step, bound room, and display name. A
// session is owned by exactly one connection handler and must never be
// shared; everything visible to other connections goes through the
// Registry. Display name and membership are set together in AddMember,
// so a session is never a member without a name.
type Session struct {
	ConnID string
	step   Step
	roomID string
	name   string
}

// NewSession returns a session in the connected step.
func NewSession(connID string) *Session {
	return &Session{ConnID: connID, step: StepConnected}
}

// Step returns the current lifecycle step.
func (s *Session) Step() Step { return s.step }

// RoomID returns the bound room id, or the empty string.
func (s *Session) RoomID() string { return s.roomID }

// Name returns the claimed display name, or the empty string.
func (s *Session) Name() string { return s.name }

// Handle dispatches one inbound envelope through the state machine.
// Every path either fully applies (state change plus notifications) or
// fully rejects with a reply and no mutation.
func (s *Session) Handle(reg *Registry, env Envelope) Outcome {
	var out Outcome
	if s.step == StepDisconnected {
		return out
	}

	switch env.Event {
	case EventHost:
		var req HostRequest
		if !decode(env.Data, &req, &out) {
			return out
		}
		return s.host(reg, req)
	case EventJoin:
		var req JoinRequest
		if !decode(env.Data, &req, &out) {
			return out
		}
		return s.join(reg, req)
	case EventSetName:
		var req SetNameRequest
		if !decode(env.Data, &req, &out) {
			return out
		}
		return s.setName(reg, req)
	case EventSendMessage:
		var req SendMessageRequest
		if !decode(env.Data, &req, &out) {
			return out
		}
		return s.sendMessage(req)
	case EventLeave:
		return s.Leave(reg)
	default:
		out.fail("Unknown event")
		return out
	}
}

func decode(data json.RawMessage, v any, out *Outcome) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, v); err != nil {
		out.fail("Invalid payload")
		return false
	}
	return true
}

func (s *Session) host(reg *Registry, req HostRequest) Outcome {
	var out Outcome
	if s.step != StepConnected {
		out.fail("Already in a room")
		return out
	}

	passkey := ""
	if req.Private {
		passkey = req.Passkey
	}
	roomID := reg.CreateRoom(passkey)

	s.roomID = roomID
	s.step = StepAwaitingUsername
	out.reply(EventRoomCreated, RoomCreatedPayload{
		RoomID:          roomID,
		PasskeyRequired: passkey != "",
		Message:         "Room created. Please set your username.",
	})
	return out
}

func (s *Session) join(reg *Registry, req JoinRequest) Outcome {
	var out Outcome
	if s.step != StepConnected && s.step != StepAwaitingUsername {
		out.fail("Already in a room")
		return out
	}
	if req.RoomID == "" {
		out.fail("Missing roomId")
		return out
	}

	switch reg.Access(req.RoomID, req.Passkey) {
	case AccessNotFound:
		out.fail("Room does not exist")
	case AccessNeedsPasskey:
		// Prompt to retry with a passkey; no binding happens yet.
		out.reply(EventNeedPasskey, NeedPasskeyPayload{
			RoomID:  req.RoomID,
			Message: "Passkey required to join this room",
		})
	case AccessInvalidPasskey:
		out.fail("Invalid passkey")
	case AccessGranted:
		s.roomID = req.RoomID
		s.step = StepAwaitingUsername
		out.reply(EventNeedUsername, NeedUsernamePayload{
			RoomID:  req.RoomID,
			Message: "Enter username to join",
		})
	}
	return out
}

func (s *Session) setName(reg *Registry, req SetNameRequest) Outcome {
	var out Outcome
	if s.step != StepAwaitingUsername || s.roomID == "" {
		out.fail("No room selected")
		return out
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		out.fail("Username cannot be empty")
		return out
	}

	switch reg.AddMember(s.roomID, s.ConnID, name) {
	case AddRoomNotFound:
		// The room evaporated between join and naming.
		out.fail("Room not found or expired")
	case AddDuplicateName:
		out.reply(EventNeedUsername, NeedUsernamePayload{
			RoomID:  s.roomID,
			Message: "Username already in use, choose a different one",
		})
	case AddOK:
		s.name = name
		s.step = StepActive
		out.broadcast(s.roomID, SystemMessage("*** "+name+" joined the chat ***"))
		out.reply(EventJoinedRoom, JoinedRoomPayload{
			RoomID:   s.roomID,
			Username: name,
			Message:  "Connection successful. Welcome!",
		})
	}
	return out
}

func (s *Session) sendMessage(req SendMessageRequest) Outcome {
	var out Outcome
	if req.Text == "" {
		// Empty lines are dropped without an error signal.
		return out
	}
	if s.step != StepActive || s.roomID == "" {
		out.fail("Not in a room")
		return out
	}

	out.broadcast(s.roomID, NewMessage(s.name, req.Text, req.RepliedTo))
	return out
}

// Leave runs the departure path shared by the explicit leave event and
// transport-level disconnect. A named member is removed from its room
// and announced to the remaining members. The transition to the
// disconnected step is terminal, which makes a second call a no-op.
func (s *Session) Leave(reg *Registry) Outcome {
	var out Outcome
	if s.step == StepDisconnected {
		return out
	}

	if s.roomID != "" && s.name != "" {
		if name, ok := reg.RemoveMember(s.roomID, s.ConnID); ok {
			out.broadcast(s.roomID, SystemMessage("*** "+name+" left the chat ***"))
		}
	}

	s.roomID = ""
	s.name = ""
	s.step = StepDisconnected
	out.Close = true
	return out
}
