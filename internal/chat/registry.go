package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AccessResult is the outcome of checking a passkey against a room.
type AccessResult int

const (
	AccessGranted AccessResult = iota
	AccessNeedsPasskey
	AccessInvalidPasskey
	AccessNotFound
)

// AddResult is the outcome of attempting to add a named member.
type AddResult int

const (
	AddOK AddResult = iota
	AddDuplicateName
	AddRoomNotFound
)

// Registry maps room ids to room state. Every operation runs inside one
// critical section, so read-then-write sequences such as the duplicate
// name check plus insert, or the last-member check plus room deletion,
// are atomic with respect to each other.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewRegistry returns an empty registry. State lives in process memory
// only; a restart loses all rooms.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// CreateRoom stores a new empty room and returns its generated id. An
// empty passkey creates a public room. Ids are uuids and are never
// reused, so a deleted room id stays dead forever.
func (g *Registry) CreateRoom(passkey string) string {
	id := uuid.NewString()

	g.mu.Lock()
	g.rooms[id] = newRoom(passkey)
	g.mu.Unlock()

	slog.Info("room created", "room", id, "private", passkey != "")
	return id
}

// RoomInfo is a read-only snapshot of one room's metadata.
type RoomInfo struct {
	ID        string
	Private   bool
	Members   int
	CreatedAt time.Time
}

// Lookup reports whether the room exists and returns a metadata
// snapshot. Rooms themselves are never handed out; all mutation goes
// through the registry's operations.
func (g *Registry) Lookup(roomID string) (RoomInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{
		ID:        roomID,
		Private:   rm.passkey != "",
		Members:   len(rm.members),
		CreatedAt: rm.createdAt,
	}, true
}

// Access checks whether the supplied passkey grants entry to the room.
func (g *Registry) Access(roomID, passkey string) AccessResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return AccessNotFound
	}
	if rm.passkey == "" {
		return AccessGranted
	}
	if passkey == "" {
		return AccessNeedsPasskey
	}
	if passkey != rm.passkey {
		return AccessInvalidPasskey
	}
	return AccessGranted
}

// AddMember inserts connID under name. The name must be unique within
// the room under case-insensitive comparison; the check and the insert
// share one critical section so two concurrent claims of the same name
// cannot both succeed.
func (g *Registry) AddMember(roomID, connID, name string) AddResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return AddRoomNotFound
	}
	if rm.hasName(name) {
		return AddDuplicateName
	}
	rm.members[connID] = name
	return AddOK
}

// RemoveMember drops connID's membership and reports the display name it
// held. Emptying the member map deletes the room in the same critical
// section, so no join can ever observe an empty room.
func (g *Registry) RemoveMember(roomID, connID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return "", false
	}
	name, ok := rm.members[connID]
	if !ok {
		return "", false
	}
	delete(rm.members, connID)
	if len(rm.members) == 0 {
		delete(g.rooms, roomID)
		slog.Info("room deleted", "room", roomID, "reason", "empty", "age", time.Since(rm.createdAt))
	}
	return name, true
}

// Members returns a snapshot of the room's connection id to display name
// mapping at the moment of the call. The copy is the caller's to keep.
func (g *Registry) Members(roomID string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	members := make(map[string]string, len(rm.members))
	for connID, name := range rm.members {
		members[connID] = name
	}
	return members
}

// RoomIDs returns a snapshot of the ids of all live rooms.
func (g *Registry) RoomIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	return ids
}

// RoomCount reports the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
