package chat

import (
	"strings"
	"time"
)

// room is the per-room state owned exclusively by the Registry. All
// access happens under the Registry mutex; rooms are never handed out,
// so a concurrently deleted room cannot leave dangling references.
type room struct {
	passkey   string            // empty means public
	members   map[string]string // connection id -> display name
	createdAt time.Time
}

func newRoom(passkey string) *room {
	return &room{
		passkey:   passkey,
		members:   make(map[string]string),
		createdAt: time.Now(),
	}
}

// hasName reports whether any current member already holds name,
// compared case-insensitively.
func (r *room) hasName(name string) bool {
	for _, existing := range r.members {
		if strings.EqualFold(existing, name) {
			return true
		}
	}
	return false
}
