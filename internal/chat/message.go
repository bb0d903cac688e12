package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SystemSender is the reserved sender name for server-generated notices
// such as join, leave, and shutdown announcements.
const SystemSender = "system"

// Message is a chat payload delivered to the members of one room at send
// time. Messages are never persisted and never replayed to late joiners.
type Message struct {
	MessageID string          `json:"messageId"`
	From      string          `json:"from"`
	Text      string          `json:"text"`
	Timestamp int64           `json:"timestamp"`
	RepliedTo json.RawMessage `json:"repliedTo"`
}

// NewMessage builds a message from a named sender. The repliedTo payload
// is echoed verbatim; absent references serialize as null.
func NewMessage(from, text string, repliedTo json.RawMessage) Message {
	if len(repliedTo) == 0 {
		repliedTo = json.RawMessage("null")
	}
	return Message{
		MessageID: uuid.NewString(),
		From:      from,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		RepliedTo: repliedTo,
	}
}

// SystemMessage builds a server notice attributed to the system sender.
func SystemMessage(text string) Message {
	return NewMessage(SystemSender, text, nil)
}
