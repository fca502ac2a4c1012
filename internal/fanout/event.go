// Package fanout routes realtime events to subscribed clients. Each
// conversation has a logical channel and each user has a global channel.
// Delivery is at-least-once and unordered across event kinds; clients treat
// every event as a hint to re-sync, not as the source of truth.
package fanout

import (
	"encoding/json"
)

type Kind string

const (
	KindMessageCreated      Kind = "message.created"
	KindStatusChanged       Kind = "status.changed"
	KindPresenceChanged     Kind = "presence.changed"
	KindConversationCreated Kind = "conversation.created"
)

// Durable kinds are queued for offline users and flushed on reconnect.
// Presence is point-in-time and worthless once stale, so it is never queued.
func (k Kind) Durable() bool {
	return k != KindPresenceChanged
}

// Event is the wire unit pushed to clients, over NATS between instances, and
// into the offline queue.
type Event struct {
	Kind           Kind        `json:"kind"`
	ConversationID uint        `json:"conversation_id,omitempty"`
	UserID         uint        `json:"user_id,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// StatusChangedPayload references a message/recipient pair; a client that
// does not know the message id re-fetches it instead of dropping the event.
type StatusChangedPayload struct {
	MessageID uint   `json:"message_id"`
	UserID    uint   `json:"user_id"`
	NewState  string `json:"new_state"`
}

type PresenceChangedPayload struct {
	UserID         uint   `json:"user_id"`
	ConversationID uint   `json:"conversation_id,omitempty"`
	IsTyping       bool   `json:"is_typing"`
	LastSeenAt     string `json:"last_seen_at,omitempty"`
}
