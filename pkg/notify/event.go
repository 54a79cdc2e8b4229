package notify

import (
	"encoding/json"
	"fmt"
)

// Event kinds used on the wire.
const (
	KindNotification = "notification"
	KindJoinRoom     = "joinRoom"
)

// Event is a server-originated message.
type Event struct {
	Kind         string
	Payload      json.RawMessage
	TargetUserID string
}

// Type is the notification severity.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is the payload of a "notification" event.
type Notification struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// Notification decodes the payload of a notification event.
func (e Event) Notification() (Notification, error) {
	var n Notification
	if e.Kind != KindNotification {
		return n, fmt.Errorf("notify: event %q is not a notification", e.Kind)
	}
	if err := json.Unmarshal(e.Payload, &n); err != nil {
		return n, fmt.Errorf("notify: decode notification: %w", err)
	}
	return n, nil
}

type joinRoom struct {
	RoomID string `json:"roomId"`
}

// frame is the wire envelope in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	To    string          `json:"to,omitempty"`
}
