package notification

import (
	"context"

	"memorymap-backend/application/ports"
)

// FrameAnniversary is the websocket frame type carrying a reminder.
const FrameAnniversary = "ANNIVERSARY"

// UserMessenger sends a typed frame to every live connection of a user
// and reports how many connections received it.
type UserMessenger interface {
	SendToUser(userID, frameType string, payload any) int
}

type anniversaryPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	MemoryID string `json:"memoryId,omitempty"`
}

// WebSocketSink pushes reminders to the user's open connections. A user
// without connections is not an error; other sinks still cover them.
type WebSocketSink struct {
	messenger UserMessenger
}

func NewWebSocketSink(messenger UserMessenger) *WebSocketSink {
	return &WebSocketSink{messenger: messenger}
}

func (s *WebSocketSink) Notify(_ context.Context, n ports.Notification) error {
	s.messenger.SendToUser(n.UserID, FrameAnniversary, anniversaryPayload{
		Title:    n.Title,
		Body:     n.Body,
		MemoryID: n.MemoryID,
	})
	return nil
}
