package ports

import "context"

// Notification is a user-facing reminder.
type Notification struct {
	UserID   string `json:"userId"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	MemoryID string `json:"memoryId,omitempty"`
}

// NotificationSink delivers notifications. Delivery is fire-and-forget:
// callers log a returned error and move on.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}
