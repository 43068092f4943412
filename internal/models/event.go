package models

// User lifecycle event types
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"
)

// UserEvent is published after a user mutation has been committed.
type UserEvent struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}
