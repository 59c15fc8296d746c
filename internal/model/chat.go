package model

import (
	"time"
)

// UserRef is a lightweight reference to a platform user.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Message represents a single chat message. Edited and deleted messages stay
// in place in the sequence; edits replace content, deletes tombstone it.
type Message struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chat_id"`
	SenderID string    `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
	Edited   bool      `json:"edited"`
	Deleted  bool      `json:"deleted"`
}

// LastMessage is the denormalized preview of a chat's most recent message.
type LastMessage struct {
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	SentAt    time.Time `json:"sent_at"`
	Deleted   bool      `json:"deleted"`
}

// ChatSummary is the denormalized per-conversation record used for list
// rendering. The collection of summaries is kept sorted descending by
// UpdatedAt.
type ChatSummary struct {
	ChatID      string      `json:"chat_id"`
	Target      UserRef     `json:"target"`
	LastMessage LastMessage `json:"last_message"`
	UnreadCount int         `json:"unread_count"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
