package chatstore

import (
	"github.com/chatterline/realtime-go/internal/model"
)

// Action is a named mutation of the chat store. The set is closed: every
// change to chat state goes through Dispatch with one of the types below, so
// each mutation is traceable and testable in isolation from the transport.
type Action interface {
	name() string
}

// NewMessage appends a message to its chat and refreshes the chat summary:
// last-message preview, updatedAt, ordering, and unread count.
type NewMessage struct {
	Message model.Message
	Sender  model.UserRef
}

// EditMessage replaces a message's content in place and marks it edited.
type EditMessage struct {
	ChatID    string
	MessageID string
	Content   string
}

// DeleteMessage tombstones a message. It stays in the sequence; the
// displayed content becomes a deletion placeholder.
type DeleteMessage struct {
	ChatID    string
	MessageID string
}

// MarkRead resets a chat's unread count to zero. This is the only action
// that may decrease an unread count.
type MarkRead struct {
	ChatID string
}

// ChatCreated inserts a chat summary, typically from the initial REST fetch
// or a brand-new conversation.
type ChatCreated struct {
	Summary model.ChatSummary
}

func (NewMessage) name() string    { return "new_message" }
func (EditMessage) name() string   { return "edit_message" }
func (DeleteMessage) name() string { return "delete_message" }
func (MarkRead) name() string      { return "mark_read" }
func (ChatCreated) name() string   { return "chat_created" }
