package model

import (
	"encoding/json"
	"time"
)

// EventAction is the discriminant tag carried by every realtime event.
type EventAction string

const (
	ActionNewMessage        EventAction = "new-message"
	ActionEditMessage       EventAction = "edit-message"
	ActionDeleteMessage     EventAction = "delete-message"
	ActionFriendRequestSent EventAction = "friend-request-sent"
	ActionFriendAccepted    EventAction = "friend-accepted"
	ActionPostLiked         EventAction = "post-liked"
	ActionComment           EventAction = "comment"
)

// EventEnvelope is the wire shape of a realtime event body: the action tag
// plus an action-specific payload.
type EventEnvelope struct {
	Action  EventAction     `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// ChatEventPayload is the payload for new-message, edit-message and
// delete-message actions.
type ChatEventPayload struct {
	Message Message `json:"message"`
	Sender  UserRef `json:"sender"`
}

// NotificationEvent represents a UI-facing notification. The notification
// list is append-only, newest first; IsRead transitions false to true only.
type NotificationEvent struct {
	ID     string      `json:"id"`
	Action EventAction `json:"action"`
	Actor  UserRef     `json:"actor"`
	SentAt time.Time   `json:"sent_at"`
	IsRead bool        `json:"is_read"`
}
