// Package chatstore keeps the in-memory chat list and notification feed
// consistent with server-pushed events.
package chatstore

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/pkg/logger"
	"github.com/chatterline/realtime-go/pkg/metrics"
)

// DeletedPlaceholder is shown in place of a deleted message's content.
const DeletedPlaceholder = "This message was deleted"

// Notifier receives UI-facing notifications (toasts).
type Notifier interface {
	Notify(ev model.NotificationEvent)
}

// Store holds the reconciled chat state for one session. Chats are kept
// sorted descending by UpdatedAt; the canonical chat identity is the chat
// id, with the counterpart username as a lookup fallback only.
type Store struct {
	mu            sync.RWMutex
	userID        string
	chats         []*model.ChatSummary
	messages      map[string][]*model.Message
	notifications []*model.NotificationEvent
	notifier      Notifier
	logger        *logger.Logger
}

// New creates an empty store. SetUser must be called before chat events are
// dispatched so unread counts attribute own messages correctly.
func New(notifier Notifier, log *logger.Logger) *Store {
	return &Store{
		messages: make(map[string][]*model.Message),
		notifier: notifier,
		logger:   log,
	}
}

// SetUser records the id of the session's own user.
func (s *Store) SetUser(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// Dispatch applies a named action to the store.
func (s *Store) Dispatch(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch act := a.(type) {
	case NewMessage:
		s.applyNewMessage(act)
	case EditMessage:
		err = s.applyEdit(act)
	case DeleteMessage:
		err = s.applyDelete(act)
	case MarkRead:
		s.applyMarkRead(act)
	case ChatCreated:
		s.applyChatCreated(act)
	default:
		err = fmt.Errorf("chatstore: unknown action %T", a)
	}

	if err != nil {
		metrics.RecordEvent(a.name(), "error")
		return err
	}
	metrics.RecordEvent(a.name(), "applied")
	metrics.UnreadMessages.Set(float64(s.totalUnreadLocked()))
	return nil
}

func (s *Store) applyNewMessage(act NewMessage) {
	msg := act.Message
	copied := msg
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], &copied)

	summary := s.findChatLocked(msg.ChatID, act.Sender.Username)
	if summary == nil {
		// Events for chats we have not fetched yet get a minimal
		// placeholder so unread counts are not silently lost.
		summary = &model.ChatSummary{ChatID: msg.ChatID, Target: act.Sender}
		s.chats = append(s.chats, summary)
		s.logger.Debug("created placeholder chat", zap.String("chat_id", msg.ChatID))
	}

	summary.LastMessage = model.LastMessage{
		MessageID: msg.ID,
		Content:   msg.Content,
		SenderID:  msg.SenderID,
		SentAt:    msg.SentAt,
	}
	summary.UpdatedAt = msg.SentAt
	if msg.SenderID != s.userID {
		summary.UnreadCount++
	}
	s.sortChatsLocked()
}

func (s *Store) applyEdit(act EditMessage) error {
	msg := s.findMessageLocked(act.ChatID, act.MessageID)
	if msg == nil {
		return fmt.Errorf("chatstore: edit for unknown message %s", act.MessageID)
	}
	msg.Content = act.Content
	msg.Edited = true

	if summary := s.findChatLocked(msg.ChatID, ""); summary != nil {
		if summary.LastMessage.MessageID == msg.ID {
			summary.LastMessage.Content = act.Content
		}
	}
	return nil
}

func (s *Store) applyDelete(act DeleteMessage) error {
	msg := s.findMessageLocked(act.ChatID, act.MessageID)
	if msg == nil {
		return fmt.Errorf("chatstore: delete for unknown message %s", act.MessageID)
	}
	msg.Deleted = true
	msg.Content = DeletedPlaceholder

	if summary := s.findChatLocked(msg.ChatID, ""); summary != nil {
		if summary.LastMessage.MessageID == msg.ID {
			summary.LastMessage.Content = DeletedPlaceholder
			summary.LastMessage.Deleted = true
		}
	}
	return nil
}

func (s *Store) applyMarkRead(act MarkRead) {
	if summary := s.findChatLocked(act.ChatID, ""); summary != nil {
		summary.UnreadCount = 0
	}
}

func (s *Store) applyChatCreated(act ChatCreated) {
	if s.findChatLocked(act.Summary.ChatID, "") != nil {
		return
	}
	summary := act.Summary
	s.chats = append(s.chats, &summary)
	s.sortChatsLocked()
}

// AppendNotification prepends a notification to the feed (newest first) and
// raises the UI-facing toast.
func (s *Store) AppendNotification(ev model.NotificationEvent) {
	s.mu.Lock()
	copied := ev
	s.notifications = append([]*model.NotificationEvent{&copied}, s.notifications...)
	notifier := s.notifier
	s.mu.Unlock()

	metrics.RecordEvent(string(ev.Action), "applied")
	if notifier != nil {
		notifier.Notify(ev)
	}
}

// MarkNotificationRead flips a notification to read. The transition is
// one-way.
func (s *Store) MarkNotificationRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			n.IsRead = true
			return
		}
	}
}

// Chats returns a copy of the chat list in display order.
func (s *Store) Chats() []model.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChatSummary, len(s.chats))
	for i, c := range s.chats {
		out[i] = *c
	}
	return out
}

// Messages returns a copy of a chat's message sequence in receipt order.
func (s *Store) Messages(chatID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[chatID]
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

// Notifications returns a copy of the notification feed, newest first.
func (s *Store) Notifications() []model.NotificationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.NotificationEvent, len(s.notifications))
	for i, n := range s.notifications {
		out[i] = *n
	}
	return out
}

// TotalUnread sums unread counts across all chats.
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalUnreadLocked()
}

// Flush drops all chat and notification state. Called on logout.
func (s *Store) Flush() {
	s.mu.Lock()
	s.chats = nil
	s.messages = make(map[string][]*model.Message)
	s.notifications = nil
	s.mu.Unlock()
	metrics.UnreadMessages.Set(0)
}

func (s *Store) totalUnreadLocked() int {
	total := 0
	for _, c := range s.chats {
		total += c.UnreadCount
	}
	return total
}

// findChatLocked locates a summary by chat id, falling back to the
// counterpart username when the id does not match.
func (s *Store) findChatLocked(chatID, username string) *model.ChatSummary {
	for _, c := range s.chats {
		if c.ChatID == chatID {
			return c
		}
	}
	if username != "" {
		for _, c := range s.chats {
			if c.Target.Username == username {
				return c
			}
		}
	}
	return nil
}

// findMessageLocked locates a message by id, searching the given chat first
// and every loaded chat when the chat id is absent or stale.
func (s *Store) findMessageLocked(chatID, messageID string) *model.Message {
	if msgs, ok := s.messages[chatID]; ok {
		for _, m := range msgs {
			if m.ID == messageID {
				return m
			}
		}
	}
	for id, msgs := range s.messages {
		if id == chatID {
			continue
		}
		for _, m := range msgs {
			if m.ID == messageID {
				return m
			}
		}
	}
	return nil
}

// sortChatsLocked restores descending UpdatedAt order, stable for ties.
func (s *Store) sortChatsLocked() {
	sort.SliceStable(s.chats, func(i, j int) bool {
		return s.chats[i].UpdatedAt.After(s.chats[j].UpdatedAt)
	})
}
