// Package reconciler applies server-pushed realtime events to the local
// chat and notification state, independent of which view is mounted.
package reconciler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/chatterline/realtime-go/internal/chatstore"
	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/internal/transport"
	"github.com/chatterline/realtime-go/pkg/logger"
	"github.com/chatterline/realtime-go/pkg/metrics"
)

// Subscriber is the slice of the transport client the reconciler needs.
type Subscriber interface {
	Subscribe(topic string, handler transport.Handler) func()
}

// Reconciler subscribes to the session user's event topics and translates
// inbound events into chat store actions. Malformed payloads are logged and
// dropped; they never propagate out of the transport callback.
type Reconciler struct {
	store  *chatstore.Store
	userID string
	unsubs []func()
	logger *logger.Logger
}

// New creates a reconciler for the given user.
func New(store *chatstore.Store, userID string, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		userID: userID,
		logger: log,
	}
}

// Start subscribes to the per-user chat and notification topics. The
// subscriptions survive transport reconnects without re-registration.
func (r *Reconciler) Start(sub Subscriber) {
	r.unsubs = append(r.unsubs,
		sub.Subscribe(ChatTopic(r.userID), r.handleChatEvent),
		sub.Subscribe(NotificationTopic(r.userID), r.handleNotificationEvent),
	)
	r.logger.Info("reconciler subscribed", zap.String("user_id", r.userID))
}

// Stop releases the topic subscriptions.
func (r *Reconciler) Stop() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

func (r *Reconciler) handleChatEvent(topic string, payload []byte) {
	var env model.EventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.drop(topic, "envelope", err)
		return
	}

	var chat model.ChatEventPayload
	if err := json.Unmarshal(env.Payload, &chat); err != nil {
		r.drop(topic, string(env.Action), err)
		return
	}

	var err error
	switch env.Action {
	case model.ActionNewMessage:
		err = r.store.Dispatch(chatstore.NewMessage{
			Message: chat.Message,
			Sender:  chat.Sender,
		})
	case model.ActionEditMessage:
		err = r.store.Dispatch(chatstore.EditMessage{
			ChatID:    chat.Message.ChatID,
			MessageID: chat.Message.ID,
			Content:   chat.Message.Content,
		})
	case model.ActionDeleteMessage:
		err = r.store.Dispatch(chatstore.DeleteMessage{
			ChatID:    chat.Message.ChatID,
			MessageID: chat.Message.ID,
		})
	default:
		r.logger.Debug("ignoring unknown chat action",
			zap.String("action", string(env.Action)))
		return
	}

	if err != nil {
		// Stale edits and deletes for messages we never loaded are
		// non-fatal; the subscription must stay alive.
		r.logger.Warn("chat event not applied",
			zap.String("action", string(env.Action)), zap.Error(err))
	}
}

func (r *Reconciler) handleNotificationEvent(topic string, payload []byte) {
	var env model.EventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.drop(topic, "envelope", err)
		return
	}

	var ev model.NotificationEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		r.drop(topic, string(env.Action), err)
		return
	}
	if ev.Action == "" {
		ev.Action = env.Action
	}

	r.store.AppendNotification(ev)
}

func (r *Reconciler) drop(topic, stage string, err error) {
	metrics.RecordEvent(stage, "malformed")
	r.logger.Warn("dropping malformed event",
		zap.String("topic", topic),
		zap.String("stage", stage),
		zap.Error(err),
	)
}
