package reconciler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/chatterline/realtime-go/internal/chatstore"
	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/internal/transport"
	"github.com/chatterline/realtime-go/pkg/logger"
)

// fakeSubscriber captures handlers so tests can feed events directly.
type fakeSubscriber struct {
	handlers map[string]transport.Handler
	unsubbed []string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]transport.Handler)}
}

func (f *fakeSubscriber) Subscribe(topic string, handler transport.Handler) func() {
	f.handlers[topic] = handler
	return func() { f.unsubbed = append(f.unsubbed, topic) }
}

func (f *fakeSubscriber) deliver(t *testing.T, topic string, action model.EventAction, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	env, err := json.Marshal(model.EventEnvelope{Action: action, Payload: data})
	if err != nil {
		t.Fatal(err)
	}
	handler, ok := f.handlers[topic]
	if !ok {
		t.Fatalf("no handler for topic %s", topic)
	}
	handler(topic, env)
}

type toastRecorder struct {
	toasts []model.NotificationEvent
}

func (r *toastRecorder) Notify(ev model.NotificationEvent) {
	r.toasts = append(r.toasts, ev)
}

func setup(t *testing.T) (*fakeSubscriber, *chatstore.Store, *toastRecorder) {
	t.Helper()
	toasts := &toastRecorder{}
	store := chatstore.New(toasts, logger.NewNop())
	store.SetUser("self")

	r := New(store, "self", logger.NewNop())
	sub := newFakeSubscriber()
	r.Start(sub)
	t.Cleanup(r.Stop)
	return sub, store, toasts
}

func TestSubscribesToPerUserTopics(t *testing.T) {
	sub, _, _ := setup(t)

	if _, ok := sub.handlers["user.self.chat"]; !ok {
		t.Error("missing chat topic subscription")
	}
	if _, ok := sub.handlers["user.self.notifications"]; !ok {
		t.Error("missing notification topic subscription")
	}
}

func TestNewMessageEventReachesStore(t *testing.T) {
	sub, store, _ := setup(t)

	sub.deliver(t, ChatTopic("self"), model.ActionNewMessage, model.ChatEventPayload{
		Message: model.Message{
			ID: "m1", ChatID: "c1", SenderID: "peer",
			Content: "hello", SentAt: time.Now(),
		},
		Sender: model.UserRef{ID: "peer", Username: "bob"},
	})

	chats := store.Chats()
	if len(chats) != 1 || chats[0].UnreadCount != 1 {
		t.Fatalf("event not reconciled: %+v", chats)
	}
	if chats[0].LastMessage.Content != "hello" {
		t.Errorf("unexpected preview: %+v", chats[0].LastMessage)
	}
}

func TestEditAndDeleteEvents(t *testing.T) {
	sub, store, _ := setup(t)

	now := time.Now()
	sub.deliver(t, ChatTopic("self"), model.ActionNewMessage, model.ChatEventPayload{
		Message: model.Message{ID: "m1", ChatID: "c1", SenderID: "peer", Content: "v1", SentAt: now},
	})
	sub.deliver(t, ChatTopic("self"), model.ActionEditMessage, model.ChatEventPayload{
		Message: model.Message{ID: "m1", ChatID: "c1", Content: "v2"},
	})

	msgs := store.Messages("c1")
	if msgs[0].Content != "v2" || !msgs[0].Edited {
		t.Fatalf("edit not applied: %+v", msgs[0])
	}

	sub.deliver(t, ChatTopic("self"), model.ActionDeleteMessage, model.ChatEventPayload{
		Message: model.Message{ID: "m1", ChatID: "c1"},
	})
	msgs = store.Messages("c1")
	if !msgs[0].Deleted || msgs[0].Content != chatstore.DeletedPlaceholder {
		t.Fatalf("delete not applied: %+v", msgs[0])
	}
}

func TestMalformedPayloadIsDroppedQuietly(t *testing.T) {
	sub, store, _ := setup(t)

	// Neither of these may panic or kill the subscription.
	sub.handlers[ChatTopic("self")](ChatTopic("self"), []byte("{broken"))
	sub.handlers[NotificationTopic("self")](NotificationTopic("self"), []byte("[]"))

	sub.deliver(t, ChatTopic("self"), model.ActionNewMessage, model.ChatEventPayload{
		Message: model.Message{ID: "m1", ChatID: "c1", SenderID: "peer", Content: "ok", SentAt: time.Now()},
	})
	if len(store.Chats()) != 1 {
		t.Fatal("subscription should survive malformed payloads")
	}
}

func TestStaleEditIsTolerated(t *testing.T) {
	sub, store, _ := setup(t)

	sub.deliver(t, ChatTopic("self"), model.ActionEditMessage, model.ChatEventPayload{
		Message: model.Message{ID: "ghost", ChatID: "c1", Content: "x"},
	})

	// Nothing applied, nothing broken.
	if len(store.Chats()) != 0 {
		t.Error("stale edit must not create chats")
	}
	sub.deliver(t, ChatTopic("self"), model.ActionNewMessage, model.ChatEventPayload{
		Message: model.Message{ID: "m1", ChatID: "c1", SenderID: "peer", Content: "ok", SentAt: time.Now()},
	})
	if len(store.Chats()) != 1 {
		t.Error("subscription should survive a stale edit")
	}
}

func TestNotificationEventRaisesToast(t *testing.T) {
	sub, store, toasts := setup(t)

	sub.deliver(t, NotificationTopic("self"), model.ActionFriendRequestSent, model.NotificationEvent{
		ID:     "n1",
		Actor:  model.UserRef{ID: "peer", Username: "bob"},
		SentAt: time.Now(),
	})

	feed := store.Notifications()
	if len(feed) != 1 || feed[0].Action != model.ActionFriendRequestSent {
		t.Fatalf("notification not appended: %+v", feed)
	}
	if len(toasts.toasts) != 1 {
		t.Fatalf("expected a toast, got %d", len(toasts.toasts))
	}
	if len(store.Chats()) != 0 {
		t.Error("notification events must not touch the chat list")
	}
}

func TestStopReleasesSubscriptions(t *testing.T) {
	toasts := &toastRecorder{}
	store := chatstore.New(toasts, logger.NewNop())
	r := New(store, "self", logger.NewNop())
	sub := newFakeSubscriber()
	r.Start(sub)
	r.Stop()

	if len(sub.unsubbed) != 2 {
		t.Errorf("expected 2 unsubscribes, got %d", len(sub.unsubbed))
	}
}
