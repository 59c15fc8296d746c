// Package client assembles the realtime layer for one session: session
// store, refresh coordinator, REST client, transport, and reconciler, with
// an explicit construct-at-login, destroy-at-logout lifecycle.
package client

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/chatterline/realtime-go/internal/auth"
	"github.com/chatterline/realtime-go/internal/chatstore"
	"github.com/chatterline/realtime-go/internal/config"
	"github.com/chatterline/realtime-go/internal/reconciler"
	"github.com/chatterline/realtime-go/internal/rest"
	"github.com/chatterline/realtime-go/internal/session"
	"github.com/chatterline/realtime-go/internal/transport"
	"github.com/chatterline/realtime-go/pkg/logger"
)

// ErrNotLoggedIn indicates Start was called without a stored credential.
var ErrNotLoggedIn = errors.New("client: not logged in")

// Options override client internals, used by tests to inject a fake socket.
type Options struct {
	Dialer  transport.Dialer
	OnState transport.StateListener
}

// Client is one session's realtime stack. It is an explicit, injected
// object rather than an ambient global so independent instances can coexist
// in tests.
type Client struct {
	cfg    *config.Config
	logger *logger.Logger

	Session     *session.Store
	Rest        *rest.Client
	Coordinator *auth.Coordinator
	Transport   *transport.Client
	Chats       *chatstore.Store

	rec *reconciler.Reconciler

	mu      sync.Mutex
	started bool
	closed  bool
}

// New wires up a client from configuration.
func New(cfg *config.Config, notifier chatstore.Notifier, log *logger.Logger) *Client {
	return NewWithOptions(cfg, notifier, log, Options{})
}

// NewWithOptions wires up a client with overrides.
func NewWithOptions(cfg *config.Config, notifier chatstore.Notifier, log *logger.Logger, opts Options) *Client {
	sess := session.NewStore(cfg.StatePath, log)
	restClient := rest.New(cfg.APIBaseURL, cfg.RequestTimeout, log)
	coord := auth.NewCoordinator(sess, restClient.Refresh, cfg.RefreshSkew, log)
	restClient.SetCredentialSource(coord)

	tr := transport.New(transport.Options{
		URL:            cfg.SocketURL,
		ConnectTimeout: cfg.ConnectTimeout,
		Backoff: &transport.BackoffPolicy{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Delay:       cfg.ReconnectDelay,
			Multiplier:  cfg.ReconnectMultiplier,
			MaxDelay:    cfg.ReconnectMaxDelay,
		},
		Dialer:  opts.Dialer,
		OnState: opts.OnState,
	}, sess, coord, log)

	return &Client{
		cfg:         cfg,
		logger:      log,
		Session:     sess,
		Rest:        restClient,
		Coordinator: coord,
		Transport:   tr,
		Chats:       chatstore.New(notifier, log),
	}
}

// Login authenticates against the backend and persists the credential.
func (c *Client) Login(ctx context.Context, username, password string) error {
	cred, err := c.Rest.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := c.Session.Set(cred); err != nil {
		return err
	}
	c.logger.Info("logged in",
		zap.String("user_id", cred.UserID),
		zap.String("user_name", cred.UserName),
	)
	return nil
}

// Start connects the transport and subscribes the reconciler to the session
// user's topics. Requires a stored credential.
func (c *Client) Start(ctx context.Context) error {
	cred := c.Session.Get()
	if cred == nil {
		return ErrNotLoggedIn
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.Chats.SetUser(cred.UserID)
	c.rec = reconciler.New(c.Chats, cred.UserID, c.logger)
	c.rec.Start(c.Transport)
	c.mu.Unlock()

	return c.Transport.Connect(ctx)
}

// SyncChats seeds the chat store from the backend's chat list.
func (c *Client) SyncChats(ctx context.Context) error {
	chats, err := c.Rest.ListChats(ctx)
	if err != nil {
		return err
	}
	for _, summary := range chats {
		if err := c.Chats.Dispatch(chatstore.ChatCreated{Summary: summary}); err != nil {
			return err
		}
	}
	return nil
}

// MarkChatRead resets the chat's unread count locally and reports the read
// state to the backend. The local reset happens regardless of the REST
// outcome so the UI responds immediately.
func (c *Client) MarkChatRead(ctx context.Context, chatID string) error {
	if err := c.Chats.Dispatch(chatstore.MarkRead{ChatID: chatID}); err != nil {
		return err
	}
	if err := c.Rest.MarkRead(ctx, chatID); err != nil {
		c.logger.Warn("failed to report read state", zap.Error(err))
		return err
	}
	return nil
}

// Close shuts down the transport and coordinator without clearing the
// persisted session, so a later process can resume it. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	err := c.Transport.Close()
	c.Coordinator.Close()
	return err
}

// Logout tears the session down: the credential is cleared, the transport
// disconnected with all subscriptions dropped, and the chat state flushed.
// All three happen even if one fails; partial teardown is an invariant
// violation. Idempotent.
func (c *Client) Logout() error {
	clearErr := c.Session.Clear()
	closeErr := c.Close()
	c.Chats.Flush()

	if clearErr != nil {
		return clearErr
	}
	return closeErr
}
