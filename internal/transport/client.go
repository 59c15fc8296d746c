// Package transport maintains the publish/subscribe connection to the
// realtime gateway: one logical connection per active session, with
// automatic reconnect and subscription replay.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/pkg/logger"
	"github.com/chatterline/realtime-go/pkg/metrics"
)

var (
	// ErrNotConnected indicates a publish was attempted while the
	// connection was not established. Outbound frames are never queued.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnectTimeout indicates Connect gave up waiting for a valid
	// credential.
	ErrConnectTimeout = errors.New("transport: timed out waiting for credential")

	// ErrAuthenticationFailed indicates the server rejected the credential
	// and refresh did not recover it. Terminal for the connection.
	ErrAuthenticationFailed = errors.New("transport: authentication failed")

	// ErrConnectionLost indicates reconnect attempts were exhausted.
	ErrConnectionLost = errors.New("transport: connection lost")

	// ErrClosed indicates the client was torn down.
	ErrClosed = errors.New("transport: client closed")
)

// Status is the connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

// Handler receives the payload of a message frame delivered on a subscribed
// topic.
type Handler func(topic string, payload []byte)

// StateListener observes connection state transitions. Terminal failures
// (auth failure, reconnect exhaustion) arrive here rather than being thrown
// into unrelated call stacks.
type StateListener func(status Status, err error)

// CredentialSource supplies a fresh credential when the server reports the
// current one unauthorized. The rejected token is passed along so the source
// refreshes even when the local clock still considers it fresh, and skips
// the backend round trip when the credential already rotated past it.
type CredentialSource interface {
	RefreshRejected(ctx context.Context, rejected string) (*model.Credential, error)
}

// SessionStore is the slice of the session store the transport needs.
type SessionStore interface {
	WaitValid(ctx context.Context) (*model.Credential, error)
}

// Options configure a Client.
type Options struct {
	URL            string
	ConnectTimeout time.Duration
	Backoff        *BackoffPolicy
	Dialer         Dialer
	OnState        StateListener
}

type subscription struct {
	id      string
	topic   string
	handler Handler
}

// Client is the transport client. Subscriptions registered before the
// connection is up are queued and flushed on the connected transition, and
// every active subscription is replayed after an automatic reconnect, so
// subscribers never re-subscribe manually.
type Client struct {
	url            string
	connectTimeout time.Duration
	backoff        *BackoffPolicy
	dialer         Dialer
	onState        StateListener
	session        SessionStore
	creds          CredentialSource
	logger         *logger.Logger

	mu       sync.Mutex
	status   Status
	conn     Conn
	token    string
	gen      int
	pending  []*subscription
	active   []*subscription
	attempts int
	timer    *time.Timer
	closed   bool

	// writeMu serializes frame writes; the socket allows one writer.
	writeMu sync.Mutex
}

// New creates a transport client. It does not connect; call Connect.
func New(opts Options, session SessionStore, creds CredentialSource, log *logger.Logger) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoffPolicy()
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer()
	}
	return &Client{
		url:            opts.URL,
		connectTimeout: opts.ConnectTimeout,
		backoff:        opts.Backoff,
		dialer:         opts.Dialer,
		onState:        opts.OnState,
		session:        session,
		creds:          creds,
		logger:         log,
		status:         StatusDisconnected,
	}
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsConnected reports whether the connection is established.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Connect establishes the connection. It is idempotent: a no-op while
// already connecting or connected. When no valid credential is available yet
// it waits for one, bounded by the configured connect timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusConnecting || c.status == StatusConnected {
		c.mu.Unlock()
		return nil
	}
	c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	cred, err := c.session.WaitValid(waitCtx)
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.setStatusLocked(StatusDisconnected, nil)
		}
		c.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordConnect("timeout")
			return ErrConnectTimeout
		}
		return err
	}

	return c.dial(ctx, cred)
}

// dial opens the socket with the credential attached, promotes pending
// subscriptions, and replays every subscription on the new connection.
func (c *Client) dial(ctx context.Context, cred *model.Credential) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token)

	conn, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		metrics.RecordConnect("error")
		c.mu.Lock()
		if !c.closed {
			c.setStatusLocked(StatusDisconnected, nil)
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.token = cred.Token
	c.gen++
	gen := c.gen
	c.attempts = 0
	c.active = append(c.active, c.pending...)
	c.pending = nil
	subs := make([]*subscription, len(c.active))
	copy(subs, c.active)
	c.setStatusLocked(StatusConnected, nil)
	c.mu.Unlock()

	metrics.RecordConnect("success")
	metrics.SubscriptionsActive.Set(float64(len(subs)))

	for _, sub := range subs {
		if err := c.writeFrame(conn, Frame{Type: FrameSubscribe, ID: sub.id, Topic: sub.topic}); err != nil {
			c.logger.Warn("failed to replay subscription",
				zap.String("topic", sub.topic), zap.Error(err))
		}
	}

	go c.readLoop(conn, gen)
	return nil
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Before the connection is up the subscription queues in FIFO
// order and activates on the connected transition. Duplicate subscriptions
// to one topic are allowed.
func (c *Client) Subscribe(topic string, handler Handler) func() {
	sub := &subscription{id: uuid.NewString(), topic: topic, handler: handler}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	if c.status == StatusConnected && c.conn != nil {
		c.active = append(c.active, sub)
		conn := c.conn
		metrics.SubscriptionsActive.Set(float64(len(c.active)))
		c.mu.Unlock()
		if err := c.writeFrame(conn, Frame{Type: FrameSubscribe, ID: sub.id, Topic: sub.topic}); err != nil {
			// The subscription stays registered; the reconnect replay
			// will re-send it.
			c.logger.Warn("failed to send subscribe frame",
				zap.String("topic", topic), zap.Error(err))
		}
	} else {
		c.pending = append(c.pending, sub)
		c.mu.Unlock()
	}

	return func() { c.unsubscribe(sub) }
}

func (c *Client) unsubscribe(sub *subscription) {
	c.mu.Lock()
	c.pending = removeSub(c.pending, sub)
	c.active = removeSub(c.active, sub)
	var conn Conn
	if c.status == StatusConnected {
		conn = c.conn
	}
	metrics.SubscriptionsActive.Set(float64(len(c.active)))
	c.mu.Unlock()

	if conn != nil {
		if err := c.writeFrame(conn, Frame{Type: FrameUnsubscribe, ID: sub.id, Topic: sub.topic}); err != nil {
			c.logger.Debug("failed to send unsubscribe frame", zap.Error(err))
		}
	}
}

func removeSub(subs []*subscription, target *subscription) []*subscription {
	for i, s := range subs {
		if s == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Publish serializes the payload and sends it to the destination topic. It
// fails fast with ErrNotConnected while the connection is down; outbound
// messages are never queued or silently dropped.
func (c *Client) Publish(destination string, payload any) error {
	c.mu.Lock()
	if c.status != StatusConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.writeFrame(conn, Frame{
		Type:  FrameSend,
		ID:    uuid.NewString(),
		Topic: destination,
		Body:  body,
	})
}

func (c *Client) writeFrame(conn Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	metrics.RecordFrame(string(f.Type), "out")
	return nil
}

// readLoop drains inbound frames until the connection drops. gen guards
// against a stale loop acting on a newer connection's state.
func (c *Client) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		metrics.RecordFrame(string(f.Type), "in")

		switch f.Type {
		case FrameMessage:
			c.dispatch(f.Topic, f.Body)
		case FrameError:
			if f.Code == CodeUnauthorized {
				c.handleUnauthorized(gen)
				return
			}
			c.logger.Warn("server error frame", zap.String("code", f.Code))
		default:
			c.logger.Debug("ignoring unexpected frame", zap.String("type", string(f.Type)))
		}
	}
}

// dispatch delivers a message to every handler subscribed to the topic. A
// panicking handler must not tear down the read loop.
func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.Lock()
	var handlers []Handler
	for _, sub := range c.active {
		if sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("subscription handler panicked",
						zap.String("topic", topic), zap.Any("panic", r))
				}
			}()
			h(topic, payload)
		}()
	}
}

// handleDrop reacts to an unexpected connection loss by scheduling an
// automatic reconnect.
func (c *Client) handleDrop(gen int, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.logger.Warn("connection dropped", zap.Error(err))
	c.setStatusLocked(StatusDisconnected, nil)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// scheduleReconnectLocked arms the reconnect timer, or transitions to failed
// once the backoff policy is exhausted.
func (c *Client) scheduleReconnectLocked() {
	c.attempts++
	if c.backoff.Exhausted(c.attempts) {
		c.setStatusLocked(StatusFailed, ErrConnectionLost)
		return
	}
	delay := c.backoff.NextDelay(c.attempts)
	c.logger.Info("scheduling reconnect",
		zap.Int("attempt", c.attempts), zap.Duration("delay", delay))
	c.timer = time.AfterFunc(delay, c.reconnect)
}

func (c *Client) reconnect() {
	metrics.ReconnectsTotal.Inc()

	c.mu.Lock()
	if c.closed || c.status == StatusConnected || c.status == StatusConnecting {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()

	cred, err := c.session.WaitValid(ctx)
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.setStatusLocked(StatusDisconnected, nil)
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return
	}

	if err := c.dial(ctx, cred); err != nil {
		c.logger.Warn("reconnect failed", zap.Error(err))
	}
}

// handleUnauthorized runs the auth-recovery path: reconnects are paused, a
// credential refresh is requested, and on success the connection is
// re-activated with the new credential. On refresh failure the client
// disconnects permanently.
func (c *Client) handleUnauthorized(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	rejected := c.token
	c.stopTimerLocked()
	c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()

	c.logger.Info("server rejected credential, refreshing")

	cred, err := c.creds.RefreshRejected(context.Background(), rejected)
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.setStatusLocked(StatusFailed, ErrAuthenticationFailed)
		}
		c.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()
	if err := c.dial(ctx, cred); err != nil {
		c.logger.Warn("re-activation after refresh failed", zap.Error(err))
	}
}

// Close tears the connection down, clears pending subscriptions, and drops
// every active subscription. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.pending = nil
	c.active = nil
	c.setStatusLocked(StatusDisconnected, nil)
	c.mu.Unlock()

	metrics.SubscriptionsActive.Set(0)
	if conn != nil {
		conn.Close()
	}
	return nil
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) setStatusLocked(status Status, err error) {
	if c.status == status && err == nil {
		return
	}
	c.status = status
	if c.onState != nil {
		go c.onState(status, err)
	}
}
