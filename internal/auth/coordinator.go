// Package auth coordinates credential refresh for the active session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/internal/session"
	"github.com/chatterline/realtime-go/pkg/logger"
	"github.com/chatterline/realtime-go/pkg/metrics"
)

var (
	// ErrRefreshFailed indicates the refresh call failed or returned no
	// usable token. Terminal for the current session.
	ErrRefreshFailed = errors.New("auth: credential refresh failed")

	// ErrClosed indicates the coordinator was shut down while callers were
	// waiting. Waiters are always released with this error, never left
	// hanging.
	ErrClosed = errors.New("auth: coordinator closed")
)

// RefreshFunc performs the backend refresh call, exchanging the current
// token for a new credential.
type RefreshFunc func(ctx context.Context, token string) (*model.Credential, error)

// refreshCall is the single in-flight refresh that concurrent callers attach
// to. All of them observe the same result when done closes.
type refreshCall struct {
	done chan struct{}
	cred *model.Credential
	err  error
}

// Coordinator deduplicates concurrent credential refreshes: the first caller
// detecting an expired credential starts exactly one backend refresh and
// every caller arriving before it settles shares the outcome.
type Coordinator struct {
	mu       sync.Mutex
	store    *session.Store
	refresh  RefreshFunc
	skew     time.Duration
	timeout  time.Duration
	inflight *refreshCall
	closed   bool

	// baseCtx is cancelled by Close, failing any in-flight refresh fast so
	// its waiters are released.
	baseCtx context.Context
	cancel  context.CancelFunc

	logger *logger.Logger
}

// NewCoordinator creates a coordinator. Credentials within skew of expiry
// are treated as expired so refresh happens before the server rejects them.
func NewCoordinator(store *session.Store, refresh RefreshFunc, skew time.Duration, log *logger.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:   store,
		refresh: refresh,
		skew:    skew,
		timeout: 10 * time.Second,
		baseCtx: ctx,
		cancel:  cancel,
		logger:  log,
	}
}

// EnsureValid returns the current credential when it is still fresh.
// Otherwise it joins or starts the single in-flight refresh and waits for
// its outcome. On refresh failure the session store is cleared, which is the
// signal other components observe.
func (c *Coordinator) EnsureValid(ctx context.Context) (*model.Credential, error) {
	return c.ensure(ctx, func(cred *model.Credential) bool {
		return !cred.Expired(c.skew)
	})
}

// RefreshRejected handles a server-side rejection of a token the local clock
// may still consider fresh. The server is authoritative: when the stored
// credential is still the rejected one a refresh is forced, while a
// credential that already rotated past it is returned as is.
func (c *Coordinator) RefreshRejected(ctx context.Context, rejected string) (*model.Credential, error) {
	return c.ensure(ctx, func(cred *model.Credential) bool {
		return cred.Token != rejected && !cred.Expired(c.skew)
	})
}

func (c *Coordinator) ensure(ctx context.Context, usable func(*model.Credential) bool) (*model.Credential, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	if cred := c.store.Get(); cred != nil && usable(cred) {
		c.mu.Unlock()
		return cred, nil
	}

	call := c.inflight
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		c.inflight = call
		go c.run(call)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.done:
		return call.cred, call.err
	}
}

// run executes the single backend refresh and settles every waiter.
func (c *Coordinator) run(call *refreshCall) {
	var token string
	if cur := c.store.Get(); cur != nil {
		token = cur.Token
	}

	ctx, cancel := context.WithTimeout(c.baseCtx, c.timeout)
	defer cancel()

	cred, err := c.refresh(ctx, token)
	switch {
	case c.baseCtx.Err() != nil:
		call.err = ErrClosed
	case err != nil:
		call.err = fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	case cred == nil || cred.Token == "":
		call.err = ErrRefreshFailed
	default:
		call.cred = cred
	}

	if call.err != nil {
		if !errors.Is(call.err, ErrClosed) {
			// Clearing the store is what the transport and REST layers
			// observe; they never get errors thrown into their stacks.
			if err := c.store.Clear(); err != nil {
				c.logger.Warn("failed to clear session after refresh failure", zap.Error(err))
			}
			c.logger.Warn("credential refresh failed", zap.Error(call.err))
			metrics.RecordRefresh("failure")
		}
	} else {
		if err := c.store.Set(call.cred); err != nil {
			c.logger.Warn("failed to persist refreshed credential", zap.Error(err))
		}
		c.logger.Info("credential refreshed",
			zap.String("user_id", call.cred.UserID),
			zap.Time("expires_at", call.cred.ExpiresAt),
		)
		metrics.RecordRefresh("success")
	}

	c.mu.Lock()
	if c.inflight == call {
		c.inflight = nil
	}
	c.mu.Unlock()

	close(call.done)
}

// Close shuts the coordinator down. Any in-flight refresh is cancelled and
// its waiters are released with ErrClosed. Safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}
