package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/internal/session"
	"github.com/chatterline/realtime-go/pkg/logger"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(filepath.Join(t.TempDir(), "session.json"), logger.NewNop())
}

func expiredCredential() *model.Credential {
	return &model.Credential{
		Token:     "stale",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
}

func freshCredential(token string) *model.Credential {
	return &model.Credential{
		Token:     token,
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestFreshCredentialSkipsRefresh(t *testing.T) {
	store := newStore(t)
	if err := store.Set(freshCredential("good")); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		calls.Add(1)
		return freshCredential("new"), nil
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())
	defer c.Close()

	cred, err := c.EnsureValid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != "good" {
		t.Errorf("expected stored credential, got %q", cred.Token)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no refresh call, got %d", calls.Load())
	}
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	store := newStore(t)
	if err := store.Set(expiredCredential()); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	release := make(chan struct{})
	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		calls.Add(1)
		<-release
		return freshCredential("refreshed"), nil
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())
	defer c.Close()

	const n = 8
	var wg sync.WaitGroup
	results := make([]*model.Credential, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.EnsureValid(context.Background())
		}(i)
	}

	// Let every caller pile up on the single in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", calls.Load())
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].Token != "refreshed" {
			t.Errorf("caller %d got token %q", i, results[i].Token)
		}
	}
}

func TestRefreshFailureClearsSessionAndFailsAllCallers(t *testing.T) {
	store := newStore(t)
	if err := store.Set(expiredCredential()); err != nil {
		t.Fatal(err)
	}

	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		return nil, errors.New("backend said no")
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())
	defer c.Close()

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if !errors.Is(errs[i], ErrRefreshFailed) {
			t.Errorf("caller %d: expected ErrRefreshFailed, got %v", i, errs[i])
		}
	}
	if store.Get() != nil {
		t.Error("session should be cleared after refresh failure")
	}
}

func TestRefreshWithoutTokenFails(t *testing.T) {
	store := newStore(t)
	if err := store.Set(expiredCredential()); err != nil {
		t.Fatal(err)
	}

	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		return &model.Credential{}, nil
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())
	defer c.Close()

	if _, err := c.EnsureValid(context.Background()); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed for empty token, got %v", err)
	}
}

func TestCloseReleasesWaiters(t *testing.T) {
	store := newStore(t)
	if err := store.Set(expiredCredential()); err != nil {
		t.Fatal(err)
	}

	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := c.EnsureValid(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was left dangling after Close")
	}

	if _, err := c.EnsureValid(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after teardown, got %v", err)
	}
}

func TestRefreshRejectedForcesRotation(t *testing.T) {
	store := newStore(t)
	// The local clock still considers this credential fresh; the server
	// rejecting it must force a refresh anyway.
	if err := store.Set(freshCredential("revoked")); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		calls.Add(1)
		return freshCredential("rotated"), nil
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())
	defer c.Close()

	cred, err := c.RefreshRejected(context.Background(), "revoked")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != "rotated" || calls.Load() != 1 {
		t.Errorf("expected a forced refresh, got token %q after %d calls", cred.Token, calls.Load())
	}
}

func TestRefreshRejectedSkipsAlreadyRotatedToken(t *testing.T) {
	store := newStore(t)
	if err := store.Set(freshCredential("rotated")); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		calls.Add(1)
		return freshCredential("newer"), nil
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())
	defer c.Close()

	cred, err := c.RefreshRejected(context.Background(), "revoked")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != "rotated" {
		t.Errorf("expected the already rotated credential, got %q", cred.Token)
	}
	if calls.Load() != 0 {
		t.Errorf("rotation already happened, expected no refresh, got %d", calls.Load())
	}
}

func TestSuccessfulRefreshUpdatesStore(t *testing.T) {
	store := newStore(t)
	if err := store.Set(expiredCredential()); err != nil {
		t.Fatal(err)
	}

	refresh := func(ctx context.Context, token string) (*model.Credential, error) {
		if token != "stale" {
			t.Errorf("refresh should receive the current token, got %q", token)
		}
		return freshCredential("new"), nil
	}

	c := NewCoordinator(store, refresh, 30*time.Second, logger.NewNop())
	defer c.Close()

	if _, err := c.EnsureValid(context.Background()); err != nil {
		t.Fatal(err)
	}
	if cred := store.Get(); cred == nil || cred.Token != "new" {
		t.Errorf("store should hold the refreshed credential, got %+v", cred)
	}
}
