// Package session holds the credential for the active session and persists
// it to durable client storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/pkg/logger"
)

// Listener is invoked on every credential change. A nil credential means the
// session was cleared.
type Listener func(cred *model.Credential)

// Store owns the current credential. It is safe for concurrent use; all
// mutations notify subscribers and are persisted atomically to the state
// file.
type Store struct {
	mu      sync.Mutex
	path    string
	cred    *model.Credential
	subs    map[int]Listener
	nextSub int
	changed chan struct{}
	logger  *logger.Logger
}

// NewStore creates a store backed by the state file at path, loading any
// persisted credential. A missing or unreadable file yields an empty store.
func NewStore(path string, log *logger.Logger) *Store {
	s := &Store{
		path:    path,
		subs:    make(map[int]Listener),
		changed: make(chan struct{}),
		logger:  log,
	}
	s.load()
	return s
}

// Get returns a copy of the current credential, or nil when logged out.
func (s *Store) Get() *model.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil
	}
	cred := *s.cred
	return &cred
}

// Set stores a new credential, persists it, and notifies subscribers.
func (s *Store) Set(cred *model.Credential) error {
	if cred == nil || cred.Token == "" {
		return errors.New("session: refusing to store empty credential")
	}

	c := *cred
	s.mu.Lock()
	s.cred = &c
	err := s.persistLocked()
	listeners := s.listenersLocked()
	s.signalLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(&c)
	}
	return err
}

// Clear removes the credential and the state file, and notifies subscribers.
// Clearing an already-empty store is a no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	if s.cred == nil {
		s.mu.Unlock()
		return nil
	}
	s.cred = nil
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove session state file")
	} else {
		err = nil
	}
	listeners := s.listenersLocked()
	s.signalLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
	return err
}

// Subscribe registers a change listener and returns an unsubscribe func.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// WaitValid blocks until a non-expired credential is present or ctx is done.
func (s *Store) WaitValid(ctx context.Context) (*model.Credential, error) {
	for {
		s.mu.Lock()
		if s.cred != nil && !s.cred.Expired(0) {
			cred := *s.cred
			s.mu.Unlock()
			return &cred, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// signalLocked wakes every WaitValid caller by closing and replacing the
// change channel. Callers re-check state and either return or wait again.
func (s *Store) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Store) listenersLocked() []Listener {
	out := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		s.logger.Warn("discarding corrupt session state file")
		return
	}
	if cred.Token == "" {
		return
	}
	s.cred = &cred
}

// persistLocked writes the credential to the state file via a temp file and
// rename so readers never observe a partial write.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(s.cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
