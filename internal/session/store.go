package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// BlobStore is the durable key/value layer the session is persisted to.
// Implemented by storage.Store.
type BlobStore interface {
	GetMany(keys ...string) (map[string]string, error)
	SetMany(entries map[string]string) error
	DeleteMany(keys ...string) error
}

// Reader is the read-only view of the session handed to everything that
// is not the Store itself.
type Reader interface {
	Current() (Session, bool)
	Token() string
	Authenticated() bool
}

// Store owns the active session. It is the only writer; consumers receive
// it as a Reader.
type Store struct {
	blobs  BlobStore
	logger *slog.Logger

	// writeMu serializes Login and Logout across publish and persist so
	// storage ends in the same order as memory.
	writeMu sync.Mutex

	mu      sync.RWMutex
	current *Session
	// gen advances on every Login/Logout so a slow Restore cannot clobber
	// a newer transition.
	gen uint64
}

// New creates an anonymous Store backed by blobs.
func New(blobs BlobStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{blobs: blobs, logger: logger}
}

// Restore hydrates the session from durable storage on a separate goroutine
// and returns immediately. The returned channel is closed once hydration has
// finished, whether or not a session was found.
func (s *Store) Restore(ctx context.Context) <-chan struct{} {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if ctx.Err() != nil {
			return
		}

		sess, ok := s.load()
		if !ok {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || ctx.Err() != nil {
			s.logger.Debug("discarding restored session, state changed during restore")
			return
		}
		s.current = &sess
		s.logger.Debug("session restored", "user_id", sess.Identity.ID, "role", sess.Identity.Role)
	}()
	return done
}

// load reads the persisted pair. Any inconsistency is treated as anonymous.
func (s *Store) load() (Session, bool) {
	saved, err := s.blobs.GetMany(keyToken, keyUser)
	if err != nil {
		s.logger.Warn("could not read saved session", "error", err)
		return Session{}, false
	}

	token, user := saved[keyToken], saved[keyUser]
	if token == "" || user == "" {
		return Session{}, false
	}

	var id Identity
	if err := json.Unmarshal([]byte(user), &id); err != nil {
		s.logger.Warn("saved identity is corrupt, starting anonymous", "error", err)
		return Session{}, false
	}
	return Session{Token: token, Identity: id}, true
}

// Login makes (token, identity) the active session and persists it.
// The in-memory session stays active even if persisting fails.
func (s *Store) Login(token string, identity Identity) error {
	if token == "" {
		return ErrInvalidCredential
	}

	user, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.current = &Session{Token: token, Identity: identity}
	s.gen++
	s.mu.Unlock()

	if err := s.blobs.SetMany(map[string]string{keyToken: token, keyUser: string(user)}); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	s.logger.Info("logged in", "user_id", identity.ID, "role", identity.Role)
	return nil
}

// Logout clears the active and persisted session. Calling it while
// anonymous is a no-op apart from clearing storage.
func (s *Store) Logout() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	wasActive := s.current != nil
	s.current = nil
	s.gen++
	s.mu.Unlock()

	if err := s.blobs.DeleteMany(keyToken, keyUser); err != nil {
		return fmt.Errorf("clearing saved session: %w", err)
	}
	if wasActive {
		s.logger.Info("logged out")
	}
	return nil
}

// Current returns a copy of the active session, or false when anonymous.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Token returns the active bearer token, or "" when anonymous.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Authenticated reports whether a session is active.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}
