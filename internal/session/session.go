// Package session holds the per-client authentication state: the access
// token, its expiry, the device id and the authenticated user. A Session is
// created by the caller and passed to the components that need it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoToken is returned when no usable access token is available.
var ErrNoToken = errors.New("no access token")

// Token is an access token and the instant it stops being accepted.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	User        User
}

// Valid reports whether the token is present and not expired at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// User identifies the account owner returned by the token request.
type User struct {
	ID     int64
	Name   string
	Status string
}

// Store persists tokens between runs.
type Store interface {
	// CurrentToken returns the stored token, or ok=false if none exists.
	CurrentToken(ctx context.Context) (tok Token, ok bool, err error)

	// PersistToken replaces the stored token.
	PersistToken(ctx context.Context, tok Token) error
}

// Session is the explicit replacement for process-wide session storage.
type Session struct {
	store    Store
	deviceID string
	now      func() time.Time

	mu    sync.RWMutex
	token Token
}

// Option configures a Session.
type Option func(*Session)

// WithDeviceID fixes the device id instead of generating one.
func WithDeviceID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.deviceID = id
		}
	}
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates a Session. A nil store keeps tokens in memory only.
func New(store Store, opts ...Option) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Session{
		store:    store,
		deviceID: uuid.NewString(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeviceID returns the id sent with access-token requests.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Token returns a valid access token, loading it from the store when the
// in-memory copy is missing or expired.
func (s *Session) Token(ctx context.Context) (Token, error) {
	now := s.now()

	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok.Valid(now) {
		return tok, nil
	}

	stored, ok, err := s.store.CurrentToken(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("load token: %w", err)
	}
	if !ok || !stored.Valid(now) {
		return Token{}, ErrNoToken
	}

	s.mu.Lock()
	s.token = stored
	s.mu.Unlock()
	return stored, nil
}

// SetToken records a freshly issued token and persists it.
func (s *Session) SetToken(ctx context.Context, tok Token) error {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()

	if err := s.store.PersistToken(ctx, tok); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// User returns the user of the current token, if any.
func (s *Session) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.User
}
