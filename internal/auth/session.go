// Package auth holds the credentials attached to outbound backend calls.
//
// A Session is immutable once built. The Store hands out the current session;
// replacing it (after a fresh authentication) never affects an invocation that
// already took its snapshot.
package auth

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

type Scheme string

const (
	SchemeAppKey Scheme = "appkey"
	SchemeBearer Scheme = "bearer"
)

// Session is a credential obtained once and reused for the rest of a process
// (or until a caller re-authenticates).
type Session struct {
	scheme   Scheme
	secret   string
	issuedAt time.Time
}

// AppKeySession authenticates with a static SOAR application key.
func AppKeySession(key string) *Session {
	return &Session{scheme: SchemeAppKey, secret: key, issuedAt: time.Now()}
}

// BearerSession wraps an OAuth2 access token.
func BearerSession(token string) *Session {
	return &Session{scheme: SchemeBearer, secret: token, issuedAt: time.Now()}
}

func (s *Session) Scheme() Scheme { return s.scheme }

func (s *Session) IssuedAt() time.Time { return s.issuedAt }

// Valid reports whether the session carries a usable credential.
func (s *Session) Valid() bool { return s != nil && s.secret != "" }

// Apply sets the auth header for this session on h.
func (s *Session) Apply(h http.Header) {
	if !s.Valid() {
		return
	}
	switch s.scheme {
	case SchemeAppKey:
		h.Set("AppKey", s.secret)
	case SchemeBearer:
		h.Set("Authorization", "Bearer "+s.secret)
	}
}

type sessionKey struct{}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session carried by ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// Store holds the current session for one backend.
type Store struct {
	current atomic.Pointer[Session]
}

// NewStore returns a store seeded with s (which may be nil).
func NewStore(s *Session) *Store {
	st := &Store{}
	if s != nil {
		st.current.Store(s)
	}
	return st
}

// Current returns the active session, or nil when none has been obtained.
func (st *Store) Current() *Session { return st.current.Load() }

// Replace installs a freshly obtained session.
func (st *Store) Replace(s *Session) { st.current.Store(s) }

// Clear drops the active session.
func (st *Store) Clear() { st.current.Store(nil) }

// Bind snapshots the current session into ctx.
func (st *Store) Bind(ctx context.Context) context.Context {
	return WithSession(ctx, st.Current())
}
