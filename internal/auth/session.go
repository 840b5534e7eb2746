// Package auth is the authentication boundary: session tokens, the
// per-console session watcher, HTTP gating and the OAuth entry point.
package auth

import (
	"context"
	"sync"
	"time"
)

// User is the authenticated identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a verified user session.
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// Watcher is the single subscription point for session changes within one
// console. Subscribers are called in registration order, outside the lock.
type Watcher struct {
	mu      sync.Mutex
	current *Session
	subs    []*subscription
}

type subscription struct {
	fn func(*Session)
}

// NewWatcher creates a watcher holding initial (which may be nil).
func NewWatcher(initial *Session) *Watcher {
	return &Watcher{current: initial}
}

// Current returns the current session or nil when signed out.
func (w *Watcher) Current() *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Subscribe registers fn and returns a function that removes it.
func (w *Watcher) Subscribe(fn func(*Session)) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	w.mu.Lock()
	w.subs = append(w.subs, sub)
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.subs {
			if s == sub {
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				return
			}
		}
	}
}

// Set replaces the current session (nil signs out) and propagates it.
func (w *Watcher) Set(s *Session) {
	w.mu.Lock()
	w.current = s
	subs := make([]*subscription, len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	for _, sub := range subs {
		sub.fn(s)
	}
}
