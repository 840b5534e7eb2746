package gateway

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/soyeahso/voicesquad/internal/auth"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK      bool          `json:"ok"`
	Method  string        `json:"method,omitempty"` // "token" | "cookie"
	Reason  string        `json:"reason,omitempty"`
	Session *auth.Session `json:"-"`
}

// Authorize resolves the console session. The token in the connect frame
// wins; without one the upgrade request's bearer header or session cookie
// is used.
func Authorize(v *auth.Verifier, r *http.Request, cookieName string, clientAuth *ConnectAuth) AuthResult {
	token, method := "", ""
	if clientAuth != nil && clientAuth.Token != "" {
		token, method = clientAuth.Token, "token"
	} else if r != nil {
		token, method = auth.TokenFromRequest(r, cookieName), "cookie"
	}
	if token == "" {
		return AuthResult{OK: false, Reason: "no credentials provided"}
	}

	s, err := v.Verify(token)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, auth.ErrExpiredToken) {
			reason = "token_expired"
		}
		return AuthResult{OK: false, Reason: reason}
	}
	return AuthResult{OK: true, Method: method, Session: s}
}

const (
	failWindow   = 5 * time.Minute
	failMax      = 10
	failMaxHosts = 10000
)

// failureLimiter refuses sockets from a host after failMax failed
// handshakes inside failWindow.
type failureLimiter struct {
	now func() time.Time

	mu     sync.Mutex
	byHost map[string][]time.Time // failure times, oldest first
}

func newFailureLimiter() *failureLimiter {
	return &failureLimiter{now: time.Now, byHost: make(map[string][]time.Time)}
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// recent drops failures older than the window. Callers hold mu.
func (l *failureLimiter) recent(host string, now time.Time) []time.Time {
	times := l.byHost[host]
	cutoff := now.Add(-failWindow)
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	times = times[i:]
	if len(times) == 0 {
		delete(l.byHost, host)
		return nil
	}
	l.byHost[host] = times
	return times
}

func (l *failureLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(remoteHost(addr), l.now())) < failMax
}

func (l *failureLimiter) fail(addr string) {
	host := remoteHost(addr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, known := l.byHost[host]; !known && len(l.byHost) >= failMaxHosts {
		l.evict(now)
	}
	l.byHost[host] = append(l.recent(host, now), now)
}

// evict prunes stale hosts, then the quietest one if the map is still full.
func (l *failureLimiter) evict(now time.Time) {
	for host := range l.byHost {
		l.recent(host, now)
	}
	if len(l.byHost) < failMaxHosts {
		return
	}
	var quietest string
	var last time.Time
	for host, times := range l.byHost {
		if t := times[len(times)-1]; quietest == "" || t.Before(last) {
			quietest, last = host, t
		}
	}
	delete(l.byHost, quietest)
}

// checkWebSocketOrigin admits requests without an Origin header, which
// come from the same origin or from non-browser clients.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}
