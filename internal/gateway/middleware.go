package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// withMiddleware wraps the mux: request tracing innermost, then CORS, then
// the access log.
func withMiddleware(handler http.Handler, log *logging.Logger, corsOrigins []string) http.Handler {
	h := handler
	h = corsMiddleware(h, corsOrigins)
	h = accessLog(h, log)
	h = traceMiddleware(h)
	return h
}

// requestTrace follows one HTTP request through the chain. Handlers behind
// the session gate record who made it.
type requestTrace struct {
	ID    string
	Email string
}

type traceKey struct{}

func traceFrom(ctx context.Context) *requestTrace {
	t, _ := ctx.Value(traceKey{}).(*requestTrace)
	if t == nil {
		return &requestTrace{}
	}
	return t
}

// traceMiddleware assigns the request id, keeping one the caller sent.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), traceKey{}, &requestTrace{ID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// signedIn copies the gate's session email onto the trace.
func signedIn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess := auth.FromContext(r.Context()); sess != nil {
			traceFrom(r.Context()).Email = sess.User.Email
		}
		next(w, r)
	}
}

// accessLog writes one line per request. Agent table writes are logged at
// info so they leave an audit trail; server errors at warn.
func accessLog(next http.Handler, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		trace := traceFrom(r.Context())
		ev := log.Debug()
		switch {
		case sw.status >= http.StatusInternalServerError:
			ev = log.Warn()
		case r.Method != http.MethodGet && r.Method != http.MethodOptions && trace.Email != "":
			ev = log.Info()
		}
		ev = ev.
			Str("requestId", trace.ID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr)
		if trace.Email != "" {
			ev = ev.Str("email", trace.Email)
		}
		ev.Msg("http request")
	})
}

// corsMiddleware answers preflights for the REST surface.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && isOriginAllowed(origin, allowedOrigins) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
			h.Set("Access-Control-Expose-Headers", requestIDHeader)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed denies every cross-origin caller when none are configured.
func isOriginAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// statusWriter records the response status. It passes Hijack through so
// the console socket can upgrade behind the chain.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
