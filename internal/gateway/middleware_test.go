package gateway

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestTraceMiddleware(t *testing.T) {
	var seen string
	handler := traceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = traceFrom(r.Context()).ID
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/agents", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(requestIDHeader))

	req := httptest.NewRequest("GET", "/api/agents", nil)
	req.Header.Set(requestIDHeader, "custom-id-123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "custom-id-123", seen)
	assert.Equal(t, "custom-id-123", rr.Header().Get(requestIDHeader))
}

func TestTraceFromEmptyContext(t *testing.T) {
	tr := traceFrom(httptest.NewRequest("GET", "/", nil).Context())
	require.NotNil(t, tr)
	assert.Empty(t, tr.ID)
}

// asUser stands in for the session gate.
func asUser(email string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := &auth.Session{User: auth.User{ID: email, Email: email}}
		next(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	}
}

func TestAccessLogAuditsAgentWrites(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "info")
	handler := traceMiddleware(accessLog(asUser("ada@example.com", signedIn(okHandler)), log))

	req := httptest.NewRequest("POST", "/api/agents", nil)
	req.Header.Set(requestIDHeader, "req-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"email":"ada@example.com"`)
	assert.Contains(t, out, `"requestId":"req-7"`)
	assert.Contains(t, out, `"path":"/api/agents"`)

	// Reads stay at debug
	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/agents", nil))
	assert.Empty(t, buf.String())
}

func TestAccessLogWarnsOnServerError(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "warn")
	handler := traceMiddleware(accessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), log))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/agents", nil))

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"status":502`)
	assert.NotContains(t, buf.String(), `"email"`)
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"unconfigured denies", nil, "http://localhost:3000", ""},
		{"wildcard", []string{"*"}, "http://localhost:3000", "http://localhost:3000"},
		{"listed origin", []string{"http://allowed.com"}, "http://allowed.com", "http://allowed.com"},
		{"unlisted origin", []string{"http://allowed.com"}, "http://evil.com", ""},
		{"same origin", []string{"*"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/agents", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			corsMiddleware(http.HandlerFunc(okHandler), tt.allowed).ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, requestIDHeader, rr.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	reached := false
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}), []string{"http://allowed.com"})

	req := httptest.NewRequest("OPTIONS", "/api/agents/order", nil)
	req.Header.Set("Origin", "http://allowed.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.False(t, reached)
}

func TestWithMiddlewareChain(t *testing.T) {
	handler := withMiddleware(http.HandlerFunc(okHandler), testLog(), []string{"http://test.com"})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://test.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	assert.Equal(t, "http://test.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithMiddlewareLetsSocketsUpgrade(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("hi"))
		conn.Close()
	}), testLog(), nil))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(msg))
}
