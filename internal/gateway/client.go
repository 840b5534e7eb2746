package gateway

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
)

// ErrClientClosed is returned when writing to a closed socket.
var ErrClientClosed = errors.New("client connection closed")

const (
	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second
	// closeGrace bounds the close frame sent before dropping a socket.
	closeGrace = time.Second
)

// Client is one authenticated console socket. Events it emits are numbered
// from 1 per socket so a console can spot gaps after a reconnect.
type Client struct {
	ConnID      string
	Info        ClientInfo
	AuthMethod  string
	ConnectedAt time.Time

	socket *websocket.Conn
	seq    atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a socket that just completed the handshake.
func NewClient(conn *websocket.Conn, info ClientInfo, authMethod string) *Client {
	return &Client{
		ConnID:      uuid.New().String(),
		Info:        info,
		AuthMethod:  authMethod,
		ConnectedAt: time.Now(),
		socket:      conn,
	}
}

func (c *Client) write(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.socket == nil {
		return ErrClientClosed
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.socket.WriteJSON(frame)
}

// Emit pushes an event stamped with the socket's next sequence number.
func (c *Client) Emit(event string, payload any) error {
	f, err := NewEvent(event, payload, c.seq.Add(1))
	if err != nil {
		return err
	}
	return c.write(f)
}

// Respond answers request reqID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.write(f)
}

func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.write(NewErrorResponse(reqID, errShape))
}

// ping sends a keepalive ping. It may run alongside frame writes.
func (c *Client) ping() error {
	c.mu.Lock()
	gone := c.closed || c.socket == nil
	c.mu.Unlock()
	if gone {
		return ErrClientClosed
	}
	return c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// ReadFrame blocks for the next frame. Only the read loop calls it.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close sends a close frame carrying code and reason, then drops the
// socket. Later calls are no-ops.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.socket == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return c.socket.Close()
}

// consoleConn pairs a socket with the console state it drives.
type consoleConn struct {
	client  *Client
	console *Console
}

// ClientRegistry tracks the live console connections.
type ClientRegistry struct {
	mu    sync.RWMutex
	conns map[string]consoleConn // connID → connection
	log   *logging.Logger
}

func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		conns: make(map[string]consoleConn),
		log:   log,
	}
}

// Add registers a connection and the console behind it.
func (r *ClientRegistry) Add(c *Client, console *Console) {
	r.mu.Lock()
	r.conns[c.ConnID] = consoleConn{client: c, console: console}
	n := len(r.conns)
	r.mu.Unlock()

	r.log.Info().
		Str("connId", c.ConnID).
		Str("client", c.Info.ID).
		Str("authMethod", c.AuthMethod).
		Int("consoles", n).
		Msg("console connected")
}

// Remove forgets a connection. Unknown ids are ignored.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.log.Info().
		Str("connId", connID).
		Dur("connected", time.Since(c.client.ConnectedAt)).
		Msg("console disconnected")
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *ClientRegistry) snapshot() []consoleConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]consoleConn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// SignedIn returns the sorted distinct emails of consoles holding a live
// session. Expired sessions sign their console out on the way.
func (r *ClientRegistry) SignedIn() []string {
	seen := make(map[string]bool)
	for _, c := range r.snapshot() {
		if c.console == nil {
			continue
		}
		if s := c.console.Session(); s != nil {
			seen[s.User.Email] = true
		}
	}
	emails := make([]string, 0, len(seen))
	for e := range seen {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails
}

// Notify shows n on every connected console.
func (r *ClientRegistry) Notify(n notify.Notification) {
	for _, c := range r.snapshot() {
		if err := c.client.Emit(EventNotification, n); err != nil {
			r.log.Debug().Err(err).Str("connId", c.client.ConnID).Msg("notification not delivered")
		}
	}
}

// CloseAll tells every console the server is going away and drops it.
func (r *ClientRegistry) CloseAll(reason string) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]consoleConn)
	r.mu.Unlock()

	for _, c := range conns {
		c.client.Close(websocket.CloseGoingAway, reason)
	}
	if len(conns) > 0 {
		r.log.Info().Int("consoles", len(conns)).Msg("closed all consoles")
	}
}
