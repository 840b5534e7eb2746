package voice

import (
	"context"
	"strconv"
	"sync"
)

// FakeGateway is an in-process Gateway for tests. Sessions connect
// immediately unless OpenErr is set or Block is non-nil.
type FakeGateway struct {
	mu       sync.Mutex
	opens    []string
	sessions []*FakeSession

	// OpenErr, when set, is returned by every Open.
	OpenErr error
	// Block, when set, makes Open wait until it is closed.
	Block chan struct{}
}

// Open records the call and returns a connected FakeSession.
func (g *FakeGateway) Open(ctx context.Context, agentID string, ev Events) (Session, error) {
	g.mu.Lock()
	g.opens = append(g.opens, agentID)
	openErr, block := g.OpenErr, g.Block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if openErr != nil {
		return nil, openErr
	}

	g.mu.Lock()
	s := &FakeSession{id: "fake-" + strconv.Itoa(len(g.sessions)+1), agentID: agentID, ev: ev, status: StatusConnected}
	g.sessions = append(g.sessions, s)
	g.mu.Unlock()

	ev.connect()
	return s, nil
}

// Opens returns the agent ids passed to Open.
func (g *FakeGateway) Opens() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.opens))
	copy(out, g.opens)
	return out
}

// Last returns the most recently opened session.
func (g *FakeGateway) Last() *FakeSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sessions) == 0 {
		return nil
	}
	return g.sessions[len(g.sessions)-1]
}

// FakeSession is a session opened by FakeGateway. Its Emit methods drive
// the callbacks as the real service would.
type FakeSession struct {
	id      string
	agentID string
	ev      Events

	mu       sync.Mutex
	status   Status
	speaking bool
	closes   int
}

func (s *FakeSession) ID() string { return s.id }

// AgentID returns the external agent id the session was opened for.
func (s *FakeSession) AgentID() string { return s.agentID }

func (s *FakeSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *FakeSession) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Close marks the session disconnected. It does not fire OnDisconnect.
func (s *FakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.status = StatusDisconnected
	return nil
}

// Closes returns how many times Close was called.
func (s *FakeSession) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// EmitSpeaking reports a mode change.
func (s *FakeSession) EmitSpeaking(speaking bool) {
	s.mu.Lock()
	s.speaking = speaking
	s.mu.Unlock()
	s.ev.modeChange(speaking)
}

// EmitError reports an asynchronous error.
func (s *FakeSession) EmitError(err error) { s.ev.error(err) }

// EmitMessage reports a transcript line.
func (s *FakeSession) EmitMessage(m Message) { s.ev.message(m) }

// EmitDisconnect reports that the service ended the session.
func (s *FakeSession) EmitDisconnect() {
	s.mu.Lock()
	s.status = StatusDisconnected
	s.mu.Unlock()
	s.ev.disconnect()
}
