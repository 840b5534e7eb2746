package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
)

// State is the controller's view of its card.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateConnecting           State = "connecting"
	StateListening            State = "listening"
	StateSpeaking             State = "speaking"
)

// Connected reports whether s is listening or speaking.
func (s State) Connected() bool {
	return s == StateListening || s == StateSpeaking
}

// Controller is the per-card session state machine. All methods are safe
// for concurrent use; gateway callbacks from a replaced or closed session
// are ignored.
type Controller struct {
	agent    domain.Agent
	gateway  Gateway
	perm     *Permission
	notifier notify.Notifier
	log      *logging.Logger

	mu        sync.Mutex
	state     State
	session   Session
	gen       uint64
	closed    bool
	onState   func(State)
	onMessage func(Message)
}

// NewController creates an idle controller for agent.
func NewController(agent domain.Agent, gw Gateway, perm *Permission, notifier notify.Notifier, log *logging.Logger) *Controller {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Controller{
		agent:    agent,
		gateway:  gw,
		perm:     perm,
		notifier: notifier,
		log:      log.Sub("voice").With("agent", agent.ID),
		state:    StateIdle,
	}
}

// OnState registers the state observer.
func (c *Controller) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnMessage registers the transcript observer.
func (c *Controller) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Agent returns the agent this controller was created for.
func (c *Controller) Agent() domain.Agent {
	return c.agent
}

// Connect asks for microphone access if it has not been granted yet, and
// otherwise opens a session. A grant leaves the controller idle; the next
// Connect opens the session.
func (c *Controller) Connect(ctx context.Context) error {
	_, step, err := c.Begin()
	if err != nil {
		return err
	}
	return step(ctx)
}

// Begin claims an idle controller and moves it to requesting_permission or
// connecting before returning. The returned step finishes the attempt and
// may block; a second Begin before it runs fails with ErrBusy.
func (c *Controller) Begin() (State, func(context.Context) error, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", nil, ErrClosed
	}
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return st, nil, fmt.Errorf("connect while %s: %w", st, ErrBusy)
	}

	if !c.perm.Granted() {
		c.state = StateRequestingPermission
		c.mu.Unlock()
		c.publish(StateRequestingPermission)
		return StateRequestingPermission, c.requestPermission, nil
	}

	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.publish(StateConnecting)
	return StateConnecting, func(ctx context.Context) error { return c.open(ctx, gen) }, nil
}

func (c *Controller) open(ctx context.Context, gen uint64) error {
	c.log.Debug().Str("agentId", c.agent.AgentID).Msg("opening session")
	sess, err := c.gateway.Open(ctx, c.agent.AgentID, c.events(gen))
	if err == nil && sess.Status() == StatusDisconnected {
		err = errors.New("session closed while connecting")
	}

	c.mu.Lock()
	if err != nil {
		reset := c.gen == gen && c.state == StateConnecting
		if reset {
			c.state = StateIdle
		}
		closed := c.closed
		c.mu.Unlock()
		if reset {
			c.publish(StateIdle)
		}
		if closed {
			c.log.Debug().Err(err).Msg("session failed after unmount")
			return ErrClosed
		}
		c.log.Error().Err(err).Msg("failed to start session")
		c.notifier.Notify(notify.Destructive("Failed to Start", "Could not connect to the agent"))
		return fmt.Errorf("opening session: %w", err)
	}

	if c.closed || c.gen != gen {
		c.mu.Unlock()
		c.log.Debug().Str("session", sess.ID()).Msg("closing session opened after unmount")
		if cerr := sess.Close(ctx); cerr != nil {
			c.log.Warn().Err(cerr).Msg("closing stale session")
		}
		return ErrClosed
	}

	c.session = sess
	c.state = StateListening
	if sess.IsSpeaking() {
		c.state = StateSpeaking
	}
	st := c.state
	c.mu.Unlock()

	c.publish(st)
	c.log.Info().Str("session", sess.ID()).Msg("session connected")
	c.notifier.Notify(notify.Info("Connected", "Now speaking with "+c.agent.Name))
	return nil
}

func (c *Controller) requestPermission(ctx context.Context) error {
	err := c.perm.Request(ctx)

	c.mu.Lock()
	reset := c.state == StateRequestingPermission
	if reset {
		c.state = StateIdle
	}
	closed := c.closed
	c.mu.Unlock()
	if reset {
		c.publish(StateIdle)
	}

	if closed {
		return ErrClosed
	}
	if err != nil {
		c.notifier.Notify(notify.Destructive("Microphone Access Required", "Please allow microphone access to use voice features"))
		return err
	}
	c.notifier.Notify(notify.Info("Microphone Access Granted", "You can now start a conversation"))
	return nil
}

// Disconnect closes the open session and returns to idle. It is a no-op
// unless the controller is listening or speaking.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Connected() {
		c.mu.Unlock()
		return nil
	}
	sess := c.session
	c.session = nil
	c.gen++
	c.state = StateIdle
	c.mu.Unlock()

	c.publish(StateIdle)
	c.closeSession(ctx, sess)
	return nil
}

// Close releases any open session and stops the controller. A connect
// still in flight closes its session as soon as it completes.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.session
	c.session = nil
	if c.state.Connected() {
		c.gen++
		c.state = StateIdle
	}
	c.onState = nil
	c.onMessage = nil
	c.mu.Unlock()

	c.closeSession(ctx, sess)
	return nil
}

func (c *Controller) closeSession(ctx context.Context, sess Session) {
	if sess == nil {
		return
	}
	if err := sess.Close(ctx); err != nil {
		c.log.Warn().Err(err).Str("session", sess.ID()).Msg("closing session")
		return
	}
	c.log.Info().Str("session", sess.ID()).Msg("session closed")
}

// events builds the callbacks for the session opened at generation gen.
func (c *Controller) events(gen uint64) Events {
	return Events{
		OnConnect: func() {
			c.log.Debug().Msg("gateway connected")
		},
		OnDisconnect: func() {
			c.log.Debug().Msg("gateway disconnected")
			c.mu.Lock()
			if c.gen != gen || !c.state.Connected() {
				c.mu.Unlock()
				return
			}
			c.session = nil
			c.gen++
			c.state = StateIdle
			c.mu.Unlock()
			c.publish(StateIdle)
		},
		OnError: func(err error) {
			c.mu.Lock()
			current := c.gen == gen && !c.closed
			c.mu.Unlock()
			if !current {
				return
			}
			c.log.Error().Err(err).Msg("session error")
			c.notifier.Notify(notify.Destructive("Connection Error", "Failed to connect to the agent. Please try again."))
		},
		OnMessage: func(m Message) {
			c.mu.Lock()
			fn := c.onMessage
			current := c.gen == gen
			c.mu.Unlock()
			if current && fn != nil {
				fn(m)
			}
		},
		OnModeChange: func(speaking bool) {
			c.mu.Lock()
			if c.gen != gen || !c.state.Connected() {
				c.mu.Unlock()
				return
			}
			next := StateListening
			if speaking {
				next = StateSpeaking
			}
			if c.state == next {
				c.mu.Unlock()
				return
			}
			c.state = next
			c.mu.Unlock()
			c.publish(next)
		},
	}
}

func (c *Controller) publish(st State) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
