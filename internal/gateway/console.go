package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/board"
	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
	"github.com/soyeahso/voicesquad/internal/panel"
	"github.com/soyeahso/voicesquad/internal/voice"
)

// cardCloseTimeout bounds closing one voice session on unmount.
const cardCloseTimeout = 5 * time.Second

// EventSender pushes an event frame to the console's socket.
type EventSender func(event string, payload any) error

// Console is the state behind one WebSocket: the session watcher, the
// board, the panel, the microphone grant and one voice controller for
// every visible card.
type Console struct {
	id     string
	send   EventSender
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	gateway  voice.Gateway
	notifier *notify.Hub
	watcher  *auth.Watcher
	board    *board.Board
	panel    *panel.Panel
	asker    *voice.Asker
	perm     *voice.Permission

	unsubscribe func()

	mu     sync.Mutex
	cards  map[string]*voice.Controller
	closed bool
	wg     sync.WaitGroup
}

// newConsole wires a console over the server's repository and voice
// gateway. Nothing is loaded until Start.
func newConsole(s *Server, id string, send EventSender) *Console {
	ctx, cancel := context.WithCancel(context.Background())
	log := s.log.Sub("console").With("connId", id)

	c := &Console{
		id:      id,
		send:    send,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		gateway: s.voice,
		watcher: auth.NewWatcher(nil),
		cards:   make(map[string]*voice.Controller),
	}

	c.notifier = notify.NewHub(log)
	c.notifier.On("socket", func(n notify.Notification) {
		c.emit(EventNotification, n)
	})

	c.asker = voice.NewAsker(func() error {
		return send(EventMicrophonePrompt, struct{}{})
	})
	c.perm = voice.NewPermission(c.asker, s.permTimeout, log)

	c.board = board.New(s.repo, c.notifier, log)
	c.board.OnChange(c.syncCards)

	c.panel = panel.New(s.repo, c.notifier, log)
	c.panel.OnChange(func(ctx context.Context) {
		_ = c.board.Refresh(ctx)
	})

	c.unsubscribe = c.watcher.Subscribe(c.onSession)
	return c
}

// Start installs the initial session, which loads the board.
func (c *Console) Start(s *auth.Session) {
	c.watcher.Set(s)
}

// Session returns the current session, signing out first if it expired.
func (c *Console) Session() *auth.Session {
	s := c.watcher.Current()
	if s != nil && s.Expired(time.Now()) {
		c.log.Info().Str("email", s.User.Email).Msg("session expired")
		c.watcher.Set(nil)
		return nil
	}
	return s
}

// SetSession replaces the session; nil signs out.
func (c *Console) SetSession(s *auth.Session) {
	c.watcher.Set(s)
}

func (c *Console) onSession(s *auth.Session) {
	if s == nil {
		c.panel.Cancel()
		c.board.Clear()
		c.emit(EventAuthRequired, struct{}{})
		return
	}
	c.log.Debug().Str("email", s.User.Email).Msg("session active")
	_ = c.board.Load(c.ctx)
}

// syncCards mounts a controller for every visible agent and closes the
// controllers whose agent is gone.
func (c *Console) syncCards(visible []domain.Agent) {
	var stale []*voice.Controller

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	keep := make(map[string]bool, len(visible))
	for _, a := range visible {
		keep[a.ID] = true
		if ctrl, ok := c.cards[a.ID]; ok {
			if !cardOutdated(ctrl, a) {
				continue
			}
			stale = append(stale, ctrl)
		}
		c.cards[a.ID] = c.mountLocked(a)
	}
	for id, ctrl := range c.cards {
		if !keep[id] {
			stale = append(stale, ctrl)
			delete(c.cards, id)
		}
	}
	c.mu.Unlock()

	for _, ctrl := range stale {
		c.unmount(ctrl)
	}
	c.emit(EventAgentsChanged, AgentsChanged{Agents: visible})
}

// cardOutdated reports whether ctrl was built for a different version of
// a. A changed agent id always replaces the card; a rename only replaces
// an idle one.
func cardOutdated(ctrl *voice.Controller, a domain.Agent) bool {
	old := ctrl.Agent()
	if old.AgentID != a.AgentID {
		return true
	}
	return old.Name != a.Name && ctrl.State() == voice.StateIdle
}

func (c *Console) mountLocked(a domain.Agent) *voice.Controller {
	ctrl := voice.NewController(a, c.gateway, c.perm, c.notifier, c.log)
	id := a.ID
	ctrl.OnState(func(st voice.State) {
		c.emit(EventVoiceState, VoiceState{ID: id, State: st})
	})
	ctrl.OnMessage(func(m voice.Message) {
		c.emit(EventVoiceMessage, VoiceMessage{ID: id, Source: m.Source, Text: m.Text})
	})
	return ctrl
}

func (c *Console) unmount(ctrl *voice.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), cardCloseTimeout)
	defer cancel()
	ctrl.Close(ctx)
}

// Card returns the controller mounted for agent id.
func (c *Console) Card(id string) (*voice.Controller, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctrl, ok := c.cards[id]
	return ctrl, ok
}

// Connect claims card id and finishes the attempt in the background. The
// returned state is the one the card moved to; the outcome is reported
// through voice.state and notification events.
func (c *Console) Connect(id string) (voice.State, error) {
	ctrl, ok := c.Card(id)
	if !ok {
		return "", fmt.Errorf("%s: %w", id, board.ErrUnknownAgent)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", voice.ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	st, step, err := ctrl.Begin()
	if err != nil {
		c.wg.Done()
		return st, err
	}

	go func() {
		defer c.wg.Done()
		if err := step(c.ctx); err != nil {
			c.log.Debug().Err(err).Str("agent", id).Msg("connect ended")
		}
	}()
	return st, nil
}

// Disconnect ends the session of card id.
func (c *Console) Disconnect(ctx context.Context, id string) (voice.State, error) {
	ctrl, ok := c.Card(id)
	if !ok {
		return "", fmt.Errorf("%s: %w", id, board.ErrUnknownAgent)
	}
	if err := ctrl.Disconnect(ctx); err != nil {
		return ctrl.State(), err
	}
	return ctrl.State(), nil
}

// Close unmounts every card and waits for connects in flight.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cards := c.cards
	c.cards = make(map[string]*voice.Controller)
	c.mu.Unlock()

	c.unsubscribe()
	c.cancel()
	for _, ctrl := range cards {
		c.unmount(ctrl)
	}
	c.wg.Wait()
	c.log.Debug().Int("cards", len(cards)).Msg("console closed")
}

func (c *Console) emit(event string, payload any) {
	if err := c.send(event, payload); err != nil {
		c.log.Debug().Err(err).Str("event", event).Msg("event not delivered")
	}
}
