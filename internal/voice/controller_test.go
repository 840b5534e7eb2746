package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/voicesquad/internal/domain"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctrl   *Controller
	gw     *FakeGateway
	perm   *Permission
	notes  *notify.Recorder
	grant  bool
	states []State
	mu     sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(nil, "silent")
	f := &fixture{gw: &FakeGateway{}, notes: &notify.Recorder{}, grant: true}
	f.perm = NewPermission(PromptFunc(func(context.Context) (bool, error) { return f.grant, nil }), time.Second, log)
	f.ctrl = f.newController(domain.Agent{ID: "1", Name: "Ava", AgentID: "agent_ava"})
	return f
}

func (f *fixture) newController(a domain.Agent) *Controller {
	c := NewController(a, f.gw, f.perm, f.notes, logging.New(nil, "silent"))
	c.OnState(func(s State) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.states = append(f.states, s)
	})
	return c
}

func (f *fixture) seen() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]State, len(f.states))
	copy(out, f.states)
	return out
}

func TestConnectWithoutPermissionOnlyPrompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Connect(ctx))
	assert.Empty(t, f.gw.Opens())
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Equal(t, []State{StateRequestingPermission, StateIdle}, f.seen())
	assert.Equal(t, []string{"Microphone Access Granted"}, f.notes.Titles())
	assert.True(t, f.perm.Granted())
}

func TestGatewayNotOpenedWhilePromptPending(t *testing.T) {
	log := logging.New(nil, "silent")
	gw := &FakeGateway{}
	answered := make(chan bool)
	asked := make(chan struct{})
	perm := NewPermission(PromptFunc(func(ctx context.Context) (bool, error) {
		close(asked)
		return <-answered, nil
	}), 0, log)
	ctrl := NewController(domain.Agent{ID: "1", Name: "Ava", AgentID: "agent_ava"}, gw, perm, nil, log)

	done := make(chan error, 1)
	go func() { done <- ctrl.Connect(context.Background()) }()

	<-asked
	assert.Equal(t, StateRequestingPermission, ctrl.State())
	assert.Empty(t, gw.Opens())
	assert.ErrorIs(t, ctrl.Connect(context.Background()), ErrBusy)

	answered <- true
	require.NoError(t, <-done)
	assert.Empty(t, gw.Opens())
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestConnectAfterGrantOpensSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	f.notes.Reset()

	require.NoError(t, f.ctrl.Connect(ctx))
	assert.Equal(t, []string{"agent_ava"}, f.gw.Opens())
	assert.Equal(t, StateListening, f.ctrl.State())
	assert.Equal(t, []string{"Connected"}, f.notes.Titles())
	last, _ := f.notes.Last()
	assert.Equal(t, "Now speaking with Ava", last.Description)
	assert.Equal(t, 1, f.perm.Prompts())
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.grant = false

	err := f.ctrl.Connect(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Empty(t, f.gw.Opens())

	last, ok := f.notes.Last()
	require.True(t, ok)
	assert.Equal(t, "Microphone Access Required", last.Title)
	assert.Equal(t, notify.VariantDestructive, last.Variant)

	// A denial is not cached; the user can try again.
	f.grant = true
	require.NoError(t, f.ctrl.Connect(context.Background()))
	assert.True(t, f.perm.Granted())
	assert.Equal(t, 2, f.perm.Prompts())
}

func TestPermissionSharedAcrossCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))

	other := f.newController(domain.Agent{ID: "2", Name: "Ben", AgentID: "agent_ben"})
	require.NoError(t, other.Connect(ctx))
	assert.Equal(t, StateListening, other.State())
	assert.Equal(t, 1, f.perm.Prompts())
	assert.Equal(t, []string{"agent_ben"}, f.gw.Opens())
}

func TestOpenFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	f.gw.OpenErr = errors.New("handshake failed")

	err := f.ctrl.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, StateIdle, f.ctrl.State())

	last, _ := f.notes.Last()
	assert.Equal(t, "Failed to Start", last.Title)
	assert.Equal(t, notify.VariantDestructive, last.Variant)
}

func TestDisconnectWhileIdleIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.Disconnect(context.Background()))
	assert.Empty(t, f.gw.Opens())
	assert.Nil(t, f.gw.Last())
	assert.Empty(t, f.seen())
}

func TestDisconnectClosesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	require.NoError(t, f.ctrl.Connect(ctx))
	sess := f.gw.Last()

	require.NoError(t, f.ctrl.Disconnect(ctx))
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Equal(t, 1, sess.Closes())

	// Callbacks from the old session are ignored.
	sess.EmitSpeaking(true)
	assert.Equal(t, StateIdle, f.ctrl.State())
}

func TestConnectWhileConnectedIsBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	require.NoError(t, f.ctrl.Connect(ctx))

	assert.ErrorIs(t, f.ctrl.Connect(ctx), ErrBusy)
	assert.Len(t, f.gw.Opens(), 1)
}

func TestSpeakingMirrorsGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	require.NoError(t, f.ctrl.Connect(ctx))
	sess := f.gw.Last()

	sess.EmitSpeaking(true)
	assert.Equal(t, StateSpeaking, f.ctrl.State())
	sess.EmitSpeaking(true)
	sess.EmitSpeaking(false)
	assert.Equal(t, StateListening, f.ctrl.State())

	seen := f.seen()
	assert.Equal(t, []State{StateConnecting, StateListening, StateSpeaking, StateListening}, seen[2:])
}

func TestAsyncErrorNotifiesWithoutStateChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	require.NoError(t, f.ctrl.Connect(ctx))

	f.gw.Last().EmitError(errors.New("socket reset"))
	assert.Equal(t, StateListening, f.ctrl.State())
	last, _ := f.notes.Last()
	assert.Equal(t, "Connection Error", last.Title)
	assert.Equal(t, notify.VariantDestructive, last.Variant)
}

func TestGatewayDisconnectReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	require.NoError(t, f.ctrl.Connect(ctx))

	f.gw.Last().EmitDisconnect()
	assert.Equal(t, StateIdle, f.ctrl.State())

	require.NoError(t, f.ctrl.Connect(ctx))
	assert.Len(t, f.gw.Opens(), 2)
}

func TestMessagesForwarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var got []Message
	f.ctrl.OnMessage(func(m Message) { got = append(got, m) })
	require.NoError(t, f.ctrl.Connect(ctx))
	require.NoError(t, f.ctrl.Connect(ctx))

	f.gw.Last().EmitMessage(Message{Source: "ai", Text: "Hello"})
	assert.Equal(t, []Message{{Source: "ai", Text: "Hello"}}, got)
}

func TestCloseReleasesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	require.NoError(t, f.ctrl.Connect(ctx))
	sess := f.gw.Last()

	require.NoError(t, f.ctrl.Close(ctx))
	require.NoError(t, f.ctrl.Close(ctx))
	assert.Equal(t, 1, sess.Closes())
	assert.ErrorIs(t, f.ctrl.Connect(ctx), ErrClosed)
}

func TestCloseDuringConnectClosesNewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))

	f.gw.Block = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Connect(ctx) }()

	require.Eventually(t, func() bool { return f.ctrl.State() == StateConnecting }, time.Second, time.Millisecond)
	require.NoError(t, f.ctrl.Close(ctx))
	close(f.gw.Block)

	assert.ErrorIs(t, <-done, ErrClosed)
	sess := f.gw.Last()
	require.NotNil(t, sess)
	assert.Equal(t, 1, sess.Closes())
}

func TestDisconnectWhileConnectingIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))

	f.gw.Block = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Connect(ctx) }()
	require.Eventually(t, func() bool { return f.ctrl.State() == StateConnecting }, time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.Disconnect(ctx))
	assert.Equal(t, StateConnecting, f.ctrl.State())

	close(f.gw.Block)
	require.NoError(t, <-done)
	assert.Equal(t, StateListening, f.ctrl.State())
}

func TestUnavailableGateway(t *testing.T) {
	_, err := Unavailable{}.Open(context.Background(), "x", Events{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenFailureAfterCloseIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Connect(ctx))
	before := len(f.notes.Titles())

	f.gw.Block = make(chan struct{})
	f.gw.OpenErr = errors.New("handshake failed")
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Connect(ctx) }()
	require.Eventually(t, func() bool { return f.ctrl.State() == StateConnecting }, time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.Close(ctx))
	close(f.gw.Block)

	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Len(t, f.notes.Titles(), before)
}

func TestPermissionAnswerAfterCloseIsSilent(t *testing.T) {
	for _, grant := range []bool{true, false} {
		f := newFixture(t)
		answer := make(chan bool)
		f.perm = NewPermission(PromptFunc(func(context.Context) (bool, error) { return <-answer, nil }), time.Second, logging.New(nil, "silent"))
		ctrl := f.newController(domain.Agent{ID: "1", Name: "Ava", AgentID: "agent_ava"})

		done := make(chan error, 1)
		go func() { done <- ctrl.Connect(context.Background()) }()
		require.Eventually(t, func() bool { return ctrl.State() == StateRequestingPermission }, time.Second, time.Millisecond)

		require.NoError(t, ctrl.Close(context.Background()))
		answer <- grant

		assert.ErrorIs(t, <-done, ErrClosed, "grant=%v", grant)
		assert.Empty(t, f.notes.Titles(), "grant=%v", grant)
		assert.Equal(t, grant, f.perm.Granted())
	}
}

func TestBeginClaimsControllerSynchronously(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, step, err := f.ctrl.Begin()
	require.NoError(t, err)
	assert.Equal(t, StateRequestingPermission, st)

	st, _, err = f.ctrl.Begin()
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StateRequestingPermission, st)

	require.NoError(t, step(ctx))
	st, step, err = f.ctrl.Begin()
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, st)
	assert.Equal(t, StateConnecting, f.ctrl.State())

	_, _, err = f.ctrl.Begin()
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, step(ctx))
	assert.Equal(t, StateListening, f.ctrl.State())
	assert.Len(t, f.gw.Opens(), 1)
}
