package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/voicesquad/internal/logging"
)

// Prompter asks the user for microphone access.
type Prompter interface {
	Prompt(ctx context.Context) (granted bool, err error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context) (bool, error)

// Prompt calls f(ctx).
func (f PromptFunc) Prompt(ctx context.Context) (bool, error) { return f(ctx) }

// Permission caches the microphone grant for one console. Only one prompt
// runs at a time. A grant is kept for the life of the Permission; a denial
// is not, so the next Request prompts again.
type Permission struct {
	prompter Prompter
	timeout  time.Duration
	log      *logging.Logger

	prompting sync.Mutex

	mu      sync.Mutex
	granted bool
	prompts int
}

// NewPermission creates a Permission. timeout <= 0 waits for as long as
// the caller's context allows.
func NewPermission(p Prompter, timeout time.Duration, log *logging.Logger) *Permission {
	return &Permission{prompter: p, timeout: timeout, log: log.Sub("permission")}
}

// Granted reports whether access has been granted.
func (p *Permission) Granted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

// Prompts returns how many times the user was asked.
func (p *Permission) Prompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

// Request returns nil once access is granted, prompting if needed. A
// denial, prompt failure or timeout is returned wrapped in
// ErrPermissionDenied.
func (p *Permission) Request(ctx context.Context) error {
	p.prompting.Lock()
	defer p.prompting.Unlock()

	if p.Granted() {
		return nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.mu.Lock()
	p.prompts++
	p.mu.Unlock()

	granted, err := p.prompter.Prompt(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("microphone prompt failed")
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if !granted {
		p.log.Info().Msg("microphone access denied")
		return ErrPermissionDenied
	}

	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()
	p.log.Info().Msg("microphone access granted")
	return nil
}

// Asker is a Prompter whose answer arrives later through Answer. The
// console uses it to turn a microphone.prompt event and the matching
// microphone.result frame into one blocking call.
type Asker struct {
	send func() error

	mu      sync.Mutex
	pending chan bool
}

// NewAsker creates an Asker that calls send to show the prompt.
func NewAsker(send func() error) *Asker {
	return &Asker{send: send}
}

// Prompt shows the prompt and waits for Answer or ctx.
func (a *Asker) Prompt(ctx context.Context) (bool, error) {
	ch := make(chan bool, 1)
	a.mu.Lock()
	a.pending = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.pending == ch {
			a.pending = nil
		}
		a.mu.Unlock()
	}()

	if err := a.send(); err != nil {
		return false, fmt.Errorf("sending prompt: %w", err)
	}

	select {
	case granted := <-ch:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Answer delivers the user's choice. It reports false when no prompt is
// waiting.
func (a *Asker) Answer(granted bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return false
	}
	a.pending <- granted
	a.pending = nil
	return true
}

// Pending reports whether a prompt is waiting for an answer.
func (a *Asker) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}
