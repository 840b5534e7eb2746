package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionGrantIsCached(t *testing.T) {
	var calls atomic.Int32
	p := NewPermission(PromptFunc(func(context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	}), 0, logging.New(nil, "silent"))

	require.NoError(t, p.Request(context.Background()))
	require.NoError(t, p.Request(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, p.Granted())
}

func TestPermissionOnePromptAtATime(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	p := NewPermission(PromptFunc(func(context.Context) (bool, error) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return true, nil
	}), 0, logging.New(nil, "silent"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Request(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 1, p.Prompts())
}

func TestPermissionPromptErrorIsDenial(t *testing.T) {
	p := NewPermission(PromptFunc(func(context.Context) (bool, error) {
		return false, errors.New("no audio device")
	}), 0, logging.New(nil, "silent"))

	err := p.Request(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "no audio device")
	assert.False(t, p.Granted())
}

func TestPermissionTimeout(t *testing.T) {
	p := NewPermission(PromptFunc(func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}), 10*time.Millisecond, logging.New(nil, "silent"))

	err := p.Request(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAskerAnswer(t *testing.T) {
	sent := make(chan struct{}, 1)
	a := NewAsker(func() error {
		sent <- struct{}{}
		return nil
	})
	assert.False(t, a.Answer(true))

	done := make(chan bool, 1)
	go func() {
		granted, err := a.Prompt(context.Background())
		assert.NoError(t, err)
		done <- granted
	}()

	<-sent
	require.Eventually(t, a.Pending, time.Second, time.Millisecond)
	assert.True(t, a.Answer(true))
	assert.True(t, <-done)
	assert.False(t, a.Pending())
}

func TestAskerContextCanceled(t *testing.T) {
	a := NewAsker(func() error { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Prompt(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, a.Pending())
}

func TestAskerSendFailure(t *testing.T) {
	a := NewAsker(func() error { return errors.New("socket closed") })
	_, err := a.Prompt(context.Background())
	assert.Error(t, err)
	assert.False(t, a.Pending())
}
