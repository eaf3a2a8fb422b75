package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider unavailable")

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *Breaker {
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	return New(cfg)
}

func failingOp(ctx context.Context) error { return errProvider }

func succeedingOp(ctx context.Context) error { return nil }

func TestBreaker_OpensAtExactThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		require.ErrorIs(t, b.Execute(context.Background(), failingOp), errProvider)
		assert.Equal(t, StateClosed, b.State())
	}

	// Fifth consecutive failure trips the circuit.
	require.ErrorIs(t, b.Execute(context.Background(), failingOp), errProvider)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenNeverInvokesOperation(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), failingOp)
	}
	require.Equal(t, StateOpen, b.State())

	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), failingOp)
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(31 * time.Second)

	invocations := 0
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invocations++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, invocations)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TrialSuccessResetsFailures(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), failingOp)
	}
	clock.Advance(31 * time.Second)
	require.NoError(t, b.Execute(context.Background(), succeedingOp))

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.NotNil(t, snap.LastSuccessAt)
}

func TestBreaker_TrialFailureReopensWithLongerWindow(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), failingOp)
	}
	clock.Advance(31 * time.Second)
	require.ErrorIs(t, b.Execute(context.Background(), failingOp), errProvider)
	require.Equal(t, StateOpen, b.State())

	// The re-armed window doubled to 60s; 31s is not enough.
	clock.Advance(31 * time.Second)
	assert.ErrorIs(t, b.Execute(context.Background(), succeedingOp), ErrCircuitOpen)

	clock.Advance(30 * time.Second)
	assert.NoError(t, b.Execute(context.Background(), succeedingOp))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), failingOp)
	}
	clock.Advance(31 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	var trialErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		trialErr = b.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	// While the trial is in flight, a second caller must be rejected.
	assert.ErrorIs(t, b.Execute(context.Background(), succeedingOp), ErrCircuitOpen)

	close(release)
	wg.Wait()
	require.NoError(t, trialErr)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CancellationIsNeutral(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		b.Execute(context.Background(), failingOp)
	}

	// A user cancellation says nothing about provider health, so it must
	// not push the breaker over the threshold.
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())

	snap := b.Snapshot()
	assert.Equal(t, 4, snap.ConsecutiveFailures)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}

	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_FiveTimeoutsThenImmediateRejection(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
	}
	require.Equal(t, StateOpen, b.State())

	// Sixth call before cool-down: immediate rejection, no attempt.
	attempted := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		attempted = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, attempted)
}

func TestBreaker_StateChangeObserver(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.Now = clock.Now

	var transitions []string
	cfg.OnStateChange = func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	b := New(cfg)

	for i := 0; i < 5; i++ {
		b.Execute(context.Background(), failingOp)
	}
	clock.Advance(31 * time.Second)
	b.Execute(context.Background(), succeedingOp)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestDo_ReturnsValue(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	got, err := Do(context.Background(), b, func(ctx context.Context) (string, error) {
		return "analysis", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "analysis", got)
}
