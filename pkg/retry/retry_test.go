package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orderstream-io/orderstream/pkg/fault"
	"github.com/orderstream-io/orderstream/pkg/retry"
)

// fakeTimer fires immediately and records every requested delay.
type fakeTimer struct {
	delays []time.Duration
	ch     chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	t.ch = ch
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

// recordingObserver counts callbacks.
type recordingObserver struct {
	attempts  []int
	successes int
	failures  int
}

func (o *recordingObserver) RecordRetryAttempt(op string, attempt int) {
	o.attempts = append(o.attempts, attempt)
}
func (o *recordingObserver) RecordRetrySuccess(op string) { o.successes++ }
func (o *recordingObserver) RecordRetryFailure(op string) { o.failures++ }

func transientErr() error {
	return fault.New(fault.KindBrokerUnavailable, "connection refused")
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	timer := &fakeTimer{}
	obs := &recordingObserver{}

	got, err := retry.Do(context.Background(), retry.AggressiveConfig(), "op", func(ctx context.Context, attempt int) (string, error) {
		return "ok", nil
	}, retry.WithTimer(timer), retry.WithObserver(obs))

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Empty(t, timer.delays, "no sleep before the first attempt")
	require.Equal(t, []int{1}, obs.attempts)
	require.Equal(t, 1, obs.successes)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	timer := &fakeTimer{}
	obs := &recordingObserver{}
	calls := 0

	got, err := retry.Do(context.Background(), retry.AggressiveConfig(), "op", func(ctx context.Context, attempt int) (int, error) {
		calls++
		require.Equal(t, calls, attempt)
		if attempt < 4 {
			return 0, transientErr()
		}
		return attempt, nil
	}, retry.WithTimer(timer), retry.WithObserver(obs))

	require.NoError(t, err)
	require.Equal(t, 4, got)
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, timer.delays)
	require.Equal(t, []int{1, 2, 3, 4}, obs.attempts)
	require.Equal(t, 1, obs.successes)
	require.Equal(t, 0, obs.failures)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	timer := &fakeTimer{}
	obs := &recordingObserver{}
	permanent := fault.New(fault.KindEncodingFailed, "bad payload")

	_, err := retry.Do(context.Background(), retry.AggressiveConfig(), "op", func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, permanent
	}, retry.WithTimer(timer), retry.WithObserver(obs))

	require.Error(t, err)
	require.NotErrorIs(t, err, retry.ErrExhausted)
	require.ErrorIs(t, err, permanent)

	failure, ok := retry.AsFailure(err)
	require.True(t, ok)
	require.True(t, failure.Permanent)
	require.Equal(t, 1, failure.Attempts)
	require.Empty(t, timer.delays)
	require.Equal(t, 1, obs.failures)
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	timer := &fakeTimer{}
	obs := &recordingObserver{}

	_, err := retry.Do(context.Background(), retry.AggressiveConfig(), "op", func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, transientErr()
	}, retry.WithTimer(timer), retry.WithObserver(obs))

	require.Error(t, err)
	require.ErrorIs(t, err, retry.ErrExhausted)

	failure, ok := retry.AsFailure(err)
	require.True(t, ok)
	require.False(t, failure.Permanent)
	require.Equal(t, 5, failure.Attempts)
	require.False(t, failure.FirstAttempt.IsZero())
	require.False(t, failure.LastAttempt.Before(failure.FirstAttempt))

	// Delay sequence doubles from the initial delay and caps at max.
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
	}, timer.delays)
	require.Equal(t, 1, obs.failures)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := retry.Do(ctx, retry.Config{
		MaxAttempts:  10,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}, "op", func(ctx context.Context, attempt int) (struct{}, error) {
		calls++
		cancel()
		return struct{}{}, transientErr()
	})

	require.Error(t, err)
	require.Equal(t, 1, calls, "cancellation must stop the loop before the next attempt")
	require.True(t, errors.Is(err, context.Canceled) || calls == 1)
}
