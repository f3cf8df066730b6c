package polling_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/realtime/internal/polling"
)

func nextEvent[T any](t *testing.T, l *polling.Loop[T]) polling.Event[T] {
	t.Helper()
	select {
	case ev, ok := <-l.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll event")
		return nil
	}
}

func TestLoop_ImmediateFetchThenInterval(t *testing.T) {
	var calls atomic.Int32
	l, err := polling.New(func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, polling.Options{Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer l.Dispose()

	l.Start(context.Background())
	ev := nextEvent(t, l)
	require.Equal(t, polling.Fetched[int]{Data: 1}, ev)

	nextEvent(t, l)
	nextEvent(t, l)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
	assert.True(t, l.Running())
}

func TestLoop_Resilience(t *testing.T) {
	var calls atomic.Int32
	l, err := polling.New(func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("backend unavailable")
		}
		return "payload", nil
	}, polling.Options{Interval: time.Hour})
	require.NoError(t, err)
	defer l.Dispose()

	l.Start(context.Background())
	ev := nextEvent(t, l)
	require.IsType(t, polling.FetchFailed[string]{}, ev)

	r := l.Result()
	assert.Error(t, r.Err)
	assert.False(t, r.HasData)
	assert.Equal(t, "", r.Data)
	assert.True(t, l.Running(), "a failed fetch does not stop the loop")

	l.Refetch()
	ev = nextEvent(t, l)
	require.Equal(t, polling.Fetched[string]{Data: "payload"}, ev)

	r = l.Result()
	assert.NoError(t, r.Err)
	assert.True(t, r.HasData)
	assert.Equal(t, "payload", r.Data)
	assert.False(t, r.LastFetchedAt.IsZero())
}

func TestLoop_FailureKeepsStaleData(t *testing.T) {
	var calls atomic.Int32
	l, err := polling.New(func(context.Context) (int, error) {
		if calls.Add(1) == 2 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	}, polling.Options{Interval: time.Hour})
	require.NoError(t, err)
	defer l.Dispose()

	l.Start(context.Background())
	nextEvent(t, l)
	l.Refetch()
	nextEvent(t, l)

	r := l.Result()
	assert.Error(t, r.Err)
	assert.True(t, r.HasData)
	assert.Equal(t, 42, r.Data)
}

func TestLoop_StopHaltsSchedule(t *testing.T) {
	var calls atomic.Int32
	l, err := polling.New(func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}, polling.Options{Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	defer l.Dispose()

	l.Start(context.Background())
	nextEvent(t, l)
	l.Stop()
	assert.False(t, l.Running())

	// Drain anything that was already in flight.
	time.Sleep(20 * time.Millisecond)
	for len(l.Events()) > 0 {
		<-l.Events()
	}
	before := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, calls.Load())

	l.Start(context.Background())
	nextEvent(t, l)
	assert.Greater(t, calls.Load(), before, "loop can be restarted after Stop")
}

func TestLoop_LastResolvedWins(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	l, err := polling.New(func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-release
			return "slow", nil
		}
		return "fast", nil
	}, polling.Options{Interval: time.Hour})
	require.NoError(t, err)
	defer l.Dispose()

	l.Start(context.Background())
	l.Refetch()
	require.Equal(t, polling.Fetched[string]{Data: "fast"}, nextEvent(t, l))
	assert.True(t, l.Result().Loading, "slow fetch still in flight")

	close(release)
	require.Equal(t, polling.Fetched[string]{Data: "slow"}, nextEvent(t, l))
	assert.Equal(t, "slow", l.Result().Data)
	assert.False(t, l.Result().Loading)
}

func TestLoop_DisposeDiscardsInflight(t *testing.T) {
	entered := make(chan struct{})
	l, err := polling.New(func(ctx context.Context) (int, error) {
		close(entered)
		<-ctx.Done()
		return 7, nil
	}, polling.Options{Interval: time.Hour})
	require.NoError(t, err)

	l.Start(context.Background())
	<-entered
	l.Dispose()

	r := l.Result()
	assert.False(t, r.HasData, "late result must not be applied")
	assert.True(t, r.LastFetchedAt.IsZero())

	_, open := <-l.Events()
	assert.False(t, open)

	l.Start(context.Background())
	l.Refetch()
	assert.False(t, l.Running(), "disposed loop cannot restart")
	l.Dispose()
}

func TestNew_Validation(t *testing.T) {
	_, err := polling.New(func(context.Context) (int, error) { return 0, nil }, polling.Options{Interval: -time.Second})
	require.ErrorIs(t, err, polling.ErrInvalidInterval)

	_, err = polling.New[int](nil, polling.Options{})
	require.Error(t, err)

	l, err := polling.New(func(context.Context) (int, error) { return 0, nil }, polling.Options{})
	require.NoError(t, err)
	assert.Equal(t, polling.DefaultInterval, l.Interval())
	l.Dispose()
}
