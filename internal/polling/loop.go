// Package polling runs a caller-supplied fetch on a fixed interval and keeps
// the latest result.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the delay between scheduled fetches.
const DefaultInterval = 30 * time.Second

// ErrInvalidInterval is returned by New for a negative interval.
var ErrInvalidInterval = errors.New("polling: interval must be positive")

// FetchFunc retrieves one result. It should honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Result is the single overwrite-on-every-cycle result slot.
// Data keeps the last successful value when a later fetch fails.
type Result[T any] struct {
	Data          T
	HasData       bool
	Err           error
	Loading       bool
	LastFetchedAt time.Time
}

// Event is delivered on Loop.Events: Fetched or FetchFailed.
type Event[T any] interface {
	isEvent()
}

// Fetched reports a successful fetch.
type Fetched[T any] struct {
	Data T
}

// FetchFailed reports a failed fetch.
type FetchFailed[T any] struct {
	Err error
}

func (Fetched[T]) isEvent()     {}
func (FetchFailed[T]) isEvent() {}

// Options configures a Loop.
type Options struct {
	// Interval between scheduled fetches. Zero means DefaultInterval.
	Interval time.Duration
	Logger   *zerolog.Logger
}

// Loop is a restartable poller. Overlapping fetches (a slow one plus a tick or
// Refetch) are allowed; whichever resolves last owns the result slot.
type Loop[T any] struct {
	fetch    FetchFunc[T]
	interval time.Duration
	log      zerolog.Logger
	events   chan Event[T]

	// ctx bounds every fetch; cancelled by Dispose.
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	mu       sync.Mutex
	result   Result[T]
	loading  int
	alive    bool
	stopTick context.CancelFunc
	tickDone chan struct{}
}

// New validates options and returns a stopped Loop.
func New[T any](fetch FetchFunc[T], opts Options) (*Loop[T], error) {
	if fetch == nil {
		return nil, errors.New("polling: fetch func is required")
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, opts.Interval)
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}

	logger := log.With().Str("cmp", "polling").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop[T]{
		fetch:    fetch,
		interval: opts.Interval,
		log:      logger,
		events:   make(chan Event[T], 16),
		ctx:      ctx,
		cancel:   cancel,
		alive:    true,
	}, nil
}

// Events returns the result stream. It is closed by Dispose.
func (l *Loop[T]) Events() <-chan Event[T] { return l.events }

// Interval returns the configured tick interval.
func (l *Loop[T]) Interval() time.Duration { return l.interval }

// Result returns a copy of the current result slot.
func (l *Loop[T]) Result() Result[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.result
	r.Loading = l.loading > 0
	return r
}

// Running reports whether the ticker is active.
func (l *Loop[T]) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopTick != nil
}

// Start performs one immediate fetch and schedules one per interval until
// Stop, Dispose or ctx cancellation. Starting a running loop is a no-op.
func (l *Loop[T]) Start(ctx context.Context) {
	l.mu.Lock()
	if !l.alive || l.stopTick != nil {
		l.mu.Unlock()
		return
	}
	tickCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	l.stopTick, l.tickDone = stop, done
	l.mu.Unlock()

	l.Refetch()
	go l.tick(tickCtx, done)
}

// Stop cancels the scheduled repetition. Fetches already in flight still
// report their result.
func (l *Loop[T]) Stop() {
	l.mu.Lock()
	stop, done := l.stopTick, l.tickDone
	l.stopTick, l.tickDone = nil, nil
	l.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// Refetch launches one fetch now without resetting the ticker.
func (l *Loop[T]) Refetch() {
	l.mu.Lock()
	if !l.alive {
		l.mu.Unlock()
		return
	}
	l.loading++
	l.inflight.Add(1)
	l.mu.Unlock()

	go l.run()
}

// Dispose stops the loop, cancels in-flight fetches and discards their
// results, then closes Events. The Loop cannot be restarted.
func (l *Loop[T]) Dispose() {
	l.Stop()

	l.mu.Lock()
	if !l.alive {
		l.mu.Unlock()
		return
	}
	l.alive = false
	l.mu.Unlock()

	l.cancel()
	l.inflight.Wait()
	close(l.events)
}

func (l *Loop[T]) tick(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Refetch()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop[T]) run() {
	defer l.inflight.Done()

	data, err := l.fetch(l.ctx)

	l.mu.Lock()
	l.loading--
	if !l.alive || l.ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.result.LastFetchedAt = time.Now()
	var ev Event[T]
	if err != nil {
		l.result.Err = err
		ev = FetchFailed[T]{Err: err}
	} else {
		l.result.Data = data
		l.result.HasData = true
		l.result.Err = nil
		ev = Fetched[T]{Data: data}
	}
	l.mu.Unlock()

	if err != nil {
		l.log.Warn().Err(err).Msg("poll fetch failed")
	}

	select {
	case l.events <- ev:
	case <-l.ctx.Done():
	}
}
