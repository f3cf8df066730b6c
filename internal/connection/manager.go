package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"vn.io.arda/realtime/internal/domain"
)

const eventBuffer = 64

// Manager keeps at most one live transport to Options.URL and reconnects with
// a bounded retry policy. Lifecycle and inbound traffic are reported on Events.
type Manager struct {
	dialer Dialer
	opts   Options
	log    zerolog.Logger
	events chan Event

	mu        sync.RWMutex
	state     State
	transport Transport

	sendMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New validates opts and returns an idle Manager in the Connecting state.
func New(dialer Dialer, opts Options) (*Manager, error) {
	if dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrInvalidOptions)
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("cmp", "connection").Str("url", opts.URL).Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("url", opts.URL).Logger()
	}

	return &Manager{
		dialer: dialer,
		opts:   opts,
		log:    logger,
		events: make(chan Event, eventBuffer),
		state:  State{Phase: PhaseConnecting},
		done:   make(chan struct{}),
	}, nil
}

// Events returns the ordered event stream. It is closed once the Manager
// reaches Failed or is stopped.
func (m *Manager) Events() <-chan Event { return m.events }

// State returns the current lifecycle snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns the display string for the current state.
func (m *Manager) Status() string { return m.State().String() }

// Start launches the connection lifecycle. Subsequent calls are no-ops.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, m.cancel = context.WithCancel(ctx)
		go m.run(ctx)
	})
}

// Stop tears down the transport, cancels any pending reconnect timer and
// waits for the lifecycle goroutine to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		started := false
		m.startOnce.Do(func() { close(m.done); close(m.events) })
		if m.cancel != nil {
			started = true
			m.cancel()
		}
		<-m.done

		m.mu.Lock()
		if m.state.Phase != PhaseFailed {
			m.state = State{Phase: PhaseDisconnected}
		}
		m.mu.Unlock()

		if started {
			m.log.Debug().Msg("connection manager stopped")
		}
	})
}

// Dispose is Stop; owners call it when the session ends.
func (m *Manager) Dispose() { m.Stop() }

// Send serializes msg and writes it to the live transport. Outside the
// Connected state it logs a warning and returns ErrNotConnected; messages are
// never queued or retried.
func (m *Manager) Send(ctx context.Context, msg domain.Message) error {
	m.mu.RLock()
	t, st := m.transport, m.state
	m.mu.RUnlock()

	if !st.Connected() || t == nil {
		m.log.Warn().Str("type", msg.Type).Str("status", st.String()).Msg("send dropped: not connected")
		return ErrNotConnected
	}

	frame, err := msg.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
	defer cancel()

	m.sendMu.Lock()
	err = t.Send(ctx, frame)
	m.sendMu.Unlock()
	if err != nil {
		m.log.Warn().Err(err).Str("type", msg.Type).Msg("send failed")
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer close(m.events)

	backoff := m.opts.newBackoff()
	attempt := 0
	m.transition(ctx, State{Phase: PhaseConnecting})

	for {
		t, err := m.dial(ctx)
		if ctx.Err() != nil {
			if t != nil {
				_ = t.Close()
			}
			return
		}

		if err == nil {
			attempt = 0
			backoff = m.opts.newBackoff()

			err = m.serve(ctx, t)
			if ctx.Err() != nil {
				return
			}
			m.log.Info().Err(err).Msg("connection closed")
			m.emit(ctx, Closed{Err: err})
		} else {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("connection attempt failed")
			m.emit(ctx, Error{Err: err})
		}

		delay, stop := backoff.Next()
		if stop {
			m.log.Error().Int("max", m.opts.MaxReconnectAttempts).Msg("reconnect attempts exhausted")
			m.transition(ctx, State{Phase: PhaseFailed})
			return
		}

		attempt++
		m.transition(ctx, State{Phase: PhaseReconnecting, Attempt: attempt, Max: m.opts.MaxReconnectAttempts})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) dial(ctx context.Context) (Transport, error) {
	var token *oauth2.Token
	if m.opts.Tokens != nil {
		tok, err := m.opts.Tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("obtain token: %w", err)
		}
		token = tok
	}

	t, err := m.dialer.Dial(ctx, m.opts.URL, token)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return t, nil
}

// serve owns t until it drops or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, t Transport) error {
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer func() {
		m.mu.Lock()
		m.transport = nil
		m.mu.Unlock()
		if stop() {
			_ = t.Close()
		}
	}()

	m.mu.Lock()
	m.transport = t
	m.mu.Unlock()

	m.transition(ctx, State{Phase: PhaseConnected})
	m.log.Info().Msg("connection opened")
	m.emit(ctx, Opened{})

	for {
		frame, err := t.Receive(ctx)
		if err != nil {
			return err
		}
		msg, err := domain.ParseMessage(frame)
		if err != nil {
			m.log.Warn().Err(err).Int("bytes", len(frame)).Msg("dropping malformed frame")
			continue
		}
		m.emit(ctx, Message{Payload: msg})
	}
}

func (m *Manager) transition(ctx context.Context, s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	m.log.Debug().Str("status", s.String()).Msg("connection state changed")
	m.emit(ctx, StateChanged{State: s})
}

// emit blocks until the event is queued or ctx is cancelled; events raised
// after teardown are dropped.
func (m *Manager) emit(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
