package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"vn.io.arda/realtime/internal/connection"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/messages"
	"vn.io.arda/realtime/internal/polling"
)

var (
	// ErrNoTransport is returned by Activate when neither a socket URL nor a poll source is configured.
	ErrNoTransport = errors.New("coordinator: no transport configured")

	// ErrNotActive is returned by outbound actions while no session is active.
	ErrNotActive = errors.New("coordinator: no active session")

	// ErrInvalidEventID is returned by JoinEvent and LeaveEvent for an empty id.
	ErrInvalidEventID = errors.New("coordinator: event id is required")
)

// StatusPolling is reported when only the polling loop is active.
const StatusPolling = "Polling"

// Notifier is the interface for pushing store and status changes to the UI.
// Implementation lives in transport/http/sse_hub.go.
type Notifier interface {
	Broadcast(n domain.Notification)
	BroadcastStatus(status string, connected bool)
}

// Classifier turns inbound messages into notification candidates.
// Returning nil means "do not store".
type Classifier interface {
	Dispatch(msg domain.Message) *domain.Candidate
}

// PollSource fetches pending messages for the session.
// Implementations live in infrastructure/rest and infrastructure/postgres.
type PollSource interface {
	Fetch(ctx context.Context, s *Session) ([]domain.Message, error)
}

// Options configures a Coordinator.
type Options struct {
	// Dialer and Connection drive the persistent connection. An empty
	// Connection.URL disables it.
	Dialer     connection.Dialer
	Connection connection.Options

	// PollSource, when set, is polled every PollInterval.
	PollSource   PollSource
	PollInterval time.Duration

	Notifier Notifier
	Logger   *zerolog.Logger
}

// Coordinator is the only component the rest of the application talks to.
// It owns one notification store for its whole lifetime and, per session,
// one connection manager and/or one polling loop feeding it.
//
// Messages from the connection and from polling are admitted independently;
// no ordering is guaranteed between the two sources.
type Coordinator struct {
	store      domain.Store
	classifier Classifier
	opts       Options
	notifier   Notifier
	log        zerolog.Logger

	// lifecycle serializes Activate and Deactivate; mu guards active.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	active    *activation
}

// activation is the per-session transport state torn down by Deactivate.
type activation struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	mgr     *connection.Manager
	poll    *polling.Loop[[]domain.Message]
	wg      sync.WaitGroup
}

// NewCoordinator creates a Coordinator. Connection options are validated
// here so misconfiguration fails before any session arrives.
func NewCoordinator(store domain.Store, classifier Classifier, opts Options) (*Coordinator, error) {
	if store == nil || classifier == nil {
		return nil, errors.New("coordinator: store and classifier are required")
	}
	if opts.Connection.URL != "" {
		if opts.Dialer == nil {
			return nil, fmt.Errorf("%w: dialer is required", connection.ErrInvalidOptions)
		}
		if _, err := connection.New(opts.Dialer, opts.Connection); err != nil {
			return nil, err
		}
	}
	if opts.PollInterval < 0 {
		return nil, fmt.Errorf("%w: %s", polling.ErrInvalidInterval, opts.PollInterval)
	}

	logger := log.With().Str("cmp", "coordinator").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	return &Coordinator{
		store:      store,
		classifier: classifier,
		opts:       opts,
		notifier:   notifier,
		log:        logger,
	}, nil
}

// Activate starts the configured transports for s, replacing any previous session.
func (c *Coordinator) Activate(ctx context.Context, s *Session) error {
	if s == nil {
		return ErrNoCredentials
	}
	if c.opts.Connection.URL == "" && c.opts.PollSource == nil {
		return ErrNoTransport
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.deactivate()

	act := &activation{session: s}
	act.ctx, act.cancel = context.WithCancel(ctx)

	if c.opts.Connection.URL != "" {
		copts := c.opts.Connection
		copts.Tokens = s.Tokens
		mgr, err := connection.New(c.opts.Dialer, copts)
		if err != nil {
			act.cancel()
			return fmt.Errorf("create connection manager: %w", err)
		}
		act.mgr = mgr
	}

	if src := c.opts.PollSource; src != nil {
		loop, err := polling.New(func(ctx context.Context) ([]domain.Message, error) {
			return src.Fetch(ctx, s)
		}, polling.Options{Interval: c.opts.PollInterval, Logger: &c.log})
		if err != nil {
			act.cancel()
			return fmt.Errorf("create polling loop: %w", err)
		}
		act.poll = loop
	}

	c.mu.Lock()
	c.active = act
	c.mu.Unlock()

	if act.mgr != nil {
		act.wg.Add(1)
		go c.consumeConnection(act)
		act.mgr.Start(act.ctx)
	}
	if act.poll != nil {
		act.wg.Add(1)
		go c.consumePoll(act)
		act.poll.Start(act.ctx)
		if act.mgr == nil {
			c.notifier.BroadcastStatus(StatusPolling, false)
		}
	}

	c.log.Info().
		Str("user", s.UserID).
		Bool("socket", act.mgr != nil).
		Bool("polling", act.poll != nil).
		Msg("realtime session activated")
	return nil
}

// Deactivate stops every transport and timer of the current session. Stored
// notifications are kept; only ClearNotifications removes them.
func (c *Coordinator) Deactivate() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.deactivate()
}

func (c *Coordinator) deactivate() {
	c.mu.Lock()
	act := c.active
	c.active = nil
	c.mu.Unlock()

	if act == nil {
		return
	}

	act.cancel()
	if act.mgr != nil {
		act.mgr.Stop()
	}
	if act.poll != nil {
		act.poll.Dispose()
	}
	act.wg.Wait()

	c.notifier.BroadcastStatus(connection.State{Phase: connection.PhaseDisconnected}.String(), false)
	c.log.Info().Str("user", act.session.UserID).Msg("realtime session deactivated")
}

// Session returns the active session, or nil.
func (c *Coordinator) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return nil
	}
	return c.active.session
}

// Status returns the display string of the current transport state.
func (c *Coordinator) Status() string {
	act := c.current()
	switch {
	case act == nil:
		return connection.State{Phase: connection.PhaseDisconnected}.String()
	case act.mgr != nil:
		return act.mgr.Status()
	default:
		return StatusPolling
	}
}

// Connected reports whether the persistent connection is open.
func (c *Coordinator) Connected() bool {
	act := c.current()
	return act != nil && act.mgr != nil && act.mgr.State().Connected()
}

// PollResult returns the latest poll slot; ok is false when polling is not active.
func (c *Coordinator) PollResult() (polling.Result[[]domain.Message], bool) {
	act := c.current()
	if act == nil || act.poll == nil {
		return polling.Result[[]domain.Message]{}, false
	}
	return act.poll.Result(), true
}

// Refresh polls ahead of schedule. It is a no-op without an active poll source.
func (c *Coordinator) Refresh() {
	if act := c.current(); act != nil && act.poll != nil {
		act.poll.Refetch()
	}
}

func (c *Coordinator) Notifications() []domain.Notification { return c.store.List() }

func (c *Coordinator) UnreadCount() int { return c.store.UnreadCount() }

func (c *Coordinator) MarkAsRead(id string) bool { return c.store.MarkRead(id) }

func (c *Coordinator) MarkAllAsRead() int { return c.store.MarkAllRead() }

func (c *Coordinator) ClearNotifications() { c.store.Clear() }

// SendMessage forwards msg over the persistent connection. It returns
// connection.ErrNotConnected when the connection is not open; the message is dropped.
func (c *Coordinator) SendMessage(ctx context.Context, msg domain.Message) error {
	act := c.current()
	if act == nil {
		return ErrNotActive
	}
	if act.mgr == nil {
		return connection.ErrNotConnected
	}
	return act.mgr.Send(ctx, msg)
}

// JoinEvent subscribes to live updates for an event. The server does not
// acknowledge, so a local confirmation is stored once the send succeeds.
func (c *Coordinator) JoinEvent(ctx context.Context, eventID string) error {
	return c.membership(ctx, "join_event", eventID, messages.JoinedEvent)
}

// LeaveEvent unsubscribes from an event.
func (c *Coordinator) LeaveEvent(ctx context.Context, eventID string) error {
	return c.membership(ctx, "leave_event", eventID, messages.LeftEvent)
}

func (c *Coordinator) membership(ctx context.Context, msgType, eventID string, build func(string) (string, string)) error {
	if eventID == "" {
		return ErrInvalidEventID
	}
	if err := c.SendMessage(ctx, domain.NewMessage(msgType, map[string]any{"eventId": eventID})); err != nil {
		return err
	}

	title, body := build(eventID)
	n := c.store.Add(domain.Candidate{
		Kind:     domain.KindSuccess,
		Title:    title,
		Message:  body,
		Metadata: map[string]any{"eventId": eventID},
	})
	c.notifier.Broadcast(n)
	return nil
}

func (c *Coordinator) current() *activation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Coordinator) consumeConnection(act *activation) {
	defer act.wg.Done()

	for ev := range act.mgr.Events() {
		switch ev := ev.(type) {
		case connection.StateChanged:
			if act.ctx.Err() == nil {
				c.notifier.BroadcastStatus(ev.State.String(), ev.State.Connected())
			}
		case connection.Message:
			c.admit(act, ev.Payload)
		case connection.Error:
			c.log.Debug().Err(ev.Err).Msg("connection attempt failed")
		case connection.Closed:
			c.log.Debug().Err(ev.Err).Msg("connection dropped")
		}
	}
}

func (c *Coordinator) consumePoll(act *activation) {
	defer act.wg.Done()

	for ev := range act.poll.Events() {
		switch ev := ev.(type) {
		case polling.Fetched[[]domain.Message]:
			for _, msg := range ev.Data {
				c.admit(act, msg)
			}
		case polling.FetchFailed[[]domain.Message]:
			c.log.Debug().Err(ev.Err).Msg("poll failed, keeping previous data")
		}
	}
}

// admit classifies msg and stores it, unless the activation was torn down.
func (c *Coordinator) admit(act *activation, msg domain.Message) {
	if act.ctx.Err() != nil {
		return
	}
	cand := c.classifier.Dispatch(msg)
	if cand == nil {
		return
	}
	n := c.store.Add(*cand)
	c.notifier.Broadcast(n)

	c.log.Debug().
		Str("id", n.ID).
		Str("type", msg.Type).
		Str("kind", string(n.Kind)).
		Msg("notification admitted")
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(domain.Notification)  {}
func (nopNotifier) BroadcastStatus(string, bool) {}
