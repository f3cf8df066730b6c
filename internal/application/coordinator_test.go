package application_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"vn.io.arda/realtime/internal/application"
	"vn.io.arda/realtime/internal/classify/handlers"
	"vn.io.arda/realtime/internal/connection"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/infrastructure/memory"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type pipe struct {
	frames chan []byte
	sent   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipe() *pipe {
	return &pipe{frames: make(chan []byte, 16), sent: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *pipe) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-p.frames:
		return b, nil
	case <-p.closed:
		return nil, errors.New("closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipe) Send(_ context.Context, b []byte) error {
	select {
	case <-p.closed:
		return errors.New("closed")
	default:
	}
	p.sent <- b
	return nil
}

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type pipeDialer struct {
	mu    sync.Mutex
	pipes []*pipe
	fail  bool
}

func (d *pipeDialer) Dial(context.Context, string, *oauth2.Token) (connection.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return nil, errors.New("refused")
	}
	p := newPipe()
	d.pipes = append(d.pipes, p)
	return p, nil
}

func (d *pipeDialer) last() *pipe {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pipes) == 0 {
		return nil
	}
	return d.pipes[len(d.pipes)-1]
}

type recorder struct {
	mu       sync.Mutex
	items    []domain.Notification
	statuses []string
}

func (r *recorder) Broadcast(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) BroadcastStatus(status string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

type pollFunc func(ctx context.Context, s *application.Session) ([]domain.Message, error)

func (f pollFunc) Fetch(ctx context.Context, s *application.Session) ([]domain.Message, error) {
	return f(ctx, s)
}

func msg(t *testing.T, frame string) domain.Message {
	t.Helper()
	m, err := domain.ParseMessage([]byte(frame))
	require.NoError(t, err)
	return m
}

func session(t *testing.T) *application.Session {
	t.Helper()
	s, err := application.SessionFromToken("opaque-token")
	require.NoError(t, err)
	return s
}

func socketOptions(d connection.Dialer, n application.Notifier) application.Options {
	copts := connection.DefaultOptions("ws://realtime.test/socket")
	copts.ReconnectInterval = 5 * time.Millisecond
	return application.Options{Dialer: d, Connection: copts, Notifier: n}
}

func waitConnected(t *testing.T, c *application.Coordinator) {
	t.Helper()
	require.Eventually(t, c.Connected, 2*time.Second, 5*time.Millisecond)
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestCoordinator_SocketAdmission(t *testing.T) {
	d := &pipeDialer{}
	rec := &recorder{}
	store := memory.NewStore(memory.Options{})
	c, err := application.NewCoordinator(store, handlers.Default(), socketOptions(d, rec))
	require.NoError(t, err)

	assert.Equal(t, "Disconnected", c.Status())
	require.NoError(t, c.Activate(context.Background(), session(t)))
	defer c.Deactivate()

	waitConnected(t, c)
	assert.Equal(t, "Connected", c.Status())

	d.last().frames <- []byte(`{"type":"song_request_created","requestId":"r1","song":"Hey Jude","artist":"The Beatles"}`)
	d.last().frames <- []byte(`{"type":"ping"}`)
	d.last().frames <- []byte(`garbage`)
	d.last().frames <- []byte(`{"type":"event_updated","eventId":"e1","name":"Friday Live"}`)

	require.Eventually(t, func() bool { return c.UnreadCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	list := c.Notifications()
	require.Len(t, list, 2)
	assert.Equal(t, domain.KindEventUpdate, list[0].Kind, "newest first")
	assert.Equal(t, domain.KindRequestUpdate, list[1].Kind)
	assert.True(t, c.Connected(), "malformed frames do not affect the connection")

	assert.Contains(t, rec.Statuses(), "Connecting")
	assert.Contains(t, rec.Statuses(), "Connected")
}

func TestCoordinator_ReadOperations(t *testing.T) {
	d := &pipeDialer{}
	store := memory.NewStore(memory.Options{})
	c, err := application.NewCoordinator(store, handlers.Default(), socketOptions(d, nil))
	require.NoError(t, err)

	store.Add(domain.Candidate{Kind: domain.KindInfo, Title: "a"})
	b := store.Add(domain.Candidate{Kind: domain.KindInfo, Title: "b"})

	assert.True(t, c.MarkAsRead(b.ID))
	assert.False(t, c.MarkAsRead(b.ID))
	assert.Equal(t, 1, c.UnreadCount())
	assert.Equal(t, 1, c.MarkAllAsRead())
	assert.Equal(t, 0, c.UnreadCount())

	c.ClearNotifications()
	assert.Empty(t, c.Notifications())
}

func TestCoordinator_JoinAndLeaveEvent(t *testing.T) {
	d := &pipeDialer{}
	rec := &recorder{}
	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), socketOptions(d, rec))
	require.NoError(t, err)

	assert.ErrorIs(t, c.JoinEvent(context.Background(), "e1"), application.ErrNotActive)

	require.NoError(t, c.Activate(context.Background(), session(t)))
	defer c.Deactivate()
	waitConnected(t, c)

	require.NoError(t, c.JoinEvent(context.Background(), "e1"))
	assert.JSONEq(t, `{"type":"join_event","eventId":"e1"}`, string(<-d.last().sent))

	require.NoError(t, c.LeaveEvent(context.Background(), "e1"))
	assert.JSONEq(t, `{"type":"leave_event","eventId":"e1"}`, string(<-d.last().sent))

	list := c.Notifications()
	require.Len(t, list, 2)
	assert.Equal(t, "Left event", list[0].Title)
	assert.Equal(t, "Joined event", list[1].Title)
	assert.Equal(t, domain.KindSuccess, list[1].Kind)

	assert.ErrorIs(t, c.JoinEvent(context.Background(), ""), application.ErrInvalidEventID)
}

func TestCoordinator_SendWhileNotConnected(t *testing.T) {
	d := &pipeDialer{fail: true}
	opts := socketOptions(d, nil)
	opts.Connection.ReconnectInterval = time.Hour
	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), opts)
	require.NoError(t, err)

	require.NoError(t, c.Activate(context.Background(), session(t)))
	defer c.Deactivate()

	require.Eventually(t, func() bool { return c.Status() == "Reconnecting (1/5)" }, 2*time.Second, 5*time.Millisecond)

	err = c.JoinEvent(context.Background(), "e1")
	assert.ErrorIs(t, err, connection.ErrNotConnected)
	assert.Empty(t, c.Notifications(), "no confirmation without a send")

	err = c.SendMessage(context.Background(), domain.NewMessage("hello", nil))
	assert.ErrorIs(t, err, connection.ErrNotConnected)
}

func TestCoordinator_DeactivateKeepsNotifications(t *testing.T) {
	d := &pipeDialer{}
	rec := &recorder{}
	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), socketOptions(d, rec))
	require.NoError(t, err)
	require.NoError(t, c.Activate(context.Background(), session(t)))
	waitConnected(t, c)

	p := d.last()
	p.frames <- []byte(`{"type":"notification","kind":"info","title":"kept"}`)
	require.Eventually(t, func() bool { return c.UnreadCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	c.Deactivate()

	assert.Equal(t, "Disconnected", c.Status())
	assert.False(t, c.Connected())
	assert.Nil(t, c.Session())
	assert.Len(t, c.Notifications(), 1)
	assert.Equal(t, "Disconnected", rec.Statuses()[len(rec.Statuses())-1])

	// The old transport is torn down; nothing it carries can land in the store.
	select {
	case <-p.closed:
	default:
		t.Fatal("transport not closed on deactivation")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.Notifications(), 1)
}

func TestCoordinator_PollOnly(t *testing.T) {
	fetches := make(chan struct{}, 4)
	src := pollFunc(func(_ context.Context, s *application.Session) ([]domain.Message, error) {
		fetches <- struct{}{}
		return []domain.Message{
			msg(t, `{"type":"event_starting","eventId":"e1","name":"Doors"}`),
		}, nil
	})
	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), application.Options{
		PollSource:   src,
		PollInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, c.Activate(context.Background(), session(t)))
	defer c.Deactivate()

	<-fetches
	require.Eventually(t, func() bool { return c.UnreadCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, application.StatusPolling, c.Status())
	assert.False(t, c.Connected())

	c.Refresh()
	<-fetches
	require.Eventually(t, func() bool { return c.UnreadCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	r, ok := c.PollResult()
	require.True(t, ok)
	assert.NoError(t, r.Err)
	assert.Len(t, r.Data, 1)

	assert.ErrorIs(t, c.SendMessage(context.Background(), domain.NewMessage("x", nil)), connection.ErrNotConnected)
}

func TestCoordinator_LatePollResultDiscardedAfterDeactivate(t *testing.T) {
	entered := make(chan struct{})
	src := pollFunc(func(ctx context.Context, _ *application.Session) ([]domain.Message, error) {
		close(entered)
		<-ctx.Done()
		return []domain.Message{msg(t, `{"type":"notification","title":"late"}`)}, nil
	})
	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), application.Options{
		PollSource:   src,
		PollInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, c.Activate(context.Background(), session(t)))

	<-entered
	c.Deactivate()

	assert.Empty(t, c.Notifications())
	_, ok := c.PollResult()
	assert.False(t, ok)
}

// Both sources write to the same store and nothing orders them relative to
// each other: the assertion is on the set, not the sequence.
func TestCoordinator_CrossTransportOrderingIsUnspecified(t *testing.T) {
	d := &pipeDialer{}
	src := pollFunc(func(context.Context, *application.Session) ([]domain.Message, error) {
		return []domain.Message{msg(t, `{"type":"notification","title":"from poll"}`)}, nil
	})
	opts := socketOptions(d, nil)
	opts.PollSource = src
	opts.PollInterval = time.Hour

	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), opts)
	require.NoError(t, err)
	require.NoError(t, c.Activate(context.Background(), session(t)))
	defer c.Deactivate()

	waitConnected(t, c)
	d.last().frames <- []byte(`{"type":"notification","title":"from socket"}`)

	require.Eventually(t, func() bool { return c.UnreadCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	var titles []string
	for _, n := range c.Notifications() {
		titles = append(titles, n.Title)
	}
	assert.ElementsMatch(t, []string{"from poll", "from socket"}, titles)
	assert.Equal(t, "Connected", c.Status(), "socket state wins the status when both run")
}

func TestCoordinator_ActivateReplacesSession(t *testing.T) {
	d := &pipeDialer{}
	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), socketOptions(d, nil))
	require.NoError(t, err)

	require.NoError(t, c.Activate(context.Background(), session(t)))
	waitConnected(t, c)
	first := d.last()

	second := session(t)
	require.NoError(t, c.Activate(context.Background(), second))
	defer c.Deactivate()
	waitConnected(t, c)

	select {
	case <-first.closed:
	default:
		t.Fatal("previous transport still open")
	}
	assert.Same(t, second, c.Session())
	assert.NotSame(t, first, d.last())
}

func TestCoordinator_ConcurrentActivateLeavesOneSession(t *testing.T) {
	var fetches atomic.Int64
	src := pollFunc(func(context.Context, *application.Session) ([]domain.Message, error) {
		fetches.Add(1)
		return nil, nil
	})
	c, err := application.NewCoordinator(memory.NewStore(memory.Options{}), handlers.Default(), application.Options{
		PollSource:   src,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	sessions := make([]*application.Session, 8)
	for i := range sessions {
		sessions[i] = session(t)
	}
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Activate(context.Background(), s))
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool { return fetches.Load() > 8 }, time.Second, 5*time.Millisecond)

	c.Deactivate()
	assert.Nil(t, c.Session())

	after := fetches.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, fetches.Load(), "a replaced session kept polling")
}

func TestCoordinator_Validation(t *testing.T) {
	store := memory.NewStore(memory.Options{})

	c, err := application.NewCoordinator(store, handlers.Default(), application.Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Activate(context.Background(), session(t)), application.ErrNoTransport)
	assert.ErrorIs(t, c.Activate(context.Background(), nil), application.ErrNoCredentials)

	_, err = application.NewCoordinator(store, handlers.Default(), application.Options{
		Connection: connection.Options{URL: "ws://x"},
	})
	assert.ErrorIs(t, err, connection.ErrInvalidOptions, "dialer required")

	_, err = application.NewCoordinator(store, handlers.Default(), application.Options{
		Dialer:     &pipeDialer{},
		Connection: connection.Options{URL: "ws://x", MaxReconnectAttempts: -1},
	})
	assert.ErrorIs(t, err, connection.ErrInvalidOptions)

	_, err = application.NewCoordinator(store, handlers.Default(), application.Options{PollInterval: -time.Second})
	assert.Error(t, err)

	_, err = application.NewCoordinator(nil, handlers.Default(), application.Options{})
	assert.Error(t, err)
}
