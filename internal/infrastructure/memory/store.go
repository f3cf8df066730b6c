package memory

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"vn.io.arda/realtime/internal/domain"
)

// DefaultCapacity is the number of records kept before the oldest is evicted.
const DefaultCapacity = 50

// DefaultAlertKinds are the kinds that trigger a transient alert on admission.
var DefaultAlertKinds = []domain.Kind{domain.KindUrgent, domain.KindEventUpdate}

// Alerter receives a one-shot transient alert for must-alert admissions.
// Alerts are not stored.
type Alerter interface {
	Alert(n domain.Notification)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(n domain.Notification)

func (f AlerterFunc) Alert(n domain.Notification) { f(n) }

// Options configures a Store. Zero values fall back to defaults.
type Options struct {
	Capacity   int
	AlertKinds []domain.Kind
	Alerter    Alerter
	Now        func() time.Time
}

// Store is the bounded in-memory implementation of domain.Store.
// Records are kept newest first; all methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	items    []domain.Notification
	capacity int
	alert    map[domain.Kind]struct{}
	alerter  Alerter
	now      func() time.Time
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a store. A nil AlertKinds uses DefaultAlertKinds; an empty
// non-nil slice disables alerts.
func NewStore(opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.AlertKinds == nil {
		opts.AlertKinds = DefaultAlertKinds
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	alert := make(map[domain.Kind]struct{}, len(opts.AlertKinds))
	for _, k := range opts.AlertKinds {
		alert[k] = struct{}{}
	}

	return &Store{
		items:    make([]domain.Notification, 0, opts.Capacity),
		capacity: opts.Capacity,
		alert:    alert,
		alerter:  opts.Alerter,
		now:      opts.Now,
	}
}

// Add admits a candidate at the head of the collection and evicts beyond capacity.
func (s *Store) Add(c domain.Candidate) domain.Notification {
	n := domain.Notification{
		ID:        newID(),
		Kind:      c.Kind,
		Title:     c.Title,
		Message:   c.Message,
		Metadata:  maps.Clone(c.Metadata),
		CreatedAt: s.now(),
	}
	if n.Kind == "" {
		n.Kind = domain.KindGeneric
	}

	s.mu.Lock()
	keep := min(len(s.items), s.capacity-1)
	next := make([]domain.Notification, 0, s.capacity)
	next = append(next, n)
	next = append(next, s.items[:keep]...)
	s.items = next
	s.mu.Unlock()

	if _, ok := s.alert[n.Kind]; ok && s.alerter != nil {
		s.alerter.Alert(detach(n))
	}
	return detach(n)
}

// List returns a copy of the records, newest first.
func (s *Store) List() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Notification, len(s.items))
	for i, n := range s.items {
		out[i] = detach(n)
	}
	return out
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (domain.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.items {
		if n.ID == id {
			return detach(n), true
		}
	}
	return domain.Notification{}, false
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Capacity returns the eviction bound.
func (s *Store) Capacity() int { return s.capacity }

// MarkRead flips an unread record to read. It reports whether anything changed.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].Read {
			return false
		}
		s.items[i].Read = true
		return true
	}
	return false
}

// MarkAllRead marks every record read and returns how many were unread.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			changed++
		}
	}
	return changed
}

// Clear empties the store, read and unread alike.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]domain.Notification, 0, s.capacity)
}

// UnreadCount scans the current records.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// newID returns a UUIDv7: millisecond timestamp prefix plus random bits.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// detach returns n with its own Metadata map so callers cannot mutate a stored record.
func detach(n domain.Notification) domain.Notification {
	n.Metadata = maps.Clone(n.Metadata)
	return n
}
