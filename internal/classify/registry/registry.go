// Package registry maps inbound realtime message types to notification candidates.
// Domain handlers are bound by type; the coordinator dispatches every inbound
// message through one Registry instance.
package registry

import (
	"sync"

	"github.com/rs/zerolog/log"
	"vn.io.arda/realtime/internal/domain"
)

// Handler maps a message to a notification candidate.
// Returning nil means "skip this message" (no notification to store).
type Handler func(msg domain.Message) *domain.Candidate

// Registry holds handlers keyed by message type. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a message type.
// Panics on duplicate registration to catch wiring mistakes early.
func (r *Registry) Register(msgType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[msgType]; exists {
		panic("registry: duplicate handler registered for type: " + msgType)
	}
	r.handlers[msgType] = h
}

// Ignore registers types that never produce notifications (keep-alives, acks).
func (r *Registry) Ignore(msgTypes ...string) {
	for _, t := range msgTypes {
		r.Register(t, func(domain.Message) *domain.Candidate { return nil })
	}
}

// SetFallback sets the handler used for unregistered types.
func (r *Registry) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Dispatch looks up and calls the handler for msg.Type.
// Returns nil if no handler (and no fallback) matched.
func (r *Registry) Dispatch(msg domain.Message) *domain.Candidate {
	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	fallback := r.fallback
	r.mu.RUnlock()

	if !ok {
		if fallback == nil {
			log.Debug().Str("type", msg.Type).Msg("registry: no handler registered")
			return nil
		}
		h = fallback
	}
	return h(msg)
}

// Types returns the registered message types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
