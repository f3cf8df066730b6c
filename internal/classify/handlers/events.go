package handlers

import (
	"vn.io.arda/realtime/internal/classify/registry"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/messages"
)

func registerEvents(r *registry.Registry) {
	r.Register("event_updated", eventHandler(domain.KindEventUpdate, messages.EventUpdated))
	r.Register("event_cancelled", eventHandler(domain.KindUrgent, messages.EventCancelled))
	r.Register("event_starting", eventHandler(domain.KindInfo, messages.EventStarting))
}

type eventMsg struct {
	EventID string `json:"eventId"`
	Name    string `json:"name"`
}

func eventHandler(kind domain.Kind, build func(name string) (string, string)) registry.Handler {
	return func(msg domain.Message) *domain.Candidate {
		var m eventMsg
		if err := msg.Decode(&m); err != nil || m.EventID == "" {
			return nil
		}
		name := m.Name
		if name == "" {
			name = m.EventID
		}
		title, body := build(name)
		return &domain.Candidate{
			Kind:     kind,
			Title:    title,
			Message:  body,
			Metadata: map[string]any{"eventId": m.EventID},
		}
	}
}
