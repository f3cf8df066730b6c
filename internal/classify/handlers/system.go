package handlers

import (
	"vn.io.arda/realtime/internal/classify/registry"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/messages"
)

func registerSystem(r *registry.Registry) {
	r.Ignore("ping", "pong", "heartbeat", "joined_event", "left_event")
	r.Register("error", handleServerError)
}

func handleServerError(msg domain.Message) *domain.Candidate {
	title, body := messages.ServerError(msg.String("message"))
	return &domain.Candidate{Kind: domain.KindError, Title: title, Message: body}
}

// handleUnclassified keeps unknown messages that still carry display text.
func handleUnclassified(msg domain.Message) *domain.Candidate {
	title, body := msg.String("title"), msg.String("message")
	if title == "" && body == "" {
		return nil
	}
	return &domain.Candidate{
		Kind:     domain.KindGeneric,
		Title:    title,
		Message:  body,
		Metadata: map[string]any{"type": msg.Type},
	}
}
