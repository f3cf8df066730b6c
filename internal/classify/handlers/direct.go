package handlers

import (
	"vn.io.arda/realtime/internal/domain"
)

// handleDirect accepts server-composed notifications: {"type":"notification","kind":...,"title":...,"message":...}.
func handleDirect(msg domain.Message) *domain.Candidate {
	var cmd struct {
		Kind     string         `json:"kind"`
		Title    string         `json:"title"`
		Message  string         `json:"message"`
		Metadata map[string]any `json:"metadata"`
	}

	if err := msg.Decode(&cmd); err != nil {
		return nil
	}
	if cmd.Title == "" && cmd.Message == "" {
		return nil
	}

	return &domain.Candidate{
		Kind:     domain.ParseKind(cmd.Kind),
		Title:    cmd.Title,
		Message:  cmd.Message,
		Metadata: cmd.Metadata,
	}
}
