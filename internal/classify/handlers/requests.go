package handlers

import (
	"vn.io.arda/realtime/internal/classify/registry"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/messages"
)

func registerRequests(r *registry.Registry) {
	r.Register("song_request_created", handleSongRequestCreated)
	r.Register("song_request_updated", handleSongRequestUpdated)
}

type songRequestMsg struct {
	RequestID string `json:"requestId"`
	EventID   string `json:"eventId"`
	Song      string `json:"song"`
	Artist    string `json:"artist"`
	Requester string `json:"requester"`
	Status    string `json:"status"`
}

func parseSongRequest(msg domain.Message) (*songRequestMsg, bool) {
	var m songRequestMsg
	if err := msg.Decode(&m); err != nil {
		return nil, false
	}
	if m.Song == "" {
		return nil, false
	}
	return &m, true
}

func (m *songRequestMsg) metadata() map[string]any {
	md := map[string]any{"requestId": m.RequestID}
	if m.EventID != "" {
		md["eventId"] = m.EventID
	}
	if m.Status != "" {
		md["status"] = m.Status
	}
	return md
}

func handleSongRequestCreated(msg domain.Message) *domain.Candidate {
	m, ok := parseSongRequest(msg)
	if !ok {
		return nil
	}
	title, body := messages.SongRequestCreated(m.Requester, m.Song, m.Artist)
	return &domain.Candidate{
		Kind:     domain.KindRequestUpdate,
		Title:    title,
		Message:  body,
		Metadata: m.metadata(),
	}
}

func handleSongRequestUpdated(msg domain.Message) *domain.Candidate {
	m, ok := parseSongRequest(msg)
	if !ok {
		return nil
	}

	kind := domain.KindRequestUpdate
	var title, body string
	switch m.Status {
	case "accepted":
		kind = domain.KindSuccess
		title, body = messages.SongRequestAccepted(m.Song)
	case "played", "playing":
		kind = domain.KindSuccess
		title, body = messages.SongRequestPlayed(m.Song)
	case "rejected", "declined":
		kind = domain.KindWarning
		title, body = messages.SongRequestRejected(m.Song)
	default:
		title, body = messages.SongRequestUpdated(m.Song, m.Status)
	}

	return &domain.Candidate{
		Kind:     kind,
		Title:    title,
		Message:  body,
		Metadata: m.metadata(),
	}
}
