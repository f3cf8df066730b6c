package messages

import "fmt"

// ─── Song request builders ───────────────────────────────────────────────────

func SongRequestCreated(requester, song, artist string) (string, string) {
	return SongRequestCreatedTitle, fmt.Sprintf(SongRequestCreatedBody, orUnknown(requester, "Someone"), song, orUnknown(artist, "unknown artist"))
}

func SongRequestAccepted(song string) (string, string) {
	return SongRequestAcceptedTitle, fmt.Sprintf(SongRequestAcceptedBody, song)
}

func SongRequestPlayed(song string) (string, string) {
	return SongRequestPlayedTitle, fmt.Sprintf(SongRequestPlayedBody, song)
}

func SongRequestRejected(song string) (string, string) {
	return SongRequestRejectedTitle, fmt.Sprintf(SongRequestRejectedBody, song)
}

func SongRequestUpdated(song, status string) (string, string) {
	return SongRequestUpdatedTitle, fmt.Sprintf(SongRequestUpdatedBody, song, status)
}

// ─── Event builders ──────────────────────────────────────────────────────────

func EventUpdated(name string) (string, string) {
	return EventUpdatedTitle, fmt.Sprintf(EventUpdatedBody, name)
}

func EventCancelled(name string) (string, string) {
	return EventCancelledTitle, fmt.Sprintf(EventCancelledBody, name)
}

func EventStarting(name string) (string, string) {
	return EventStartingTitle, fmt.Sprintf(EventStartingBody, name)
}

// ─── Membership builders ─────────────────────────────────────────────────────

func JoinedEvent(eventID string) (string, string) {
	return JoinedEventTitle, fmt.Sprintf(JoinedEventBody, eventID)
}

func LeftEvent(eventID string) (string, string) {
	return LeftEventTitle, fmt.Sprintf(LeftEventBody, eventID)
}

// ServerError uses the server supplied text when present.
func ServerError(detail string) (string, string) {
	return ServerErrorTitle, orUnknown(detail, ServerErrorBody)
}

func orUnknown(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
