package messages

// ─── Song requests ───────────────────────────────────────────────────────────

const (
	SongRequestCreatedTitle = "New song request"
	SongRequestCreatedBody  = "%s requested '%s' by %s."

	SongRequestAcceptedTitle = "Request accepted"
	SongRequestAcceptedBody  = "Your request '%s' was accepted."

	SongRequestPlayedTitle = "Now playing"
	SongRequestPlayedBody  = "Your request '%s' is playing now."

	SongRequestRejectedTitle = "Request declined"
	SongRequestRejectedBody  = "Your request '%s' was declined."

	SongRequestUpdatedTitle = "Request updated"
	SongRequestUpdatedBody  = "Your request '%s' is now %s."
)

// ─── Events ──────────────────────────────────────────────────────────────────

const (
	EventUpdatedTitle = "Event updated"
	EventUpdatedBody  = "'%s' has been updated."

	EventCancelledTitle = "Event cancelled"
	EventCancelledBody  = "'%s' has been cancelled."

	EventStartingTitle = "Event starting"
	EventStartingBody  = "'%s' is about to start."
)

// ─── Channel membership (local confirmations) ────────────────────────────────

const (
	JoinedEventTitle = "Joined event"
	JoinedEventBody  = "You are now receiving live updates for event %s."

	LeftEventTitle = "Left event"
	LeftEventBody  = "You will no longer receive live updates for event %s."
)

// ─── Errors ──────────────────────────────────────────────────────────────────

const (
	ServerErrorTitle = "Something went wrong"
	ServerErrorBody  = "The server reported an error."
)
