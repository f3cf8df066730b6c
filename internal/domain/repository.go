package domain

// Store defines the port for notification bookkeeping.
// The in-memory implementation lives in infrastructure/memory.
type Store interface {
	// Add admits a candidate and returns the stored record.
	Add(c Candidate) Notification

	// List returns a snapshot of all records, newest first.
	List() []Notification

	// MarkRead marks a single record as read. Unknown or already read ids are no-ops.
	MarkRead(id string) bool

	// MarkAllRead marks every record as read and returns how many changed.
	MarkAllRead() int

	// Clear removes every record.
	Clear()

	// UnreadCount returns the number of unread records.
	UnreadCount() int
}
