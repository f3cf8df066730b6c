package domain

import (
	"time"
)

// Kind classifies a notification for display and alerting.
type Kind string

const (
	KindInfo          Kind = "info"
	KindSuccess       Kind = "success"
	KindWarning       Kind = "warning"
	KindError         Kind = "error"
	KindEventUpdate   Kind = "event_update"
	KindRequestUpdate Kind = "request_update"
	KindUrgent        Kind = "urgent"
	KindGeneric       Kind = "generic"
)

// ParseKind maps a wire value to a known Kind. Unknown values become KindGeneric.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindInfo, KindSuccess, KindWarning, KindError,
		KindEventUpdate, KindRequestUpdate, KindUrgent, KindGeneric:
		return k
	default:
		return KindGeneric
	}
}

// Notification is a record held by the notification store.
type Notification struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

// Candidate is the pre-admission DTO produced by message handlers and local actions.
// The store assigns ID, CreatedAt and Read on admission.
type Candidate struct {
	Kind     Kind
	Title    string
	Message  string
	Metadata map[string]any
}
