package connection

import "fmt"

// Phase is the lifecycle position of a Manager.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseConnected
	PhaseDisconnected
	PhaseReconnecting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is an immutable snapshot of the connection lifecycle.
// Attempt and Max are only meaningful while reconnecting.
type State struct {
	Phase   Phase
	Attempt int
	Max     int
}

// String returns the human-readable status shown to users.
func (s State) String() string {
	switch s.Phase {
	case PhaseConnecting:
		return "Connecting"
	case PhaseConnected:
		return "Connected"
	case PhaseReconnecting:
		return fmt.Sprintf("Reconnecting (%d/%d)", s.Attempt, s.Max)
	case PhaseFailed:
		return "Connection failed"
	default:
		return "Disconnected"
	}
}

// Connected reports whether sends are currently permitted.
func (s State) Connected() bool { return s.Phase == PhaseConnected }
