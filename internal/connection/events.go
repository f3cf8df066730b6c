package connection

import "vn.io.arda/realtime/internal/domain"

// Event is delivered on Manager.Events in the order it occurred.
// The concrete types are StateChanged, Opened, Message, Closed and Error.
type Event interface {
	isEvent()
}

// StateChanged is emitted on every lifecycle transition.
type StateChanged struct {
	State State
}

// Opened is emitted once a transport is usable.
type Opened struct{}

// Message carries one parsed inbound frame.
type Message struct {
	Payload domain.Message
}

// Closed is emitted when an open transport drops. Err is the read error, if any.
type Closed struct {
	Err error
}

// Error is emitted when a connection attempt fails before opening.
type Error struct {
	Err error
}

func (StateChanged) isEvent() {}
func (Opened) isEvent()       {}
func (Message) isEvent()      {}
func (Closed) isEvent()       {}
func (Error) isEvent()        {}
