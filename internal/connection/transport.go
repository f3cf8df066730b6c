package connection

import (
	"context"

	"golang.org/x/oauth2"
)

// Transport is one live persistent connection.
// Receive is called from a single goroutine; Send calls are serialized by the Manager.
// Close must be safe to call more than once and must unblock a pending Receive.
type Transport interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens transports. token is nil when the session carries no credentials.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, token *oauth2.Token) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string, token *oauth2.Token) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string, token *oauth2.Token) (Transport, error) {
	return f(ctx, endpoint, token)
}
