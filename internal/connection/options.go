package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxBackoff           = 30 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
)

// Backoff strategy names.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

var (
	// ErrInvalidOptions is returned by New for misconfiguration.
	ErrInvalidOptions = errors.New("connection: invalid options")

	// ErrNotConnected is returned by Send outside the Connected state. It is a
	// warning: nothing was queued and nothing else changed.
	ErrNotConnected = errors.New("connection: not connected")
)

// Options configures a Manager.
type Options struct {
	URL string

	// MaxReconnectAttempts is the number of retries after the first attempt.
	// Zero disables reconnection.
	MaxReconnectAttempts int

	// ReconnectInterval is the delay before each retry (the base delay for
	// exponential backoff). Zero means DefaultReconnectInterval.
	ReconnectInterval time.Duration

	// Backoff is BackoffFixed (default) or BackoffExponential. Fixed matches the
	// behaviour clients have always seen; exponential must be opted into.
	Backoff string

	// Jitter adds up to ±Jitter to every delay. Zero disables it.
	Jitter time.Duration

	// MaxBackoff caps exponential delays.
	MaxBackoff time.Duration

	WriteTimeout time.Duration

	// Tokens, when set, is consulted before every dial.
	Tokens oauth2.TokenSource

	Logger *zerolog.Logger
}

// DefaultOptions returns the reference configuration for url.
func DefaultOptions(url string) Options {
	return Options{
		URL:                  url,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectInterval:    DefaultReconnectInterval,
		Backoff:              BackoffFixed,
		MaxBackoff:           DefaultMaxBackoff,
		WriteTimeout:         DefaultWriteTimeout,
	}
}

func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, fmt.Errorf("%w: url is required", ErrInvalidOptions)
	}
	if o.MaxReconnectAttempts < 0 {
		return o, fmt.Errorf("%w: max reconnect attempts %d < 0", ErrInvalidOptions, o.MaxReconnectAttempts)
	}
	if o.ReconnectInterval < 0 || o.Jitter < 0 || o.MaxBackoff < 0 || o.WriteTimeout < 0 {
		return o, fmt.Errorf("%w: negative duration", ErrInvalidOptions)
	}
	switch o.Backoff {
	case "":
		o.Backoff = BackoffFixed
	case BackoffFixed, BackoffExponential:
	default:
		return o, fmt.Errorf("%w: unknown backoff %q", ErrInvalidOptions, o.Backoff)
	}
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o, nil
}

// newBackoff builds a fresh retry sequence. It yields exactly
// MaxReconnectAttempts delays before reporting stop.
func (o Options) newBackoff() retry.Backoff {
	var b retry.Backoff
	switch o.Backoff {
	case BackoffExponential:
		b = retry.WithCappedDuration(o.MaxBackoff, retry.NewExponential(o.ReconnectInterval))
	default:
		b = retry.NewConstant(o.ReconnectInterval)
	}
	if o.Jitter > 0 {
		b = retry.WithJitter(o.Jitter, b)
	}
	return retry.WithMaxRetries(uint64(o.MaxReconnectAttempts), b)
}
