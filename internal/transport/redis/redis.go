// Package redis carries realtime messages over Redis pub/sub.
// Endpoint form: redis://[:password@]host:6379/0?channel=<inbound>&send=<outbound>
package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"vn.io.arda/realtime/internal/connection"
)

// ErrNoSendChannel is returned by Send when the endpoint has no send channel.
var ErrNoSendChannel = errors.New("redis: no send channel configured")

// Endpoint is the parsed form of a redis:// or rediss:// URL.
type Endpoint struct {
	// Options are the go-redis connection options with our query keys stripped.
	Options     *redis.Options
	Channel     string
	SendChannel string
}

// ParseEndpoint decodes the endpoint. channel is required; send is optional.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse redis endpoint: %w", err)
	}

	q := u.Query()
	channel, send := q.Get("channel"), q.Get("send")
	if channel == "" {
		return Endpoint{}, errors.New("redis endpoint: channel is required")
	}
	q.Del("channel")
	q.Del("send")
	u.RawQuery = q.Encode()

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse redis endpoint: %w", err)
	}
	return Endpoint{Options: opts, Channel: channel, SendChannel: send}, nil
}

// Dialer opens one client plus subscription per connection attempt.
type Dialer struct{}

var _ connection.Dialer = Dialer{}

// Dial pings the server and confirms the subscription before returning.
// When the token is set and the URL carries no password, the access token is used as the password.
func (Dialer) Dial(ctx context.Context, endpoint string, token *oauth2.Token) (connection.Transport, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if token != nil && ep.Options.Password == "" {
		ep.Options.Password = token.AccessToken
	}

	client := redis.NewClient(ep.Options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sub := client.Subscribe(ctx, ep.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ep.Channel, err)
	}

	return &Conn{client: client, sub: sub, send: ep.SendChannel}, nil
}

// Conn is a subscribed Redis client used as a connection.Transport.
type Conn struct {
	client *redis.Client
	sub    *redis.PubSub
	send   string
	once   sync.Once
}

// Receive blocks for the next published payload.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	msg, err := c.sub.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

// Send publishes frame on the send channel.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if c.send == "" {
		return ErrNoSendChannel
	}
	return c.client.Publish(ctx, c.send, frame).Err()
}

// Close drops the subscription and the client.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = errors.Join(c.sub.Close(), c.client.Close())
	})
	return err
}
