// Package kafka carries realtime messages over Kafka topics using franz-go.
// Endpoint form: kafka://broker1:9092,broker2:9092/<inbound-topic>?send=<outbound-topic>&group=<consumer-group>
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/oauth2"
	"vn.io.arda/realtime/internal/connection"
)

var (
	// ErrClosed is returned by Receive once the client has been closed.
	ErrClosed = errors.New("kafka: client closed")

	// ErrNoSendTopic is returned by Send when the endpoint has no send topic.
	ErrNoSendTopic = errors.New("kafka: no send topic configured")
)

// Endpoint is the parsed form of a kafka:// URL.
type Endpoint struct {
	Brokers   []string
	Topic     string
	SendTopic string
	Group     string
}

// ParseEndpoint decodes a kafka:// URL.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse kafka endpoint: %w", err)
	}
	if u.Scheme != "kafka" {
		return Endpoint{}, fmt.Errorf("kafka endpoint: unexpected scheme %q", u.Scheme)
	}

	var brokers []string
	for _, b := range strings.Split(u.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return Endpoint{}, errors.New("kafka endpoint: no brokers")
	}

	topic := strings.Trim(u.Path, "/")
	if topic == "" || strings.Contains(topic, "/") {
		return Endpoint{}, fmt.Errorf("kafka endpoint: invalid topic %q", topic)
	}

	q := u.Query()
	return Endpoint{
		Brokers:   brokers,
		Topic:     topic,
		SendTopic: q.Get("send"),
		Group:     q.Get("group"),
	}, nil
}

// Dialer creates one franz-go client per connection attempt.
type Dialer struct {
	// Options are appended after the endpoint-derived options (SASL, TLS...).
	Options []kgo.Opt
}

var _ connection.Dialer = (*Dialer)(nil)

// Dial connects and pings the cluster so an unreachable broker fails the attempt.
// The token is not used; Kafka credentials belong in Options.
func (d *Dialer) Dial(ctx context.Context, endpoint string, _ *oauth2.Token) (connection.Transport, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(ep.Brokers...),
		kgo.ConsumeTopics(ep.Topic),
	}
	if ep.Group != "" {
		opts = append(opts, kgo.ConsumerGroup(ep.Group), kgo.DisableAutoCommit())
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}
	opts = append(opts, d.Options...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}

	return &Conn{client: client, endpoint: ep}, nil
}

// Conn wraps one franz-go client as a connection.Transport.
type Conn struct {
	client   *kgo.Client
	endpoint Endpoint

	// pending is only touched by the Receive goroutine.
	pending []*kgo.Record
	once    sync.Once
}

// Receive returns the next record value, polling the cluster when the local batch is drained.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	for len(c.pending) == 0 {
		if c.endpoint.Group != "" {
			if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("kafka commit error")
			}
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error().Err(err).Str("topic", topic).Int32("partition", partition).Msg("kafka fetch error")
		})
		c.pending = fetches.Records()
	}

	r := c.pending[0]
	c.pending = c.pending[1:]

	log.Debug().
		Str("topic", r.Topic).
		Str("key", string(r.Key)).
		Msg("kafka record received")
	return r.Value, nil
}

// Send produces frame to the send topic and waits for the broker ack.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if c.endpoint.SendTopic == "" {
		return ErrNoSendTopic
	}
	return c.client.ProduceSync(ctx, &kgo.Record{Topic: c.endpoint.SendTopic, Value: frame}).FirstErr()
}

// Close shuts the client down, unblocking any pending poll.
func (c *Conn) Close() error {
	c.once.Do(c.client.Close)
	return nil
}
