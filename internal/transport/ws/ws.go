// Package ws is the websocket transport used for the live connection.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
	"vn.io.arda/realtime/internal/connection"
)

// Keepalive defaults.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 60 * time.Second

	controlWait = time.Second
)

// Dialer opens websocket transports. The zero value is usable.
type Dialer struct {
	// Websocket overrides the underlying dialer; nil uses websocket.DefaultDialer.
	Websocket *websocket.Dialer
	// Header is sent with every handshake in addition to Authorization.
	Header http.Header

	// PingInterval is the period between keepalive pings. Zero uses
	// DefaultPingInterval; a negative value disables keepalive.
	PingInterval time.Duration
	// PongWait is how long Receive waits for a pong before failing.
	// Zero uses DefaultPongWait; values not above PingInterval become twice it.
	PongWait time.Duration
}

var _ connection.Dialer = (*Dialer)(nil)

// Dial performs the websocket handshake against endpoint.
func (d *Dialer) Dial(ctx context.Context, endpoint string, token *oauth2.Token) (connection.Transport, error) {
	wd := d.Websocket
	if wd == nil {
		wd = websocket.DefaultDialer
	}

	header := http.Header{}
	for k, v := range d.Header {
		header[k] = append([]string(nil), v...)
	}
	if token != nil && token.AccessToken != "" {
		header.Set("Authorization", token.Type()+" "+token.AccessToken)
	}

	conn, resp, err := wd.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}

	c := &Conn{conn: conn, done: make(chan struct{})}
	if interval, wait := d.keepalive(); interval > 0 {
		c.keepalive(interval, wait)
	}
	return c, nil
}

func (d *Dialer) keepalive() (interval, wait time.Duration) {
	interval, wait = d.PingInterval, d.PongWait
	if interval < 0 {
		return 0, 0
	}
	if interval == 0 {
		interval = DefaultPingInterval
	}
	if wait == 0 {
		wait = DefaultPongWait
	}
	if wait <= interval {
		wait = 2 * interval
	}
	return interval, wait
}

// Conn adapts a websocket connection to connection.Transport.
type Conn struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
	err  error
}

// keepalive pings every interval until Close. Each pong pushes the read
// deadline out by wait, so a peer that stops answering makes Receive fail.
func (c *Conn) keepalive(interval, wait time.Duration) {
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait)); err != nil {
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}

// Receive returns the next text or binary frame. Control frames are handled by gorilla;
// with keepalive on, a missing pong surfaces here as a timeout error.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// Send writes one text frame, bounded by the ctx deadline when present.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a normal closure frame and closes the socket. Safe to call repeatedly.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWait))
		c.err = c.conn.Close()
	})
	return c.err
}
