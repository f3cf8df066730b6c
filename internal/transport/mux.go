// Package transport selects a connection.Dialer by endpoint URL scheme.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/oauth2"
	"vn.io.arda/realtime/internal/connection"
)

// Mux dispatches Dial to the dialer registered for the URL scheme.
type Mux struct {
	dialers map[string]connection.Dialer
}

var _ connection.Dialer = (*Mux)(nil)

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{dialers: make(map[string]connection.Dialer)}
}

// Handle registers d for each scheme (case-insensitive).
func (m *Mux) Handle(d connection.Dialer, schemes ...string) *Mux {
	for _, s := range schemes {
		m.dialers[strings.ToLower(s)] = d
	}
	return m
}

// Schemes lists the registered schemes.
func (m *Mux) Schemes() []string {
	out := make([]string, 0, len(m.dialers))
	for s := range m.dialers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether endpoint has a registered scheme.
func (m *Mux) Supports(endpoint string) bool {
	_, err := m.lookup(endpoint)
	return err == nil
}

// Dial implements connection.Dialer.
func (m *Mux) Dial(ctx context.Context, endpoint string, token *oauth2.Token) (connection.Transport, error) {
	d, err := m.lookup(endpoint)
	if err != nil {
		return nil, err
	}
	return d.Dial(ctx, endpoint, token)
}

func (m *Mux) lookup(endpoint string) (connection.Dialer, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	d, ok := m.dialers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no transport for scheme %q (have %s)", u.Scheme, strings.Join(m.Schemes(), ", "))
	}
	return d, nil
}
