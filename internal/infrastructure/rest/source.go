// Package rest polls a JSON endpoint for pending realtime messages.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"vn.io.arda/realtime/internal/application"
	"vn.io.arda/realtime/internal/domain"
)

// maxBody caps a single poll response.
const maxBody = 4 << 20

// Source implements application.PollSource over HTTP GET.
//
// The endpoint may answer with a bare JSON array of messages or with
// {"data": [...], "cursor": "..."}. The next request carries ?since=<cursor>,
// where the cursor is the envelope's value or else the id of the last message.
type Source struct {
	url  string
	base *http.Client
	log  zerolog.Logger

	mu     sync.Mutex
	user   string
	cursor string
}

var _ application.PollSource = (*Source)(nil)

// New creates a Source. A nil base client gets a 10 second timeout.
func New(endpoint string, base *http.Client) (*Source, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("rest source: invalid url %q", endpoint)
	}
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	return &Source{
		url:  endpoint,
		base: base,
		log:  log.With().Str("cmp", "rest").Logger(),
	}, nil
}

type envelope struct {
	Data   []json.RawMessage `json:"data"`
	Cursor string            `json:"cursor"`
}

// Fetch performs one poll. Frames that are not valid messages are skipped.
func (s *Source) Fetch(ctx context.Context, sess *application.Session) ([]domain.Message, error) {
	if sess == nil || sess.Tokens == nil {
		return nil, application.ErrNoCredentials
	}

	since := s.cursorFor(sess.UserID)
	u, _ := url.Parse(s.url)
	if since != "" {
		q := u.Query()
		q.Set("since", since)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, s.base), sess.Tokens)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll %s: status %d", u.Redacted(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read poll body: %w", err)
	}

	frames, cursor, err := decode(body)
	if err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(frames))
	for _, f := range frames {
		m, err := domain.ParseMessage(f)
		if err != nil {
			continue
		}
		msgs = append(msgs, m)
	}

	if cursor == "" && len(msgs) > 0 {
		cursor = cursorOf(msgs[len(msgs)-1])
		if cursor == "" {
			s.log.Warn().
				Str("user", sess.UserID).
				Int("messages", len(msgs)).
				Msg("poll response has no cursor and last message has no id, next poll repeats from the start")
		}
	}
	if cursor != "" {
		s.advance(sess.UserID, cursor)
	}
	return msgs, nil
}

// cursorOf returns the id of m as a string. Numeric ids keep the digits
// exactly as sent.
func cursorOf(m domain.Message) string {
	if id := m.String("id"); id != "" {
		return id
	}
	if len(m.Raw) > 0 {
		var frame struct {
			ID json.RawMessage `json:"id"`
		}
		if json.Unmarshal(m.Raw, &frame) == nil {
			if n := json.Number(frame.ID); isNumber(n) {
				return n.String()
			}
		}
	}
	switch v := m.Fields["id"].(type) {
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func isNumber(n json.Number) bool {
	if n == "" {
		return false
	}
	_, err := strconv.ParseFloat(n.String(), 64)
	return err == nil
}

func decode(body []byte) ([]json.RawMessage, string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, "", nil
	}
	if body[0] == '[' {
		var frames []json.RawMessage
		if err := json.Unmarshal(body, &frames); err != nil {
			return nil, "", fmt.Errorf("decode poll body: %w", err)
		}
		return frames, "", nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("decode poll body: %w", err)
	}
	if env.Data == nil {
		return nil, "", errors.New("decode poll body: missing data")
	}
	return env.Data, env.Cursor, nil
}

// cursorFor returns the cursor for user, resetting it when the user changes.
func (s *Source) cursorFor(user string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user != s.user {
		s.user, s.cursor = user, ""
	}
	return s.cursor
}

func (s *Source) advance(user, cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == s.user {
		s.cursor = cursor
	}
}
