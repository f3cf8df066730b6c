package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"vn.io.arda/realtime/internal/application"
	"vn.io.arda/realtime/internal/domain"
)

// DefaultLimit caps rows returned per poll.
const DefaultLimit = 50

// Schema creates the outbox table read by Source.
const Schema = `
CREATE TABLE IF NOT EXISTS realtime_events (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT        NOT NULL,
	type       TEXT        NOT NULL,
	payload    JSONB       NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS realtime_events_user_id_idx ON realtime_events (user_id, id);
`

// Querier is the subset of pgxpool.Pool used by Source.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

// Source implements application.PollSource over the realtime_events table.
// Each poll returns rows newer than the last seen id for the session user.
type Source struct {
	db    Querier
	limit int
	log   zerolog.Logger

	mu     sync.Mutex
	user   string
	cursor int64
}

var _ application.PollSource = (*Source)(nil)

// New creates a Source. limit <= 0 uses DefaultLimit.
func New(db Querier, limit int) *Source {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Source{
		db:    db,
		limit: limit,
		log:   log.With().Str("cmp", "postgres").Logger(),
	}
}

// Fetch returns pending messages in id order.
func (s *Source) Fetch(ctx context.Context, sess *application.Session) ([]domain.Message, error) {
	if sess == nil || sess.UserID == "" {
		return nil, application.ErrNoCredentials
	}
	since := s.cursorFor(sess.UserID)

	rows, err := s.db.Query(ctx, `
		SELECT id, type, payload, created_at
		FROM realtime_events
		WHERE user_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, sess.UserID, since, s.limit)
	if err != nil {
		return nil, fmt.Errorf("poll realtime_events: %w", err)
	}
	defer rows.Close()

	var (
		msgs []domain.Message
		last = since
	)
	for rows.Next() {
		id, msg, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		last = id
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("poll realtime_events: %w", err)
	}

	s.advance(sess.UserID, last)
	return msgs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func (s *Source) scanEvent(row scannable) (int64, domain.Message, error) {
	var (
		id        int64
		typ       string
		payload   []byte
		createdAt time.Time
	)
	if err := row.Scan(&id, &typ, &payload, &createdAt); err != nil {
		return 0, domain.Message{}, fmt.Errorf("scan realtime event: %w", err)
	}
	return id, s.eventMessage(id, typ, payload, createdAt), nil
}

// eventMessage merges the payload object with the row columns. The type column wins.
// A payload that is not a JSON object is dropped and the row columns are kept.
func (s *Source) eventMessage(id int64, typ string, payload []byte, createdAt time.Time) domain.Message {
	fields := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			s.log.Warn().Err(err).Int64("id", id).Str("type", typ).Msg("invalid realtime event payload")
			fields = map[string]any{}
		}
	}
	delete(fields, "type")
	fields["id"] = strconv.FormatInt(id, 10)
	if _, ok := fields["createdAt"]; !ok {
		fields["createdAt"] = createdAt.UTC().Format(time.RFC3339Nano)
	}
	return domain.NewMessage(typ, fields)
}

func (s *Source) cursorFor(user string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user != s.user {
		s.user, s.cursor = user, 0
	}
	return s.cursor
}

func (s *Source) advance(user string, cursor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == s.user && cursor > s.cursor {
		s.cursor = cursor
	}
}
