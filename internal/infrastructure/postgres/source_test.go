package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/realtime/internal/application"
)

type row struct {
	id      int64
	typ     string
	payload string
	at      time.Time
}

type fakeRows struct {
	rows []row
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	cur := r.rows[r.i-1]
	*dest[0].(*int64) = cur.id
	*dest[1].(*string) = cur.typ
	*dest[2].(*[]byte) = []byte(cur.payload)
	*dest[3].(*time.Time) = cur.at
	return nil
}

type call struct {
	user  string
	since int64
	limit int
}

type fakeDB struct {
	calls   []call
	batches [][]row
	err     error
}

func (db *fakeDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	db.calls = append(db.calls, call{args[0].(string), args[1].(int64), args[2].(int)})
	if db.err != nil {
		return nil, db.err
	}
	var batch []row
	if len(db.batches) > 0 {
		batch, db.batches = db.batches[0], db.batches[1:]
	}
	return &fakeRows{rows: batch}, nil
}

func TestSource_FetchAdvancesCursor(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{batches: [][]row{
		{
			{id: 3, typ: "event_updated", payload: `{"eventId":"e1","type":"ignored"}`, at: at},
			{id: 9, typ: "song_request_created", payload: `{"song":"Blue"}`, at: at},
		},
		nil,
	}}
	src := New(db, 10)
	sess := &application.Session{UserID: "u1"}

	msgs, err := src.Fetch(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "event_updated", msgs[0].Type)
	assert.Equal(t, "e1", msgs[0].String("eventId"))
	assert.Equal(t, "3", msgs[0].String("id"))
	assert.Equal(t, "2026-03-01T12:00:00Z", msgs[0].String("createdAt"))

	msgs, err = src.Fetch(context.Background(), sess)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.Equal(t, []call{{"u1", 0, 10}, {"u1", 9, 10}}, db.calls)
}

func TestSource_CursorPerUser(t *testing.T) {
	db := &fakeDB{batches: [][]row{{{id: 4, typ: "ping", payload: `{}`}}}}
	src := New(db, 0)

	_, err := src.Fetch(context.Background(), &application.Session{UserID: "u1"})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), &application.Session{UserID: "u2"})
	require.NoError(t, err)

	assert.Equal(t, []call{{"u1", 0, DefaultLimit}, {"u2", 0, DefaultLimit}}, db.calls)
}

func TestSource_Errors(t *testing.T) {
	src := New(&fakeDB{err: errors.New("boom")}, 5)

	_, err := src.Fetch(context.Background(), &application.Session{UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = src.Fetch(context.Background(), &application.Session{})
	assert.ErrorIs(t, err, application.ErrNoCredentials)
}

func TestEventMessage_InvalidPayload(t *testing.T) {
	var buf bytes.Buffer
	src := New(&fakeDB{}, 0)
	src.log = zerolog.New(&buf)

	m := src.eventMessage(41, "notification", []byte(`{"title":"half`), time.Unix(0, 0))
	assert.Equal(t, "notification", m.Type)
	assert.Equal(t, "41", m.String("id"))
	assert.Empty(t, m.String("title"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.EqualValues(t, 41, entry["id"])
	assert.Equal(t, "invalid realtime event payload", entry["message"])
}
