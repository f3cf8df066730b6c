package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/realtime/internal/domain"
)

func TestParseMessage(t *testing.T) {
	msg, err := domain.ParseMessage([]byte(`{"type":"event_updated","eventId":"e1","count":3}`))
	require.NoError(t, err)

	assert.Equal(t, "event_updated", msg.Type)
	assert.Equal(t, "e1", msg.String("eventId"))
	assert.Equal(t, "", msg.String("count"))
	assert.NotContains(t, msg.Fields, "type")

	var typed struct {
		EventID string `json:"eventId"`
	}
	require.NoError(t, msg.Decode(&typed))
	assert.Equal(t, "e1", typed.EventID)
}

func TestParseMessage_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":     `not json`,
		"array":        `[1,2]`,
		"null":         `null`,
		"missing type": `{"title":"x"}`,
		"empty type":   `{"type":""}`,
		"numeric type": `{"type":5}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.ParseMessage([]byte(frame))
			require.ErrorIs(t, err, domain.ErrMalformedMessage)
		})
	}
}

func TestMessage_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(domain.NewMessage("join_event", map[string]any{"eventId": "e9"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_event","eventId":"e9"}`, string(b))

	_, err = json.Marshal(domain.Message{})
	require.Error(t, err)
}

func TestMessage_UnmarshalEmbedded(t *testing.T) {
	var body struct {
		Data []domain.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"data":[{"type":"a"},{"type":"b","x":1}]}`), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "b", body.Data[1].Type)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, domain.KindUrgent, domain.ParseKind("urgent"))
	assert.Equal(t, domain.KindGeneric, domain.ParseKind("SYSTEM"))
	assert.Equal(t, domain.KindGeneric, domain.ParseKind(""))
}
