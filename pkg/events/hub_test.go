package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	// Must not block or panic
	hub.Publish("session.updated", map[string]interface{}{"sessionId": "s1"})
	assert.Zero(t, hub.Count())
}

func TestHub_DeliversEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	hub.Publish("session.updated", map[string]interface{}{"sessionId": "s1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, "session.updated", event.Event)
	assert.Equal(t, int64(1), event.Seq)
	assert.NotZero(t, event.Timestamp)

	data, ok := event.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "s1", data["sessionId"])
}

func TestHub_SequenceIncreases(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	hub.Publish("session.updated", nil)
	hub.Publish("session.deleted", nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second Event
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Greater(t, second.Seq, first.Seq)
}

func TestHub_RemovesDisconnectedClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	dialHub(t, hub)
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Zero(t, hub.Count())
}
