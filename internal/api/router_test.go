package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/broker"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/gateway"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/handlers"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/models"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/session"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStoreFromClient(client, zerolog.Nop())

	registry := session.NewRegistry()
	bridge := broker.New(client, registry, st, "router-test", zerolog.Nop())
	gw := gateway.New(registry, bridge, st, gateway.Options{SendBuffer: 8, WriteTimeout: time.Second}, zerolog.Nop())
	h := handlers.NewHandler(st, handlers.Relay{Gateway: gw, Registry: registry, Bridge: bridge})

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), h, gw, Options{}))
	t.Cleanup(func() {
		srv.Close()
		bridge.Close()
		client.Close()
	})
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/api", http.StatusOK},
		{"/health", http.StatusOK},
		{"/stats", http.StatusOK},
		{"/channels?user=1", http.StatusOK},
		{"/channels", http.StatusBadRequest},
		{"/channels/1%7C2/messages", http.StatusOK},
		{"/users/1/unread", http.StatusOK},
		{"/ws", http.StatusBadRequest},
		{"/nope", http.StatusNotFound},
		{"/channels/../etc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := get(t, srv.URL+tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	get(t, srv.URL+"/users/5/unread")

	body, err := io.ReadAll(get(t, srv.URL+"/metrics").Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chatrelay_http_requests_total{method="GET",path="/users/{id}/unread",status="200"}`)
}

func TestWebsocketThroughMiddleware(t *testing.T) {
	srv := newTestServer(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user="

	alice, _, err := websocket.DefaultDialer.Dial(base+"alice", nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := websocket.DefaultDialer.Dial(base+"bob", nil)
	require.NoError(t, err)
	defer bob.Close()

	readFrom := func(sender string) models.Message {
		t.Helper()
		bob.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			_, data, err := bob.ReadMessage()
			require.NoError(t, err)
			var msg models.Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Sender == sender {
				return msg
			}
		}
	}

	// bob joins the channel by sending on it and sees his own echo
	require.NoError(t, bob.WriteJSON(models.Message{Receiver: "alice", Content: "hi alice"}))
	assert.Equal(t, "hi alice", readFrom("bob").Content)

	require.NoError(t, alice.WriteJSON(models.Message{Receiver: "bob", Content: "hi bob"}))
	assert.Equal(t, "hi bob", readFrom("alice").Content)
}
