package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/models"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/store"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/topic"
)

type fakeRelay struct{}

func (fakeRelay) OpenConnections() int64 { return 3 }
func (fakeRelay) Channels() int          { return 2 }
func (fakeRelay) Subscriptions() int     { return 2 }
func (fakeRelay) Instance() string       { return "test-instance" }

func newTestRouter(t *testing.T) (http.Handler, *store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedisStoreFromClient(client, zerolog.Nop())

	h := NewHandler(st, Relay{Gateway: fakeRelay{}, Registry: fakeRelay{}, Bridge: fakeRelay{}})
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/channels", h.ListChannels)
	r.Get("/channels/{channel}/messages", h.GetHistory)
	r.Delete("/channels/{channel}", h.DeleteChannel)
	r.Delete("/channels/{channel}/messages/{id}", h.SoftDeleteMessage)
	r.Get("/users/{id}/unread", h.GetUnread)
	return r, st, mr
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func seed(t *testing.T, st *store.RedisStore, from, to, content string) *models.Message {
	t.Helper()
	msg := &models.Message{Sender: from, Receiver: to, Content: content, TimeStamp: time.Now()}
	require.NoError(t, st.AppendMessage(context.Background(), topic.Direct(from, to), msg))
	return msg
}

func TestListChannelsHandler(t *testing.T) {
	h, st, _ := newTestRouter(t)
	seed(t, st, "1", "2", "a")
	seed(t, st, "3", "1", "b")

	rec := do(t, h, http.MethodGet, "/channels?user=1")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ChannelListResponse](t, rec)
	assert.Equal(t, []string{"1|2", "1|3"}, resp.Channels)
	assert.Equal(t, 2, resp.Total)

	rec = do(t, h, http.MethodGet, "/channels")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryAndDeleteHandlers(t *testing.T) {
	h, st, _ := newTestRouter(t)
	seed(t, st, "1", "2", "first")
	seed(t, st, "2", "1", "second")

	path := "/channels/" + url.PathEscape(topic.Direct("1", "2"))

	rec := do(t, h, http.MethodGet, path+"/messages")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HistoryResponse](t, rec)
	assert.Equal(t, "1|2", resp.Channel)
	require.Len(t, resp.Messages, 2)

	rec = do(t, h, http.MethodDelete, path)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, path+"/messages")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[HistoryResponse](t, rec).Messages)
}

func TestHistoryChannelDecodedOnce(t *testing.T) {
	h, st, _ := newTestRouter(t)
	seed(t, st, "x%41", "y", "literal percent")
	channel := topic.Direct("x%41", "y")

	for _, target := range []string{
		"/channels/" + url.PathEscape(channel) + "/messages", // x%2541%7Cy
		"/channels/x%2541|y/messages",
	} {
		rec := do(t, h, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		resp := decode[HistoryResponse](t, rec)
		assert.Equal(t, channel, resp.Channel, target)
		assert.Len(t, resp.Messages, 1, target)
	}
}

func TestSoftDeleteHandler(t *testing.T) {
	h, st, _ := newTestRouter(t)
	msg := seed(t, st, "1", "2", "oops")
	path := "/channels/" + url.PathEscape(topic.Direct("1", "2")) + "/messages/" + msg.ID

	rec := do(t, h, http.MethodDelete, path+"?user=1")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Message](t, rec)
	assert.True(t, got.DeletedSender)
	assert.False(t, got.DeletedReceiver)

	rec = do(t, h, http.MethodDelete, path+"?user=9")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodDelete, "/channels/"+url.PathEscape("1|2")+"/messages/unknown?user=2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, path)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnreadHandler(t *testing.T) {
	h, st, _ := newTestRouter(t)
	_, err := st.IncrementUnread(context.Background(), "2")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/users/2/unread")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, UnreadResponse{User: "2", Unread: 1}, decode[UnreadResponse](t, rec), "reading does not reset")
	}
}

func TestHealthHandler(t *testing.T) {
	h, _, mr := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test-instance", resp.Instance)
	assert.Equal(t, "pass", resp.Checks["redis"].Status)

	mr.Close()
	rec = do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[HealthResponse](t, rec).Status)
}

func TestStatsHandler(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StatsResponse](t, rec)
	assert.Equal(t, int64(3), resp.OpenConnections)
	assert.Equal(t, 2, resp.ActiveChannels)
	assert.Equal(t, 2, resp.BrokerSubscriptions)
	assert.Equal(t, "just now", resp.Started)
}

func TestFormatTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", formatTimeAgo(time.Now()))
	assert.Equal(t, "1 minute ago", formatTimeAgo(time.Now().Add(-90*time.Second)))
	assert.Equal(t, "5 hours ago", formatTimeAgo(time.Now().Add(-5*time.Hour-time.Minute)))
	assert.Equal(t, "2 days ago", formatTimeAgo(time.Now().Add(-49*time.Hour)))
}
