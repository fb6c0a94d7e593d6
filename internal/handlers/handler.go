package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/models"
)

// ChatStore is the persisted chat state the HTTP API reads and edits.
type ChatStore interface {
	Ping(ctx context.Context) error
	History(ctx context.Context, channel string) ([]models.Message, error)
	ListChannels(ctx context.Context, identity string) ([]string, error)
	DeleteChannel(ctx context.Context, channel string) error
	SoftDelete(ctx context.Context, channel, messageID, identity string) (*models.Message, error)
	UnreadCount(ctx context.Context, identity string) (int64, error)
}

// ConnectionCounter reports open client connections.
type ConnectionCounter interface {
	OpenConnections() int64
}

// ChannelCounter reports channels with local sessions.
type ChannelCounter interface {
	Channels() int
}

// Subscriber reports the broker side of this instance.
type Subscriber interface {
	Subscriptions() int
	Instance() string
}

// Relay groups the live components reported by /stats and /health.
type Relay struct {
	Gateway  ConnectionCounter
	Registry ChannelCounter
	Bridge   Subscriber
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store ChatStore
	relay Relay
}

// NewHandler creates a new Handler.
func NewHandler(store ChatStore, relay Relay) *Handler {
	return &Handler{store: store, relay: relay}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// channelParam returns the {channel} URL parameter. chi matches on the raw
// path when the request carries one, and only then is it still escaped.
func channelParam(r *http.Request) (string, bool) {
	channel := chi.URLParam(r, "channel")
	if r.URL.RawPath != "" {
		var err error
		if channel, err = url.PathUnescape(channel); err != nil {
			return "", false
		}
	}
	return channel, channel != ""
}

// sanitizeIdentity trims an identity and strips control characters.
func sanitizeIdentity(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, id)
}
