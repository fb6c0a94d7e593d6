// Package gateway accepts client websocket connections and routes their
// messages into the broker.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/metrics"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/models"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/session"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/topic"
)

// IdentityHeader carries the authenticated user id when an upstream proxy
// has already resolved it.
const IdentityHeader = "X-User-ID"

// Bridge is the broker side of the gateway.
type Bridge interface {
	Acquire(ctx context.Context, channel string) error
	Release(channel string)
	Publish(ctx context.Context, channel string, env models.Envelope) error
}

// Store holds the unread counters and cluster presence.
type Store interface {
	ReadAndResetUnread(ctx context.Context, identity string) (int64, error)
	Join(ctx context.Context, channel, identity string) error
	Leave(ctx context.Context, channel, identity string) error
}

// Options configures connection handling.
type Options struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PingInterval    time.Duration // zero disables keepalive
	MaxMessageBytes int64
	AllowedOrigins  []string // "*" or empty allows any origin
	DispatchTimeout time.Duration
}

// Gateway is the websocket endpoint of the relay.
type Gateway struct {
	registry *session.Registry
	bridge   Bridge
	store    Store
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	open     atomic.Int64
}

// New creates a Gateway.
func New(registry *session.Registry, bridge Bridge, store Store, opts Options, logger zerolog.Logger) *Gateway {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 8 * 1024
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 5 * time.Second
	}

	g := &Gateway{
		registry: registry,
		bridge:   bridge,
		store:    store,
		opts:     opts,
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// OpenConnections returns the number of connections currently open.
func (g *Gateway) OpenConnections() int64 {
	return g.open.Load()
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Identity extracts the handshake identity from the request.
func Identity(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("user")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(IdentityHeader))
}

// ServeHTTP handles GET /ws?user={identity}.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := Identity(r)
	if !topic.ValidIdentity(identity) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"user identity is required"}`))
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		g.logger.Warn().Err(err).Str("user", identity).Msg("websocket upgrade failed")
		return
	}

	s := session.New(identity, conn, session.Options{
		SendBuffer:   g.opts.SendBuffer,
		WriteTimeout: g.opts.WriteTimeout,
		PingInterval: g.opts.PingInterval,
	})
	g.serve(conn, s)
}

func (g *Gateway) serve(conn *websocket.Conn, s *session.Session) {
	log := g.logger.With().Str("session", s.ID).Str("user", s.Identity).Logger()

	if !s.Open() {
		return
	}
	g.open.Add(1)
	metrics.OpenConnections.Inc()
	log.Info().Msg("connection opened")

	defer g.close(s, log)

	go s.WritePump()
	g.flushUnread(s, log)

	conn.SetReadLimit(g.opts.MaxMessageBytes)
	if g.opts.PingInterval > 0 {
		pongWait := 2 * g.opts.PingInterval
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Msg("connection lost")
			}
			return
		}
		g.handleFrame(s, data, log)
	}
}

// flushUnread delivers the one-time unread notice and resets the counter.
func (g *Gateway) flushUnread(s *session.Session, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.DispatchTimeout)
	defer cancel()

	count, err := g.store.ReadAndResetUnread(ctx, s.Identity)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read unread count")
		return
	}
	if count == 0 {
		return
	}

	data, err := json.Marshal(models.NewUnreadNotice(count))
	if err != nil {
		return
	}
	if !s.Send(data) {
		log.Warn().Int64("count", count).Msg("unread notice not delivered")
		return
	}
	log.Debug().Int64("count", count).Msg("unread notice sent")
}

// handleFrame classifies one inbound frame, routes the session through its
// channel and publishes it. Failures are logged and the frame is dropped.
func (g *Gateway) handleFrame(s *session.Session, data []byte, log zerolog.Logger) {
	env, err := models.DecodeInbound(data)
	if err != nil {
		metrics.MalformedFrames.Inc()
		log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	now := time.Now()
	var channel string
	switch env.Kind {
	case models.KindDirect:
		if !topic.ValidIdentity(env.Direct.Receiver) {
			metrics.MalformedFrames.Inc()
			log.Warn().Str("receiver", env.Direct.Receiver).Msg("dropping frame with invalid receiver")
			return
		}
		env.Direct.ID = ""
		env.Direct.Sender = s.Identity
		env.Direct.TimeStamp = now
		env.Direct.DeletedSender = false
		env.Direct.DeletedReceiver = false
		channel = topic.Direct(s.Identity, env.Direct.Receiver)
	case models.KindCommunity:
		env.Community.Timestamp = now
		env.Community.OpenSessionCount = 0
		channel = topic.Community(env.Community.Region)
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.DispatchTimeout)
	defer cancel()

	g.route(ctx, s, channel, log)

	if err := g.bridge.Publish(ctx, channel, env); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("publish failed, message dropped")
	}
}

// route registers s under channel and makes sure this instance is
// subscribed to it.
func (g *Gateway) route(ctx context.Context, s *session.Session, channel string, log zerolog.Logger) {
	if !g.registry.Add(channel, s) {
		return
	}
	if err := g.store.Join(ctx, channel, s.Identity); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("failed to record presence")
	}
	if err := g.bridge.Acquire(ctx, channel); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("broker subscription failed")
	}
}

// close removes s from every channel before releasing the connection.
func (g *Gateway) close(s *session.Session, log zerolog.Logger) {
	channels := g.registry.Remove(s)

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.DispatchTimeout)
	defer cancel()
	for _, channel := range channels {
		if err := g.store.Leave(ctx, channel, s.Identity); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to clear presence")
		}
		g.bridge.Release(channel)
	}

	s.Close()
	g.open.Add(-1)
	metrics.OpenConnections.Dec()
	log.Info().Int("channels", len(channels)).Msg("connection closed")
}
