// Package broker fans chat messages out across instances through Redis
// Pub/Sub and delivers them to the sessions open on this instance.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/metrics"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/models"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/session"
)

// ErrClosed is returned by a Bridge after Close.
var ErrClosed = errors.New("broker bridge closed")

const (
	channelPrefix = "chat:topic:"
	storeTimeout  = 5 * time.Second
)

// Store is the shared state the bridge writes during publish and delivery.
type Store interface {
	AppendMessage(ctx context.Context, channel string, msg *models.Message) error
	IncrementUnread(ctx context.Context, identity string) (int64, error)
	PresenceOf(ctx context.Context, channel, identity string) (int64, error)
	ChannelPresence(ctx context.Context, channel string) (int64, error)
}

// subscription is this instance's interest in one broker channel.
type subscription struct {
	refs    int
	attempt *attempt
}

// attempt is one SUBSCRIBE round trip. A failed attempt is replaced by the
// next Acquire.
type attempt struct {
	done      chan struct{} // closed once the attempt settles
	err       error         // written before done is closed
	confirmed chan struct{}
	confirm   sync.Once
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{}), confirmed: make(chan struct{})}
}

func (a *attempt) failed() bool {
	select {
	case <-a.done:
		return a.err != nil
	default:
		return false
	}
}

// Bridge connects local publishes and local sessions to the shared broker.
type Bridge struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	registry *session.Registry
	store    Store
	instance string
	logger   zerolog.Logger

	mu      sync.Mutex
	subs    map[string]*subscription
	leaving map[string]chan struct{} // unsubscribes in flight

	closed atomic.Bool
	wg     sync.WaitGroup
}

// New creates a Bridge and starts its dispatch loop. instance identifies
// this process in published envelopes.
func New(client *redis.Client, registry *session.Registry, store Store, instance string, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		client:   client,
		pubsub:   client.Subscribe(context.Background()),
		registry: registry,
		store:    store,
		instance: instance,
		logger:   logger.With().Str("component", "broker").Str("instance", instance).Logger(),
		subs:     make(map[string]*subscription),
		leaving:  make(map[string]chan struct{}),
	}

	b.wg.Add(1)
	go b.dispatch()
	return b
}

// Instance returns the id stamped on envelopes published by this bridge.
func (b *Bridge) Instance() string {
	return b.instance
}

func brokerChannel(channel string) string {
	return channelPrefix + channel
}

// Acquire ensures this instance is subscribed to channel. The first caller
// for a channel subscribes; later callers wait for that subscription. A
// caller arriving after a failed subscribe tries again.
// Every Acquire, successful or not, must be paired with a Release.
func (b *Bridge) Acquire(ctx context.Context, channel string) error {
	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return ErrClosed
	}
	sub, exists := b.subs[channel]
	if !exists {
		sub = &subscription{}
		b.subs[channel] = sub
	}
	sub.refs++
	at := sub.attempt
	lead := at == nil || at.failed()
	if lead {
		at = newAttempt()
		sub.attempt = at
	}
	pending := b.leaving[channel]
	b.mu.Unlock()

	if !lead {
		select {
		case <-at.done:
			return at.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := b.subscribe(ctx, channel, at, pending)
	if err != nil {
		// go-redis keeps a channel it failed to subscribe and would
		// resubscribe it on reconnect
		b.unsubscribe(channel)
		at.err = fmt.Errorf("subscribe %s: %w", channel, err)
		close(at.done)
		return at.err
	}
	close(at.done)
	metrics.BrokerSubscriptions.Inc()
	b.logger.Debug().Str("channel", channel).Msg("subscribed")
	return nil
}

func (b *Bridge) subscribe(ctx context.Context, channel string, at *attempt, pending chan struct{}) error {
	// an unsubscribe of the same channel must reach the broker first
	if pending != nil {
		select {
		case <-pending:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := b.pubsub.Subscribe(ctx, brokerChannel(channel)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-at.confirmed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) unsubscribe(channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := b.pubsub.Unsubscribe(ctx, brokerChannel(channel)); err != nil && !b.closed.Load() {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("unsubscribe failed")
	}
}

// Release drops one reference to channel and unsubscribes when the last
// local session has left.
func (b *Bridge) Release(channel string) {
	b.mu.Lock()
	sub, ok := b.subs[channel]
	if !ok {
		b.mu.Unlock()
		return
	}
	sub.refs--
	if sub.refs > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.subs, channel)
	at := sub.attempt
	done := make(chan struct{})
	b.leaving[channel] = done
	b.mu.Unlock()

	// a failed attempt has already unsubscribed
	<-at.done
	if at.err == nil {
		b.unsubscribe(channel)
		metrics.BrokerSubscriptions.Dec()
		b.logger.Debug().Str("channel", channel).Msg("unsubscribed")
	}

	b.mu.Lock()
	if b.leaving[channel] == done {
		delete(b.leaving, channel)
	}
	b.mu.Unlock()
	close(done)
}

// Subscriptions returns the number of channels this instance holds.
func (b *Bridge) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish sends env to every instance subscribed to channel. Direct
// messages are also appended to the message log. A broker failure is
// returned and not retried.
func (b *Bridge) Publish(ctx context.Context, channel string, env models.Envelope) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := env.Validate(); err != nil {
		return err
	}

	env.Origin = b.instance
	if env.Kind == models.KindDirect {
		if env.Direct.ID == "" {
			env.Direct.ID = ulid.Make().String()
		}
		if env.Direct.TimeStamp.IsZero() {
			env.Direct.TimeStamp = time.Now()
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, brokerChannel(channel), data).Err(); err != nil {
		metrics.MessagesPublished.WithLabelValues(string(env.Kind), "error").Inc()
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	metrics.MessagesPublished.WithLabelValues(string(env.Kind), "ok").Inc()

	if env.Kind == models.KindDirect {
		if err := b.store.AppendMessage(ctx, channel, env.Direct); err != nil {
			return fmt.Errorf("log message on %s: %w", channel, err)
		}
	}
	return nil
}

// dispatch runs on the broker's receive loop until Close.
func (b *Bridge) dispatch() {
	defer b.wg.Done()

	for msg := range b.pubsub.ChannelWithSubscriptions() {
		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				b.confirmSubscription(strings.TrimPrefix(m.Channel, channelPrefix))
			}
		case *redis.Message:
			b.OnMessage(strings.TrimPrefix(m.Channel, channelPrefix), []byte(m.Payload))
		}
	}
}

func (b *Bridge) confirmSubscription(channel string) {
	b.mu.Lock()
	var at *attempt
	if sub := b.subs[channel]; sub != nil {
		at = sub.attempt
	}
	b.mu.Unlock()
	if at != nil {
		at.confirm.Do(func() { close(at.confirmed) })
	}
}

// OnMessage delivers a broker payload to the sessions on this instance that
// are registered under channel. A session that is closed or cannot take the
// frame is skipped. For direct messages published by this instance, the
// receiver's unread counter is incremented when no open receiver session
// was reached anywhere.
func (b *Bridge) OnMessage(channel string, payload []byte) {
	env, err := models.DecodeEnvelope(payload)
	if err != nil {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable broker message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	recipients := b.registry.Snapshot(channel)

	if env.Kind == models.KindCommunity {
		env.Community.OpenSessionCount = b.openSessions(ctx, channel, recipients)
	}

	data, err := env.Payload()
	if err != nil {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("failed to encode payload")
		return
	}

	var receiverSessions, reached int
	for _, s := range recipients {
		isReceiver := env.Kind == models.KindDirect && s.Identity == env.Direct.Receiver
		if isReceiver {
			receiverSessions++
		}
		if s.State() != session.Open {
			metrics.Deliveries.WithLabelValues("missed").Inc()
			continue
		}
		if !s.Send(data) {
			metrics.Deliveries.WithLabelValues("missed").Inc()
			b.logger.Debug().Str("channel", channel).Str("session", s.ID).Msg("delivery missed")
			continue
		}
		metrics.Deliveries.WithLabelValues("delivered").Inc()
		if isReceiver {
			reached++
		}
	}

	if env.Kind == models.KindDirect && env.Origin == b.instance && reached == 0 {
		b.recordMiss(ctx, channel, env.Direct.Receiver, receiverSessions)
	}
}

// openSessions counts the sessions open on channel across all instances,
// falling back to the local count if presence is unavailable.
func (b *Bridge) openSessions(ctx context.Context, channel string, local []*session.Session) int {
	n, err := b.store.ChannelPresence(ctx, channel)
	if err == nil {
		return int(n)
	}
	b.logger.Warn().Err(err).Str("channel", channel).Msg("presence unavailable, using local count")

	open := 0
	for _, s := range local {
		if s.State() == session.Open {
			open++
		}
	}
	return open
}

// recordMiss increments the receiver's unread counter unless a receiver
// session is registered on another instance. localSessions counts the
// receiver's sessions registered here, open or not, since presence counts
// them too.
func (b *Bridge) recordMiss(ctx context.Context, channel, receiver string, localSessions int) {
	cluster, err := b.store.PresenceOf(ctx, channel, receiver)
	if err != nil {
		b.logger.Warn().Err(err).Str("channel", channel).Msg("presence unavailable, counting as unread")
	} else if cluster > int64(localSessions) {
		return
	}

	if _, err := b.store.IncrementUnread(ctx, receiver); err != nil {
		b.logger.Error().Err(err).Str("receiver", receiver).Msg("failed to increment unread")
		return
	}
	metrics.UnreadIncrements.Inc()
}

// Close stops receiving from the broker. Publish and Acquire fail afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
