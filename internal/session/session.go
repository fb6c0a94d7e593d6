package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the lifecycle position of a Session.
type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Conn is the part of a websocket connection a Session writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Options tunes the outbound side of a Session.
type Options struct {
	SendBuffer   int           // queued frames before Send reports a miss
	WriteTimeout time.Duration // deadline for a single frame write
	PingInterval time.Duration // zero disables pings
}

// Session is one client connection held open by this process.
type Session struct {
	ID       string
	Identity string

	conn  Conn
	opts  Options
	send  chan []byte
	done  chan struct{}
	state atomic.Int32
	once  sync.Once

	// guarded by mu; maintained by Registry
	mu       sync.Mutex
	channels map[string]struct{}
	removed  bool
}

// New creates a Session in the Connecting state.
func New(identity string, conn Conn, opts Options) *Session {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		conn:     conn,
		opts:     opts,
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Open moves a connecting session to Open. It reports false if the session
// was already closed.
func (s *Session) Open() bool {
	return s.state.CompareAndSwap(int32(Connecting), int32(Open))
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues payload for delivery without blocking. It reports false when
// the session is not open or its queue is full.
func (s *Session) Send(payload []byte) bool {
	if s.State() != Open {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Close marks the session closed and closes the underlying connection.
// Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.state.Store(int32(Closed))
		close(s.done)
		_ = s.conn.Close()
	})
}

// Channels returns the channels the session is registered under.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

// WritePump writes queued frames to the connection until the session
// closes. A failed write closes the session.
func (s *Session) WritePump() {
	var ping <-chan time.Time
	if s.opts.PingInterval > 0 {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-ping:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}
