// Package session tracks the client connections open on this process and
// the channels each one has been routed through.
package session

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

type memberSet = *xsync.MapOf[*Session, struct{}]

// Registry maps channel ids to the local sessions interested in them.
// Channels are independent: operations on one never wait on another.
type Registry struct {
	channels *xsync.MapOf[string, memberSet]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: xsync.NewMapOf[string, memberSet]()}
}

// Add registers s under channel. It reports true only when s was not
// already a member; sessions that are closed or removed are never added.
func (r *Registry) Add(channel string, s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed || s.State() == Closed {
		return false
	}
	if _, ok := s.channels[channel]; ok {
		return false
	}

	r.channels.Compute(channel, func(members memberSet, loaded bool) (memberSet, bool) {
		if !loaded {
			members = xsync.NewMapOf[*Session, struct{}]()
		}
		members.Store(s, struct{}{})
		return members, false
	})
	s.channels[channel] = struct{}{}
	return true
}

// Remove unregisters s from every channel it joined and returns those
// channels in sorted order. After Remove, Add rejects s.
func (r *Registry) Remove(s *Session) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removed = true
	left := make([]string, 0, len(s.channels))
	for channel := range s.channels {
		r.channels.Compute(channel, func(members memberSet, loaded bool) (memberSet, bool) {
			if !loaded {
				return members, true
			}
			members.Delete(s)
			// prune empty entries
			return members, members.Size() == 0
		})
		left = append(left, channel)
	}
	s.channels = make(map[string]struct{})

	sort.Strings(left)
	return left
}

// Snapshot returns the sessions currently registered under channel.
// An unknown channel yields nil.
func (r *Registry) Snapshot(channel string) []*Session {
	members, ok := r.channels.Load(channel)
	if !ok {
		return nil
	}
	out := make([]*Session, 0, members.Size())
	members.Range(func(s *Session, _ struct{}) bool {
		out = append(out, s)
		return true
	})
	return out
}

// Count returns the number of sessions registered under channel.
func (r *Registry) Count(channel string) int {
	members, ok := r.channels.Load(channel)
	if !ok {
		return 0
	}
	return members.Size()
}

// Channels returns the number of channels with at least one session.
func (r *Registry) Channels() int {
	return r.channels.Size()
}
