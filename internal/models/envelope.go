package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for client frames that cannot be routed.
var ErrMalformed = errors.New("malformed message")

// Kind discriminates the two chat payloads.
type Kind string

const (
	KindDirect    Kind = "direct"
	KindCommunity Kind = "community"
)

// Envelope is the tagged form of a chat message carried over the broker.
// Exactly one of Direct or Community is set, matching Kind.
type Envelope struct {
	Kind      Kind              `json:"kind"`
	Origin    string            `json:"origin,omitempty"` // instance that accepted the message
	Direct    *Message          `json:"direct,omitempty"`
	Community *CommunityMessage `json:"community,omitempty"`
}

// DecodeInbound decodes a raw client frame. A frame carrying a "region"
// field is community traffic, anything else is a direct message.
func DecodeInbound(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if _, ok := fields["region"]; ok {
		var cm CommunityMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		env := Envelope{Kind: KindCommunity, Community: &cm}
		return env, env.Validate()
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	env := Envelope{Kind: KindDirect, Direct: &msg}
	return env, env.Validate()
}

// DecodeEnvelope decodes an envelope received from the broker.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, env.Validate()
}

// Validate checks that the payload matches the kind and carries a route.
func (e Envelope) Validate() error {
	switch e.Kind {
	case KindDirect:
		if e.Direct == nil {
			return fmt.Errorf("%w: direct envelope without payload", ErrMalformed)
		}
		if e.Direct.Receiver == "" {
			return fmt.Errorf("%w: missing receiver", ErrMalformed)
		}
	case KindCommunity:
		if e.Community == nil {
			return fmt.Errorf("%w: community envelope without payload", ErrMalformed)
		}
		if e.Community.Region == "" {
			return fmt.Errorf("%w: empty region", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, e.Kind)
	}
	return nil
}

// Payload returns the client wire form of the message.
func (e Envelope) Payload() ([]byte, error) {
	switch e.Kind {
	case KindDirect:
		return json.Marshal(e.Direct)
	case KindCommunity:
		return json.Marshal(e.Community)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, e.Kind)
}
