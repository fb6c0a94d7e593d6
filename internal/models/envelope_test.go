package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundDirect(t *testing.T) {
	env, err := DecodeInbound([]byte(`{"sender":"7","receiver":"9","content":"hello","senderName":"kim","receiverName":"lee"}`))
	require.NoError(t, err)

	assert.Equal(t, KindDirect, env.Kind)
	require.NotNil(t, env.Direct)
	assert.Nil(t, env.Community)
	assert.Equal(t, "9", env.Direct.Receiver)
	assert.Equal(t, "hello", env.Direct.Content)
}

func TestDecodeInboundCommunity(t *testing.T) {
	env, err := DecodeInbound([]byte(`{"content":"anyone have a drill?","senderName":"kim","region":"north"}`))
	require.NoError(t, err)

	assert.Equal(t, KindCommunity, env.Kind)
	require.NotNil(t, env.Community)
	assert.Nil(t, env.Direct)
	assert.Equal(t, "north", env.Community.Region)
}

func TestDecodeInboundMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `hello`,
		"array":            `[1,2]`,
		"null":             `null`,
		"missing receiver": `{"content":"hi"}`,
		"empty region":     `{"content":"hi","region":""}`,
		"wrong type":       `{"receiver":5}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(frame))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEnvelopeValidateRejectsMismatchedKind(t *testing.T) {
	env := Envelope{Kind: KindCommunity, Direct: &Message{Receiver: "9"}}
	assert.ErrorIs(t, env.Validate(), ErrMalformed)

	env = Envelope{Kind: "broadcast"}
	assert.ErrorIs(t, env.Validate(), ErrMalformed)
}

func TestEnvelopePayloadIsPlainWireSchema(t *testing.T) {
	env := Envelope{
		Kind:      KindCommunity,
		Origin:    "instance-a",
		Community: &CommunityMessage{Content: "hi", Region: "north", OpenSessionCount: 2},
	}
	data, err := env.Payload()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"openSessionCount":2`)
	assert.NotContains(t, string(data), "instance-a")
	assert.NotContains(t, string(data), `"kind"`)
}

func TestDecodeEnvelopeRoundTrip(t *testing.T) {
	data := []byte(`{"kind":"direct","origin":"a","direct":{"sender":"1","receiver":"2","content":"x"}}`)
	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "a", env.Origin)
	assert.Equal(t, "2", env.Direct.Receiver)
}
