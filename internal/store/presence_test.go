package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceJoinLeave(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	ch := "community:north"

	require.NoError(t, s.Join(ctx, ch, "1"))
	require.NoError(t, s.Join(ctx, ch, "1"))
	require.NoError(t, s.Join(ctx, ch, "2"))

	n, err := s.PresenceOf(ctx, ch, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	total, err := s.ChannelPresence(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	require.NoError(t, s.Leave(ctx, ch, "1"))
	require.NoError(t, s.Leave(ctx, ch, "1"))
	require.NoError(t, s.Leave(ctx, ch, "2"))

	n, err = s.PresenceOf(ctx, ch, "1")
	require.NoError(t, err)
	assert.Zero(t, n)

	total, err = s.ChannelPresence(ctx, ch)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.False(t, mr.Exists(presenceKey(ch)), "empty hash is dropped")
}

func TestPresenceLeaveWithoutJoin(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Leave(ctx, "1|2", "1"))
	n, err := s.PresenceOf(ctx, "1|2", "1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
