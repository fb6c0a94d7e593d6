package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreadCounter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n, err := s.UnreadCount(ctx, "2")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 1; i <= 3; i++ {
		n, err = s.IncrementUnread(ctx, "2")
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}

	n, err = s.UnreadCount(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.ReadAndResetUnread(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.ReadAndResetUnread(ctx, "2")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnreadCountersAreIndependent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.IncrementUnread(ctx, "1")
	require.NoError(t, err)

	n, err := s.UnreadCount(ctx, "2")
	require.NoError(t, err)
	assert.Zero(t, n)
}
