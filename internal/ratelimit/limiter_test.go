package ratelimit

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterInMemoryAllowsUnderLimit(t *testing.T) {
	l, err := NewLimiter("2-M", nil)
	require.NoError(t, err)

	require.True(t, l.Allow("1.2.3.4"))
	require.True(t, l.Allow("1.2.3.4"))
	require.False(t, l.Allow("1.2.3.4"))
}

func TestLimiterInMemoryPerAddress(t *testing.T) {
	l, err := NewLimiter("1-M", nil)
	require.NoError(t, err)

	require.True(t, l.Allow("addr-a"))
	require.False(t, l.Allow("addr-a"))
	require.True(t, l.Allow("addr-b"))
}

func TestLimiterRedisBacked(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l, err := NewLimiter("1-M", client)
	require.NoError(t, err)

	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
}

func TestNewLimiterRejectsBadRate(t *testing.T) {
	_, err := NewLimiter("not-a-rate", nil)
	require.Error(t, err)
}
