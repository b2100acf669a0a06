package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("redis://localhost:6379/not-a-db")
	assert.Error(t, err)
}

func TestNewRedisClientAcceptsHostPort(t *testing.T) {
	c, err := NewRedisClient("127.0.0.1:6399")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

// Needs a live server; set REDIS_TEST_URL to run.
func TestRaiseInt64(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	c, err := NewRedisClient(url)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := "test:head:" + uuid.NewString()
	defer c.Del(ctx, key)

	_, err = c.GetInt64(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := c.RaiseInt64(ctx, key, 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, err = c.RaiseInt64(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	v, err := c.GetInt64(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}
