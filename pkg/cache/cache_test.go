package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(opts Options) (*Cache, *time.Time) {
	c := New(context.Background(), Options{TTL: opts.TTL, MaxItems: opts.MaxItems})
	clock := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestGetHonoursTTL(t *testing.T) {
	c, clock := newTestCache(Options{TTL: time.Minute})

	c.Set("head", int64(4))
	v, ok := c.Get("head")
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	*clock = clock.Add(2 * time.Minute)
	_, ok = c.Get("head")
	assert.False(t, ok)
}

func TestUpdateSeesPreviousValue(t *testing.T) {
	c, _ := newTestCache(Options{})

	atLeast := func(n int64) func(interface{}, bool) interface{} {
		return func(old interface{}, found bool) interface{} {
			if found && old.(int64) >= n {
				return old
			}
			return n
		}
	}

	assert.Equal(t, int64(5), c.Update("head", atLeast(5)))
	assert.Equal(t, int64(5), c.Update("head", atLeast(3)))
	assert.Equal(t, int64(9), c.Update("head", atLeast(9)))
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c, clock := newTestCache(Options{MaxItems: 2})
	var evicted []string
	c.SetOnEvicted(func(k string, _ interface{}) { evicted = append(evicted, k) })

	c.Set("a", 1)
	*clock = clock.Add(time.Second)
	c.Set("b", 2)
	*clock = clock.Add(time.Second)
	c.Set("c", 3)

	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, 2, c.Count())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestDeleteExpired(t *testing.T) {
	c, clock := newTestCache(Options{TTL: time.Second})
	c.Set("x", 1)
	*clock = clock.Add(time.Minute)

	c.deleteExpired()
	assert.Equal(t, 0, c.Count())
}

func TestSweepStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(ctx, Options{TTL: time.Millisecond, PurgeWindow: 5 * time.Millisecond})
	c.Set("x", 1)

	assert.Eventually(t, func() bool { return c.Count() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
