package feed

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quacker/backend/internal/models"
	"quacker/backend/pkg/config"
	"quacker/backend/pkg/di"
	"quacker/backend/pkg/logger"
	"quacker/backend/pkg/router"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	t.Setenv("STORE_BACKEND", "badger")
	t.Setenv("BADGER_PATH", filepath.Join(t.TempDir(), "badger"))
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("SESSION_SECRET", "feed-test-secret")
	t.Setenv("RATE_LIMIT", "1000")
	t.Setenv("RATE_LIMIT_BURST", "1000")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	container, err := di.New(ctx, config.Load(), logger.Discard(), di.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })
	go container.Hub.Run(ctx)

	r := router.New(ctx, container, "test")
	r.SetupRoutes()

	srv := httptest.NewServer(r.Engine)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestClient(t *testing.T, url string, opts ClientOptions) *Client {
	t.Helper()
	api, err := NewHTTPClient(url, nil)
	require.NoError(t, err)
	opts.Logger = logger.Discard()
	return NewClient(api, opts)
}

func TestClientRequiresLogin(t *testing.T) {
	url := startServer(t)
	c := newTestClient(t, url, ClientOptions{})

	_, err := c.Session(context.Background())
	assert.True(t, IsUnauthenticated(err))

	_, _, err = c.Manager.LoadOlder(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, c.Manager.Snapshot())
}

func TestClientPostShowsUpThroughLoadNewer(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []models.Message
	)
	alice := newTestClient(t, url, ClientOptions{
		Limit: 10,
		OnNewer: func(b []models.Message) {
			mu.Lock()
			got = append(got, b...)
			mu.Unlock()
		},
	})

	nick, err := alice.Login(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", nick)
	nick, err = alice.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", nick)

	batch, err := alice.LoadMore(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.True(t, alice.Manager.Exhausted())

	require.NoError(t, alice.Post(ctx, "hi"))

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "alice", got[0].Author)
	assert.Equal(t, "hi", got[0].Body)
	mu.Unlock()

	require.NoError(t, alice.API.Logout(ctx))
	_, err = alice.Session(ctx)
	assert.True(t, IsUnauthenticated(err))
}

func TestClientPagesHistoryOverHTTP(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()

	writer := newTestClient(t, url, ClientOptions{})
	_, err := writer.Login(ctx, "writer")
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		_, err := writer.API.Post(ctx, "msg")
		require.NoError(t, err)
	}

	reader := newTestClient(t, url, ClientOptions{Limit: 10})
	_, err = reader.Login(ctx, "reader")
	require.NoError(t, err)

	for _, want := range [][]int64{span(25, 16), span(15, 6), span(5, 1)} {
		batch, err := reader.LoadMore(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, ids(batch))
	}
	assert.True(t, reader.Manager.Exhausted())

	batch, err := reader.LoadMore(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Equal(t, span(25, 1), ids(reader.Manager.Snapshot()))
}

func TestClientPageLargerThanServerMax(t *testing.T) {
	t.Setenv("FEED_MAX_LIMIT", "20")
	url := startServer(t)
	ctx := context.Background()

	writer := newTestClient(t, url, ClientOptions{})
	_, err := writer.Login(ctx, "writer")
	require.NoError(t, err)
	post := func(n int) {
		for i := 0; i < n; i++ {
			_, err := writer.API.Post(ctx, "msg")
			require.NoError(t, err)
		}
	}

	post(2)
	reader := newTestClient(t, url, ClientOptions{Limit: 30})
	_, err = reader.Login(ctx, "reader")
	require.NoError(t, err)
	_, err = reader.LoadMore(ctx)
	require.NoError(t, err)

	post(30)
	for reader.Manager.Newest() < 32 {
		batch, _, err := reader.Manager.LoadNewer(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, batch)
	}
	assert.Equal(t, 20, reader.Manager.Limit())

	window := reader.Manager.Snapshot()
	assert.Equal(t, span(32, 1), ids(window))
	assertContiguous(t, window)
}

func TestWatchTriggersPoll(t *testing.T) {
	url := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := &manualTicker{c: make(chan time.Time)}
	bob := newTestClient(t, url, ClientOptions{
		Limit:     10,
		Interval:  time.Hour,
		NewTicker: func(time.Duration) Ticker { return ticker },
	})
	_, err := bob.Login(ctx, "bob")
	require.NoError(t, err)

	go bob.Run(ctx)
	watchErr := make(chan error, 1)
	go func() { watchErr <- bob.Watch(ctx) }()

	alice := newTestClient(t, url, ClientOptions{})
	_, err = alice.Login(ctx, "alice")
	require.NoError(t, err)

	// the socket may not be registered yet, so keep posting until bob sees one
	require.Eventually(t, func() bool {
		if _, err := alice.API.Post(ctx, "ping"); err != nil {
			return false
		}
		return bob.Manager.Newest() > 0
	}, 5*time.Second, 100*time.Millisecond)
	assertContiguous(t, bob.Manager.Snapshot())

	cancel()
	select {
	case err := <-watchErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.com", nil)
	assert.Error(t, err)
	_, err = NewHTTPClient("://nope", nil)
	assert.Error(t, err)
}
