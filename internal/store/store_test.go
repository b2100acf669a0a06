package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"quacker/backend/internal/models"
	"quacker/backend/pkg/cache"
	"quacker/backend/pkg/logger"

	"github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSQLiteLog(t *testing.T) *GormLog {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chat.sqlite3")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	l, err := NewGormLog(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newBadgerLog(t *testing.T) *BadgerLog {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	l := NewBadgerLog(db, logger.Discard())
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func backends(t *testing.T) map[string]func(t *testing.T) Log {
	return map[string]func(t *testing.T) Log{
		"gorm-sqlite": func(t *testing.T) Log { return newSQLiteLog(t) },
		"badger":      func(t *testing.T) Log { return newBadgerLog(t) },
		"cached-badger": func(t *testing.T) Log {
			head := NewMemoryHeadCache(cache.New(context.Background(), cache.Options{}))
			return NewCachedLog(newBadgerLog(t), head, logger.Discard())
		},
	}
}

func seed(t *testing.T, l Log, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		msg, err := l.Insert(context.Background(), "alice", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
		require.EqualValues(t, i, msg.ID)
	}
}

func ids(msgs []models.Message) []int64 {
	return lo.Map(msgs, func(m models.Message, _ int) int64 { return m.ID })
}

func TestLogBackends(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("empty log", func(t *testing.T) {
				l := open(t)
				got, err := l.Range(ctx, models.Unbounded(0, 10))
				require.NoError(t, err)
				assert.NotNil(t, got)
				assert.Empty(t, got)
			})

			t.Run("insert assigns first id and fields", func(t *testing.T) {
				l := open(t)
				msg, err := l.Insert(ctx, "alice", "hi")
				require.NoError(t, err)
				assert.EqualValues(t, 1, msg.ID)
				assert.Equal(t, "alice", msg.Author)
				assert.Equal(t, "hi", msg.Body)
				assert.NotZero(t, msg.CreatedAt)

				got, err := l.Range(ctx, models.Bounded(1, 10, 10))
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, msg, got[0])
			})

			t.Run("range is descending, bounded and limited", func(t *testing.T) {
				l := open(t)
				seed(t, l, 25)

				got, err := l.Range(ctx, models.Unbounded(0, 10))
				require.NoError(t, err)
				assert.Equal(t, []int64{25, 24, 23, 22, 21, 20, 19, 18, 17, 16}, ids(got))

				got, err = l.Range(ctx, models.Bounded(0, 15, 10))
				require.NoError(t, err)
				assert.Equal(t, []int64{15, 14, 13, 12, 11, 10, 9, 8, 7, 6}, ids(got))

				got, err = l.Range(ctx, models.Bounded(0, 5, 10))
				require.NoError(t, err)
				assert.Equal(t, []int64{5, 4, 3, 2, 1}, ids(got))

				got, err = l.Range(ctx, models.Bounded(20, 22, 10))
				require.NoError(t, err)
				assert.Equal(t, []int64{22, 21, 20}, ids(got))

				got, err = l.Range(ctx, models.Bounded(26, 35, 10))
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("limit without offset returns the top of a wide range", func(t *testing.T) {
				l := open(t)
				seed(t, l, 25)

				got, err := l.Range(ctx, models.Bounded(1, 25, 3))
				require.NoError(t, err)
				assert.Equal(t, []int64{25, 24, 23}, ids(got))
			})

			t.Run("invalid ranges are empty", func(t *testing.T) {
				l := open(t)
				seed(t, l, 3)

				got, err := l.Range(ctx, models.Bounded(3, 1, 10))
				require.NoError(t, err)
				assert.Empty(t, got)

				got, err = l.Range(ctx, models.Unbounded(0, 0))
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("concurrent inserts get distinct ids", func(t *testing.T) {
				l := open(t)
				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := l.Insert(ctx, "bob", fmt.Sprint(i))
						assert.NoError(t, err)
					}(i)
				}
				wg.Wait()

				got, err := l.Range(ctx, models.Unbounded(0, 100))
				require.NoError(t, err)
				assert.Len(t, got, 20)
				assert.Len(t, lo.Uniq(ids(got)), 20)
				assert.EqualValues(t, 20, got[0].ID)
			})

			t.Run("ping", func(t *testing.T) {
				assert.NoError(t, open(t).Ping(ctx))
			})
		})
	}
}

func TestBadgerLogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	l, err := OpenBadgerLog(dir, logger.Discard())
	require.NoError(t, err)
	seed(t, l, 3)
	require.NoError(t, l.Close())

	l, err = OpenBadgerLog(dir, logger.Discard())
	require.NoError(t, err)
	defer l.Close()

	msg, err := l.Insert(context.Background(), "carol", "back again")
	require.NoError(t, err)
	assert.EqualValues(t, 4, msg.ID)
}

func TestBadgerLogClosed(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	l := NewBadgerLog(db, logger.Discard())
	require.NoError(t, l.Close())

	_, err = l.Range(context.Background(), models.Unbounded(0, 10))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = l.Insert(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, l.Ping(context.Background()), ErrClosed)
}

// countingLog records how many range queries reach the backend.
type countingLog struct {
	Log
	ranges int
}

func (c *countingLog) Range(ctx context.Context, req models.RangeRequest) ([]models.Message, error) {
	c.ranges++
	return c.Log.Range(ctx, req)
}

func TestCachedLogSkipsPollsPastHead(t *testing.T) {
	ctx := context.Background()
	inner := &countingLog{Log: newBadgerLog(t)}
	head := NewMemoryHeadCache(cache.New(ctx, cache.Options{}))
	l := NewCachedLog(inner, head, logger.Discard())

	_, err := l.Insert(ctx, "alice", "hi")
	require.NoError(t, err)

	got, err := l.Range(ctx, models.Bounded(2, 11, 10))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, inner.ranges, "poll above the head must not reach the log")

	_, err = l.Insert(ctx, "bob", "yo")
	require.NoError(t, err)

	got, err = l.Range(ctx, models.Bounded(2, 11, 10))
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(got))
	assert.Equal(t, 1, inner.ranges)
}

type brokenHead struct{}

func (brokenHead) Head(context.Context) (int64, bool, error) { return 0, false, errors.New("down") }
func (brokenHead) Raise(context.Context, int64) error        { return errors.New("down") }

func TestCachedLogFallsThroughOnCacheError(t *testing.T) {
	ctx := context.Background()
	l := NewCachedLog(newBadgerLog(t), brokenHead{}, logger.Discard())

	_, err := l.Insert(ctx, "alice", "hi")
	require.NoError(t, err)

	got, err := l.Range(ctx, models.Unbounded(1, 10))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got))
}

func TestMemoryHeadCacheIsMonotonic(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHeadCache(cache.New(ctx, cache.Options{}))

	_, ok, err := h.Head(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.Raise(ctx, 7))
	require.NoError(t, h.Raise(ctx, 3))

	id, ok, err := h.Head(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 7, id)
}

func TestInsertLockOnlyOnPostgres(t *testing.T) {
	assert.True(t, needsInsertLock("postgres"))
	assert.False(t, needsInsertLock("sqlite"))

	l := newSQLiteLog(t)
	assert.False(t, l.serialize)
}
