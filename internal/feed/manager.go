// Package feed keeps a client-side window of the chat log in sync with the
// server: newer messages are prepended as they appear, older history is
// appended on demand.
package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"quacker/backend/internal/models"

	"github.com/samber/lo"
)

// Fetcher reads one page of the message log
type Fetcher interface {
	Fetch(ctx context.Context, req models.RangeRequest) ([]models.Message, error)
}

// Options configures a Manager
type Options struct {
	// Limit is the page size for both directions; defaults to 10
	Limit int
	// OnNewer receives every applied newer batch, possibly empty
	OnNewer func(batch []models.Message)
	// OnOlder receives every applied older batch, possibly empty
	OnOlder func(batch []models.Message)
}

// Manager owns the feed window. The window is ordered newest first and
// always holds a contiguous run of ids.
type Manager struct {
	fetcher Fetcher
	opts    Options

	newer    atomic.Bool
	older    atomic.Bool
	pageSize atomic.Int64

	mu        sync.RWMutex
	window    []models.Message
	exhausted bool
}

// NewManager creates a manager with an empty window
func NewManager(f Fetcher, opts Options) *Manager {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	m := &Manager{fetcher: f, opts: opts}
	m.pageSize.Store(int64(opts.Limit))
	return m
}

// Limit returns the page size in use. It starts at Options.Limit and
// shrinks to the server's page size if that turns out to be smaller.
func (m *Manager) Limit() int {
	return int(m.pageSize.Load())
}

// LoadNewer fetches the page directly above the newest message held and
// prepends it. ran is false when another LoadNewer on this manager was
// still in flight; nothing happens in that case.
//
// Only the run of ids continuing from the window head is applied. When the
// server answers with fewer rows than asked and leaves a hole above the
// head, it is honouring a smaller page size: the page is fetched again at
// that size, which is then kept for later loads.
func (m *Manager) LoadNewer(ctx context.Context) (batch []models.Message, ran bool, err error) {
	if !m.newer.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	defer m.newer.Store(false)

	newest := m.Newest()
	limit := m.Limit()
	page, err := m.fetcher.Fetch(ctx, models.Bounded(newest+1, newest+int64(limit), limit))
	if err != nil {
		return nil, true, err
	}

	if n := len(page); n > 0 && n < limit && lowestID(page) > newest+1 {
		retry, err := m.fetcher.Fetch(ctx, models.Bounded(newest+1, newest+int64(n), n))
		if err != nil {
			return nil, true, err
		}
		if len(retry) == n && lowestID(retry) == newest+1 {
			m.pageSize.Store(int64(n))
		}
		page = retry
	}

	m.mu.Lock()
	batch = continuing(page, headID(m.window))
	if len(batch) > 0 {
		window := make([]models.Message, 0, len(batch)+len(m.window))
		window = append(window, batch...)
		m.window = append(window, m.window...)
	}
	m.mu.Unlock()

	if m.opts.OnNewer != nil {
		m.opts.OnNewer(batch)
	}
	return batch, true, nil
}

// LoadOlder fetches the page directly below the oldest message held and
// appends it. With an empty window it fetches the newest page of the log.
func (m *Manager) LoadOlder(ctx context.Context) (batch []models.Message, ran bool, err error) {
	if !m.older.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	defer m.older.Store(false)

	limit := m.Limit()
	req := models.Unbounded(0, limit)
	if oldest := m.Oldest(); oldest > 0 {
		req = models.Bounded(0, oldest-1, limit)
	}
	page, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, true, err
	}

	m.mu.Lock()
	if len(m.window) == 0 {
		batch = page
	} else {
		tail := m.window[len(m.window)-1].ID
		batch = lo.Filter(page, func(msg models.Message, _ int) bool { return msg.ID < tail })
	}
	m.window = append(m.window, batch...)
	m.exhausted = IsLastPage(batch)
	m.mu.Unlock()

	if m.opts.OnOlder != nil {
		m.opts.OnOlder(batch)
	}
	return batch, true, nil
}

// IsLastPage reports whether an older batch reached the start of the log
func IsLastPage(batch []models.Message) bool {
	if len(batch) == 0 {
		return true
	}
	return lowestID(batch) == 1
}

// Exhausted reports whether the last LoadOlder hit the start of the log
func (m *Manager) Exhausted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exhausted
}

// Newest returns the id at the head of the window, or 0
func (m *Manager) Newest() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return headID(m.window)
}

// Oldest returns the id at the tail of the window, or 0
func (m *Manager) Oldest() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.window) == 0 {
		return 0
	}
	return m.window[len(m.window)-1].ID
}

// Snapshot returns a copy of the window, newest first
func (m *Manager) Snapshot() []models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Message, len(m.window))
	copy(out, m.window)
	return out
}

// Reset empties the window
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = nil
	m.exhausted = false
}

// continuing returns the messages of a newest-first page that extend head
// without a hole: ids head+1, head+2 and so on up to the first gap.
func continuing(page []models.Message, head int64) []models.Message {
	next := head + 1
	start := len(page)
	for i := len(page) - 1; i >= 0; i-- {
		if page[i].ID < next {
			start = i
			continue
		}
		if page[i].ID != next {
			break
		}
		next++
		start = i
	}
	return lo.Filter(page[start:], func(msg models.Message, _ int) bool { return msg.ID > head })
}

func lowestID(page []models.Message) int64 {
	return lo.MinBy(page, func(a, b models.Message) bool { return a.ID < b.ID }).ID
}

func headID(window []models.Message) int64 {
	if len(window) == 0 {
		return 0
	}
	return window[0].ID
}
