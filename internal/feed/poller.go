package feed

import (
	"context"
	"sync"
	"time"

	"quacker/backend/internal/models"
	"quacker/backend/pkg/logger"
)

// DefaultInterval is the time between polls
const DefaultInterval = 3 * time.Second

// Ticker is the part of time.Ticker the poller uses
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default TickerFactory
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// NewerLoader is what the poller drives; *Manager implements it
type NewerLoader interface {
	LoadNewer(ctx context.Context) ([]models.Message, bool, error)
}

// PollerOptions configures a Poller
type PollerOptions struct {
	Interval  time.Duration
	NewTicker TickerFactory
	Logger    *logger.Logger
}

// Poller calls LoadNewer on every tick and on demand
type Poller struct {
	loader    NewerLoader
	interval  time.Duration
	newTicker TickerFactory
	log       *logger.Logger

	trigger  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a poller for loader
func NewPoller(loader NewerLoader, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobal()
	}
	return &Poller{
		loader:    loader,
		interval:  opts.Interval,
		newTicker: opts.NewTicker,
		log:       opts.Logger.WithComponent("poller"),
		trigger:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called. The ticker is
// released on return.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.newTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C():
			p.poll(ctx)
		case <-p.trigger:
			p.poll(ctx)
		}
	}
}

// Trigger asks for one extra poll as soon as possible. Requests made while
// one is already pending are merged.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop ends Run. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Poller) poll(ctx context.Context) {
	batch, ran, err := p.loader.LoadNewer(ctx)
	switch {
	case err != nil && ctx.Err() == nil:
		p.log.Warn("poll failed", "error", err.Error())
	case ran && len(batch) > 0:
		p.log.Debug("new messages", "count", len(batch), "newest", batch[0].ID)
	}
}
