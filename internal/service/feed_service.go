package service

import (
	"context"
	"errors"
	"fmt"

	"quacker/backend/internal/models"
	"quacker/backend/internal/store"
	"quacker/backend/pkg/logger"
	"quacker/backend/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrStoreUnavailable means the message log could not be read or written
var ErrStoreUnavailable = errors.New("message store unavailable")

const instrumentation = "quacker/backend/internal/service"

// Notifier is told about every message once it is committed
type Notifier interface {
	MessagePosted(msg models.Message)
}

// FeedOptions bounds page sizes
type FeedOptions struct {
	DefaultLimit int
	MaxLimit     int
}

// FeedService answers range queries and appends posts
type FeedService struct {
	log      store.Log
	breaker  *resilience.CircuitBreaker
	notifier Notifier
	opts     FeedOptions
	logger   *logger.Logger

	tracer  trace.Tracer
	queries metric.Int64Counter
	posts   metric.Int64Counter
	failed  metric.Int64Counter
	rows    metric.Int64Histogram
}

// NewFeedService creates the service. breaker may be nil.
func NewFeedService(l store.Log, opts FeedOptions, breaker *resilience.CircuitBreaker, log *logger.Logger) (*FeedService, error) {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}

	meter := otel.Meter(instrumentation)
	s := &FeedService{
		log:     l,
		breaker: breaker,
		opts:    opts,
		logger:  log.WithComponent("feed"),
		tracer:  otel.Tracer(instrumentation),
	}

	var err error
	if s.queries, err = meter.Int64Counter("quacker_feed_queries",
		metric.WithDescription("Range queries answered")); err != nil {
		return nil, fmt.Errorf("create queries counter: %w", err)
	}
	if s.posts, err = meter.Int64Counter("quacker_feed_posts",
		metric.WithDescription("Messages appended")); err != nil {
		return nil, fmt.Errorf("create posts counter: %w", err)
	}
	if s.failed, err = meter.Int64Counter("quacker_feed_store_failures",
		metric.WithDescription("Store operations that failed")); err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	if s.rows, err = meter.Int64Histogram("quacker_feed_rows_returned",
		metric.WithDescription("Messages returned per range query"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50, 100)); err != nil {
		return nil, fmt.Errorf("create rows histogram: %w", err)
	}
	return s, nil
}

// SetNotifier registers who hears about new posts
func (s *FeedService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Normalize applies the limit policy: negative means default, anything
// above MaxLimit is clamped. Zero is kept and yields an empty page.
func (s *FeedService) Normalize(req models.RangeRequest) models.RangeRequest {
	switch {
	case req.Limit < 0:
		req.Limit = s.opts.DefaultLimit
	case req.Limit > s.opts.MaxLimit:
		req.Limit = s.opts.MaxLimit
	}
	return req
}

// Query returns at most Limit messages with From <= id <= To, newest
// first. Inverted or negative ranges are not errors; they return an empty
// page. The result is never nil.
func (s *FeedService) Query(ctx context.Context, req models.RangeRequest) ([]models.Message, error) {
	req = s.Normalize(req)

	attrs := []attribute.KeyValue{
		attribute.Int64("feed.from", req.From),
		attribute.Int("feed.limit", req.Limit),
		attribute.Bool("feed.bounded", req.To != nil),
	}
	if req.To != nil {
		attrs = append(attrs, attribute.Int64("feed.to", *req.To))
	}
	ctx, span := s.tracer.Start(ctx, "FeedService.Query", trace.WithAttributes(attrs...))
	defer span.End()

	s.queries.Add(ctx, 1)

	if req.Empty() {
		s.rows.Record(ctx, 0)
		return []models.Message{}, nil
	}

	var messages []models.Message
	err := s.guard(func() error {
		var err error
		messages, err = s.log.Range(ctx, req)
		return err
	})
	if err != nil {
		return nil, s.storeFailure(ctx, span, "range", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}

	span.SetAttributes(attribute.Int("feed.rows", len(messages)))
	s.rows.Record(ctx, int64(len(messages)))
	return messages, nil
}

// Post appends a message by author. Body content is not validated here.
func (s *FeedService) Post(ctx context.Context, author, body string) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "FeedService.Post",
		trace.WithAttributes(attribute.Int("feed.body_len", len(body))))
	defer span.End()

	var msg models.Message
	err := s.guard(func() error {
		var err error
		msg, err = s.log.Insert(ctx, author, body)
		return err
	})
	if err != nil {
		return models.Message{}, s.storeFailure(ctx, span, "insert", err)
	}

	span.SetAttributes(attribute.Int64("feed.id", msg.ID))
	s.posts.Add(ctx, 1)
	s.logger.Debug("message posted", "id", msg.ID, "nickname", author)

	if s.notifier != nil {
		s.notifier.MessagePosted(msg)
	}
	return msg, nil
}

// Ping checks the underlying log
func (s *FeedService) Ping(ctx context.Context) error {
	return s.log.Ping(ctx)
}

func (s *FeedService) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

func (s *FeedService) storeFailure(ctx context.Context, span trace.Span, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		span.SetStatus(codes.Error, ctxErr.Error())
		return ctxErr
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "store unavailable")
	s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	s.logger.LogError(err, "message store failure", "op", op)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// IsStoreFailure tells the breaker which errors count against the store
func IsStoreFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
