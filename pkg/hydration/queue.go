// Package hydration upgrades cached summary entities to their detail
// representation in the background.
//
// A Queue drains a FIFO of ids in batches of at most MaxConcurrent. Each
// batch is handed to a fixed pool of MaxConcurrent workers reading from a
// shared channel, so the number of detail fetches in flight can never exceed
// the pool size. Between batches the drain loop sleeps for InterBatchDelay.
package hydration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldpay/recordsync/pkg/metrics"
	"github.com/fieldpay/recordsync/pkg/retry"
	"github.com/fieldpay/recordsync/pkg/syncerr"
)

const (
	DefaultMaxConcurrent   = 3
	DefaultMaxRetries      = 2
	DefaultBaseDelay       = time.Second
	DefaultInterBatchDelay = time.Second
	DefaultMaxDelay        = 60 * time.Second
)

type Config struct {
	MaxConcurrent   int
	MaxRetries      int
	BaseDelay       time.Duration
	InterBatchDelay time.Duration
	// MaxDelay caps a single backoff wait, including server-suggested ones.
	MaxDelay time.Duration
	// AdaptiveBackoff lets a server's Retry-After replace the fixed delay.
	AdaptiveBackoff bool
	// RequestTimeout bounds each detail or fallback attempt. Zero means the
	// HTTP client's own timeout applies.
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   DefaultMaxConcurrent,
		MaxRetries:      DefaultMaxRetries,
		BaseDelay:       DefaultBaseDelay,
		InterBatchDelay: DefaultInterBatchDelay,
		MaxDelay:        DefaultMaxDelay,
	}
}

func (c Config) validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("hydration: max concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("hydration: max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("hydration: base delay must be positive")
	}
	if c.InterBatchDelay < 0 {
		return fmt.Errorf("hydration: inter-batch delay must not be negative")
	}
	return nil
}

type DetailFetcher[E any] interface {
	FetchDetail(ctx context.Context, id string) (E, error)
}

type FallbackFetcher[E any] interface {
	FetchDetailFallback(ctx context.Context, id string) (E, error)
}

// Store is where hydrated entities land. Put must drop writes whose
// generation is no longer current.
type Store[E any] interface {
	Put(id string, entity E, generation uint64) bool
	Generation() uint64
}

// Result describes how one enqueued id was settled.
type Result[E any] struct {
	ID         string
	Generation uint64
	Outcome    metrics.Outcome
	Entity     E
	// Attempts counts structured detail calls; the fallback is not included.
	Attempts         int
	FallbackAttempts int
	Err              error
}

type Option[E any] func(*Queue[E])

func WithFallback[E any](f FallbackFetcher[E]) Option[E] {
	return func(q *Queue[E]) {
		q.fallback = f
	}
}

// WithResultHandler registers fn to be called from a worker goroutine once
// per settled id. fn must not block.
func WithResultHandler[E any](fn func(Result[E])) Option[E] {
	return func(q *Queue[E]) {
		q.onResult = fn
	}
}

func WithMetrics[E any](m *metrics.M) Option[E] {
	return func(q *Queue[E]) {
		if m != nil {
			q.metrics = m
		}
	}
}

type task struct {
	id         string
	generation uint64
}

type job struct {
	task task
	done *sync.WaitGroup
}

type Queue[E any] struct {
	cfg      Config
	detail   DetailFetcher[E]
	fallback FallbackFetcher[E]
	store    Store[E]
	metrics  *metrics.M
	onResult func(Result[E])

	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	mu      sync.Mutex
	pending []task
	running bool
	closed  bool
	idle    chan struct{}
}

// New creates an idle queue. ctx carries the logger and bounds the queue's
// lifetime; Close cancels it.
func New[E any](ctx context.Context, cfg Config, detail DetailFetcher[E], store Store[E], opts ...Option[E]) (*Queue[E], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if detail == nil || store == nil {
		return nil, errors.New("hydration: detail fetcher and store are required")
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	ctx, cancel := context.WithCancel(ctx)
	q := &Queue[E]{
		cfg:     cfg,
		detail:  detail,
		store:   store,
		metrics: metrics.New(nil, ""),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue appends ids tagged with generation and starts draining if the
// queue was idle.
func (q *Queue[E]) Enqueue(ids []string, generation uint64) {
	if len(ids) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	for _, id := range ids {
		q.pending = append(q.pending, task{id: id, generation: generation})
	}
	q.metrics.ObserveQueueDepth(q.ctx, len(q.pending))

	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		q.runs.Add(1)
		go q.drain(q.idle)
	}
}

func (q *Queue[E]) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Len returns the number of ids waiting to be started.
func (q *Queue[E]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DropPending discards ids that have not started yet and returns how many
// were dropped. Fetches already in flight are left to finish.
func (q *Queue[E]) DropPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	q.metrics.ObserveQueueDepth(q.ctx, 0)
	return n
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue[E]) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.running {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting ids, cancels outstanding work and waits for the
// drain loop to exit.
func (q *Queue[E]) Close() {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	q.runs.Wait()
}

// nextBatch pops up to MaxConcurrent tasks. On an empty queue it marks the
// queue idle and returns nil.
func (q *Queue[E]) nextBatch() []task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 || q.ctx.Err() != nil {
		q.stopLocked()
		return nil
	}
	n := min(q.cfg.MaxConcurrent, len(q.pending))
	batch := make([]task, n)
	copy(batch, q.pending[:n])
	q.pending = q.pending[n:]
	q.metrics.ObserveQueueDepth(q.ctx, len(q.pending))
	return batch
}

func (q *Queue[E]) stopLocked() {
	if q.running {
		q.running = false
		close(q.idle)
	}
}

func (q *Queue[E]) drain(idle chan struct{}) {
	defer q.runs.Done()

	ctx := q.ctx
	l := ctxzap.Extract(ctx)

	jobs := make(chan job)
	var g errgroup.Group
	for i := 0; i < q.cfg.MaxConcurrent; i++ {
		g.Go(func() error {
			for j := range jobs {
				q.settle(ctx, j.task)
				j.done.Done()
			}
			return nil
		})
	}
	defer func() {
		close(jobs)
		_ = g.Wait()
	}()

	for batchNum := 0; ; batchNum++ {
		if batchNum > 0 && q.Len() > 0 && q.cfg.InterBatchDelay > 0 {
			if !sleep(ctx, q.cfg.InterBatchDelay) {
				q.mu.Lock()
				if q.idle == idle {
					q.stopLocked()
				}
				q.mu.Unlock()
				return
			}
		}

		batch := q.nextBatch()
		if batch == nil {
			l.Debug("hydration queue idle", zap.Int("batches", batchNum))
			return
		}

		var wg sync.WaitGroup
		wg.Add(len(batch))
		for _, t := range batch {
			jobs <- job{task: t, done: &wg}
		}
		wg.Wait()
	}
}

func (q *Queue[E]) settle(ctx context.Context, t task) {
	res := q.hydrate(ctx, t)
	q.metrics.RecordHydration(ctx, res.Outcome)

	l := ctxzap.Extract(ctx).With(
		zap.String("id", t.id),
		zap.Uint64("generation", t.generation),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("attempts", res.Attempts),
	)
	switch res.Outcome {
	case metrics.OutcomeAbandoned:
		l.Warn("hydration abandoned", zap.Error(res.Err))
	default:
		l.Debug("hydration settled")
	}

	if q.onResult != nil {
		q.onResult(res)
	}
}

func (q *Queue[E]) stale(t task) bool {
	return q.store.Generation() != t.generation
}

func (q *Queue[E]) hydrate(ctx context.Context, t task) Result[E] {
	res := Result[E]{ID: t.id, Generation: t.generation}

	retryer := retry.NewRetryer(ctx, retry.RetryConfig{
		MaxAttempts:     uint(q.cfg.MaxRetries),
		InitialDelay:    q.cfg.BaseDelay,
		MaxDelay:        q.cfg.MaxDelay,
		HonorRetryAfter: q.cfg.AdaptiveBackoff,
	})

	for {
		if q.stale(t) {
			res.Outcome = metrics.OutcomeStale
			return res
		}

		res.Attempts++
		e, err := q.attempt(ctx, "detail", t.id, q.detail.FetchDetail)
		if err == nil {
			return q.commit(t, e, metrics.OutcomeHydrated, res)
		}
		res.Err = err

		if errors.Is(err, syncerr.ErrUnauthenticated) {
			res.Outcome = metrics.OutcomeAbandoned
			return res
		}
		if errors.Is(err, syncerr.ErrNotFound) || res.Attempts > q.cfg.MaxRetries {
			break
		}
		if !retryer.ShouldWaitAndRetry(ctx, asRetryable(err)) {
			break
		}
	}

	if q.fallback == nil || ctx.Err() != nil {
		res.Outcome = metrics.OutcomeAbandoned
		return res
	}
	if q.stale(t) {
		res.Outcome = metrics.OutcomeStale
		return res
	}

	res.FallbackAttempts++
	e, err := q.attempt(ctx, "fallback", t.id, q.fallback.FetchDetailFallback)
	if err != nil {
		res.Err = err
		res.Outcome = metrics.OutcomeAbandoned
		return res
	}
	res.Err = nil
	return q.commit(t, e, metrics.OutcomeFallback, res)
}

func (q *Queue[E]) attempt(ctx context.Context, source string, id string, fetch func(context.Context, string) (E, error)) (E, error) {
	if q.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	e, err := fetch(ctx, id)
	q.metrics.RecordDetailFetch(ctx, source, time.Since(start), err)
	return e, err
}

func (q *Queue[E]) commit(t task, e E, outcome metrics.Outcome, res Result[E]) Result[E] {
	if !q.store.Put(t.id, e, t.generation) {
		res.Outcome = metrics.OutcomeStale
		return res
	}
	res.Entity = e
	res.Outcome = outcome
	return res
}

// asRetryable treats any failure that is not already classified as a
// transient remote failure.
func asRetryable(err error) error {
	if syncerr.Retryable(err) {
		return err
	}
	return syncerr.New(syncerr.KindRemoteUnavailable, "hydration.detail", err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
