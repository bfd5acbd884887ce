package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/fieldpay/recordsync/pkg/auth"
	"github.com/fieldpay/recordsync/pkg/entitycache"
	"github.com/fieldpay/recordsync/pkg/hydration"
	"github.com/fieldpay/recordsync/pkg/metrics"
	"github.com/fieldpay/recordsync/pkg/pagination"
	"github.com/fieldpay/recordsync/pkg/syncerr"
	"github.com/fieldpay/recordsync/pkg/types/record"
)

const (
	DefaultPageSize    = 50
	defaultEventBuffer = 256
)

// Lister fetches one page of summaries. count is the number of rows the
// server returned, which may exceed len(entities) when rows are unusable.
type Lister[E any] interface {
	FetchPage(ctx context.Context, offset, limit int) (entities []E, count int, err error)
}

// Status is the controller's externally visible load state.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusIdle
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusIdle:
		return "idle"
	case StatusExhausted:
		return "exhausted"
	default:
		return "empty"
	}
}

type Config struct {
	EntityType string
	PageSize   int
	Hydration  hydration.Config
	// RequestTimeout bounds an interactive LoadDetail call.
	RequestTimeout time.Duration
}

type Option[E record.Entity] func(*Controller[E])

// WithFallback sets the resolver used when the structured detail endpoint
// fails, both for background hydration and LoadDetail.
func WithFallback[E record.Entity](f hydration.FallbackFetcher[E]) Option[E] {
	return func(c *Controller[E]) {
		c.fallback = f
	}
}

func WithMetricsHandler[E record.Entity](h metrics.Handler) Option[E] {
	return func(c *Controller[E]) {
		if h != nil {
			c.metricsHandler = h
		}
	}
}

// WithEventBuffer sets the capacity of the Hydrated channel.
func WithEventBuffer[E record.Entity](n int) Option[E] {
	return func(c *Controller[E]) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// Controller keeps a paged, hydrated, searchable view of one entity type.
//
// Methods other than Hydrated may be called from any goroutine; published
// state is guarded by a single mutex so callers observe it as if mutated from
// one logical thread.
type Controller[E record.Entity] struct {
	cfg            Config
	sessionID      string
	lister         Lister[E]
	detail         hydration.DetailFetcher[E]
	fallback       hydration.FallbackFetcher[E]
	cache          *entitycache.Cache[E]
	queue          *hydration.Queue[E]
	metricsHandler metrics.Handler
	metrics        *metrics.M
	eventBuffer    int
	events         chan hydration.Result[E]
	details        singleflight.Group

	mu        sync.Mutex
	pager     *pagination.Paginator
	published []string
	members   mapset.Set[string]
}

func NewController[E record.Entity](
	ctx context.Context,
	cfg Config,
	lister Lister[E],
	detail hydration.DetailFetcher[E],
	opts ...Option[E],
) (*Controller[E], error) {
	if lister == nil || detail == nil {
		return nil, errors.New("sync: a lister and a detail fetcher are required")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Hydration == (hydration.Config{}) {
		cfg.Hydration = hydration.DefaultConfig()
	}

	pager, err := pagination.New(cfg.PageSize)
	if err != nil {
		return nil, err
	}
	cache, err := entitycache.New[E]()
	if err != nil {
		return nil, err
	}

	c := &Controller[E]{
		cfg:         cfg,
		sessionID:   ksuid.New().String(),
		lister:      lister,
		detail:      detail,
		cache:       cache,
		eventBuffer: defaultEventBuffer,
		pager:       pager,
		members:     mapset.NewThreadUnsafeSet[string](),
	}
	for _, o := range opts {
		o(c)
	}
	c.metrics = metrics.New(c.metricsHandler, cfg.EntityType)
	c.events = make(chan hydration.Result[E], c.eventBuffer)

	ctx = ctxzap.ToContext(ctx, ctxzap.Extract(ctx).With(zap.String("entity_type", cfg.EntityType)))

	qopts := []hydration.Option[E]{
		hydration.WithMetrics[E](c.metrics),
		hydration.WithResultHandler[E](c.publishResult(ctx)),
	}
	if c.fallback != nil {
		qopts = append(qopts, hydration.WithFallback[E](c.fallback))
	}
	c.queue, err = hydration.New[E](ctx, cfg.Hydration, detail, cache, qopts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller[E]) publishResult(ctx context.Context) func(hydration.Result[E]) {
	return func(res hydration.Result[E]) {
		select {
		case c.events <- res:
		default:
			ctxzap.Extract(ctx).Debug("hydration event dropped, channel full", zap.String("id", res.ID))
		}
	}
}

// SessionID identifies the current generation in logs. It changes on every
// Reset.
func (c *Controller[E]) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Hydrated delivers one event per settled hydration. Events are dropped when
// the buffer is full.
func (c *Controller[E]) Hydrated() <-chan hydration.Result[E] {
	return c.events
}

// LoadNextPage fetches the next page of summaries, publishes new ids in
// server order and queues them for hydration. It is a no-op while a load is
// in progress or after the last page.
func (c *Controller[E]) LoadNextPage(ctx context.Context) error {
	l := ctxzap.Extract(ctx)

	c.mu.Lock()
	if !c.pager.Begin() {
		c.mu.Unlock()
		return nil
	}
	offset, limit := c.pager.NextPageRequest()
	generation := c.cache.Generation()
	c.mu.Unlock()

	entities, count, err := c.lister.FetchPage(ctx, offset, limit)
	c.metrics.RecordPageLoad(ctx, count, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache.Generation() != generation {
		l.Debug("discarding page loaded before reset",
			zap.Int("offset", offset),
			zap.Uint64("generation", generation),
		)
		return nil
	}

	if err != nil {
		c.pager.End()
		if errors.Is(err, syncerr.ErrUnauthenticated) {
			return err
		}
		return syncerr.New(syncerr.KindLoadFailed, "sync.LoadNextPage", err)
	}

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		id := e.ID()
		c.cache.PutIf(id, e, generation, isSummary[E])
		if c.members.Add(id) {
			c.published = append(c.published, id)
		}
		ids = append(ids, id)
	}

	c.pager.Observe(count)
	c.pager.Advance()
	c.pager.End()

	l.Debug("page loaded",
		zap.String("session_id", c.sessionID),
		zap.Int("offset", offset),
		zap.Int("count", count),
		zap.Bool("has_more", c.pager.HasMore()),
	)

	c.queue.Enqueue(ids, generation)
	return nil
}

// Reset starts a new generation: the cache, published list and paging are
// cleared and queued hydrations are dropped. Fetches already in flight finish
// but their results are discarded.
func (c *Controller[E]) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	generation := c.cache.BumpGeneration(ctx)
	c.sessionID = ksuid.New().String()
	c.pager.Reset()
	c.published = nil
	c.members.Clear()
	dropped := c.queue.DropPending()

	ctxzap.Extract(ctx).Debug("sync reset",
		zap.String("entity_type", c.cfg.EntityType),
		zap.String("session_id", c.sessionID),
		zap.Uint64("generation", generation),
		zap.Int("dropped_hydrations", dropped),
	)
}

// LoadDetail returns the cached entity for id, or fetches it once from the
// detail endpoint, falling back to the query path on failure. Concurrent
// calls for the same id share one fetch.
func (c *Controller[E]) LoadDetail(ctx context.Context, id string) (E, error) {
	if e, ok := c.cache.Get(id); ok {
		return e, nil
	}

	generation := c.cache.Generation()
	v, err, _ := c.details.Do(fmt.Sprintf("%d/%s", generation, id), func() (interface{}, error) {
		e, err := c.fetchDetailOnce(ctx, id)
		if err != nil {
			return nil, err
		}
		c.cache.Put(id, e, generation)
		return e, nil
	})
	if err != nil {
		var zero E
		return zero, err
	}
	return v.(E), nil
}

func (c *Controller[E]) fetchDetailOnce(ctx context.Context, id string) (E, error) {
	l := ctxzap.Extract(ctx)
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	e, err := c.detail.FetchDetail(ctx, id)
	c.metrics.RecordDetailFetch(ctx, "detail", time.Since(start), err)
	if err == nil {
		return e, nil
	}
	if errors.Is(err, syncerr.ErrUnauthenticated) || c.fallback == nil {
		return e, err
	}

	l.Debug("detail fetch failed, trying fallback", zap.String("id", id), zap.Error(err))
	start = time.Now()
	e, err = c.fallback.FetchDetailFallback(ctx, id)
	c.metrics.RecordDetailFetch(ctx, "fallback", time.Since(start), err)
	return e, err
}

// List returns the published entities in first-seen order, each in its most
// complete cached form.
func (c *Controller[E]) List() []E {
	c.mu.Lock()
	ids := make([]string, len(c.published))
	copy(ids, c.published)
	c.mu.Unlock()

	return c.cache.Lookup(ids)
}

// Search filters the published list by case-insensitive substring match over
// each entity's search fields. An empty query returns the whole list.
func (c *Controller[E]) Search(query string) []E {
	all := c.List()
	if query == "" {
		return all
	}

	fold := cases.Fold()
	needle := fold.String(query)

	out := make([]E, 0, len(all))
	for _, e := range all {
		for _, field := range e.SearchFields() {
			if field != "" && strings.Contains(fold.String(field), needle) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func (c *Controller[E]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.pager.Loading():
		return StatusLoading
	case !c.pager.HasMore():
		return StatusExhausted
	case len(c.published) == 0:
		return StatusEmpty
	default:
		return StatusIdle
	}
}

func (c *Controller[E]) PageState() pagination.PageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pager.Snapshot()
}

// Generation returns the current cache generation.
func (c *Controller[E]) Generation() uint64 {
	return c.cache.Generation()
}

// WaitForHydration blocks until the hydration queue is idle or ctx is done.
func (c *Controller[E]) WaitForHydration(ctx context.Context) error {
	return c.queue.Wait(ctx)
}

// Watch applies authentication transitions until states is closed or ctx is
// done. A sign-in, including a re-sign-in with a new epoch, resets and loads
// the first page. A sign-out resets without reloading.
func (c *Controller[E]) Watch(ctx context.Context, states <-chan auth.State) error {
	l := ctxzap.Extract(ctx)
	var last auth.State

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-states:
			if !ok {
				return nil
			}

			switch {
			case s.Authenticated && (!last.Authenticated || s.Epoch != last.Epoch):
				l.Info("authenticated, reloading", zap.Uint64("epoch", s.Epoch))
				c.Reset(ctx)
				if err := c.LoadNextPage(ctx); err != nil {
					l.Error("initial page load failed", zap.Error(err))
				}
			case !s.Authenticated && last.Authenticated:
				l.Info("signed out, clearing")
				c.Reset(ctx)
			}
			last = s
		}
	}
}

// Close stops background hydration.
func (c *Controller[E]) Close() {
	c.queue.Close()
}

// isSummary reports whether a cached entity may still be replaced by a
// summary row.
func isSummary[E record.Entity](existing E) bool {
	return existing.Source() == record.SourceSummary
}
