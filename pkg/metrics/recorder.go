package metrics

import (
	"context"
	"time"

	"github.com/fieldpay/recordsync/pkg/syncerr"
)

const (
	hydrationOutcomeCounterName = "recordsync.hydration_outcome"
	hydrationOutcomeCounterDesc = "hydration results by entity type and outcome"
	detailLatencyHistoName      = "recordsync.detail_latency"
	detailLatencyHistoDesc      = "duration of structured detail and fallback fetches"
	queueDepthGaugeName         = "recordsync.hydration_queue_depth"
	queueDepthGaugeDesc         = "ids waiting in the hydration queue"
	pageLoadCounterName         = "recordsync.page_load"
	pageLoadCounterDesc         = "list page loads by entity type and status"
)

type Outcome string

const (
	OutcomeHydrated  Outcome = "hydrated"
	OutcomeFallback  Outcome = "fallback"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeStale     Outcome = "stale"
)

// M records sync engine metrics for one entity type.
type M struct {
	underlying Handler
	entityType string
}

func New(handler Handler, entityType string) *M {
	if handler == nil {
		handler = NewNoOpHandler(context.Background())
	}
	return &M{underlying: handler, entityType: entityType}
}

func (m *M) RecordHydration(ctx context.Context, outcome Outcome) {
	c := m.underlying.Int64Counter(hydrationOutcomeCounterName, hydrationOutcomeCounterDesc, Dimensionless)
	c.Add(ctx, 1, map[string]string{"entity_type": m.entityType, "outcome": string(outcome)})
}

// RecordDetailFetch records one fetch attempt. source is "detail" or
// "fallback".
func (m *M) RecordDetailFetch(ctx context.Context, source string, dur time.Duration, err error) {
	h := m.underlying.Int64Histogram(detailLatencyHistoName, detailLatencyHistoDesc, Milliseconds)
	st := "success"
	if err != nil {
		st = syncerr.KindOf(err).String()
	}
	h.Record(ctx, dur.Milliseconds(), map[string]string{
		"entity_type": m.entityType,
		"source":      source,
		"status":      st,
	})
}

func (m *M) ObserveQueueDepth(ctx context.Context, depth int) {
	g := m.underlying.Int64Gauge(queueDepthGaugeName, queueDepthGaugeDesc, Dimensionless)
	g.Observe(ctx, int64(depth), map[string]string{"entity_type": m.entityType})
}

func (m *M) RecordPageLoad(ctx context.Context, rows int, err error) {
	c := m.underlying.Int64Counter(pageLoadCounterName, pageLoadCounterDesc, Dimensionless)
	st := "success"
	if err != nil {
		st = syncerr.KindOf(err).String()
	}
	c.Add(ctx, 1, map[string]string{"entity_type": m.entityType, "status": st})
}
