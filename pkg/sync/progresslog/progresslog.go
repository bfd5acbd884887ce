// Package progresslog reports sync and hydration progress at a bounded rate.
package progresslog

import (
	"context"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/fieldpay/recordsync/pkg/metrics"
)

const defaultMaxLogFrequency = 10 * time.Second

type ProgressLog struct {
	mu              sync.Mutex
	entityType      string
	records         int
	settled         map[metrics.Outcome]int
	lastHydratedLog time.Time
	l               *zap.Logger
	maxLogFrequency time.Duration
	now             func() time.Time
}

type Option func(*ProgressLog)

func WithLogger(l *zap.Logger) Option {
	return func(p *ProgressLog) {
		// Don't allow a nil logger to be set, as that would cause a panic.
		if l != nil {
			p.l = l
		}
	}
}

func WithLogFrequency(logFrequency time.Duration) Option {
	return func(p *ProgressLog) {
		p.maxLogFrequency = logFrequency
	}
}

func New(ctx context.Context, entityType string, opts ...Option) *ProgressLog {
	p := &ProgressLog{
		entityType:      entityType,
		settled:         make(map[metrics.Outcome]int),
		l:               ctxzap.Extract(ctx),
		maxLogFrequency: defaultMaxLogFrequency,
		now:             time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AddRecords counts newly published records.
func (p *ProgressLog) AddRecords(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records += count
}

func (p *ProgressLog) LogPageProgress(pageIndex int) {
	p.mu.Lock()
	records := p.records
	p.mu.Unlock()

	p.l.Info("Synced page",
		zap.String("entity_type", p.entityType),
		zap.Int("page", pageIndex),
		zap.Int("records", records),
	)
}

// AddHydration counts one settled hydration and logs at most once per log
// frequency, except that the final record is always logged.
func (p *ProgressLog) AddHydration(outcome metrics.Outcome) {
	p.mu.Lock()
	p.settled[outcome]++
	done := p.doneLocked()
	records := p.records
	now := p.now()
	if done < records && now.Sub(p.lastHydratedLog) < p.maxLogFrequency {
		p.mu.Unlock()
		return
	}
	p.lastHydratedLog = now
	fields := p.fieldsLocked()
	p.mu.Unlock()

	if records > 0 && done >= records {
		p.l.Info("Hydrated records", fields...)
		return
	}
	if records > 0 {
		fields = append(fields, zap.Int("percent_complete", done*100/records))
	}
	p.l.Info("Hydrating records", fields...)
}

// Settled returns how many hydrations ended with outcome.
func (p *ProgressLog) Settled(outcome metrics.Outcome) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled[outcome]
}

func (p *ProgressLog) doneLocked() int {
	return p.settled[metrics.OutcomeHydrated] + p.settled[metrics.OutcomeFallback] + p.settled[metrics.OutcomeAbandoned]
}

func (p *ProgressLog) fieldsLocked() []zap.Field {
	return []zap.Field{
		zap.String("entity_type", p.entityType),
		zap.Int("hydrated", p.settled[metrics.OutcomeHydrated]),
		zap.Int("fallback", p.settled[metrics.OutcomeFallback]),
		zap.Int("abandoned", p.settled[metrics.OutcomeAbandoned]),
		zap.Int("total", p.records),
	}
}
