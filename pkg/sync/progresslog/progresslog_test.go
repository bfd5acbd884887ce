package progresslog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fieldpay/recordsync/pkg/metrics"
)

func TestHydrationProgressIsThrottled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	p := New(context.Background(), "customer", WithLogger(zap.New(core)), WithLogFrequency(time.Minute))
	p.now = func() time.Time { return now }
	p.AddRecords(4)

	p.AddHydration(metrics.OutcomeHydrated)
	p.AddHydration(metrics.OutcomeFallback)
	require.Equal(t, 1, logs.FilterMessage("Hydrating records").Len())

	now = now.Add(2 * time.Minute)
	p.AddHydration(metrics.OutcomeAbandoned)
	require.Equal(t, 2, logs.FilterMessage("Hydrating records").Len())

	p.AddHydration(metrics.OutcomeHydrated)
	final := logs.FilterMessage("Hydrated records").All()
	require.Len(t, final, 1)
	require.Equal(t, int64(2), final[0].ContextMap()["hydrated"])
	require.Equal(t, 1, p.Settled(metrics.OutcomeAbandoned))
}

func TestStaleOutcomesDoNotCountAsDone(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := New(context.Background(), "invoice", WithLogger(zap.New(core)))
	p.AddRecords(1)

	p.AddHydration(metrics.OutcomeStale)
	require.Equal(t, 0, logs.FilterMessage("Hydrated records").Len())
	p.AddHydration(metrics.OutcomeHydrated)
	require.Equal(t, 1, logs.FilterMessage("Hydrated records").Len())
}
