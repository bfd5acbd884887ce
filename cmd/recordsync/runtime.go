package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fieldpay/recordsync/pkg/auth"
	"github.com/fieldpay/recordsync/pkg/config"
	"github.com/fieldpay/recordsync/pkg/logging"
	"github.com/fieldpay/recordsync/pkg/metrics"
	"github.com/fieldpay/recordsync/pkg/pagination"
	"github.com/fieldpay/recordsync/pkg/remote"
	rsync "github.com/fieldpay/recordsync/pkg/sync"
	"github.com/fieldpay/recordsync/pkg/types/record"
	"github.com/fieldpay/recordsync/pkg/uhttp"
)

func registerFlags(cmd *cobra.Command) {
	config.RegisterFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().String("config-path", "", "Extra directory to search for recordsync.yaml")
}

// engine erases the entity type so commands can drive any controller.
type engine interface {
	loadNextPage(ctx context.Context) error
	entityType() string
	waitForHydration(ctx context.Context) error
	list() []any
	search(query string) []any
	detail(ctx context.Context, id string) (any, error)
	hydrated() <-chan outcome
	pageState() pagination.PageState
	close()
}

type outcome struct {
	id      string
	outcome metrics.Outcome
	err     error
}

type controllerEngine[E record.Entity] struct {
	ctrl     *rsync.Controller[E]
	typeName string
	events   chan outcome
}

func newEngine[E record.Entity](ctx context.Context, client rsync.RemoteClient, typ record.Type[E], cfg *config.Config, h metrics.Handler) (engine, error) {
	ctrl, err := rsync.NewForType(ctx, client, typ, cfg.Filter, rsync.Config{
		EntityType:     typ.Name,
		PageSize:       cfg.PageSize,
		Hydration:      cfg.Hydration(),
		RequestTimeout: cfg.RequestTimeout,
	}, rsync.WithMetricsHandler[E](h))
	if err != nil {
		return nil, err
	}

	e := &controllerEngine[E]{ctrl: ctrl, typeName: typ.Name, events: make(chan outcome, 64)}
	go e.forward(ctx)
	return e, nil
}

func (e *controllerEngine[E]) forward(ctx context.Context) {
	defer close(e.events)
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-e.ctrl.Hydrated():
			select {
			case e.events <- outcome{id: res.ID, outcome: res.Outcome, err: res.Err}:
			default:
			}
		}
	}
}

func (e *controllerEngine[E]) loadNextPage(ctx context.Context) error {
	return e.ctrl.LoadNextPage(ctx)
}

func (e *controllerEngine[E]) entityType() string { return e.typeName }

func (e *controllerEngine[E]) waitForHydration(ctx context.Context) error {
	return e.ctrl.WaitForHydration(ctx)
}

func toAny[E any](in []E) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func (e *controllerEngine[E]) list() []any { return toAny(e.ctrl.List()) }

func (e *controllerEngine[E]) search(query string) []any { return toAny(e.ctrl.Search(query)) }

func (e *controllerEngine[E]) detail(ctx context.Context, id string) (any, error) {
	return e.ctrl.LoadDetail(ctx, id)
}

func (e *controllerEngine[E]) hydrated() <-chan outcome { return e.events }

func (e *controllerEngine[E]) pageState() pagination.PageState { return e.ctrl.PageState() }

func (e *controllerEngine[E]) close() { e.ctrl.Close() }

// runtime holds what every subcommand needs once flags are parsed.
type runtime struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     *config.Config
	session *auth.Session
	reader  *sdkmetric.ManualReader
	engine  engine
}

func (rt *runtime) init(cmd *cobra.Command) error {
	var searchPaths []string
	if p, _ := cmd.Flags().GetString("config-path"); p != "" {
		searchPaths = append(searchPaths, p)
	}
	cfg, err := config.Load(cmd.Flags(), searchPaths...)
	if err != nil {
		return err
	}
	rt.cfg = cfg

	ctx, err := logging.Init(cmd.Context(), cfg.LoggingOptions()...)
	if err != nil {
		return err
	}
	rt.ctx, rt.cancel = context.WithCancel(ctx)

	rt.session = auth.NewStaticSession(cfg.AccessToken)
	if !rt.session.Current().Authenticated {
		ctxzap.Extract(ctx).Warn("no access token configured; remote calls will fail as unauthenticated")
	}

	httpClient := uhttp.NewBaseHttpClient(
		uhttp.NewClient(cfg.RequestTimeout),
		uhttp.WithRateLimit(cfg.RequestsPerSecond),
		uhttp.WithPrintBody(cfg.DebugPrintBody),
	)
	client, err := remote.NewClient(cfg.RemoteBaseURL(), rt.session, httpClient)
	if err != nil {
		return err
	}

	rt.reader = sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(rt.reader))
	h := metrics.NewOtelHandler(rt.ctx, provider, "recordsync")

	switch strings.ToLower(cfg.EntityType) {
	case strings.ToLower(record.CustomerType.Name):
		rt.engine, err = newEngine(rt.ctx, client, record.CustomerType, cfg, h)
	case strings.ToLower(record.InvoiceType.Name):
		rt.engine, err = newEngine(rt.ctx, client, record.InvoiceType, cfg, h)
	case strings.ToLower(record.SalesOrderType.Name):
		rt.engine, err = newEngine(rt.ctx, client, record.SalesOrderType, cfg, h)
	default:
		err = fmt.Errorf("unsupported entity type %q", cfg.EntityType)
	}
	return err
}

func (rt *runtime) close() {
	if rt.engine != nil {
		rt.engine.close()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.ctx != nil {
		_ = ctxzap.Extract(rt.ctx).Sync()
	}
}

// logMetricSummary writes the collected counters at info level.
func (rt *runtime) logMetricSummary() {
	l := ctxzap.Extract(rt.ctx)

	var rm metricdata.ResourceMetrics
	if err := rt.reader.Collect(rt.ctx, &rm); err != nil {
		l.Warn("collecting metrics failed", zap.Error(err))
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				fields := []zap.Field{zap.String("metric", m.Name), zap.Int64("value", dp.Value)}
				for _, kv := range dp.Attributes.ToSlice() {
					fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
				}
				l.Info("metric", fields...)
			}
		}
	}
}
