package metrics

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// instruments is shared by every tagged view of one handler so that the same
// metric name always maps to one otel instrument.
type instruments struct {
	meter otelmetric.Meter

	mu       sync.Mutex
	counters map[string]otelmetric.Int64Counter
	histos   map[string]otelmetric.Int64Histogram
	gauges   map[string]*syncInt64Gauge
}

type otelHandler struct {
	inst *instruments
	tags map[string]string
}

func toAttrs(base map[string]string, tags map[string]string) attribute.Set {
	kvs := make([]attribute.KeyValue, 0, len(base)+len(tags))
	for k, v := range base {
		if _, ok := tags[k]; ok {
			continue
		}
		kvs = append(kvs, attribute.String(k, v))
	}
	for k, v := range tags {
		kvs = append(kvs, attribute.String(k, v))
	}
	return attribute.NewSet(kvs...)
}

type otelInt64Counter struct {
	c    otelmetric.Int64Counter
	base map[string]string
}

func (o *otelInt64Counter) Add(ctx context.Context, value int64, tags map[string]string) {
	o.c.Add(ctx, value, otelmetric.WithAttributeSet(toAttrs(o.base, tags)))
}

type otelInt64Histogram struct {
	h    otelmetric.Int64Histogram
	base map[string]string
}

func (o *otelInt64Histogram) Record(ctx context.Context, value int64, tags map[string]string) {
	o.h.Record(ctx, value, otelmetric.WithAttributeSet(toAttrs(o.base, tags)))
}

// syncInt64Gauge keeps the last observed value and reports it from the meter
// callback. Tags on the last observation win.
type syncInt64Gauge struct {
	value atomic.Int64
	attrs atomic.Pointer[attribute.Set]
	gauge otelmetric.Int64ObservableGauge
}

type taggedGauge struct {
	g    *syncInt64Gauge
	base map[string]string
}

func (t *taggedGauge) Observe(_ context.Context, value int64, tags map[string]string) {
	set := toAttrs(t.base, tags)
	t.g.attrs.Store(&set)
	t.g.value.Store(value)
}

var (
	_ Int64Counter   = (*otelInt64Counter)(nil)
	_ Int64Histogram = (*otelInt64Histogram)(nil)
	_ Int64Gauge     = (*taggedGauge)(nil)
)

func (h *otelHandler) Int64Counter(name string, description string, unit Unit) Int64Counter {
	i := h.inst
	i.mu.Lock()
	defer i.mu.Unlock()

	name = strings.ToLower(name)
	c, ok := i.counters[name]
	if !ok {
		var err error
		c, err = i.meter.Int64Counter(name, otelmetric.WithDescription(description), otelmetric.WithUnit(string(unit)))
		if err != nil {
			panic(err)
		}
		i.counters[name] = c
	}
	return &otelInt64Counter{c: c, base: h.tags}
}

func (h *otelHandler) Int64Histogram(name string, description string, unit Unit) Int64Histogram {
	i := h.inst
	i.mu.Lock()
	defer i.mu.Unlock()

	name = strings.ToLower(name)
	c, ok := i.histos[name]
	if !ok {
		var err error
		c, err = i.meter.Int64Histogram(name, otelmetric.WithDescription(description), otelmetric.WithUnit(string(unit)))
		if err != nil {
			panic(err)
		}
		i.histos[name] = c
	}
	return &otelInt64Histogram{h: c, base: h.tags}
}

func (h *otelHandler) Int64Gauge(name string, description string, unit Unit) Int64Gauge {
	i := h.inst
	i.mu.Lock()
	defer i.mu.Unlock()

	name = strings.ToLower(name)
	if g, ok := i.gauges[name]; ok {
		return &taggedGauge{g: g, base: h.tags}
	}

	og, err := i.meter.Int64ObservableGauge(name, otelmetric.WithDescription(description), otelmetric.WithUnit(string(unit)))
	if err != nil {
		panic(err)
	}
	g := &syncInt64Gauge{gauge: og}

	_, err = i.meter.RegisterCallback(func(_ context.Context, observer otelmetric.Observer) error {
		var opts []otelmetric.ObserveOption
		if set := g.attrs.Load(); set != nil {
			opts = append(opts, otelmetric.WithAttributeSet(*set))
		}
		observer.ObserveInt64(g.gauge, g.value.Load(), opts...)
		return nil
	}, og)
	if err != nil {
		panic(err)
	}

	i.gauges[name] = g
	return &taggedGauge{g: g, base: h.tags}
}

func (h *otelHandler) WithTags(tags map[string]string) Handler {
	merged := make(map[string]string, len(h.tags)+len(tags))
	for k, v := range h.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return &otelHandler{inst: h.inst, tags: merged}
}

func NewOtelHandler(_ context.Context, provider otelmetric.MeterProvider, name string) Handler {
	return &otelHandler{
		inst: &instruments{
			meter:    provider.Meter(name),
			counters: make(map[string]otelmetric.Int64Counter),
			histos:   make(map[string]otelmetric.Int64Histogram),
			gauges:   make(map[string]*syncInt64Gauge),
		},
	}
}

var _ Handler = (*otelHandler)(nil)
