// Package metrics exports player counts and bot activity to OpenTelemetry
// and Mackerel.
package metrics

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/masahide/mcpanel/pkg/mcstatus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "mcpanel"

type Options struct {
	// OTLP endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
	OtelEnabled  bool          `envconfig:"OTEL_ENABLED" default:"false"`
	OtelInterval time.Duration `envconfig:"OTEL_INTERVAL" default:"60s"`

	MackerelHostID string `envconfig:"MACKEREL_HOST_ID"`
	MackerelAPIKey string `envconfig:"MACKEREL_API_KEY"`
}

// SetupMeter returns the meter all instruments are created on. Without
// OTEL_ENABLED nothing is exported, but instruments still work.
func SetupMeter(ctx context.Context, e Options) (metric.Meter, func(context.Context) error, error) {
	if !e.OtelEnabled {
		mp := sdkMetric.NewMeterProvider()
		return mp.Meter(meterName), mp.Shutdown, nil
	}
	exp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	interval := e.OtelInterval
	if interval <= 0 {
		interval = time.Minute
	}
	reader := sdkMetric.NewPeriodicReader(exp, sdkMetric.WithInterval(interval))
	mp := sdkMetric.NewMeterProvider(sdkMetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	return mp.Meter(meterName), mp.Shutdown, nil
}

// Recorder holds the last polled count for the gauges and the counters for
// polls and panel placements.
type Recorder struct {
	server attribute.KeyValue

	mu     sync.Mutex
	counts mcstatus.PlayerCount
	source string

	pollFailures metric.Int64Counter
	created      metric.Int64Counter
	edited       metric.Int64Counter

	mackerel *Mackerel
	posting  atomic.Bool
	wg       sync.WaitGroup
}

// NewRecorder registers the instruments on meter. mkr may be nil.
func NewRecorder(meter metric.Meter, server string, mkr *Mackerel) (*Recorder, error) {
	r := &Recorder{server: attribute.String("server", server), mackerel: mkr}
	var err error
	if r.pollFailures, err = meter.Int64Counter("mcpanel.poll.failures", metric.WithDescription("status queries that failed")); err != nil {
		return nil, err
	}
	if r.created, err = meter.Int64Counter("mcpanel.panel.created", metric.WithDescription("panel messages created")); err != nil {
		return nil, err
	}
	if r.edited, err = meter.Int64Counter("mcpanel.panel.edited", metric.WithDescription("panel messages edited in place")); err != nil {
		return nil, err
	}

	// 収集タイミング毎にコールバックで現在値を返す
	onlineGauge, err := meter.Int64ObservableGauge("mcpanel.players.online")
	if err != nil {
		return nil, err
	}
	maxGauge, err := meter.Int64ObservableGauge("mcpanel.players.max")
	if err != nil {
		return nil, err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		r.mu.Lock()
		c, src := r.counts, r.source
		r.mu.Unlock()
		if !c.Known() {
			return nil
		}
		attrs := metric.WithAttributeSet(attribute.NewSet(r.server, attribute.String("source", src)))
		o.ObserveInt64(onlineGauge, int64(*c.Online), attrs)
		o.ObserveInt64(maxGauge, int64(*c.Max), attrs)
		return nil
	}, onlineGauge, maxGauge)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Observe stores a successful poll. Known counts are also posted to Mackerel.
func (r *Recorder) Observe(ctx context.Context, source string, c mcstatus.PlayerCount) {
	r.mu.Lock()
	r.counts, r.source = c, source
	r.mu.Unlock()
	if r.mackerel != nil && c.Known() {
		r.postMackerel(c, time.Now())
	}
}

// postMackerel posts in the background so a slow Mackerel never holds up a
// poll. Counts observed while a post is in flight are not sent.
func (r *Recorder) postMackerel(c mcstatus.PlayerCount, now time.Time) {
	if !r.posting.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.posting.Store(false)
		if err := r.mackerel.Post(c, now); err != nil {
			log.Printf("Error posting metrics to Mackerel: %s", err)
		}
	}()
}

// PollFailed counts a failed query. The gauges stop reporting until the
// next successful poll.
func (r *Recorder) PollFailed(ctx context.Context, source string) {
	r.mu.Lock()
	r.counts = mcstatus.Unknown()
	r.mu.Unlock()
	r.pollFailures.Add(ctx, 1, metric.WithAttributes(r.server, attribute.String("source", source)))
}

func (r *Recorder) PanelCreated(ctx context.Context) {
	r.created.Add(ctx, 1, metric.WithAttributes(r.server))
}

func (r *Recorder) PanelEdited(ctx context.Context) {
	r.edited.Add(ctx, 1, metric.WithAttributes(r.server))
}
