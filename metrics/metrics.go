// Package metrics exposes Prometheus counters for the capture pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "hopper"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type Collector struct {
	gatherer prometheus.Gatherer

	Blocks            prometheus.Counter
	Retunes           prometheus.Counter
	RetuneFailures    prometheus.Counter
	SettlingDiscarded prometheus.Counter
	StaleDropped      prometheus.Counter
	OversizedChunks   prometheus.Counter
	Sweeps            prometheus.Counter
	QueueDrops        prometheus.Counter
	ExportedRecords   *prometheus.CounterVec
	SessionState      prometheus.Gauge
}

// NewCollector registers the pipeline metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.Blocks, "blocks_emitted_total", "Capture blocks handed to the sample queue."},
		{&c.Retunes, "retunes_total", "Successful retunes."},
		{&c.RetuneFailures, "retune_failures_total", "Failed retune attempts, including retried ones."},
		{&c.SettlingDiscarded, "settling_samples_discarded_total", "Samples discarded while the tuner settled."},
		{&c.StaleDropped, "stale_samples_dropped_total", "Samples dropped because they were captured at a frequency whose block was already complete."},
		{&c.OversizedChunks, "oversized_chunks_total", "Device chunks at least one full block long."},
		{&c.Sweeps, "sweeps_total", "Completed sweeps of the frequency plan."},
		{&c.QueueDrops, "queue_drops_total", "Blocks dropped because the sample queue was full."},
	}
	for _, ctr := range counters {
		got, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      ctr.name,
			Help:      ctr.help,
		}))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", ctr.name, err)
		}
		*ctr.dst = got
	}

	exported := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exported_records_total",
		Help:      "Records handled by the exporter, labeled by outcome.",
	}, []string{"outcome"})
	if err := reg.Register(exported); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register exported_records_total: %w", err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("exported_records_total registered with unexpected type %T", are.ExistingCollector)
		}
		exported = existing
	}
	c.ExportedRecords = exported

	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_state",
		Help:      "Streaming session state (0 illegal, 1 streaming, 2 done).",
	})
	if err := reg.Register(state); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register session_state: %w", err)
		}
		existing, ok := are.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, fmt.Errorf("session_state registered with unexpected type %T", are.ExistingCollector)
		}
		state = existing
	}
	c.SessionState = state

	return c, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("registered with unexpected type %T", are.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (c *Collector) BlockEmitted() {
	if c == nil {
		return
	}
	c.Blocks.Inc()
}

func (c *Collector) Retuned() {
	if c == nil {
		return
	}
	c.Retunes.Inc()
}

func (c *Collector) RetuneFailed() {
	if c == nil {
		return
	}
	c.RetuneFailures.Inc()
}

func (c *Collector) Discarded(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.SettlingDiscarded.Add(float64(n))
}

func (c *Collector) Stale(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.StaleDropped.Add(float64(n))
}

func (c *Collector) Oversized() {
	if c == nil {
		return
	}
	c.OversizedChunks.Inc()
}

func (c *Collector) SweepCompleted() {
	if c == nil {
		return
	}
	c.Sweeps.Inc()
}

func (c *Collector) QueueDropped() {
	if c == nil {
		return
	}
	c.QueueDrops.Inc()
}

// Exported counts one record handled by an exporter.
func (c *Collector) Exported(outcome string) {
	if c == nil {
		return
	}
	c.ExportedRecords.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetState(v int) {
	if c == nil {
		return
	}
	c.SessionState.Set(float64(v))
}

// Handler serves the gathered metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Mount exposes the metrics handler on r under /metrics.
func (c *Collector) Mount(r gin.IRoutes) {
	r.GET("/metrics", gin.WrapH(c.Handler()))
}
