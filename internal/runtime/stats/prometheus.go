package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type exporter struct {
	pipelineSeconds *prometheus.HistogramVec
	eventSeconds    prometheus.Histogram
}

func newExporter() *exporter {
	return &exporter{
		pipelineSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "logflow",
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "Time spent by events in a pipeline, excluding nested pipelines",
				Buckets:   []float64{.00001, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"pipeline"},
		),
		eventSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logflow",
			Subsystem: "events",
			Name:      "lifetime_seconds",
			Help:      "Time between event creation and end of life",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (e *exporter) observePipeline(name string, d time.Duration) {
	e.pipelineSeconds.WithLabelValues(name).Observe(d.Seconds())
}

func (e *exporter) observeEvent(d time.Duration) {
	e.eventSeconds.Observe(d.Seconds())
}

// Collector exposes a Stats through Prometheus. Counters are read at scrape
// time and include what Stats.Reset cleared, so they stay monotonic.
type Collector struct {
	mu         sync.Mutex
	stats      *Stats
	registerer prometheus.Registerer
	registered bool
}

// NewCollector binds s to registerer, falling back to the default registerer.
func NewCollector(s *Stats, registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Collector{stats: s, registerer: registerer}
}

func (c *Collector) counter(name, help string, idx int) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "logflow",
		Subsystem: "events",
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(c.stats.total(idx)) })
}

// Register registers the collectors. Safe to call multiple times.
func (c *Collector) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registered {
		return nil
	}

	s := c.stats
	collectors := []prometheus.Collector{
		c.counter("received_total", "Units accepted by receivers", counterReceived),
		c.counter("dropped_total", "Events discarded before being sent", counterDropped),
		c.counter("sent_total", "Events transmitted by senders", counterSent),
		c.counter("failed_total", "Processing and decode errors", counterFailed),
		c.counter("thrown_total", "Unexpected processor failures", counterThrown),
		c.counter("blocked_total", "Hand-offs that could not complete", counterBlocked),
		c.counter("failed_send_total", "Encode or transmit failures", counterFailedSend),
		c.counter("failed_received_total", "Receiver failures", counterFailedReceived),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "logflow",
			Subsystem: "events",
			Name:      "in_flight",
			Help:      "Events started and not yet finished",
		}, func() float64 { return float64(s.inFlight.Load()) }),
		s.exporter.pipelineSeconds,
		s.exporter.eventSeconds,
	}

	for _, col := range collectors {
		if err := c.registerer.Register(col); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	c.registered = true
	return nil
}
