package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Collector struct {
	reg *prometheus.Registry

	PlayerEvents *prometheus.CounterVec // type label: PLAY|PAUSE|POSITION
	OffsetTime   prometheus.Gauge       // seconds

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	JourneyDuration  prometheus.Gauge // seconds
	JourneyPositions prometheus.Gauge
	JourneyChapters  prometheus.Gauge
	TickInterval     prometheus.Gauge // seconds
}

// JourneyInfo is what the collector reports about the loaded journey.
type JourneyInfo struct {
	Duration  time.Duration
	Positions int
	Chapters  int
}

func NewCollector(info JourneyInfo, tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PlayerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_player_events_total",
			Help: "Player events emitted, by type.",
		}, []string{"type"}),
		OffsetTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_player_offset_seconds",
			Help: "Playback offset of the last POSITION event.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_tick_duration_seconds",
			Help:    "Time spent interpolating and dispatching one player tick.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		JourneyDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_journey_duration_seconds",
			Help: "Duration of the loaded journey.",
		}),
		JourneyPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_journey_positions",
			Help: "Number of positions in the loaded journey.",
		}),
		JourneyChapters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_journey_chapters",
			Help: "Number of chapters in the loaded journey.",
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_tick_interval_seconds",
			Help: "Player tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.PlayerEvents, c.OffsetTime,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.TickDuration, c.PublishDuration,
		c.JourneyDuration, c.JourneyPositions, c.JourneyChapters, c.TickInterval,
	)

	c.JourneyDuration.Set(info.Duration.Seconds())
	c.JourneyPositions.Set(float64(info.Positions))
	c.JourneyChapters.Set(float64(info.Chapters))
	c.TickInterval.Set(tickInterval.Seconds())

	return c
}

func (c *Collector) PlayerEventInc(eventType string) { c.PlayerEvents.WithLabelValues(eventType).Inc() }
func (c *Collector) PlayerOffsetSet(ms float64) { c.OffsetTime.Set(ms / 1000) }
func (c *Collector) TickObserve(d time.Duration) { c.TickDuration.Observe(d.Seconds()) }

func (c *Collector) NATSPublishedInc() { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) {
	c.PublishDuration.Observe(d.Seconds())
}

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	return srv
}
