package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ViewerCollector exposes websocket viewer metrics.
type ViewerCollector struct {
	gatherer prometheus.Gatherer

	Connected        prometheus.Gauge
	FramesDropped    prometheus.Counter
	InboundMessages  *prometheus.CounterVec
	InboundThrottled prometheus.Counter
	EncodeDuration   prometheus.Histogram
}

// NewViewerCollector registers viewer metrics against the provided registerer.
func NewViewerCollector(reg prometheus.Registerer) (*ViewerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	connected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitscene_viewers_connected",
		Help: "Number of websocket viewers currently connected.",
	}), "orbitscene_viewers_connected")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitscene_viewer_frames_dropped_total",
		Help: "Frames skipped for viewers whose send queue was full.",
	}), "orbitscene_viewer_frames_dropped_total")
	if err != nil {
		return nil, err
	}

	inbound, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitscene_viewer_messages_total",
		Help: "Inbound viewer messages, labeled by message type.",
	}, []string{"type"}), "orbitscene_viewer_messages_total")
	if err != nil {
		return nil, err
	}

	throttled, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitscene_viewer_messages_throttled_total",
		Help: "Inbound viewer messages discarded by the per-connection rate limit.",
	}), "orbitscene_viewer_messages_throttled_total")
	if err != nil {
		return nil, err
	}

	encode, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitscene_viewer_encode_duration_seconds",
		Help:    "Time spent encoding one frame message.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	}), "orbitscene_viewer_encode_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &ViewerCollector{
		gatherer:         gatherer,
		Connected:        connected,
		FramesDropped:    dropped,
		InboundMessages:  inbound,
		InboundThrottled: throttled,
		EncodeDuration:   encode,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ViewerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetConnected updates the connected viewer gauge.
func (c *ViewerCollector) SetConnected(n int) {
	if c == nil || c.Connected == nil {
		return
	}
	c.Connected.Set(float64(n))
}

// IncDropped counts one frame skipped for a slow viewer.
func (c *ViewerCollector) IncDropped() {
	if c == nil || c.FramesDropped == nil {
		return
	}
	c.FramesDropped.Inc()
}

// IncInbound counts one accepted inbound message of the given type.
func (c *ViewerCollector) IncInbound(kind string) {
	if c == nil || c.InboundMessages == nil {
		return
	}
	c.InboundMessages.WithLabelValues(kind).Inc()
}

// IncThrottled counts one inbound message rejected by the rate limit.
func (c *ViewerCollector) IncThrottled() {
	if c == nil || c.InboundThrottled == nil {
		return
	}
	c.InboundThrottled.Inc()
}

// ObserveEncode records the time spent encoding one frame.
func (c *ViewerCollector) ObserveEncode(d time.Duration) {
	if c == nil || c.EncodeDuration == nil {
		return
	}
	c.EncodeDuration.Observe(d.Seconds())
}
