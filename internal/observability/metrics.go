package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Asset status label values.
const (
	AssetPending = "pending"
	AssetReady   = "ready"
	AssetFailed  = "failed"
)

// FrameCollector bundles Prometheus metrics for the frame loop, asset loads
// and the gRPC health surface.
type FrameCollector struct {
	gatherer prometheus.Gatherer

	Frames        prometheus.Counter
	FrameDuration prometheus.Histogram
	RenderErrors  prometheus.Counter

	Assets     *prometheus.GaugeVec
	AssetLoads *prometheus.CounterVec

	RPCRequests *prometheus.CounterVec
}

// NewFrameCollector registers frame metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewFrameCollector(reg prometheus.Registerer) (*FrameCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frames, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitscene_frames_total",
		Help: "Total number of frame ticks performed.",
	}), "orbitscene_frames_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitscene_frame_duration_seconds",
		Help:    "Time spent inside one frame tick, including render submission.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.033, 0.05, 0.1},
	}), "orbitscene_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	renderErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitscene_render_errors_total",
		Help: "Total number of frames the renderer failed to submit.",
	}), "orbitscene_render_errors_total")
	if err != nil {
		return nil, err
	}

	assets, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orbitscene_assets",
		Help: "Number of external assets, labeled by load status.",
	}, []string{"status"}), "orbitscene_assets")
	if err != nil {
		return nil, err
	}

	loads, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitscene_asset_loads_total",
		Help: "Completed asset loads, labeled by asset and outcome.",
	}, []string{"asset", "outcome"}), "orbitscene_asset_loads_total")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitscene_grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "orbitscene_grpc_requests_total")
	if err != nil {
		return nil, err
	}

	return &FrameCollector{
		gatherer:      gatherer,
		Frames:        frames,
		FrameDuration: duration,
		RenderErrors:  renderErrors,
		Assets:        assets,
		AssetLoads:    loads,
		RPCRequests:   requests,
	}, nil
}

// ObserveFrame records one completed tick.
func (c *FrameCollector) ObserveFrame(d time.Duration) {
	if c == nil {
		return
	}
	if c.Frames != nil {
		c.Frames.Inc()
	}
	if c.FrameDuration != nil {
		c.FrameDuration.Observe(d.Seconds())
	}
}

// SetAssetCounts sets the per-status asset gauges.
func (c *FrameCollector) SetAssetCounts(pending, ready, failed int) {
	if c == nil || c.Assets == nil {
		return
	}
	c.Assets.WithLabelValues(AssetPending).Set(float64(pending))
	c.Assets.WithLabelValues(AssetReady).Set(float64(ready))
	c.Assets.WithLabelValues(AssetFailed).Set(float64(failed))
}

// IncAssetLoad counts one settled load. outcome is "ready" or "failed".
func (c *FrameCollector) IncAssetLoad(asset, outcome string) {
	if c == nil || c.AssetLoads == nil {
		return
	}
	c.AssetLoads.WithLabelValues(asset, outcome).Inc()
}

// IncRenderErrors counts one failed render submission.
func (c *FrameCollector) IncRenderErrors() {
	if c == nil || c.RenderErrors == nil {
		return
	}
	c.RenderErrors.Inc()
}

// UnaryServerInterceptor records request counts for unary RPCs.
func (c *FrameCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)

		if c == nil || c.RPCRequests == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()

		return resp, err
	}
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *FrameCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FrameCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
