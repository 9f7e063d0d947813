package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestObserveFrameRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFrameCollector(reg)
	if err != nil {
		t.Fatalf("NewFrameCollector: %v", err)
	}

	collector.ObserveFrame(2 * time.Millisecond)
	collector.ObserveFrame(3 * time.Millisecond)

	if got := testutil.ToFloat64(collector.Frames); got != 2 {
		t.Fatalf("orbitscene_frames_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "orbitscene_frame_duration_seconds", nil); count != 2 {
		t.Fatalf("orbitscene_frame_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestAssetMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFrameCollector(reg)
	if err != nil {
		t.Fatalf("NewFrameCollector: %v", err)
	}

	collector.SetAssetCounts(0, 1, 1)
	collector.IncAssetLoad("shuttle", AssetReady)
	collector.IncAssetLoad("satellite", AssetFailed)
	collector.IncRenderErrors()

	if got := testutil.ToFloat64(collector.Assets.WithLabelValues(AssetFailed)); got != 1 {
		t.Fatalf("orbitscene_assets{status=failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Assets.WithLabelValues(AssetPending)); got != 0 {
		t.Fatalf("orbitscene_assets{status=pending} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(collector.AssetLoads.WithLabelValues("satellite", AssetFailed)); got != 1 {
		t.Fatalf("orbitscene_asset_loads_total{satellite,failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RenderErrors); got != 1 {
		t.Fatalf("orbitscene_render_errors_total = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *FrameCollector
	c.ObserveFrame(time.Millisecond)
	c.SetAssetCounts(1, 2, 3)
	c.IncAssetLoad("x", AssetReady)
	c.IncRenderErrors()

	var v *ViewerCollector
	v.SetConnected(3)
	v.IncDropped()
	v.IncInbound("resize")
	v.IncThrottled()
	v.ObserveEncode(time.Millisecond)
}

func TestRegisteringTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewFrameCollector(reg)
	if err != nil {
		t.Fatalf("NewFrameCollector: %v", err)
	}
	second, err := NewFrameCollector(reg)
	if err != nil {
		t.Fatalf("second NewFrameCollector: %v", err)
	}
	second.ObserveFrame(time.Millisecond)
	if got := testutil.ToFloat64(first.Frames); got != 1 {
		t.Fatalf("shared frames counter = %v, want 1", got)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewFrameCollector(reg)
	if err != nil {
		t.Fatalf("NewFrameCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("grpc requests NotFound = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("grpc requests OK = %v, want 1", got)
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"":                             {"unknown", "unknown"},
		"/grpc.health.v1.Health/Check": {"Health", "Check"},
		"Health":                       {"unknown", "unknown"},
		"/Health/":                     {"Health", "unknown"},
	}
	for in, want := range cases {
		svc, m := SplitMethod(in)
		if svc != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", in, svc, m, want[0], want[1])
		}
	}
}

func TestMetricsHandlerExposesFrameAndViewerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	frames, err := NewFrameCollector(reg)
	if err != nil {
		t.Fatalf("NewFrameCollector: %v", err)
	}
	viewers, err := NewViewerCollector(reg)
	if err != nil {
		t.Fatalf("NewViewerCollector: %v", err)
	}
	frames.ObserveFrame(time.Millisecond)
	frames.SetAssetCounts(2, 0, 0)
	viewers.SetConnected(3)
	viewers.IncInbound("resize")
	viewers.ObserveEncode(time.Microsecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	frames.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"orbitscene_frames_total 1",
		"orbitscene_frame_duration_seconds",
		`orbitscene_assets{status="pending"} 2`,
		"orbitscene_viewers_connected 3",
		`orbitscene_viewer_messages_total{type="resize"} 1`,
		"orbitscene_viewer_encode_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
