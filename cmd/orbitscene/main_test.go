package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/orbit-scene/internal/logging"
	"github.com/signalsfoundry/orbit-scene/internal/observability"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return lis
}

func TestOrbitSceneStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcLis, httpLis := listen(t), listen(t)
	cfg := Config{
		AssetsDir: t.TempDir(),
		FPS:       120,
	}
	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, grpcLis, httpLis)
	}()

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	for {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("health never reported SERVING: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	base := "http://" + httpLis.Addr().String()
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var status struct {
		State string `json:"state"`
		Frame uint64 `json:"frame"`
	}
	err = json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode /healthz: %v", err)
	}
	if status.State != "running" || status.Frame == 0 {
		t.Fatalf("healthz = %+v", status)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, name := range []string{"orbitscene_frames_total", "orbitscene_grpc_requests_total", "orbitscene_viewers_connected"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("/metrics missing %s", name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRunRejectsMissingScene(t *testing.T) {
	cfg := Config{ScenePath: "does-not-exist.toml", FPS: 60}
	if err := run(context.Background(), cfg, logging.Noop(), nil, nil); err == nil {
		t.Fatalf("expected error for missing scene file")
	}
}

func TestRunRejectsBadTracingEnv(t *testing.T) {
	t.Setenv(observability.EnvTracingSampleRatio, "lots")
	cfg := Config{FPS: 60}
	err := run(context.Background(), cfg, logging.Noop(), nil, nil)
	if !errors.Is(err, observability.ErrTracingConfig) {
		t.Fatalf("err = %v, want ErrTracingConfig", err)
	}
}
