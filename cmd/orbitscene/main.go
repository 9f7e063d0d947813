package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/orbit-scene/internal/config"
	"github.com/signalsfoundry/orbit-scene/internal/logging"
	"github.com/signalsfoundry/orbit-scene/internal/observability"
	"github.com/signalsfoundry/orbit-scene/internal/sim"
	"github.com/signalsfoundry/orbit-scene/internal/viewer"
	"github.com/signalsfoundry/orbit-scene/loader"
	"github.com/signalsfoundry/orbit-scene/timectrl"
)

// Config holds the process settings taken from flags.
type Config struct {
	ScenePath   string
	HTTPAddress string
	GRPCAddress string
	AssetsDir   string
	FPS         int
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ScenePath, "config", "", "Path to a scene file (toml, yaml or json); the built-in scene is used when empty")
	flag.StringVar(&cfg.HTTPAddress, "http-addr", ":8080", "HTTP address for viewers, /metrics and /healthz")
	flag.StringVar(&cfg.GRPCAddress, "grpc-addr", ":50051", "TCP address of the gRPC health service")
	flag.StringVar(&cfg.AssetsDir, "assets", "assets", "Directory holding textures and models")
	flag.IntVar(&cfg.FPS, "fps", 60, "Frame rate of the simulation clock")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	runErr := run(ctx, cfg, log, nil, nil)
	stop()
	if runErr != nil {
		log.Error(context.Background(), "orbitscene exited", logging.Err(runErr))
		os.Exit(1)
	}
}

// run serves the scene until ctx ends. Nil listeners are opened from the
// configured addresses.
func run(ctx context.Context, cfg Config, log logging.Logger, grpcLis, httpLis net.Listener) error {
	def, err := config.Load(cfg.ScenePath)
	if err != nil {
		return fmt.Errorf("load scene: %w", err)
	}

	reg := prometheus.NewRegistry()
	frames, err := observability.NewFrameCollector(reg)
	if err != nil {
		return fmt.Errorf("frame metrics: %w", err)
	}
	viewers, err := observability.NewViewerCollector(reg)
	if err != nil {
		return fmt.Errorf("viewer metrics: %w", err)
	}

	world, err := sim.Compose(def)
	if err != nil {
		return fmt.Errorf("compose scene: %w", err)
	}

	tracing, err := observability.TracingConfigFromEnv()
	if err != nil {
		return err
	}
	tracing.Attributes = observability.SceneAttributes(len(def.Bodies), len(world.State.Assets), cfg.FPS)
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	ld := loader.New(loader.NewGLTFFetcher(cfg.AssetsDir), log)
	hub := viewer.NewHub(log, viewer.WithMetrics(viewers))
	s := sim.New(world, ld, hub, log, sim.WithMetrics(frames))
	defer s.Close()
	hub.Bind(s)

	clock := timectrl.NewFrameClockFPS(cfg.FPS)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	var serving sync.Once
	clock.AddListener(func(frame uint64) {
		s.Tick(ctx, frame)
		serving.Do(func() {
			healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		})
	})

	if grpcLis == nil {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCAddress); err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddress, err)
		}
	}
	if httpLis == nil {
		if httpLis, err = net.Listen("tcp", cfg.HTTPAddress); err != nil {
			_ = grpcLis.Close()
			return fmt.Errorf("listen http %s: %w", cfg.HTTPAddress, err)
		}
	}

	grpcSrv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			observability.SessionUnaryServerInterceptor(log),
			observability.TracingUnaryServerInterceptor(),
			frames.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	httpSrv := &http.Server{
		Handler:           newMux(cfg, frames, hub, clock),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info(ctx, "starting orbitscene",
		logging.String("http_addr", httpLis.Addr().String()),
		logging.String("grpc_addr", grpcLis.Addr().String()),
		logging.Int("bodies", len(def.Bodies)),
		logging.Int("fps", cfg.FPS),
	)
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server exited", logging.Err(err))
		}
	}()

	s.Start(ctx)
	err = clock.Run(ctx)

	log.Info(context.Background(), "shutting down orbitscene", logging.Uint64("frames", clock.Frame()))
	healthSrv.Shutdown()
	hub.Close()
	grpcSrv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	ld.Wait()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func newMux(cfg Config, frames *observability.FrameCollector, hub *viewer.Hub, clock *timectrl.FrameClock) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", frames.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			State   string `json:"state"`
			Frame   uint64 `json:"frame"`
			Viewers int    `json:"viewers"`
		}{clock.State().String(), clock.Frame(), hub.Clients()})
	})
	if cfg.AssetsDir != "" {
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.AssetsDir))))
	}
	return mux
}
