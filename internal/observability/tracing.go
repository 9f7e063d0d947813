package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/orbit-scene/internal/logging"
)

const (
	instrumentationPrefix = "github.com/signalsfoundry/orbit-scene/"
	defaultServiceName    = "orbitscene"
	defaultOTLPEndpoint   = "localhost:4317"
)

// Span attribute keys shared by the loader and the simulation.
const (
	AttrAssetName    = attribute.Key("asset.name")
	AttrAssetURL     = attribute.Key("asset.url")
	AttrAssetOutcome = attribute.Key("asset.outcome")
	AttrSceneBodies  = attribute.Key("scene.bodies")
	AttrSceneAssets  = attribute.Key("scene.assets")
	AttrSceneFPS     = attribute.Key("scene.fps")
)

// ErrTracingConfig wraps malformed tracing settings.
var ErrTracingConfig = errors.New("invalid tracing config")

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64

	// Writer receives stdout spans; nil means os.Stdout.
	Writer io.Writer
	// Attributes describe the served scene on the tracer resource.
	Attributes []attribute.KeyValue
}

// Environment variables read by TracingConfigFromEnv. They share the
// ORBITSCENE prefix with the scene overrides.
const (
	EnvTracingEnabled     = "ORBITSCENE_TRACING_ENABLED"
	EnvTracingExporter    = "ORBITSCENE_TRACING_EXPORTER"
	EnvTracingServiceName = "ORBITSCENE_TRACING_SERVICE_NAME"
	EnvTracingSampleRatio = "ORBITSCENE_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint       = "ORBITSCENE_TRACING_ENDPOINT"
)

// TracingConfigFromEnv reads tracing settings from ORBITSCENE_TRACING_*.
// Unset values take defaults; malformed ones are errors.
func TracingConfigFromEnv() (TracingConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("ORBITSCENE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("tracing.enabled", "false")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.service_name", defaultServiceName)
	v.SetDefault("tracing.sample_ratio", "1")
	v.SetDefault("tracing.endpoint", "")

	cfg := TracingConfig{
		ServiceName: v.GetString("tracing.service_name"),
		Exporter:    strings.ToLower(v.GetString("tracing.exporter")),
		Endpoint:    v.GetString("tracing.endpoint"),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}

	enabled, err := strconv.ParseBool(v.GetString("tracing.enabled"))
	if err != nil {
		return TracingConfig{}, fmt.Errorf("%w: %s: %v", ErrTracingConfig, EnvTracingEnabled, err)
	}
	cfg.Enabled = enabled

	raw := v.GetString("tracing.sample_ratio")
	if cfg.SampleRatio, err = strconv.ParseFloat(raw, 64); err != nil {
		return TracingConfig{}, fmt.Errorf("%w: %s: %v", ErrTracingConfig, EnvTracingSampleRatio, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the exporter and sample ratio.
func (c TracingConfig) Validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("%w: sample ratio %v outside [0,1]", ErrTracingConfig, c.SampleRatio)
	}
	switch strings.ToLower(c.Exporter) {
	case "", "stdout", "otlp", "otlpgrpc":
		return nil
	default:
		return fmt.Errorf("%w: unsupported exporter %q", ErrTracingConfig, c.Exporter)
	}
}

// SceneAttributes describes a served scene for the tracer resource.
func SceneAttributes(bodies, assets, fps int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSceneBodies.Int(bodies),
		AttrSceneAssets.Int(assets),
		AttrSceneFPS.Int(fps),
	}
}

// AssetAttributes tags a span with the asset being loaded.
func AssetAttributes(name, url string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAssetName.String(name),
		AttrAssetURL.String(url),
	}
}

// TracerName returns the instrumentation name for a component of this
// module, e.g. "loader".
func TracerName(component string) string {
	return instrumentationPrefix + component
}

// Tracer returns the global tracer for component.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(TracerName(component))
}

// InitTracing installs the global tracer provider and propagators. When
// tracing is disabled a noop provider is installed. The returned function
// flushes pending spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "orbit-scene"),
	}, cfg.Attributes...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("sampler", fmt.Sprintf("parentbased_traceidratio_%0.2f", cfg.SampleRatio)),
	)

	return tp.Shutdown, nil
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("%w: unsupported exporter %q", ErrTracingConfig, cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans within five seconds. Failures are
// logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
