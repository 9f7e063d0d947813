package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/orbit-scene/internal/logging"
)

const sessionMetadataKey = "x-session-id"

// SessionUnaryServerInterceptor puts a session ID on the context, taking it
// from inbound metadata when the caller sent one, and logs each call with it.
func SessionUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(sessionMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithSessionID(ctx, vals[0])
			}
		}
		ctx, log := logging.WithSessionLogger(ctx, base.With(logging.String("method", info.FullMethod)))

		resp, err := handler(ctx, req)
		log.Debug(ctx, "rpc handled", logging.String("code", status.Code(err).String()))
		return resp, err
	}
}

// TracingUnaryServerInterceptor names the active server span after the RPC
// and tags it with rpc attributes and the session ID. A span is started when
// no stats handler created one.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := Tracer("grpc")

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := SplitMethod(info.FullMethod)
		name := service + "/" + method

		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(name)
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		}
		if id := logging.SessionIDFromContext(ctx); id != "" {
			attrs = append(attrs, attribute.String("session_id", id))
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		if created {
			span.End()
		}
		return resp, err
	}
}
