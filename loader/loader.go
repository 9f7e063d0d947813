// Package loader fetches external models off the frame goroutine and hands
// the outcome back as a message. Each Load call produces exactly one Result;
// there is no progress signal, retry or cancellation beyond the context.
package loader

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orbit-scene/internal/logging"
	"github.com/signalsfoundry/orbit-scene/internal/observability"
	"github.com/signalsfoundry/orbit-scene/model"
	"github.com/signalsfoundry/orbit-scene/scene"
)

const component = "loader"

// Fetcher turns an asset URL into an unattached node tree whose root has the
// given ID.
type Fetcher interface {
	Fetch(ctx context.Context, id, url string) (*scene.Node, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id, url string) (*scene.Node, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, id, url string) (*scene.Node, error) {
	return f(ctx, id, url)
}

// Result is the single completion signal of a load: Node on success, Err on
// failure.
type Result struct {
	Asset *model.LoadedAsset
	Node  *scene.Node
	Err   error
}

// Loader runs fetches in the background and delivers results on a channel.
type Loader struct {
	fetcher Fetcher
	results chan Result
	log     logging.Logger
	tracer  trace.Tracer

	wg sync.WaitGroup
}

// Option customises Loader construction.
type Option func(*Loader)

// WithBuffer sets the capacity of the result channel.
func WithBuffer(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.results = make(chan Result, n)
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loader) {
		if tp != nil {
			l.tracer = tp.Tracer(observability.TracerName(component))
		}
	}
}

// New constructs a Loader around f.
func New(f Fetcher, log logging.Logger, opts ...Option) *Loader {
	if log == nil {
		log = logging.Noop()
	}
	l := &Loader{
		fetcher: f,
		results: make(chan Result, 8),
		log:     log,
		tracer:  observability.Tracer(component),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Results returns the channel on which completions are delivered.
func (l *Loader) Results() <-chan Result { return l.results }

// Load starts fetching asset. It returns immediately. If ctx ends before the
// result is consumed, the result is dropped.
func (l *Loader) Load(ctx context.Context, asset *model.LoadedAsset) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		res := l.fetch(ctx, asset)
		select {
		case l.results <- res:
		case <-ctx.Done():
			l.log.Debug(ctx, "dropping load result after shutdown", logging.String("asset", asset.Name))
		}
	}()
}

// Wait blocks until every started load has delivered or dropped its result.
func (l *Loader) Wait() { l.wg.Wait() }

func (l *Loader) fetch(ctx context.Context, asset *model.LoadedAsset) (res Result) {
	res.Asset = asset

	ctx, span := l.tracer.Start(ctx, "loader.Fetch",
		trace.WithAttributes(observability.AssetAttributes(asset.Name, asset.SourceURL)...))
	defer span.End()

	// Fetcher panics become load failures.
	defer func() {
		if r := recover(); r != nil {
			res.Node = nil
			res.Err = fmt.Errorf("fetch %q panicked: %v", asset.SourceURL, r)
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "panic")
			span.SetAttributes(observability.AttrAssetOutcome.String(model.AssetFailed.String()))
		}
	}()

	node, err := l.fetcher.Fetch(ctx, asset.Name, asset.SourceURL)
	switch {
	case err != nil:
		res.Err = fmt.Errorf("fetch %q: %w", asset.SourceURL, err)
	case node == nil:
		res.Err = fmt.Errorf("fetch %q: fetcher returned no node", asset.SourceURL)
	default:
		res.Node = node
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "load failed")
		span.SetAttributes(observability.AttrAssetOutcome.String(model.AssetFailed.String()))
		return res
	}
	span.SetAttributes(observability.AttrAssetOutcome.String(model.AssetReady.String()))
	return res
}
