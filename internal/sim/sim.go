package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/orbit-scene/internal/logging"
	"github.com/signalsfoundry/orbit-scene/loader"
	"github.com/signalsfoundry/orbit-scene/model"
	"github.com/signalsfoundry/orbit-scene/scene"
)

const defaultInputBuffer = 64

// Frame is one render submission.
type Frame struct {
	Number uint64
	Graph  *scene.Graph
	Camera *scene.Camera
	Width  int
	Height int
}

// Renderer draws or publishes a frame. Render is called on the frame
// goroutine and must not retain the graph past the call.
type Renderer interface {
	Render(ctx context.Context, f Frame) error
	SetSize(width, height int)
}

// AssetLoader starts asynchronous loads and reports their results.
type AssetLoader interface {
	Load(ctx context.Context, asset *model.LoadedAsset)
	Results() <-chan loader.Result
}

// MetricsRecorder receives per-frame and per-asset measurements.
type MetricsRecorder interface {
	ObserveFrame(d time.Duration)
	SetAssetCounts(pending, ready, failed int)
	IncAssetLoad(asset, outcome string)
	IncRenderErrors()
}

// InputKind identifies a viewport input event.
type InputKind int

const (
	InputResize  InputKind = iota // Width, Height
	InputPointer                  // X, Y in client pixels
	InputOrbit                    // DX, DY drag in client pixels
	InputZoom                     // Scale, below 1 moves closer
)

func (k InputKind) String() string {
	switch k {
	case InputResize:
		return "resize"
	case InputPointer:
		return "pointer"
	case InputOrbit:
		return "orbit"
	case InputZoom:
		return "zoom"
	default:
		return "unknown"
	}
}

// Input is a viewport event queued for the next tick.
type Input struct {
	Kind   InputKind
	Width  int
	Height int
	X, Y   float64
	DX, DY float64
	Scale  float64
}

// Simulation runs the frame step over a composed world.
type Simulation struct {
	world    *World
	loader   AssetLoader
	renderer Renderer
	log      logging.Logger
	metrics  MetricsRecorder

	inputs  chan Input
	byAsset map[*model.LoadedAsset]*AssetBody

	resizeMu sync.Mutex
	resize   *Input

	unsubscribe func()
}

// Option customises Simulation construction.
type Option func(*Simulation)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Simulation) { s.metrics = m }
}

// WithInputBuffer sets how many input events may queue between ticks.
func WithInputBuffer(n int) Option {
	return func(s *Simulation) {
		if n > 0 {
			s.inputs = make(chan Input, n)
		}
	}
}

// New wires a simulation. A nil renderer discards frames.
func New(w *World, ld AssetLoader, r Renderer, log logging.Logger, opts ...Option) *Simulation {
	if log == nil {
		log = logging.Noop()
	}
	if r == nil {
		r = discardRenderer{}
	}
	s := &Simulation{
		world:    w,
		loader:   ld,
		renderer: r,
		log:      log,
		inputs:   make(chan Input, defaultInputBuffer),
		byAsset:  make(map[*model.LoadedAsset]*AssetBody),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, a := range w.State.Assets {
		s.byAsset[a.Asset] = a
	}
	s.unsubscribe = w.Graph.Subscribe(func(ev scene.Event) {
		log.Debug(context.Background(), "node attached",
			logging.String("node", ev.NodeID),
			logging.String("parent", ev.ParentID),
			logging.Int("nodes", ev.Nodes),
		)
	})
	r.SetSize(w.Width, w.Height)
	return s
}

// World returns the composed world. Its transforms belong to the frame
// goroutine.
func (s *Simulation) World() *World { return s.world }

// Start issues one load per pending asset. It does not block.
func (s *Simulation) Start(ctx context.Context) {
	for _, a := range s.world.State.Assets {
		s.log.Info(ctx, "loading asset",
			logging.String("asset", a.Asset.Name),
			logging.String("url", a.Asset.SourceURL),
		)
		if s.loader != nil {
			s.loader.Load(ctx, a.Asset)
		}
	}
	s.recordCounts()
}

// Close detaches the simulation from graph events.
func (s *Simulation) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Submit queues a viewport event for the next tick. It never blocks.
// Resizes are coalesced outside the queue so the latest one is always
// applied; for other events a full queue drops its oldest entry. It reports
// whether the event was kept.
func (s *Simulation) Submit(in Input) bool {
	if in.Kind == InputResize {
		s.resizeMu.Lock()
		s.resize = &in
		s.resizeMu.Unlock()
		return true
	}
	select {
	case s.inputs <- in:
		return true
	default:
	}
	select {
	case <-s.inputs:
	default:
	}
	select {
	case s.inputs <- in:
		return true
	default:
		return false
	}
}

// Tick performs one frame: settle finished loads, apply queued input,
// advance the animation and submit the frame.
func (s *Simulation) Tick(ctx context.Context, frame uint64) {
	start := time.Now()

	s.drainResults(ctx)
	s.drainInputs()

	Advance(s.world.State, s.world.Camera)

	err := s.renderer.Render(ctx, Frame{
		Number: frame,
		Graph:  s.world.Graph,
		Camera: s.world.Camera,
		Width:  s.world.Width,
		Height: s.world.Height,
	})
	if err != nil {
		s.log.Warn(ctx, "render failed", logging.Uint64("frame", frame), logging.Err(err))
		if s.metrics != nil {
			s.metrics.IncRenderErrors()
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveFrame(time.Since(start))
	}
}

func (s *Simulation) drainResults(ctx context.Context) {
	if s.loader == nil {
		return
	}
	results := s.loader.Results()
	for {
		select {
		case res := <-results:
			s.settle(ctx, res)
		default:
			return
		}
	}
}

func (s *Simulation) drainInputs() {
	s.resizeMu.Lock()
	resize := s.resize
	s.resize = nil
	s.resizeMu.Unlock()
	if resize != nil {
		s.apply(*resize)
	}

	for {
		select {
		case in := <-s.inputs:
			s.apply(in)
		default:
			return
		}
	}
}

func (s *Simulation) apply(in Input) {
	w := s.world
	switch in.Kind {
	case InputResize:
		if in.Width <= 0 || in.Height <= 0 {
			return
		}
		w.Width, w.Height = in.Width, in.Height
		w.Camera.SetAspect(float64(in.Width) / float64(in.Height))
		s.renderer.SetSize(in.Width, in.Height)
	case InputPointer:
		w.State.Pointer = scene.NormalizePointer(in.X, in.Y, float64(w.Width), float64(w.Height))
	case InputOrbit:
		if w.Height <= 0 {
			return
		}
		h := float64(w.Height)
		w.Controls.Rotate(-2*math.Pi*in.DX/h, -2*math.Pi*in.DY/h)
	case InputZoom:
		w.Controls.Zoom(in.Scale)
	}
}

// settle finishes a load on the frame goroutine. A failed or unusable
// result leaves the body out of the scene; nothing here returns an error
// to the tick.
func (s *Simulation) settle(ctx context.Context, res loader.Result) {
	if res.Asset == nil {
		return
	}
	body, ok := s.byAsset[res.Asset]
	if !ok {
		s.log.Warn(ctx, "load result for unknown asset", logging.String("asset", res.Asset.Name))
		return
	}
	if st := body.Asset.Status(); st != model.AssetPending {
		s.log.Warn(ctx, "duplicate load result", logging.String("asset", body.Asset.Name), logging.String("status", st.String()))
		return
	}

	err := res.Err
	if err == nil && res.Node == nil {
		err = ErrEmptyResult
	}
	if err == nil {
		err = s.install(body, res.Node)
	}
	if err != nil {
		s.fail(ctx, body, err)
		return
	}

	if err := body.Asset.MarkReady(res.Node); err != nil {
		s.log.Warn(ctx, "asset settled twice", logging.String("asset", body.Asset.Name), logging.Err(err))
		return
	}
	if body.Spin != nil {
		body.Spin.Handle = res.Node
	}
	if body.Orbit != nil {
		body.Orbit.Handle = res.Node
	}

	s.log.Info(ctx, "asset ready",
		logging.String("asset", body.Asset.Name),
		logging.Uint64("frame", s.world.State.Frame),
	)
	if s.metrics != nil {
		s.metrics.IncAssetLoad(body.Asset.Name, model.AssetReady.String())
	}
	s.recordCounts()
}

// install configures the loaded node and attaches it with its lights.
func (s *Simulation) install(body *AssetBody, n *scene.Node) error {
	def := body.Def
	if def.Scale > 0 {
		n.SetScale(def.Scale)
	}
	n.SetPosition(def.InitialPosition)

	for i, l := range def.Lights {
		ln, err := newLightNode(fmt.Sprintf("%s/light-%d", def.ID, i), l)
		if err != nil {
			return err
		}
		if err := n.Add(ln); err != nil {
			return err
		}
	}

	// Scene lights attach after the model, so every clash is found here
	// while the graph is still untouched.
	taken := subtreeIDs(n)
	sceneLights := make([]*scene.Node, 0, len(def.SceneLights))
	for i, l := range def.SceneLights {
		ln, err := newLightNode(fmt.Sprintf("%s/scene-light-%d", def.ID, i), l)
		if err != nil {
			return err
		}
		if taken[ln.ID] || s.world.Graph.Contains(ln.ID) {
			return fmt.Errorf("attach %q: %w", ln.ID, scene.ErrNodeExists)
		}
		sceneLights = append(sceneLights, ln)
	}

	if err := s.world.Graph.Attach(n); err != nil {
		return fmt.Errorf("attach %q: %w", def.ID, err)
	}
	for _, ln := range sceneLights {
		if err := s.world.Graph.Attach(ln); err != nil {
			return fmt.Errorf("attach %q: %w", ln.ID, err)
		}
	}
	return nil
}

func subtreeIDs(n *scene.Node) map[string]bool {
	ids := map[string]bool{n.ID: true}
	for _, c := range n.Children() {
		for id := range subtreeIDs(c) {
			ids[id] = true
		}
	}
	return ids
}

func (s *Simulation) fail(ctx context.Context, body *AssetBody, err error) {
	if markErr := body.Asset.MarkFailed(err); markErr != nil {
		s.log.Warn(ctx, "asset settled twice", logging.String("asset", body.Asset.Name), logging.Err(markErr))
		return
	}
	s.log.Error(ctx, "asset load failed",
		logging.String("asset", body.Asset.Name),
		logging.String("url", body.Asset.SourceURL),
		logging.Err(err),
	)
	if s.metrics != nil {
		s.metrics.IncAssetLoad(body.Asset.Name, model.AssetFailed.String())
	}
	s.recordCounts()
}

func (s *Simulation) recordCounts() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetAssetCounts(s.world.State.Counts())
}

type discardRenderer struct{}

func (discardRenderer) Render(context.Context, Frame) error { return nil }
func (discardRenderer) SetSize(int, int)                   {}
