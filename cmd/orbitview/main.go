//go:build !tinygo

// Command orbitview runs the scene in a desktop window. Bodies are drawn as
// flat discs; loaded models appear as markers once their load completes.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/signalsfoundry/orbit-scene/internal/config"
	"github.com/signalsfoundry/orbit-scene/internal/logging"
	"github.com/signalsfoundry/orbit-scene/internal/sim"
	"github.com/signalsfoundry/orbit-scene/loader"
	"github.com/signalsfoundry/orbit-scene/scene"
	"github.com/signalsfoundry/orbit-scene/timectrl"
)

const (
	zoomStep     = 0.95
	markerRadius = 3
)

var (
	basicColor    = color.RGBA{R: 0x3a, G: 0x6e, B: 0xa5, A: 0xff}
	standardColor = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
	markerColor   = color.RGBA{R: 0xff, G: 0xd0, B: 0x40, A: 0xff}
)

type disc struct {
	x, y, r float32
	depth   float64
	clr     color.Color
}

// window is both the ebiten game and the simulation renderer. Update, Draw
// and Render all run on ebiten's game goroutine.
type window struct {
	ctx   context.Context
	sim   *sim.Simulation
	clock *timectrl.FrameClock

	width, height int
	dragging      bool
	lastX, lastY  int

	discs []disc
	frame uint64
}

func (w *window) Update() error {
	x, y := ebiten.CursorPosition()
	if x != w.lastX || y != w.lastY {
		w.sim.Submit(sim.Input{Kind: sim.InputPointer, X: float64(x), Y: float64(y)})
	}
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		if w.dragging {
			w.sim.Submit(sim.Input{Kind: sim.InputOrbit, DX: float64(x - w.lastX), DY: float64(y - w.lastY)})
		}
		w.dragging = true
	} else {
		w.dragging = false
	}
	w.lastX, w.lastY = x, y

	if _, dy := ebiten.Wheel(); dy != 0 {
		w.sim.Submit(sim.Input{Kind: sim.InputZoom, Scale: math.Pow(zoomStep, dy)})
	}

	w.clock.Step()
	return nil
}

func (w *window) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)
	for _, d := range w.discs {
		vector.DrawFilledCircle(screen, d.x, d.y, d.r, d.clr, true)
	}
	ebitenutil.DebugPrint(screen, fmt.Sprintf("frame %d  %.0f tps", w.frame, ebiten.ActualTPS()))
}

func (w *window) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != w.width || outsideHeight != w.height {
		w.width, w.height = outsideWidth, outsideHeight
		w.sim.Submit(sim.Input{Kind: sim.InputResize, Width: outsideWidth, Height: outsideHeight})
	}
	return outsideWidth, outsideHeight
}

// Render projects every sphere and model into a back-to-front disc list.
func (w *window) Render(_ context.Context, f sim.Frame) error {
	w.frame = f.Number
	w.discs = w.discs[:0]
	if f.Graph == nil || f.Camera == nil || f.Width <= 0 || f.Height <= 0 {
		return nil
	}
	cam := f.Camera
	halfW, halfH := float64(f.Width)/2, float64(f.Height)/2

	f.Graph.Walk(func(n *scene.Node, _ int) {
		var r float64
		var clr color.Color
		switch {
		case n.Sphere != nil:
			world := n.WorldPosition()
			d := world.Sub(cam.Position).Len()
			r = cam.ProjectedRadius(n.Sphere.Radius*n.Scale.X(), d) * halfH
			clr = meshColor(n.Material)
		case n.Kind == scene.KindModel:
			r = markerRadius
			clr = markerColor
		default:
			return
		}
		ndc, ok := cam.Project(n.WorldPosition())
		if !ok {
			return
		}
		w.discs = append(w.discs, disc{
			x:     float32((ndc.X() + 1) * halfW),
			y:     float32((1 - ndc.Y()) * halfH),
			r:     float32(math.Max(r, 1)),
			depth: ndc.Z(),
			clr:   clr,
		})
	})
	sort.Slice(w.discs, func(i, j int) bool { return w.discs[i].depth > w.discs[j].depth })
	return nil
}

func (w *window) SetSize(width, height int) {
	ebiten.SetWindowSize(width, height)
}

func meshColor(m *scene.Material) color.Color {
	switch {
	case m == nil:
		return standardColor
	case m.Color != 0:
		return color.RGBA{R: uint8(m.Color >> 16), G: uint8(m.Color >> 8), B: uint8(m.Color), A: 0xff}
	case m.Kind == scene.MaterialBasic:
		return basicColor
	default:
		return standardColor
	}
}

func main() {
	scenePath := flag.String("config", "", "Path to a scene file; the built-in scene is used when empty")
	assetsDir := flag.String("assets", "assets", "Directory holding textures and models")
	tps := flag.Int("fps", 60, "Simulation ticks per second")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if err := run(ctx, *scenePath, *assetsDir, *tps, log); err != nil {
		log.Error(ctx, "orbitview exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, scenePath, assetsDir string, tps int, log logging.Logger) error {
	def, err := config.Load(scenePath)
	if err != nil {
		return fmt.Errorf("load scene: %w", err)
	}
	world, err := sim.Compose(def)
	if err != nil {
		return fmt.Errorf("compose scene: %w", err)
	}

	if tps <= 0 {
		tps = 60
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &window{ctx: ctx, clock: timectrl.NewFrameClockFPS(tps), width: def.Width, height: def.Height}
	ld := loader.New(loader.NewGLTFFetcher(assetsDir), log)
	w.sim = sim.New(world, ld, w, log)
	defer w.sim.Close()
	w.clock.AddListener(func(frame uint64) { w.sim.Tick(w.ctx, frame) })

	ebiten.SetWindowTitle("orbitview")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(tps)
	w.sim.Start(ctx)
	return ebiten.RunGame(w)
}
