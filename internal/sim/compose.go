package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orbit-scene/core"
	"github.com/signalsfoundry/orbit-scene/model"
	"github.com/signalsfoundry/orbit-scene/scene"
)

var (
	// ErrInvalidLight indicates a light definition with an unknown kind.
	ErrInvalidLight = errors.New("invalid light")
	// ErrEmptyResult marks a load that reported success without a node.
	ErrEmptyResult = errors.New("load result has no node")
)

// Sphere tessellation for built-in bodies.
const (
	sphereWidthSegments  = 30
	sphereHeightSegments = 30
)

// World is the composed scene plus the state that animates it.
type World struct {
	Graph    *scene.Graph
	Camera   *scene.Camera
	Controls *scene.OrbitControls
	State    *State

	Width  int
	Height int
}

// Compose builds the static tree, camera and animation records. Loaded
// bodies get Pending assets and unbound animation records; nothing is
// fetched here.
func Compose(def model.SceneDefinition) (*World, error) {
	g := scene.NewGraph()
	if def.Skybox != "" {
		var bg scene.Background
		for i := range bg.Faces {
			bg.Faces[i] = def.Skybox
		}
		g.SetBackground(bg)
	}

	for i, l := range def.Lights {
		n, err := newLightNode(fmt.Sprintf("light-%d", i), l)
		if err != nil {
			return nil, err
		}
		if err := g.Attach(n); err != nil {
			return nil, err
		}
	}

	st := &State{}
	for _, b := range def.Bodies {
		if err := composeBody(g, st, b); err != nil {
			return nil, fmt.Errorf("body %q: %w", b.ID, err)
		}
	}

	cd := def.Camera
	cam := scene.NewPerspectiveCamera(cd.FovY, def.Aspect(), cd.Near, cd.Far)
	cam.Position = cd.Position
	cam.Target = cd.Target
	controls := scene.NewOrbitControls(cam)
	controls.MinDistance = cd.MinDistance
	if cd.MaxDistance > 0 {
		controls.MaxDistance = cd.MaxDistance
	}

	return &World{
		Graph:    g,
		Camera:   cam,
		Controls: controls,
		State:    st,
		Width:    def.Width,
		Height:   def.Height,
	}, nil
}

func composeBody(g *scene.Graph, st *State, b model.BodyDefinition) error {
	orbit, err := newOrbit(b.Orbit)
	if err != nil {
		return err
	}

	var spin *SpinningBody
	if b.Spin != 0 {
		spin = &SpinningBody{ID: b.ID, Spin: core.NewSpin(b.Spin)}
		st.Spins = append(st.Spins, spin)
	}
	var ob *OrbitingBody
	if orbit != nil {
		ob = &OrbitingBody{ID: b.ID, Orbit: orbit}
		st.Orbits = append(st.Orbits, ob)
	}

	if b.Loaded() {
		st.Assets = append(st.Assets, &AssetBody{
			Asset: model.NewLoadedAsset(b.ID, b.Source),
			Def:   b,
			Spin:  spin,
			Orbit: ob,
		})
		return nil
	}

	mat := scene.Material{Kind: scene.MaterialBasic, Texture: b.Texture, Color: b.Color}
	if b.Material == string(scene.MaterialStandard) {
		mat.Kind = scene.MaterialStandard
	}
	mesh := scene.NewSphere(b.ID, scene.Sphere{
		Radius:         b.Radius,
		WidthSegments:  sphereWidthSegments,
		HeightSegments: sphereHeightSegments,
	}, mat)
	if b.Name != "" {
		mesh.Name = b.Name
	}
	if spin != nil {
		spin.Handle = mesh
	}

	if b.Orbit.Kind != model.OrbitPivot {
		mesh.SetPosition(b.InitialPosition)
		if ob != nil {
			ob.Handle = mesh
		}
		return g.Attach(mesh)
	}

	// The pivot sits at the orbit center; the mesh rides on it at +x.
	pivot := scene.NewGroup(b.ID + "-pivot")
	pivot.SetPosition(b.Orbit.Center)
	mesh.SetPosition(mgl64.Vec3{b.Orbit.Radius, 0, 0})
	if err := pivot.Add(mesh); err != nil {
		return err
	}
	ob.Handle = pivot
	return g.Attach(pivot)
}

func newOrbit(o model.OrbitDefinition) (core.Orbit, error) {
	switch o.Kind {
	case model.OrbitNone:
		return nil, nil
	case model.OrbitDirect:
		return core.NewDirectOrbit(o.Center, o.Radius, o.Speed)
	case model.OrbitPivot:
		if err := core.ValidateRadius(o.Radius); err != nil {
			return nil, err
		}
		return core.NewPivotOrbit(o.Speed), nil
	case model.OrbitTLE:
		start := o.Epoch
		if start.IsZero() {
			start = time.Now().UTC()
		}
		step := time.Duration(o.StepSeconds * float64(time.Second))
		return core.NewTLEOrbit(o.TLE1, o.TLE2, start, step, o.KmToScene)
	default:
		return nil, fmt.Errorf("orbit kind %v: %w", o.Kind, model.ErrUnknownOrbit)
	}
}

func newLightNode(id string, l model.LightDefinition) (*scene.Node, error) {
	var kind scene.LightKind
	switch l.Kind {
	case string(scene.LightAmbient):
		kind = scene.LightAmbient
	case string(scene.LightPoint):
		kind = scene.LightPoint
	default:
		return nil, fmt.Errorf("light %q kind %q: %w", id, l.Kind, ErrInvalidLight)
	}
	n := scene.NewLight(id, scene.Light{
		Kind:      kind,
		Color:     l.Color,
		Intensity: l.Intensity,
		Distance:  l.Distance,
	})
	n.SetPosition(l.Position)
	return n, nil
}
