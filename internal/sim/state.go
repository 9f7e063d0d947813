// Package sim owns the animation state and the per-frame step: it composes
// the scene, settles asynchronous loads, applies viewport input, advances
// every body and submits the result to a renderer.
package sim

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orbit-scene/core"
	"github.com/signalsfoundry/orbit-scene/model"
	"github.com/signalsfoundry/orbit-scene/scene"
)

// SpinningBody rotates a node about its own Y axis.
type SpinningBody struct {
	ID     string
	Spin   *core.Spin
	Handle *scene.Node // nil until the body is in the scene
}

// OrbitingBody moves a node along an orbit. For pivot orbits Handle is the
// pivot, not the visible mesh.
type OrbitingBody struct {
	ID     string
	Orbit  core.Orbit
	Handle *scene.Node // nil until the body is in the scene
}

// AssetBody links a pending asset to the records that start animating it
// once it is Ready.
type AssetBody struct {
	Asset *model.LoadedAsset
	Def   model.BodyDefinition
	Spin  *SpinningBody // nil when the body does not spin
	Orbit *OrbitingBody // nil when the body does not orbit
}

// State is the complete animation state. Only the frame goroutine touches it.
type State struct {
	Frame uint64

	Spins  []*SpinningBody
	Orbits []*OrbitingBody
	Assets []*AssetBody

	// Pointer is the last pointer position in normalised device coordinates.
	Pointer   mgl64.Vec2
	Raycaster scene.Raycaster
}

// Advance performs the animation half of one tick: self rotations, the pick
// ray, then every orbit in composition order. Angles always advance; a
// transform is written only when the body's handle is present.
func Advance(st *State, cam *scene.Camera) {
	st.Frame++

	for _, b := range st.Spins {
		b.Spin.Step()
		if b.Handle != nil {
			b.Spin.Place(b.Handle)
		}
	}

	if cam != nil {
		st.Raycaster.SetFromCamera(st.Pointer, cam)
	}

	for _, b := range st.Orbits {
		b.Orbit.Step()
		if b.Handle != nil {
			b.Orbit.Place(b.Handle)
		}
	}
}

// Counts returns how many assets are in each status.
func (st *State) Counts() (pending, ready, failed int) {
	for _, a := range st.Assets {
		switch a.Asset.Status() {
		case model.AssetPending:
			pending++
		case model.AssetReady:
			ready++
		case model.AssetFailed:
			failed++
		}
	}
	return pending, ready, failed
}

// Orbit returns the orbiting body with the given ID, or nil.
func (st *State) Orbit(id string) *OrbitingBody {
	for _, b := range st.Orbits {
		if b.ID == id {
			return b
		}
	}
	return nil
}
