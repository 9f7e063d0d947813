package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const polarEpsilon = 1e-6

// OrbitControls moves a camera on a sphere around its target. Angles follow
// the usual spherical convention: polar is measured from +y, azimuth around
// +y starting at +z.
type OrbitControls struct {
	Camera *Camera

	MinDistance float64
	MaxDistance float64

	radius  float64
	polar   float64
	azimuth float64
}

// NewOrbitControls derives the spherical state from the camera's current
// position and target.
func NewOrbitControls(cam *Camera) *OrbitControls {
	oc := &OrbitControls{
		Camera:      cam,
		MinDistance: 0,
		MaxDistance: math.Inf(1),
	}
	oc.sync()
	return oc
}

func (oc *OrbitControls) sync() {
	offset := oc.Camera.Position.Sub(oc.Camera.Target)
	oc.radius = offset.Len()
	if oc.radius == 0 {
		oc.polar = math.Pi / 2
		oc.azimuth = 0
		return
	}
	oc.azimuth = math.Atan2(offset.X(), offset.Z())
	oc.polar = math.Acos(mgl64.Clamp(offset.Y()/oc.radius, -1, 1))
}

// Distance returns the camera's distance from its target.
func (oc *OrbitControls) Distance() float64 { return oc.radius }

// Rotate turns the camera around the target by the given azimuth and polar
// deltas in radians.
func (oc *OrbitControls) Rotate(dAzimuth, dPolar float64) {
	oc.azimuth += dAzimuth
	oc.polar = mgl64.Clamp(oc.polar+dPolar, polarEpsilon, math.Pi-polarEpsilon)
	oc.Update()
}

// Zoom scales the camera distance. Values below 1 move closer.
func (oc *OrbitControls) Zoom(scale float64) {
	if scale <= 0 || math.IsNaN(scale) {
		return
	}
	oc.radius *= scale
	oc.Update()
}

// Update writes the spherical state back to the camera position.
func (oc *OrbitControls) Update() {
	oc.radius = mgl64.Clamp(oc.radius, oc.MinDistance, oc.MaxDistance)
	sinPolar := math.Sin(oc.polar)
	offset := mgl64.Vec3{
		oc.radius * sinPolar * math.Sin(oc.azimuth),
		oc.radius * math.Cos(oc.polar),
		oc.radius * sinPolar * math.Cos(oc.azimuth),
	}
	oc.Camera.Position = oc.Camera.Target.Add(offset)
}
