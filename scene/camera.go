package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera is a perspective camera looking at Target.
type Camera struct {
	Position mgl64.Vec3
	Target   mgl64.Vec3
	Up       mgl64.Vec3

	FovY   float64 // vertical field of view in degrees
	Aspect float64
	Near   float64
	Far    float64
}

// NewPerspectiveCamera returns a camera at the origin looking down -z.
func NewPerspectiveCamera(fovY, aspect, near, far float64) *Camera {
	return &Camera{
		Target: mgl64.Vec3{0, 0, -1},
		Up:     mgl64.Vec3{0, 1, 0},
		FovY:   fovY,
		Aspect: aspect,
		Near:   near,
		Far:    far,
	}
}

// SetAspect updates the aspect ratio. Non-positive or non-finite values are
// ignored so a zero-sized window cannot poison the projection.
func (c *Camera) SetAspect(aspect float64) {
	if aspect <= 0 || math.IsInf(aspect, 0) || math.IsNaN(aspect) {
		return
	}
	c.Aspect = aspect
}

// Projection returns the perspective projection matrix.
func (c *Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FovY), c.Aspect, c.Near, c.Far)
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Target, c.Up)
}

// Project maps a world point to normalised device coordinates. ok is false
// when the point is behind the camera or outside the depth range.
func (c *Camera) Project(world mgl64.Vec3) (ndc mgl64.Vec3, ok bool) {
	clip := c.Projection().Mul4(c.View()).Mul4x1(world.Vec4(1))
	if clip.W() <= 0 {
		return mgl64.Vec3{}, false
	}
	ndc = clip.Vec3().Mul(1 / clip.W())
	return ndc, ndc.Z() >= -1 && ndc.Z() <= 1
}

// Unproject maps normalised device coordinates back to a world point.
func (c *Camera) Unproject(ndc mgl64.Vec3) mgl64.Vec3 {
	inv := c.Projection().Mul4(c.View()).Inv()
	return mgl64.TransformCoordinate(ndc, inv)
}

// ProjectedRadius returns the on-screen radius, in NDC units of the
// viewport height, of a sphere of the given world radius at distance d.
func (c *Camera) ProjectedRadius(radius, d float64) float64 {
	if d <= 0 {
		return 0
	}
	return radius / (d * math.Tan(mgl64.DegToRad(c.FovY)/2))
}
