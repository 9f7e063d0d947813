package scene

import (
	"github.com/go-gl/mathgl/mgl64"
)

// NormalizePointer converts client pixel coordinates to normalised device
// coordinates in [-1, 1], with +y up. A zero-sized viewport maps to the
// centre.
func NormalizePointer(x, y, width, height float64) mgl64.Vec2 {
	if width <= 0 || height <= 0 {
		return mgl64.Vec2{}
	}
	return mgl64.Vec2{
		mgl64.Clamp(x/width*2-1, -1, 1),
		mgl64.Clamp(-(y/height)*2+1, -1, 1),
	}
}

// Ray is a half line starting at Origin.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Raycaster keeps the pick ray through the pointer. Nothing consumes it yet;
// it is recomputed every frame as a hook for picking.
type Raycaster struct {
	Ray Ray
}

// SetFromCamera points the ray from the camera through the NDC position.
func (rc *Raycaster) SetFromCamera(ndc mgl64.Vec2, cam *Camera) {
	origin := cam.Position
	through := cam.Unproject(mgl64.Vec3{ndc.X(), ndc.Y(), 0.5})
	dir := through.Sub(origin)
	if dir.Len() == 0 {
		dir = cam.Target.Sub(origin)
	}
	rc.Ray = Ray{Origin: origin, Direction: dir.Normalize()}
}
